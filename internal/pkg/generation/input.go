package generation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/go-playground/validator/v10"
)

const (
	CreditsPerRequest = 100

	MessageMaxRunes  = 6000
	NotesMaxRunes    = 1200
	LanguageMaxRunes = 20
	OptionMaxRunes   = 120
	LengthMaxRunes   = 40

	MinVariations     = 1
	MaxVariations     = 5
	DefaultVariations = 3

	DefaultLanguage = "auto"
	DefaultLength   = "Shorter"
	DefaultStyle    = "Friendly"
	CustomOption    = "custom"
	NotSpecified    = "Not specified"
)

// Options are the composer presets sent with a request.
type Options struct {
	Scene       string `json:"scene"`
	Role        string `json:"role"`
	Style       string `json:"style"`
	Length      string `json:"length"`
	Emoji       bool   `json:"emoji"`
	SceneCustom string `json:"sceneCustom"`
	RoleCustom  string `json:"roleCustom"`
}

// Request is the raw client payload.
type Request struct {
	Message    string  `json:"message"`
	Notes      string  `json:"notes"`
	Language   string  `json:"language"`
	Variations *int    `json:"variations"`
	Options    Options `json:"options"`
}

// Input is a normalized request ready for validation and prompting.
type Input struct {
	Message    string `validate:"required,max=6000"`
	Notes      string `validate:"max=1200"`
	Language   string `validate:"required,max=20"`
	Variations int    `validate:"min=1,max=5"`
	Options    Options
}

var validate = validator.New()

// Normalize cleans control characters, trims, applies defaults and clamps
// variations. Message and notes keep their full length so Validate can reject
// oversize input instead of silently truncating it.
func Normalize(req Request) Input {
	language := truncate(clean(req.Language), LanguageMaxRunes)
	if language == "" {
		language = DefaultLanguage
	}
	length := truncate(clean(req.Options.Length), LengthMaxRunes)
	if length == "" {
		length = DefaultLength
	}
	return Input{
		Message:    clean(req.Message),
		Notes:      clean(req.Notes),
		Language:   language,
		Variations: clampVariations(req.Variations),
		Options: Options{
			Scene:       truncate(clean(req.Options.Scene), OptionMaxRunes),
			Role:        truncate(clean(req.Options.Role), OptionMaxRunes),
			Style:       truncate(clean(req.Options.Style), OptionMaxRunes),
			Length:      length,
			Emoji:       req.Options.Emoji,
			SceneCustom: truncate(clean(req.Options.SceneCustom), OptionMaxRunes),
			RoleCustom:  truncate(clean(req.Options.RoleCustom), OptionMaxRunes),
		},
	}
}

// Validate returns an apperror validation error for the first failing field.
func (in Input) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) || len(verrs) == 0 {
		return apperror.Validation("Invalid request.")
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Message" && fe.Tag() == "required":
		return apperror.Validation("Message is required.")
	case fe.Field() == "Message" && fe.Tag() == "max":
		return apperror.Validation("Message must be at most 6000 characters.")
	case fe.Field() == "Notes":
		return apperror.Validation("Notes must be at most 1200 characters.")
	default:
		return apperror.Validation("Invalid " + strings.ToLower(fe.Field()) + ".")
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

func clampVariations(v *int) int {
	if v == nil {
		return DefaultVariations
	}
	switch {
	case *v < MinVariations:
		return MinVariations
	case *v > MaxVariations:
		return MaxVariations
	default:
		return *v
	}
}
