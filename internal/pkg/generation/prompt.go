package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type promptOptions struct {
	Scene      string `json:"scene"`
	Role       string `json:"role"`
	Style      string `json:"style"`
	Length     string `json:"length"`
	Emoji      bool   `json:"emoji"`
	Language   string `json:"language"`
	Variations int    `json:"variations"`
}

// ResolveOption picks the custom text when the preset is "custom", else the
// preset, else the custom text.
func ResolveOption(primary, custom string) string {
	if primary == CustomOption {
		if custom != "" {
			return custom
		}
		return NotSpecified
	}
	if primary != "" {
		return primary
	}
	if custom != "" {
		return custom
	}
	return NotSpecified
}

// BuildPrompt compiles the model instructions for a normalized input.
func BuildPrompt(in Input) string {
	opts := promptOptions{
		Scene:      ResolveOption(in.Options.Scene, in.Options.SceneCustom),
		Role:       ResolveOption(in.Options.Role, in.Options.RoleCustom),
		Style:      orDefault(in.Options.Style, DefaultStyle),
		Length:     orDefault(in.Options.Length, DefaultLength),
		Emoji:      in.Options.Emoji,
		Language:   in.Language,
		Variations: in.Variations,
	}
	optionJSON, _ := json.MarshalIndent(opts, "", "  ")

	lines := []string{
		"You are an assistant specialized in writing practical message replies.",
		"You must follow every provided option exactly and never ignore options.",
		fmt.Sprintf("Return exactly %d replies and ensure each reply is meaningfully different.", in.Variations),
		`Return strict JSON only: {"replies": ["..."]}. Never output markdown or extra keys.`,
		"",
		"Selected Options JSON:\n" + string(optionJSON),
		"",
		"Original Message:\n" + in.Message,
		"",
		"Additional Notes:\n" + orDefault(in.Notes, "None"),
		"",
		"Output requirements:",
		"- Keep language consistent with the requested language option.",
		"- Keep tone and role alignment precise.",
		"- Respect length preference (Shorter/Longer).",
		"- If emoji=false, do not include emoji.",
		"- If emoji=true, use emojis only when natural and minimal.",
		"- Return plain reply text only; do not add numbering or bullet prefixes.",
		"- Avoid policy or safety commentary unless explicitly requested by user input.",
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
