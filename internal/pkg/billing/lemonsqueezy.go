package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
)

const (
	defaultLemonAPIBaseURL = "https://api.lemonsqueezy.com"
	defaultAppBaseURL      = "https://aireplytool.com"
	lemonContentType       = "application/vnd.api+json"
)

var ErrLemonNotConfigured = errors.New("lemon squeezy is not configured")

// LemonAPIError is a non-2xx answer from the Lemon Squeezy API.
type LemonAPIError struct {
	StatusCode int
	Detail     string
}

func (e *LemonAPIError) Error() string {
	return fmt.Sprintf("lemon squeezy api error (%d): %s", e.StatusCode, e.Detail)
}

// LemonClient creates hosted checkouts.
type LemonClient struct {
	APIKey     string
	StoreID    string
	APIBaseURL string
	AppBaseURL string
	HTTPClient *http.Client
}

// NewLemonClientFromEnv reads LEMON_API_KEY, LEMON_STORE_ID,
// LEMON_API_BASE_URL and APP_BASE_URL.
func NewLemonClientFromEnv() *LemonClient {
	return &LemonClient{
		APIKey:     strings.TrimSpace(env.GetEnv("LEMON_API_KEY", "")),
		StoreID:    strings.TrimSpace(env.GetEnv("LEMON_STORE_ID", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("LEMON_API_BASE_URL", defaultLemonAPIBaseURL), "/"),
		AppBaseURL: strings.TrimRight(env.GetEnv("APP_BASE_URL", defaultAppBaseURL), "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *LemonClient) Configured() bool {
	return c != nil && c.APIKey != "" && c.StoreID != ""
}

// CheckoutRequest identifies the buyer and the plan variant.
type CheckoutRequest struct {
	UserID    string
	Email     string
	PlanCode  string
	VariantID string
}

type checkoutBody struct {
	Data checkoutData `json:"data"`
}

type checkoutData struct {
	Type          string                 `json:"type"`
	Attributes    checkoutAttributes     `json:"attributes"`
	Relationships map[string]relationRef `json:"relationships"`
}

type checkoutAttributes struct {
	CheckoutData struct {
		Email  string            `json:"email,omitempty"`
		Custom map[string]string `json:"custom"`
	} `json:"checkout_data"`
	ProductOptions struct {
		RedirectURL       string `json:"redirect_url"`
		ReceiptLinkURL    string `json:"receipt_link_url"`
		ReceiptButtonText string `json:"receipt_button_text"`
	} `json:"product_options"`
}

type relationRef struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	} `json:"errors"`
}

// CreateCheckout returns the hosted checkout URL for req.
func (c *LemonClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if !c.Configured() {
		return "", ErrLemonNotConfigured
	}

	body := checkoutBody{Data: checkoutData{Type: "checkouts", Relationships: map[string]relationRef{}}}
	attrs := &body.Data.Attributes
	attrs.CheckoutData.Email = strings.TrimSpace(req.Email)
	attrs.CheckoutData.Custom = map[string]string{"user_id": req.UserID, "plan_code": req.PlanCode}
	attrs.ProductOptions.RedirectURL = c.AppBaseURL + "/?checkout=success"
	attrs.ProductOptions.ReceiptLinkURL = c.AppBaseURL
	attrs.ProductOptions.ReceiptButtonText = "Return to AI Reply"
	body.Data.Relationships["store"] = newRelationRef("stores", c.StoreID)
	body.Data.Relationships["variant"] = newRelationRef("variants", req.VariantID)

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/checkouts", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", lemonContentType)
	httpReq.Header.Set("Content-Type", lemonContentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out checkoutResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := "Checkout creation failed."
		if len(out.Errors) > 0 {
			if out.Errors[0].Detail != "" {
				detail = out.Errors[0].Detail
			} else if out.Errors[0].Title != "" {
				detail = out.Errors[0].Title
			}
		}
		return "", &LemonAPIError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode checkout response: %w", decodeErr)
	}
	if out.Data.Attributes.URL == "" {
		return "", &LemonAPIError{StatusCode: resp.StatusCode, Detail: "Checkout URL missing from response."}
	}
	return out.Data.Attributes.URL, nil
}

func newRelationRef(kind, id string) relationRef {
	var ref relationRef
	ref.Data.Type = kind
	ref.Data.ID = id
	return ref
}
