package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	EventOrderCreated               = "order_created"
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionExpired        = "subscription_expired"
)

// LemonPayload is the subset of a Lemon Squeezy webhook body the service
// reads. Attributes stay untyped because they differ per event.
type LemonPayload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID   string `json:"user_id"`
			PlanCode string `json:"plan_code"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         ObjectID               `json:"id"`
		Type       string                 `json:"type"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"data"`
}

// ObjectID is a provider object id. Lemon Squeezy sends ids as strings
// but numeric ids are accepted as well.
type ObjectID string

func (id *ObjectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ObjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("data.id: %w", err)
	}
	*id = ObjectID(n.String())
	return nil
}

// ParsePayload decodes a webhook body keeping numbers exact.
func ParsePayload(raw []byte) (*LemonPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p LemonPayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *LemonPayload) EventName() string {
	if name := strings.TrimSpace(p.Meta.EventName); name != "" {
		return name
	}
	return "unknown"
}

func (p *LemonPayload) DataID() string {
	return strings.TrimSpace(string(p.Data.ID))
}

func (p *LemonPayload) UserID() string {
	return strings.TrimSpace(p.Meta.CustomData.UserID)
}

func (p *LemonPayload) PlanCode() string {
	return strings.TrimSpace(p.Meta.CustomData.PlanCode)
}

// VariantID reads data.attributes.variant_id, falling back to the first
// order item of order events.
func (p *LemonPayload) VariantID() string {
	if v := attrString(p.Data.Attributes, "variant_id"); v != "" {
		return v
	}
	if item, ok := p.Data.Attributes["first_order_item"].(map[string]interface{}); ok {
		return attrString(item, "variant_id")
	}
	return ""
}

// SubscriptionID is the upsert key of the subscription row.
func (p *LemonPayload) SubscriptionID() string {
	if v := attrString(p.Data.Attributes, "subscription_id"); v != "" {
		return v
	}
	return p.DataID()
}

func (p *LemonPayload) Status() string {
	return strings.ToLower(attrString(p.Data.Attributes, "status"))
}

func (p *LemonPayload) Email() string {
	return attrString(p.Data.Attributes, "user_email")
}

// RenewsAt returns renews_at, else ends_at.
func (p *LemonPayload) RenewsAt() *time.Time {
	for _, key := range []string{"renews_at", "ends_at"} {
		if t, ok := attrTime(p.Data.Attributes, key); ok {
			return &t
		}
	}
	return nil
}

// EventTime orders deliveries of the same subscription: updated_at, else
// created_at, else fallback.
func (p *LemonPayload) EventTime(fallback time.Time) time.Time {
	for _, key := range []string{"updated_at", "created_at"} {
		if t, ok := attrTime(p.Data.Attributes, key); ok {
			return t
		}
	}
	return fallback.UTC()
}

func attrString(attrs map[string]interface{}, key string) string {
	v, ok := attrs[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func attrTime(attrs map[string]interface{}, key string) (time.Time, bool) {
	raw := attrString(attrs, key)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
