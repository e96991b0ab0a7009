package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLemonClientCreateCheckout(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(`{"data":{"attributes":{"url":"https://shop.example/checkout/abc"}}}`))
	}))
	defer srv.Close()

	c := &LemonClient{APIKey: "key", StoreID: "77", APIBaseURL: srv.URL, AppBaseURL: "https://app.example", HTTPClient: srv.Client()}
	url, err := c.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u1", Email: "a@b.c", PlanCode: "lifetime_pro", VariantID: "555"})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/checkout/abc", url)

	data := got["data"].(map[string]interface{})
	assert.Equal(t, "checkouts", data["type"])
	attrs := data["attributes"].(map[string]interface{})
	custom := attrs["checkout_data"].(map[string]interface{})["custom"].(map[string]interface{})
	assert.Equal(t, "u1", custom["user_id"])
	assert.Equal(t, "lifetime_pro", custom["plan_code"])
	opts := attrs["product_options"].(map[string]interface{})
	assert.Equal(t, "https://app.example/?checkout=success", opts["redirect_url"])
	rel := data["relationships"].(map[string]interface{})
	assert.Equal(t, "555", rel["variant"].(map[string]interface{})["data"].(map[string]interface{})["id"])
	assert.Equal(t, "77", rel["store"].(map[string]interface{})["data"].(map[string]interface{})["id"])
}

func TestLemonClientSurfacesAPIErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"detail":"The variant is not published."}]}`))
	}))
	defer srv.Close()

	c := &LemonClient{APIKey: "key", StoreID: "1", APIBaseURL: srv.URL}
	_, err := c.CreateCheckout(context.Background(), CheckoutRequest{UserID: "u", VariantID: "1"})
	var apiErr *LemonAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "The variant is not published.", apiErr.Detail)
}

func TestLemonClientNotConfigured(t *testing.T) {
	_, err := (&LemonClient{}).CreateCheckout(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, ErrLemonNotConfigured)
}

type stubCheckout struct {
	url string
	err error
	req CheckoutRequest
}

func (s *stubCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	s.req = req
	return s.url, s.err
}

func TestCheckoutService(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Model(&models.BillingPlan{}).Where("plan_code = ?", models.PlanCodeMonthlyProAuto).
		Update("provider_variant_id", "9001").Error)
	require.NoError(t, db.Model(&models.BillingPlan{}).Where("plan_code = ?", models.PlanCodeMonthlyProOnce).
		Updates(map[string]interface{}{"provider_variant_id": "9002", "is_active": false}).Error)

	stub := &stubCheckout{url: "https://pay.example/x"}
	svc := NewCheckoutService(NewRepository(db), stub)
	ctx := context.Background()

	url, err := svc.CreateCheckout(ctx, "u1", "a@b.c", models.PlanCodeMonthlyProAuto)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/x", url)
	assert.Equal(t, "9001", stub.req.VariantID)
	assert.Equal(t, "u1", stub.req.UserID)

	_, err = svc.CreateCheckout(ctx, "u1", "", " ")
	assert.Equal(t, "validation_error", apperror.From(err).Code)

	for _, code := range []string{"nope", models.PlanCodeMonthlyProOnce, models.PlanCodeLifetimePro} {
		_, err = svc.CreateCheckout(ctx, "u1", "", code)
		assert.Equal(t, "invalid_plan", apperror.From(err).Code, code)
		assert.Equal(t, 400, apperror.From(err).Status(), code)
	}

	stub.err = &LemonAPIError{StatusCode: 422, Detail: "bad variant"}
	_, err = svc.CreateCheckout(ctx, "u1", "", models.PlanCodeMonthlyProAuto)
	appErr := apperror.From(err)
	assert.Equal(t, "lemon_checkout_failed", appErr.Code)
	assert.Equal(t, "bad variant", appErr.Message)
	assert.Equal(t, 502, appErr.Status())

	stub.err = ErrLemonNotConfigured
	_, err = svc.CreateCheckout(ctx, "u1", "", models.PlanCodeMonthlyProAuto)
	assert.Equal(t, "missing_env", apperror.From(err).Code)
}
