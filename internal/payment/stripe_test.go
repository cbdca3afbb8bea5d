package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/config"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig() config.PaymentConfig {
	return config.PaymentConfig{
		SecretKey:      "sk_test_123",
		WebhookSecret:  testWebhookSecret,
		Currency:       "usd",
		GatewayTimeout: 200 * time.Millisecond,
		SessionTTL:     time.Hour,
	}
}

func newTestGateway(t *testing.T, h http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return newStripeGateway(testConfig(), "http://localhost:8080", backend, zap.NewNop())
}

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestCreateIntent_SendsOrderMetadata(t *testing.T) {
	var form map[string]string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/checkout/sessions"))
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
	})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	s, err := g.CreateIntent(context.Background(), IntentRequest{
		OrderID:       7,
		UserID:        3,
		CustomerEmail: "a@b.c",
		Items:         []LineItem{{Name: "Heat", Price: decimal.RequireFromString("10.00")}},
	})
	require.NoError(t, err)
	assert.Equal(t, Session{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, s)

	assert.Equal(t, "7", form["metadata[order_id]"])
	assert.Equal(t, "7", form["client_reference_id"])
	assert.Equal(t, "payment", form["mode"])
	assert.Equal(t, "1000", form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, "usd", form["line_items[0][price_data][currency]"])
	assert.Equal(t, "a@b.c", form["customer_email"])
	assert.Equal(t, "1767326645", form["expires_at"]) // fixed + 1h
}

func TestCreateIntent_ServerErrorIsUnavailable(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	})
	_, err := g.CreateIntent(context.Background(), IntentRequest{OrderID: 1, Items: []LineItem{{Name: "x", Price: decimal.NewFromInt(1)}}})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateIntent_TimeoutIsUnavailable(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	start := time.Now()
	_, err := g.CreateIntent(context.Background(), IntentRequest{OrderID: 1, Items: []LineItem{{Name: "x", Price: decimal.NewFromInt(1)}}})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRefund_ClientErrorIsNotUnavailable(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"already refunded"}}`))
	})
	err := g.Refund(context.Background(), "pi_1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestRefund_AlreadyRefunded(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"charge_already_refunded",
			"message":"Charge ch_1 has already been refunded."}}`))
	})
	err := g.Refund(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	assert.False(t, errors.Is(err, ErrGatewayUnavailable))
}

func TestRefund_OK(t *testing.T) {
	var pi string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		pi = r.PostForm.Get("payment_intent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded"}`))
	})
	require.NoError(t, g.Refund(context.Background(), "pi_1"))
	assert.Equal(t, "pi_1", pi)
}

func TestParseEvent_Completed(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid",
		"payment_intent":"pi_123","metadata":{"order_id":"42"}}}}`)

	ev, err := g.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventSucceeded, ev.Kind)
	assert.Equal(t, uint64(42), ev.OrderID)
	assert.Equal(t, "pi_123", ev.ExternalPaymentID)
	assert.Equal(t, "cs_1", ev.SessionID)
	assert.Equal(t, "evt_1", ev.ID)
}

func TestParseEvent_Expired(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_2","object":"event","type":"checkout.session.expired",
		"data":{"object":{"id":"cs_9","object":"checkout.session","client_reference_id":"9"}}}`)

	ev, err := g.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, ev.Kind)
	assert.Equal(t, uint64(9), ev.OrderID)
	assert.Equal(t, "cs_9", ev.ExternalPaymentID)
}

func TestParseEvent_UnpaidCompletedIsIgnored(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_3","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_3","object":"checkout.session","payment_status":"unpaid","metadata":{"order_id":"3"}}}}`)

	ev, err := g.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}

func TestParseEvent_OtherTypeIgnored(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	ev, err := g.ParseEvent(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
	assert.Equal(t, "customer.created", ev.Type)
}

func TestParseEvent_BadSignature(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_5","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := g.ParseEvent(append(body, ' '), header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = g.ParseEvent(body, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = g.ParseEvent(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseEvent_MissingOrderReference(t *testing.T) {
	g := newTestGateway(t, func(http.ResponseWriter, *http.Request) {})
	header, body := signed(t, `{"id":"evt_6","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_6","object":"checkout.session","payment_status":"paid"}}}`)

	_, err := g.ParseEvent(body, header)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidSignature))
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, minSessionTTL, clampTTL(time.Minute))
	assert.Equal(t, maxSessionTTL, clampTTL(48*time.Hour))
	assert.Equal(t, time.Hour, clampTTL(time.Hour))
}
