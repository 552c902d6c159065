package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"merch-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntentValidation(t *testing.T) {
	g := NewGateway("http://localhost:0", "sk_test", time.Millisecond)
	ctx := context.Background()

	_, err := g.CreateIntent(ctx, 0, "USD", "order-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = g.CreateIntent(ctx, -100, "USD", "order-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = g.CreateIntent(ctx, 1000, "US", "order-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = g.CreateIntent(ctx, 1000, "U5D", "order-1")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateIntentWithoutCredentialsSimulates(t *testing.T) {
	g := NewGateway("http://localhost:0", "", time.Millisecond)

	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err)

	assert.True(t, intent.Simulated)
	assert.Equal(t, CauseUnauthenticated, intent.FallbackCause)
	assert.Equal(t, int64(4000), intent.Amount)
}

func TestCreateIntentAgainstProcessor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "4000", r.FormValue("amount"))
		assert.Equal(t, "usd", r.FormValue("currency"))
		assert.Equal(t, "order-1", r.FormValue("metadata[order_id]"))

		fmt.Fprint(w, `{"id":"pi_123","client_secret":"pi_123_secret","status":"requires_confirmation"}`)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "sk_test", time.Millisecond)
	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err)

	assert.False(t, intent.Simulated)
	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret", intent.ClientSecret)
}

func TestCreateIntentProcessorErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "sk_test", time.Millisecond)
	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err, "processor failure must not block checkout")

	assert.True(t, intent.Simulated)
	assert.Equal(t, CauseProcessor, intent.FallbackCause)
}

func TestCreateIntentTransportErrorFallsBack(t *testing.T) {
	// Nothing listens here
	g := NewGateway("http://127.0.0.1:1", "sk_test", time.Millisecond)

	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err)

	assert.True(t, intent.Simulated)
	assert.Equal(t, CauseTransport, intent.FallbackCause)
}

func TestCreateIntentMalformedResponseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`) // no id
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "sk_test", time.Millisecond)
	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err)

	assert.True(t, intent.Simulated)
	assert.Equal(t, CauseMalformed, intent.FallbackCause)
}

func TestConfirmSimulatedIntent(t *testing.T) {
	g := NewGateway("http://localhost:0", "", time.Millisecond)

	intent, err := g.CreateIntent(context.Background(), 4000, "USD", "order-1")
	require.NoError(t, err)

	outcome, err := g.Confirm(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentOutcomeSucceeded, outcome.Status)
	assert.Equal(t, SimulatedTxID("order-1"), outcome.TxID)
}

func TestConfirmSimulatedRespectsContext(t *testing.T) {
	g := NewGateway("http://localhost:0", "", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Confirm(ctx, &Intent{OrderID: "order-1", Simulated: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfirmRealIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123/confirm", r.URL.Path)
		fmt.Fprint(w, `{"id":"pi_123","status":"succeeded"}`)
	}))
	defer srv.Close()

	g := NewGateway(srv.URL, "sk_test", time.Millisecond)
	outcome, err := g.Confirm(context.Background(), &Intent{ID: "pi_123", OrderID: "order-1"})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentOutcomeSucceeded, outcome.Status)
	assert.Equal(t, "pi_123", outcome.TxID)
}

func TestSimulatedTxIDDeterministic(t *testing.T) {
	a := SimulatedTxID("order-1")
	b := SimulatedTxID("order-1")
	c := SimulatedTxID("order-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^SIM-[0-9A-F]{8}$`, a)
}
