package service

import (
	"context"
	"errors"

	"merch-service/internal/models"
	"merch-service/internal/util"

	"go.uber.org/zap"
)

// PickupVerifier performs single-use redemption of pickup credentials. A
// token wins the PENDING_PICKUP -> PICKED_UP transition at most once; every
// retry afterwards deterministically reports ErrAlreadyRedeemed.
type PickupVerifier struct {
	orders    OrderStore
	publisher LifecyclePublisher
	logger    *zap.Logger
}

// NewPickupVerifier creates a new pickup verifier
func NewPickupVerifier(orders OrderStore, publisher LifecyclePublisher) *PickupVerifier {
	return &PickupVerifier{
		orders:    orders,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Redeem validates a scanned credential against its order and marks the
// order picked up. Failures split into ErrCredentialUnknown,
// ErrAlreadyRedeemed and ErrWrongState so staff can act on the reason.
func (pv *PickupVerifier) Redeem(ctx context.Context, token string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PickupVerifier.Redeem")
	defer span.End()

	if token == "" {
		return nil, models.ErrCredentialUnknown
	}

	order, err := pv.orders.RedeemCredential(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCredentialUnknown):
			util.RedemptionsFailedTotal.WithLabelValues("not_found").Inc()
		case errors.Is(err, models.ErrAlreadyRedeemed):
			util.RedemptionsFailedTotal.WithLabelValues("already_redeemed").Inc()
		case errors.Is(err, models.ErrWrongState):
			util.RedemptionsFailedTotal.WithLabelValues("wrong_state").Inc()
		}
		return nil, err
	}

	util.RedemptionsTotal.Inc()
	util.OrdersPickedUpTotal.Inc()
	pv.logger.Info("Pickup credential redeemed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	if pv.publisher != nil {
		event := &models.OrderPickedUpEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderPickedUp),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
		}
		if err := pv.publisher.PublishOrderPickedUp(ctx, event); err != nil {
			pv.logger.Error("Failed to publish OrderPickedUp event", zap.Error(err))
		}
	}

	return order, nil
}
