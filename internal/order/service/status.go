package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fedotovn/placeorder/internal/apperror"
	"github.com/fedotovn/placeorder/internal/order/domain"
	"github.com/fedotovn/placeorder/internal/order/repository"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

func (s *OrderService) GetOrder(ctx context.Context, userID string, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, userID, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.ListOrdersByUserID(ctx, userID)
}

// TransitionStatus applies the lifecycle state machine and persists the
// transition conditioned on the status not having moved since it was read.
// Who may request which transition is the caller's policy, not enforced here.
func (s *OrderService) TransitionStatus(ctx context.Context, userID string, orderID uuid.UUID, next domain.Status) (*domain.Order, error) {
	if !next.Valid() {
		return nil, apperror.New(apperror.KindValidation, fmt.Sprintf("unknown order status %q", next))
	}

	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateTransition(order.Status, next); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, err.Error(), err)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, order.Status, next); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperror.Wrap(apperror.KindConflict, "order status changed concurrently", err)
		}
		return nil, fmt.Errorf("persist status transition: %w", err)
	}

	log.WithFields(log.Fields{
		"order_id": orderID,
		"from":     order.Status,
		"to":       next,
	}).Info("order status transitioned")

	order.Status = next
	return order, nil
}
