// Package engine routes validated orders to the correct broker session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stratagem/internal/account"
	"stratagem/internal/broker"
	"stratagem/internal/domain"
	"stratagem/internal/txlog"
)

// ErrInvalidOrder marks an order rejected before any broker call.
var ErrInvalidOrder = errors.New("invalid order")

// ErrBrokerRejected wraps a broker-side failure. The dispatcher never
// retries; the caller decides whether to surface or log only.
var ErrBrokerRejected = errors.New("broker rejected order")

// Dispatcher validates orders and submits them through the account's
// side-matching session. Every attempt, success or failure, produces
// exactly one transaction-log entry.
type Dispatcher struct {
	registry *account.Registry
	txlog    *txlog.Log
	log      *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given account registry.
func NewDispatcher(registry *account.Registry, tl *txlog.Log, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		txlog:    tl,
		log:      logger.With("component", "dispatcher"),
	}
}

// Place validates the request and submits it as an intraday NSE order.
func (d *Dispatcher) Place(ctx context.Context, req domain.OrderRequest) (string, error) {
	desc := describe(req)

	if err := validate(req); err != nil {
		d.txlog.Append("Order rejected: %s: %v", desc, err)
		return "", err
	}

	session, err := d.registry.SessionFor(req.AccountID, req.Action)
	if err != nil {
		d.txlog.Append("Order rejected: %s: %v", desc, err)
		return "", fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	id, err := session.PlaceOrder(ctx, broker.OrderParams{
		Exchange:   domain.DefaultExchange,
		Symbol:     req.Symbol,
		Action:     req.Action,
		Quantity:   req.Quantity,
		OrderType:  req.OrderType,
		Product:    domain.DefaultProduct,
		Variety:    domain.DefaultVariety,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		d.txlog.Append("Order failed: %s: %v", desc, err)
		return "", fmt.Errorf("%w: %v", ErrBrokerRejected, err)
	}

	d.txlog.Append("Order placed: %s, id %s", desc, id)
	d.log.Info("order placed", "account", req.AccountID, "symbol", req.Symbol, "action", string(req.Action), "id", id)
	return id, nil
}

func validate(req domain.OrderRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, req.Quantity)
	}
	if req.OrderType == domain.OrderTypeLimit && req.LimitPrice <= 0 {
		return fmt.Errorf("%w: limit price must be positive, got %v", ErrInvalidOrder, req.LimitPrice)
	}
	return nil
}

// describe renders one order attempt for the transaction log.
func describe(req domain.OrderRequest) string {
	desc := fmt.Sprintf("%s %d %s %s on %s", req.Action, req.Quantity, req.Symbol, req.OrderType, req.AccountID)
	if req.Tag != "" {
		desc += " by strategy " + req.Tag
	}
	return desc
}
