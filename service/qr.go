package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cafe-pos/gateway"
	"cafe-pos/logger"
	"cafe-pos/models"

	"gorm.io/gorm"
)

type QROrderInput struct {
	TableToken    string
	CustomerName  string
	CustomerPhone string
	Notes         string
	Lines         []LineInput
	// Checkout asks for a gateway correlation id along with the order.
	Checkout bool
}

// QROrderResult always carries the persisted order. When the checkout step
// fails the order is kept and PaymentError says why.
type QROrderResult struct {
	Order        *models.Order          `json:"order"`
	Checkout     *gateway.CheckoutOrder `json:"checkout,omitempty"`
	PaymentError string                 `json:"payment_error,omitempty"`
}

// PlaceQROrder creates a self-service draft for the table holding token.
// The table must sit on a floor held by an open session.
func (s *Service) PlaceQROrder(ctx context.Context, in QROrderInput) (*QROrderResult, error) {
	token := strings.TrimSpace(in.TableToken)
	if token == "" {
		return nil, invalidField("table_token", "is required")
	}
	if len(in.Lines) == 0 {
		return nil, invalidField("lines", "at least one line is required")
	}
	for i, l := range in.Lines {
		if err := checkQuantity(l.Quantity); err != nil {
			return nil, withMessage(ErrInvalidQuantity, "lines[%d]: %s", i, err.Error())
		}
		if l.ProductID == 0 {
			return nil, invalidField(fmt.Sprintf("lines[%d].product_id", i), "is required")
		}
	}

	var orderID uint
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var table models.Table
		err := tx.Where("token = ? AND is_active = ?", token, true).First(&table).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return withMessage(ErrNotFound, "invalid table token")
		}
		if err != nil {
			return err
		}
		if table.FloorID == nil {
			return withMessage(ErrNoActiveSession, "table %s is not on a floor", table.TableNumber)
		}

		var session models.POSSession
		err = tx.Where("floor_id = ? AND status = ?", *table.FloorID, models.SessionOpen).First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return withMessage(ErrNoActiveSession, "ordering is currently unavailable for this table")
		}
		if err != nil {
			return err
		}

		o, err := s.createOrderTx(tx, &session, CreateOrderInput{
			TableID:       &table.ID,
			OrderType:     models.OrderDineIn,
			CustomerName:  in.CustomerName,
			CustomerPhone: in.CustomerPhone,
			Notes:         in.Notes,
		})
		if err != nil {
			return err
		}
		for _, l := range in.Lines {
			if _, err := addLineTx(tx, o, l); err != nil {
				return err
			}
		}
		orderID = o.ID
		return recalculateTx(tx, o)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated()
	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order.qr", logger.RequestID(ctx), "self-service order placed",
		slog.String("order_number", o.OrderNumber), slog.String("total", o.TotalAmount.String()))

	res := &QROrderResult{Order: o}
	if !in.Checkout {
		return res, nil
	}

	checkout, err := s.openCheckout(ctx, o)
	if err == nil {
		err = s.attachCheckout(ctx, o.ID, checkout.ID)
	}
	if err != nil {
		// The order stays; only the payment step is degraded.
		res.PaymentError = err.Error()
		s.log.Warn("order.qr", logger.RequestID(ctx), "order placed without checkout",
			slog.String("order_number", o.OrderNumber), slog.String("reason", err.Error()))
		return res, nil
	}
	res.Checkout = checkout
	if res.Order, err = loadOrder(s.db.WithContext(ctx), orderID); err != nil {
		return nil, err
	}
	return res, nil
}
