package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cafe-pos/gateway"
	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/models"
	"cafe-pos/money"
	"cafe-pos/statemachine"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VerifyInput struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyResult is returned for both a fresh settlement and an idempotent
// retry; Duplicate tells them apart.
type VerifyResult struct {
	Order     *models.Order   `json:"order"`
	Payment   *models.Payment `json:"payment"`
	Duplicate bool            `json:"duplicate"`
}

// PaymentQR is a pay-to-collect request for an order's total.
type PaymentQR struct {
	OrderID uint         `json:"order_id"`
	URI     string       `json:"upi_uri"`
	Amount  money.Amount `json:"amount"`
	PNG     []byte       `json:"-"`
}

var errDuplicateTransaction = errors.New("transaction id already recorded")

// CreateGatewayOrder opens a checkout with the external gateway for the
// order total and stores the correlation id on the order. The gateway is
// called outside any transaction.
func (s *Service) CreateGatewayOrder(ctx context.Context, orderID uint, amount *money.Amount) (*gateway.CheckoutOrder, error) {
	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, withMessage(ErrOrderNotPayable, "order %s is %s", o.OrderNumber, o.Status)
	}
	if amount != nil && *amount != o.TotalAmount {
		return nil, invalidField("amount", "must equal the order total "+o.TotalAmount.String())
	}
	if o.GatewayOrderID != nil {
		return nil, withMessage(ErrCheckoutExists, "order %s already has gateway order %s", o.OrderNumber, *o.GatewayOrderID)
	}

	checkout, err := s.openCheckout(ctx, o)
	if err != nil {
		return nil, err
	}
	if err := s.attachCheckout(ctx, o.ID, checkout.ID); err != nil {
		return nil, err
	}
	return checkout, nil
}

func (s *Service) openCheckout(ctx context.Context, o *models.Order) (*gateway.CheckoutOrder, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}
	if !o.TotalAmount.IsPositive() {
		return nil, withMessage(ErrEmptyOrder, "order %s has nothing to pay", o.OrderNumber)
	}
	checkout, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   o.TotalAmount,
		Currency: s.settings.Currency,
		Receipt:  o.OrderNumber,
	})
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		return nil, ErrGatewayNotConfigured
	case err != nil:
		s.log.Error("payment.gateway_order", logger.RequestID(ctx), "gateway order creation failed", err,
			slog.String("order_number", o.OrderNumber))
		return nil, wrap(ErrGatewayUnavailable, err)
	}
	return checkout, nil
}

func (s *Service) attachCheckout(ctx context.Context, orderID uint, gatewayOrderID string) error {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	return s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("gateway_order_id", gatewayOrderID).Error
}

// VerifyGatewayPayment checks the gateway's signature and credits the
// order. The transaction id is the idempotency key: a second call with the
// same payment id changes nothing and reports Duplicate.
func (s *Service) VerifyGatewayPayment(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	fields := map[string]string{}
	if strings.TrimSpace(in.GatewayOrderID) == "" {
		fields["gateway_order_id"] = "is required"
	}
	if strings.TrimSpace(in.GatewayPaymentID) == "" {
		fields["gateway_payment_id"] = "is required"
	}
	if strings.TrimSpace(in.Signature) == "" {
		fields["signature"] = "is required"
	}
	if len(fields) > 0 {
		return nil, invalid(fields)
	}

	if err := s.verifier.Verify(in.GatewayOrderID, in.GatewayPaymentID, in.Signature); err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return nil, ErrGatewayNotConfigured
		}
		s.log.Warn("security.signature_mismatch", logger.RequestID(ctx), "payment signature verification failed",
			slog.String("gateway_order_id", in.GatewayOrderID),
			slog.String("gateway_payment_id", in.GatewayPaymentID))
		return nil, ErrInvalidSignature
	}

	var ref models.Order
	err := s.db.WithContext(ctx).Select("id").Where("gateway_order_id = ?", in.GatewayOrderID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, withMessage(ErrNotFound, "no order for gateway order %s", in.GatewayOrderID)
	}
	if err != nil {
		return nil, err
	}

	unlock := s.orderLocks.Lock(orderKey(ref.ID))
	defer unlock()

	var (
		payment models.Payment
		method  models.PaymentMethod
		st      settlement
	)
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, ref.ID)
		if err != nil {
			return err
		}

		err = tx.Where("transaction_id = ?", in.GatewayPaymentID).First(&payment).Error
		if err == nil {
			return errDuplicateTransaction
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if o.Status == models.StatusCancelled {
			return withMessage(ErrOrderNotPayable, "order %s is cancelled", o.OrderNumber)
		}

		if err := tx.Where("code = ?", s.settings.GatewayMethodCode).First(&method).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return withMessage(ErrGatewayNotConfigured, "payment method %q is not set up", s.settings.GatewayMethodCode)
			}
			return err
		}

		upi, err := cashierUPI(tx, o.SessionID)
		if err != nil {
			return err
		}
		txnID := in.GatewayPaymentID
		payment = models.Payment{
			OrderID:         o.ID,
			PaymentMethodID: method.ID,
			Amount:          o.TotalAmount,
			CashierUPI:      upi,
			TransactionID:   &txnID,
			Status:          models.PaymentCompleted,
			PaidAt:          s.now(),
		}
		if err := tx.Omit(clause.Associations).Create(&payment).Error; err != nil {
			if isUniqueViolation(err) {
				return errDuplicateTransaction
			}
			return err
		}

		paymentID, signature := in.GatewayPaymentID, in.Signature
		if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
			"gateway_payment_id": &paymentID,
			"gateway_signature":  &signature,
		}).Error; err != nil {
			return err
		}

		// A completed order has already released its table; a late
		// callback is recorded on the ledger only.
		if o.Status.Terminal() {
			return nil
		}

		// Payment confirms the guest is staying.
		if err := occupyTable(tx, o); err != nil {
			return err
		}

		if o.Status == models.StatusDraft {
			if err := transitionTx(tx, o, models.StatusSentToKitchen, statemachine.TriggerGatewayPayment, nil, "Gateway payment verified"); err != nil {
				return err
			}
			st.actions = append(st.actions, kitchen.ActionOrderCreated)
		}

		done, err := s.settleTx(tx, o, nil)
		if err != nil {
			return err
		}
		st.actions = append(st.actions, done.actions...)
		st.completed = done.completed
		return nil
	})

	if errors.Is(err, errDuplicateTransaction) {
		s.log.Info("payment.verify", logger.RequestID(ctx), "duplicate gateway payment ignored",
			slog.String("gateway_payment_id", in.GatewayPaymentID))
		o, lerr := loadOrder(s.db.WithContext(ctx), ref.ID)
		if lerr != nil {
			return nil, lerr
		}
		var existing models.Payment
		if lerr := s.db.WithContext(ctx).Where("transaction_id = ?", in.GatewayPaymentID).First(&existing).Error; lerr != nil {
			return nil, lerr
		}
		return &VerifyResult{Order: o, Payment: &existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(string(method.Type))
	s.afterSettle(ctx, ref.ID, st)

	o, err := loadOrder(s.db.WithContext(ctx), ref.ID)
	if err != nil {
		return nil, err
	}
	payment.PaymentMethod = &method
	return &VerifyResult{Order: o, Payment: &payment}, nil
}

// PaymentQR builds a UPI collect request payable to the order's cashier.
func (s *Service) PaymentQR(ctx context.Context, orderID uint, size int) (*PaymentQR, error) {
	var o models.Order
	err := s.db.WithContext(ctx).Preload("Session.Cashier").First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("order", orderID)
	}
	if err != nil {
		return nil, err
	}
	if o.Status == models.StatusCancelled {
		return nil, withMessage(ErrOrderNotPayable, "order %s is cancelled", o.OrderNumber)
	}

	var vpa string
	if o.Session != nil && o.Session.Cashier != nil {
		vpa = o.Session.Cashier.UPIID
	}
	req := gateway.UPIRequest{
		PayeeVPA:  vpa,
		PayeeName: s.settings.PayeeName,
		Amount:    o.TotalAmount,
		Currency:  s.settings.Currency,
		Note:      o.OrderNumber,
	}
	uri, err := req.URI()
	if errors.Is(err, gateway.ErrNoPayee) {
		return nil, ErrUPINotConfigured
	}
	if err != nil {
		return nil, err
	}
	png, err := req.QRCode(size)
	if err != nil {
		return nil, err
	}
	return &PaymentQR{OrderID: o.ID, URI: uri, Amount: o.TotalAmount, PNG: png}, nil
}
