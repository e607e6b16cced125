package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/models"
	"cafe-pos/money"
	"cafe-pos/statemachine"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentInput struct {
	PaymentMethodID uint
	Amount          money.Amount
}

// PaymentResult reports what one ledger call appended and where the order
// ended up.
type PaymentResult struct {
	OrderID    uint               `json:"order_id"`
	TotalPaid  money.Amount       `json:"total_paid"`
	AmountPaid money.Amount       `json:"amount_paid"`
	Status     models.OrderStatus `json:"status"`
	ReceiptID  *uint              `json:"receipt_id"`
	Payments   []models.Payment   `json:"payments"`
	Order      *models.Order      `json:"order"`
}

// settlement collects what settleTx did so events and counters can be
// emitted after commit.
type settlement struct {
	actions   []kitchen.Action
	completed bool
}

// RecordPayments appends every payment and settles once, all in one
// transaction. Split and over-payments are legal.
func (s *Service) RecordPayments(ctx context.Context, orderID uint, payments []PaymentInput, actor *uint) (*PaymentResult, error) {
	if len(payments) == 0 {
		return nil, invalidField("payments", "at least one payment is required")
	}
	for i, p := range payments {
		if !p.Amount.IsPositive() {
			return nil, invalidField(fmt.Sprintf("payments[%d].amount", i), "must be greater than zero")
		}
		if p.PaymentMethodID == 0 {
			return nil, invalidField(fmt.Sprintf("payments[%d].payment_method_id", i), "is required")
		}
	}

	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	var (
		created []models.Payment
		methods []string
		st      settlement
	)
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == models.StatusCancelled {
			return withMessage(ErrOrderNotPayable, "order %s is cancelled", o.OrderNumber)
		}

		upi, err := cashierUPI(tx, o.SessionID)
		if err != nil {
			return err
		}

		for _, p := range payments {
			var method models.PaymentMethod
			if err := tx.Where("is_active = ?", true).First(&method, p.PaymentMethodID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("payment method", p.PaymentMethodID)
				}
				return err
			}
			payment := models.Payment{
				OrderID:         o.ID,
				PaymentMethodID: method.ID,
				Amount:          p.Amount,
				CashierUPI:      upi,
				Status:          models.PaymentCompleted,
				PaidAt:          s.now(),
			}
			if err := tx.Omit(clause.Associations).Create(&payment).Error; err != nil {
				return err
			}
			payment.PaymentMethod = &method
			created = append(created, payment)
			methods = append(methods, string(method.Type))
		}

		st, err = s.settleTx(tx, o, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, m := range methods {
		s.metrics.PaymentRecorded(m)
	}
	s.afterSettle(ctx, orderID, st)
	return s.paymentResult(ctx, orderID, created)
}

// RecordPayment appends a single payment and settles.
func (s *Service) RecordPayment(ctx context.Context, orderID, methodID uint, amount money.Amount, actor *uint) (*PaymentResult, error) {
	return s.RecordPayments(ctx, orderID, []PaymentInput{{PaymentMethodID: methodID, Amount: amount}}, actor)
}

// Settle re-runs the paid-in-full check without appending anything.
func (s *Service) Settle(ctx context.Context, orderID uint) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	var st settlement
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		st, err = s.settleTx(tx, o, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterSettle(ctx, orderID, st)
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// settleTx completes o when its completed payments cover total_amount. A
// paid draft is dispatched first so every hop stays a legal transition; a
// draft with no lines never completes this way.
func (s *Service) settleTx(tx *gorm.DB, o *models.Order, actor *uint) (settlement, error) {
	var st settlement
	if o.Status.Terminal() {
		return st, nil
	}

	paid, err := paidTx(tx, o.ID)
	if err != nil {
		return st, err
	}
	if paid < o.TotalAmount {
		return st, nil
	}

	if o.Status == models.StatusDraft {
		var lines int64
		if err := tx.Model(&models.OrderLine{}).Where("order_id = ?", o.ID).Count(&lines).Error; err != nil {
			return st, err
		}
		if lines == 0 {
			return st, nil
		}
		if err := transitionTx(tx, o, models.StatusSentToKitchen, statemachine.TriggerSettle, actor, "Paid in full"); err != nil {
			return st, err
		}
		st.actions = append(st.actions, kitchen.ActionOrderCreated)
	}

	if err := s.completeTx(tx, o, statemachine.TriggerSettle, actor, "Paid in full"); err != nil {
		return st, err
	}
	st.actions = append(st.actions, kitchen.ActionOrderCompleted)
	st.completed = true
	return st, nil
}

func paidTx(tx *gorm.DB, orderID uint) (money.Amount, error) {
	var sum int64
	err := tx.Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND status = ?", orderID, models.PaymentCompleted).
		Scan(&sum).Error
	return money.FromMinor(sum), err
}

func cashierUPI(tx *gorm.DB, sessionID uint) (string, error) {
	var session models.POSSession
	if err := tx.Preload("Cashier").First(&session, sessionID).Error; err != nil {
		return "", err
	}
	if session.Cashier == nil {
		return "", nil
	}
	return session.Cashier.UPIID, nil
}

func (s *Service) afterSettle(ctx context.Context, orderID uint, st settlement) {
	if st.completed {
		s.metrics.OrderCompleted("ledger")
		s.log.Info("order.settle", logger.RequestID(ctx), "order paid in full", slog.Uint64("order_id", uint64(orderID)))
	}
	s.publishOrder(ctx, orderID, st.actions...)
}

func (s *Service) paymentResult(ctx context.Context, orderID uint, created []models.Payment) (*PaymentResult, error) {
	db := s.db.WithContext(ctx)
	o, err := loadOrder(db, orderID)
	if err != nil {
		return nil, err
	}
	paid, err := paidTx(db, orderID)
	if err != nil {
		return nil, err
	}

	res := &PaymentResult{
		OrderID:    orderID,
		TotalPaid:  money.Sum(amounts(created)...),
		AmountPaid: paid,
		Status:     o.Status,
		Payments:   created,
		Order:      o,
	}
	var receipt models.Receipt
	if err := db.Where("order_id = ?", orderID).First(&receipt).Error; err == nil {
		res.ReceiptID = &receipt.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return res, nil
}

func amounts(ps []models.Payment) []money.Amount {
	out := make([]money.Amount, len(ps))
	for i, p := range ps {
		out[i] = p.Amount
	}
	return out
}

// OrderPayments lists the ledger for one order, oldest first.
func (s *Service) OrderPayments(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).Preload("PaymentMethod").
		Where("order_id = ?", orderID).Order("id").Find(&payments).Error
	return payments, err
}
