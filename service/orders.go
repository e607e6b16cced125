package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/models"
	"cafe-pos/statemachine"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type CreateOrderInput struct {
	// SessionID is optional; without it the cashier's open session is used.
	SessionID     *uint
	CashierID     uint
	TableID       *uint
	OrderType     models.OrderType
	CustomerName  string
	CustomerPhone string
	Notes         string
	ActorID       *uint
}

type LineInput struct {
	ProductID uint
	VariantID *uint
	Quantity  int
	Notes     string
}

// LinePatch holds the fields updateLine may change; nil means unchanged.
type LinePatch struct {
	Quantity *int
	Notes    *string
}

type OrderFilter struct {
	Status    models.OrderStatus
	OrderType models.OrderType
	SessionID uint
	TableID   uint
	Search    string
	Limit     int
	Offset    int
}

// CreateOrder opens a draft under a session. A bound table is occupied
// as part of the same transaction.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if in.OrderType == "" {
		in.OrderType = models.OrderDineIn
	}
	if !in.OrderType.Valid() {
		return nil, invalidField("order_type", "must be dine_in or takeaway")
	}

	var orderID uint
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		session, err := resolveSessionTx(tx, in.SessionID, in.CashierID)
		if err != nil {
			return err
		}
		o, err := s.createOrderTx(tx, session, in)
		if err != nil {
			return err
		}
		orderID = o.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated()
	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order.create", logger.RequestID(ctx), "order created",
		slog.String("order_number", o.OrderNumber), slog.Uint64("session_id", uint64(o.SessionID)))
	return o, nil
}

func resolveSessionTx(tx *gorm.DB, sessionID *uint, cashierID uint) (*models.POSSession, error) {
	var session models.POSSession
	if sessionID != nil {
		if err := tx.First(&session, *sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("session", *sessionID)
			}
			return nil, err
		}
		if session.Status != models.SessionOpen {
			return nil, withMessage(ErrNoActiveSession, "session %s is closed", session.SessionNumber)
		}
		return &session, nil
	}

	err := tx.Where("cashier_id = ? AND status = ?", cashierID, models.SessionOpen).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, withMessage(ErrNoActiveSession, "no open session found; open a session first")
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) createOrderTx(tx *gorm.DB, session *models.POSSession, in CreateOrderInput) (*models.Order, error) {
	if in.TableID != nil {
		var table models.Table
		if err := tx.First(&table, *in.TableID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("table", *in.TableID)
			}
			return nil, err
		}
	}

	number, err := s.nextOrderNumber(tx)
	if err != nil {
		return nil, err
	}

	o := &models.Order{
		OrderNumber:   number,
		SessionID:     session.ID,
		TableID:       in.TableID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		OrderType:     in.OrderType,
		Status:        models.StatusDraft,
		Notes:         in.Notes,
	}
	if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
		return nil, err
	}
	if err := occupyTable(tx, o); err != nil {
		return nil, err
	}

	err = tx.Create(&models.OrderStatusHistory{
		OrderID:   o.ID,
		ToStatus:  models.StatusDraft,
		ChangedBy: in.ActorID,
		Note:      "Order created",
	}).Error
	return o, err
}

// nextOrderNumber draws ORD-<yyyymmdd>-<4 alnum> until it finds one that is
// not taken. The unique index still guards against a concurrent writer.
func (s *Service) nextOrderNumber(tx *gorm.DB) (string, error) {
	date := s.now().Format("20060102")
	for range s.settings.OrderNumberTries {
		suffix := make([]byte, 4)
		for i := range suffix {
			suffix[i] = orderNumberAlphabet[rand.IntN(len(orderNumberAlphabet))]
		}
		candidate := "ORD-" + date + "-" + string(suffix)

		var n int64
		if err := tx.Model(&models.Order{}).Where("order_number = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique order number after %d attempts", s.settings.OrderNumberTries)
}

// AddLine snapshots the product's price and tax rate onto a new line and
// recomputes the order totals in the same transaction.
func (s *Service) AddLine(ctx context.Context, orderID uint, in LineInput) (*models.OrderLine, *models.Order, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return nil, nil, err
	}

	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	var line *models.OrderLine
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockDraftOrder(tx, orderID)
		if err != nil {
			return err
		}
		if line, err = addLineTx(tx, o, in); err != nil {
			return err
		}
		return recalculateTx(tx, o)
	})
	if err != nil {
		return nil, nil, err
	}

	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	return line, o, err
}

// MaxLineQuantity caps a single line so unit price × quantity stays exact.
const MaxLineQuantity = 1000

func checkQuantity(q int) error {
	if q <= 0 {
		return ErrInvalidQuantity
	}
	if q > MaxLineQuantity {
		return withMessage(ErrInvalidQuantity, "quantity must not exceed %d", MaxLineQuantity)
	}
	return nil
}

func repriceLine(line *models.OrderLine) error {
	if _, ok := line.UnitPrice.MulChecked(line.Quantity); !ok {
		return withMessage(ErrInvalidQuantity, "%d × %s is out of range", line.Quantity, line.UnitPrice)
	}
	line.Reprice()
	return nil
}

func lockDraftOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	o, err := lockOrderRow(tx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusDraft {
		return nil, withMessage(ErrOrderNotDraft, "order %s is %s; lines can only be changed on a draft", o.OrderNumber, o.Status)
	}
	return o, nil
}

func addLineTx(tx *gorm.DB, o *models.Order, in LineInput) (*models.OrderLine, error) {
	var product models.Product
	if err := tx.Where("is_active = ?", true).First(&product, in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("product", in.ProductID)
		}
		return nil, err
	}

	line := &models.OrderLine{
		OrderID:     o.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    in.Quantity,
		UnitPrice:   product.Price,
		TaxRate:     product.TaxRate,
		Status:      models.LinePending,
		Notes:       in.Notes,
	}

	if in.VariantID != nil {
		var variant models.ProductVariant
		err := tx.Where("product_id = ?", product.ID).First(&variant, *in.VariantID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("variant", *in.VariantID)
			}
			return nil, err
		}
		line.VariantID = &variant.ID
		line.VariantName = variant.Name
		line.UnitPrice = product.Price + variant.ExtraPrice
	}

	if err := repriceLine(line); err != nil {
		return nil, err
	}
	if err := tx.Create(line).Error; err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine changes quantity and/or notes of a draft line.
func (s *Service) UpdateLine(ctx context.Context, orderID, lineID uint, patch LinePatch) (*models.OrderLine, *models.Order, error) {
	if patch.Quantity != nil {
		if err := checkQuantity(*patch.Quantity); err != nil {
			return nil, nil, err
		}
	}

	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	var line models.OrderLine
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockDraftOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", orderID).First(&line, lineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("line", lineID)
			}
			return err
		}

		if patch.Quantity != nil {
			line.Quantity = *patch.Quantity
		}
		if patch.Notes != nil {
			line.Notes = *patch.Notes
		}
		if err := repriceLine(&line); err != nil {
			return err
		}
		if err := tx.Save(&line).Error; err != nil {
			return err
		}
		return recalculateTx(tx, o)
	})
	if err != nil {
		return nil, nil, err
	}

	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	return &line, o, err
}

func (s *Service) RemoveLine(ctx context.Context, orderID, lineID uint) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockDraftOrder(tx, orderID)
		if err != nil {
			return err
		}
		res := tx.Where("order_id = ?", orderID).Delete(&models.OrderLine{}, lineID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound("line", lineID)
		}
		return recalculateTx(tx, o)
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// RecalculateTotals recomputes the order's totals from its current lines.
func (s *Service) RecalculateTotals(ctx context.Context, orderID uint) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		return recalculateTx(tx, o)
	})
	if err != nil {
		return nil, err
	}
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// recalculateTx reads the line set inside tx and writes the derived totals.
func recalculateTx(tx *gorm.DB, o *models.Order) error {
	if err := tx.Where("order_id = ?", o.ID).Order("id").Find(&o.Lines).Error; err != nil {
		return err
	}
	o.Recalculate()
	return tx.Model(&models.Order{}).Where("id = ?", o.ID).Updates(map[string]any{
		"subtotal":     o.Subtotal,
		"tax_amount":   o.TaxAmount,
		"total_amount": o.TotalAmount,
	}).Error
}

// SendToKitchen dispatches a draft that has at least one line.
func (s *Service) SendToKitchen(ctx context.Context, orderID uint, actor *uint) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusDraft {
			return withMessage(ErrInvalidStatus, "order %s is %s; only drafts can be sent to the kitchen", o.OrderNumber, o.Status)
		}
		var lines int64
		if err := tx.Model(&models.OrderLine{}).Where("order_id = ?", o.ID).Count(&lines).Error; err != nil {
			return err
		}
		if lines == 0 {
			return withMessage(ErrEmptyOrder, "order %s has no lines", o.OrderNumber)
		}
		return transitionTx(tx, o, models.StatusSentToKitchen, statemachine.TriggerSendToKitchen, actor, "Sent to kitchen")
	})
	if err != nil {
		return nil, err
	}

	s.publishOrder(ctx, orderID, kitchen.ActionOrderCreated)
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// Cancel stops an open order. The table stays occupied until staff clear
// it with SetTableStatus.
func (s *Service) Cancel(ctx context.Context, orderID uint, actor *uint, reason string) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	note := "Cancelled"
	if reason != "" {
		note = "Cancelled: " + reason
	}
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		return transitionTx(tx, o, models.StatusCancelled, statemachine.TriggerCancel, actor, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order.cancel", logger.RequestID(ctx), "order cancelled", slog.Uint64("order_id", uint64(orderID)))
	return loadOrder(s.db.WithContext(ctx), orderID)
}

// Close completes a dispatched order without consulting the ledger.
func (s *Service) Close(ctx context.Context, orderID uint, actor *uint) (*models.Order, error) {
	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		return s.completeTx(tx, o, statemachine.TriggerClose, actor, "Closed manually")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCompleted("close")
	s.publishOrder(ctx, orderID, kitchen.ActionOrderCompleted)
	return loadOrder(s.db.WithContext(ctx), orderID)
}

func (s *Service) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Preload("Lines", linesByID).
		Preload("Table").
		Preload("StatusHistory", linesByID).
		First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("order", id)
		}
		return nil, err
	}
	return &o, nil
}

// ListOrders returns newest first with the total count before paging.
func (s *Service) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.OrderType != "" {
		q = q.Where("order_type = ?", f.OrderType)
	}
	if f.SessionID != 0 {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.TableID != 0 {
		q = q.Where("table_id = ?", f.TableID)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(order_number) LIKE ? OR LOWER(customer_name) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	var orders []models.Order
	err := q.Preload("Lines", linesByID).Preload("Table").
		Order("created_at desc, id desc").
		Limit(f.Limit).Offset(f.Offset).
		Find(&orders).Error
	return orders, total, err
}
