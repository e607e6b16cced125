package service

import (
	"context"
	"errors"

	"cafe-pos/kitchen"
	"cafe-pos/models"
	"cafe-pos/statemachine"

	"gorm.io/gorm"
)

type KitchenUpdate struct {
	LineID    *uint
	Status    models.LineStatus
	UpdateAll bool
}

// KitchenQueue is what a display loads on connect: every dispatched order
// that still has something to serve, oldest first.
func (s *Service) KitchenQueue(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Lines", linesByID).
		Preload("Table").
		Where("status = ? OR (status = ? AND EXISTS (SELECT 1 FROM order_lines WHERE order_lines.order_id = orders.id AND order_lines.status <> ?))",
			models.StatusSentToKitchen, models.StatusCompleted, models.LineServed).
		Order("created_at, id").
		Find(&orders).Error
	return orders, err
}

// UpdateKitchenStatus sets one line, or every line with UpdateAll, and
// always broadcasts the result.
func (s *Service) UpdateKitchenStatus(ctx context.Context, orderID uint, in KitchenUpdate) (*models.Order, error) {
	if !statemachine.ValidLineStatus(in.Status) {
		return nil, invalidField("status", "must be one of pending, preparing, ready, served")
	}
	if !in.UpdateAll && in.LineID == nil {
		return nil, invalidField("line_id", "is required unless update_all is set")
	}

	unlock := s.orderLocks.Lock(orderKey(orderID))
	defer unlock()

	var line models.OrderLine
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		o, err := lockOrderRow(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusSentToKitchen && o.Status != models.StatusCompleted {
			return withMessage(ErrInvalidStatus, "order %s is %s; only dispatched orders are prepared", o.OrderNumber, o.Status)
		}

		if in.UpdateAll {
			return tx.Model(&models.OrderLine{}).Where("order_id = ?", orderID).Update("status", in.Status).Error
		}

		if err := tx.Where("order_id = ?", orderID).First(&line, *in.LineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("line", *in.LineID)
			}
			return err
		}
		line.Status = in.Status
		return tx.Model(&line).Update("status", in.Status).Error
	})
	if err != nil {
		return nil, err
	}

	o, err := loadOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return nil, err
	}
	if in.UpdateAll {
		s.kitchen.Publish(kitchen.BulkStatusChanged(o, in.Status))
	} else {
		for i := range o.Lines {
			if o.Lines[i].ID == line.ID {
				s.kitchen.Publish(kitchen.LineStatusChanged(&o.Lines[i]))
				break
			}
		}
	}
	return o, nil
}
