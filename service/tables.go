package service

import (
	"errors"
	"time"

	"cafe-pos/models"
	"cafe-pos/statemachine"

	"gorm.io/gorm"
)

// transitionTx moves o to status via trigger and records the history row.
func transitionTx(tx *gorm.DB, o *models.Order, to models.OrderStatus, trigger statemachine.Trigger, actor *uint, note string) error {
	if err := statemachine.CanTransition(o.Status, to, trigger); err != nil {
		return wrap(withMessage(ErrInvalidStatus, "order %s is %s", o.OrderNumber, o.Status), err)
	}

	from := o.Status
	if err := tx.Model(&models.Order{}).Where("id = ?", o.ID).Update("status", to).Error; err != nil {
		return err
	}
	o.Status = to

	return tx.Create(&models.OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  actor,
		Note:       note,
	}).Error
}

func setTableStatus(tx *gorm.DB, tableID *uint, status models.TableStatus) error {
	if tableID == nil {
		return nil
	}
	return tx.Model(&models.Table{}).Where("id = ?", *tableID).Update("status", status).Error
}

// occupyTable marks the order's table occupied.
func occupyTable(tx *gorm.DB, o *models.Order) error {
	return setTableStatus(tx, o.TableID, models.TableOccupied)
}

// freeTable returns the order's table to available.
func freeTable(tx *gorm.DB, o *models.Order) error {
	return setTableStatus(tx, o.TableID, models.TableAvailable)
}

// completeTx performs every side effect of an order reaching completed:
// the transition, table release, session aggregate refresh and the receipt.
// Callers hold the order lock and have checked the order is not completed.
func (s *Service) completeTx(tx *gorm.DB, o *models.Order, trigger statemachine.Trigger, actor *uint, note string) error {
	if err := transitionTx(tx, o, models.StatusCompleted, trigger, actor, note); err != nil {
		return err
	}
	if err := freeTable(tx, o); err != nil {
		return err
	}
	if err := refreshSessionAggregateTx(tx, o.SessionID); err != nil {
		return err
	}
	return issueReceiptTx(tx, o, s.now())
}

func issueReceiptTx(tx *gorm.DB, o *models.Order, at time.Time) error {
	var existing models.Receipt
	err := tx.Where("order_id = ?", o.ID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return tx.Omit("Order").Create(&models.Receipt{
		OrderID:       o.ID,
		ReceiptNumber: "RCPT-" + o.OrderNumber,
		IssuedAt:      at,
	}).Error
}
