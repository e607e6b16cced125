package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cafe-pos/logger"
	"cafe-pos/models"
	"cafe-pos/money"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OpenSessionInput struct {
	CashierID    uint
	FloorID      *uint
	StartingCash money.Amount
	Notes        string
}

type CloseSessionInput struct {
	ClosingCash *money.Amount
	Notes       string
}

var errSessionRace = errors.New("open session inserted concurrently")

// OpenSession starts a shift. A cashier holds at most one open session and
// a floor is held by at most one open session. The check and the insert
// run under the cashier and floor locks, and the partial unique indexes
// on pos_sessions catch writers outside this process.
func (s *Service) OpenSession(ctx context.Context, in OpenSessionInput) (*models.POSSession, error) {
	if in.StartingCash.IsNegative() {
		return nil, invalidField("starting_cash", "must not be negative")
	}

	// Always cashier first, then floor.
	unlockCashier := s.sessionLocks.Lock(cashierKey(in.CashierID))
	defer unlockCashier()
	if in.FloorID != nil {
		unlockFloor := s.sessionLocks.Lock(floorKey(*in.FloorID))
		defer unlockFloor()
	}

	var session *models.POSSession
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var cashier models.User
		if err := tx.First(&cashier, in.CashierID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("cashier", in.CashierID)
			}
			return err
		}

		if err := checkCashierFree(tx, in.CashierID); err != nil {
			return err
		}
		if in.FloorID != nil {
			var floor models.Floor
			if err := tx.First(&floor, *in.FloorID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("floor", *in.FloorID)
				}
				return err
			}
			if err := checkFloorFree(tx, *in.FloorID); err != nil {
				return err
			}
		}

		number, err := s.nextSessionNumber(tx, in.CashierID)
		if err != nil {
			return err
		}
		session = &models.POSSession{
			SessionNumber: number,
			CashierID:     in.CashierID,
			FloorID:       in.FloorID,
			Status:        models.SessionOpen,
			StartTime:     s.now(),
			StartingCash:  in.StartingCash,
			Notes:         in.Notes,
		}
		if err := tx.Omit(clause.Associations).Create(session).Error; err != nil {
			if isUniqueViolation(err) {
				return errSessionRace
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errSessionRace) {
		return nil, s.explainSessionConflict(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("session.open", logger.RequestID(ctx), "session opened",
		slog.String("session_number", session.SessionNumber), slog.Uint64("cashier_id", uint64(in.CashierID)))
	return s.GetSession(ctx, session.ID)
}

func checkCashierFree(tx *gorm.DB, cashierID uint) error {
	var existing models.POSSession
	err := tx.Where("cashier_id = ? AND status = ?", cashierID, models.SessionOpen).First(&existing).Error
	if err == nil {
		return withMessage(ErrSessionAlreadyOpen, "cashier already has open session %s", existing.SessionNumber)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func checkFloorFree(tx *gorm.DB, floorID uint) error {
	var holder models.POSSession
	err := tx.Preload("Cashier").Where("floor_id = ? AND status = ?", floorID, models.SessionOpen).First(&holder).Error
	if err == nil {
		name := "another cashier"
		if holder.Cashier != nil {
			name = holder.Cashier.Name
		}
		return withMessage(ErrFloorOccupied, "floor is already occupied by %s", name)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// explainSessionConflict runs after a unique-index rejection, once the
// failed transaction is gone, to report which rule was hit.
func (s *Service) explainSessionConflict(ctx context.Context, in OpenSessionInput) error {
	db := s.db.WithContext(ctx)
	if err := checkCashierFree(db, in.CashierID); err != nil {
		return err
	}
	if in.FloorID != nil {
		if err := checkFloorFree(db, *in.FloorID); err != nil {
			return err
		}
	}
	return ErrFloorOccupied
}

// nextSessionNumber is SESS-<yyyymmddhhmmss>-<cashier>, suffixed -2, -3 ...
// when a cashier opens twice within a second.
func (s *Service) nextSessionNumber(tx *gorm.DB, cashierID uint) (string, error) {
	base := fmt.Sprintf("SESS-%s-%d", s.now().Format("20060102150405"), cashierID)
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := tx.Model(&models.POSSession{}).Where("session_number = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// CloseSession ends the shift, freezing its aggregates and reconciling
// the drawer against the cash taken on completed orders.
func (s *Service) CloseSession(ctx context.Context, sessionID uint, in CloseSessionInput) (*models.POSSession, error) {
	if in.ClosingCash != nil && in.ClosingCash.IsNegative() {
		return nil, invalidField("closing_cash", "must not be negative")
	}

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		var session models.POSSession
		if err := forUpdate(tx).First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("session", sessionID)
			}
			return err
		}
		if session.Status == models.SessionClosed {
			return withMessage(ErrSessionAlreadyClosed, "session %s is already closed", session.SessionNumber)
		}

		if err := refreshSessionAggregateTx(tx, sessionID); err != nil {
			return err
		}

		var cashTaken int64
		err := tx.Table("payments").
			Joins("JOIN payment_methods ON payment_methods.id = payments.payment_method_id").
			Joins("JOIN orders ON orders.id = payments.order_id").
			Where("orders.session_id = ? AND orders.status = ?", sessionID, models.StatusCompleted).
			Where("payments.status = ? AND payment_methods.type = ?", models.PaymentCompleted, models.MethodCash).
			Select("COALESCE(SUM(payments.amount), 0)").
			Scan(&cashTaken).Error
		if err != nil {
			return err
		}

		end := s.now()
		updates := map[string]any{
			"status":   models.SessionClosed,
			"end_time": &end,
		}
		if in.Notes != "" {
			updates["notes"] = in.Notes
		}
		if in.ClosingCash != nil {
			expected := session.StartingCash + money.FromMinor(cashTaken)
			variance := *in.ClosingCash - expected
			updates["closing_cash"] = *in.ClosingCash
			updates["expected_cash"] = expected
			updates["cash_variance"] = variance
		}
		return tx.Model(&models.POSSession{}).Where("id = ?", sessionID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	out, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.log.Info("session.close", logger.RequestID(ctx), "session closed",
		slog.String("session_number", out.SessionNumber),
		slog.Int("total_orders", out.TotalOrders),
		slog.String("total_sales", out.TotalSales.String()))
	return out, nil
}

// RefreshSessionAggregate recounts the session's completed orders.
func (s *Service) RefreshSessionAggregate(ctx context.Context, sessionID uint) (*models.POSSession, error) {
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		return refreshSessionAggregateTx(tx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, sessionID)
}

// refreshSessionAggregateTx locks the session row so two orders completing
// at once under the same session cannot write stale sums.
func refreshSessionAggregateTx(tx *gorm.DB, sessionID uint) error {
	var session models.POSSession
	if err := forUpdate(tx).Select("id").First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("session", sessionID)
		}
		return err
	}

	var agg struct {
		Count int64
		Sum   int64
	}
	err := tx.Model(&models.Order{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS sum").
		Where("session_id = ? AND status = ?", sessionID, models.StatusCompleted).
		Scan(&agg).Error
	if err != nil {
		return err
	}

	return tx.Model(&models.POSSession{}).Where("id = ?", sessionID).Updates(map[string]any{
		"total_orders": int(agg.Count),
		"total_sales":  money.FromMinor(agg.Sum),
	}).Error
}

func (s *Service) GetSession(ctx context.Context, id uint) (*models.POSSession, error) {
	var session models.POSSession
	err := s.db.WithContext(ctx).Preload("Cashier").Preload("Floor").First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("session", id)
		}
		return nil, err
	}
	return &session, nil
}

// CurrentSession is the cashier's open session, if any.
func (s *Service) CurrentSession(ctx context.Context, cashierID uint) (*models.POSSession, error) {
	var session models.POSSession
	err := s.db.WithContext(ctx).Preload("Cashier").Preload("Floor").
		Where("cashier_id = ? AND status = ?", cashierID, models.SessionOpen).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// LastSession is the cashier's most recently closed session.
func (s *Service) LastSession(ctx context.Context, cashierID uint) (*models.POSSession, error) {
	var session models.POSSession
	err := s.db.WithContext(ctx).Preload("Floor").
		Where("cashier_id = ? AND status = ?", cashierID, models.SessionClosed).
		Order("end_time desc, id desc").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, withMessage(ErrNotFound, "no closed session found")
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionHistory lists sessions newest first; cashierID 0 means everyone.
func (s *Service) SessionHistory(ctx context.Context, cashierID uint, limit int) ([]models.POSSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Preload("Cashier").Preload("Floor")
	if cashierID != 0 {
		q = q.Where("cashier_id = ?", cashierID)
	}
	var sessions []models.POSSession
	err := q.Order("start_time desc, id desc").Limit(limit).Find(&sessions).Error
	return sessions, err
}
