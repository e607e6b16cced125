package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"cafe-pos/models"
	"cafe-pos/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSession(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, models.SessionOpen, f.session.Status)
	assert.Equal(t, fmt.Sprintf("SESS-20260314093000-%d", f.cashier.ID), f.session.SessionNumber)
	assert.Equal(t, money.MustParse("500.00"), f.session.StartingCash)
	require.NotNil(t, f.session.Floor)
	assert.Equal(t, "Ground", f.session.Floor.Name)

	_, err := f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: f.cashier.ID})
	assertCode(t, err, ErrSessionAlreadyOpen)

	_, err = f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: f.cashier.ID, StartingCash: money.MustParse("-1.00")})
	assertCode(t, err, ErrValidation)

	_, err = f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: 999})
	assertCode(t, err, ErrNotFound)
}

func TestFloorHeldByOneSession(t *testing.T) {
	f := newFixture(t)
	ravi := f.mustCashier("Ravi", "")

	_, err := f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: ravi.ID, FloorID: &f.floor.ID})
	assertCode(t, err, ErrFloorOccupied)
	assert.Contains(t, err.Error(), "Asha")

	// A session without a floor never conflicts.
	free, err := f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: ravi.ID})
	require.NoError(t, err)
	_, err = f.svc.CloseSession(f.ctx, free.ID, CloseSessionInput{})
	require.NoError(t, err)

	_, err = f.svc.CloseSession(f.ctx, f.session.ID, CloseSessionInput{})
	require.NoError(t, err)
	taken, err := f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: ravi.ID, FloorID: &f.floor.ID})
	require.NoError(t, err)
	// Same second as ravi's first session, so the number is suffixed.
	assert.True(t, strings.HasSuffix(taken.SessionNumber, "-2"), taken.SessionNumber)
}

func TestConcurrentOpenSessionOnSameFloor(t *testing.T) {
	f := newBareFixture(t, nil)
	floor := f.mustFloor("Terrace")

	const n = 6
	cashiers := make([]*models.User, n)
	for i := range cashiers {
		cashiers[i] = f.mustCashier(fmt.Sprintf("cashier%d", i), "")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		opened   int
		occupied int
	)
	for _, c := range cashiers {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: id, FloorID: &floor.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrFloorOccupied):
				occupied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(c.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, n-1, occupied)
	assert.EqualValues(t, 1, f.count(&models.POSSession{}, "floor_id = ? AND status = ?", floor.ID, models.SessionOpen))
}

func TestOpenSessionIndexCatchesOutOfProcessWriter(t *testing.T) {
	f := newFixture(t)
	ravi := f.mustCashier("Ravi", "")

	err := f.db.Create(&models.POSSession{
		SessionNumber: "SESS-ELSEWHERE",
		CashierID:     ravi.ID,
		FloorID:       &f.floor.ID,
		Status:        models.SessionOpen,
	}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err), err.Error())
}

func TestCloseSessionReconcilesCash(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.RecordPayments(f.ctx, o.ID, []PaymentInput{
		{PaymentMethodID: f.cash.ID, Amount: money.MustParse("100.00")},
		{PaymentMethodID: f.card.ID, Amount: money.MustParse("166.00")},
	}, nil)
	require.NoError(t, err)

	// Cash taken on an order that never completes is not expected in the drawer.
	open := f.draftWithLines()
	_, err = f.svc.RecordPayment(f.ctx, open.ID, f.cash.ID, money.MustParse("50.00"), nil)
	require.NoError(t, err)

	closing := money.MustParse("590.00")
	closed, err := f.svc.CloseSession(f.ctx, f.session.ID, CloseSessionInput{ClosingCash: &closing, Notes: "short by ten"})
	require.NoError(t, err)

	assert.Equal(t, models.SessionClosed, closed.Status)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, 1, closed.TotalOrders)
	assert.Equal(t, money.MustParse("266.00"), closed.TotalSales)
	require.NotNil(t, closed.ExpectedCash)
	assert.Equal(t, money.MustParse("600.00"), *closed.ExpectedCash)
	require.NotNil(t, closed.CashVariance)
	assert.Equal(t, money.MustParse("-10.00"), *closed.CashVariance)
	assert.Equal(t, "short by ten", closed.Notes)

	_, err = f.svc.CloseSession(f.ctx, f.session.ID, CloseSessionInput{})
	assertCode(t, err, ErrSessionAlreadyClosed)

	_, err = f.svc.CloseSession(f.ctx, 999, CloseSessionInput{})
	assertCode(t, err, ErrNotFound)
}

func TestCloseSessionWithoutCount(t *testing.T) {
	f := newFixture(t)
	closed, err := f.svc.CloseSession(f.ctx, f.session.ID, CloseSessionInput{})
	require.NoError(t, err)
	assert.Nil(t, closed.ClosingCash)
	assert.Nil(t, closed.CashVariance)
	assert.Zero(t, closed.TotalOrders)
}

func TestSessionQueries(t *testing.T) {
	f := newFixture(t)

	current, err := f.svc.CurrentSession(f.ctx, f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, current.ID)

	_, err = f.svc.LastSession(f.ctx, f.cashier.ID)
	assertCode(t, err, ErrNotFound)

	_, err = f.svc.CloseSession(f.ctx, f.session.ID, CloseSessionInput{})
	require.NoError(t, err)

	_, err = f.svc.CurrentSession(f.ctx, f.cashier.ID)
	assertCode(t, err, ErrNoActiveSession)

	last, err := f.svc.LastSession(f.ctx, f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, f.session.ID, last.ID)

	ravi := f.mustCashier("Ravi", "")
	_, err = f.svc.OpenSession(f.ctx, OpenSessionInput{CashierID: ravi.ID})
	require.NoError(t, err)

	mine, err := f.svc.SessionHistory(f.ctx, f.cashier.ID, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	everyone, err := f.svc.SessionHistory(f.ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, everyone, 2)
}

func TestRefreshSessionAggregate(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("266.00"), nil)
	require.NoError(t, err)

	// Corrupt the cached figures; a refresh restores them from the orders.
	require.NoError(t, f.db.Model(&models.POSSession{}).Where("id = ?", f.session.ID).
		Updates(map[string]any{"total_orders": 9, "total_sales": money.MustParse("1.00")}).Error)

	session, err := f.svc.RefreshSessionAggregate(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalOrders)
	assert.Equal(t, money.MustParse("266.00"), session.TotalSales)
}
