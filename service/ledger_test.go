package service

import (
	"sync"
	"testing"

	"cafe-pos/kitchen"
	"cafe-pos/models"
	"cafe-pos/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPaymentCompletesOrder(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.SendToKitchen(f.ctx, o.ID, nil)
	require.NoError(t, err)

	res, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("100.00"), &f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToKitchen, res.Status)
	assert.Equal(t, money.MustParse("100.00"), res.TotalPaid)
	assert.Equal(t, money.MustParse("100.00"), res.AmountPaid)
	assert.Nil(t, res.ReceiptID)
	assert.Equal(t, models.TableOccupied, f.tableStatus())

	res, err = f.svc.RecordPayment(f.ctx, o.ID, f.card.ID, money.MustParse("166.00"), &f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, money.MustParse("166.00"), res.TotalPaid)
	assert.Equal(t, money.MustParse("266.00"), res.AmountPaid)
	assert.NotNil(t, res.ReceiptID)
	require.Len(t, res.Payments, 1)
	assert.Equal(t, "asha@upi", res.Payments[0].CashierUPI)

	assert.Equal(t, models.TableAvailable, f.tableStatus())
	assert.Equal(t, []kitchen.Action{kitchen.ActionOrderCreated, kitchen.ActionOrderCompleted}, f.events.actions())

	session, err := f.svc.GetSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalOrders)
	assert.Equal(t, money.MustParse("266.00"), session.TotalSales)

	payments, err := f.svc.OrderPayments(f.ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, models.MethodCash, payments[0].PaymentMethod.Type)
}

func TestFullPaymentOnDraftDispatchesThenCompletes(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()

	res, err := f.svc.RecordPayments(f.ctx, o.ID, []PaymentInput{
		{PaymentMethodID: f.cash.ID, Amount: money.MustParse("200.00")},
		{PaymentMethodID: f.card.ID, Amount: money.MustParse("66.00")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, money.MustParse("266.00"), res.TotalPaid)
	assert.Len(t, res.Payments, 2)

	assert.Equal(t, []kitchen.Action{kitchen.ActionOrderCreated, kitchen.ActionOrderCompleted}, f.events.actions())

	full := f.reload(o.ID)
	var path []models.OrderStatus
	for _, h := range full.StatusHistory {
		path = append(path, h.ToStatus)
	}
	assert.Equal(t, []models.OrderStatus{models.StatusDraft, models.StatusSentToKitchen, models.StatusCompleted}, path)
}

func TestOverpaymentCompletes(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.SendToKitchen(f.ctx, o.ID, nil)
	require.NoError(t, err)

	res, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("300.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, money.MustParse("300.00"), res.AmountPaid)
}

func TestPaidEmptyDraftStaysDraft(t *testing.T) {
	f := newFixture(t)
	o := f.draft()

	res, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("10.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, res.Status)
	assert.Empty(t, f.events.actions())
}

func TestPaymentAfterCompletionIsAppendedOnly(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("266.00"), nil)
	require.NoError(t, err)
	before := len(f.events.actions())

	res, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("20.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, money.MustParse("286.00"), res.AmountPaid)
	assert.Len(t, f.events.actions(), before)
	assert.EqualValues(t, 1, f.count(&models.Receipt{}, "order_id = ?", o.ID))
}

func TestPaymentRejectedOnCancelledOrder(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.Cancel(f.ctx, o.ID, nil, "")
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("266.00"), nil)
	assertCode(t, err, ErrOrderNotPayable)
	assert.Zero(t, f.count(&models.Payment{}, "order_id = ?", o.ID))
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()

	tests := []struct {
		name     string
		payments []PaymentInput
		want     *Error
	}{
		{"no payments", nil, ErrValidation},
		{"zero amount", []PaymentInput{{PaymentMethodID: f.cash.ID}}, ErrValidation},
		{"negative amount", []PaymentInput{{PaymentMethodID: f.cash.ID, Amount: money.MustParse("-5.00")}}, ErrValidation},
		{"missing method", []PaymentInput{{Amount: money.MustParse("5.00")}}, ErrValidation},
		{"unknown method", []PaymentInput{{PaymentMethodID: 999, Amount: money.MustParse("5.00")}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordPayments(f.ctx, o.ID, tt.payments, nil)
			assertCode(t, err, tt.want)
		})
	}

	// A bad entry in a batch rolls back the good ones.
	_, err := f.svc.RecordPayments(f.ctx, o.ID, []PaymentInput{
		{PaymentMethodID: f.cash.ID, Amount: money.MustParse("100.00")},
		{PaymentMethodID: 999, Amount: money.MustParse("166.00")},
	}, nil)
	assertCode(t, err, ErrNotFound)
	assert.Zero(t, f.count(&models.Payment{}, "order_id = ?", o.ID))

	_, err = f.svc.RecordPayment(f.ctx, 4242, f.cash.ID, money.MustParse("1.00"), nil)
	assertCode(t, err, ErrNotFound)
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.SendToKitchen(f.ctx, o.ID, nil)
	require.NoError(t, err)

	got, err := f.svc.Settle(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSentToKitchen, got.Status)

	_, err = f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("266.00"), nil)
	require.NoError(t, err)
	before := len(f.events.actions())

	got, err = f.svc.Settle(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Len(t, f.events.actions(), before)
}

func TestConcurrentPaymentsCompleteOnce(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.SendToKitchen(f.ctx, o.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(f.ctx, o.ID, f.cash.ID, money.MustParse("133.00"), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, models.StatusCompleted, f.reload(o.ID).Status)
	assert.EqualValues(t, 4, f.count(&models.Payment{}, "order_id = ?", o.ID))
	assert.EqualValues(t, 1, f.count(&models.Receipt{}, "order_id = ?", o.ID))

	completed := 0
	for _, a := range f.events.actions() {
		if a == kitchen.ActionOrderCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	session, err := f.svc.GetSession(f.ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalOrders)
	assert.Equal(t, money.MustParse("266.00"), session.TotalSales)
}
