package service

import (
	"testing"

	"cafe-pos/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTableStatusFreesTableAfterCancel(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()
	_, err := f.svc.Cancel(f.ctx, o.ID, nil, "guest left")
	require.NoError(t, err)
	require.Equal(t, models.TableOccupied, f.tableStatus())

	_, err = f.svc.Close(f.ctx, o.ID, nil)
	assertCode(t, err, ErrInvalidStatus)

	table, err := f.svc.SetTableStatus(f.ctx, f.table.ID, models.TableAvailable, &f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TableAvailable, table.Status)
	assert.Equal(t, models.TableAvailable, f.tableStatus())

	// The freed table takes a new order as usual.
	f.draft()
	assert.Equal(t, models.TableOccupied, f.tableStatus())
}

func TestSetTableStatusRejectsTableWithOpenOrder(t *testing.T) {
	f := newFixture(t)
	o := f.draftWithLines()

	for _, status := range []models.TableStatus{models.TableAvailable, models.TableReserved, models.TableDirty} {
		_, err := f.svc.SetTableStatus(f.ctx, f.table.ID, status, nil)
		assertCode(t, err, ErrTableInUse)
	}
	_, err := f.svc.SendToKitchen(f.ctx, o.ID, nil)
	require.NoError(t, err)
	_, err = f.svc.SetTableStatus(f.ctx, f.table.ID, models.TableAvailable, nil)
	assertCode(t, err, ErrTableInUse)
	assert.Equal(t, models.TableOccupied, f.tableStatus())

	_, err = f.svc.SetTableStatus(f.ctx, f.table.ID, models.TableOccupied, nil)
	require.NoError(t, err)
}

func TestSetTableStatusValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SetTableStatus(f.ctx, f.table.ID, "broken", nil)
	assertCode(t, err, ErrValidation)
	e, _ := AsError(err)
	assert.Contains(t, e.Fields, "status")

	_, err = f.svc.SetTableStatus(f.ctx, 999, models.TableDirty, nil)
	assertCode(t, err, ErrNotFound)

	table, err := f.svc.SetTableStatus(f.ctx, f.table.ID, models.TableReserved, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TableReserved, table.Status)
	_, err = f.svc.SetTableStatus(f.ctx, f.table.ID, models.TableDirty, nil)
	require.NoError(t, err)
	assert.Equal(t, models.TableDirty, f.tableStatus())
}

func TestTablesCarryQRURL(t *testing.T) {
	f := newFixture(t)
	want := "https://cafe.example/order?table=" + f.table.Token

	assert.Equal(t, want, f.table.QRURL)

	tables, err := f.svc.ListTables(f.ctx, f.floor.ID)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, want, tables[0].QRURL)

	floors, err := f.svc.ListFloors(f.ctx)
	require.NoError(t, err)
	require.Len(t, floors, 1)
	require.Len(t, floors[0].Tables, 1)
	assert.Equal(t, want, floors[0].Tables[0].QRURL)

	table, err := f.svc.GetTableByToken(f.ctx, f.table.Token)
	require.NoError(t, err)
	assert.Equal(t, want, table.QRURL)
}
