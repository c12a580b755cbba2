package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS doctors`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_WrapsError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied for schema public"))

	err := Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply schema")
}

func TestSchemaGuardsOneBookingPerSlot(t *testing.T) {
	assert.Contains(t, schemaSQL, "appointments_one_booked_per_slot")
	assert.Contains(t, schemaSQL, "WHERE status = 'Booked'")
	assert.Contains(t, schemaSQL, "CHECK (status IN ('Booked', 'Canceled'))")
}
