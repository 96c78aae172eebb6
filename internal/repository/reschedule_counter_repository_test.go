package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescheduleCounterIncrementBoundedByQuota(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewRescheduleCounterRepository(db)

	mock.ExpectQuery("INSERT INTO reschedule_counters .* ON CONFLICT \\(student_id, period\\) DO UPDATE .* WHERE reschedule_counters.count < \\$3\\s+RETURNING count").
		WithArgs("stu-1", "2026-11", 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	count, err := repo.Increment(context.Background(), nil, "stu-1", "2026-11", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mock.ExpectQuery("INSERT INTO reschedule_counters").
		WithArgs("stu-1", "2026-11", 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}))
	_, err = repo.Increment(context.Background(), nil, "stu-1", "2026-11", 2)
	assert.ErrorIs(t, err, ErrNotApplied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleCounterCountDefaultsToZero(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewRescheduleCounterRepository(db)

	mock.ExpectQuery("SELECT count FROM reschedule_counters").
		WithArgs("stu-1", "2026-11").
		WillReturnError(sql.ErrNoRows)

	count, err := repo.Count(context.Background(), "stu-1", "2026-11")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleCounterZeroQuotaNeverIncrements(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()
	_, err := NewRescheduleCounterRepository(db).Increment(context.Background(), nil, "stu-1", "2026-11", 0)
	assert.ErrorIs(t, err, ErrNotApplied)
}
