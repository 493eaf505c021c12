package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockScheduleRepository(t *testing.T) (*GormRecurringScheduleRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormRecurringScheduleRepository(gormDB), mock, mockDB
}

func scheduleRows(id uuid.UUID, status string, nextDue time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "created_at", "updated_at", "version",
		"client_ref", "method", "method_token", "base_amount", "frequency",
		"status", "next_due_date", "occurrences_completed", "max_occurrences", "failure_count",
	}).AddRow(
		id, now, now, 1,
		"CUST-1", "card", "tok_vaulted", "100", "monthly",
		status, nextDue, 2, 12, 0,
	)
}

func TestGormRecurringScheduleRepository_FindByID(t *testing.T) {
	t.Run("finds existing schedule", func(t *testing.T) {
		repo, mock, mockDB := newMockScheduleRepository(t)
		defer mockDB.Close()

		scheduleID := uuid.New()
		nextDue := time.Now().AddDate(0, 1, 0)

		mock.ExpectQuery(`SELECT \* FROM "recurring_schedules" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(scheduleID, 1).
			WillReturnRows(scheduleRows(scheduleID, "active", nextDue))

		schedule, err := repo.FindByID(context.Background(), scheduleID)

		require.NoError(t, err)
		assert.Equal(t, scheduleID, schedule.ID)
		assert.Equal(t, payment.ScheduleActive, schedule.Status)
		assert.Equal(t, payment.FrequencyMonthly, schedule.Frequency)
		assert.Equal(t, int64(10000), schedule.BaseAmount.Cents())
		assert.Equal(t, 2, schedule.OccurrencesCompleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing schedule to ErrNotFound", func(t *testing.T) {
		repo, mock, mockDB := newMockScheduleRepository(t)
		defer mockDB.Close()

		scheduleID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "recurring_schedules" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(scheduleID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.FindByID(context.Background(), scheduleID)

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormRecurringScheduleRepository_FindDue(t *testing.T) {
	repo, mock, mockDB := newMockScheduleRepository(t)
	defer mockDB.Close()

	scheduleID := uuid.New()
	asOf := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "recurring_schedules" WHERE status = \$1 AND next_due_date IS NOT NULL AND next_due_date <= \$2 ORDER BY next_due_date ASC LIMIT .*`).
		WithArgs("active", asOf, 100).
		WillReturnRows(scheduleRows(scheduleID, "active", asOf.AddDate(0, 0, -1)))

	due, err := repo.FindDue(context.Background(), asOf, 100)

	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, scheduleID, due[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRecurringScheduleRepository_SaveWithLock(t *testing.T) {
	newSchedule := func(t *testing.T) *payment.RecurringSchedule {
		t.Helper()
		schedule, err := payment.NewRecurringSchedule(
			"CUST-1", payment.MethodCard, "tok_vaulted",
			valueobject.NewMoneyFromCents(10000, valueobject.USD),
			payment.FrequencyMonthly, time.Now().AddDate(0, 0, -1), 0, nil,
		)
		require.NoError(t, err)
		require.NoError(t, schedule.RecordSuccess()) // version 1 -> 2
		return schedule
	}

	t.Run("updates when version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockScheduleRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "recurring_schedules" SET .* WHERE \(id = \$\d+ AND version = \$\d+\).*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), newSchedule(t))

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns concurrency conflict when the version moved", func(t *testing.T) {
		repo, mock, mockDB := newMockScheduleRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "recurring_schedules" SET .* WHERE \(id = \$\d+ AND version = \$\d+\).*`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), newSchedule(t))

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	})
}
