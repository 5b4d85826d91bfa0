package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ahtrading/posledger/internal/domain/outbox"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func outboxColumns() []string {
	return []string{
		"id", "company_id", "device_id", "event_type", "payload", "status",
		"attempt_count", "error_message", "next_attempt_at", "processed_at",
		"created_at", "updated_at",
	}
}

func TestGormOutboxRepository_ProcessNext(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db, uuid.Nil, 5)

	eventID := uuid.New()
	companyID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(outboxColumns()).AddRow(
		eventID, companyID, nil, "sale.completed", []byte(`{}`), "pending",
		0, "", nil, nil, now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT o\.\*`).
		WithArgs(uuid.Nil, uuid.Nil, 5).
		WillReturnRows(rows)
	mock.ExpectExec(`SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "pos_events_outbox"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var handled *outbox.Event
	claimed, err := repo.ProcessNext(context.Background(), func(ctx context.Context, ev *outbox.Event) error {
		handled = ev
		ev.MarkProcessed(now)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, claimed)
	require.NotNil(t, handled)
	assert.Equal(t, eventID, handled.ID)
	assert.Equal(t, outbox.StatusProcessed, handled.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_ProcessNext_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db, uuid.Nil, 5)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT o\.\*`).
		WithArgs(uuid.Nil, uuid.Nil, 5).
		WillReturnRows(sqlmock.NewRows(outboxColumns()))
	mock.ExpectCommit()

	claimed, err := repo.ProcessNext(context.Background(), func(ctx context.Context, ev *outbox.Event) error {
		t.Fatal("handler called with no claimed event")
		return nil
	})

	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_ProcessNext_HandlerErrorStillSettles(t *testing.T) {
	db, mock := setupMockDB(t)
	companyID := uuid.New()
	repo := NewGormOutboxRepository(db, companyID, 5)

	eventID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(outboxColumns()).AddRow(
		eventID, companyID, nil, "sale.completed", []byte(`{}`), "pending",
		0, "", nil, nil, now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT o\.\*`).
		WithArgs(companyID, companyID, 5).
		WillReturnRows(rows)
	mock.ExpectExec(`SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	// The builder's document writes roll back; the status update does not.
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "pos_events_outbox"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ProcessNext(context.Background(), func(ctx context.Context, ev *outbox.Event) error {
		cause := errors.New("downstream unavailable")
		ev.MarkFailed(now, cause, 5)
		return cause
	})

	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
