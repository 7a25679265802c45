package repositories

import (
	"context"
	"testing"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

var linkTokenColumns = []string{"id", "service_request_id", "purpose", "token_hash", "expires_at", "used_at", "created_at"}

func TestLinkTokenRepository_GetByTokenHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkTokenRepository(db)
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM `link_tokens` WHERE token_hash = \\?").
		WillReturnRows(sqlmock.NewRows(linkTokenColumns).
			AddRow(7, 3, "invoice", "abc123", expires, nil, expires.Add(-time.Hour)))

	token, err := repo.GetByTokenHash(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, uint(7), token.ID)
	assert.Equal(t, uint(3), token.ServiceRequestID)
	assert.Equal(t, "invoice", token.Purpose)
	assert.False(t, token.IsUsed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkTokenRepository_GetByTokenHash_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLinkTokenRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `link_tokens`").
		WillReturnRows(sqlmock.NewRows(linkTokenColumns))

	_, err := repo.GetByTokenHash(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestServiceRequestRepository_ApplyScheduleDecision(t *testing.T) {
	at := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	decision := models.ScheduleDecision{
		Action:        domain.ActionAccept,
		AppointmentAt: &at,
		DecidedAt:     at.Add(-48 * time.Hour),
	}
	lockRequest := "SELECT `id`,`appointment_confirmed_at` FROM `service_requests` WHERE (.+) FOR UPDATE"
	lockedColumns := []string{"id", "appointment_confirmed_at"}

	t.Run("records decision and consumes link", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewServiceRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `link_tokens` SET `used_at`=\\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(lockRequest).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(3, nil))
		mock.ExpectExec("UPDATE `service_requests` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.ApplyScheduleDecision(context.Background(), 3, 7, decision)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("identical proposal through a new link", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewServiceRequestRepository(db)
		proposed := at.Add(24 * time.Hour)
		propose := models.ScheduleDecision{
			Action:     domain.ActionPropose,
			ProposedAt: &proposed,
			DecidedAt:  at.Add(-24 * time.Hour),
		}

		// MySQL reports zero changed rows when every value is unchanged
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `link_tokens` SET `used_at`=\\?").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(lockRequest).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(3, nil))
		mock.ExpectExec("UPDATE `service_requests` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.ApplyScheduleDecision(context.Background(), 3, 8, propose)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("consumed link", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewServiceRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `link_tokens` SET `used_at`=\\?").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.ApplyScheduleDecision(context.Background(), 3, 7, decision)
		assert.ErrorIs(t, err, domain.ErrTokenInvalid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("appointment already confirmed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewServiceRequestRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `link_tokens`").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(lockRequest).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(3, at))
		mock.ExpectRollback()

		err := repo.ApplyScheduleDecision(context.Background(), 3, 7, decision)
		assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestServiceRequestRepository_List(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewServiceRequestRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `service_requests` WHERE status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT \\* FROM `service_requests` WHERE status = \\? ORDER BY id DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "request_type", "priority", "title", "tenant_preferred_slots", "status"}).
			AddRow(3, "plumbing", "emergency", "Burst pipe", `["2026-03-11","2026-03-12"]`, "submitted"))

	reqs, total, err := repo.List(context.Background(), "submitted", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"2026-03-11", "2026-03-12"}, reqs[0].TenantPreferredSlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceRepository_Submit(t *testing.T) {
	newInvoice := func() *models.Invoice {
		return &models.Invoice{
			ServiceRequestID: 3,
			FileURL:          "local:invoices/abc.pdf",
			Amount:           decimal.RequireFromString("499.99"),
			Description:      "Replaced valve",
			AutoApproved:     true,
			Status:           string(domain.ApprovalAutoApproved),
			Threshold:        decimal.NewFromInt(500),
		}
	}

	t.Run("stores invoice", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewInvoiceRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `service_requests` SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO `invoices`").
			WillReturnResult(sqlmock.NewResult(9, 1))
		mock.ExpectCommit()

		inv := newInvoice()
		require.NoError(t, repo.Submit(context.Background(), inv))
		assert.Equal(t, uint(9), inv.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already invoiced", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewInvoiceRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `service_requests` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Submit(context.Background(), newInvoice())
		assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPortalSessionRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPortalSessionRepository(db)

	mock.ExpectExec("DELETE FROM `portal_sessions` WHERE expires_at < \\?").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmailNormalizes(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE email = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "status", "portal_active"}).
			AddRow(1, "pat@example.com", "active", true))

	account, err := repo.GetByEmail(context.Background(), "  Pat@Example.com ")
	require.NoError(t, err)
	assert.True(t, account.IsActive())
}
