package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database backed by sqlmock speaking the postgres dialect
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, db.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

// The reliability counters must be single UPDATE statements; these tests pin
// the generated SQL against the postgres dialect.
func TestGormProviderRepository_AtomicSQL(t *testing.T) {
	t.Run("sync failure decrements with clamp in one statement", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormProviderRepository(db.DB)

		mock.ExpectExec(`UPDATE "providers" SET "failed_orders"=failed_orders \+ 1,"last_error"=\$1,"reliability_score"=CASE WHEN reliability_score - \$2 < 0 THEN 0 ELSE reliability_score - \$3 END,"updated_at"=\$4 WHERE slug = \$5`).
			WithArgs("timeout", 0.1, 0.1, sqlmock.AnyArg(), "esimgo").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := repo.RecordSyncFailure(context.Background(), "esimgo", 0.1, "timeout")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivate is guarded by active flag and bound", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormProviderRepository(db.DB)

		mock.ExpectExec(`UPDATE "providers" SET "is_active"=\$1,"updated_at"=\$2 WHERE slug = \$3 AND is_active = \$4 AND reliability_score < \$5`).
			WithArgs(false, sqlmock.AnyArg(), "esimgo", true, 0.5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		flipped, err := repo.DeactivateIfBelow(context.Background(), "esimgo", 0.5)
		require.NoError(t, err)
		assert.True(t, flipped)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
