package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var recordColumns = []string{"id", "kind", "contract_address", "function_name", "message", "success", "tx_hash", "code", "error", "duration_ms", "created_at"}

func TestGormRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "chain_transactions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &Record{Kind: "execute", ContractAddress: "inj1contract", FunctionName: "cast_vote", Message: []byte(`{"cast_vote":{}}`), Success: true}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepositoryGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormRepository(db)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chain_transactions" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(id.String(), "execute", "inj1contract", "create_claim", []byte(`{"create_claim":{}}`), true, "ABC", 0, "", 1200, now))

	record, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, record.ID)
	assert.Equal(t, "create_claim", record.FunctionName)
	assert.Equal(t, "ABC", record.TxHash)
	assert.Equal(t, int64(1200), record.DurationMs)
	assert.JSONEq(t, `{"create_claim":{}}`, string(record.Message))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chain_transactions" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err = repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepositoryList(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormRepository(db)
	failed := false

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "chain_transactions" WHERE kind = $1 AND success = $2 ORDER BY created_at DESC LIMIT`)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(uuid.New().String(), "execute", "inj1contract", "repay_tokens", []byte(`{}`), false, "", 5, "out of gas", 900, time.Now()))

	records, err := repo.List(context.Background(), Filter{Kind: "execute", Success: &failed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "out of gas", records[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepositoryRing(t *testing.T) {
	repo := NewMemoryRepository(3)
	ctx := context.Background()

	var ids []uuid.UUID
	for i, fn := range []string{"cast_vote", "create_claim", "cast_vote", "repay_tokens"} {
		r := &Record{Kind: "execute", FunctionName: fn, Success: i != 2}
		require.NoError(t, repo.Create(ctx, r))
		assert.False(t, r.CreatedAt.IsZero())
		ids = append(ids, r.ID)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "repay_tokens", all[0].FunctionName, "newest first")
	assert.Equal(t, "create_claim", all[2].FunctionName)

	// the oldest record was overwritten
	_, err = repo.Get(ctx, ids[0])
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.Get(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, "repay_tokens", got.FunctionName)

	ok := true
	votes, err := repo.List(ctx, Filter{FunctionName: "cast_vote", Success: &ok})
	require.NoError(t, err)
	assert.Empty(t, votes)

	limited, err := repo.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
