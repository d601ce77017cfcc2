package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDBFromConn(conn, time.Second, zap.NewNop()), mock
}

func newDocumentRepo(t *testing.T, metric string) (repositories.DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	repo, err := NewDocumentRepository(db, DocumentOptions{DistanceMetric: metric}, zap.NewNop())
	require.NoError(t, err)
	return repo, mock
}

func TestDistanceOperator(t *testing.T) {
	tests := []struct {
		metric  string
		want    string
		wantErr bool
	}{
		{"", "<=>", false},
		{"l2", "<->", false},
		{"cosine", "<=>", false},
		{"inner", "<#>", false},
		{"<->; DROP TABLE x", "", true},
		{"manhattan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			op, err := DistanceOperator(tt.metric)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestNewDocumentRepository_RejectsUnknownMetric(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := NewDocumentRepository(db, DocumentOptions{DistanceMetric: "hamming"}, zap.NewNop())
	assert.Error(t, err)
}

func TestDocumentRepository_SimilaritySearch(t *testing.T) {
	collectionID := uuid.New()

	t.Run("binds filter after vector and collection", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")

		mock.ExpectQuery(regexp.QuoteMeta("embedding <-> $1 AS distance")+
			`(?s).*`+regexp.QuoteMeta("WHERE collection_id = $2 AND cmetadata @> $3::jsonb")+
			`(?s).*`+regexp.QuoteMeta("ORDER BY distance ASC")+
			`(?s).*`+regexp.QuoteMeta("LIMIT $4")).
			WithArgs(sqlmock.AnyArg(), collectionID.String(), `{"make":"Toyota"}`, 3).
			WillReturnRows(sqlmock.NewRows([]string{"document", "cmetadata", "distance"}).
				AddRow("2022 Toyota Camry", []byte(`{"id":"a","make":"Toyota"}`), 0.12).
				AddRow("2021 Toyota Corolla", []byte(`{"id":"b","make":"Toyota"}`), 0.34))

		results, err := repo.SimilaritySearch(context.Background(), repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    []float32{0.1, 0.2, 0.3},
			Filter:       filter.Spec{"make": filter.Equals("Toyota")},
			K:            3,
		})

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "2022 Toyota Camry", results[0].Content)
		assert.Equal(t, "Toyota", results[0].Metadata["make"])
		assert.Equal(t, 0.12, results[0].Score)
		assert.Equal(t, models.ScoreDistance, results[0].ScoreKind)
		assert.LessOrEqual(t, results[0].Score, results[1].Score)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null metadata decodes to empty map", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "cosine")

		mock.ExpectQuery(regexp.QuoteMeta("embedding <=> $1 AS distance")).
			WillReturnRows(sqlmock.NewRows([]string{"document", "cmetadata", "distance"}).
				AddRow("plain", nil, 0.5))

		results, err := repo.SimilaritySearch(context.Background(), repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    []float32{1},
			K:            1,
		})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.NotNil(t, results[0].Metadata)
		assert.Empty(t, results[0].Metadata)
	})

	t.Run("invalid filter issues no query", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")

		_, err := repo.SimilaritySearch(context.Background(), repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    []float32{1},
			Filter:       filter.Spec{"year": filter.Range(nil, nil)},
			K:            1,
		})

		assert.ErrorIs(t, err, filter.ErrEmptyRange)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is returned", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")
		dbErr := errors.New("connection reset")
		mock.ExpectQuery("SELECT document").WillReturnError(dbErr)

		_, err := repo.SimilaritySearch(context.Background(), repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    []float32{1},
			K:            1,
		})

		assert.ErrorIs(t, err, dbErr)
	})
}

func TestDocumentRepository_HybridSearch(t *testing.T) {
	collectionID := uuid.New()
	repo, mock := newDocumentRepo(t, "cosine")

	mock.ExpectQuery(regexp.QuoteMeta("$3::float8 * ts_rank_cd(to_tsvector($1::regconfig, document), plainto_tsquery($1::regconfig, $2), 32)")+
		`(?s).*`+regexp.QuoteMeta("+ (1 - $3::float8) * (1 - (embedding <=> $4)) AS score")+
		`(?s).*`+regexp.QuoteMeta("WHERE collection_id = $5 AND (cmetadata ->> $6::text) ILIKE $7")+
		`(?s).*`+regexp.QuoteMeta("ORDER BY score DESC")+
		`(?s).*`+regexp.QuoteMeta("LIMIT $8")).
		WithArgs("english", "red sedan Honda", 0.7, sqlmock.AnyArg(), collectionID.String(), "color", "%red%", 5).
		WillReturnRows(sqlmock.NewRows([]string{"document", "cmetadata", "score"}).
			AddRow("Red Honda Civic sedan", []byte(`{"color":"red"}`), 0.91).
			AddRow("Red Honda Accord", []byte(`{"color":"Red"}`), 0.55))

	results, err := repo.HybridSearch(context.Background(), repositories.HybridQuery{
		VectorQuery: repositories.VectorQuery{
			CollectionID: collectionID,
			Embedding:    []float32{0.4, 0.5},
			Filter:       filter.Spec{"color": filter.Pattern("red")},
			K:            5,
		},
		LexicalQuery: "red sedan Honda",
		Alpha:        0.7,
	})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.ScoreFused, results[0].ScoreKind)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_Collections(t *testing.T) {
	collectionID := uuid.New()

	t.Run("get by name", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")
		mock.ExpectQuery("SELECT uuid, name").
			WithArgs("vehicles").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).AddRow(collectionID.String(), "vehicles"))

		coll, err := repo.GetCollectionByName(context.Background(), "vehicles")

		require.NoError(t, err)
		assert.Equal(t, collectionID, coll.UUID)
		assert.Equal(t, "vehicles", coll.Name)
	})

	t.Run("missing collection", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")
		mock.ExpectQuery("SELECT uuid, name").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}))

		_, err := repo.GetCollectionByName(context.Background(), "ghost")

		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("ensure creates then reads", func(t *testing.T) {
		repo, mock := newDocumentRepo(t, "l2")
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO langchain_pg_collection")).
			WithArgs(sqlmock.AnyArg(), "vehicles").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT uuid, name").
			WithArgs("vehicles").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).AddRow(collectionID.String(), "vehicles"))

		coll, err := repo.EnsureCollection(context.Background(), "vehicles")

		require.NoError(t, err)
		assert.Equal(t, collectionID, coll.UUID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDocumentRepository_Upsert(t *testing.T) {
	collectionID := uuid.New()
	doc := models.NewDocument("Free oil change with purchase", map[string]interface{}{"id": "promo-1"})

	t.Run("inside a transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo, err := NewDocumentRepository(db, DocumentOptions{}, zap.NewNop())
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
			WithArgs("promo-1", collectionID.String(), sqlmock.AnyArg(), "Free oil change with purchase", `{"id":"promo-1"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txMgr := NewTransactionManager(db, zap.NewNop())
		err = txMgr.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return repo.WithTx(tx).Upsert(ctx, collectionID, doc, []float32{0.1, 0.2})
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo, err := NewDocumentRepository(db, DocumentOptions{}, zap.NewNop())
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO langchain_pg_embedding").WillReturnError(errors.New("dimension mismatch"))
		mock.ExpectRollback()

		txMgr := NewTransactionManager(db, zap.NewNop())
		err = txMgr.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			return repo.WithTx(tx).Upsert(ctx, collectionID, doc, []float32{0.1})
		})

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
