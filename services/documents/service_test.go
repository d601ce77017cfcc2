package documents

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/repositories/postgres"
	"github.com/upb/inventory-retrieval/services"
)

// stubEmbedder fails for any text containing "fail"
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "fail") {
		return nil, errors.New("provider rejected input")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := postgres.NewDBFromConn(conn, time.Second, zap.NewNop())
	repo, err := postgres.NewDocumentRepository(db, postgres.DocumentOptions{}, zap.NewNop())
	require.NoError(t, err)

	svc, err := NewService(repo, postgres.NewTransactionManager(db, zap.NewNop()), stubEmbedder{}, "test-v1", 2, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Release)
	return svc, mock
}

func TestService_AddDocuments(t *testing.T) {
	collID := uuid.New()

	t.Run("stores embedded documents and reports failures", func(t *testing.T) {
		svc, mock := newService(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO langchain_pg_collection")).
			WithArgs(sqlmock.AnyArg(), "test-v1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT uuid, name").
			WithArgs("test-v1").
			WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).AddRow(collID.String(), "test-v1"))
		mock.ExpectExec("INSERT INTO langchain_pg_embedding").
			WithArgs("0", collID.String(), sqlmock.AnyArg(), "Rotate tires every 5,000 miles", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO langchain_pg_embedding").
			WithArgs("2", collID.String(), sqlmock.AnyArg(), "Brake fluid every two years", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := svc.AddDocuments(context.Background(), []Input{
			{Content: "Rotate tires every 5,000 miles", Metadata: map[string]interface{}{"id": 0, "topic": "maintenance"}},
			{Content: "this one will fail", Metadata: map[string]interface{}{"id": 1}},
			{Content: "Brake fluid every two years", Metadata: map[string]interface{}{"id": 2}},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, res.Stored)
		assert.Equal(t, []string{"0", "2"}, res.IDs)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "1", res.Failed[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure rolls back", func(t *testing.T) {
		svc, mock := newService(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO langchain_pg_collection").WillReturnError(errors.New("relation does not exist"))
		mock.ExpectRollback()

		_, err := svc.AddDocuments(context.Background(), []Input{{Content: "hello"}})

		assert.True(t, services.IsStorageError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("all embeddings failing stores nothing", func(t *testing.T) {
		svc, mock := newService(t)

		res, err := svc.AddDocuments(context.Background(), []Input{{Content: "fail"}})

		assert.ErrorIs(t, err, services.ErrEmbeddingFailed)
		assert.Len(t, res.Failed, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newService(t)

		_, err := svc.AddDocuments(context.Background(), nil)
		assert.True(t, services.IsValidationError(err))

		_, err = svc.AddDocuments(context.Background(), []Input{{Content: " "}})
		assert.True(t, services.IsValidationError(err))
	})
}
