package inventory

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/filter"
	"github.com/upb/inventory-retrieval/models"
	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/repositories/postgres"
	"github.com/upb/inventory-retrieval/services"
)

// MockInventoryRepository is a mock implementation of InventoryRepository
type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) SearchWithinBudget(ctx context.Context, spec filter.Spec, limit int) ([]*repositories.BudgetedRecord, error) {
	args := m.Called(ctx, spec, limit)
	if r := args.Get(0); r != nil {
		return r.([]*repositories.BudgetedRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockInventoryRepository) Insert(ctx context.Context, rec *models.InventoryRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockInventoryRepository) WithTx(tx repositories.Transaction) repositories.InventoryRepository {
	return m.Called(tx).Get(0).(repositories.InventoryRepository)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestQuery_Spec(t *testing.T) {
	minPrice := 15000.0
	certified := true
	q := Query{
		VIN:       "1HGCM82633A004352",
		Make:      "Toyota",
		Year:      intPtr(2022),
		Certified: &certified,
		MinPrice:  &minPrice,
		Doors:     intPtr(4),
		Extra:     filter.Spec{"mileage": filter.Range(nil, 30000)},
	}

	spec, err := q.Spec()

	require.NoError(t, err)
	assert.Equal(t, []string{"certified", "doors", "make", "mileage", "selling_price", "vin", "year"}, spec.Fields())
	assert.Equal(t, filter.KindEquals, spec["vin"].Kind())
	assert.Equal(t, filter.KindPattern, spec["make"].Kind())
	assert.Equal(t, filter.KindRange, spec["selling_price"].Kind())
	lo, hi := spec["selling_price"].Bounds()
	assert.Equal(t, 15000.0, lo)
	assert.Nil(t, hi)

	_, err = (&Query{Make: "Ford", Extra: filter.Spec{"make": filter.Equals("Ford")}}).Spec()
	assert.True(t, services.IsValidationError(err))

	empty, err := (&Query{}).Spec()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("projects requested fields", func(t *testing.T) {
		repo := new(MockInventoryRepository)
		svc := NewService(repo, nil, 4000, zap.NewNop())
		vin, brand := "V1", "Toyota"
		repo.On("SearchWithinBudget", ctx, filter.Spec{"make": filter.Pattern("Toyota")}, 4000).
			Return([]*repositories.BudgetedRecord{
				{Record: &models.InventoryRecord{VIN: &vin, Make: &brand}, EstimatedTokens: 12, CumulativeTokens: 12},
			}, nil)

		resp, err := svc.Search(ctx, Query{Make: "Toyota", Fields: []string{"vin", "make"}})

		require.NoError(t, err)
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, 4000, resp.ContextLimit)
		assert.Equal(t, 12, resp.TotalTokens)
		assert.Equal(t, map[string]interface{}{"vin": "V1", "make": "Toyota"}, resp.Data[0])
	})

	t.Run("unknown projection is rejected before I/O", func(t *testing.T) {
		repo := new(MockInventoryRepository)
		svc := NewService(repo, nil, 4000, zap.NewNop())

		_, err := svc.Search(ctx, Query{Fields: []string{"vin", "password"}})

		assert.ErrorIs(t, err, services.ErrUnknownColumn)
		assert.Equal(t, []string{"password"}, services.GetErrorDetails(err)["fields"])
		repo.AssertNotCalled(t, "SearchWithinBudget", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("filter errors are validation errors", func(t *testing.T) {
		repo := new(MockInventoryRepository)
		svc := NewService(repo, nil, 4000, zap.NewNop())
		repo.On("SearchWithinBudget", ctx, mock.Anything, 10).
			Return(nil, fmt.Errorf("invalid filter: %w", filter.ErrKindMismatch))

		_, err := svc.Search(ctx, Query{ContextLimit: intPtr(10), Extra: filter.Spec{"year": filter.Pattern("20")}})

		assert.ErrorIs(t, err, services.ErrUnsupportedFilter)
	})

	t.Run("storage failure is a storage error", func(t *testing.T) {
		repo := new(MockInventoryRepository)
		svc := NewService(repo, nil, 4000, zap.NewNop())
		repo.On("SearchWithinBudget", ctx, mock.Anything, 4000).Return(nil, errors.New("connection reset"))

		resp, err := svc.Search(ctx, Query{})

		assert.Nil(t, resp)
		assert.True(t, services.IsStorageError(err))
	})
}

// The five-record scenario runs through the real repository SQL path so the
// prefix rule is exercised end to end.
func TestService_Search_BudgetScenario(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	db := postgres.NewDBFromConn(conn, time.Second, zap.NewNop())
	svc := NewService(postgres.NewInventoryRepository(db, "", 5, zap.NewNop()), postgres.NewTransactionManager(db, zap.NewNop()), 4000, zap.NewNop())

	cols := append(append([]string{}, models.InventoryColumns...), "estimated_token_count", "cumulative_tokens")
	rows := sqlmock.NewRows(cols)
	costs := []int64{10, 15, 5, 30, 8}
	var cumulative int64
	for i, c := range costs {
		cumulative += c
		row := make([]driver.Value, len(cols))
		row[0] = []string{"V1", "V2", "V3", "V4", "V5"}[i]
		row[len(row)-2] = c
		row[len(row)-1] = cumulative
		rows.AddRow(row...)
	}
	mock.ExpectQuery("WITH costed AS").
		WithArgs(5, "%Toyota%", int64(2022), 50).
		WillReturnRows(rows)

	resp, err := svc.Search(context.Background(), Query{Make: "Toyota", Year: intPtr(2022), ContextLimit: intPtr(50), Fields: []string{"vin"}})

	require.NoError(t, err)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, 30, resp.TotalTokens)
	assert.Equal(t, "V3", resp.Data[2]["vin"])
}

func TestService_Search_NonPositiveLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)

		db := postgres.NewDBFromConn(conn, time.Second, zap.NewNop())
		svc := NewService(postgres.NewInventoryRepository(db, "", 5, zap.NewNop()), nil, 4000, zap.NewNop())

		resp, err := svc.Search(context.Background(), Query{Make: "Toyota", ContextLimit: intPtr(limit)})

		require.NoError(t, err)
		assert.Empty(t, resp.Data)
		assert.NotNil(t, resp.Data)
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	}
}

func TestService_InsertVehicles(t *testing.T) {
	t.Run("round trip through an equality filter", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		db := postgres.NewDBFromConn(conn, time.Second, zap.NewNop())
		svc := NewService(postgres.NewInventoryRepository(db, "", 5, zap.NewNop()), postgres.NewTransactionManager(db, zap.NewNop()), 4000, zap.NewNop())

		vin := "5YJ3E1EA7KF317000"
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, svc.InsertVehicles(context.Background(), []*models.InventoryRecord{{VIN: strPtr(vin), Make: strPtr("Tesla")}}))

		cols := append(append([]string{}, models.InventoryColumns...), "estimated_token_count", "cumulative_tokens")
		row := make([]driver.Value, len(cols))
		row[0] = vin
		row[4] = "Tesla"
		row[len(row)-2] = int64(4)
		row[len(row)-1] = int64(4)
		mock.ExpectQuery(`"vin" = \$2`).
			WithArgs(5, vin, 4000).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))

		resp, err := svc.Search(context.Background(), Query{VIN: vin})

		require.NoError(t, err)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "Tesla", resp.Data[0]["make"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("records need a vin", func(t *testing.T) {
		repo := new(MockInventoryRepository)
		svc := NewService(repo, nil, 4000, zap.NewNop())

		err := svc.InsertVehicles(context.Background(), []*models.InventoryRecord{{Make: strPtr("Kia")}})

		assert.True(t, services.IsValidationError(err))
		repo.AssertNotCalled(t, "WithTx", mock.Anything)
	})
}
