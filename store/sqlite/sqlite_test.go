package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
	"github.com/warp/leave-engine/store/storetest"
)

func newMemoryStore(t *testing.T) leave.TxStore {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newFileStore(t *testing.T, path string) *sqlite.Store {
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	storetest.Run(t, newMemoryStore)
}

func TestSQLiteStore_FileContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leave.TxStore {
		return newFileStore(t, filepath.Join(t.TempDir(), "leave.db"))
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leave.db")

	first, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateEmployee(ctx, storetest.Employee("e1", "alice@example.com")))
	require.NoError(t, first.Close())

	second := newFileStore(t, path)
	emp, err := second.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, emp)
	assert.Equal(t, "alice@example.com", emp.Email)
}

func TestSQLiteStore_TwoHandlesSerializeWriters(t *testing.T) {
	// GIVEN: Two stores opened on the same file, as two processes would
	// WHEN: Both run read-then-decrement transactions concurrently
	// THEN: BEGIN IMMEDIATE serializes them and no decrement is lost

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leave.db")
	a := newFileStore(t, path)
	b := newFileStore(t, path)
	require.NoError(t, a.CreateEmployee(ctx, storetest.Employee("e1", "alice@example.com")))

	var wg sync.WaitGroup
	for i := 0; i < leave.AnnualAllowance; i++ {
		s := a
		if i%2 == 1 {
			s = b
		}
		wg.Add(1)
		go func(s *sqlite.Store) {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx leave.Store) error {
				emp, err := tx.GetEmployee(ctx, "e1")
				if err != nil {
					return err
				}
				return tx.SetLeaveBalance(ctx, "e1", emp.LeaveBalance-1)
			})
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	emp, err := a.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, emp.LeaveBalance)
}

// =============================================================================
// STORAGE FAILURES - driven through sqlmock
// =============================================================================

func newMockEngine(t *testing.T) (*leave.Engine, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS employees").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	engine := leave.NewEngine(s, leave.WithClock(calendar.FixedClock(calendar.MustParse("2024-01-15"))))
	return engine, mock
}

var employeeColumns = []string{"id", "name", "email", "department", "joining_date", "leave_balance", "created_at"}
var leaveColumns = []string{"id", "employee_id", "start_date", "end_date", "status", "created_at", "updated_at"}

func TestSQLiteStore_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("disk I/O error"))

	_, err = sqlite.NewWithDB(db)
	assert.ErrorContains(t, err, "failed to migrate database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_QueryFailureIsStorageError(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("FROM employees WHERE id").WillReturnError(errors.New("disk I/O error"))

	_, err := engine.GetEmployee(context.Background(), "e1")

	assert.ErrorIs(t, err, leave.ErrStorage)
	assert.Equal(t, "storage_error", leave.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_BeginFailureIsStorageError(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := engine.ApplyLeave(context.Background(), "e1",
		calendar.MustParse("2024-02-01"), calendar.MustParse("2024-02-05"))

	var se *leave.StorageError
	require.ErrorAs(t, err, &se)
	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_CommitFailureIsStorageError(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM employees WHERE id").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(employeeColumns).
			AddRow("e1", "Alice", "alice@example.com", "Engineering", "2024-01-10", 20, "2024-01-10T09:00:00Z"))
	mock.ExpectQuery("FROM leave_requests").WillReturnRows(sqlmock.NewRows(leaveColumns))
	mock.ExpectExec("INSERT INTO leave_requests").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	_, err := engine.ApplyLeave(context.Background(), "e1",
		calendar.MustParse("2024-02-01"), calendar.MustParse("2024-02-05"))

	assert.ErrorIs(t, err, leave.ErrStorage)
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_CorruptRowIsStorageError(t *testing.T) {
	engine, mock := newMockEngine(t)
	mock.ExpectQuery("FROM leave_requests WHERE id").
		WillReturnRows(sqlmock.NewRows(leaveColumns).
			AddRow("l1", "e1", "2024-02-01", "2024-02-05", "cancelled", "2024-01-10T09:00:00Z", "2024-01-10T09:00:00Z"))

	_, err := engine.GetLeave(context.Background(), "l1")

	assert.ErrorIs(t, err, leave.ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
