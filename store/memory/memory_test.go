package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leave.TxStore { return memory.New() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateEmployee(ctx, storetest.Employee("e1", "alice@example.com")))

	got, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	got.LeaveBalance = 0

	again, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, leave.AnnualAllowance, again.LeaveBalance)
}

func TestMemoryStore_WithTxSerializes(t *testing.T) {
	// GIVEN: One employee with 20 days
	// WHEN: 20 transactions each read the balance and write it back minus one
	// THEN: No decrement is lost

	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateEmployee(ctx, storetest.Employee("e1", "alice@example.com")))

	var wg sync.WaitGroup
	for i := 0; i < leave.AnnualAllowance; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(tx leave.Store) error {
				emp, err := tx.GetEmployee(ctx, "e1")
				if err != nil {
					return err
				}
				return tx.SetLeaveBalance(ctx, "e1", emp.LeaveBalance-1)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, emp.LeaveBalance)
}

func TestMemoryStore_WithTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := memory.New().WithTx(ctx, func(leave.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
