package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBranchOrderSyncer simula a entrega ao serviço de filiais
type MockBranchOrderSyncer struct {
	mock.Mock
}

func (m *MockBranchOrderSyncer) Sync(ctx context.Context, event *BranchOrderSyncEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func enqueueEvent(t *testing.T, store *memoryStore, branchOrderID string, status OrderStatus) *BranchOrderSyncEvent {
	t.Helper()
	event := NewBranchOrderSyncEvent(&Order{ID: "order-" + branchOrderID, OriginalBranchOrderID: branchOrderID, Status: status})
	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.InsertSyncEvent(context.Background(), tx, event))
	require.NoError(t, tx.Commit())
	return event
}

func TestSyncBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, syncBackoff(1))
	assert.Equal(t, 4*time.Second, syncBackoff(2))
	assert.Equal(t, 256*time.Second, syncBackoff(8))
	assert.Equal(t, 5*time.Minute, syncBackoff(9))
	assert.Equal(t, 5*time.Minute, syncBackoff(40))
}

func TestSyncDrainer_DeliversDueEvents(t *testing.T) {
	// Arrange
	store := newMemoryStore()
	first := enqueueEvent(t, store, "bo-1", OrderStatusAccepted)
	second := enqueueEvent(t, store, "bo-2", OrderStatusShipped)

	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.MatchedBy(func(e *BranchOrderSyncEvent) bool { return e.ID == first.ID })).Return(nil).Once()
	syncer.On("Sync", mock.Anything, mock.MatchedBy(func(e *BranchOrderSyncEvent) bool { return e.ID == second.ID })).Return(nil).Once()
	drainer := NewSyncDrainer(store, syncer, time.Second, 5)

	// Act
	delivered, err := drainer.DrainOnce(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	for _, e := range store.syncEvents() {
		assert.NotNil(t, e.DeliveredAt)
	}

	delivered, err = drainer.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered, "delivered events are not claimed again")
	syncer.AssertExpectations(t)
}

func TestSyncDrainer_RetriesWithBackoff(t *testing.T) {
	// Arrange
	store := newMemoryStore()
	enqueueEvent(t, store, "bo-1", OrderStatusAccepted)

	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()
	drainer := NewSyncDrainer(store, syncer, time.Second, 5)
	now := time.Now()
	drainer.now = func() time.Time { return now }

	// Act
	delivered, err := drainer.DrainOnce(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	events := store.syncEvents()
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Attempts)
	assert.Equal(t, "connection refused", events[0].LastError)
	assert.Equal(t, now.Add(2*time.Second), events[0].NextAttemptAt)
	assert.False(t, events[0].Dead)

	delivered, err = drainer.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered, "not due yet")

	syncer.On("Sync", mock.Anything, mock.Anything).Return(nil).Once()
	drainer.now = func() time.Time { return now.Add(3 * time.Second) }
	delivered, err = drainer.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Empty(t, store.syncEvents()[0].LastError)
	syncer.AssertExpectations(t)
}

func TestSyncDrainer_DeliversWithoutHoldingTransaction(t *testing.T) {
	// Arrange
	store := newMemoryStore()
	enqueueEvent(t, store, "bo-1", OrderStatusAccepted)
	now := time.Now()

	var txFree bool
	var claimedByOther int
	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			txFree = store.txMu.TryLock()
			if !txFree {
				return
			}
			store.txMu.Unlock()

			tx, err := store.BeginTx(context.Background())
			require.NoError(t, err)
			defer tx.Rollback()
			leased, err := store.ClaimDueSyncEvents(context.Background(), tx, now, syncBatchSize)
			require.NoError(t, err)
			claimedByOther = len(leased)
		}).
		Return(nil).Once()
	drainer := NewSyncDrainer(store, syncer, time.Second, 5)
	drainer.now = func() time.Time { return now }

	// Act
	delivered, err := drainer.DrainOnce(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.True(t, txFree, "sync must run with no transaction open")
	assert.Zero(t, claimedByOther, "leased event is not claimed twice")
	assert.NotNil(t, store.syncEvents()[0].DeliveredAt)
	syncer.AssertExpectations(t)
}

func TestSyncDrainer_ParksAfterMaxAttempts(t *testing.T) {
	store := newMemoryStore()
	enqueueEvent(t, store, "bo-1", OrderStatusAccepted)
	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.Anything).Return(errors.New("503"))
	drainer := NewSyncDrainer(store, syncer, time.Second, 2)
	now := time.Now()

	for i := 0; i < 4; i++ {
		drainer.now = func() time.Time { return now.Add(time.Duration(i) * time.Hour) }
		_, err := drainer.DrainOnce(context.Background())
		require.NoError(t, err)
	}

	event := store.syncEvents()[0]
	assert.True(t, event.Dead)
	assert.Equal(t, 2, event.Attempts)
	syncer.AssertNumberOfCalls(t, "Sync", 2)
}

func TestSyncDrainer_PermanentFailureParksImmediately(t *testing.T) {
	store := newMemoryStore()
	enqueueEvent(t, store, "bo-404", OrderStatusAccepted)
	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.Anything).Return(fmt.Errorf("branch order unknown: %w", ErrPermanentSync))
	drainer := NewSyncDrainer(store, syncer, time.Second, 10)

	_, err := drainer.DrainOnce(context.Background())

	require.NoError(t, err)
	event := store.syncEvents()[0]
	assert.True(t, event.Dead)
	assert.Equal(t, 1, event.Attempts)
}

func TestSyncDrainer_RunStopsOnCancel(t *testing.T) {
	store := newMemoryStore()
	enqueueEvent(t, store, "bo-1", OrderStatusAccepted)
	syncer := new(MockBranchOrderSyncer)
	syncer.On("Sync", mock.Anything, mock.Anything).Return(nil)
	drainer := NewSyncDrainer(store, syncer, 10*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		drainer.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return store.syncEvents()[0].DeliveredAt != nil
	}, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drainer did not stop")
	}
}
