package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) ListExpiredPending(ctx context.Context, limit int) ([]model.SafeDeal, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]model.SafeDeal)
	return list, args.Error(1)
}

func (m *mockExpirer) Expire(ctx context.Context, id string) (*model.SafeDeal, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*model.SafeDeal)
	return d, args.Error(1)
}

func (m *mockExpirer) RetryReleases(ctx context.Context, limit int) (int, error) {
	args := m.Called(ctx, limit)
	return args.Int(0), args.Error(1)
}

type recordingObserver struct {
	mu  sync.Mutex
	ids []string
}

func (o *recordingObserver) DealExpired(_ context.Context, d model.SafeDeal) {
	o.mu.Lock()
	o.ids = append(o.ids, d.ID)
	o.mu.Unlock()
}

func TestSweeper_IsolatesFailures(t *testing.T) {
	deals := new(mockExpirer)
	observer := &recordingObserver{}
	ctx := context.Background()

	deals.On("ListExpiredPending", ctx, 10).Return([]model.SafeDeal{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil).Once()
	deals.On("Expire", ctx, "a").Return(&model.SafeDeal{ID: "a", Status: model.DealStatusCancelled}, nil)
	deals.On("Expire", ctx, "b").Return(nil, errors.New("db timeout"))
	deals.On("Expire", ctx, "c").Return(nil, &TransitionError{From: model.DealStatusShipped, To: model.DealStatusCancelled})
	deals.On("RetryReleases", ctx, 10).Return(2, nil)

	s := NewSweeper(deals, observer, time.Minute, 10, zerolog.Nop())
	res, err := s.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Expired: 1, Skipped: 1, Failed: 1, Released: 2}, res)
	assert.Equal(t, []string{"a"}, observer.ids)
	deals.AssertExpectations(t)
}

func TestSweeper_DrainsFullBatches(t *testing.T) {
	deals := new(mockExpirer)
	ctx := context.Background()

	deals.On("ListExpiredPending", ctx, 2).Return([]model.SafeDeal{{ID: "a"}, {ID: "b"}}, nil).Once()
	deals.On("ListExpiredPending", ctx, 2).Return([]model.SafeDeal{{ID: "c"}}, nil).Once()
	for _, id := range []string{"a", "b", "c"} {
		deals.On("Expire", ctx, id).Return(&model.SafeDeal{ID: id}, nil).Once()
	}
	deals.On("RetryReleases", ctx, 2).Return(0, nil)

	res, err := NewSweeper(deals, nil, time.Minute, 2, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Expired)
	deals.AssertExpectations(t)
}

func TestSweeper_DoesNotRetryFailuresWithinASweep(t *testing.T) {
	deals := new(mockExpirer)
	ctx := context.Background()

	deals.On("ListExpiredPending", ctx, 2).Return([]model.SafeDeal{{ID: "a"}, {ID: "b"}}, nil).Once()
	deals.On("ListExpiredPending", ctx, 2).Return([]model.SafeDeal{{ID: "a"}, {ID: "c"}}, nil).Once()
	deals.On("ListExpiredPending", ctx, 2).Return([]model.SafeDeal{{ID: "a"}}, nil).Once()
	deals.On("Expire", ctx, "a").Return(nil, errors.New("db timeout")).Once()
	deals.On("Expire", ctx, "b").Return(&model.SafeDeal{ID: "b"}, nil).Once()
	deals.On("Expire", ctx, "c").Return(&model.SafeDeal{ID: "c"}, nil).Once()
	deals.On("RetryReleases", ctx, 2).Return(0, nil)

	res, err := NewSweeper(deals, nil, time.Minute, 2, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 2, Failed: 1}, res)
	deals.AssertNumberOfCalls(t, "Expire", 3)
	deals.AssertExpectations(t)
}

func TestSweeper_StopsWhenFullBatchMakesNoProgress(t *testing.T) {
	deals := new(mockExpirer)
	ctx := context.Background()

	deals.On("ListExpiredPending", ctx, 1).Return([]model.SafeDeal{{ID: "a"}}, nil).Once()
	deals.On("Expire", ctx, "a").Return(nil, errors.New("locked")).Once()
	deals.On("RetryReleases", ctx, 1).Return(0, nil)

	res, err := NewSweeper(deals, nil, time.Minute, 1, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	deals.AssertExpectations(t)
}

func TestSweeper_ListFailure(t *testing.T) {
	deals := new(mockExpirer)
	ctx := context.Background()
	deals.On("ListExpiredPending", ctx, 100).Return(nil, errors.New("db down"))

	_, err := NewSweeper(deals, nil, 0, 0, zerolog.Nop()).Sweep(ctx)
	assert.EqualError(t, err, "db down")
	deals.AssertNotCalled(t, "RetryReleases", mock.Anything, mock.Anything)
}

func TestSweeper_AgainstDealService(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	expiring := initiate(t, f)
	f.clock.Advance(3 * 24 * time.Hour)
	fresh, err := f.deals.Initiate(ctx, InitiateDealInput{ListingID: "listing-2", SellerID: sellerID, BuyerID: buyerID, Amount: expiring.Amount})
	require.NoError(t, err)
	f.clock.Advance(4*24*time.Hour + time.Second)

	observer := &recordingObserver{}
	res, err := NewSweeper(f.deals, observer, time.Minute, 10, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, []string{expiring.ID}, observer.ids)

	got, err := f.deals.Get(ctx, fresh.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, model.DealStatusPending, got.Status)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	deals := new(mockExpirer)
	deals.On("ListExpiredPending", mock.Anything, 100).Return(nil, nil)
	deals.On("RetryReleases", mock.Anything, 100).Return(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewSweeper(deals, nil, 5*time.Millisecond, 100, zerolog.Nop()).Run(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
