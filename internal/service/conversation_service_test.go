package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationService_StartIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.convs.Start(ctx, listing, buyerID, sellerID)
	require.NoError(t, err)
	second, err := f.convs.Start(ctx, listing, buyerID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := f.convs.Start(ctx, "listing-2", buyerID, sellerID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestConversationService_ConcurrentStartYieldsOne(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cv, err := f.convs.Start(ctx, listing, buyerID, sellerID)
			if assert.NoError(t, err) {
				ids[i] = cv.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestConversationService_InvalidParticipants(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.convs.Start(ctx, listing, sellerID, sellerID)
	assert.ErrorIs(t, err, ErrInvalidParticipants)
	_, err = f.convs.Start(ctx, "", buyerID, sellerID)
	assert.ErrorIs(t, err, ErrInvalidParticipants)
	_, err = f.convs.Start(ctx, strings.Repeat("l", MaxIDLength+1), buyerID, sellerID)
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestConversationService_FindAndGet(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.convs.Find(ctx, listing, buyerID, sellerID)
	assert.ErrorIs(t, err, ErrNotFound)

	cv, err := f.convs.Start(ctx, listing, buyerID, sellerID)
	require.NoError(t, err)

	found, err := f.convs.Find(ctx, listing, buyerID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, cv.ID, found.ID)

	_, err = f.convs.Get(ctx, cv.ID, "stranger")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.convs.Get(ctx, "missing", buyerID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.convs.Get(ctx, cv.ID, sellerID)
	require.NoError(t, err)
	assert.Equal(t, cv.ID, got.ID)
}

func TestConversationService_ListByRecentActivity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	older, err := f.convs.Start(ctx, "l1", buyerID, sellerID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	newer, err := f.convs.Start(ctx, "l2", buyerID, "seller-2")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	// A message moves the older conversation to the top.
	_, err = f.msgs.Append(ctx, older.ID, sellerID, "still available")
	require.NoError(t, err)

	list, err := f.convs.List(ctx, buyerID, Page{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, RoleBuyer, list[0].Role)
	assert.EqualValues(t, 1, list[0].UnreadCount)
	assert.Equal(t, newer.ID, list[1].ID)
	assert.EqualValues(t, 0, list[1].UnreadCount)

	sellerView, err := f.convs.List(ctx, sellerID, Page{})
	require.NoError(t, err)
	require.Len(t, sellerView, 1)
	assert.Equal(t, RoleSeller, sellerView[0].Role)
	assert.EqualValues(t, 0, sellerView[0].UnreadCount)
}
