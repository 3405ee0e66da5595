package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/custody"
	"github.com/shinyyama/safedeal/internal/db"
	"github.com/shinyyama/safedeal/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	deals    DealService
	convs    ConversationService
	msgs     MessageService
	dealRepo repository.DealRepository
}

func newFixture(t *testing.T, custodian custody.Custodian) *fixture {
	t.Helper()
	gdb := newTestDB(t)
	clock := newTestClock()
	dealRepo := repository.NewDealRepository(gdb)
	convRepo := repository.NewConversationRepository(gdb)
	msgRepo := repository.NewMessageRepository(gdb)
	return &fixture{
		db:    gdb,
		clock: clock,
		deals: NewDealService(dealRepo, custodian, DealConfig{
			Expiry:                7 * 24 * time.Hour,
			RejectDuplicateActive: true,
			Now:                   clock.Now,
		}, zerolog.Nop()),
		convs:    NewConversationService(convRepo, msgRepo, clock.Now, zerolog.Nop()),
		msgs:     NewMessageService(convRepo, msgRepo, 0, clock.Now, zerolog.Nop()),
		dealRepo: dealRepo,
	}
}
