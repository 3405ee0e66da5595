package repository

import (
	"sync/atomic"

	"gorm.io/gorm"
)

// dbHandle holds a connection that may be injected after requests start.
type dbHandle struct {
	p atomic.Pointer[gorm.DB]
}

func (h *dbHandle) SetDB(db *gorm.DB) {
	h.p.Store(db)
}

func (h *dbHandle) conn() *gorm.DB {
	return h.p.Load()
}
