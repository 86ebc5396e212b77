package session

import (
	"sync"
	"time"
)

// ScheduledContext is the advisory scheduling state of one conversation. The
// raw message log stays authoritative; this is rebuilt from it on restart.
type ScheduledContext struct {
	LastScheduledAt   time.Time
	LastWasScheduled  bool
	NextScheduledTime time.Time
}

type Session struct {
	mu         sync.Mutex
	scheduled  ScheduledContext
	loaded     bool
	processing sync.Mutex
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}
