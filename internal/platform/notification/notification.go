// Package notification carries a single flash notification across a
// navigation boundary: the filing step stores it, the next screen takes it
// once, and it expires on its own if nobody does.
package notification

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// ---------------------------------------------------------------------------
// Flash
// ---------------------------------------------------------------------------

// Severity classifies a flash notification for presentation.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Flash is a transient status message handed to the next screen.
type Flash struct {
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Details  []string      `json:"details,omitempty"`
	TTL      time.Duration `json:"-"`

	// Remaining is the display time left when the flash is taken.
	Remaining time.Duration `json:"-"`
	// RemainingMS mirrors Remaining for JSON consumers.
	RemainingMS int64 `json:"remaining_ms"`
}

type stored struct {
	flash     Flash
	expiresAt time.Time
}

// ---------------------------------------------------------------------------
// FlashStore
// ---------------------------------------------------------------------------

const flashKey = "flash"

// FlashStore holds at most one pending flash.
type FlashStore struct {
	cache      *cache.Cache
	defaultTTL time.Duration
	now        func() time.Time
}

// NewFlashStore creates a store whose flashes expire after defaultTTL unless
// they carry their own TTL.
func NewFlashStore(defaultTTL time.Duration) *FlashStore {
	return &FlashStore{
		cache:      cache.New(defaultTTL, time.Minute),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Put replaces any pending flash.
func (s *FlashStore) Put(f Flash) {
	ttl := f.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	f.TTL = ttl
	s.cache.Set(flashKey, stored{flash: f, expiresAt: s.now().Add(ttl)}, ttl)
}

// Take returns the pending flash with its remaining display duration and
// removes it. The second result is false when nothing is pending.
func (s *FlashStore) Take() (Flash, bool) {
	x, found := s.cache.Get(flashKey)
	if !found {
		return Flash{}, false
	}
	s.cache.Delete(flashKey)

	st := x.(stored)
	remaining := st.expiresAt.Sub(s.now())
	if remaining <= 0 {
		return Flash{}, false
	}
	f := st.flash
	f.Remaining = remaining
	f.RemainingMS = remaining.Milliseconds()
	return f, true
}

// Pending reports whether a flash is waiting to be taken.
func (s *FlashStore) Pending() bool {
	_, found := s.cache.Get(flashKey)
	return found
}
