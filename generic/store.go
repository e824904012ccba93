/*
store.go - Persistence, locking and notification contracts

PURPOSE:
  Defines the interface between the payroll engine and its substrate.
  The engine keeps three JSON documents (roster, cycle store, payments
  ledger) under well-known keys. Each document carries a version so that
  concurrent writers detect each other instead of silently overwriting.

KEY INTERFACES:
  KV:         Versioned get/set of JSON documents
  Locker:     Keyed mutual exclusion (one employee = one key)
  Notifier:   Best-effort "something changed" fan-out
  Subscriber: Receiving side of Notifier

OPTIMISTIC WRITES:
  Get returns the document and its version. Set succeeds only if the
  stored version still equals the expected one; otherwise it returns
  ErrConcurrentModification and the caller re-reads and re-applies.
  Version 0 means "absent". AnyVersion skips the check (seeding, resets).

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for testing and single-process use
  - store/sqlite/sqlite.go: SQLite file database
  - store/redis/redis.go: Redis (KV, distributed lock, pub/sub)

EXAMPLE:
  data, version, err := kv.Get(ctx, "bakery_employee_cycles")
  ...
  _, err = kv.Set(ctx, "bakery_employee_cycles", updated, version)
  if generic.IsRetryable(err) {
      // lost the race, read again
  }

SEE ALSO:
  - errors.go: Error values returned by adapters
  - payroll/repository.go: Typed access on top of KV
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// KV - Versioned document store
// =============================================================================

// Version is a monotonically increasing revision of one key.
type Version int64

// AnyVersion disables the optimistic check on Set.
const AnyVersion Version = -1

// KV handles persistence of JSON documents.
type KV interface {
	// Get returns the raw document and its version.
	// A missing key returns (nil, 0, nil).
	Get(ctx context.Context, key string) ([]byte, Version, error)

	// Set stores value if the current version equals expected and returns
	// the new version. Returns ErrConcurrentModification on mismatch.
	Set(ctx context.Context, key string, value []byte, expected Version) (Version, error)
}

// =============================================================================
// LOCKER - Keyed mutual exclusion
// =============================================================================

// Unlock releases a lock obtained from a Locker. Safe to call once.
type Unlock func()

// Locker serializes work on one key (an employee id) across goroutines
// or, for distributed implementations, across processes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	// Returns ErrLockNotObtained when the wait is abandoned.
	Lock(ctx context.Context, key string) (Unlock, error)
}

// =============================================================================
// NOTIFICATION - Best-effort change fan-out
// =============================================================================

// Topic names one kind of change.
type Topic string

const (
	TopicCyclesChanged Topic = "cycles.changed"
	TopicLedgerChanged Topic = "ledger.changed"
	TopicRosterChanged Topic = "roster.changed"
)

// Event tells listeners which documents changed. Listeners re-read the
// store; events never carry the new state itself.
type Event struct {
	Topic       Topic     `json:"topic"`
	EmployeeIDs []string  `json:"employee_ids,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier publishes change events. Delivery is not guaranteed.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers events to fn until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(Event)) error
}
