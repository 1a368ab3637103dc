// Package idempotency guarantees at most one effect per
// (tenant, subject, rule) inside a sliding time window.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/model"
)

// Key identifies the subject a rule acted on.
type Key struct {
	TenantID    int64
	SubjectType string
	SubjectID   int64
	RuleKey     string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%d/%s", k.TenantID, k.SubjectType, k.SubjectID, k.RuleKey)
}

// ErrReadOnly is returned by Record on a guard without a writable store.
var ErrReadOnly = eris.New("idempotency: guard is read-only")

// Lookup reads idempotency records.
type Lookup interface {
	// LastPerformed returns the newest performed_at for key, or nil.
	LastPerformed(ctx context.Context, key Key) (*time.Time, error)
}

// Store persists idempotency records.
type Store interface {
	Lookup
	// InsertRecord inserts rec unless a record for the same key has
	// performed_at >= since or the (key, window_bucket) unique index already
	// holds a row. It reports whether a row was written.
	InsertRecord(ctx context.Context, rec model.IdempotencyRecord, since time.Time) (bool, error)
}

// Days converts a window in days to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Guard answers "already acted in this window?" and records actions.
// A zero or negative window disables the guard for that call.
type Guard struct {
	lookup Lookup
	// store is nil when lookup cannot write.
	store Store
	now   func() time.Time
}

// New creates a Guard reading from l. When l also implements Store the guard
// can record; otherwise bind a writable store with With before Record.
// A nil now uses time.Now.
func New(l Lookup, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	g := &Guard{lookup: l, now: now}
	if s, ok := l.(Store); ok {
		g.store = s
	}
	return g
}

// With returns a Guard bound to s, typically a tenant transaction, sharing g's clock.
func (g *Guard) With(s Store) *Guard {
	return &Guard{lookup: s, store: s, now: g.now}
}

// Seen reports whether key has a record with performed_at >= now - window.
func (g *Guard) Seen(ctx context.Context, key Key, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	last, err := g.lookup.LastPerformed(ctx, key)
	if err != nil {
		return false, eris.Wrapf(err, "idempotency: seen %s", key)
	}
	if last == nil {
		return false, nil
	}
	return !last.Before(g.now().Add(-window)), nil
}

// Record writes the record for key. The existence check and the insert are a
// single statement, so of two overlapping passes only one gets true.
func (g *Guard) Record(ctx context.Context, key Key, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	if g.store == nil {
		return false, eris.Wrapf(ErrReadOnly, "idempotency: record %s", key)
	}
	now := g.now().UTC()
	rec := NewRecord(key, window, now)
	ok, err := g.store.InsertRecord(ctx, rec, now.Add(-window))
	if err != nil {
		return false, eris.Wrapf(err, "idempotency: record %s", key)
	}
	return ok, nil
}

// NewRecord builds the record for key performed at now.
func NewRecord(key Key, window time.Duration, now time.Time) model.IdempotencyRecord {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	bucket := now.Unix() / secs
	return model.IdempotencyRecord{
		ID:           uuid.New().String(),
		TenantID:     key.TenantID,
		SubjectType:  key.SubjectType,
		SubjectID:    key.SubjectID,
		RuleKey:      key.RuleKey,
		WindowStart:  time.Unix(bucket*secs, 0).UTC(),
		WindowBucket: bucket,
		PerformedAt:  now,
	}
}
