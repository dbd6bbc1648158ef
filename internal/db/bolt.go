package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/internal/core"
	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// claimTTL is how long a pending claim blocks re-claiming before it is
// considered abandoned by a crashed process. Matches the takeover interval
// in the Postgres claim.
const claimTTL = 10 * time.Minute

var (
	bucketProcessed = []byte("processed")
	bucketLeases    = []byte("leases")
	bucketActivity  = []byte("activity")
)

// BoltStore is the single-file event store used when no DATABASE_URL is
// configured. Bolt serializes writers, so the insert-if-absent claim is
// atomic the same way the Postgres primary key makes it; the file only
// protects against restarts, not against multiple processes (bolt locks
// the file exclusively, a second process simply fails to open it).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the store file and its buckets.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketProcessed, bucketLeases, bucketActivity} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the store file.
func (s *BoltStore) Close() error { return s.db.Close() }

var (
	_ core.Store       = (*BoltStore)(nil)
	_ core.LeaseStore  = (*BoltStore)(nil)
	_ core.ActivityLog = (*BoltStore)(nil)
)

func eventKey(eventID string, kind pkg.EventKind) []byte {
	return []byte(string(kind) + "/" + eventID)
}

type boltLease struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

type boltActivity struct {
	Type      string    `json:"activity_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// HasProcessed reports whether the event has a terminal record. Pending
// claims do not count, mirroring the Postgres store.
func (s *BoltStore) HasProcessed(ctx context.Context, eventID string, kind pkg.EventKind) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketProcessed).Get(eventKey(eventID, kind))
		if raw == nil {
			return nil
		}
		var rec pkg.ProcessedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		seen = rec.Outcome != pkg.OutcomePending
		return nil
	})
	return seen, err
}

// Claim inserts a pending record if none exists, taking over claims older
// than claimTTL.
func (s *BoltStore) Claim(ctx context.Context, ev pkg.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	claimed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcessed)
		key := eventKey(ev.ID, ev.Kind)
		if raw := b.Get(key); raw != nil {
			var existing pkg.ProcessedRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if existing.Outcome != pkg.OutcomePending ||
				time.Since(existing.ProcessedAt) < claimTTL {
				return nil
			}
		}
		rec := pkg.ProcessedRecord{
			EventID:     ev.ID,
			Kind:        ev.Kind,
			Outcome:     pkg.OutcomePending,
			SenderID:    ev.SenderID,
			SenderName:  ev.SenderName,
			Text:        ev.Text,
			ProcessedAt: time.Now().UTC(),
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(key, raw); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// RecordOutcome finalizes a pending record. Terminal records stay as they
// are.
func (s *BoltStore) RecordOutcome(ctx context.Context, rec pkg.ProcessedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcessed)
		key := eventKey(rec.EventID, rec.Kind)
		raw := b.Get(key)
		if raw == nil {
			return fmt.Errorf("no pending record for %s %s", rec.Kind, rec.EventID)
		}
		var existing pkg.ProcessedRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		if existing.Outcome != pkg.OutcomePending {
			return fmt.Errorf("no pending record for %s %s", rec.Kind, rec.EventID)
		}
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

// ReleaseClaim drops a pending record; terminal records are left alone.
func (s *BoltStore) ReleaseClaim(ctx context.Context, eventID string, kind pkg.EventKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProcessed)
		key := eventKey(eventID, kind)
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		var rec pkg.ProcessedRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.Outcome != pkg.OutcomePending {
			return nil
		}
		return b.Delete(key)
	})
}

// AcquireLease takes or extends the named lease.
func (s *BoltStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		if raw := b.Get([]byte(name)); raw != nil {
			var lease boltLease
			if err := json.Unmarshal(raw, &lease); err != nil {
				return err
			}
			if lease.Holder != holder && time.Now().Before(lease.ExpiresAt) {
				return nil
			}
		}
		raw, err := json.Marshal(boltLease{Holder: holder, ExpiresAt: time.Now().Add(ttl)})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(name), raw); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

// ReleaseLease frees the lease if holder still owns it.
func (s *BoltStore) ReleaseLease(ctx context.Context, name, holder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		raw := b.Get([]byte(name))
		if raw == nil {
			return nil
		}
		var lease boltLease
		if err := json.Unmarshal(raw, &lease); err != nil {
			return err
		}
		if lease.Holder != holder {
			return nil
		}
		return b.Delete([]byte(name))
	})
}

// LogActivity appends one row to the audit trail.
func (s *BoltStore) LogActivity(ctx context.Context, kind, details string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(boltActivity{
			Type:      kind,
			Details:   details,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketActivity).Put([]byte(uuid.NewString()), raw)
	})
}

// Stats counts terminal records per kind and outcome.
func (s *BoltStore) Stats(ctx context.Context) (pkg.Stats, error) {
	var stats pkg.Stats
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProcessed).ForEach(func(_, raw []byte) error {
			var rec pkg.ProcessedRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.Outcome == pkg.OutcomePending {
				return nil
			}
			switch rec.Kind {
			case pkg.KindComment:
				stats.CommentsProcessed++
				if rec.Outcome == pkg.OutcomeReplied {
					stats.CommentsReplied++
				}
			case pkg.KindMessage:
				stats.MessagesProcessed++
				if rec.Outcome == pkg.OutcomeReplied {
					stats.MessagesReplied++
				}
			}
			return nil
		})
	})
	return stats, err
}
