package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// SweepSource lists candidate events from the platform.
type SweepSource interface {
	CommentEvents(ctx context.Context) ([]pkg.Event, error)
	MessageEvents(ctx context.Context) ([]pkg.Event, error)
}

// LeaseStore hands out named, time-bounded locks. The sweep lease lives in
// the same store as the dedup records so it holds across processes that
// share nothing but the database.
type LeaseStore interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

// ActivityLog keeps an audit trail of sweep-level happenings. Optional.
type ActivityLog interface {
	LogActivity(ctx context.Context, kind, details string) error
}

// sweepLease names the lock that keeps poll sweeps from overlapping.
const sweepLease = "poll-sweep"

// Sweeper periodically pulls recent comments and messages and runs them
// through the pipeline. A sweep that finds the lease taken skips its turn
// instead of piling onto a backlog another instance is already working.
type Sweeper struct {
	Source   SweepSource
	Pipeline *Pipeline
	Leases   LeaseStore
	Activity ActivityLog

	Interval time.Duration
	Timeout  time.Duration

	holder string
}

// NewSweeper builds a Sweeper polling every 60 seconds, each sweep bounded
// at five minutes.
func NewSweeper(source SweepSource, pipeline *Pipeline, leases LeaseStore) *Sweeper {
	return &Sweeper{
		Source:   source,
		Pipeline: pipeline,
		Leases:   leases,
		Interval: 60 * time.Second,
		Timeout:  5 * time.Minute,
		holder:   uuid.NewString(),
	}
}

// Run sweeps once immediately and then on every tick until ctx is
// canceled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("polling for new comments and messages every %s", s.Interval)
	s.sweepOnce(ctx)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("poller stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if err := s.Sweep(sweepCtx); err != nil {
		log.Printf("sweep failed: %v", err)
	}
}

// Sweep runs one full pass: comments first, then messages, each batch
// oldest first. It returns without touching the platform when another
// holder has the lease.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ok, err := s.Leases.AcquireLease(ctx, sweepLease, s.holder, s.leaseTTL())
	if err != nil {
		return fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		log.Printf("previous sweep still holds the lease, skipping this one")
		return nil
	}
	defer s.releaseLease()

	started := time.Now()
	var results []pkg.EventResult

	comments, err := s.Source.CommentEvents(ctx)
	if err != nil {
		log.Printf("list comments: %v", err)
	} else {
		results = append(results, s.Pipeline.ProcessBatch(ctx, comments)...)
	}

	messages, err := s.Source.MessageEvents(ctx)
	if err != nil {
		log.Printf("list messages: %v", err)
	} else {
		results = append(results, s.Pipeline.ProcessBatch(ctx, messages)...)
	}

	replied, skipped, failed, pending := tally(results)
	summary := fmt.Sprintf("%d replied, %d skipped, %d failed, %d left for next pass",
		replied, skipped, failed, pending)
	log.Printf("sweep done in %s: %s", time.Since(started).Round(time.Millisecond), summary)
	s.logActivity(summary)
	return nil
}

// leaseTTL must outlive the sweep timeout so the lease cannot expire under
// a live sweep, while still freeing the lock after a crashed holder.
func (s *Sweeper) leaseTTL() time.Duration {
	return s.Timeout + 30*time.Second
}

// releaseLease runs on its own context, the sweep one may be dead here.
func (s *Sweeper) releaseLease() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Leases.ReleaseLease(ctx, sweepLease, s.holder); err != nil {
		log.Printf("release sweep lease: %v", err)
	}
}

func (s *Sweeper) logActivity(details string) {
	if s.Activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Activity.LogActivity(ctx, "sweep", details); err != nil {
		log.Printf("log sweep activity: %v", err)
	}
}

func tally(results []pkg.EventResult) (replied, skipped, failed, pending int) {
	for _, r := range results {
		switch r.Outcome {
		case pkg.OutcomeReplied:
			replied++
		case pkg.OutcomeSkipped:
			skipped++
		case pkg.OutcomeFailed:
			failed++
		default:
			pending++
		}
	}
	return
}
