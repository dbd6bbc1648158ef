package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// Store is the durable record of handled events. The uniqueness constraint
// on (event ID, kind) is the only thing standing between a webhook retry
// and a double reply, so claims go through the store, never through
// process memory.
type Store interface {
	// HasProcessed reports whether any record exists for the event.
	HasProcessed(ctx context.Context, eventID string, kind pkg.EventKind) (bool, error)
	// Claim atomically inserts a pending record for ev. It reports false
	// when a record already exists, whether claimed or terminal.
	Claim(ctx context.Context, ev pkg.Event) (bool, error)
	// RecordOutcome finalizes the pending record for rec's event. Terminal
	// records are never overwritten.
	RecordOutcome(ctx context.Context, rec pkg.ProcessedRecord) error
	// ReleaseClaim removes a pending record so the event can be retried on
	// a later trigger. Terminal records are left alone.
	ReleaseClaim(ctx context.Context, eventID string, kind pkg.EventKind) error
}

// ReplyChecker looks for an answer the page already gave outside this
// process, such as a human replying from the page inbox. Optional.
type ReplyChecker interface {
	PriorReply(ctx context.Context, ev pkg.Event) (string, bool, error)
}

// Notifier pushes operator alerts. Optional.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// storageAbortAfter is how many storage failures in a row a batch tolerates
// before giving up. An outage is not something to grind through; the
// untouched events stay unprocessed for the next trigger.
const storageAbortAfter = 3

// Pipeline drives one event through filtering, dedup, context assembly,
// generation and dispatch, and records the terminal outcome.
type Pipeline struct {
	PageID     string
	Store      Store
	Assembler  *Assembler
	Responder  *Responder
	Dispatcher *Dispatcher
	Checker    ReplyChecker
	Notifier   Notifier

	Workers     int           // concurrent events per batch
	MaxAttempts int           // dispatch attempts per event
	RetryDelay  time.Duration // first retry delay, grows linearly

	recordTimeout time.Duration
}

// NewPipeline wires the stages together with conservative defaults. The
// worker bound stays small on purpose: the platform quotas are tens of
// calls per minute, not thousands.
func NewPipeline(pageID string, store Store, asm *Assembler, resp *Responder, disp *Dispatcher) *Pipeline {
	return &Pipeline{
		PageID:        pageID,
		Store:         store,
		Assembler:     asm,
		Responder:     resp,
		Dispatcher:    disp,
		Workers:       2,
		MaxAttempts:   3,
		RetryDelay:    time.Second,
		recordTimeout: 10 * time.Second,
	}
}

// Process runs one event to a terminal outcome. An empty Outcome in the
// result means the event was abandoned (cancellation, or storage trouble)
// and remains unprocessed for the next trigger. The returned error is
// non-nil only when storage failed; batch callers use it to detect an
// outage.
func (p *Pipeline) Process(ctx context.Context, ev pkg.Event) (pkg.EventResult, error) {
	res := pkg.EventResult{EventID: ev.ID, Kind: ev.Kind}
	if ev.ID == "" {
		res.Outcome = pkg.OutcomeFailed
		res.Error = "event without ID"
		return res, nil
	}
	if ctx.Err() != nil {
		res.Error = ctx.Err().Error()
		return res, nil
	}

	// Cheap read first; most duplicates are poll re-observations of long
	// finished events and should not cost a write.
	seen, err := p.Store.HasProcessed(ctx, ev.ID, ev.Kind)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("dedup check for %s %s: %w", ev.Kind, ev.ID, err)
	}
	if seen {
		res.Outcome = pkg.OutcomeSkipped
		return res, nil
	}

	// The claim is the real dedup gate: under concurrent delivery of the
	// same event the insert wins exactly once.
	claimed, err := p.Store.Claim(ctx, ev)
	if err != nil {
		res.Error = err.Error()
		return res, fmt.Errorf("claim for %s %s: %w", ev.Kind, ev.ID, err)
	}
	if !claimed {
		res.Outcome = pkg.OutcomeSkipped
		return res, nil
	}

	rec := pkg.ProcessedRecord{
		EventID:    ev.ID,
		Kind:       ev.Kind,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Text:       ev.Text,
	}

	// Filters. Self-authored events would loop the bot against itself.
	switch {
	case ev.SenderID != "" && ev.SenderID == p.PageID:
		return p.finish(&res, rec, pkg.OutcomeSkipped, "", false, "own page event")
	case ev.Hidden:
		return p.finish(&res, rec, pkg.OutcomeSkipped, "", false, "hidden comment")
	case strings.TrimSpace(ev.Text) == "":
		return p.finish(&res, rec, pkg.OutcomeSkipped, "", false, "empty text")
	}

	// A human may have answered from the page while the bot was down. The
	// check is best effort: on error, proceed as if there were no reply.
	if p.Checker != nil {
		replyID, found, err := p.Checker.PriorReply(ctx, ev)
		if err != nil {
			log.Printf("prior-reply check for %s %s: %v", ev.Kind, ev.ID, err)
		} else if found {
			return p.finish(&res, rec, pkg.OutcomeReplied, replyID, false, "already answered on the platform")
		}
	}

	turns := p.Assembler.Fetch(ctx, ev)

	text, degraded, err := p.Responder.Generate(ctx, turns, ev)
	if err != nil {
		if errors.Is(err, ErrEmptyInput) {
			return p.finish(&res, rec, pkg.OutcomeSkipped, "", false, "empty text")
		}
		res.Error = err.Error()
		return p.finish(&res, rec, pkg.OutcomeFailed, "", false, err.Error())
	}
	if ctx.Err() != nil {
		p.release(ev)
		res.Error = ctx.Err().Error()
		return res, nil
	}

	replyID, derr := p.dispatch(ctx, ev, text)
	if derr != nil {
		if ctx.Err() != nil {
			// Batch deadline hit mid-dispatch: abandon rather than fail,
			// the next trigger gets another go at it.
			p.release(ev)
			res.Error = derr.Error()
			return res, nil
		}
		var de *DispatchError
		if errors.As(derr, &de) && !de.Transient {
			p.alert(fmt.Sprintf("⚠️ could not answer %s %s from %s: %v", ev.Kind, ev.ID, ev.SenderName, de.Err))
		}
		res.Error = derr.Error()
		return p.finish(&res, rec, pkg.OutcomeFailed, "", degraded, derr.Error())
	}

	log.Printf("✓ replied to %s's %s %s", ev.SenderName, ev.Kind, ev.ID)
	note := ""
	if degraded {
		note = "fallback reply"
	}
	return p.finish(&res, rec, pkg.OutcomeReplied, replyID, degraded, note)
}

// dispatch posts the reply, retrying transient failures with a growing
// delay. Permanent failures and cancellation abort immediately.
func (p *Pipeline) dispatch(ctx context.Context, ev pkg.Event, text string) (string, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * p.RetryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		replyID, err := p.Dispatcher.Dispatch(ctx, ev, text)
		if err == nil {
			return replyID, nil
		}
		lastErr = err
		var de *DispatchError
		if errors.As(err, &de) && !de.Transient {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("dispatch attempt %d/%d for %s %s failed: %v", attempt, attempts, ev.Kind, ev.ID, err)
	}
	return "", lastErr
}

// finish writes the terminal record and fills in the result. Recording
// runs on its own context: once a reply is out, the outcome must land even
// when the batch deadline has already passed.
func (p *Pipeline) finish(res *pkg.EventResult, rec pkg.ProcessedRecord, outcome pkg.Outcome, replyID string, degraded bool, note string) (pkg.EventResult, error) {
	rec.Outcome = outcome
	rec.ReplyID = replyID
	rec.Degraded = degraded
	rec.Note = note
	rec.ProcessedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), p.recordTimeout)
	defer cancel()
	if err := p.Store.RecordOutcome(ctx, rec); err != nil {
		log.Printf("record outcome for %s %s: %v", rec.Kind, rec.EventID, err)
		res.Outcome = outcome
		res.ReplyID = replyID
		res.Degraded = degraded
		res.Error = "record outcome: " + err.Error()
		return *res, fmt.Errorf("record outcome for %s %s: %w", rec.Kind, rec.EventID, err)
	}
	res.Outcome = outcome
	res.ReplyID = replyID
	res.Degraded = degraded
	return *res, nil
}

// release drops the pending claim so a later trigger can pick the event up
// again. Runs on its own context, the batch one is usually dead here.
func (p *Pipeline) release(ev pkg.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.recordTimeout)
	defer cancel()
	if err := p.Store.ReleaseClaim(ctx, ev.ID, ev.Kind); err != nil {
		log.Printf("release claim for %s %s: %v", ev.Kind, ev.ID, err)
	}
}

func (p *Pipeline) alert(text string) {
	if p.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Notifier.Notify(ctx, text)
}

// ProcessBatch runs a batch oldest-first through a bounded worker pool and
// returns one result per event, in the sorted order. A failing event never
// blocks the others; repeated storage failures abort the whole batch
// early, leaving the untouched events for the next trigger.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []pkg.Event) []pkg.EventResult {
	if len(events) == 0 {
		return nil
	}
	batch := make([]pkg.Event, len(events))
	copy(batch, events)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Timestamp.Before(batch[j].Timestamp)
	})

	results := make([]pkg.EventResult, len(batch))
	for i, ev := range batch {
		results[i] = pkg.EventResult{EventID: ev.ID, Kind: ev.Kind}
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var storageFailures atomic.Int32
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := p.Process(batchCtx, batch[i])
				results[i] = res
				if err != nil {
					if storageFailures.Add(1) >= storageAbortAfter {
						log.Printf("⚠️  storage unavailable, aborting batch: %v", err)
						cancel()
					}
				} else {
					storageFailures.Store(0)
				}
			}
		}()
	}

feed:
	for i := range batch {
		select {
		case jobs <- i:
		case <-batchCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
