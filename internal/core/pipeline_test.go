package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AbeneilMagpantay/ChickThisOut-FBAutomation/pkg"
)

// memStore is an in-memory Store with the same claim semantics as the real
// ones: insert-if-absent under a lock, terminal records immutable.
type memStore struct {
	mu      sync.Mutex
	records map[string]pkg.ProcessedRecord

	hasErr    error
	hasErrFor map[string]error
	claimErr  error
	recordErr error

	hasCalls     int
	claimCalls   int
	recordCalls  int
	releaseCalls int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]pkg.ProcessedRecord)}
}

func storeKey(eventID string, kind pkg.EventKind) string {
	return string(kind) + "/" + eventID
}

func (s *memStore) HasProcessed(ctx context.Context, eventID string, kind pkg.EventKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasCalls++
	if s.hasErr != nil {
		return false, s.hasErr
	}
	if err := s.hasErrFor[eventID]; err != nil {
		return false, err
	}
	rec, ok := s.records[storeKey(eventID, kind)]
	return ok && rec.Outcome != pkg.OutcomePending, nil
}

func (s *memStore) Claim(ctx context.Context, ev pkg.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if s.claimErr != nil {
		return false, s.claimErr
	}
	k := storeKey(ev.ID, ev.Kind)
	if _, ok := s.records[k]; ok {
		return false, nil
	}
	s.records[k] = pkg.ProcessedRecord{
		EventID: ev.ID,
		Kind:    ev.Kind,
		Outcome: pkg.OutcomePending,
	}
	return true, nil
}

func (s *memStore) RecordOutcome(ctx context.Context, rec pkg.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordCalls++
	if s.recordErr != nil {
		return s.recordErr
	}
	s.records[storeKey(rec.EventID, rec.Kind)] = rec
	return nil
}

func (s *memStore) ReleaseClaim(ctx context.Context, eventID string, kind pkg.EventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseCalls++
	k := storeKey(eventID, kind)
	if rec, ok := s.records[k]; ok && rec.Outcome == pkg.OutcomePending {
		delete(s.records, k)
	}
	return nil
}

func (s *memStore) record(eventID string, kind pkg.EventKind) (pkg.ProcessedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storeKey(eventID, kind)]
	return rec, ok
}

type sentReply struct {
	kind   pkg.EventKind
	target string
	text   string
}

// fakeSink records successful sends and pops one scripted error per
// attempt; a nil entry (or an exhausted script) means success.
type fakeSink struct {
	mu        sync.Mutex
	sent      []sentReply
	errs      []error
	attempts  int
	onAttempt func()
}

func (f *fakeSink) send(kind pkg.EventKind, target, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.onAttempt != nil {
		f.onAttempt()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, sentReply{kind: kind, target: target, text: text})
	return fmt.Sprintf("reply-%d", len(f.sent)), nil
}

func (f *fakeSink) ReplyToComment(ctx context.Context, commentID, text string) (string, error) {
	return f.send(pkg.KindComment, commentID, text)
}

func (f *fakeSink) SendMessage(ctx context.Context, recipientID, text string) (string, error) {
	return f.send(pkg.KindMessage, recipientID, text)
}

func (f *fakeSink) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeSink) sentReplies() []sentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentReply, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeLLM answers with a fixed reply, popping one scripted error per call
// first.
type fakeLLM struct {
	mu    sync.Mutex
	reply string
	errs  []error
	calls int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.reply, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChecker struct {
	replyID string
	found   bool
	err     error
}

func (f *fakeChecker) PriorReply(ctx context.Context, ev pkg.Event) (string, bool, error) {
	return f.replyID, f.found, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func newTestPipeline(store *memStore, sink *fakeSink, model *fakeLLM) *Pipeline {
	resp := NewResponder(model, "You answer for a test restaurant.")
	resp.RetryDelay = time.Millisecond
	p := NewPipeline("page-1", store, NewAssembler(nil, 5), resp, NewDispatcher(sink))
	p.RetryDelay = time.Millisecond
	return p
}

func testEvent(id string, kind pkg.EventKind, text string) pkg.Event {
	return pkg.Event{
		ID:         id,
		Kind:       kind,
		ThreadID:   "post-1",
		SenderID:   "u-9",
		SenderName: "Dana",
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func TestProcessRepliesOnceThenSkipsRepeat(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{reply: "We are open 11 AM to 8 PM every day!"}
	p := newTestPipeline(store, sink, model)
	ev := testEvent("c1", pkg.KindComment, "What are your hours?")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeReplied {
		t.Fatalf("outcome = %q, want %q", res.Outcome, pkg.OutcomeReplied)
	}
	if res.ReplyID == "" {
		t.Error("result carries no reply ID")
	}
	if res.Degraded {
		t.Error("degraded set on a normal reply")
	}
	sent := sink.sentReplies()
	if len(sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(sent))
	}
	if sent[0].target != "c1" || sent[0].text != model.reply {
		t.Errorf("sent %+v, want target c1 with the model reply", sent[0])
	}
	rec, ok := store.record("c1", pkg.KindComment)
	if !ok {
		t.Fatal("no stored record for c1")
	}
	if rec.Outcome != pkg.OutcomeReplied || rec.ReplyID != res.ReplyID || rec.Degraded {
		t.Errorf("stored record = %+v", rec)
	}

	// The same comment delivered again must not produce a second reply.
	res2, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if res2.Outcome != pkg.OutcomeSkipped {
		t.Fatalf("repeat outcome = %q, want %q", res2.Outcome, pkg.OutcomeSkipped)
	}
	if got := sink.attemptCount(); got != 1 {
		t.Fatalf("dispatch attempted %d times across both runs, want 1", got)
	}
}

func TestProcessConcurrentDuplicatesReplyOnce(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{reply: "Hi there!"}
	p := newTestPipeline(store, sink, model)
	ev := testEvent("c-dup", pkg.KindComment, "Do you deliver?")

	const n = 10
	start := make(chan struct{})
	results := make([]pkg.EventResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], _ = p.Process(context.Background(), ev)
		}(i)
	}
	close(start)
	wg.Wait()

	replied, skipped := 0, 0
	for _, r := range results {
		switch r.Outcome {
		case pkg.OutcomeReplied:
			replied++
		case pkg.OutcomeSkipped:
			skipped++
		default:
			t.Errorf("unexpected outcome %q", r.Outcome)
		}
	}
	if replied != 1 || skipped != n-1 {
		t.Fatalf("replied=%d skipped=%d, want 1 and %d", replied, skipped, n-1)
	}
	if got := sink.attemptCount(); got != 1 {
		t.Fatalf("dispatch attempted %d times, want 1", got)
	}
}

func TestProcessSkipsOwnPageEvent(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{reply: "should never be used"}
	p := newTestPipeline(store, sink, model)
	ev := testEvent("c-self", pkg.KindComment, "Thanks for visiting us!")
	ev.SenderID = p.PageID

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", res.Outcome)
	}
	if sink.attemptCount() != 0 || model.callCount() != 0 {
		t.Error("self-authored event reached the model or the sink")
	}
	rec, _ := store.record("c-self", pkg.KindComment)
	if rec.Note != "own page event" {
		t.Errorf("note = %q, want %q", rec.Note, "own page event")
	}
}

func TestProcessSkipsHiddenComment(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "x"})
	ev := testEvent("c-hidden", pkg.KindComment, "spammy link")
	ev.Hidden = true

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", res.Outcome)
	}
	if sink.attemptCount() != 0 {
		t.Error("hidden comment was answered")
	}
}

func TestProcessSkipsEmptyText(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{reply: "x"}
	p := newTestPipeline(store, sink, model)
	ev := testEvent("c-empty", pkg.KindComment, "   \n\t")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", res.Outcome)
	}
	if model.callCount() != 0 || sink.attemptCount() != 0 {
		t.Error("empty-text event reached the model or the sink")
	}
	rec, _ := store.record("c-empty", pkg.KindComment)
	if rec.Note != "empty text" {
		t.Errorf("note = %q, want %q", rec.Note, "empty text")
	}
}

func TestProcessFallsBackWhenModelFails(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{errs: []error{errors.New("model down")}}
	p := newTestPipeline(store, sink, model)
	ev := testEvent("m1", pkg.KindMessage, "Can I book a table?")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeReplied {
		t.Fatalf("outcome = %q, want replied", res.Outcome)
	}
	if !res.Degraded {
		t.Error("degraded flag not set on a fallback reply")
	}
	sent := sink.sentReplies()
	if len(sent) != 1 || sent[0].text != FallbackReply {
		t.Fatalf("sent %+v, want the fallback reply", sent)
	}
	rec, _ := store.record("m1", pkg.KindMessage)
	if !rec.Degraded || rec.Note != "fallback reply" {
		t.Errorf("stored record = %+v, want degraded with fallback note", rec)
	}
}

func TestProcessRetriesTransientDispatchFailures(t *testing.T) {
	store := newMemStore()
	transient := &DispatchError{Transient: true, Err: errors.New("flaky network")}
	sink := &fakeSink{errs: []error{transient, transient}}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Sure!"})
	ev := testEvent("c2", pkg.KindComment, "Are you open today?")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeReplied {
		t.Fatalf("outcome = %q, want replied", res.Outcome)
	}
	if got := sink.attemptCount(); got != 3 {
		t.Fatalf("dispatch attempted %d times, want 3", got)
	}
}

func TestProcessStopsAfterMaxDispatchAttempts(t *testing.T) {
	store := newMemStore()
	transient := &DispatchError{Transient: true, Err: errors.New("still flaky")}
	sink := &fakeSink{errs: []error{transient, transient, transient, transient}}
	notifier := &fakeNotifier{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Sure!"})
	p.Notifier = notifier
	ev := testEvent("c3", pkg.KindComment, "Hello?")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", res.Outcome)
	}
	if res.Error == "" {
		t.Error("failed result carries no error text")
	}
	if got := sink.attemptCount(); got != 3 {
		t.Fatalf("dispatch attempted %d times, want exactly 3", got)
	}
	rec, _ := store.record("c3", pkg.KindComment)
	if rec.Outcome != pkg.OutcomeFailed {
		t.Errorf("stored outcome = %q, want failed", rec.Outcome)
	}
	if len(notifier.messages()) != 0 {
		t.Error("transient exhaustion alerted the operator")
	}
}

func TestProcessPermanentDispatchFailureAlerts(t *testing.T) {
	store := newMemStore()
	permanent := &DispatchError{Err: errors.New("comment deleted")}
	sink := &fakeSink{errs: []error{permanent}}
	notifier := &fakeNotifier{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Sure!"})
	p.Notifier = notifier
	ev := testEvent("c4", pkg.KindComment, "Hi")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", res.Outcome)
	}
	if got := sink.attemptCount(); got != 1 {
		t.Fatalf("permanent failure retried, %d attempts", got)
	}
	msgs := notifier.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "c4") {
		t.Fatalf("operator alerts = %q, want one naming the event", msgs)
	}
}

func TestProcessPriorReplyShortCircuits(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	model := &fakeLLM{reply: "x"}
	p := newTestPipeline(store, sink, model)
	p.Checker = &fakeChecker{replyID: "existing-42", found: true}
	ev := testEvent("c5", pkg.KindComment, "Anyone there?")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeReplied || res.ReplyID != "existing-42" {
		t.Fatalf("result = %+v, want replied with the existing reply ID", res)
	}
	if sink.attemptCount() != 0 || model.callCount() != 0 {
		t.Error("already-answered event reached the model or the sink")
	}
	rec, _ := store.record("c5", pkg.KindComment)
	if rec.Note != "already answered on the platform" {
		t.Errorf("note = %q", rec.Note)
	}
}

func TestProcessCheckerFailureStillReplies(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Hello!"})
	p.Checker = &fakeChecker{err: errors.New("graph hiccup")}
	ev := testEvent("c6", pkg.KindComment, "Hi!")

	res, err := p.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeReplied {
		t.Fatalf("outcome = %q, want replied", res.Outcome)
	}
	if sink.attemptCount() != 1 {
		t.Errorf("dispatch attempted %d times, want 1", sink.attemptCount())
	}
}

func TestProcessStorageFailureSurfacesError(t *testing.T) {
	store := newMemStore()
	store.hasErr = errors.New("db down")
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "x"})

	res, err := p.Process(context.Background(), testEvent("c7", pkg.KindComment, "Hi"))
	if err == nil {
		t.Fatal("storage failure did not surface as an error")
	}
	if res.Outcome != "" {
		t.Fatalf("outcome = %q, want empty (abandoned)", res.Outcome)
	}
	if sink.attemptCount() != 0 {
		t.Error("event was dispatched despite the storage failure")
	}
}

func TestProcessRecordFailureKeepsOutcome(t *testing.T) {
	store := newMemStore()
	store.recordErr = errors.New("disk full")
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Welcome!"})

	res, err := p.Process(context.Background(), testEvent("c8", pkg.KindComment, "Hi"))
	if err == nil {
		t.Fatal("record failure did not surface as an error")
	}
	if res.Outcome != pkg.OutcomeReplied {
		t.Fatalf("outcome = %q, want replied even when recording failed", res.Outcome)
	}
	if !strings.HasPrefix(res.Error, "record outcome:") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestProcessReleasesClaimWhenCanceledMidDispatch(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &fakeSink{errs: []error{context.Canceled}}
	sink.onAttempt = cancel
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Hi!"})
	ev := testEvent("c9", pkg.KindComment, "Hello")

	res, err := p.Process(ctx, ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != "" {
		t.Fatalf("outcome = %q, want empty (abandoned)", res.Outcome)
	}
	if res.Error == "" {
		t.Error("abandoned result carries no error text")
	}
	if _, ok := store.record("c9", pkg.KindComment); ok {
		t.Error("claim not released, event would never be retried")
	}
}

func TestProcessRejectsEventWithoutID(t *testing.T) {
	store := newMemStore()
	p := newTestPipeline(store, &fakeSink{}, &fakeLLM{reply: "x"})

	res, err := p.Process(context.Background(), pkg.Event{Kind: pkg.KindComment, Text: "hi"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != pkg.OutcomeFailed || res.Error != "event without ID" {
		t.Fatalf("result = %+v", res)
	}
	if store.hasCalls != 0 {
		t.Error("store touched for an event without ID")
	}
}

func TestProcessBatchRunsOldestFirst(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Hi!"})
	p.Workers = 1

	base := time.Now()
	events := []pkg.Event{
		testEvent("e3", pkg.KindComment, "third"),
		testEvent("e1", pkg.KindComment, "first"),
		testEvent("e2", pkg.KindComment, "second"),
	}
	events[0].Timestamp = base.Add(2 * time.Minute)
	events[1].Timestamp = base
	events[2].Timestamp = base.Add(time.Minute)

	results := p.ProcessBatch(context.Background(), events)
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if results[i].EventID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].EventID, want)
		}
		if results[i].Outcome != pkg.OutcomeReplied {
			t.Errorf("results[%d] outcome = %q", i, results[i].Outcome)
		}
	}
	sent := sink.sentReplies()
	for i, want := range []string{"e1", "e2", "e3"} {
		if sent[i].target != want {
			t.Errorf("reply %d went to %s, want %s", i, sent[i].target, want)
		}
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	store := newMemStore()
	sink := &fakeSink{errs: []error{nil, &DispatchError{Err: errors.New("gone")}, nil}}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Hi!"})
	p.Workers = 1

	base := time.Now()
	events := make([]pkg.Event, 3)
	for i := range events {
		events[i] = testEvent(fmt.Sprintf("e%d", i+1), pkg.KindComment, "hello")
		events[i].Timestamp = base.Add(time.Duration(i) * time.Second)
	}

	results := p.ProcessBatch(context.Background(), events)
	want := []pkg.Outcome{pkg.OutcomeReplied, pkg.OutcomeFailed, pkg.OutcomeReplied}
	for i, w := range want {
		if results[i].Outcome != w {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Outcome, w)
		}
	}
}

func TestProcessBatchToleratesSingleStorageFailure(t *testing.T) {
	store := newMemStore()
	store.hasErrFor = map[string]error{"e3": errors.New("connection reset")}
	sink := &fakeSink{}
	p := newTestPipeline(store, sink, &fakeLLM{reply: "Sure thing!"})

	base := time.Now()
	events := make([]pkg.Event, 5)
	for i := range events {
		events[i] = testEvent(fmt.Sprintf("e%d", i+1), pkg.KindComment, "Do you deliver?")
		events[i].Timestamp = base.Add(time.Duration(i) * time.Second)
	}

	results := p.ProcessBatch(context.Background(), events)
	for i, r := range results {
		if r.EventID == "e3" {
			if r.Outcome != "" {
				t.Errorf("e3 outcome = %q, want empty (left for next trigger)", r.Outcome)
			}
			continue
		}
		if r.Outcome != pkg.OutcomeReplied {
			t.Errorf("results[%d] (%s) outcome = %q, want %q", i, r.EventID, r.Outcome, pkg.OutcomeReplied)
		}
	}
	if got := len(sink.sentReplies()); got != 4 {
		t.Errorf("sent %d replies, want 4", got)
	}
	if _, ok := store.record("e3", pkg.KindComment); ok {
		t.Error("e3 left a record behind")
	}
}

func TestProcessBatchAbortsOnStorageOutage(t *testing.T) {
	store := newMemStore()
	store.hasErr = errors.New("connection refused")
	p := newTestPipeline(store, &fakeSink{}, &fakeLLM{reply: "x"})
	p.Workers = 1

	base := time.Now()
	events := make([]pkg.Event, 6)
	for i := range events {
		events[i] = testEvent(fmt.Sprintf("e%d", i+1), pkg.KindComment, "hello")
		events[i].Timestamp = base.Add(time.Duration(i) * time.Second)
	}

	results := p.ProcessBatch(context.Background(), events)
	if store.hasCalls != storageAbortAfter {
		t.Fatalf("store tried %d times, want %d before aborting", store.hasCalls, storageAbortAfter)
	}
	for i, r := range results {
		if r.Outcome != "" {
			t.Errorf("results[%d] outcome = %q, want empty (left for next trigger)", i, r.Outcome)
		}
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	p := newTestPipeline(newMemStore(), &fakeSink{}, &fakeLLM{reply: "x"})
	if results := p.ProcessBatch(context.Background(), nil); results != nil {
		t.Fatalf("got %v for an empty batch", results)
	}
}
