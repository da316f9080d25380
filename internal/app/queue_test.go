package app

import (
	"context"
	"testing"
	"time"

	"github.com/growthfoundry/leadship/internal/domain"
)

func pendingRecord(id string, priority domain.Priority, createdAt time.Time) domain.SubmissionRecord {
	return domain.SubmissionRecord{
		ID:        id,
		Payload:   validLead(id),
		CreatedAt: createdAt,
		Attempts:  1,
		Priority:  priority,
		Status:    domain.StatusPending,
	}
}

func TestQueueEnqueueIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&fakeSender{}, NewBus())

	rec := pendingRecord("r1", domain.PriorityNormal, time.Now())
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Re-enqueueing the same id must not clobber the stored record.
	dup := rec
	dup.Attempts = 99
	if err := q.Enqueue(ctx, dup); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Len = %d, %v; want 1", n, err)
	}

	records, err := q.load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if records[0].Attempts != 1 {
		t.Fatalf("stored attempts = %d, want original 1", records[0].Attempts)
	}
}

func TestQueueReplayDeliversAndRemoves(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	bus := NewBus()

	var conversions []string
	bus.SubscribeAnalytics(func(e domain.AnalyticsEvent) {
		if e.Criticality == domain.CriticalityConversion {
			conversions = append(conversions, e.Name)
		}
	})
	var notices []SubmissionNotice
	bus.SubscribeSubmissions(func(n SubmissionNotice) { notices = append(notices, n) })

	q, _ := newTestQueue(sender, bus)
	if err := q.Enqueue(ctx, pendingRecord("r1", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Sent != 1 || res.Remaining != 0 {
		t.Fatalf("result = %+v, want one sent", res)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatalf("queue still holds %d records", n)
	}
	if len(conversions) != 1 || conversions[0] != EventLeadSubmitted {
		t.Fatalf("conversions = %v, want one %s", conversions, EventLeadSubmitted)
	}
	if len(notices) != 1 || notices[0].Disposition != DispositionSent {
		t.Fatalf("notices = %+v, want one sent disposition", notices)
	}
}

func TestQueueReplayHonorsSchedule(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	q, _ := newTestQueue(sender, NewBus())

	rec := pendingRecord("r1", domain.PriorityNormal, time.Now())
	rec.NextAttemptAt = time.Now().Add(time.Hour)
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Remaining != 1 || res.Sent != 0 {
		t.Fatalf("result = %+v, want record deferred", res)
	}
	if sender.callCount() != 0 {
		t.Fatal("sender called for a record that was not due")
	}
}

func TestQueueDrainIgnoresSchedule(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	q, _ := newTestQueue(sender, NewBus())

	rec := pendingRecord("r1", domain.PriorityNormal, time.Now())
	rec.NextAttemptAt = time.Now().Add(time.Hour)
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if res.Sent != 1 || res.Remaining != 0 {
		t.Fatalf("result = %+v, want record sent", res)
	}
}

func TestQueueReplayFailureReschedules(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{failures: 100}
	q, _ := newTestQueue(sender, NewBus())

	if err := q.Enqueue(ctx, pendingRecord("r1", domain.PriorityNormal, time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Remaining != 1 {
		t.Fatalf("result = %+v, want record kept for retry", res)
	}

	records, err := q.load(ctx)
	if err != nil || len(records) != 1 {
		t.Fatalf("load = %d records, %v", len(records), err)
	}
	rec := records[0]
	if rec.Status != domain.StatusPending {
		t.Fatalf("status = %v, want pending", rec.Status)
	}
	if rec.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", rec.Attempts)
	}
	if !rec.NextAttemptAt.After(time.Now()) {
		t.Fatal("NextAttemptAt not pushed into the future")
	}
	if rec.LastError == "" {
		t.Fatal("LastError not recorded")
	}
}

func TestQueueExhaustionDeadLetters(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{failures: 100}
	bus := NewBus()

	var infoEvents []string
	bus.SubscribeAnalytics(func(e domain.AnalyticsEvent) {
		if e.Criticality == domain.CriticalityInformational {
			infoEvents = append(infoEvents, e.Name)
		}
	})
	var notices []SubmissionNotice
	bus.SubscribeSubmissions(func(n SubmissionNotice) { notices = append(notices, n) })

	q, _ := newTestQueue(sender, bus)

	rec := pendingRecord("r1", domain.PriorityNormal, time.Now())
	rec.Attempts = 2 // one away from the budget of 3
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.DeadLettered != 1 {
		t.Fatalf("result = %+v, want one dead-lettered", res)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatal("dead-lettered record still in active queue")
	}

	letters, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if letters.Len() != 1 || letters.Records[0].ID != "r1" {
		t.Fatalf("dead letters = %+v, want r1", letters)
	}
	if letters.Records[0].Status != domain.StatusFailed {
		t.Fatalf("dead-lettered status = %v, want failed", letters.Records[0].Status)
	}

	found := false
	for _, name := range infoEvents {
		if name == EventSubmissionFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("info events = %v, missing %s", infoEvents, EventSubmissionFailed)
	}
	if len(notices) != 1 || notices[0].Disposition != DispositionDeadLettered {
		t.Fatalf("notices = %+v, want one dead-lettered disposition", notices)
	}
}

func TestQueueReplayPriorityOrder(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	q, _ := newTestQueue(sender, NewBus())

	base := time.Now().Add(-time.Minute)
	// Enqueued out of order on purpose.
	if err := q.Enqueue(ctx, pendingRecord("normal-old", domain.PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, pendingRecord("high-new", domain.PriorityHigh, base.Add(30*time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, pendingRecord("medium", domain.PriorityMedium, base.Add(10*time.Second))); err != nil {
		t.Fatal(err)
	}

	if _, err := q.ReplayAll(ctx); err != nil {
		t.Fatalf("replay: %v", err)
	}

	want := []string{"high-new", "medium", "normal-old"}
	got := sender.sentIDs()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent order %v, want %v", got, want)
		}
	}
}

func TestQueueSkipsClaimedRecords(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	q, store := newTestQueue(sender, NewBus())

	rec := pendingRecord("r1", domain.PriorityNormal, time.Now())
	rec.Status = domain.StatusSending // claimed by another holder
	if err := q.Enqueue(ctx, rec); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := q.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Sent != 0 || sender.callCount() != 0 {
		t.Fatalf("claimed record was replayed: %+v", res)
	}
	if _, exists, _ := store.Get(ctx, queueKey("r1")); !exists {
		t.Fatal("claimed record removed")
	}
}

func TestQueueDiscardsUnreadableEntries(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(&fakeSender{}, NewBus())

	if err := store.Put(ctx, queueKey("junk"), []byte("not an envelope"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	records, err := q.load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("load returned %d records from junk", len(records))
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Fatal("junk entry not removed from store")
	}
}

func TestQueuePruneDeadLetters(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{failures: 100}
	q, _ := newTestQueue(sender, NewBus())

	old := pendingRecord("old", domain.PriorityNormal, time.Now().Add(-48*time.Hour))
	old.Attempts = 2
	recent := pendingRecord("recent", domain.PriorityNormal, time.Now())
	recent.Attempts = 2
	if err := q.Enqueue(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, recent); err != nil {
		t.Fatal(err)
	}
	if _, err := q.ReplayAll(ctx); err != nil {
		t.Fatalf("replay: %v", err)
	}

	removed, err := q.PruneDeadLetters(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	letters, _ := q.DeadLetters(ctx)
	if letters.Len() != 1 || letters.Records[0].ID != "recent" {
		t.Fatalf("remaining letters = %+v, want only recent", letters)
	}
}
