package app

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/kv"
	"github.com/growthfoundry/leadship/internal/ports"
)

// QueueConfig tunes the durable retry queue.
type QueueConfig struct {
	// MaxAttempts bounds tries per record, the direct attempt included.
	MaxAttempts int

	// BackoffBase and BackoffCap shape the retry schedule:
	// attempt n is delayed by BackoffBase * 2^(n-1), capped.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// DeadLetterCap bounds the diagnostic dead-letter list.
	DeadLetterCap int

	// Metadata accompanies every send.
	Metadata ports.SendMetadata
}

// RetryQueue is the durable queue of pending submissions. Records are
// persisted through the store keyed by id and survive restarts; replay is
// strictly sequential, FIFO in creation order with high-priority records
// first, so the endpoint never sees concurrent duplicates from one queue.
type RetryQueue struct {
	cfg    QueueConfig
	store  ports.KVStore
	sender ports.LeadSender
	bus    *Bus
	logger ports.Logger
	now    func() time.Time

	// sem serializes replay passes; buffered so TryReplay can give up
	// instead of stacking.
	sem chan struct{}
}

// NewRetryQueue creates a queue over the given store and sender.
func NewRetryQueue(cfg QueueConfig, store ports.KVStore, sender ports.LeadSender, bus *Bus, logger ports.Logger) *RetryQueue {
	return &RetryQueue{
		cfg:    cfg,
		store:  store,
		sender: sender,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		sem:    make(chan struct{}, 1),
	}
}

func queueKey(id string) string { return queueKeyPrefix + id }

// Enqueue persists a record. Enqueueing an id that already has a pending
// record is a no-op, keeping resubmission idempotent.
func (q *RetryQueue) Enqueue(ctx context.Context, rec domain.SubmissionRecord) error {
	return kv.Update(ctx, q.store, queueKey(rec.ID), func(current []byte, exists bool) ([]byte, error) {
		if exists {
			var existing domain.SubmissionRecord
			if ok, _ := kv.Unmarshal(current, &existing, nil); ok {
				return current, nil
			}
		}
		return kv.Marshal(rec)
	})
}

// Has reports whether a record with the given id is currently queued.
func (q *RetryQueue) Has(ctx context.Context, id string) (bool, error) {
	raw, exists, err := q.store.Get(ctx, queueKey(id))
	if err != nil || !exists {
		return false, err
	}
	var rec domain.SubmissionRecord
	ok, err := kv.Unmarshal(raw.Data, &rec, nil)
	return ok, err
}

// ReplayAll runs one replay pass honoring each record's backoff schedule.
// It is called once per start (the page-load replay) and periodically by
// the agent loop.
func (q *RetryQueue) ReplayAll(ctx context.Context) (ReplayResult, error) {
	return q.replay(ctx, true)
}

// Drain replays until the queue is empty or no record makes progress,
// ignoring not-yet-due backoff schedules. It serves the
// connectivity-restored signal.
func (q *RetryQueue) Drain(ctx context.Context) (ReplayResult, error) {
	var total ReplayResult
	for {
		res, err := q.replay(ctx, false)
		total.Sent += res.Sent
		total.DeadLettered += res.DeadLettered
		total.Remaining = res.Remaining
		if err != nil {
			return total, err
		}
		if res.Remaining == 0 || (res.Sent == 0 && res.DeadLettered == 0) {
			return total, nil
		}
	}
}

// ReplayResult summarizes one replay invocation.
type ReplayResult struct {
	Sent         int
	DeadLettered int
	Remaining    int
}

func (q *RetryQueue) replay(ctx context.Context, honorSchedule bool) (ReplayResult, error) {
	select {
	case q.sem <- struct{}{}:
		defer func() { <-q.sem }()
	case <-ctx.Done():
		return ReplayResult{}, ctx.Err()
	}

	records, err := q.load(ctx)
	if err != nil {
		return ReplayResult{}, err
	}
	sort.Slice(records, func(i, j int) bool {
		return domain.ReplayOrder(&records[i], &records[j])
	})

	var res ReplayResult
	for i := range records {
		if ctx.Err() != nil {
			res.Remaining = len(records) - i
			return res, ctx.Err()
		}
		switch q.replayOne(ctx, records[i].ID, honorSchedule) {
		case replaySent:
			res.Sent++
		case replayDeadLettered:
			res.DeadLettered++
		case replayRetryLater:
			res.Remaining++
		case replaySkipped:
		}
	}
	return res, nil
}

// load reads every queued record, discarding (and removing) entries the
// envelope cannot decode.
func (q *RetryQueue) load(ctx context.Context) ([]domain.SubmissionRecord, error) {
	keys, err := q.store.List(ctx, queueKeyPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]domain.SubmissionRecord, 0, len(keys))
	for _, key := range keys {
		raw, exists, err := q.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		var rec domain.SubmissionRecord
		ok, err := kv.Unmarshal(raw.Data, &rec, migrateSubmission)
		if err != nil {
			return nil, err
		}
		if !ok {
			q.logger.Warn("discarding unreadable queue entry", ports.String("key", key))
			_ = q.store.Delete(ctx, key, raw.Version)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// migrateSubmission upgrades submission records written at older schema
// versions. No older versions exist yet.
func migrateSubmission(oldVersion int, payload json.RawMessage) (json.RawMessage, bool) {
	return nil, false
}

type replayOutcome int

const (
	replaySkipped replayOutcome = iota
	replaySent
	replayDeadLettered
	replayRetryLater
)

// replayOne attempts a single record. It re-reads the freshest copy first:
// a record another process already sent (or removed) is skipped, and a
// claim that loses the version race is skipped too, so the same record is
// never in flight twice.
func (q *RetryQueue) replayOne(ctx context.Context, id string, honorSchedule bool) replayOutcome {
	key := queueKey(id)
	raw, exists, err := q.store.Get(ctx, key)
	if err != nil || !exists {
		return replaySkipped
	}
	var rec domain.SubmissionRecord
	if ok, _ := kv.Unmarshal(raw.Data, &rec, migrateSubmission); !ok {
		return replaySkipped
	}
	if rec.Status != domain.StatusPending {
		return replaySkipped
	}
	if honorSchedule && q.now().Before(rec.NextAttemptAt) {
		return replayRetryLater
	}

	// Claim the record.
	if err := rec.Transition(domain.StatusSending); err != nil {
		return replaySkipped
	}
	claimed, err := kv.Marshal(rec)
	if err != nil {
		return replaySkipped
	}
	if err := q.store.Put(ctx, key, claimed, raw.Version); err != nil {
		// Lost the race to another tab or process.
		return replaySkipped
	}

	sendErr := q.sender.Send(ctx, rec.Payload, q.cfg.Metadata)
	rec.Attempts++

	if sendErr == nil {
		_ = rec.Transition(domain.StatusSent)
		if err := q.remove(ctx, key); err != nil {
			q.logger.Error("failed to remove sent record", ports.String("id", id), ports.Err(err))
		}
		q.logger.Info("queued submission delivered",
			ports.String("id", id),
			ports.Int("attempts", rec.Attempts),
		)
		q.bus.PublishAnalytics(domain.NewConversionEvent(EventLeadSubmitted, map[string]string{
			domain.ParamSourcePage: rec.Payload.SourcePage,
		}))
		q.bus.PublishSubmission(SubmissionNotice{
			RecordID:    id,
			Disposition: DispositionSent,
			Attempts:    rec.Attempts,
			At:          q.now(),
		})
		return replaySent
	}

	rec.LastError = sendErr.Error()
	q.logger.Warn("replay attempt failed",
		ports.String("id", id),
		ports.Int("attempts", rec.Attempts),
		ports.Err(sendErr),
	)

	if rec.Attempts >= q.cfg.MaxAttempts {
		q.deadLetter(ctx, key, rec)
		return replayDeadLettered
	}

	_ = rec.Transition(domain.StatusPending)
	rec.NextAttemptAt = q.now().Add(Delay(rec.Attempts, q.cfg.BackoffBase, q.cfg.BackoffCap))
	if err := q.save(ctx, key, rec); err != nil {
		q.logger.Error("failed to reschedule record", ports.String("id", id), ports.Err(err))
	}
	return replayRetryLater
}

// deadLetter moves a record that exhausted its budget to the bounded
// dead-letter list: appended there first, then removed from the active
// queue, with the append deduplicated by id so a crash between the two
// steps cannot double it.
func (q *RetryQueue) deadLetter(ctx context.Context, key string, rec domain.SubmissionRecord) {
	_ = rec.Transition(domain.StatusFailed)

	err := kv.Update(ctx, q.store, deadLetterKey, func(current []byte, exists bool) ([]byte, error) {
		var list domain.DeadLetterList
		if exists {
			// A mismatched schema starts a fresh list rather than failing.
			_, _ = kv.Unmarshal(current, &list, nil)
		}
		for _, r := range list.Records {
			if r.ID == rec.ID {
				return current, nil
			}
		}
		list.Push(rec, q.cfg.DeadLetterCap)
		return kv.Marshal(list)
	})
	if err != nil {
		q.logger.Error("failed to dead-letter record", ports.String("id", rec.ID), ports.Err(err))
		return
	}
	if err := q.remove(ctx, key); err != nil {
		q.logger.Error("failed to remove dead-lettered record", ports.String("id", rec.ID), ports.Err(err))
	}

	q.logger.Warn("submission failed permanently",
		ports.String("id", rec.ID),
		ports.Int("attempts", rec.Attempts),
	)
	q.bus.PublishAnalytics(domain.NewInfoEvent(EventSubmissionFailed, map[string]string{
		domain.ParamSourcePage: rec.Payload.SourcePage,
	}))
	q.bus.PublishSubmission(SubmissionNotice{
		RecordID:    rec.ID,
		Disposition: DispositionDeadLettered,
		Attempts:    rec.Attempts,
		At:          q.now(),
	})
}

// DeadLetters returns the current dead-letter list for diagnostics.
func (q *RetryQueue) DeadLetters(ctx context.Context) (domain.DeadLetterList, error) {
	raw, exists, err := q.store.Get(ctx, deadLetterKey)
	if err != nil || !exists {
		return domain.DeadLetterList{}, err
	}
	var list domain.DeadLetterList
	if ok, err := kv.Unmarshal(raw.Data, &list, nil); err != nil || !ok {
		return domain.DeadLetterList{}, err
	}
	return list, nil
}

// PruneDeadLetters drops dead-letter entries created before cutoff and
// returns how many were removed.
func (q *RetryQueue) PruneDeadLetters(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := kv.Update(ctx, q.store, deadLetterKey, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, nil
		}
		var list domain.DeadLetterList
		if ok, _ := kv.Unmarshal(current, &list, nil); !ok {
			return nil, nil
		}
		kept := list.Records[:0]
		for _, r := range list.Records {
			if r.CreatedAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		removed = len(list.Records) - len(kept)
		if removed == 0 {
			return current, nil
		}
		if len(kept) == 0 {
			return nil, nil
		}
		return kv.Marshal(domain.DeadLetterList{Records: kept})
	})
	return removed, err
}

// Len returns the number of queued records.
func (q *RetryQueue) Len(ctx context.Context) (int, error) {
	keys, err := q.store.List(ctx, queueKeyPrefix)
	return len(keys), err
}

func (q *RetryQueue) save(ctx context.Context, key string, rec domain.SubmissionRecord) error {
	return kv.Update(ctx, q.store, key, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			// Externally removed while we held it; do not resurrect.
			return nil, nil
		}
		return kv.Marshal(rec)
	})
}

func (q *RetryQueue) remove(ctx context.Context, key string) error {
	return kv.Update(ctx, q.store, key, func(current []byte, exists bool) ([]byte, error) {
		return nil, nil
	})
}

