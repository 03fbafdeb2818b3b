package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/metrics"
)

const notifyTimeout = 15 * time.Second

// Gateway reconciles drafts into the store with create-once, update-many
// semantics and notifies once per created record.
type Gateway struct {
	store    Store
	notifier Notifier
	log      *zap.Logger

	wg sync.WaitGroup
}

// NewGateway builds a Gateway. notifier may be nil.
func NewGateway(store Store, notifier Notifier, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{store: store, notifier: notifier, log: log.Named("booking")}
}

// Reconcile inserts a record when currentID is empty and updates it otherwise.
// It returns the id the conversation should keep using.
func (g *Gateway) Reconcile(ctx context.Context, currentID string, d Draft) (string, error) {
	f := Sanitize(d)
	if currentID == "" {
		if f.Empty() {
			return "", ErrNothingToSave
		}
		id, err := g.store.Insert(ctx, f)
		if err != nil {
			metrics.BookingFailures.WithLabelValues("insert").Inc()
			g.log.Error("create booking failed", zap.Error(err))
			return "", fmt.Errorf("insert booking: %w", err)
		}
		metrics.BookingsCreated.Inc()
		g.log.Info("booking created", zap.String("id", id))
		g.notify(ctx, id, d)
		return id, nil
	}

	if _, err := uuid.Parse(currentID); err != nil {
		return currentID, ErrInvalidID
	}
	if f.Empty() {
		return currentID, nil
	}
	if err := g.store.Update(ctx, currentID, f); err != nil {
		metrics.BookingFailures.WithLabelValues("update").Inc()
		g.log.Error("update booking failed", zap.String("id", currentID), zap.Error(err))
		return currentID, fmt.Errorf("update booking %s: %w", currentID, err)
	}
	metrics.BookingsUpdated.Inc()
	g.log.Debug("booking updated", zap.String("id", currentID))
	return currentID, nil
}

// notify dispatches the creation notice in the background. Use Wait to drain.
func (g *Gateway) notify(ctx context.Context, id string, d Draft) {
	if g.notifier == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := g.notifier.BookingCreated(nctx, id, d); err != nil {
			g.log.Warn("booking notification failed", zap.String("id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until background notifications finish or ctx ends.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconciler is the part of Gateway a Recorder depends on.
type Reconciler interface {
	Reconcile(ctx context.Context, currentID string, d Draft) (string, error)
}

// Recorder holds the draft and cached record id of one conversation.
// Apply calls are serialized so a conversation never inserts twice.
type Recorder struct {
	rec Reconciler
	log *zap.Logger

	mu       sync.Mutex
	draft    Draft
	id       string
	onChange func(Draft)
}

// NewRecorder returns an empty Recorder backed by rec.
func NewRecorder(rec Reconciler, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{rec: rec, log: log}
}

// OnChange registers fn to observe the draft after each effective merge.
func (r *Recorder) OnChange(fn func(Draft)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Apply merges update into the draft and persists it when a value changed.
// Persistence errors are logged and returned; the merged draft is kept either way.
func (r *Recorder) Apply(ctx context.Context, update Draft) (Draft, error) {
	r.mu.Lock()
	merged, changed := r.draft.Merge(update)
	if !changed {
		r.mu.Unlock()
		return merged, nil
	}
	r.draft = merged
	err := r.persistLocked(ctx, merged)
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(merged)
	}
	return merged, err
}

func (r *Recorder) persistLocked(ctx context.Context, d Draft) error {
	if r.rec == nil {
		return nil
	}
	id, err := r.rec.Reconcile(ctx, r.id, d)
	switch {
	case errors.Is(err, ErrNothingToSave):
		return nil
	case err != nil:
		r.log.Warn("booking not persisted", zap.String("id", r.id), zap.Error(err))
		return err
	}
	r.id = id
	return nil
}

// Draft returns the current draft.
func (r *Recorder) Draft() Draft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// ID returns the cached record id, empty before the first insert.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Reset discards the draft and forgets the record id. The stored record is kept.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.draft = Draft{}
	r.id = ""
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(Draft{})
	}
}
