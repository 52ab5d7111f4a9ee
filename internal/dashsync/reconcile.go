package dashsync

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/directus"
)

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// InsertOnly skips the compare-and-update path: existing records are
// counted unchanged without a write. Used for datasets whose historical
// values never change upstream.
func InsertOnly() ReconcilerOption {
	return func(r *Reconciler) {
		r.insertOnly = true
	}
}

// Touch sets field to value on every create and update. The field takes
// no part in the change comparison, so a last-seen stamp does not force
// a write on its own.
func Touch(field string, value any) ReconcilerOption {
	return func(r *Reconciler) {
		if r.touch == nil {
			r.touch = make(map[string]any)
		}
		r.touch[field] = value
	}
}

// Reconciler applies normalized records to one Directus collection. It
// is the only component that writes to the content store.
type Reconciler struct {
	client     directus.Client
	collection string
	insertOnly bool
	touch      map[string]any
}

// NewReconciler creates a Reconciler for the given collection.
func NewReconciler(client directus.Client, collection string, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{client: client, collection: collection}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

// Reconcile looks up each record by its external key and applies the
// minimal write: create when absent, patch only the changed fields when
// it differs, nothing when equal. Each record is its own transaction
// boundary; a failed record is recorded and the batch continues, so
// re-running with the same input is idempotent.
func (r *Reconciler) Reconcile(ctx context.Context, records []NormalizedRecord) *SyncSummary {
	log := zap.L().With(zap.String("collection", r.collection))
	summary := &SyncSummary{}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.RecordFailure(rec.Key, BackendWrite(err))
			continue
		}

		result, err := r.reconcileOne(ctx, rec)
		if err != nil {
			log.Warn("record failed", zap.String("key", rec.Key), zap.Error(err))
			summary.RecordFailure(rec.Key, err)
			continue
		}

		switch result {
		case outcomeCreated:
			summary.Created++
		case outcomeUpdated:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	log.Info("reconcile complete",
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec NormalizedRecord) (outcome, error) {
	if rec.Key == "" {
		return outcomeUnchanged, KeyDerivation(eris.New("empty external key"))
	}

	existing, err := r.client.FindByKey(ctx, r.collection, KeyField, rec.Key)
	if err != nil {
		return outcomeUnchanged, BackendWrite(err)
	}

	if existing == nil {
		fields := make(map[string]any, len(rec.Fields)+len(r.touch)+1)
		for k, v := range rec.Fields {
			fields[k] = v
		}
		for k, v := range r.touch {
			fields[k] = v
		}
		fields[KeyField] = rec.Key
		if _, err := r.client.CreateItem(ctx, r.collection, fields); err != nil {
			return outcomeUnchanged, BackendWrite(err)
		}
		return outcomeCreated, nil
	}

	if r.insertOnly {
		return outcomeUnchanged, nil
	}

	changed := changedFields(existing, rec.Fields)
	if len(changed) == 0 {
		return outcomeUnchanged, nil
	}

	id, ok := existing["id"]
	if !ok {
		return outcomeUnchanged, BackendWrite(eris.Errorf("existing record %q has no id", rec.Key))
	}
	for k, v := range r.touch {
		changed[k] = v
	}
	if _, err := r.client.UpdateItem(ctx, r.collection, id, changed); err != nil {
		return outcomeUnchanged, BackendWrite(err)
	}
	return outcomeUpdated, nil
}

// changedFields returns the subset of incoming fields whose value
// differs from the stored record. Backend-managed fields are never
// touched because only incoming fields are considered.
func changedFields(existing directus.Item, incoming map[string]any) map[string]any {
	changed := make(map[string]any)
	for k, v := range incoming {
		if !looseEqual(existing[k], v) {
			changed[k] = v
		}
	}
	return changed
}

// looseEqual compares a stored JSON value with an incoming Go value.
// Numbers compare by value regardless of Go type, since JSON decoding
// turns everything numeric into float64.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
