package dashsync

import (
	"context"
	"strconv"

	"go.uber.org/zap"
)

// State is the phase a sync job is in.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// FetchFunc produces the raw records for one dataset run. Fatal failures
// must be tagged SourceUnavailable or MalformedResponse.
type FetchFunc func(ctx context.Context) ([]ExternalRecord, error)

// Job runs one dataset sync: fetch, normalize, reconcile.
type Job struct {
	name    string
	fetch   FetchFunc
	mapping Mapping
	rec     *Reconciler
	state   State
}

// NewJob assembles a sync job from its three components.
func NewJob(name string, fetch FetchFunc, mapping Mapping, rec *Reconciler) *Job {
	return &Job{
		name:    name,
		fetch:   fetch,
		mapping: mapping,
		rec:     rec,
		state:   StateIdle,
	}
}

// State returns the job's current phase.
func (j *Job) State() State {
	return j.state
}

// Run executes the job. A fetch failure is whole-job fatal: the job ends
// in StateFailed with no backend writes. Normalization and write failures
// are per-record; the job still ends in StateDone and the summary carries
// them.
func (j *Job) Run(ctx context.Context) (*SyncSummary, error) {
	log := zap.L().With(zap.String("job", j.name))

	j.state = StateFetching
	raw, err := j.fetch(ctx)
	if err != nil {
		j.state = StateFailed
		if !IsFatal(err) {
			// Untagged fetch errors are still whole-job fatal.
			err = SourceUnavailable(err)
		}
		log.Error("fetch failed", zap.Error(err))
		return nil, err
	}
	log.Debug("fetched records", zap.Int("count", len(raw)))

	j.state = StateNormalizing
	summary := &SyncSummary{}
	normalized := make([]NormalizedRecord, 0, len(raw))
	for i, rec := range raw {
		n, err := j.mapping.Normalize(rec)
		if err != nil {
			key := rejectedKey(rec, i)
			log.Warn("record rejected", zap.String("key", key), zap.Error(err))
			summary.RecordFailure(key, err)
			continue
		}
		normalized = append(normalized, n)
	}

	j.state = StateReconciling
	summary.Merge(j.rec.Reconcile(ctx, normalized))

	j.state = StateDone
	log.Info("job done", zap.String("summary", summary.String()))
	return summary, nil
}

// rejectedKey names a record that never got a key, for the error list.
func rejectedKey(rec ExternalRecord, index int) string {
	for _, candidate := range []string{"id", "station", "region", "date"} {
		if v, ok := rec[candidate]; ok && v != nil {
			if part, err := keyPart(v); err == nil {
				return part
			}
		}
	}
	return "record[" + strconv.Itoa(index) + "]"
}
