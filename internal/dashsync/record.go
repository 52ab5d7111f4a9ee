// Package dashsync implements the batch sync core: fetch one external
// dataset, normalize it, and reconcile it against a Directus collection.
package dashsync

import "fmt"

// ExternalRecord is raw structured data as returned by a source. The
// shape varies per source; records are discarded after normalization.
type ExternalRecord map[string]any

// KeyField is the dedicated Directus field that carries the external key
// on every synced collection.
const KeyField = "external_key"

// NormalizedRecord is a source record mapped onto the target collection
// schema, keyed by a stable external key.
type NormalizedRecord struct {
	Key    string
	Fields map[string]any
}

// RecordError pairs an external key with the error that excluded the
// record from the sync.
type RecordError struct {
	Key     string
	Message string
}

// SyncSummary is the audit trail of one job run.
type SyncSummary struct {
	Created   int
	Updated   int
	Unchanged int
	Failed    int
	Errors    []RecordError
}

// RecordFailure counts a per-record failure and keeps its message.
func (s *SyncSummary) RecordFailure(key string, err error) {
	s.Failed++
	s.Errors = append(s.Errors, RecordError{Key: key, Message: err.Error()})
}

// Merge folds another summary into this one.
func (s *SyncSummary) Merge(other *SyncSummary) {
	if other == nil {
		return
	}
	s.Created += other.Created
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Failed += other.Failed
	s.Errors = append(s.Errors, other.Errors...)
}

// Total returns the number of records the summary accounts for.
func (s *SyncSummary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Failed
}

// String renders the summary for logs and notifications.
func (s *SyncSummary) String() string {
	return fmt.Sprintf("created=%d updated=%d unchanged=%d failed=%d",
		s.Created, s.Updated, s.Unchanged, s.Failed)
}

// Metadata renders the summary as sync log metadata.
func (s *SyncSummary) Metadata() map[string]any {
	m := map[string]any{
		"created":   s.Created,
		"updated":   s.Updated,
		"unchanged": s.Unchanged,
		"failed":    s.Failed,
	}
	if len(s.Errors) > 0 {
		msgs := make([]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			msgs = append(msgs, e.Key+": "+e.Message)
		}
		m["errors"] = msgs
	}
	return m
}
