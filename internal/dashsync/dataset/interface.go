// Package dataset holds the upstream dataset implementations and the
// engine that schedules and runs their syncs.
package dataset

import (
	"context"
	"time"

	"github.com/klimadashboard/klimasync/internal/config"
	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/directus"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

// Cadence describes how often a dataset is updated upstream.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// Deps bundles the shared clients a dataset may use during a sync.
type Deps struct {
	Fetcher  fetcher.Fetcher
	Directus directus.Client
	Config   *config.Config
	// TempDir is a working directory for downloaded files.
	TempDir string
}

// Dataset defines the interface each upstream dataset must implement.
type Dataset interface {
	// Name returns the unique identifier for this dataset (e.g., "dwd").
	Name() string

	// Collection returns the Directus collection the dataset writes to.
	Collection() string

	// Cadence returns how often this dataset is updated upstream.
	Cadence() Cadence

	// ShouldRun decides if this dataset needs syncing given the current
	// time and the time of the last successful sync (nil if never synced).
	ShouldRun(now time.Time, lastSync *time.Time) bool

	// Fetch downloads and parses the upstream source into raw records.
	Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error)

	// Mapping declares how raw records become normalized dashboard rows.
	Mapping() dashsync.Mapping
}

// ReconcilerConfigurer is implemented by datasets that need the writer
// tuned, such as insert-only history tables.
type ReconcilerConfigurer interface {
	ReconcilerOptions() []dashsync.ReconcilerOption
}

// Syncer is implemented by datasets that bypass the record pipeline
// entirely because their target is not a keyed collection.
type Syncer interface {
	Sync(ctx context.Context, deps Deps) (*dashsync.SyncSummary, error)
}
