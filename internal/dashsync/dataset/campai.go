package dataset

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/directus"
	"github.com/klimadashboard/klimasync/pkg/campai"
)

// Campai syncs the donation counter from the campai accounting backend
// into the org_donation singleton. There is no keyed collection behind
// it, so the dataset implements Syncer directly.
type Campai struct {
	// client overrides the campai API client (for testing).
	client campai.Client
}

func (c *Campai) Name() string       { return "campai" }
func (c *Campai) Collection() string { return "org_donation" }
func (c *Campai) Cadence() Cadence   { return Daily }

func (c *Campai) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (c *Campai) Fetch(context.Context, Deps) ([]dashsync.ExternalRecord, error) {
	return nil, eris.New("campai: dataset syncs directly, not through the record pipeline")
}

func (c *Campai) Mapping() dashsync.Mapping {
	return dashsync.Mapping{}
}

func (c *Campai) Sync(ctx context.Context, deps Deps) (*dashsync.SyncSummary, error) {
	if deps.Config == nil {
		return nil, dashsync.SourceUnavailable(eris.New("campai: no configuration"))
	}
	cfg := deps.Config.Campai
	if cfg.APIKey == "" || cfg.OrgID == "" || cfg.MandateID == "" {
		return nil, dashsync.SourceUnavailable(eris.New("campai: api_key, org_id and mandate_id must be configured"))
	}

	client := c.client
	if client == nil {
		client = campai.NewClient(cfg.APIKey, cfg.OrgID, cfg.MandateID)
	}

	year := cfg.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}

	cents, err := client.AccountBalance(ctx, year, campai.DonationAccount)
	if err != nil {
		return nil, dashsync.SourceUnavailable(err)
	}
	euros := int64(math.Round(float64(cents) / 100))

	zap.L().Info("fetched donation balance",
		zap.String("dataset", c.Name()),
		zap.Int64("cents", cents),
		zap.Int64("euros", euros),
	)

	if err := deps.Directus.UpdateSingleton(ctx, c.Collection(), directus.Item{"donationStatus": euros}); err != nil {
		summary := &dashsync.SyncSummary{}
		summary.RecordFailure("donationStatus", dashsync.BackendWrite(err))
		return summary, nil
	}

	return &dashsync.SyncSummary{Updated: 1}, nil
}
