package dataset

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const (
	eurostatDataset = "nrg_ind_ren"
	eurostatURL     = "https://ec.europa.eu/eurostat/api/dissemination/sdmx/3.0/data/dataflow/ESTAT/" +
		eurostatDataset + "/1.0/*.*.*.*?compress=false&format=csvdata&formatVersion=2.0&lang=en&labels=name"
)

// Eurostat syncs the renewable share in transport energy use from the
// Eurostat SDMX dissemination API into the mobility collection.
type Eurostat struct{}

func (e *Eurostat) Name() string       { return "eurostat" }
func (e *Eurostat) Collection() string { return "mobility" }
func (e *Eurostat) Cadence() Cadence   { return Monthly }

func (e *Eurostat) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

func (e *Eurostat) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", e.Name()))

	body, err := deps.Fetcher.Download(ctx, eurostatURL)
	if err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "eurostat: download dataset"))
	}
	defer body.Close()

	header, rows, err := fetcher.ReadAllCSV(ctx, body, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrap(err, "eurostat: parse dataset CSV"))
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"geo", "TIME_PERIOD", "OBS_VALUE", "nrg_bal"} {
		if _, ok := col[required]; !ok {
			return nil, dashsync.MalformedResponse(eris.Errorf("eurostat: column %q not found in dataset", required))
		}
	}

	var records []dashsync.ExternalRecord
	for _, row := range rows {
		if len(row) <= col["geo"] || len(row) <= col["TIME_PERIOD"] || len(row) <= col["OBS_VALUE"] || len(row) <= col["nrg_bal"] {
			continue
		}
		if row[col["nrg_bal"]] != "REN_TRA" {
			continue
		}
		if _, err := strconv.ParseFloat(row[col["OBS_VALUE"]], 64); err != nil {
			continue
		}
		records = append(records, dashsync.ExternalRecord{
			"region":   row[col["geo"]],
			"period":   row[col["TIME_PERIOD"]],
			"unit":     "Percentage",
			"category": "share_renewable",
			"source":   "Eurostat",
			"value":    row[col["OBS_VALUE"]],
			"note":     "",
		})
	}

	log.Info("filtered transport renewables rows", zap.Int("rows", len(records)))
	return records, nil
}

func (e *Eurostat) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		KeyFields: []string{"region", "period", "category"},
		Fields: []dashsync.FieldSpec{
			{Source: "region", Target: "region", Required: true},
			{Source: "period", Target: "period", Required: true},
			{Source: "unit", Target: "unit"},
			{Source: "category", Target: "category", Required: true},
			{Source: "source", Target: "source"},
			{Source: "value", Target: "value", Transform: dashsync.ParseFloat, Required: true},
		},
	}
}
