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
	gasUsageAGGMURL = "https://energie.wifo.ac.at/data/gas/consumption-aggm.csv"
	gasUsageBNAURL  = "https://www.bundesnetzagentur.de/_tools/SVG/js2/_functions/csv_export.html?view=renderCSV&id=870330"
)

// GasUsage syncs weekly gas consumption for Austria (AGGM via WIFO) and
// Germany (Bundesnetzagentur) into the energy collection.
type GasUsage struct{}

func (g *GasUsage) Name() string       { return "gasusage" }
func (g *GasUsage) Collection() string { return "energy" }
func (g *GasUsage) Cadence() Cadence   { return Daily }

func (g *GasUsage) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

// ReconcilerOptions stamps every write with the sync date without
// forcing a write when only the stamp would change.
func (g *GasUsage) ReconcilerOptions() []dashsync.ReconcilerOption {
	return []dashsync.ReconcilerOption{
		dashsync.Touch("update", time.Now().UTC().Format("2006-01-02")),
	}
}

func (g *GasUsage) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", g.Name()))

	var records []dashsync.ExternalRecord

	aggm, err := g.fetchAGGM(ctx, deps)
	if err != nil {
		return nil, err
	}
	log.Info("parsed AGGM rows", zap.Int("rows", len(aggm)))
	records = append(records, aggm...)

	bna, err := g.fetchBNA(ctx, deps)
	if err != nil {
		return nil, err
	}
	log.Info("parsed Bundesnetzagentur rows", zap.Int("rows", len(bna)))
	records = append(records, bna...)

	return records, nil
}

// fetchAGGM parses the WIFO long-format CSV: one row per date and
// variable, values already in TWh.
func (g *GasUsage) fetchAGGM(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	body, err := deps.Fetcher.Download(ctx, gasUsageAGGMURL)
	if err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "gasusage: download AGGM CSV"))
	}
	defer body.Close()

	header, rows, err := fetcher.ReadAllCSV(ctx, body, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrap(err, "gasusage: parse AGGM CSV"))
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	dateCol, okDate := col["date"]
	variableCol, okVariable := col["variable"]
	valueCol, okValue := col["value"]
	if !okDate || !okVariable || !okValue {
		return nil, dashsync.MalformedResponse(eris.Errorf("gasusage: AGGM CSV header missing columns: %v", header))
	}

	var records []dashsync.ExternalRecord
	for _, row := range rows {
		if len(row) <= dateCol || len(row) <= variableCol || len(row) <= valueCol {
			continue
		}
		if row[variableCol] != "value" {
			continue
		}
		records = append(records, dashsync.ExternalRecord{
			"region":   "at",
			"period":   row[dateCol],
			"source":   "AGGM",
			"category": "gas|usage",
			"unit":     "TWh",
			"value":    row[valueCol],
			"note":     "",
		})
	}
	return records, nil
}

// fetchBNA parses the Bundesnetzagentur export: a week-by-year pivot
// with semicolon delimiters, values in GWh.
func (g *GasUsage) fetchBNA(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	body, err := deps.Fetcher.Download(ctx, gasUsageBNAURL)
	if err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "gasusage: download Bundesnetzagentur CSV"))
	}
	defer body.Close()

	header, rows, err := fetcher.ReadAllCSV(ctx, body, fetcher.CSVOptions{
		Delimiter:  ';',
		HasHeader:  true,
		TrimSpace:  true,
		LazyQuotes: true,
	})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrap(err, "gasusage: parse Bundesnetzagentur CSV"))
	}

	// Year columns follow the week-number column.
	type yearCol struct {
		year  int
		index int
	}
	var years []yearCol
	for i, name := range header {
		if year, err := strconv.Atoi(name); err == nil {
			years = append(years, yearCol{year: year, index: i})
		}
	}
	if len(years) == 0 {
		return nil, dashsync.MalformedResponse(eris.Errorf("gasusage: Bundesnetzagentur CSV has no year columns: %v", header))
	}

	var records []dashsync.ExternalRecord
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		week, err := strconv.Atoi(row[0])
		if err != nil {
			continue
		}
		for _, yc := range years {
			if yc.index >= len(row) || row[yc.index] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(row[yc.index], 64); err != nil {
				continue
			}
			records = append(records, dashsync.ExternalRecord{
				"region":   "de",
				"period":   weekEndDate(yc.year, week),
				"source":   "Bundesnetzagentur",
				"category": "gas|usage",
				"unit":     "GWh",
				"value":    row[yc.index],
				"note":     "",
			})
		}
	}
	return records, nil
}

func (g *GasUsage) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		KeyFields: []string{"region", "period"},
		Fields: []dashsync.FieldSpec{
			{Source: "region", Target: "region", Required: true},
			{Source: "period", Target: "period", Required: true},
			{Source: "source", Target: "source"},
			{Source: "category", Target: "category"},
			{Source: "unit", Target: "unit"},
			{Source: "value", Target: "value", Transform: dashsync.Chain(dashsync.ParseFloat, dashsync.Round(3)), Required: true},
		},
	}
}

// weekEndDate returns the last day (Sunday) of the counted week,
// starting the first week on January 1st.
func weekEndDate(year, week int) string {
	first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, (week-1)*7+6).Format("2006-01-02")
}
