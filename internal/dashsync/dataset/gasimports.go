package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const gasImportsURL = "https://www.bundesnetzagentur.de/_tools/SVG/js2/_functions/csv_export.html?view=renderCSV&id=1081248"

// GasImports syncs German gas import flows from the Bundesnetzagentur
// export. Columns carry German country names, resolved against the
// countries collection; unresolved columns become free-form sources.
type GasImports struct{}

func (g *GasImports) Name() string       { return "gasimports" }
func (g *GasImports) Collection() string { return "gas_imports" }
func (g *GasImports) Cadence() Cadence   { return Daily }

func (g *GasImports) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (g *GasImports) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", g.Name()))

	body, err := deps.Fetcher.Download(ctx, gasImportsURL)
	if err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "gasimports: download CSV"))
	}
	defer body.Close()

	header, rows, err := fetcher.ReadAllCSV(ctx, body, fetcher.CSVOptions{
		Delimiter:  ';',
		HasHeader:  true,
		TrimSpace:  true,
		LazyQuotes: true,
	})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrap(err, "gasimports: parse CSV"))
	}
	if len(header) < 2 {
		return nil, dashsync.MalformedResponse(eris.Errorf("gasimports: CSV header too short: %v", header))
	}

	// The first column holds the date; the remaining ones are import
	// sources named in German. Resolve each once.
	countryIDs := make(map[string]any, len(header)-1)
	for _, source := range header[1:] {
		if source == "" || source == "." {
			continue
		}
		country, err := deps.Directus.FindByKey(ctx, "countries", "name_de", source)
		if err != nil {
			return nil, dashsync.SourceUnavailable(eris.Wrapf(err, "gasimports: resolve country %q", source))
		}
		if country != nil {
			countryIDs[source] = country["id"]
		}
	}
	log.Info("resolved import sources", zap.Int("columns", len(header)-1), zap.Int("countries", len(countryIDs)))

	var records []dashsync.ExternalRecord
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		for i, source := range header[1:] {
			if source == "" || source == "." || i+1 >= len(row) || row[i+1] == "" {
				continue
			}
			rec := dashsync.ExternalRecord{
				"Country":     "DE",
				"date":        row[0],
				"value":       row[i+1],
				"source_name": source,
			}
			if id, ok := countryIDs[source]; ok {
				rec["import_country"] = id
			} else {
				rec["import_source"] = source
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (g *GasImports) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		// source_name stays on the raw record; it only shapes the key.
		KeyFields: []string{"Country", "source_name", "date"},
		Fields: []dashsync.FieldSpec{
			{Source: "Country", Target: "Country", Required: true},
			{Source: "date", Target: "date", Transform: dashsync.ParseDate("02.01.2006"), Required: true},
			{Source: "value", Target: "value", Transform: dashsync.ParseFloat, Required: true},
			{Source: "import_country", Target: "import_country"},
			{Source: "import_source", Target: "import_source"},
		},
	}
}
