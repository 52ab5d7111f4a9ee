package dataset

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const dwdRecentBaseURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent"

// DWD syncs daily climate observations from the DWD open data portal
// for every station listed in de_dwd_stations.
type DWD struct{}

func (d *DWD) Name() string       { return "dwd" }
func (d *DWD) Collection() string { return "de_dwd_data" }
func (d *DWD) Cadence() Cadence   { return Daily }

func (d *DWD) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (d *DWD) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", d.Name()))

	stations, err := d.stationIDs(ctx, deps)
	if err != nil {
		return nil, dashsync.SourceUnavailable(err)
	}
	log.Info("fetched station list", zap.Int("stations", len(stations)))

	baseURL := dwdRecentBaseURL
	if deps.Config != nil && deps.Config.Sync.DWDBaseURL != "" {
		baseURL = deps.Config.Sync.DWDBaseURL
	}

	var records []dashsync.ExternalRecord
	var fetched int
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return nil, dashsync.SourceUnavailable(err)
		}

		rows, err := d.stationData(ctx, deps, baseURL, station)
		if err != nil {
			// One missing station archive must not sink the rest.
			log.Warn("station fetch failed", zap.Int("station", station), zap.Error(err))
			continue
		}
		records = append(records, rows...)
		fetched++
	}

	if len(stations) > 0 && fetched == 0 {
		return nil, dashsync.SourceUnavailable(eris.New("dwd: no station archive could be fetched"))
	}
	return records, nil
}

// stationIDs reads the configured station list from the dashboard.
func (d *DWD) stationIDs(ctx context.Context, deps Deps) ([]int, error) {
	params := url.Values{
		"fields": []string{"id"},
		"limit":  []string{"-1"},
	}
	items, err := deps.Directus.ListItems(ctx, "de_dwd_stations", params)
	if err != nil {
		return nil, eris.Wrap(err, "dwd: list stations")
	}

	stations := make([]int, 0, len(items))
	for _, item := range items {
		id, ok := item["id"].(float64)
		if !ok {
			continue
		}
		stations = append(stations, int(id))
	}
	return stations, nil
}

// stationData downloads the recent-observations archive for one station
// and parses the product file inside it.
func (d *DWD) stationData(ctx context.Context, deps Deps, baseURL string, station int) ([]dashsync.ExternalRecord, error) {
	archiveURL := fmt.Sprintf("%s/tageswerte_KL_%05d_akt.zip", baseURL, station)
	zipPath := filepath.Join(deps.TempDir, fmt.Sprintf("dwd_%05d.zip", station))

	if _, err := deps.Fetcher.DownloadToFile(ctx, archiveURL, zipPath); err != nil {
		return nil, eris.Wrapf(err, "dwd: download station %d", station)
	}
	defer os.Remove(zipPath)

	dataPath, err := fetcher.ExtractZIPMatch(zipPath, "produkt_klima", deps.TempDir)
	if err != nil {
		return nil, eris.Wrapf(err, "dwd: extract station %d", station)
	}
	defer os.Remove(dataPath)

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, eris.Wrapf(err, "dwd: open product file for station %d", station)
	}
	defer f.Close()

	header, rows, err := fetcher.ReadAllCSV(ctx, fetcher.Latin1Reader(f), fetcher.CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		TrimSpace: true,
	})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrapf(err, "dwd: parse product file for station %d", station))
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	dateCol, ok := col["MESS_DATUM"]
	if !ok {
		return nil, dashsync.MalformedResponse(eris.Errorf("dwd: station %d product file has no MESS_DATUM column", station))
	}

	seen := make(map[string]bool, len(rows))
	records := make([]dashsync.ExternalRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) <= dateCol {
			continue
		}
		date := row[dateCol]
		if seen[date] {
			continue
		}
		seen[date] = true

		rec := dashsync.ExternalRecord{
			"station":    station,
			"MESS_DATUM": date,
		}
		for _, field := range []string{"TNK", "TXK", "TMK", "SHK_TAG"} {
			if i, ok := col[field]; ok && i < len(row) {
				rec[field] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *DWD) Mapping() dashsync.Mapping {
	temperature := dashsync.Chain(dashsync.ParseFloat, dashsync.NullIf(-999))
	return dashsync.Mapping{
		KeyFields: []string{"station", "date"},
		Fields: []dashsync.FieldSpec{
			{Source: "station", Target: "station", Required: true},
			{Source: "MESS_DATUM", Target: "date", Transform: dashsync.ParseDate("20060102"), Required: true},
			{Source: "TNK", Target: "tlmin", Transform: temperature},
			{Source: "TXK", Target: "tlmax", Transform: temperature},
			{Source: "TMK", Target: "tl_mittel", Transform: temperature},
			{Source: "SHK_TAG", Target: "sh", Transform: temperature},
		},
	}
}
