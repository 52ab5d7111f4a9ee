package dataset

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const (
	geosphereBaseURL  = "https://dataset.api.hub.geosphere.at/v1/station/historical/klima-v2-1d"
	geosphereDaysBack = 500
)

// geosphereResponse is the GeoJSON-shaped payload of the klima-v2-1d
// endpoint. Parameter series are parallel to the timestamps array.
type geosphereResponse struct {
	Timestamps []string `json:"timestamps"`
	Features   []struct {
		Properties struct {
			Parameters map[string]struct {
				Data []*float64 `json:"data"`
			} `json:"parameters"`
		} `json:"properties"`
	} `json:"features"`
}

// Geosphere syncs daily climate observations for Austrian stations from
// the Geosphere data hub.
type Geosphere struct{}

func (g *Geosphere) Name() string       { return "geosphere" }
func (g *Geosphere) Collection() string { return "at_geosphere_data" }
func (g *Geosphere) Cadence() Cadence   { return Daily }

func (g *Geosphere) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (g *Geosphere) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", g.Name()))

	items, err := deps.Directus.ListItems(ctx, "at_geosphere_stations", url.Values{"limit": []string{"-1"}})
	if err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "geosphere: list stations"))
	}

	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -geosphereDaysBack)
	log.Info("fetching station data",
		zap.Int("stations", len(items)),
		zap.String("start", start.Format("2006-01-02")),
		zap.String("end", end.Format("2006-01-02")),
	)

	var records []dashsync.ExternalRecord
	var fetched int
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, dashsync.SourceUnavailable(err)
		}

		station := stationID(item["id"])
		if station == "" {
			continue
		}

		rows, err := g.stationData(ctx, deps, station, start, end)
		if err != nil {
			log.Warn("station fetch failed", zap.String("station", station), zap.Error(err))
			continue
		}
		records = append(records, rows...)
		fetched++
	}

	if len(items) > 0 && fetched == 0 {
		return nil, dashsync.SourceUnavailable(eris.New("geosphere: no station data could be fetched"))
	}
	return records, nil
}

func (g *Geosphere) stationData(ctx context.Context, deps Deps, station string, start, end time.Time) ([]dashsync.ExternalRecord, error) {
	params := url.Values{
		"start":       []string{start.Format("2006-01-02")},
		"end":         []string{end.Format("2006-01-02")},
		"parameters":  []string{"tl_mittel,tlmax,tlmin,sh"},
		"station_ids": []string{station},
	}

	body, err := deps.Fetcher.Download(ctx, geosphereBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrapf(err, "geosphere: fetch station %s", station)
	}
	defer body.Close()

	resp, err := fetcher.DecodeJSONObject[geosphereResponse](body)
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrapf(err, "geosphere: parse station %s", station))
	}
	if len(resp.Features) == 0 || len(resp.Timestamps) == 0 {
		return nil, nil
	}

	parameters := resp.Features[0].Properties.Parameters
	at := func(name string, i int) *float64 {
		series, ok := parameters[name]
		if !ok || i >= len(series.Data) {
			return nil
		}
		return series.Data[i]
	}

	var records []dashsync.ExternalRecord
	for i, ts := range resp.Timestamps {
		date, _, _ := strings.Cut(ts, "T")

		sh := at("sh", i)
		tlmax := at("tlmax", i)
		tlmin := at("tlmin", i)
		tlMittel := at("tl_mittel", i)

		// Days with no measurements at all are gaps, not rows.
		if (sh == nil || *sh == 0) && tlmax == nil && tlmin == nil && tlMittel == nil {
			continue
		}

		records = append(records, dashsync.ExternalRecord{
			"station":   station,
			"date":      date,
			"sh":        floatOrNil(sh),
			"tlmax":     floatOrNil(tlmax),
			"tlmin":     floatOrNil(tlmin),
			"tl_mittel": floatOrNil(tlMittel),
		})
	}
	return records, nil
}

func (g *Geosphere) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		KeyFields: []string{"station", "date"},
		Fields: []dashsync.FieldSpec{
			{Source: "station", Target: "station", Required: true},
			{Source: "date", Target: "date", Required: true},
			{Source: "sh", Target: "sh"},
			{Source: "tlmax", Target: "tlmax"},
			{Source: "tlmin", Target: "tlmin"},
			{Source: "tl_mittel", Target: "tl_mittel"},
		},
	}
}

func stationID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	default:
		return ""
	}
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
