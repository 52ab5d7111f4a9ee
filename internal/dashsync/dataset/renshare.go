package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const (
	renShareDailyURL  = "https://api.energy-charts.info/ren_share_daily_avg?country=%s&year=%d"
	renShareSignalURL = "https://api.energy-charts.info/signal?country=%s"
	renShareFirstYear = 2024
)

var renShareCountries = []string{"at", "de"}

// renShareDailyResponse is the daily-average payload of
// energy-charts.info. Days are formatted "31.12.2024".
type renShareDailyResponse struct {
	Days []string   `json:"days"`
	Data []*float64 `json:"data"`
}

// renShareSignalResponse is the quarter-hour signal payload.
type renShareSignalResponse struct {
	UnixSeconds []int64    `json:"unix_seconds"`
	Share       []*float64 `json:"share"`
}

// sharePoint is one observation of the renewable share.
type sharePoint struct {
	period  string
	value   float64
	country string
}

// RenewableShare syncs the renewable share of electricity generation
// for Austria and Germany from energy-charts.info: daily averages per
// year plus the live quarter-hour signal, with rolling means layered on
// top. History never changes, so the dataset only ever inserts.
type RenewableShare struct{}

func (r *RenewableShare) Name() string       { return "renshare" }
func (r *RenewableShare) Collection() string { return "energy_renewable_share" }
func (r *RenewableShare) Cadence() Cadence   { return Daily }

func (r *RenewableShare) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (r *RenewableShare) ReconcilerOptions() []dashsync.ReconcilerOption {
	return []dashsync.ReconcilerOption{dashsync.InsertOnly()}
}

func (r *RenewableShare) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", r.Name()))

	var records []dashsync.ExternalRecord
	var fetched int
	for _, country := range renShareCountries {
		if err := ctx.Err(); err != nil {
			return nil, dashsync.SourceUnavailable(err)
		}

		daily, err := r.fetchDaily(ctx, deps, country)
		if err != nil {
			log.Warn("daily fetch failed", zap.String("country", country), zap.Error(err))
		} else {
			records = append(records, pointsToRecords(daily, "day")...)
			records = append(records, pointsToRecords(rollingMeans(daily, 7), "week")...)
			records = append(records, pointsToRecords(rollingMeans(daily, 30), "month")...)
			records = append(records, pointsToRecords(rollingMeans(daily, 365), "year")...)
			fetched++
		}

		signal, err := r.fetchSignal(ctx, deps, country)
		if err != nil {
			log.Warn("signal fetch failed", zap.String("country", country), zap.Error(err))
		} else {
			records = append(records, pointsToRecords(signal, "15min")...)
			fetched++
		}
	}

	if fetched == 0 {
		return nil, dashsync.SourceUnavailable(eris.New("renshare: no data could be fetched"))
	}
	log.Info("collected share records", zap.Int("records", len(records)))
	return records, nil
}

// fetchDaily walks backwards from the current year until a year comes
// back empty.
func (r *RenewableShare) fetchDaily(ctx context.Context, deps Deps, country string) ([]sharePoint, error) {
	var points []sharePoint
	for year := time.Now().UTC().Year(); year >= renShareFirstYear; year-- {
		body, err := deps.Fetcher.Download(ctx, fmt.Sprintf(renShareDailyURL, country, year))
		if err != nil {
			return nil, eris.Wrapf(err, "renshare: download daily data for %s %d", country, year)
		}

		resp, err := fetcher.DecodeJSONObject[renShareDailyResponse](body)
		body.Close()
		if err != nil {
			return nil, dashsync.MalformedResponse(eris.Wrapf(err, "renshare: parse daily data for %s %d", country, year))
		}
		if len(resp.Days) == 0 {
			break
		}

		for i, day := range resp.Days {
			if i >= len(resp.Data) || resp.Data[i] == nil {
				continue
			}
			date, err := time.Parse("02.01.2006", day)
			if err != nil {
				continue
			}
			points = append(points, sharePoint{
				period:  date.Format("2006-01-02"),
				value:   *resp.Data[i],
				country: strings.ToUpper(country),
			})
		}
	}
	return points, nil
}

func (r *RenewableShare) fetchSignal(ctx context.Context, deps Deps, country string) ([]sharePoint, error) {
	body, err := deps.Fetcher.Download(ctx, fmt.Sprintf(renShareSignalURL, country))
	if err != nil {
		return nil, eris.Wrapf(err, "renshare: download signal for %s", country)
	}
	defer body.Close()

	resp, err := fetcher.DecodeJSONObject[renShareSignalResponse](body)
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrapf(err, "renshare: parse signal for %s", country))
	}

	points := make([]sharePoint, 0, len(resp.UnixSeconds))
	for i, ts := range resp.UnixSeconds {
		if i >= len(resp.Share) || resp.Share[i] == nil {
			continue
		}
		points = append(points, sharePoint{
			period:  time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05"),
			value:   *resp.Share[i],
			country: strings.ToUpper(country),
		})
	}
	return points, nil
}

func (r *RenewableShare) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		KeyFields: []string{"period", "country", "category"},
		Fields: []dashsync.FieldSpec{
			{Source: "period", Target: "period", Required: true},
			{Source: "country", Target: "country", Required: true},
			{Source: "category", Target: "category", Required: true},
			{Source: "year", Target: "year"},
			{Source: "value", Target: "value", Required: true},
		},
	}
}

// rollingMeans computes trailing-window means over the sorted daily
// series, labeled with the window's last day. Windows shorter than the
// size produce nothing.
func rollingMeans(points []sharePoint, window int) []sharePoint {
	sorted := make([]sharePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].period < sorted[j].period })

	var result []sharePoint
	var sum float64
	for i, p := range sorted {
		sum += p.value
		if i >= window {
			sum -= sorted[i-window].value
		}
		if i >= window-1 {
			result = append(result, sharePoint{
				period:  p.period,
				value:   sum / float64(window),
				country: p.country,
			})
		}
	}
	return result
}

func pointsToRecords(points []sharePoint, category string) []dashsync.ExternalRecord {
	records := make([]dashsync.ExternalRecord, 0, len(points))
	for _, p := range points {
		records = append(records, dashsync.ExternalRecord{
			"period":   p.period,
			"value":    p.value,
			"country":  p.country,
			"category": category,
			"year":     p.period[:4],
		})
	}
	return records
}
