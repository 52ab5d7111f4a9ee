package dataset

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const (
	entsoeDefaultBaseURL = "https://web-api.tp.entsoe.eu/api"

	// Actual generation per type, realised, Austrian control area,
	// wind onshore.
	entsoeDocumentType = "A75"
	entsoeProcessType  = "A16"
	entsoeDomainAT     = "10YAT-APG------L"
	entsoePsrTypeWind  = "B19"

	entsoeHistoryDays = 730
	entsoeChunkDays   = 30
)

// entsoeTimeSeries is one TimeSeries element of a GL_MarketDocument.
type entsoeTimeSeries struct {
	Period []struct {
		TimeInterval struct {
			Start string `xml:"start"`
		} `xml:"timeInterval"`
		Resolution string `xml:"resolution"`
		Point      []struct {
			Position int     `xml:"position"`
			Quantity float64 `xml:"quantity"`
		} `xml:"Point"`
	} `xml:"Period"`
}

// EntsoeWind syncs Austrian onshore wind generation from the ENTSO-E
// transparency platform, aggregated from quarter hours to daily TWh
// plus a rolling yearly production.
type EntsoeWind struct{}

func (e *EntsoeWind) Name() string       { return "entsoewind" }
func (e *EntsoeWind) Collection() string { return "ee_produktion" }
func (e *EntsoeWind) Cadence() Cadence   { return Daily }

func (e *EntsoeWind) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return DailySchedule(now, lastSync)
}

func (e *EntsoeWind) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", e.Name()))

	baseURL := entsoeDefaultBaseURL
	token := ""
	if deps.Config != nil {
		if deps.Config.Entsoe.BaseURL != "" {
			baseURL = deps.Config.Entsoe.BaseURL
		}
		token = deps.Config.Entsoe.Token
	}
	if token == "" {
		return nil, dashsync.SourceUnavailable(eris.New("entsoewind: no API token configured"))
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -entsoeHistoryDays)

	// Quarter-hour MWh summed per day, in TWh.
	daily := make(map[string]float64)
	var chunks int
	for current := start; current.Before(end); current = current.AddDate(0, 0, entsoeChunkDays) {
		if err := ctx.Err(); err != nil {
			return nil, dashsync.SourceUnavailable(err)
		}

		chunkEnd := current.AddDate(0, 0, entsoeChunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		if err := e.fetchChunk(ctx, deps, baseURL, token, current, chunkEnd, daily); err != nil {
			// A single missing chunk leaves a gap; the remaining ones
			// still produce usable days.
			log.Warn("chunk fetch failed",
				zap.String("start", current.Format("2006-01-02")),
				zap.String("end", chunkEnd.Format("2006-01-02")),
				zap.Error(err),
			)
			continue
		}
		chunks++
	}

	if chunks == 0 {
		return nil, dashsync.SourceUnavailable(eris.New("entsoewind: no generation data could be fetched"))
	}
	log.Info("aggregated generation data", zap.Int("chunks", chunks), zap.Int("days", len(daily)))

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	// Keep only the final year, where the rolling sum has a full
	// 365-day window behind it.
	last, _ := time.Parse("2006-01-02", dates[len(dates)-1])
	cutoff := last.AddDate(0, 0, -365).Format("2006-01-02")

	var records []dashsync.ExternalRecord
	for _, date := range dates {
		if date < cutoff {
			continue
		}
		records = append(records, dashsync.ExternalRecord{
			"date":             date,
			"Country":          "AT",
			"type_key":         "windkraft",
			"unit":             "TWh",
			"value":            daily[date],
			"Jahresproduktion": rollingSum(daily, date, 365),
		})
	}
	return records, nil
}

func (e *EntsoeWind) fetchChunk(ctx context.Context, deps Deps, baseURL, token string, start, end time.Time, daily map[string]float64) error {
	params := url.Values{
		"securityToken": []string{token},
		"documentType":  []string{entsoeDocumentType},
		"processType":   []string{entsoeProcessType},
		"in_Domain":     []string{entsoeDomainAT},
		"psrType":       []string{entsoePsrTypeWind},
		"periodStart":   []string{start.Format("200601021504")},
		"periodEnd":     []string{end.Format("200601021504")},
	}

	body, err := deps.Fetcher.Download(ctx, baseURL+"?"+params.Encode())
	if err != nil {
		return eris.Wrap(err, "entsoewind: download chunk")
	}
	defer body.Close()

	seriesCh, errCh := fetcher.StreamXML[entsoeTimeSeries](ctx, body, "TimeSeries")
	var matched bool
	for series := range seriesCh {
		matched = true
		for _, period := range series.Period {
			periodStart, err := time.Parse("2006-01-02T15:04Z", period.TimeInterval.Start)
			if err != nil {
				return dashsync.MalformedResponse(eris.Wrapf(err, "entsoewind: parse period start %q", period.TimeInterval.Start))
			}
			step := resolutionStep(period.Resolution)
			for _, point := range period.Point {
				ts := periodStart.Add(time.Duration(point.Position-1) * step)
				date := ts.Format("2006-01-02")
				// Quarter-hour average MW over 15 minutes is MWh/4.
				daily[date] += point.Quantity * 0.25 / 1e6
			}
		}
	}
	if err := <-errCh; err != nil {
		return dashsync.MalformedResponse(eris.Wrap(err, "entsoewind: parse chunk"))
	}
	if !matched {
		return eris.New("entsoewind: chunk contains no time series")
	}
	return nil
}

func (e *EntsoeWind) Mapping() dashsync.Mapping {
	round6 := dashsync.Round(6)
	return dashsync.Mapping{
		KeyFields: []string{"Country", "type_key", "date"},
		Fields: []dashsync.FieldSpec{
			{Source: "date", Target: "DateTime", Transform: toUTCTimestamp, Required: true},
			{Source: "Country", Target: "Country", Required: true},
			{Source: "type_key", Target: "Type", Transform: toStringList},
			{Source: "unit", Target: "unit"},
			{Source: "value", Target: "value", Transform: round6, Required: true},
			{Source: "Jahresproduktion", Target: "Jahresproduktion", Transform: round6},
		},
	}
}

func resolutionStep(resolution string) time.Duration {
	switch resolution {
	case "PT15M":
		return 15 * time.Minute
	case "PT30M":
		return 30 * time.Minute
	case "PT60M", "PT1H":
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// rollingSum adds the daily values inside the trailing window ending at
// date, both bounds inclusive of the day itself.
func rollingSum(daily map[string]float64, date string, days int) float64 {
	end, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	var sum float64
	for d := 0; d < days; d++ {
		if v, ok := daily[end.AddDate(0, 0, -d).Format("2006-01-02")]; ok {
			sum += v
		}
	}
	return sum
}

func toUTCTimestamp(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, eris.Errorf("expected date string, got %T", v)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, eris.Wrapf(err, "parse date %q", s)
	}
	return t.UTC().Format(time.RFC3339), nil
}

func toStringList(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, eris.Errorf("expected string, got %T", v)
	}
	return []string{s}, nil
}
