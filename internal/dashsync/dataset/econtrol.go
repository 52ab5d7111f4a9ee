package dataset

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/fetcher"
)

const econtrolXLSXURL = "https://www.e-control.at/documents/1785851/12985028/MoMeGes_Bilanz_2025.xlsx"

// EControl syncs Austrian PV and hydro power generation from the
// monthly E-Control balance workbook. Published months never change, so
// the dataset only ever inserts.
type EControl struct{}

func (e *EControl) Name() string       { return "econtrol" }
func (e *EControl) Collection() string { return "ee_produktion" }
func (e *EControl) Cadence() Cadence   { return Monthly }

func (e *EControl) ShouldRun(now time.Time, lastSync *time.Time) bool {
	return MonthlySchedule(now, lastSync)
}

func (e *EControl) ReconcilerOptions() []dashsync.ReconcilerOption {
	return []dashsync.ReconcilerOption{dashsync.InsertOnly()}
}

// monthlyValue is one month of generation for one type, in TWh.
type monthlyValue struct {
	date     string
	typeName string
	value    float64
}

func (e *EControl) Fetch(ctx context.Context, deps Deps) ([]dashsync.ExternalRecord, error) {
	log := zap.L().With(zap.String("dataset", e.Name()))

	xlsxPath := filepath.Join(deps.TempDir, "momeges_bilanz.xlsx")
	if _, err := deps.Fetcher.DownloadToFile(ctx, econtrolXLSXURL, xlsxPath); err != nil {
		return nil, dashsync.SourceUnavailable(eris.Wrap(err, "econtrol: download workbook"))
	}
	defer os.Remove(xlsxPath)

	rows, err := fetcher.ReadXLSX(xlsxPath, fetcher.XLSXOptions{SheetName: "Erzeugung"})
	if err != nil {
		return nil, dashsync.MalformedResponse(eris.Wrap(err, "econtrol: read workbook"))
	}

	pv, err := extractSeries(rows, "voltaik", "pv")
	if err != nil {
		return nil, dashsync.MalformedResponse(err)
	}
	hydro, err := extractSeries(rows, "Wasserkraft", "wasserkraft")
	if err != nil {
		return nil, dashsync.MalformedResponse(err)
	}
	parsed := append(pv, hydro...)
	log.Info("extracted monthly series", zap.Int("pv", len(pv)), zap.Int("hydro", len(hydro)))

	// The rolling yearly sum needs the months already stored.
	existing, err := e.existingValues(ctx, deps)
	if err != nil {
		return nil, dashsync.SourceUnavailable(err)
	}

	yearly := yearlyProduction(existing, parsed)

	records := make([]dashsync.ExternalRecord, 0, len(parsed))
	for _, mv := range parsed {
		rec := dashsync.ExternalRecord{
			"date":     mv.date,
			"Country":  "AT",
			"type_key": mv.typeName,
			"unit":     "TWh",
			"value":    mv.value,
		}
		if sum, ok := yearly[mv.typeName+":"+mv.date]; ok {
			rec["Jahresproduktion"] = sum
		}
		records = append(records, rec)
	}
	return records, nil
}

// existingValues loads the stored AT pv and hydro months.
func (e *EControl) existingValues(ctx context.Context, deps Deps) ([]monthlyValue, error) {
	params := url.Values{
		"filter[Country][_eq]": []string{"AT"},
		"filter[Type][_in]":    []string{"pv,wasserkraft"},
		"fields":               []string{"DateTime,value,Type"},
		"sort":                 []string{"DateTime"},
		"limit":                []string{"-1"},
	}
	items, err := deps.Directus.ListItems(ctx, e.Collection(), params)
	if err != nil {
		return nil, eris.Wrap(err, "econtrol: list existing production")
	}

	var values []monthlyValue
	for _, item := range items {
		dt, _ := item["DateTime"].(string)
		if len(dt) < 10 {
			continue
		}
		value, ok := item["value"].(float64)
		if !ok {
			continue
		}
		typeName := scalarType(item["Type"])
		if typeName == "" {
			continue
		}
		values = append(values, monthlyValue{date: dt[:10], typeName: typeName, value: value})
	}
	return values, nil
}

func (e *EControl) Mapping() dashsync.Mapping {
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

// extractSeries pulls one generation column out of the Erzeugung sheet.
// The column is located by a label fragment, the data block by the
// Einheit marker rows around the GWh section. Values shift one month
// forward and convert from GWh to TWh.
func extractSeries(rows [][]string, labelFragment, typeName string) ([]monthlyValue, error) {
	colIdx := -1
	for _, row := range rows {
		for i, cell := range row {
			if strings.Contains(strings.ReplaceAll(cell, "\n", ""), labelFragment) {
				colIdx = i
				break
			}
		}
		if colIdx >= 0 {
			break
		}
	}
	if colIdx < 0 {
		return nil, eris.Errorf("econtrol: label %q not found in Erzeugung sheet", labelFragment)
	}

	start := -1
	end := len(rows)
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) != "Einheit" {
			continue
		}
		unit := ""
		if colIdx < len(row) {
			unit = strings.TrimSpace(row[colIdx])
		}
		if unit == "GWh" && start < 0 {
			start = i + 1
		} else if unit != "GWh" && start >= 0 {
			end = i
			break
		}
	}
	if start < 0 {
		return nil, eris.Errorf("econtrol: GWh section not found for %q", typeName)
	}

	var values []monthlyValue
	for _, row := range rows[start:end] {
		if len(row) <= colIdx {
			continue
		}
		month, ok := parseSheetDate(row[0])
		if !ok {
			continue
		}
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}
		gwh, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			continue
		}
		values = append(values, monthlyValue{
			// The row is labeled with the month's start but reports the
			// production of that month, published the month after.
			date:     month.AddDate(0, 1, 0).Format("2006-01-02"),
			typeName: typeName,
			value:    gwh / 1000.0,
		})
	}
	return values, nil
}

// parseSheetDate reads a date cell, which may be formatted text or an
// Excel serial number.
func parseSheetDate(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "02.01.2006", "01-02-06", "1/2/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(serial)), true
	}
	return time.Time{}, false
}

// yearlyProduction computes the trailing 12-month sum per type, keyed
// "type:date". Months without a full year of history get no sum.
// Stored months win over freshly parsed duplicates.
func yearlyProduction(existing, parsed []monthlyValue) map[string]float64 {
	series := make(map[string]map[string]float64)
	add := func(values []monthlyValue, overwrite bool) {
		for _, mv := range values {
			if series[mv.typeName] == nil {
				series[mv.typeName] = make(map[string]float64)
			}
			if _, ok := series[mv.typeName][mv.date]; ok && !overwrite {
				continue
			}
			series[mv.typeName][mv.date] = mv.value
		}
	}
	add(existing, true)
	add(parsed, false)

	result := make(map[string]float64)
	for typeName, months := range series {
		dates := make([]string, 0, len(months))
		for date := range months {
			dates = append(dates, date)
		}
		sort.Strings(dates)
		for i := range dates {
			if i < 11 {
				continue
			}
			var sum float64
			for _, date := range dates[i-11 : i+1] {
				sum += months[date]
			}
			result[fmt.Sprintf("%s:%s", typeName, dates[i])] = sum
		}
	}
	return result
}

func scalarType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
