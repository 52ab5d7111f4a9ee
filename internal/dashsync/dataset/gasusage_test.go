package dataset

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klimadashboard/klimasync/internal/fetcher/mocks"
)

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestGasUsage_Fetch(t *testing.T) {
	f := &mocks.Fetcher{}
	f.On("Download", mock.Anything, gasUsageAGGMURL).Return(body(
		"date,variable,value\n"+
			"2024-06-01,value,0.2345\n"+
			"2024-06-01,trend,0.9\n"+
			"2024-06-02,value,0.2501\n",
	), nil)
	f.On("Download", mock.Anything, gasUsageBNAURL).Return(body(
		"Woche;2023;2024\n"+
			"1;1800.5;1750.25\n"+
			"2;1790.0;\n",
	), nil)

	ds := &GasUsage{}
	records, err := ds.Fetch(context.Background(), Deps{Fetcher: f})

	require.NoError(t, err)
	// Two AGGM value rows plus three populated BNA cells.
	require.Len(t, records, 5)

	assert.Equal(t, "at", records[0]["region"])
	assert.Equal(t, "2024-06-01", records[0]["period"])
	assert.Equal(t, "TWh", records[0]["unit"])

	assert.Equal(t, "de", records[2]["region"])
	assert.Equal(t, "2023-01-07", records[2]["period"])
	assert.Equal(t, "GWh", records[2]["unit"])
	f.AssertExpectations(t)
}

func TestGasUsage_Mapping(t *testing.T) {
	ds := &GasUsage{}
	n, err := ds.Mapping().Normalize(map[string]any{
		"region":   "at",
		"period":   "2024-06-01",
		"source":   "AGGM",
		"category": "gas|usage",
		"unit":     "TWh",
		"value":    "0.23456",
	})

	require.NoError(t, err)
	assert.Equal(t, "at:2024-06-01", n.Key)
	assert.Equal(t, 0.235, n.Fields["value"])
	assert.Equal(t, "gas|usage", n.Fields["category"])
}

func TestWeekEndDate(t *testing.T) {
	assert.Equal(t, "2023-01-07", weekEndDate(2023, 1))
	assert.Equal(t, "2023-01-14", weekEndDate(2023, 2))
	assert.Equal(t, "2024-12-28", weekEndDate(2024, 52))
}
