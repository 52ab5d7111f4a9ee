package dataset

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	fetchermocks "github.com/klimadashboard/klimasync/internal/fetcher/mocks"
)

func TestRenewableShare_FetchDaily(t *testing.T) {
	f := &fetchermocks.Fetcher{}
	year := time.Now().UTC().Year()
	f.On("Download", mock.Anything, fmt.Sprintf(renShareDailyURL, "at", year)).Return(body(`{
		"days": ["01.01.`+fmt.Sprint(year)+`", "02.01.`+fmt.Sprint(year)+`"],
		"data": [55.2, null]
	}`), nil)
	for y := year - 1; y >= renShareFirstYear; y-- {
		f.On("Download", mock.Anything, fmt.Sprintf(renShareDailyURL, "at", y)).
			Return(body(`{"days": [], "data": []}`), nil)
	}

	ds := &RenewableShare{}
	points, err := ds.fetchDaily(context.Background(), Deps{Fetcher: f}, "at")

	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, fmt.Sprintf("%d-01-01", year), points[0].period)
	assert.Equal(t, 55.2, points[0].value)
	assert.Equal(t, "AT", points[0].country)
}

func TestRenewableShare_FetchSignal(t *testing.T) {
	f := &fetchermocks.Fetcher{}
	f.On("Download", mock.Anything, fmt.Sprintf(renShareSignalURL, "de")).Return(body(`{
		"unix_seconds": [1717236000, 1717236900],
		"share": [48.5, 49.0]
	}`), nil)

	ds := &RenewableShare{}
	points, err := ds.fetchSignal(context.Background(), Deps{Fetcher: f}, "de")

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2024-06-01 10:00:00", points[0].period)
	assert.Equal(t, "DE", points[0].country)
}

func TestRollingMeans(t *testing.T) {
	points := []sharePoint{
		{period: "2024-06-03", value: 30, country: "AT"},
		{period: "2024-06-01", value: 10, country: "AT"},
		{period: "2024-06-02", value: 20, country: "AT"},
	}

	means := rollingMeans(points, 2)

	require.Len(t, means, 2)
	assert.Equal(t, "2024-06-02", means[0].period)
	assert.InDelta(t, 15.0, means[0].value, 1e-9)
	assert.InDelta(t, 25.0, means[1].value, 1e-9)

	assert.Empty(t, rollingMeans(points, 4))
}

func TestRenewableShare_Mapping(t *testing.T) {
	ds := &RenewableShare{}
	n, err := ds.Mapping().Normalize(map[string]any{
		"period":   "2024-06-01 10:15:00",
		"value":    48.5,
		"country":  "AT",
		"category": "15min",
		"year":     "2024",
	})

	require.NoError(t, err)
	assert.Equal(t, "2024-06-01 10:15:00:AT:15min", n.Key)
	assert.Equal(t, "2024", n.Fields["year"])
}

func TestPointsToRecords(t *testing.T) {
	records := pointsToRecords([]sharePoint{{period: "2024-06-01", value: 55.2, country: "AT"}}, "day")

	require.Len(t, records, 1)
	assert.Equal(t, "day", records[0]["category"])
	assert.Equal(t, "2024", records[0]["year"])
	assert.True(t, strings.HasPrefix(records[0]["period"].(string), "2024-"))
}
