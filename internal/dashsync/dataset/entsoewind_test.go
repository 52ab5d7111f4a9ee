package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klimadashboard/klimasync/internal/config"
	fetchermocks "github.com/klimadashboard/klimasync/internal/fetcher/mocks"
)

const windChunkXML = `<?xml version="1.0" encoding="UTF-8"?>
<GL_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-6:generationloaddocument:3:0">
	<TimeSeries>
		<Period>
			<timeInterval>
				<start>2024-06-01T00:00Z</start>
				<end>2024-06-01T01:00Z</end>
			</timeInterval>
			<resolution>PT15M</resolution>
			<Point><position>1</position><quantity>400</quantity></Point>
			<Point><position>2</position><quantity>420</quantity></Point>
			<Point><position>3</position><quantity>380</quantity></Point>
			<Point><position>4</position><quantity>400</quantity></Point>
		</Period>
	</TimeSeries>
</GL_MarketDocument>`

func TestEntsoeWind_FetchChunk(t *testing.T) {
	f := &fetchermocks.Fetcher{}
	f.On("Download", mock.Anything, mock.Anything).Return(body(windChunkXML), nil)

	ds := &EntsoeWind{}
	daily := make(map[string]float64)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := ds.fetchChunk(context.Background(), Deps{Fetcher: f}, entsoeDefaultBaseURL, "token", start, start.AddDate(0, 0, 1), daily)

	require.NoError(t, err)
	// (400+420+380+400) MW over quarter hours = 400 MWh = 4e-4 TWh.
	assert.InDelta(t, 0.0004, daily["2024-06-01"], 1e-12)
}

func TestEntsoeWind_FetchChunkEmpty(t *testing.T) {
	f := &fetchermocks.Fetcher{}
	f.On("Download", mock.Anything, mock.Anything).
		Return(body(`<Acknowledgement_MarketDocument><Reason><code>999</code></Reason></Acknowledgement_MarketDocument>`), nil)

	ds := &EntsoeWind{}
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	err := ds.fetchChunk(context.Background(), Deps{Fetcher: f}, entsoeDefaultBaseURL, "token", start, start.AddDate(0, 0, 1), map[string]float64{})

	require.Error(t, err)
}

func TestEntsoeWind_FetchWithoutToken(t *testing.T) {
	ds := &EntsoeWind{}
	_, err := ds.Fetch(context.Background(), Deps{Config: &config.Config{}})

	require.Error(t, err)
}

func TestEntsoeWind_Mapping(t *testing.T) {
	ds := &EntsoeWind{}
	n, err := ds.Mapping().Normalize(map[string]any{
		"date":             "2024-06-01",
		"Country":          "AT",
		"type_key":         "windkraft",
		"unit":             "TWh",
		"value":            0.00041234567,
		"Jahresproduktion": 7.6543219,
	})

	require.NoError(t, err)
	assert.Equal(t, "AT:windkraft:2024-06-01", n.Key)
	assert.Equal(t, "2024-06-01T00:00:00Z", n.Fields["DateTime"])
	assert.Equal(t, []string{"windkraft"}, n.Fields["Type"])
	assert.Equal(t, 0.000412, n.Fields["value"])
	assert.Equal(t, 7.654322, n.Fields["Jahresproduktion"])
}

func TestRollingSum(t *testing.T) {
	daily := map[string]float64{
		"2024-06-01": 1,
		"2024-06-02": 2,
		"2024-06-03": 3,
	}

	assert.Equal(t, 6.0, rollingSum(daily, "2024-06-03", 365))
	assert.Equal(t, 5.0, rollingSum(daily, "2024-06-03", 2))
}
