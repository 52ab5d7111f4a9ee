package dataset

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klimadashboard/klimasync/internal/directus"
	directusmocks "github.com/klimadashboard/klimasync/internal/directus/mocks"
	fetchermocks "github.com/klimadashboard/klimasync/internal/fetcher/mocks"
)

const dwdProductCSV = "STATIONS_ID;MESS_DATUM;QN_3; TNK; TXK; TMK;SHK_TAG;eor\n" +
	"5705;20240101;3; 1.2; 8.4; 4.9;0;eor\n" +
	"5705;20240101;3; 1.2; 8.4; 4.9;0;eor\n" +
	"5705;20240102;3;-999;-999; 3.1;2;eor\n"

func writeDWDArchive(t *testing.T, path string) {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	meta, err := w.Create("Metadaten_Stationsname_05705.txt")
	require.NoError(t, err)
	_, err = meta.Write([]byte("Stationsname;Mannheim\n"))
	require.NoError(t, err)
	product, err := w.Create("produkt_klima_tag_20240101_20240102_05705.txt")
	require.NoError(t, err)
	_, err = product.Write([]byte(dwdProductCSV))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDWD_Fetch(t *testing.T) {
	tempDir := t.TempDir()

	d := &directusmocks.Client{}
	d.On("ListItems", mock.Anything, "de_dwd_stations", mock.Anything).
		Return([]directus.Item{{"id": float64(5705)}}, nil)

	f := &fetchermocks.Fetcher{}
	f.On("DownloadToFile", mock.Anything,
		"https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent/tageswerte_KL_05705_akt.zip",
		mock.Anything,
	).Run(func(args mock.Arguments) {
		writeDWDArchive(t, args.String(2))
	}).Return(int64(1), nil)

	ds := &DWD{}
	records, err := ds.Fetch(context.Background(), Deps{Fetcher: f, Directus: d, TempDir: tempDir})

	require.NoError(t, err)
	// The duplicate measurement day collapses into one record.
	require.Len(t, records, 2)
	assert.Equal(t, 5705, records[0]["station"])
	assert.Equal(t, "20240101", records[0]["MESS_DATUM"])
	assert.Equal(t, "1.2", records[0]["TNK"])
	f.AssertExpectations(t)
}

func TestDWD_FetchStationFailureIsNotFatal(t *testing.T) {
	tempDir := t.TempDir()

	d := &directusmocks.Client{}
	d.On("ListItems", mock.Anything, "de_dwd_stations", mock.Anything).
		Return([]directus.Item{{"id": float64(5705)}, {"id": float64(105)}}, nil)

	f := &fetchermocks.Fetcher{}
	f.On("DownloadToFile", mock.Anything, mock.MatchedBy(func(url string) bool {
		return url == "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent/tageswerte_KL_05705_akt.zip"
	}), mock.Anything).Run(func(args mock.Arguments) {
		writeDWDArchive(t, args.String(2))
	}).Return(int64(1), nil)
	f.On("DownloadToFile", mock.Anything, mock.MatchedBy(func(url string) bool {
		return url == "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent/tageswerte_KL_00105_akt.zip"
	}), mock.Anything).Return(int64(0), assert.AnError)

	ds := &DWD{}
	records, err := ds.Fetch(context.Background(), Deps{Fetcher: f, Directus: d, TempDir: tempDir})

	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDWD_FetchAllStationsFail(t *testing.T) {
	d := &directusmocks.Client{}
	d.On("ListItems", mock.Anything, "de_dwd_stations", mock.Anything).
		Return([]directus.Item{{"id": float64(5705)}}, nil)

	f := &fetchermocks.Fetcher{}
	f.On("DownloadToFile", mock.Anything, mock.Anything, mock.Anything).
		Return(int64(0), assert.AnError)

	ds := &DWD{}
	_, err := ds.Fetch(context.Background(), Deps{Fetcher: f, Directus: d, TempDir: t.TempDir()})

	require.Error(t, err)
}

func TestDWD_Mapping(t *testing.T) {
	ds := &DWD{}

	n, err := ds.Mapping().Normalize(map[string]any{
		"station":    5705,
		"MESS_DATUM": "20240102",
		"TNK":        "-999",
		"TXK":        "-999",
		"TMK":        "3.1",
		"SHK_TAG":    "2",
	})

	require.NoError(t, err)
	assert.Equal(t, "5705:2024-01-02", n.Key)
	assert.Equal(t, "2024-01-02", n.Fields["date"])
	// The DWD sentinel becomes an explicit null.
	assert.Nil(t, n.Fields["tlmin"])
	assert.Nil(t, n.Fields["tlmax"])
	assert.Equal(t, 3.1, n.Fields["tl_mittel"])
	assert.Equal(t, 2.0, n.Fields["sh"])
}
