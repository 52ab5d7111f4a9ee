package dataset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/directus"
	directusmocks "github.com/klimadashboard/klimasync/internal/directus/mocks"
	"github.com/klimadashboard/klimasync/pkg/slack"
)

// fakeDataset is a minimal pipeline dataset for engine tests.
type fakeDataset struct {
	name    string
	records []dashsync.ExternalRecord
	err     error
	due     bool
}

func (f *fakeDataset) Name() string       { return f.name }
func (f *fakeDataset) Collection() string { return "energy" }
func (f *fakeDataset) Cadence() Cadence   { return Daily }

func (f *fakeDataset) ShouldRun(time.Time, *time.Time) bool { return f.due }

func (f *fakeDataset) Fetch(context.Context, Deps) ([]dashsync.ExternalRecord, error) {
	return f.records, f.err
}

func (f *fakeDataset) Mapping() dashsync.Mapping {
	return dashsync.Mapping{
		KeyFields: []string{"key"},
		Fields:    []dashsync.FieldSpec{{Source: "key", Target: "key", Required: true}, {Source: "value", Target: "value"}},
	}
}

func engineFixture(t *testing.T, ds Dataset) (*Engine, pgxmock.PgxPoolIface, *directusmocks.Client) {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	client := &directusmocks.Client{}
	reg := &Registry{datasets: map[string]Dataset{}}
	reg.Register(ds)

	engine := NewEngine(Deps{Directus: client}, dashsync.NewSyncLog(pool), reg, slack.NewNotifier(""))
	return engine, pool, client
}

func TestEngine_RunSyncsDueDataset(t *testing.T) {
	ds := &fakeDataset{
		name:    "fake",
		due:     true,
		records: []dashsync.ExternalRecord{{"key": "a", "value": 1.0}},
	}
	engine, pool, client := engineFixture(t, ds)

	pool.ExpectQuery("SELECT started_at FROM sync.sync_log").
		WithArgs("fake").
		WillReturnError(errors.New("no rows in result set"))
	pool.ExpectQuery("INSERT INTO sync.sync_log").
		WithArgs(pgxmock.AnyArg(), "fake").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	pool.ExpectExec("UPDATE sync.sync_log").
		WithArgs(int64(1), pgxmock.AnyArg(), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	client.On("FindByKey", mock.Anything, "energy", dashsync.KeyField, "a").Return(nil, nil)
	client.On("CreateItem", mock.Anything, "energy", mock.Anything).Return(directus.Item{"id": 1}, nil)

	err := engine.Run(context.Background(), RunOpts{})

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
	client.AssertExpectations(t)
}

func TestEngine_RunSkipsNotDue(t *testing.T) {
	ds := &fakeDataset{name: "fake", due: false}
	engine, pool, client := engineFixture(t, ds)

	lastSync := time.Now().UTC()
	pool.ExpectQuery("SELECT started_at FROM sync.sync_log").
		WithArgs("fake").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(lastSync))

	err := engine.Run(context.Background(), RunOpts{})

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
	client.AssertNotCalled(t, "FindByKey", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_RunForceIgnoresSchedule(t *testing.T) {
	ds := &fakeDataset{name: "fake", due: false}
	engine, pool, _ := engineFixture(t, ds)

	pool.ExpectQuery("INSERT INTO sync.sync_log").
		WithArgs(pgxmock.AnyArg(), "fake").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	pool.ExpectExec("UPDATE sync.sync_log").
		WithArgs(int64(2), pgxmock.AnyArg(), int64(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := engine.Run(context.Background(), RunOpts{Force: true})

	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestEngine_RunRecordsFailure(t *testing.T) {
	ds := &fakeDataset{name: "fake", due: true, err: dashsync.SourceUnavailable(assert.AnError)}
	engine, pool, _ := engineFixture(t, ds)

	pool.ExpectQuery("SELECT started_at FROM sync.sync_log").
		WithArgs("fake").
		WillReturnError(errors.New("no rows in result set"))
	pool.ExpectQuery("INSERT INTO sync.sync_log").
		WithArgs(pgxmock.AnyArg(), "fake").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	pool.ExpectExec("UPDATE sync.sync_log").
		WithArgs(pgxmock.AnyArg(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := engine.Run(context.Background(), RunOpts{})

	require.Error(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestEngine_RunUnknownDataset(t *testing.T) {
	engine, _, _ := engineFixture(t, &fakeDataset{name: "fake"})

	err := engine.Run(context.Background(), RunOpts{Datasets: []string{"missing"}})

	require.Error(t, err)
}
