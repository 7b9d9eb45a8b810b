package processors

import (
	"context"
	"errors"
	"testing"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/services/supplier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls []string
	modes []models.SyncMode
	err   error
}

func (f *fakeRunner) Sync(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	f.calls = append(f.calls, "sync")
	f.modes = append(f.modes, mode)
	return &models.SyncOutcome{Mode: mode, Status: models.SyncStatusSuccess}, f.err
}

func (f *fakeRunner) Run(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error) {
	f.calls = append(f.calls, "run")
	f.modes = append(f.modes, mode)
	return &models.SyncOutcome{Mode: mode, Status: models.SyncStatusSuccess}, f.err
}

func (f *fakeRunner) Ingest(ctx context.Context) (supplier.Report, error) {
	f.calls = append(f.calls, "ingest")
	return supplier.Report{}, f.err
}

type fakeExporter struct {
	dirs []string
}

func (f *fakeExporter) ExportToFile(ctx context.Context, dir string) (string, int, error) {
	f.dirs = append(f.dirs, dir)
	return dir + "/shopify_products.csv", 3, nil
}

func TestProcess_Dispatch(t *testing.T) {
	runner := &fakeRunner{}
	exporter := &fakeExporter{}
	ep := NewEventProcessor(runner, exporter, "exports", logger.Nop())
	ctx := context.Background()

	full := events.NewEvent(events.TypeSyncRequested)
	full.Mode = models.SyncModeFull
	require.NoError(t, ep.Process(ctx, full))

	quick := events.NewEvent(events.TypeSyncRequested)
	quick.SkipIngest = true
	require.NoError(t, ep.Process(ctx, quick))

	require.NoError(t, ep.Process(ctx, events.NewEvent(events.TypeIngestRequested)))
	require.NoError(t, ep.Process(ctx, events.NewEvent(events.TypeExportRequested)))
	require.NoError(t, ep.Process(ctx, events.NewEvent("something.else")))

	assert.Equal(t, []string{"sync", "run", "ingest"}, runner.calls)
	assert.Equal(t, []models.SyncMode{models.SyncModeFull, models.SyncModeIncremental}, runner.modes)
	assert.Equal(t, []string{"exports"}, exporter.dirs)
}

func TestProcess_PropagatesErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store down")}
	ep := NewEventProcessor(runner, nil, "", logger.Nop())
	ctx := context.Background()

	assert.Error(t, ep.Process(ctx, events.NewEvent(events.TypeSyncRequested)))
	assert.Error(t, ep.Process(ctx, events.NewEvent(events.TypeExportRequested)))

	bad := events.NewEvent(events.TypeSyncRequested)
	bad.Mode = "weekly"
	assert.Error(t, ep.Process(ctx, bad))
}
