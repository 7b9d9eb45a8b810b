package processors

import (
	"context"
	"fmt"
	"sync"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/services/supplier"
)

type SyncRunner interface {
	Sync(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error)
	Run(ctx context.Context, mode models.SyncMode) (*models.SyncOutcome, error)
	Ingest(ctx context.Context) (supplier.Report, error)
}

type FileExporter interface {
	ExportToFile(ctx context.Context, dir string) (string, int, error)
}

// EventProcessor dispatches worker events. Events are handled one at a
// time so scheduled and on-demand runs never overlap.
type EventProcessor struct {
	runner    SyncRunner
	exporter  FileExporter
	exportDir string
	logger    *logger.Logger

	mu sync.Mutex
}

func NewEventProcessor(runner SyncRunner, exporter FileExporter, exportDir string, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		runner:    runner,
		exporter:  exporter,
		exportDir: exportDir,
		logger:    logger,
	}
}

func (ep *EventProcessor) Process(ctx context.Context, event events.Event) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.logger.Debug("Processing event %s (%s)", event.ID, event.Type)

	switch event.Type {
	case events.TypeSyncRequested:
		return ep.sync(ctx, event)
	case events.TypeIngestRequested:
		report, err := ep.runner.Ingest(ctx)
		if err != nil {
			return err
		}
		ep.logger.Info("Ingested %d products from %d rows", len(report.Products), report.Rows)
		return nil
	case events.TypeExportRequested:
		if ep.exporter == nil {
			return fmt.Errorf("export requested but no exporter configured")
		}
		dir := event.Path
		if dir == "" {
			dir = ep.exportDir
		}
		path, n, err := ep.exporter.ExportToFile(ctx, dir)
		if err != nil {
			return err
		}
		ep.logger.Info("Exported %d products to %s", n, path)
		return nil
	case events.TypeSyncCompleted:
		// Our own announcements; nothing to do.
		return nil
	default:
		ep.logger.Warn("Ignoring unknown event type %q", event.Type)
		return nil
	}
}

func (ep *EventProcessor) sync(ctx context.Context, event events.Event) error {
	mode, err := models.ParseSyncMode(string(event.Mode))
	if err != nil {
		return err
	}

	var outcome *models.SyncOutcome
	if event.SkipIngest {
		outcome, err = ep.runner.Run(ctx, mode)
	} else {
		outcome, err = ep.runner.Sync(ctx, mode)
	}
	if err != nil {
		return err
	}

	ep.logger.Info("Sync %s finished with %s", event.ID, outcome.Status)
	return nil
}
