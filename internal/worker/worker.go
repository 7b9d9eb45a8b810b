package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/kafka-go"
)

// Processor handles one event at a time.
type Processor interface {
	Process(ctx context.Context, event events.Event) error
}

// Worker runs scheduled syncs and, when Kafka is configured, on-demand
// requests from the request topic.
type Worker struct {
	config    *config.Config
	logger    *logger.Logger
	reader    *kafka.Reader
	processor Processor
	cron      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg *config.Config, logger *logger.Logger, processor Processor) *Worker {
	var reader *kafka.Reader
	if cfg.KafkaEnabled() {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.KafkaGroupID,
			Topic:          cfg.KafkaRequestTopic,
			MinBytes:       1,
			MaxBytes:       10e6, // 10MB
			CommitInterval: time.Second,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		config:    cfg,
		logger:    logger,
		reader:    reader,
		processor: processor,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger}))),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Schedule registers a daily run of mode at each "HH:MM" time.
func (w *Worker) Schedule(times []string, mode models.SyncMode) error {
	for _, t := range times {
		spec, err := CronSpec(t)
		if err != nil {
			return err
		}
		if _, err := w.cron.AddFunc(spec, func() { w.runScheduled(mode) }); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", t, err)
		}
		w.logger.Info("Scheduled %s sync daily at %s", mode, t)
	}
	return nil
}

// CronSpec converts "HH:MM" into a daily cron expression.
func CronSpec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (w *Worker) runScheduled(mode models.SyncMode) {
	event := events.NewEvent(events.TypeSyncRequested)
	event.Mode = mode

	w.logger.Info("Starting scheduled %s sync", mode)
	if err := w.processor.Process(w.ctx, event); err != nil {
		w.logger.Error("Scheduled sync failed: %v", err)
	}
}

// Start runs the scheduler and blocks consuming requests until Stop.
func (w *Worker) Start() {
	defer close(w.done)

	w.cron.Start()
	w.logger.Info("Worker started, %d scheduled jobs", len(w.cron.Entries()))

	if w.reader == nil {
		<-w.ctx.Done()
		return
	}

	w.logger.Info("Listening for events on %s...", w.config.KafkaRequestTopic)
	for {
		message, err := w.reader.ReadMessage(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to read message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		w.logger.Debug("Received message: %s", string(message.Value))

		event, err := events.Decode(message.Value)
		if err != nil {
			w.logger.Error("%v", err)
			continue
		}

		if err := w.processor.Process(w.ctx, event); err != nil {
			if errors.Is(err, context.Canceled) && w.ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to process event %s: %v", event.ID, err)
			continue
		}

		w.logger.Debug("Event processed successfully")
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.cancel()
	<-w.cron.Stop().Done()
	<-w.done
	if w.reader != nil {
		w.reader.Close()
	}
}

// cronLogger adapts the logger to cron's key/value interface.
type cronLogger struct {
	l *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
