package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/asset-allocation/internal/ingest"
	"github.com/trogers1052/asset-allocation/internal/models"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// SnapshotRunner allocates a holdings snapshot. *ingest.Runner implements it.
type SnapshotRunner interface {
	Run(ctx context.Context, rows []ingest.RawRow, opts ingest.Options) (*ingest.Summary, error)
}

// HoldingsConsumer feeds HOLDINGS_SNAPSHOT events to the ingestion runner
type HoldingsConsumer struct {
	reader messageReader
	runner SnapshotRunner
	atomic bool
	log    zerolog.Logger
}

// NewHoldingsConsumer creates a consumer for holdings snapshot events.
// atomic runs every snapshot in a single transaction.
func NewHoldingsConsumer(brokers []string, topic, groupID string, runner SnapshotRunner, atomic bool, log zerolog.Logger) *HoldingsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &HoldingsConsumer{
		reader: reader,
		runner: runner,
		atomic: atomic,
		log:    log.With().Str("component", "holdings_consumer").Logger(),
	}
}

// Start consumes messages until ctx is cancelled
func (c *HoldingsConsumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting holdings consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Holdings consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("Error processing message")
			}
		}
	}
}

func (c *HoldingsConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.HoldingsEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal holdings event: %w", err)
	}

	if event.EventType != models.EventHoldingsSnapshot {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	rows, opts, err := ingest.RowsFromEvent(event)
	if err != nil {
		return fmt.Errorf("invalid holdings snapshot: %w", err)
	}
	opts.Atomic = c.atomic

	summary, err := c.runner.Run(ctx, rows, opts)
	if err != nil {
		return fmt.Errorf("failed to allocate snapshot for %s: %w", event.Data.AsOfDate, err)
	}

	c.log.Info().
		Str("source", event.Source).
		Str("run_id", summary.RunID).
		Str("as_of_date", summary.AsOfDate).
		Int("processed", summary.Processed).
		Int("errors", summary.Errors).
		Msg("Processed holdings snapshot")
	return nil
}

// Close closes the consumer
func (c *HoldingsConsumer) Close() error {
	return c.reader.Close()
}
