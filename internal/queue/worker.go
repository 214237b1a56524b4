package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/smukkama/gr20-alert/internal/protocol"
)

// MessageSource is the part of Consumer the worker needs.
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// ReportHandler delivers one report. A returned error makes the worker retry
// the same message; nothing behind it is fetched until it succeeds.
type ReportHandler func(ctx context.Context, msg *protocol.ReportMessage) error

// RetryPolicy defines the exponential backoff between delivery attempts.
type RetryPolicy struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy waits 5s, 10s, 20s ... up to 5 minutes.
var DefaultRetryPolicy = RetryPolicy{
	BaseDelay:     5 * time.Second,
	MaxDelay:      5 * time.Minute,
	BackoffFactor: 2.0,
}

// NextRetry returns the delay before attempt (0 based):
// min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (p RetryPolicy) NextRetry(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	d := time.Duration(delay)
	if d > p.MaxDelay || d < 0 {
		d = p.MaxDelay
	}
	return d
}

// ReportWorker consumes report messages and hands them to a handler
type ReportWorker struct {
	source  MessageSource
	handler ReportHandler
	retry   RetryPolicy
	log     zerolog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewReportWorker creates a new worker
func NewReportWorker(source MessageSource, handler ReportHandler, log zerolog.Logger) *ReportWorker {
	return &ReportWorker{
		source:  source,
		handler: handler,
		retry:   DefaultRetryPolicy,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// SetRetryPolicy replaces DefaultRetryPolicy. Call before Start.
func (w *ReportWorker) SetRetryPolicy(p RetryPolicy) {
	w.retry = p
}

// Start begins consuming in the background
func (w *ReportWorker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		<-w.stopCh
		cancel()
	}()

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker and waits for the current message
func (w *ReportWorker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *ReportWorker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		msg, err := w.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("failed to consume message")
			continue
		}

		if err := w.deliver(ctx, msg); err != nil {
			// Stopped before the message went out; it stays uncommitted.
			return
		}

		if err := w.source.Commit(ctx, msg); err != nil {
			w.log.Error().Err(err).Msg("failed to commit offset")
		}
	}
}

// deliver retries msg with backoff until it is delivered or ctx ends. Group
// offsets are per partition, so committing a later message would skip this
// one for good.
func (w *ReportWorker) deliver(ctx context.Context, msg kafka.Message) error {
	for attempt := 0; ; attempt++ {
		err := w.process(ctx, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := w.retry.NextRetry(attempt)
		w.log.Error().Err(err).
			Int64("offset", msg.Offset).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("failed to deliver report")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (w *ReportWorker) process(ctx context.Context, msg kafka.Message) error {
	report, err := protocol.DecodeReportMessage(msg.Value)
	if err != nil {
		// Undecodable messages are committed so they cannot block the topic.
		w.log.Warn().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable message")
		return nil
	}

	w.log.Info().
		Str("id", report.ID).
		Str("kind", report.Kind).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("delivering report")
	return w.handler(ctx, report)
}
