package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cosmiq-app/cosmiq/internal/shared/infrastructure/eventbus"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
)

// ProcessorConfig tunes delivery. A message is retried with exponential backoff
// from RetryBackoffBase up to RetryBackoffMax and dead-lettered on its MaxRetries-th failure.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// RetentionDays bounds how long published messages are kept by Cleanup.
	RetentionDays int
}

// DefaultProcessorConfig returns the settings used when the environment sets none.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		RetentionDays:    7,
	}
}

// Stats is a snapshot of delivery progress, served by the worker health endpoint.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// Processor relays billing events from the outbox to the publisher.
// Delivery is at least once: a crash between publish and MarkPublished resends the message.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	mu    sync.Mutex
	stats Stats
}

// NewProcessor creates a stopped processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
	}
}

// WithMetrics reports publish, dead-letter and backlog metrics to m.
func (p *Processor) WithMetrics(m observability.Metrics) *Processor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Start polls in the background until Stop is called or ctx ends. Starting a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.poll(runCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels polling and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel == nil {
		return
	}

	p.cancel()
	<-p.done
	p.cancel = nil
	p.logger.Info("outbox processor stopped", "published", p.published.Load())
}

// IsRunning reports whether Start was called without a matching Stop.
func (p *Processor) IsRunning() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.cancel != nil
}

func (p *Processor) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	interval := p.config.PollInterval
	if interval <= 0 {
		interval = DefaultProcessorConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce delivers one batch of due messages. Only a failure to read the
// outbox is returned; publish failures are recorded on the messages.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		p.deliver(ctx, msg)
	}

	if pending, err := p.repo.CountPending(ctx); err != nil {
		p.logger.Warn("failed to count pending outbox messages", "error", err)
	} else {
		p.metrics.Gauge(observability.MetricOutboxPending, float64(pending))
	}
	return nil
}

func (p *Processor) deliver(ctx context.Context, msg *Message) {
	routing := observability.T("routing_key", msg.RoutingKey)

	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if pubErr == nil {
		if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
			p.logger.Error("failed to mark message published", append(msg.logAttrs(), "error", err)...)
			return
		}
		p.published.Add(1)
		p.metrics.Counter(observability.MetricEventsPublished, 1, routing)
		return
	}

	p.noteError(pubErr)
	attempt := msg.RetryCount + 1
	log := p.logger.With(msg.logAttrs()...).With("attempt", attempt, "error", pubErr)

	if p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries {
		p.dead.Add(1)
		p.metrics.Counter(observability.MetricEventsDeadLetters, 1, routing)
		log.Warn("dead-lettering outbox message")
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error()); err != nil {
			log.Error("failed to dead-letter message", "mark_error", err)
		}
		return
	}

	p.failed.Add(1)
	retryAt := time.Now().Add(p.backoff(attempt))
	log.Warn("publish failed, retry scheduled", "retry_at", retryAt)
	if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), retryAt); err != nil {
		log.Error("failed to record publish failure", "mark_error", err)
	}
}

// backoff is base * 2^(attempt-1), capped at RetryBackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	base, ceiling := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}

	delay := base
	for i := 1; i < attempt && delay < ceiling; i++ {
		delay *= 2
	}
	return min(delay, ceiling)
}

// Cleanup deletes published messages past the retention period.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	days := p.config.RetentionDays
	if days <= 0 {
		days = DefaultProcessorConfig().RetentionDays
	}
	deleted, err := p.repo.DeleteOld(ctx, days)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", days)
	}
	return deleted, nil
}

// GetStats returns a snapshot of delivery progress.
func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	stats := p.stats
	p.mu.Unlock()

	stats.IsRunning = p.IsRunning()
	stats.PublishedCount = p.published.Load()
	stats.FailedCount = p.failed.Load()
	stats.DeadCount = p.dead.Load()
	return stats
}

func (p *Processor) noteError(err error) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

// noteBatch records when the outbox was last read and how far behind the oldest due message is.
func (p *Processor) noteBatch(batch []*Message) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.LastProcessedAt = &now
	p.stats.OldestMessageAt = nil
	p.stats.LagSeconds = 0
	for _, msg := range batch {
		if p.stats.OldestMessageAt == nil || msg.CreatedAt.Before(*p.stats.OldestMessageAt) {
			created := msg.CreatedAt
			p.stats.OldestMessageAt = &created
		}
	}
	if p.stats.OldestMessageAt != nil {
		p.stats.LagSeconds = now.Sub(*p.stats.OldestMessageAt).Seconds()
	}
}
