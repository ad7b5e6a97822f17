package releaser

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

const (
	DefaultCountWorkers    = 4         // Number of workers releasing credits
	DefaultProduceInterval = time.Hour // Interval between release runs
	DefaultBatchSize       = 100
)

type engine interface {
	FindReleasable(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.LedgerTransaction, error)
	ReleaseOne(ctx context.Context, txID uuid.UUID, now time.Time) (bool, error)
}

type Config struct {
	Interval     time.Duration
	CountWorkers int
	BatchSize    int
}

// Processor periodically releases matured commission credits.
// Runs may overlap with manual release: every credit is released in its own transaction
// guarded by its status, so a credit is never released twice.
type Processor struct {
	consumer *Consumer
	producer *Producer
	logger   logger.Logger
}

func New(engine engine, cfg Config, logger logger.Logger) *Processor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProduceInterval
	}
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = DefaultCountWorkers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Processor{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			engine:       engine,
			logger:       logger,
		},
		producer: &Producer{
			interval:  cfg.Interval,
			batchSize: cfg.BatchSize,
			engine:    engine,
			logger:    logger,
		},
		logger: logger,
	}
}

func (p *Processor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	txChan := make(chan models.LedgerTransaction)

	// Start producer to find matured credits
	producerStopped := p.producer.Produce(ctx, txChan)

	// Start consumer to release them
	consumerStopped := p.consumer.Consume(ctx, txChan)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(txChan)
		<-consumerStopped
		p.logger.Debug("Releaser stopped")
	}()

	return idleStopped
}
