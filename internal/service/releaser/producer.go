package releaser

import (
	"context"
	"time"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	engine    engine
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.LedgerTransaction) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case now := <-ticker.C:
				if !p.produce(ctx, now, out) {
					p.logger.Debug("Producer stopped by context while sending credits")
					return
				}
			}
		}
	}()

	return idleStopped
}

// Send every credit matured by now. Return false if context is done
func (p *Producer) produce(ctx context.Context, now time.Time, out chan<- models.LedgerTransaction) bool {
	cursor := models.ReleaseCursor{}
	sent := 0

	for {
		batch, err := p.engine.FindReleasable(ctx, now, cursor, p.batchSize)
		if err != nil {
			p.logger.Error("Failed to find releasable credits", "error", err)
			return ctx.Err() == nil
		}

		for _, tx := range batch {
			cursor = cursor.Next(tx)

			select {
			case <-ctx.Done():
				return false
			case out <- tx:
				sent++
			}
		}

		if len(batch) < p.batchSize {
			break
		}
	}

	p.logger.Info("Matured credits sent to release", "count", sent, "now", now)
	return true
}
