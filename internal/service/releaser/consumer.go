package releaser

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

// Upper bound for a single credit release, so a stuck row lock does not hold a worker slot forever
const releaseTimeout = 30 * time.Second

// Consumer releases received credits with at most countWorkers releases in flight
type Consumer struct {
	countWorkers int
	engine       engine
	logger       logger.Logger
}

// Consume reads until in is closed. Credits received after ctx is done are drained, not released.
func (c *Consumer) Consume(ctx context.Context, in <-chan models.LedgerTransaction) <-chan struct{} {
	stopped := make(chan struct{})

	var g errgroup.Group
	g.SetLimit(c.countWorkers)

	go func() {
		defer close(stopped)

		for tx := range in {
			if ctx.Err() != nil {
				continue
			}
			// Blocks while every slot is busy, which holds the producer back
			g.Go(func() error {
				c.release(ctx, tx)
				return nil
			})
		}

		_ = g.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return stopped
}

// Failed credit stays pending and is picked up by the next run
func (c *Consumer) release(ctx context.Context, tx models.LedgerTransaction) {
	ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
	defer cancel()

	released, err := c.engine.ReleaseOne(ctx, tx.ID, time.Now())
	switch {
	case err != nil:
		c.logger.Error("Failed to release commission", "error", err, "transaction_id", tx.ID, "account_id", tx.AccountID)
	case !released:
		c.logger.Debug("Commission released already", "transaction_id", tx.ID)
	}
}
