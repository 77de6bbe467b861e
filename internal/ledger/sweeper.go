package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartSweeper removes expired share grants every interval until ctx is done.
// onSwept, when set, receives the number removed by each non-empty pass.
func StartSweeper(ctx context.Context, shares *ShareLedger, interval time.Duration, log *zap.Logger, onSwept func(int)) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("share sweeper stopped")
				return
			case <-ticker.C:
				removed, err := shares.Sweep(ctx)
				if err != nil {
					log.Error("share sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("expired share links removed", zap.Int("count", removed))
					if onSwept != nil {
						onSwept(removed)
					}
				}
			}
		}
	}()

	log.Info("share sweeper started", zap.Duration("interval", interval))
	return done
}
