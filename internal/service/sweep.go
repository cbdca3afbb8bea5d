package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/repository"
)

const DefaultSweepInterval = time.Minute

// TokenSweeper periodically deletes expired ledger rows.
type TokenSweeper struct {
	store    Store
	ledger   *Ledger
	interval time.Duration
	logger   *zap.Logger
}

func NewTokenSweeper(store Store, ledger *Ledger, interval time.Duration, logger *zap.Logger) *TokenSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &TokenSweeper{
		store:    store,
		ledger:   ledger,
		interval: interval,
		logger:   logger.With(zap.String("component", "cleanup")),
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *TokenSweeper) Start(ctx context.Context) {
	s.logger.Info("starting token cleanup service", zap.Duration("interval", s.interval))

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping token cleanup service")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *TokenSweeper) runCleanup(ctx context.Context) int64 {
	var deleted int64
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		deleted, err = s.ledger.Sweep(ctx, tx)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("error deleting expired tokens", zap.Error(err))
		}
		return 0
	}
	if deleted > 0 {
		s.logger.Info("deleted expired tokens", zap.Int64("count", deleted))
	}
	return deleted
}
