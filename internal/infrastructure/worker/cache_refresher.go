package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

const refreshLimit = 5000

// NewCacheRefresher reloads the ticket cache from the repository on every tick
func NewCacheRefresher(tickets port.TicketRepository, cache *ticketcache.Cache, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("ticket-cache-refresher", interval, func(ctx context.Context) error {
		asOf := cache.Now()
		list, err := tickets.List(ctx, entity.TicketFilter{Limit: refreshLimit})
		if err != nil {
			return fmt.Errorf("failed to list tickets: %w", err)
		}
		cache.Load(list, asOf)
		logger.Debug("Ticket cache refreshed", zap.Int("tickets", len(list)))
		return nil
	}, logger)
}

// NewSessionPurger deletes expired sessions on every tick
func NewSessionPurger(provider *session.Provider, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("session-purger", interval, func(ctx context.Context) error {
		n, err := provider.Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge sessions: %w", err)
		}
		if n > 0 {
			logger.Info("Expired sessions purged", zap.Int64("count", n))
		}
		return nil
	}, logger)
}
