package watchers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"booking-tracker/internal/database"
	"booking-tracker/internal/textnorm"
)

// PriceDropped reports whether current is cheaper than original. Both
// prices must parse and share a currency.
func PriceDropped(original, current string) bool {
	was := textnorm.ParsePrice(original)
	now := textnorm.ParsePrice(current)
	if !was.Complete() || !now.Complete() || was.Currency != now.Currency {
		return false
	}
	return *now.Amount < *was.Amount
}

// RecordPriceCheck stores a price observed by the watcher service and
// returns the updated check
func (r *Registrar) RecordPriceCheck(ctx context.Context, watcherID, currentPrice string) (*database.PriceCheck, error) {
	if r.checks == nil {
		return nil, fmt.Errorf("price checks are not enabled")
	}
	currentPrice = strings.TrimSpace(currentPrice)
	if currentPrice == "" {
		return nil, fmt.Errorf("current price is required")
	}

	check, err := r.checks.GetByWatcherID(ctx, watcherID)
	if err != nil {
		return nil, fmt.Errorf("failed to load price check for %s: %w", watcherID, err)
	}

	dropped := PriceDropped(check.OriginalPrice, currentPrice)
	if err := r.checks.RecordCheck(ctx, watcherID, currentPrice, dropped, time.Now()); err != nil {
		return nil, err
	}
	if dropped {
		r.logger.Info("Price drop detected", "watcher_id", watcherID,
			"original_price", check.OriginalPrice, "current_price", currentPrice)
	}

	return r.checks.GetByWatcherID(ctx, watcherID)
}
