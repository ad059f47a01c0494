package service

import (
	"context"
	"time"

	"cotwatch/internal/merge"
	"cotwatch/internal/storage"
)

// buildInventory appends this week's warehouse stock to the prior history.
func (s *Service) buildInventory(ctx context.Context, prior *storage.Snapshot, now time.Time) []merge.InventoryRecord {
	var fresh *merge.InventoryRecord
	if s.cfg.Warehouse.Enabled && s.providers.Stock != nil {
		stock, err := s.providers.Stock.WarehouseStock(ctx, s.cfg.Warehouse.Label)
		if err != nil {
			s.logger.Warn().Err(err).Str("label", s.cfg.Warehouse.Label).Msg("warehouse stock fetch failed")
		} else {
			fresh = &merge.InventoryRecord{
				Date:   merge.InventoryAnchor(now),
				Total:  stock.Total,
				Change: stock.Change,
			}
		}
	}

	records, appended := merge.AppendInventory(prior.Inventory, fresh)
	if appended {
		s.logger.Info().Str("date", fresh.Date).Str("total", fresh.Total.String()).Msg("inventory appended")
	}
	return records
}
