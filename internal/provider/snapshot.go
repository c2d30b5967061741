package provider

import (
	"context"
	"strings"
	"time"

	"github.com/tokenscout/tokenscout/internal/domain"
)

const (
	tradePageSize  = 50
	tradePageLimit = 10
)

// TokenMetrics assembles a metric snapshot for address from one overview call
// and as many trade pages as the 1h window requires (bounded by
// tradePageLimit). Trade pages arrive newest first; paging stops once an item
// falls outside the hour.
func (c *Client) TokenMetrics(ctx context.Context, address string) (domain.MetricSnapshot, error) {
	now := c.now()

	overview, err := c.Overview(ctx, address)
	if err != nil {
		return domain.MetricSnapshot{}, err
	}

	snap := domain.MetricSnapshot{
		Timestamp: now,
		Holders:   overview.Holder,
		Liquidity: overview.Liquidity,
	}

	cutoff5m := now.Add(-5 * time.Minute).Unix()
	cutoff1h := now.Add(-1 * time.Hour).Unix()

	offset := 0
pages:
	for page := 0; page < tradePageLimit; page++ {
		items, hasNext, err := c.Trades(ctx, address, tradePageSize, offset)
		if err != nil {
			return domain.MetricSnapshot{}, err
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if item.BlockUnixTime < cutoff1h {
				break pages
			}
			snap.TxCount1h++
			snap.Volume1h += item.VolumeInUSD

			if item.BlockUnixTime >= cutoff5m {
				snap.TxCount5m++
				snap.Volume5m += item.VolumeInUSD
				switch strings.ToLower(item.TxType) {
				case "buy":
					snap.BuysVolume5m += item.VolumeInUSD
				case "sell":
					snap.SellsVolume5m += item.VolumeInUSD
				}
			}
		}

		if !hasNext {
			break
		}
		offset += tradePageSize
	}

	return snap, nil
}
