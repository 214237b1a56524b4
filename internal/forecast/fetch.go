package forecast

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// Cache memoizes forecasts by coordinate for one report run, so a point that
// appears on consecutive stages is fetched once. It is not meant to outlive
// the run.
type Cache struct {
	provider Provider

	mu      sync.Mutex
	entries map[[2]float64][]HourlyRecord
}

func NewCache(p Provider) *Cache {
	return &Cache{provider: p, entries: make(map[[2]float64][]HourlyRecord)}
}

func (c *Cache) Name() string {
	return c.provider.Name()
}

func (c *Cache) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	key := [2]float64{point.Lat, point.Lon}

	c.mu.Lock()
	records, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return records, nil
	}

	records, err := c.provider.Forecast(ctx, point)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = records
	c.mu.Unlock()
	return records, nil
}

// FetchStage fetches every point of stage with at most concurrency requests
// in flight. The result is index-aligned with stage.Points. A failing point
// gets an empty series and a warning; the error return is reserved for
// context cancellation.
func FetchStage(ctx context.Context, p Provider, stage *itinerary.Stage, concurrency int, log zerolog.Logger) ([]Series, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	series := make([]Series, len(stage.Points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, point := range stage.Points {
		i, point := i, point
		series[i].Point = point
		g.Go(func() error {
			records, err := p.Forecast(gctx, point)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Err(err).
					Str("stage", stage.Name).
					Int("point", i+1).
					Str("provider", p.Name()).
					Msg("forecast fetch failed, point degrades to no data")
				return nil
			}
			series[i].Records = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch stage %s: %w", stage.Name, err)
	}
	return series, nil
}
