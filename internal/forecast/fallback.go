package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/smukkama/gr20-alert/internal/itinerary"
)

// Fallback asks each provider in turn and returns the first success.
type Fallback struct {
	providers []Provider
}

func NewFallback(providers ...Provider) *Fallback {
	return &Fallback{providers: providers}
}

func (f *Fallback) Name() string {
	name := ""
	for i, p := range f.providers {
		if i > 0 {
			name += "+"
		}
		name += p.Name()
	}
	return name
}

func (f *Fallback) Forecast(ctx context.Context, point itinerary.GeoPoint) ([]HourlyRecord, error) {
	var errs []error
	for _, p := range f.providers {
		records, err := p.Forecast(ctx, point)
		if err == nil {
			return records, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no forecast provider configured")
	}
	return nil, errors.Join(errs...)
}
