package forge

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fetchBoth runs the metadata requests concurrently and returns the first
// failure.
func fetchBoth(ctx context.Context, fns ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(ctx) })
	}
	return g.Wait()
}
