package retry

import "context"

// DoTyped is a type-safe wrapper around Retryer.Do.
//
// Usage:
//
//	h, err := retry.DoTyped(r, ctx, func(ctx context.Context) (*segment.HealthStatus, error) {
//	    return provider.Health(ctx)
//	})
func DoTyped[T any](r Retryer, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
