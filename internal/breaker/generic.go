package breaker

import "context"

// Do is a type-safe wrapper around Breaker.Call.
//
// Usage:
//
//	resp, err := breaker.Do(cb, ctx, func(ctx context.Context) (*segment.SegmentResponse, error) {
//	    return provider.Segment(ctx, req)
//	})
func Do[T any](cb Breaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Call(ctx, func(ctx context.Context) error {
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
