// Package worker provides a bounded worker pool that maps a function over a
// batch of items in parallel, keeping results in input order.
//
// Example usage:
//
//	pool := worker.NewPool(func(ctx context.Context, raw map[string]any) (*decoder.Node, error) {
//	    return dec.DecodeResource(ctx, raw)
//	}, 4)
//
//	nodes, err := pool.Run(ctx, resources)
//	if err != nil {
//	    // the first failure; outstanding items were cancelled
//	}
package worker
