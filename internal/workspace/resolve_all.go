package workspace

import (
	"context"
	"errors"

	"github.com/specialistvlad/buildbatch/internal/bcx"
	"golang.org/x/sync/errgroup"
)

// ResolveAll resolves every request in parallel. The contexts are returned
// in request order. The first failure cancels the remaining resolutions.
// The error reported is the one of the lowest-indexed failing request:
// requests interrupted by the cancellation are resolved again in order
// until that request is found.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request) ([]*bcx.BuildContext, error) {
	out := make([]*bcx.BuildContext, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			bc, err := r.resolve(gctx, req.Label(i), req)
			if err != nil {
				errs[i] = &RequestError{Index: i, Command: req.Command, Err: err}
				return errs[i]
			}
			out[i] = bc
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	for i, e := range errs {
		if e == nil {
			continue
		}
		if !errors.Is(e, context.Canceled) {
			return nil, e
		}
		if _, rerr := r.resolve(ctx, reqs[i].Label(i), reqs[i]); rerr != nil {
			return nil, &RequestError{Index: i, Command: reqs[i].Command, Err: rerr}
		}
	}
	return nil, err
}
