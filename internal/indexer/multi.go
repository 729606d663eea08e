package indexer

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// RunnerFactory builds the Runner for one token. The returned cleanup is
// called once the run finishes and may be nil.
type RunnerFactory func(ctx context.Context, token string) (*Runner, func() error, error)

// RunTokens runs one Runner per token, at most concurrency at a time.
// The first failure cancels the remaining runs. Results keep token order.
func RunTokens(ctx context.Context, tokens []string, concurrency int, factory RunnerFactory) ([]Result, error) {
	if factory == nil {
		return nil, errors.New("runner factory is nil")
	}

	results := make([]Result, len(tokens))
	group, groupCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}

	for i, token := range tokens {
		i, token := i, token
		group.Go(func() (err error) {
			runner, cleanup, err := factory(groupCtx, token)
			if err != nil {
				return errors.Wrapf(err, "token %s", token)
			}
			if cleanup != nil {
				defer func() {
					if cerr := cleanup(); cerr != nil && err == nil {
						err = errors.Wrapf(cerr, "token %s: close", token)
					}
				}()
			}

			result, err := runner.Run(groupCtx)
			results[i] = result
			if err != nil {
				return errors.Wrapf(err, "token %s", token)
			}
			return nil
		})
	}

	err := group.Wait()
	return results, err
}
