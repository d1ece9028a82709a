package fluid

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SourceExt is the file extension of kernel sources.
const SourceExt = ".cl"

// LoadKernels reads <name>.cl for every name from fsys concurrently and
// returns the sources keyed by name. Any missing or empty file fails the
// whole batch.
func LoadKernels(ctx context.Context, fsys fs.FS, names []string) (map[string][]byte, error) {
	var (
		mu      sync.Mutex
		sources = make(map[string][]byte, len(names))
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := fs.ReadFile(fsys, name+SourceExt)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMissingKernel, name, err)
			}
			if len(data) == 0 {
				return fmt.Errorf("%w: %s is empty", ErrMissingKernel, name)
			}
			mu.Lock()
			sources[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}
