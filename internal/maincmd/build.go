package maincmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/mna/mainer"
)

// Build assembles each of args concurrently, one goroutine per input file,
// each producing its own .sbc file beside its source. Per §5, concurrent
// compilation gives each worker its own independent compilation state (here,
// its own lang/asm.Builder via AsmFile); the one piece of state genuinely
// shared across workers is the result collector below, guarded by a mutex
// rather than funneled through a channel since workers never need to block
// on each other, only append their own outcome.
func (c *Cmd) Build(ctx context.Context, stdio mainer.Stdio, args []string) error {
	type result struct {
		in, out string
		err     error
	}

	var (
		mu      sync.Mutex
		results []result
		wg      sync.WaitGroup
	)
	wg.Add(len(args))
	for _, in := range args {
		in := in
		go func() {
			defer wg.Done()
			out := outPathFor(in, ".sbc")
			c.log.Debug("building", "file", in, "out", out)
			err := AsmFile(in, out)

			mu.Lock()
			results = append(results, result{in: in, out: out, err: err})
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed bool
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", r.err)
			failed = true
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s -> %s\n", r.in, r.out)
	}
	if failed {
		return fmt.Errorf("build: one or more inputs failed to assemble")
	}
	return nil
}
