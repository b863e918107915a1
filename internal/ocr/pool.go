package ocr

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type pageOut struct {
	text string
	conf float32
}

// runPagePool fans n page tasks over a bounded worker set and keeps the
// outputs in page order. A failed or timed-out page contributes empty text
// and a warning; the run carries on with the remaining pages.
func (e *Engine) runPagePool(ctx context.Context, n int, fn func(ctx context.Context, page int) (pageOut, error)) ([]pageOut, []string) {
	workers := e.cfg.Concurrency
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	outs := make([]pageOut, n)
	warnCh := make(chan string, n)
	tasks := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for page := range tasks {
				pageCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
				out, err := fn(pageCtx, page)
				cancel()
				if err != nil {
					e.logger.Warn("page recognition failed",
						"worker_id", workerID,
						"page", page+1,
						"error", err,
					)
					warnCh <- fmt.Sprintf("page %d: %v", page+1, err)
					continue
				}
				outs[page] = out
			}
		}(w + 1)
	}

	for i := 0; i < n; i++ {
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	close(warnCh)

	var warnings []string
	for w := range warnCh {
		warnings = append(warnings, w)
	}
	sort.Strings(warnings)
	return outs, warnings
}
