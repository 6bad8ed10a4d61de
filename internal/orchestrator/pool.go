package orchestrator

import (
	"context"
	"sync"
)

type task func(ctx context.Context) TypeResult

type poolResult struct {
	CrawlerType string
	Result      TypeResult
}

// workerPool runs one task per registered crawler type concurrently. Results
// are streamed out as tasks finish; cancelling the context abandons whatever
// has not reported yet.
type workerPool struct {
	workers int
	tasks   chan taskEntry
	wg      sync.WaitGroup
}

type taskEntry struct {
	crawlerType string
	run         task
}

func newWorkerPool(workers, buffer int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &workerPool{
		workers: workers,
		tasks:   make(chan taskEntry, buffer),
	}
}

func (p *workerPool) Submit(crawlerType string, t task) {
	if p == nil || t == nil {
		return
	}
	p.tasks <- taskEntry{crawlerType: crawlerType, run: t}
}

func (p *workerPool) Close() {
	if p == nil {
		return
	}
	close(p.tasks)
}

func (p *workerPool) Run(ctx context.Context) <-chan poolResult {
	out := make(chan poolResult, p.workers)
	if p == nil {
		close(out)
		return out
	}

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					res := t.run(ctx)
					select {
					case <-ctx.Done():
						return
					case out <- poolResult{CrawlerType: t.crawlerType, Result: res}:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}
