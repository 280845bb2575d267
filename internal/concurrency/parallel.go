package concurrency

import (
	"context"
	"sync"
)

// ParallelOptions 并行处理选项
type ParallelOptions struct {
	MaxWorkers int
}

func DefaultOptions() ParallelOptions {
	return ParallelOptions{MaxWorkers: 8}
}

// ProcessParallel 用有限的 worker 池对每个元素执行 itemFunc。
// 结果保持输入顺序；ctx 结束前尚未开始的元素以 ctx.Err() 作为错误
func ProcessParallel[T any, R any](
	ctx context.Context,
	items []T,
	opts ParallelOptions,
	itemFunc func(ctx context.Context, index int, item T) (R, error),
) ([]R, []error) {
	if len(items) == 0 {
		return []R{}, nil
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultOptions().MaxWorkers
	}
	if maxWorkers > len(items) {
		maxWorkers = len(items)
	}

	jobs := make(chan int, len(items))
	for i := range items {
		jobs <- i
	}
	close(jobs)

	results := make([]R, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				results[idx], errs[idx] = itemFunc(ctx, idx, items[idx])
			}
		}()
	}
	wg.Wait()

	var errList []error
	for _, err := range errs {
		if err != nil {
			errList = append(errList, err)
		}
	}
	return results, errList
}
