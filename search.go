package pngrepair

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

const searchBatch = 256

// firstMatch feeds candidates from next to match and returns the first one,
// in generation order, that matches. At most budget candidates are tried.
// With more than one worker, candidates are evaluated in batches; the result
// is the same as the sequential search.
func firstMatch[T any](ctx context.Context, workers, budget int, next func() (T, bool), match func(T) bool) (T, error) {
	var zero T
	if workers <= 1 {
		for tried := 0; ; tried++ {
			if tried%searchBatch == 0 {
				if err := ctx.Err(); err != nil {
					return zero, err
				}
			}
			c, ok := next()
			if !ok {
				return zero, ErrRepairNotFound
			}
			if tried >= budget {
				return zero, ErrSearchBudgetExceeded
			}
			if match(c) {
				return c, nil
			}
		}
	}

	type batch struct {
		seq   int
		cands []T
	}

	var (
		jobs  = make(chan batch)
		wg    sync.WaitGroup
		mu    sync.Mutex
		found atomic.Bool
		best  = -1
		bestC T
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				for i, c := range b.cands {
					if !match(c) {
						continue
					}
					mu.Lock()
					if best < 0 || b.seq+i < best {
						best, bestC = b.seq+i, c
					}
					mu.Unlock()
					found.Store(true)
					break
				}
			}
		}()
	}

	err := ErrRepairNotFound
	tried := 0
	for !found.Load() {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
		b := batch{seq: tried}
		for len(b.cands) < searchBatch {
			c, ok := next()
			if !ok {
				break
			}
			if tried >= budget {
				err = ErrSearchBudgetExceeded
				break
			}
			b.cands = append(b.cands, c)
			tried++
		}
		if len(b.cands) > 0 {
			jobs <- b
		}
		if len(b.cands) < searchBatch {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if best >= 0 {
		return bestC, nil
	}
	return zero, err
}

// combinations yields every k element subset of [0, n) in lexicographic
// order. Each yielded slice is a fresh copy.
func combinations(n, k int) func() ([]int, bool) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	first := true
	return func() ([]int, bool) {
		if k > n || k < 0 {
			return nil, false
		}
		if first {
			first = false
			return slices.Clone(idx), true
		}
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return nil, false
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
		return slices.Clone(idx), true
	}
}

// valueRange yields lo, lo+1, ..., hi-1.
func valueRange(lo, hi uint32) func() (uint32, bool) {
	v := uint64(lo)
	return func() (uint32, bool) {
		if v >= uint64(hi) {
			return 0, false
		}
		v++
		return uint32(v - 1), true
	}
}
