package procmon

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// startWorkers launches n goroutines draining m.workCh, supervised by an
// errgroup the way processors/forwarder.go supervises its send loop: a
// panicking task is not allowed to silently vanish, and Close's wg.Wait
// only returns once every in-flight task has finished.
//
// Shutdown is driven solely by closing m.workCh, never by canceling ctx
// out from under a worker: racing a context cancellation against a
// still-buffered channel would let select nondeterministically pick the
// Done() case and exit with unprocessed tasks still queued, which would
// silently drop records and leak the images they held a reference to.
// ctx is retained so a future caller can still observe supervisor errors
// via errgroup, but the work loop itself only ever waits on the channel.
func (m *Monitor) startWorkers(ctx context.Context, n int) {
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		g.Go(func() error {
			defer m.wg.Done()
			for task := range m.workCh {
				m.runTask(task)
			}
			return nil
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			m.logger.Errorf("worker pool: %v", err)
		}
	}()
}

func (m *Monitor) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Criticalf("worker task panicked: %v", r)
		}
	}()
	task()
}

// submit enqueues a unit of enrichment work. If the queue is full the
// task runs inline on the caller's goroutine rather than blocking
// indefinitely or dropping it — back-pressure, not data loss, matching
// spec.md §4.1's guarantee that Acquire always eventually runs.
func (m *Monitor) submit(task func()) {
	select {
	case m.workCh <- task:
	default:
		m.runTask(task)
	}
}

// enrichAsync submits img to the worker pool, implementing spec.md §4.5's
// worker task in full: finish acquire(kern=false), recurse once into the
// script image if present, prune the ancestor chain to the configured
// depth, then drop (silently, for OOM/NOLOG/direct-suppression) or hand
// the record to the sink.
func (m *Monitor) enrichAsync(img *Image) {
	img.Ref()
	m.submit(func() {
		defer img.Free()
		m.processImage(img)
	})
}

func (m *Monitor) processImage(img *Image) {
	if err := m.Acquire(img); err != nil {
		m.logger.Debugf("worker acquire(pid=%d): %v", img.PID, err)
	}
	if img.Script != nil {
		if err := m.Acquire(img.Script); err != nil {
			m.logger.Debugf("worker acquire script(pid=%d): %v", img.PID, err)
		}
	}

	m.pruneAncestors(img, 0)

	if img.hasFlag(FlagENOMEM) {
		return
	}
	if img.hasFlag(FlagNoLog) {
		return
	}
	supp := m.currentSuppressions()
	if img.MatchSuppressions(supp.ByIdent, supp.ByPath) {
		return
	}

	m.emit(img, m.ancestorPaths(img))
}

// ancestorPaths walks img's Prev chain (after pruning) into a slice of
// paths, most recent ancestor first, for the sink record's Ancestors
// field.
func (m *Monitor) ancestorPaths(img *Image) []string {
	var out []string
	for cur := img.Prev; cur != nil; cur = cur.Prev {
		out = append(out, cur.Path)
	}
	return out
}
