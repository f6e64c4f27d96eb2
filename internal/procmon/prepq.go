package procmon

import (
	"container/list"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// pqEntry is one pre-exec image record awaiting correlation with its
// audit exec event (spec.md §4.3). image has already been opened and
// run through AcquireSync by the time it lands here (kern_preexec does
// that before appending), so its stat (dev/ino) and SHEBANG flag are
// already known — that is what the lookup protocol matches on.
type pqEntry struct {
	pid   int
	image *Image
	ttl   int
}

// prepq is the bounded, insertion-ordered, single-lock correlation queue
// grounded on prepq_t in procmon.c and the container/list usage pattern
// in ingest/muxer.go. Writers (kernel-callback threads) only append;
// the single event-dispatch thread is the sole remover, an asymmetric
// access pattern spec.md §5 calls out explicitly.
type prepq struct {
	mu sync.Mutex
	l  *list.List

	lookups atomic.Int64
	misses  atomic.Int64
	drops   atomic.Int64
	skips   atomic.Int64
}

func newPrepq() *prepq {
	return &prepq{l: list.New()}
}

// Append inserts a new pending entry at the tail. Mirrors prepq_append.
func (q *prepq) Append(pid int, img *Image) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.l.PushBack(&pqEntry{pid: pid, image: img})
}

// Lookup implements the two-phase match spec.md §4.3 describes.
//
// If attr is non-nil, the image match is on (pid, dev, ino); otherwise
// it falls back to (pid, basename(path)). If the matched image has
// SHEBANG set and argv carries both an interpreter slot (argv[0]) and a
// script slot (argv[1]), the walk continues over the remaining entries
// to find the interpreter by (pid, basename(argv[0])). Every entry
// skipped along the way has its TTL incremented, and any entry that now
// exceeds maxPQTTL is dropped and freed.
func (q *prepq) Lookup(pid int, attr *Attr, path string, argv []string) (image, interp *Image, found bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lookups.Add(1)

	var target *list.Element
	var next *list.Element
	for e := q.l.Front(); e != nil; e = next {
		next = e.Next()
		ent := e.Value.(*pqEntry)
		if ent.pid != pid {
			continue
		}
		var match bool
		if attr != nil {
			match = ent.image.stat.Dev == attr.Dev && ent.image.stat.Ino == attr.Ino
		} else {
			match = filepath.Base(ent.image.Path) == filepath.Base(path)
		}
		if match {
			target = e
			break
		}
		ent.ttl++
		if ent.ttl > maxPQTTL {
			q.l.Remove(e)
			q.drops.Add(1)
			ent.image.Free()
		}
	}

	if target == nil {
		q.misses.Add(1)
		return nil, nil, false
	}
	img := target.Value.(*pqEntry).image
	q.l.Remove(target)

	if img.hasFlag(FlagShebang) && len(argv) >= 2 {
		argv0 := argv[0]
		var interpElem *list.Element
		for e := q.l.Front(); e != nil; e = e.Next() {
			ent := e.Value.(*pqEntry)
			if ent.pid == pid && filepath.Base(ent.image.Path) == filepath.Base(argv0) {
				interpElem = e
				break
			}
		}
		if interpElem != nil {
			interpImg := interpElem.Value.(*pqEntry).image
			q.l.Remove(interpElem)
			return img, interpImg, true
		}
	}
	return img, nil, true
}

// RemoveExisting removes and frees every entry for pid, used on pid
// reuse (a fork or exec arriving for a pid whose previous incarnation
// left an unmatched prepq entry behind).
func (q *prepq) RemoveExisting(pid int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var next *list.Element
	for e := q.l.Front(); e != nil; e = next {
		next = e.Next()
		ent := e.Value.(*pqEntry)
		if ent.pid == pid {
			q.l.Remove(e)
			ent.image.Free()
		}
	}
}

// Skip records that a lookup was deliberately not attempted.
func (q *prepq) Skip() { q.skips.Add(1) }

func (q *prepq) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.l.Len()
}

func (q *prepq) Lookups() int64 { return q.lookups.Load() }
func (q *prepq) Misses() int64  { return q.misses.Load() }
func (q *prepq) Drops() int64   { return q.drops.Load() }
func (q *prepq) Skips() int64   { return q.skips.Load() }
