package procmon

import (
	"sync"
	"time"
)

// Process is the live-process half of procmon's state, keyed by pid:
// proc_t in procmon.c. It tracks the process's current working
// directory and the Image currently executing in it; Image itself
// carries the exec lineage (Prev) and script/interpreter pairing
// (Script).
type Process struct {
	PID      int
	ForkTime time.Time
	Subject  Subject

	mu      sync.Mutex
	cwd     string
	current *Image

	// fdctx tracks open file descriptors this process holds that are
	// relevant to a pending correlation (spec.md §5's socket/file
	// side-channel handlers): fd -> path or socket description.
	fdctx map[int]string
}

func newProcess(pid int, forkTime time.Time, subject Subject, cwd string) *Process {
	return &Process{
		PID: pid, ForkTime: forkTime, Subject: subject, cwd: cwd,
		fdctx: make(map[int]string),
	}
}

// Cwd returns the process's last-known working directory.
func (p *Process) Cwd() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

func (p *Process) setCwd(cwd string) {
	p.mu.Lock()
	p.cwd = cwd
	p.mu.Unlock()
}

// Current returns the Image currently executing in this process, if any.
func (p *Process) Current() *Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// setCurrent replaces the process's current image, taking a reference on
// img (if non-nil) and releasing the previous one. Does not set img.Prev;
// callers performing an exec transition do that explicitly so the old
// image's lifetime is controlled by the caller (see handlers.go Exec).
func (p *Process) setCurrent(img *Image) {
	p.mu.Lock()
	prev := p.current
	p.current = img
	p.mu.Unlock()
	if img != nil {
		img.Ref()
	}
	if prev != nil {
		prev.Free()
	}
}

func (p *Process) trackFD(fd int, desc string) {
	p.mu.Lock()
	p.fdctx[fd] = desc
	p.mu.Unlock()
}

func (p *Process) fdDesc(fd int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.fdctx[fd]
	return d, ok
}

func (p *Process) untrackFD(fd int) {
	p.mu.Lock()
	delete(p.fdctx, fd)
	p.mu.Unlock()
}

// procTab is the pid -> Process table, proctab_t in procmon.c. A single
// RWMutex guards the map; individual Process values have their own
// mutex for the fields that change independently of table membership.
type procTab struct {
	mu    sync.RWMutex
	procs map[int]*Process
}

func newProcTab() *procTab {
	return &procTab{procs: make(map[int]*Process)}
}

// Find returns the Process for pid, if tracked.
func (t *procTab) Find(pid int) (*Process, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	return p, ok
}

// Create inserts a new Process for pid. It asserts pid is not already
// present — proctab_create in procmon.c treats a collision as a logic
// error in the caller (a pid reused without an intervening Wait/Remove),
// not a recoverable condition.
func (t *procTab) Create(pid int, forkTime time.Time, subject Subject, cwd string) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.procs[pid]; exists {
		panic("procmon: proctab_create invariant violated: pid already tracked")
	}
	p := newProcess(pid, forkTime, subject, cwd)
	t.procs[pid] = p
	return p
}

// FindOrCreate returns the existing Process for pid, or creates one using
// the supplied defaults (used when an event arrives for a pid procmon
// never saw fork, e.g. at startup — spec.md §5 PreloadPID / reconstruct).
func (t *procTab) FindOrCreate(pid int, forkTime time.Time, subject Subject, cwd string) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.procs[pid]; ok {
		return p, false
	}
	p := newProcess(pid, forkTime, subject, cwd)
	t.procs[pid] = p
	return p, true
}

// Remove deletes and returns the Process for pid, if any. The caller is
// responsible for releasing its Image reference.
func (t *procTab) Remove(pid int) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	if ok {
		delete(t.procs, pid)
	}
	return p, ok
}

// RemoveAndFree deletes pid's Process, if any, and releases its current
// image reference. Used to clean up a stale entry left behind by a reused
// pid before installing the new incarnation (spec.md §4.4 fork).
func (t *procTab) RemoveAndFree(pid int) {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if ok {
		delete(t.procs, pid)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	p.setCurrent(nil)
}

// Len reports the number of tracked processes.
func (t *procTab) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.procs)
}
