/*************************************************************************
 * procmon - host process monitoring core
 *
 * Ported from xnumon's procmon.c (Copyright 2017-2018 Daniel Roethlisberger).
 **************************************************************************/

package procmon

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/xnumon-go/procmon/internal/cache"
	"github.com/xnumon-go/procmon/internal/codesign"
	"github.com/xnumon-go/procmon/internal/hashes"
	"github.com/xnumon-go/procmon/internal/log"
	"github.com/xnumon-go/procmon/internal/sink"
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

// Monitor is the single value owning every piece of process-monitoring
// state: the proctab, the prepq, both content-addressed caches, the
// worker pool, and the collaborators (codesign verifier, sink, logger,
// OS inspector) spec.md §1 treats as externally supplied. One Monitor is
// created by the embedding daemon's main and threaded through explicitly
// — procmon.c's module-level statics (proctab, prepq, config, caches)
// become fields here, per spec.md §9's design note to avoid globals.
type Monitor struct {
	id uuid.UUID

	cfg Config
	cnt counters

	// suppressions is read on every exec/worker-filter path and swapped
	// wholesale by internal/config's file watcher on a hot-reload
	// (SPEC_FULL.md §7); an atomic pointer lets readers never block on a
	// reload and never observe a torn mix of old/new sets.
	suppressions atomic.Pointer[Suppressions]

	proctab *procTab
	prepq   *prepq

	hashCache *cache.Cache[HashKey, HashTuple]
	sigCache  *cache.Cache[string, codesign.Verdict]
	sf        singleflight.Group

	verifier  codesign.Verifier
	inspector sysinspect.Inspector
	sink      sink.Sink
	logger    *log.Logger

	stat statCounters

	workCh chan func()
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// statCounters backs the miss-counters-by-cause Stats exposes (spec.md
// §6): bypid (reconstruction couldn't find the pid), forksubj/execsubj/
// chdirsubj (a handler's subject process couldn't be resolved), execinterp
// (a shebang script exec had no usable argv), getcwd (a relative
// interpreter path could not be resolved because the process's cwd is
// unknown), plus live-acquisitions in flight.
type statCounters struct {
	liveAcq        counter
	missByPID      counter
	missForkSubj   counter
	missExecSubj   counter
	missExecInterp counter
	missChdirSubj  counter
	missGetCwd     counter
}

// Options configures New. Verifier, Sink, Logger and Inspector all have
// usable zero-value-free defaults so an embedder can construct a Monitor
// with nothing but a Config.
type Options struct {
	Config    Config
	Verifier  codesign.Verifier
	Sink      sink.Sink
	Logger    *log.Logger
	Inspector sysinspect.Inspector
	Workers   int
	CacheSize int
}

// New constructs a Monitor and starts its worker pool. Call Close to
// drain it.
func New(opts Options) *Monitor {
	if opts.Verifier == nil {
		opts.Verifier = codesign.Stub{}
	}
	if opts.Sink == nil {
		opts.Sink = sink.NewNullSink(false)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDiscard()
	}
	if opts.Inspector == nil {
		opts.Inspector = sysinspect.GopsutilInspector{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		id:        uuid.New(),
		cfg:       opts.Config,
		proctab:   newProcTab(),
		prepq:     newPrepq(),
		hashCache: cache.New[HashKey, HashTuple](opts.CacheSize),
		sigCache:  cache.New[string, codesign.Verdict](opts.CacheSize),
		verifier:  opts.Verifier,
		inspector: opts.Inspector,
		sink:      opts.Sink,
		logger:    opts.Logger,
		workCh:    make(chan func(), 256),
		cancel:    cancel,
	}
	supp := opts.Config.Suppressions
	m.suppressions.Store(&supp)
	m.startWorkers(ctx, opts.Workers)
	return m
}

// SetSuppressions hot-swaps the four suppression deny-lists without
// touching any other configuration (Ancestors/KextLevel require
// re-initializing the caches and still require a restart, per
// SPEC_FULL.md §7). Safe to call concurrently with Exec/worker activity.
func (m *Monitor) SetSuppressions(s Suppressions) {
	m.suppressions.Store(&s)
}

// currentSuppressions returns the active deny-lists.
func (m *Monitor) currentSuppressions() Suppressions {
	if s := m.suppressions.Load(); s != nil {
		return *s
	}
	return Suppressions{}
}

// ID returns the Monitor's instance identifier, included in every sink
// record's Extra map as "monitor_id" (it disambiguates records from
// multiple daemon instances/restarts in a shared log sink).
func (m *Monitor) ID() uuid.UUID { return m.id }

// Close stops accepting new work and waits for the worker pool to drain.
func (m *Monitor) Close() {
	m.cancel()
	close(m.workCh)
	m.wg.Wait()
}

// NewImage allocates a fresh Image owned by this Monitor's counters.
func (m *Monitor) NewImage(path string) *Image {
	return newImage(&m.cnt, path)
}

// Stats returns a point-in-time snapshot of the monitor's counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Procs:          int64(m.proctab.Len()),
		Images:         int64(m.cnt.images.Load()),
		LiveAcq:        m.stat.liveAcq.get(),
		MissByPID:      m.stat.missByPID.get(),
		MissForkSubj:   m.stat.missForkSubj.get(),
		MissExecSubj:   m.stat.missExecSubj.get(),
		MissExecInterp: m.stat.missExecInterp.get(),
		MissChdirSubj:  m.stat.missChdirSubj.get(),
		MissGetCwd:     m.stat.missGetCwd.get(),
		OOMs:           m.cnt.ooms.Load(),
		PrepqLookups:   m.prepq.Lookups(),
		PrepqMisses:    m.prepq.Misses(),
		PrepqDrops:     m.prepq.Drops(),
		PrepqSkips:     m.prepq.Skips(),
		PrepqSize:      int64(m.prepq.Len()),
	}
}

// ImageByPID returns the Image currently executing in pid, reconstructing
// the process's lineage via the OS inspector if procmon has not observed
// pid's fork/exec directly (image_exec_by_pid in the original, renamed
// per SPEC_FULL.md §11 to reflect that it returns the image, not raw
// process state).
func (m *Monitor) ImageByPID(pid int) (*Image, error) {
	if p, ok := m.proctab.Find(pid); ok {
		if img := p.Current(); img != nil {
			return img, nil
		}
	}
	return m.reconstructProcess(pid)
}

// Acquire is the enrichment driver for the worker-pool path (image_exec_acquire
// with kern=false in procmon.c): it finishes whatever the synchronous
// kernel-callback path deferred.
func (m *Monitor) Acquire(img *Image) error {
	return m.acquire(img, false)
}

// AcquireSync is the synchronous, kernel-callback-path variant
// (image_exec_acquire with kern=true): it defers hashing for files over
// 8 MiB and code signing for the two re-entrancy-risky paths, to keep
// the calling KAuth-equivalent thread from blocking too long.
func (m *Monitor) AcquireSync(img *Image) error {
	return m.acquire(img, true)
}

// acquire implements spec.md §4.1's acquire(kern) state machine.
func (m *Monitor) acquire(img *Image, kern bool) error {
	if img.hasFlag(FlagDone) {
		return nil
	}

	img.mu.Lock()
	attrSource := img.attrSource
	st := img.stat
	path := img.Path
	noPath := img.NoPath
	hasHashes := img.flags.Has(FlagHashes)
	hasShebang := img.flags.Has(FlagShebang)
	img.mu.Unlock()

	if noPath {
		img.setFlag(FlagDone)
		return nil
	}
	if attrSource == AttrSourceNone {
		return ErrEnrichmentFailed
	}

	// Step 1: kern path defers entirely below HASH level.
	if kern && m.cfg.KextLevel < KextLevelHash {
		return nil
	}
	// Step 2: kern path defers large files to the worker.
	if kern && st.Size > kernMaxSyncSize {
		return nil
	}

	// Step 3: hash cache lookup / compute / invalidate.
	if !hasHashes {
		key := hashKeyOf(st)
		if t, ok := m.hashCache.Get(key); ok {
			img.mu.Lock()
			img.hashes = t
			img.mu.Unlock()
			img.setFlag(FlagHashes)
		} else {
			m.stat.liveAcq.add(1)
			t, valid, err := m.computeHashes(path, st, key)
			m.stat.liveAcq.add(-1)
			if err != nil {
				// enrichment-failed: the record is still finalized
				// (DONE, below) and emitted, just without hashes
				// (spec.md §7). Out-of-memory from the underlying
				// runtime is not recoverable in Go the way malloc
				// failure is in C, so it is not distinguished here.
				m.logger.Debugf("hash acquire(pid=%d): %v", img.PID, err)
			} else if valid {
				img.mu.Lock()
				img.hashes = t
				img.mu.Unlock()
				img.setFlag(FlagHashes)
			}
			// else: file changed mid-hash; HASHES left unset, not cached.
		}
	}

	// Step 4: all subsequent work is path-based.
	img.Close()

	// Step 5: kern path defers below CSIG level.
	if kern && m.cfg.KextLevel < KextLevelCSig {
		return nil
	}

	// Step 6: scripts don't carry their own signature; the interpreter does.
	if hasShebang {
		img.setFlag(FlagDone)
		return nil
	}

	if m.cfg.Codesign && img.Signature() == nil {
		if kern && m.cfg.skipsKernCodesign(path) {
			return nil
		}
		hkey := img.Hashes().cacheKey()
		if v, ok := m.sigCache.Get(hkey); ok && hkey != "" {
			img.mu.Lock()
			img.sig = &v
			img.mu.Unlock()
		} else {
			v, valid, err := m.computeSignature(path, st, hkey)
			if err != nil && err != codesign.ErrUnsupported {
				return err
			}
			if valid {
				img.mu.Lock()
				img.sig = &v
				img.mu.Unlock()
			}
		}
	}

	img.setFlag(FlagDone)
	return nil
}

// computeHashes hashes path, collapsing concurrent identical-key callers
// via singleflight (spec.md §4.7's at-most-one-enrichment guarantee). It
// re-stats the file after reading and reports valid=false — without
// caching anything — if size or any timestamp no longer matches original,
// i.e. the file was written during hashing (spec.md §4.1 step 3, tested
// by scenario 6 in §8).
func (m *Monitor) computeHashes(path string, original FileStat, key HashKey) (HashTuple, bool, error) {
	type result struct {
		t     HashTuple
		valid bool
	}
	v, err, _ := m.sf.Do("hash:"+fmt.Sprintf("%d:%d:%d:%d:%d", key.Dev, key.Ino, key.Mtime.UnixNano(), key.Ctime.UnixNano(), key.Btime.UnixNano()), func() (interface{}, error) {
		if t, ok := m.hashCache.Get(key); ok {
			return result{t, true}, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return result{}, err
		}
		defer f.Close()
		_, tup, err := hashes.Compute(hashes.Flags(m.cfg.HashFlags), f)
		if err != nil {
			return result{}, err
		}
		newSt, err := statFD(f)
		if err != nil {
			return result{}, err
		}
		if original.changedSince(newSt) {
			return result{valid: false}, nil
		}
		ht := HashTuple{MD5: tup.MD5, SHA1: tup.SHA1, SHA256: tup.SHA256, SHA512: tup.SHA512}
		m.hashCache.Put(key, ht)
		return result{ht, true}, nil
	})
	if err != nil {
		return HashTuple{}, false, err
	}
	r := v.(result)
	return r.t, r.valid, nil
}

// computeSignature verifies path's code signature, collapsing concurrent
// callers sharing the same content hash via singleflight, and invalidates
// the result (without caching) if a re-stat by path shows the file
// changed since original was captured.
func (m *Monitor) computeSignature(path string, original FileStat, hkey string) (codesign.Verdict, bool, error) {
	type result struct {
		v     codesign.Verdict
		valid bool
	}
	do := func() (interface{}, error) {
		if hkey != "" {
			if v, ok := m.sigCache.Get(hkey); ok {
				return result{v, true}, nil
			}
		}
		verdict, err := m.verifier.Verify(path)
		if err != nil {
			return result{}, err
		}
		fi, err := os.Stat(path)
		if err != nil {
			return result{}, err
		}
		newSt, err := statFromFileInfo(fi)
		if err != nil {
			return result{}, err
		}
		if original.changedSince(newSt) || original.Dev != newSt.Dev || original.Ino != newSt.Ino {
			return result{valid: false}, nil
		}
		if hkey != "" {
			m.sigCache.Put(hkey, verdict)
		}
		return result{verdict, true}, nil
	}

	key := "sig:" + hkey
	if hkey == "" {
		key = "sig:path:" + path
	}
	v, err, _ := m.sf.Do(key, do)
	if err != nil {
		return codesign.Verdict{}, false, err
	}
	r := v.(result)
	return r.v, r.valid, nil
}

// PruneAncestors truncates img's Prev chain to at most cfg.Ancestors
// entries deep, treating img as sitting at depth level (callers pass 0;
// AncestorsUnbounded disables pruning entirely). It only recurses while
// each visited image is exclusively owned (refcount == 1); a shared
// ancestor (refcount > 1, e.g. a sibling process's lineage still points
// at it) stops the walk, preserving the other branch's history (spec.md
// §4.1 prune_ancestors, tested by §8 scenario 5).
func (m *Monitor) PruneAncestors(img *Image, level uint64) {
	m.pruneAncestors(img, level)
}

func (m *Monitor) pruneAncestors(img *Image, level uint64) {
	if img == nil || img.Prev == nil {
		return
	}
	if level >= m.cfg.Ancestors {
		cut := img.Prev
		img.Prev = nil
		cut.Free()
		return
	}
	if img.Refs() == 1 {
		m.pruneAncestors(img.Prev, level+1)
	}
}

// Logger exposes the monitor's diagnostic logger to handlers.
func (m *Monitor) Logger() *log.Logger { return m.logger }

// emit hands a finished image's projection to the configured sink,
// unless FlagNoLog is set (spec.md §6 suppression).
func (m *Monitor) emit(img *Image, ancestors []string) {
	if img.hasFlag(FlagNoLog) {
		return
	}
	h := img.Hashes()
	sig := img.Signature()
	rec := sink.Record{
		PID:       img.PID,
		Path:      img.Path,
		Argv:      img.Argv,
		Envv:      img.Envv,
		Cwd:       img.Cwd,
		Ancestors: ancestors,
		Extra:     map[string]string{"monitor_id": m.id.String()},
	}
	if img.Script != nil {
		rec.ScriptPath = img.Script.Path
	}
	if len(h.MD5) > 0 {
		rec.MD5 = hex.EncodeToString(h.MD5)
	}
	if len(h.SHA1) > 0 {
		rec.SHA1 = hex.EncodeToString(h.SHA1)
	}
	if len(h.SHA256) > 0 {
		rec.SHA256 = hex.EncodeToString(h.SHA256)
	}
	if len(h.SHA512) > 0 {
		rec.SHA512 = hex.EncodeToString(h.SHA512)
	}
	if sig != nil {
		rec.CodesignOK = sig.Valid
		rec.CodesignID = sig.Ident
	}
	if err := m.sink.Emit(rec); err != nil {
		m.logger.Warnf("sink emit failed for pid %d: %v", img.PID, err)
	}
}
