package procmon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnumon-go/procmon/internal/log"
	"github.com/xnumon-go/procmon/internal/sink"
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

func newTestMonitor(t *testing.T, sk sink.Sink, insp sysinspect.Inspector, cfg Config) *Monitor {
	t.Helper()
	m := New(Options{
		Config:    cfg,
		Sink:      sk,
		Logger:    log.NewDiscard(),
		Inspector: insp,
		Workers:   2,
	})
	t.Cleanup(m.Close)
	return m
}

func writeExecutable(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0755))
	return p
}

// attrFor derives an Attr that matches path's real on-disk stat, so a
// caller can exercise the (pid, dev, ino) correlation path the way a real
// audit exec event's attr snapshot would.
func attrFor(t *testing.T, path string) Attr {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	st, err := statFromFileInfo(fi)
	require.NoError(t, err)
	return Attr{
		Mode: st.Mode, UID: st.UID, GID: st.GID,
		Dev: st.Dev, Ino: st.Ino, Size: st.Size,
		Mtime: st.Mtime, Ctime: st.Ctime, Btime: st.Btime,
	}
}

// waitForRecords polls Records until n are present or the deadline
// passes, since emit happens on a worker goroutine asynchronously from
// the test's call to Exec/PreloadPID.
func waitForRecords(t *testing.T, sk *sink.NullSink, n int) []sink.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		recs := sk.Records()
		if len(recs) >= n {
			return recs
		}
		if time.Now().After(deadline) {
			require.Failf(t, "timed out waiting for records", "have %d, want %d", len(recs), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// Scenario 1 (spec.md §8): the kernel pre-exec callback arrives before
// the audit exec event. Exec must correlate the two via (pid, dev, ino)
// and the image must already carry the hashes AcquireSync computed
// synchronously.
func TestScenarioPreExecBeforeAudit(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "ls", "not-actually-elf-but-real-bytes")

	sk := sink.NewNullSink(true)
	m := newTestMonitor(t, sk, sysinspect.NewFake(), DefaultConfig())

	m.proctab.Create(42, time.Now(), Subject{PID: 42}, dir)

	require.NoError(t, m.KernPreexec(time.Now(), 42, path))
	require.Equal(t, 1, m.prepq.Len())

	attr := attrFor(t, path)
	require.NoError(t, m.Exec(time.Now(), Subject{PID: 42}, path, &attr, []string{"ls", "-l"}, nil))

	recs := waitForRecords(t, sk, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, path, recs[0].Path)
	assert.NotEmpty(t, recs[0].SHA256, "hashes computed by KernPreexec's AcquireSync should survive correlation")
	assert.EqualValues(t, 0, m.prepq.Len())
	assert.EqualValues(t, 1, m.prepq.Lookups())
	assert.EqualValues(t, 0, m.prepq.Misses())
}

// Scenario 2 (spec.md §8): a shebang script and its interpreter both
// precede the audit event in the prepq; Exec must pair them into one
// record whose Path is the interpreter and ScriptPath is the script.
func TestScenarioScriptInterpreterPairing(t *testing.T) {
	dir := t.TempDir()
	script := writeExecutable(t, dir, "run.sh", "#!/bin/sh\necho hi\n")
	interp := writeExecutable(t, dir, "sh", "fake-shell-binary")

	sk := sink.NewNullSink(true)
	m := newTestMonitor(t, sk, sysinspect.NewFake(), DefaultConfig())
	m.proctab.Create(7, time.Now(), Subject{PID: 7}, dir)

	require.NoError(t, m.KernPreexec(time.Now(), 7, script))
	require.NoError(t, m.KernPreexec(time.Now(), 7, interp))
	require.Equal(t, 2, m.prepq.Len())

	require.NoError(t, m.Exec(time.Now(), Subject{PID: 7}, script, nil, []string{interp, script}, nil))

	recs := waitForRecords(t, sk, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, interp, recs[0].Path)
	assert.Equal(t, script, recs[0].ScriptPath)
	assert.EqualValues(t, 0, m.prepq.Len())
}

// Scenario 3 (spec.md §8): the audit exec event arrives with no matching
// prepq entry at all. Exec must synthesize a fresh image, record the
// miss, and still run it through the full worker enrichment path.
func TestScenarioMissingPreExecSynthesizesImage(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "true", "real-bytes-on-disk")

	sk := sink.NewNullSink(true)
	m := newTestMonitor(t, sk, sysinspect.NewFake(), DefaultConfig())
	m.proctab.Create(9, time.Now(), Subject{PID: 9}, dir)

	require.NoError(t, m.Exec(time.Now(), Subject{PID: 9}, path, nil, []string{"true"}, nil))

	recs := waitForRecords(t, sk, 1)
	require.Len(t, recs, 1)
	assert.Equal(t, path, recs[0].Path)
	assert.NotEmpty(t, recs[0].SHA256, "the worker path must still compute hashes for a synthesized image")
	assert.EqualValues(t, 1, m.prepq.Misses())
}

// Scenario 4 (spec.md §8): ImageByPID on a pid procmon never observed
// directly falls back to OS-level reconstruction, and a pid the inspector
// can't find at all is reported as a miss, not a panic or a zero Image.
func TestScenarioProcessReconstruction(t *testing.T) {
	insp := sysinspect.NewFake()
	insp.Set(123, sysinspect.Info{Path: "/usr/bin/cron", ForkTime: time.Now(), PPID: 0, Cwd: "/"})

	sk := sink.NewNullSink(true)
	m := newTestMonitor(t, sk, insp, DefaultConfig())

	img, err := m.ImageByPID(123)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/cron", img.Path)
	assert.True(t, img.hasFlag(FlagPIDLookup))

	_, err = m.ImageByPID(99999)
	assert.ErrorIs(t, err, ErrProcessGone)

	err = m.PreloadPID(99999)
	assert.ErrorIs(t, err, ErrProcessGone)
	assert.EqualValues(t, 1, m.Stats().MissByPID)
}

// Scenario 5 (spec.md §8): pruning one sibling's lineage through the full
// async Exec/worker pipeline must never free an ancestor image a second
// sibling's Prev chain still references.
func TestScenarioSharedAncestorSurvivesAsyncPruning(t *testing.T) {
	dir := t.TempDir()
	parentPath := writeExecutable(t, dir, "parent", "parent-bytes")
	childBPath := writeExecutable(t, dir, "childb", "childb-bytes")
	childCPath := writeExecutable(t, dir, "childc", "childc-bytes")

	sk := sink.NewNullSink(true)
	cfg := DefaultConfig()
	cfg.Ancestors = 1
	m := newTestMonitor(t, sk, sysinspect.NewFake(), cfg)

	m.proctab.Create(1, time.Now(), Subject{PID: 1}, dir)
	require.NoError(t, m.Exec(time.Now(), Subject{PID: 1}, parentPath, nil, []string{"parent"}, nil))
	waitForRecords(t, sk, 1)

	require.NoError(t, m.Fork(time.Now(), Subject{PID: 1}, 2))
	require.NoError(t, m.Fork(time.Now(), Subject{PID: 1}, 3))

	require.NoError(t, m.Exec(time.Now(), Subject{PID: 2}, childBPath, nil, []string{"childb"}, nil))
	require.NoError(t, m.Exec(time.Now(), Subject{PID: 3}, childCPath, nil, []string{"childc"}, nil))

	recs := waitForRecords(t, sk, 3)
	require.Len(t, recs, 3)

	for _, r := range recs {
		if r.Path == childBPath || r.Path == childCPath {
			require.Len(t, r.Ancestors, 1, "each child's ancestor chain is pruned to depth 1")
			assert.Equal(t, parentPath, r.Ancestors[0])
		}
	}
}

// Scenario 6 (spec.md §8): if a file changes between the open/stat used
// to seed Acquire and the read used to hash it, the hash must not be
// reported, and the record must still be emitted (without hashes) rather
// than dropped entirely.
func TestScenarioAttrMismatchInvalidatesMidHash(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "flaky", "original-content")

	sk := sink.NewNullSink(true)
	m := newTestMonitor(t, sk, sysinspect.NewFake(), DefaultConfig())

	original, err := os.Stat(path)
	require.NoError(t, err)
	originalSt, err := statFromFileInfo(original)
	require.NoError(t, err)

	// A stale original snapshot simulating a write race: computeHashes
	// will re-stat the file after hashing, compare the result against
	// this now-outdated FileStat, and must report invalid.
	stale := originalSt
	stale.Size = originalSt.Size + 1000

	tup, valid, err := m.computeHashes(path, stale, hashKeyOf(stale))
	require.NoError(t, err)
	assert.False(t, valid, "a size mismatch against the pre-read snapshot must invalidate the hash")
	assert.True(t, tup.empty())

	if cached, ok := m.hashCache.Get(hashKeyOf(stale)); ok {
		t.Fatalf("invalidated hash must not be cached, got %+v", cached)
	}
}
