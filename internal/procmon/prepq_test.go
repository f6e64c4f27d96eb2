package procmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Prepq TTL bound (spec.md §8): no entry survives more than maxPQTTL
// consecutive scans that do not match it.
func TestPrepqTTLBound(t *testing.T) {
	var cnt counters
	q := newPrepq()

	stale := newImage(&cnt, "/bin/stale")
	q.Append(7, stale)

	// Every lookup for pid 7 that doesn't match this entry's path walks
	// past it, incrementing its TTL.
	for i := 0; i < maxPQTTL; i++ {
		_, _, found := q.Lookup(7, nil, "/bin/nonexistent", nil)
		assert.False(t, found)
	}
	require.Equal(t, 1, q.Len(), "entry should survive exactly maxPQTTL skips")

	_, _, found := q.Lookup(7, nil, "/bin/nonexistent", nil)
	assert.False(t, found)
	require.Equal(t, 0, q.Len(), "entry should be dropped once its TTL is exceeded")
	assert.EqualValues(t, 1, q.Drops())
	assert.EqualValues(t, 0, cnt.images.Load(), "dropped entry's image must be freed")
}

// Scenario 1 (spec.md §8): pre-exec before audit, matched by (pid, dev, ino).
func TestPrepqLookupMatchesByAttr(t *testing.T) {
	var cnt counters
	q := newPrepq()

	img := newImage(&cnt, "/bin/ls")
	img.stat = FileStat{Dev: 1, Ino: 100}
	q.Append(42, img)

	attr := &Attr{Dev: 1, Ino: 100}
	matched, interp, found := q.Lookup(42, attr, "/bin/ls", []string{"ls", "-l"})
	require.True(t, found)
	assert.Same(t, img, matched)
	assert.Nil(t, interp)
	assert.EqualValues(t, 0, q.Len())
}

// Falls back to (pid, basename(path)) when no attr is supplied.
func TestPrepqLookupFallsBackToBasename(t *testing.T) {
	var cnt counters
	q := newPrepq()

	img := newImage(&cnt, "/usr/bin/true")
	q.Append(42, img)

	matched, _, found := q.Lookup(42, nil, "/bin/true", nil)
	require.True(t, found)
	assert.Same(t, img, matched)
}

// Scenario 2 (spec.md §8): a SHEBANG image match continues the walk to
// find the interpreter entry by argv[0]'s basename.
func TestPrepqLookupFindsInterpreter(t *testing.T) {
	var cnt counters
	q := newPrepq()

	script := newImage(&cnt, "/tmp/run.sh")
	script.setFlag(FlagShebang)
	q.Append(42, script)

	interpImg := newImage(&cnt, "/bin/sh")
	q.Append(42, interpImg)

	matched, interp, found := q.Lookup(42, nil, "/tmp/run.sh", []string{"/bin/sh", "/tmp/run.sh", "arg"})
	require.True(t, found)
	assert.Same(t, script, matched)
	require.NotNil(t, interp)
	assert.Same(t, interpImg, interp)

	// Invariant: an interpreter is never returned without an image.
	assert.NotNil(t, matched)
}

// A SHEBANG match with no second prepq entry for the interpreter still
// returns the script alone (caller synthesizes the interpreter).
func TestPrepqLookupShebangWithoutInterpreterEntry(t *testing.T) {
	var cnt counters
	q := newPrepq()

	script := newImage(&cnt, "/tmp/run.sh")
	script.setFlag(FlagShebang)
	q.Append(42, script)

	matched, interp, found := q.Lookup(42, nil, "/tmp/run.sh", []string{"/bin/sh", "/tmp/run.sh"})
	require.True(t, found)
	assert.Same(t, script, matched)
	assert.Nil(t, interp)
}

// Scenario 3 (spec.md §8): no matching entry at all is a miss.
func TestPrepqLookupMiss(t *testing.T) {
	q := newPrepq()
	_, _, found := q.Lookup(42, nil, "/bin/true", nil)
	assert.False(t, found)
	assert.EqualValues(t, 1, q.Misses())
}

func TestPrepqRemoveExistingFreesEntries(t *testing.T) {
	var cnt counters
	q := newPrepq()
	q.Append(42, newImage(&cnt, "/bin/a"))
	q.Append(42, newImage(&cnt, "/bin/b"))
	q.Append(43, newImage(&cnt, "/bin/c"))

	q.RemoveExisting(42)
	require.Equal(t, 1, q.Len())
	assert.EqualValues(t, 1, cnt.images.Load())
}
