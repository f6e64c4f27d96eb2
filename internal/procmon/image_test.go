package procmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refcount conservation (spec.md §8): for every New followed by every
// Ref/Free in any order, the live-images counter returns to its starting
// value once every reference has been released.
func TestImageRefcountConservation(t *testing.T) {
	var cnt counters
	img := newImage(&cnt, "/bin/true")
	require.EqualValues(t, 1, cnt.images.Load())

	img.Ref()
	img.Ref()
	require.Equal(t, 3, img.Refs())

	img.Free()
	img.Free()
	require.Equal(t, 1, img.Refs())
	require.EqualValues(t, 1, cnt.images.Load())

	img.Free()
	require.EqualValues(t, 0, cnt.images.Load())
}

// Free recursively releases Script and Prev, so a chain's live-image
// count also returns to zero once the head is released.
func TestImageFreeRecursesIntoScriptAndPrev(t *testing.T) {
	var cnt counters
	grandparent := newImage(&cnt, "/bin/bash")
	parent := newImage(&cnt, "/bin/sh")
	parent.Prev = grandparent

	script := newImage(&cnt, "/tmp/run.sh")
	script.setFlag(FlagShebang)
	interp := newImage(&cnt, "/bin/sh")
	interp.Script = script
	interp.Prev = parent

	require.EqualValues(t, 4, cnt.images.Load())
	interp.Free()
	require.EqualValues(t, 0, cnt.images.Load())
}

// Shared-ancestor preservation (spec.md §8 scenario 5): pruning one
// branch must never free an ancestor image another branch still
// references.
func TestPruneAncestorsPreservesSharedAncestor(t *testing.T) {
	var cnt counters
	m := &Monitor{cfg: Config{Ancestors: 0}} // keep zero ancestors: cut every Prev link at level 0

	shared := newImage(&cnt, "/bin/parent") // refs=1: the process table's own hold

	siblingB := newImage(&cnt, "/bin/b")
	shared.Ref() // B's Prev link
	siblingB.Prev = shared

	siblingC := newImage(&cnt, "/bin/c")
	shared.Ref() // C's Prev link
	siblingC.Prev = shared

	// refs: owner(1) + B's link(1) + C's link(1) = 3; cutting B's own
	// link to shared must only release B's reference, not free shared,
	// since C's link (and the table's own hold) still count.
	require.Equal(t, 3, shared.Refs())
	m.pruneAncestors(siblingB, 0)
	require.Nil(t, siblingB.Prev, "B's link to shared should have been cut")
	require.Equal(t, 2, shared.Refs(), "shared ancestor survives with C's (and the owner's) reference intact")
	assert.NotNil(t, siblingC.Prev, "C's link to shared must still be intact")
}

// Ancestor depth bound (spec.md §8): after PruneAncestors, walking Prev
// from a logged image reaches a terminator within the configured depth.
func TestPruneAncestorsDepthBound(t *testing.T) {
	var cnt counters
	m := &Monitor{cfg: Config{Ancestors: 2}}

	root := newImage(&cnt, "/bin/root")
	mid := newImage(&cnt, "/bin/mid")
	mid.Prev = root
	leaf := newImage(&cnt, "/bin/leaf")
	leaf.Prev = mid
	head := newImage(&cnt, "/bin/head")
	head.Prev = leaf

	m.pruneAncestors(head, 0)

	depth := 0
	for cur := head.Prev; cur != nil; cur = cur.Prev {
		depth++
	}
	require.LessOrEqual(t, depth, 2)
}

// AncestorsUnbounded disables pruning entirely.
func TestPruneAncestorsUnbounded(t *testing.T) {
	var cnt counters
	m := &Monitor{cfg: Config{Ancestors: AncestorsUnbounded}}

	root := newImage(&cnt, "/bin/root")
	mid := newImage(&cnt, "/bin/mid")
	mid.Prev = root
	head := newImage(&cnt, "/bin/head")
	head.Prev = mid

	m.pruneAncestors(head, 0)
	require.NotNil(t, head.Prev)
	require.NotNil(t, head.Prev.Prev)
}

func TestFlagSetBasics(t *testing.T) {
	var f FlagSet
	assert.False(t, f.Has(FlagDone))
	f.Set(FlagDone | FlagHashes)
	assert.True(t, f.Has(FlagDone))
	assert.True(t, f.Has(FlagHashes))
	f.Clear(FlagHashes)
	assert.False(t, f.Has(FlagHashes))
	assert.True(t, f.Has(FlagDone))
}

// Suppression idempotence (spec.md §8): MatchSuppressions is a pure
// function of the image and the deny-lists; repeated calls agree.
func TestMatchSuppressionsIdempotent(t *testing.T) {
	var cnt counters
	img := newImage(&cnt, "/usr/bin/nc")
	byPath := map[string]struct{}{"/usr/bin/nc": {}}

	first := img.MatchSuppressions(nil, byPath)
	second := img.MatchSuppressions(nil, byPath)
	assert.True(t, first)
	assert.Equal(t, first, second)

	assert.False(t, img.MatchSuppressions(nil, map[string]struct{}{"/bin/ls": {}}))
}

func TestMatchSuppressionsChecksScriptPath(t *testing.T) {
	var cnt counters
	script := newImage(&cnt, "/tmp/evil.sh")
	interp := newImage(&cnt, "/bin/sh")
	interp.Script = script

	byPath := map[string]struct{}{"/tmp/evil.sh": {}}
	assert.True(t, interp.MatchSuppressions(nil, byPath))
}
