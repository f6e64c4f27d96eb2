package procmon

import "sync/atomic"

// counter is a thin wrapper over atomic.Int64 so statCounters' fields
// read as plain values in Monitor.Stats rather than a wall of
// m.stat.x.Load() repetition.
type counter struct{ v atomic.Int64 }

func (c *counter) add(delta int64) { c.v.Add(delta) }
func (c *counter) get() int64      { return c.v.Load() }

// Stats is a point-in-time snapshot of the counters spec.md §6's stats()
// requires: process count, live images, live-acquisitions, miss counters
// by cause, OOM count, and the prepq's own lookups/misses/drops/skips/size.
type Stats struct {
	Procs   int64
	Images  int64
	LiveAcq int64

	MissByPID      int64 // reconstruction failed: pid already gone
	MissForkSubj   int64 // fork's subject process could not be resolved
	MissExecSubj   int64 // exec's subject process could not be resolved
	MissExecInterp int64 // shebang script exec with no usable argv
	MissChdirSubj  int64 // chdir's subject process could not be resolved
	MissGetCwd     int64 // relative interpreter path with no known cwd

	OOMs int64

	PrepqLookups int64
	PrepqMisses  int64
	PrepqDrops   int64
	PrepqSkips   int64
	PrepqSize    int64
}
