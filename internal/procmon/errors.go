/*************************************************************************
 * procmon - host process monitoring core
 *
 * Ported from xnumon's procmon.c (Copyright 2017-2018 Daniel Roethlisberger).
 **************************************************************************/

package procmon

import "errors"

// Error kinds from spec.md §7. Handlers (Fork, Exec, Chdir, Spawn,
// PreloadPID) and ImageByPID return them to their caller; the miss cases
// are also counted in Stats. Returning one has no other effect on the
// event producer.
var (
	ErrOOM                     = errors.New("procmon: out of memory")
	ErrProcessGone             = errors.New("procmon: process no longer exists")
	ErrEnrichmentFailed        = errors.New("procmon: enrichment I/O failed")
	ErrAttrMismatch            = errors.New("procmon: file attributes changed mid-enrichment")
	ErrCorrelationMiss         = errors.New("procmon: no prepq match for exec")
	ErrInterpreterUnresolvable = errors.New("procmon: shebang interpreter could not be resolved")
)
