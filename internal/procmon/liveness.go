package procmon

import "golang.org/x/sys/unix"

// processAlive probes pid with a zero signal (kill(pid, 0)), the
// standard liveness check: it succeeds if the process exists and is
// visible to this process's credentials, without actually signaling it.
// Used by Wait to distinguish "already reaped elsewhere" from "still
// running" before removing the process-table entry (spec.md §4.4).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
