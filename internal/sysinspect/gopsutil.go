package sysinspect

import (
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilInspector realizes sys_pidpath/sys_pidbsdinfo/sys_pidcwd from
// procmon.c via github.com/shirou/gopsutil/v3/process, which already
// abstracts the platform-specific process-introspection syscalls the C
// source hand-rolled for macOS (proc_pidpath, proc_pidinfo, proc_pidcwd).
type GopsutilInspector struct{}

func (GopsutilInspector) Inspect(pid int) (Info, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Info{}, ErrNotFound
	}

	var info Info

	if exe, err := proc.Exe(); err == nil {
		info.Path = exe
	} else {
		info.NoPath = true
	}

	if createMs, err := proc.CreateTime(); err == nil {
		info.ForkTime = msToTime(createMs)
	} else {
		return Info{}, ErrNotFound
	}

	if ppid, err := proc.Ppid(); err == nil {
		info.PPID = int(ppid)
	} else {
		info.PPID = -1
	}

	if cwd, err := proc.Cwd(); err == nil {
		info.Cwd = cwd
	} else {
		return Info{}, ErrNotFound
	}

	return info, nil
}

// ListPids enumerates every pid currently visible on the system, for
// procmond's startup preload enumeration (spec.md §4.4 PreloadPID is
// "called for each already-running pid" — something has to produce that
// list; the teacher's own process-introspection collaborator is the
// natural source).
func ListPids() ([]int, error) {
	pids, err := process.Pids()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(pids))
	for i, p := range pids {
		out[i] = int(p)
	}
	return out, nil
}
