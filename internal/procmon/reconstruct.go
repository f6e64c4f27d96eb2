package procmon

import (
	"github.com/xnumon-go/procmon/internal/sysinspect"
)

// reconstructProcess synthesizes a Process/Image pair for a pid procmon
// never observed fork or exec directly — either it predates the monitor
// (PreloadPID at startup) or an event was dropped. It uses the OS
// inspector collaborator rather than the audit event streams, and marks
// the resulting Image with FlagPIDLookup so callers and the sink can
// distinguish a reconstructed record from one built from direct
// observation (spec.md §4.6, procmon_proc_from_pid / image_exec_from_pid
// in procmon.c, renamed per SPEC_FULL.md §11).
func (m *Monitor) reconstructProcess(pid int) (*Image, error) {
	info, err := m.inspector.Inspect(pid)
	if err != nil {
		if err == sysinspect.ErrNotFound {
			return nil, ErrProcessGone
		}
		return nil, err
	}

	p, created := m.proctab.FindOrCreate(pid, info.ForkTime, Subject{PID: pid}, info.Cwd)
	if !created {
		if img := p.Current(); img != nil {
			return img, nil
		}
	}

	img := m.NewImage(info.Path)
	img.NoPath = info.NoPath
	img.PID = pid
	img.Subject = Subject{PID: pid}
	img.ExecTime = info.ForkTime
	img.Cwd = info.Cwd
	// NOLOG by default: reconstruction is usually filling in lineage for
	// another image's Prev slot, not itself meant to be emitted. Callers
	// that do want it logged (PreloadPID, when not suppressed) clear it.
	img.setFlag(FlagPIDLookup | FlagNoLog)
	if pid == 0 {
		img.setFlag(FlagNoLog)
	}

	if info.PPID >= 0 && info.PPID != pid {
		if parent, ok := m.proctab.Find(info.PPID); ok {
			if pimg := parent.Current(); pimg != nil {
				pimg.Ref()
				img.Prev = pimg
			}
		} else if parentImg, err := m.reconstructProcess(info.PPID); err == nil {
			parentImg.Ref()
			img.Prev = parentImg
		}
	}

	if err := m.AcquireSync(img); err != nil {
		m.logger.Debugf("reconstructProcess(%d): acquire: %v", pid, err)
	}

	p.setCurrent(img)
	img.Free() // setCurrent took its own reference
	return p.Current(), nil
}
