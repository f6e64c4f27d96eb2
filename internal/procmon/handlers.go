/*************************************************************************
 * procmon - host process monitoring core
 *
 * Ported from xnumon's procmon.c (Copyright 2017-2018 Daniel Roethlisberger).
 **************************************************************************/

package procmon

import (
	"path/filepath"
	"time"
)

// Fork handles a fork notification (spec.md §4.4). The parent is
// resolved from the process table, reconstructed synchronously via §4.6
// if procmon never observed its birth. Any stale entry for childPID (a
// reused pid whose previous incarnation was never reaped) is dropped
// first.
func (m *Monitor) Fork(tv time.Time, subject Subject, childPID int) error {
	parent, ok := m.proctab.Find(subject.PID)
	if !ok {
		if _, err := m.reconstructProcess(subject.PID); err != nil {
			m.stat.missForkSubj.add(1)
			return err
		}
		parent, ok = m.proctab.Find(subject.PID)
		if !ok {
			m.stat.missForkSubj.add(1)
			return ErrProcessGone
		}
	}

	m.proctab.RemoveAndFree(childPID)
	m.prepq.RemoveExisting(childPID)

	child := m.proctab.Create(childPID, parent.ForkTime, subject, parent.Cwd())
	if cur := parent.Current(); cur != nil {
		child.setCurrent(cur)
	}
	return nil
}

// Spawn handles a posix_spawn notification: fork(subject->childPID)
// followed by exec(childPID, path, attr, argv, envv). The
// POSIX_SPAWN_SETEXEC variant is expected to arrive as a plain Exec call
// from the caller instead (spec.md §4.4).
func (m *Monitor) Spawn(tv time.Time, subject Subject, childPID int, path string, attr *Attr, argv, envv []string) error {
	if err := m.Fork(tv, subject, childPID); err != nil {
		return err
	}
	execSubject := subject
	execSubject.PID = childPID
	return m.Exec(tv, execSubject, path, attr, argv, envv)
}

// Exec handles a committed audit exec event (spec.md §4.4). It correlates
// against the prepq, resolves script/interpreter pairing, links the
// lineage, applies suppression-propagation, installs the new image as
// the process's current one, and submits it for further enrichment.
func (m *Monitor) Exec(tv time.Time, subject Subject, path string, attr *Attr, argv, envv []string) error {
	pid := subject.PID
	p, ok := m.proctab.Find(pid)
	if !ok {
		if _, err := m.reconstructProcess(pid); err != nil {
			m.stat.missExecSubj.add(1)
			return err
		}
		p, ok = m.proctab.Find(pid)
		if !ok {
			m.stat.missExecSubj.add(1)
			return ErrProcessGone
		}
	}

	matched, interp, found := m.prepq.Lookup(pid, attr, path, argv)
	var img *Image
	if found {
		img = matched
	} else {
		img = m.NewImage(path)
	}

	img.Open(attr)
	img.PID = pid
	img.Subject = subject
	img.ExecTime = tv
	img.Argv = argv
	img.Envv = envv
	img.Cwd = p.Cwd()

	if img.hasFlag(FlagShebang) {
		script := img
		var interpreter *Image
		if interp != nil {
			interpreter = interp
		} else {
			// XXX preserved as specified: if argv is unavailable for a
			// SHEBANG image, the exec is dropped rather than falling
			// back to the shebang line recorded in the script itself.
			if len(argv) == 0 {
				m.stat.missExecInterp.add(1)
				script.Free()
				return ErrInterpreterUnresolvable
			}
			interpPath := argv[0]
			if !filepath.IsAbs(interpPath) {
				cwd := p.Cwd()
				if cwd == "" {
					m.stat.missGetCwd.add(1)
					script.Free()
					return ErrInterpreterUnresolvable
				}
				interpPath = filepath.Join(cwd, interpPath)
			}
			interpreter = m.NewImage(interpPath)
			interpreter.PID = pid
			if err := interpreter.Open(nil); err != nil {
				interpreter.setFlag(FlagDone)
			} else {
				m.AcquireSync(interpreter)
			}
		}
		interpreter.Script = script
		img = interpreter
	}

	if prev := p.Current(); prev != nil {
		prev.Ref()
		img.Prev = prev
		if prev.hasFlag(FlagNoLogKids) {
			img.setFlag(FlagNoLog | FlagNoLogKids)
		}
	}
	supp := m.currentSuppressions()
	if !img.hasFlag(FlagNoLogKids) &&
		img.MatchSuppressions(supp.ByAncestorIdent, supp.ByAncestorPath) {
		img.setFlag(FlagNoLogKids)
	}

	p.setCurrent(img)
	img.Free() // release the extra reference setCurrent took
	m.enrichAsync(img)
	return nil
}

// Exit handles a process-exit notification: the process is removed from
// the table immediately (spec.md §4.4).
func (m *Monitor) Exit(tv time.Time, pid int) error {
	m.removeProcess(pid)
	return nil
}

// Wait handles a wait4 notification. Unlike Exit, the process may still
// be alive (a reaped zombie's pid can be briefly ambiguous under heavy
// forking); Wait probes liveness first and only removes the table entry
// if the process is actually gone.
func (m *Monitor) Wait(tv time.Time, pid int) error {
	if processAlive(pid) {
		return nil
	}
	m.removeProcess(pid)
	return nil
}

func (m *Monitor) removeProcess(pid int) {
	if p, ok := m.proctab.Remove(pid); ok {
		p.setCurrent(nil)
	}
	m.prepq.RemoveExisting(pid)
}

// Chdir handles a cwd-change notification, used only to resolve relative
// interpreter paths during shebang recovery (spec.md §4.4).
func (m *Monitor) Chdir(tv time.Time, pid int, path string) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		if _, err := m.reconstructProcess(pid); err != nil {
			m.stat.missChdirSubj.add(1)
			return err
		}
		p, ok = m.proctab.Find(pid)
		if !ok {
			m.stat.missChdirSubj.add(1)
			return ErrProcessGone
		}
	}
	p.setCwd(path)
	return nil
}

// KernPreexec handles the synchronous kernel pre-exec callback (spec.md
// §4.4): allocates an image, opens it, runs AcquireSync, and appends it
// to the prepq to await correlation with the audit exec event. Unlike
// Exec, path is not owned by this call — the caller may reuse it
// immediately after KernPreexec returns.
func (m *Monitor) KernPreexec(tv time.Time, pid int, path string) error {
	img := m.NewImage(path)
	img.PID = pid
	img.ExecTime = tv
	if err := img.Open(nil); err != nil {
		img.setFlag(FlagDone)
		img.Free()
		return nil
	}
	if err := m.AcquireSync(img); err != nil {
		m.logger.Debugf("KernPreexec(pid=%d): %v", pid, err)
	}
	m.prepq.Append(pid, img)
	return nil
}

// PreloadPID handles startup enumeration of already-running processes
// (spec.md §4.4, §4.6): reconstructs the process and, unless configured
// to suppress it, lets it be logged like any other exec.
func (m *Monitor) PreloadPID(pid int) error {
	img, err := m.reconstructProcess(pid)
	if err != nil {
		m.stat.missByPID.add(1)
		return err
	}
	if !m.cfg.SuppressAtStart {
		img.clearFlag(FlagNoLog)
		m.enrichAsync(img)
	}
	return nil
}
