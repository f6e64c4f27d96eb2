package procmon

// The socket/file descriptor side channels are auxiliary event sources
// spec.md §1 calls out as opaque to the core's contract, but
// SPEC_FULL.md §11 supplements them from xnumon's fd-tracking handlers
// since they're part of what a complete reimplementation needs to
// attribute socket and file activity to the correct Process.fdctx entry
// for later correlation (e.g. a socket connect preceded by an unresolved
// exec). They never touch the image-exec lineage directly.

// SocketCreate records that pid opened fd as a socket of the given
// description (e.g. "tcp", "udp", "unix").
func (m *Monitor) SocketCreate(pid, fd int, description string) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		return nil
	}
	p.trackFD(fd, description)
	return nil
}

// SocketBind records the local address a tracked socket fd was bound to,
// appended to its existing description.
func (m *Monitor) SocketBind(pid, fd int, localAddr string) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		return nil
	}
	if desc, ok := p.fdDesc(fd); ok {
		p.trackFD(fd, desc+" bind="+localAddr)
	}
	return nil
}

// SocketState records a connection-state transition (e.g. "connected",
// "closed") for a tracked socket fd.
func (m *Monitor) SocketState(pid, fd int, state string) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		return nil
	}
	if desc, ok := p.fdDesc(fd); ok {
		p.trackFD(fd, desc+" state="+state)
	}
	return nil
}

// FileOpen records that pid opened fd against path. Preserved as-is per
// spec.md §9 open question (c): silently returns when pid is unknown
// rather than reconstructing the process, inconsistent with every other
// handler but intentionally not "fixed" here.
func (m *Monitor) FileOpen(pid, fd int, path string) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		return nil
	}
	p.trackFD(fd, "file:"+path)
	return nil
}

// FDClose drops fd's tracked context for pid, if any.
func (m *Monitor) FDClose(pid, fd int) error {
	p, ok := m.proctab.Find(pid)
	if !ok {
		return nil
	}
	p.untrackFD(fd)
	return nil
}
