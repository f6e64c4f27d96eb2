package procmon

import (
	"os"
	"syscall"
	"time"
)

// statFD converts an open file's stat(2) result into a FileStat,
// pulling the platform-specific (dev, ino, ctime) triple out of
// syscall.Stat_t the way image_exec_open does via the raw struct stat.
// btime (file creation time) has no portable syscall.Stat_t field on
// Linux, so it is approximated with ctime there; platforms that expose
// it (macOS, BSD) would wire Birthtimespec in here instead.
func statFD(f *os.File) (FileStat, error) {
	fi, err := f.Stat()
	if err != nil {
		return FileStat{}, err
	}
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return FileStat{}, ErrEnrichmentFailed
	}
	ctime := time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
	return FileStat{
		Mode:  uint32(fi.Mode().Perm()) | modeTypeBits(fi.Mode()),
		UID:   int(sys.Uid),
		GID:   int(sys.Gid),
		Dev:   uint64(sys.Dev),
		Ino:   uint64(sys.Ino),
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
		Ctime: ctime,
		Btime: ctime,
	}, nil
}

// statFromFileInfo converts a non-fd-backed os.FileInfo (from os.Stat) the
// same way statFD does, for the by-path re-stat codesign.computeSignature
// performs after verification (the file may no longer be open by then).
func statFromFileInfo(fi os.FileInfo) (FileStat, error) {
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return FileStat{}, ErrEnrichmentFailed
	}
	ctime := time.Unix(sys.Ctim.Sec, sys.Ctim.Nsec)
	return FileStat{
		Mode:  uint32(fi.Mode().Perm()) | modeTypeBits(fi.Mode()),
		UID:   int(sys.Uid),
		GID:   int(sys.Gid),
		Dev:   uint64(sys.Dev),
		Ino:   uint64(sys.Ino),
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
		Ctime: ctime,
		Btime: ctime,
	}, nil
}

func modeTypeBits(m os.FileMode) uint32 {
	if m.IsDir() {
		return 1 << 31
	}
	return 0
}
