// Package config loads procmon's on-disk configuration: an ini-style
// file parsed with the teacher's own config-parsing dependency,
// translated into a procmon.Config, plus a file watcher that hot-swaps
// the suppression deny-lists without restarting the monitor (spec.md §6,
// SPEC_FULL.md §7 — a feature the distillation dropped but that the
// deny-lists' operational nature implies).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gravwell/gcfg"

	"github.com/xnumon-go/procmon/internal/procmon"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var (
	ErrConfigFileTooLarge = errors.New("config: file is too large")
	ErrInvalidKextLevel   = errors.New("config: invalid Kext-Level value")
	ErrInvalidHash        = errors.New("config: invalid Hash value")
)

// globalSection is the [Global] section of the ini file, one field per
// spec.md §6 knob plus the four deny-lists. Field names are gcfg's
// usual Title_Case-with-underscores convention, matching
// config.IngestConfig's own style in the teacher.
type globalSection struct {
	Ancestors         int64 // -1 means unbounded (procmon.AncestorsUnbounded)
	Kext_Level        string
	Hash              []string // subset of md5, sha1, sha256, sha512
	Codesign          bool
	Suppress_At_Start bool

	Suppress_By_Ident          []string
	Suppress_By_Path           []string
	Suppress_By_Ancestor_Ident []string
	Suppress_By_Ancestor_Path  []string

	Kern_Codesign_Skip_Path []string
}

// fileConfigRead is the raw gcfg-parsed shape, named distinctly from
// FileConfig the way the teacher's cfgReadType/cfgType pair separates
// "what gcfg produces" from "what the rest of the program uses", since
// gcfg requires exported fields that don't always match the nicer public
// shape callers want.
type fileConfigRead struct {
	Global globalSection
}

// FileConfig is the parsed, validated configuration, ready to be turned
// into a procmon.Config via ToCore.
type FileConfig struct {
	Ancestors       int64
	KextLevel       string
	Hash            []string
	Codesign        bool
	SuppressAtStart bool

	SuppressByIdent         []string
	SuppressByPath          []string
	SuppressByAncestorIdent []string
	SuppressByAncestorPath  []string

	KernCodesignSkipPath []string
}

// Load reads and parses path into a FileConfig. Mirrors
// config.LoadConfigFile's size-check-then-parse shape.
func Load(path string) (*FileConfig, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, ErrConfigFileTooLarge
	}

	buf := make([]byte, fi.Size())
	if _, err := io.ReadFull(fin, buf); err != nil {
		return nil, err
	}

	var cr fileConfigRead
	cr.Global.Ancestors = -1
	cr.Global.Kext_Level = "CSIG"
	cr.Global.Codesign = true
	cr.Global.Kern_Codesign_Skip_Path = []string{"/usr/libexec/xpcproxy", "/usr/sbin/ocspd"}

	if err := gcfg.ReadStringInto(&cr, string(buf)); err != nil {
		return nil, err
	}
	// gcfg appends repeated keys to a preset slice, so the Hash default is
	// applied only when the file names no Hash at all.
	if len(cr.Global.Hash) == 0 {
		cr.Global.Hash = []string{"sha256"}
	}

	fc := &FileConfig{
		Ancestors:               cr.Global.Ancestors,
		KextLevel:               cr.Global.Kext_Level,
		Hash:                    cr.Global.Hash,
		Codesign:                cr.Global.Codesign,
		SuppressAtStart:         cr.Global.Suppress_At_Start,
		SuppressByIdent:         cr.Global.Suppress_By_Ident,
		SuppressByPath:          cr.Global.Suppress_By_Path,
		SuppressByAncestorIdent: cr.Global.Suppress_By_Ancestor_Ident,
		SuppressByAncestorPath:  cr.Global.Suppress_By_Ancestor_Path,
		KernCodesignSkipPath:    cr.Global.Kern_Codesign_Skip_Path,
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FileConfig) validate() error {
	switch strings.ToUpper(fc.KextLevel) {
	case "NONE", "STAT", "HASH", "CSIG":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKextLevel, fc.KextLevel)
	}
	for _, h := range fc.Hash {
		switch strings.ToLower(h) {
		case "md5", "sha1", "sha256", "sha512":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidHash, h)
		}
	}
	return nil
}

// ToCore translates fc into the procmon.Config the monitor is
// constructed with.
func (fc *FileConfig) ToCore() procmon.Config {
	cfg := procmon.Config{
		Codesign:              fc.Codesign,
		SuppressAtStart:       fc.SuppressAtStart,
		KernCodesignSkipPaths: append([]string(nil), fc.KernCodesignSkipPath...),
		Suppressions:          fc.suppressions(),
	}

	if fc.Ancestors < 0 {
		cfg.Ancestors = procmon.AncestorsUnbounded
	} else {
		cfg.Ancestors = uint64(fc.Ancestors)
	}

	switch strings.ToUpper(fc.KextLevel) {
	case "NONE":
		cfg.KextLevel = procmon.KextLevelNone
	case "STAT":
		cfg.KextLevel = procmon.KextLevelStat
	case "HASH":
		cfg.KextLevel = procmon.KextLevelHash
	case "CSIG":
		cfg.KextLevel = procmon.KextLevelCSig
	}

	for _, h := range fc.Hash {
		switch strings.ToLower(h) {
		case "md5":
			cfg.HashFlags |= procmon.HashMD5
		case "sha1":
			cfg.HashFlags |= procmon.HashSHA1
		case "sha256":
			cfg.HashFlags |= procmon.HashSHA256
		case "sha512":
			cfg.HashFlags |= procmon.HashSHA512
		}
	}
	return cfg
}

func (fc *FileConfig) suppressions() procmon.Suppressions {
	return procmon.Suppressions{
		ByIdent:         toSet(fc.SuppressByIdent),
		ByPath:          toSet(fc.SuppressByPath),
		ByAncestorIdent: toSet(fc.SuppressByAncestorIdent),
		ByAncestorPath:  toSet(fc.SuppressByAncestorPath),
	}
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}
