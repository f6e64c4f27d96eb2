package procmon

// FlagSet mirrors the EIFLAG_* bitset in procmon.c. Flags here are set
// once and not cleared again, with one exception: PreloadPID clears
// NoLog on a reconstructed image it wants logged. (An attr-mismatch
// during hashing leaves HASHES unset rather than clearing it.) The
// STAT-vs-ATTR "how did we get file attributes" distinction is its own
// sum type, AttrSource, below, per spec.md §9's design note.
type FlagSet uint32

const (
	FlagHashes     FlagSet = 1 << iota // content hashes computed and valid
	FlagShebang                        // first two bytes of file are "#!"
	FlagDone                           // enrichment reached a terminal state
	FlagNoPath                         // path is a synthetic <pid> placeholder
	FlagNoLog                          // do not hand this image to the sink
	FlagNoLogKids                      // propagate NoLog to every descendant image
	FlagPIDLookup                      // image was synthesized via OS introspection
	FlagENOMEM                         // an enrichment stage failed due to OOM
)

func (f FlagSet) Has(bit FlagSet) bool { return f&bit != 0 }

func (f *FlagSet) Set(bit FlagSet)   { *f |= bit }
func (f *FlagSet) Clear(bit FlagSet) { *f &^= bit }

// AttrSource records how an image's file-attribute snapshot was obtained:
// by opening and stat(2)-ing the file itself, or by falling back to the
// attributes carried on the audit exec event because the two disagreed
// (or the path could no longer be opened). Replaces the mutually
// exclusive EIFLAG_STAT / EIFLAG_ATTR pair.
type AttrSource int

const (
	AttrSourceNone AttrSource = iota
	AttrSourceByFD
	AttrSourceByEvent
)
