// Package hashes computes the configurable subset of content hashes
// procmon attaches to an executable image (spec.md §3, §4.1 Acquire step
// 3). Algorithms are standard-library cryptographic hashes; there is no
// ecosystem replacement for fixed digest algorithms like these.
package hashes

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"
)

// Flags selects which digests Compute produces. Mirrors
// procmon.Config.HashFlags without importing the procmon package, keeping
// this a leaf dependency.
type Flags uint32

const (
	MD5 Flags = 1 << iota
	SHA1
	SHA256
	SHA512
)

// Tuple holds the computed digests; a nil slice means that algorithm was
// not requested.
type Tuple struct {
	MD5    []byte
	SHA1   []byte
	SHA256 []byte
	SHA512 []byte
}

// Compute reads r to EOF, computing every hash flags selects in a single
// pass via io.MultiWriter, and returns the number of bytes read alongside
// the tuple. Mirrors hashes_fd's single-pass-over-the-fd shape.
func Compute(flags Flags, r io.Reader) (n int64, t Tuple, err error) {
	var writers []io.Writer
	var md5h, sha1h, sha256h, sha512h hash.Hash

	if flags&MD5 != 0 {
		md5h = md5.New()
		writers = append(writers, md5h)
	}
	if flags&SHA1 != 0 {
		sha1h = sha1.New()
		writers = append(writers, sha1h)
	}
	if flags&SHA256 != 0 {
		sha256h = sha256.New()
		writers = append(writers, sha256h)
	}
	if flags&SHA512 != 0 {
		sha512h = sha512.New()
		writers = append(writers, sha512h)
	}
	if len(writers) == 0 {
		return 0, Tuple{}, nil
	}

	n, err = io.Copy(io.MultiWriter(writers...), r)
	if err != nil {
		return n, Tuple{}, err
	}

	if md5h != nil {
		t.MD5 = md5h.Sum(nil)
	}
	if sha1h != nil {
		t.SHA1 = sha1h.Sum(nil)
	}
	if sha256h != nil {
		t.SHA256 = sha256h.Sum(nil)
	}
	if sha512h != nil {
		t.SHA512 = sha512h.Sum(nil)
	}
	return n, t, nil
}
