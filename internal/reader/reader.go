// Package reader opens log byte streams with transparent decompression and
// tar-archive traversal.
//
// Gzip is detected by extension or by magic bytes, so mislabeled streams
// (a common artifact of log servers) still decompress. Tarballs, including
// tar.gz and tarballs nested inside tarballs, are walked member by member;
// each regular member is presented as a virtual stream named `outer!inner`.
package reader

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DefaultMaxTarDepth bounds recursion into nested tarballs.
const DefaultMaxTarDepth = 2

var gzipMagic = []byte{0x1f, 0x8b}

// Open opens a local file with transparent gzip decompression. The caller
// must Close the result.
func Open(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	r, err := Decompress(p, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &decompressCloser{Reader: r, closer: f}, nil
}

// Decompress wraps r with a gzip reader when the name or the magic bytes say
// the stream is compressed. The returned reader is valid only as long as r.
func Decompress(name string, r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 8192)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	gzipped := strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".tgz") ||
		(len(magic) == 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1])
	if !gzipped {
		return br, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", name, err)
	}
	return zr, nil
}

type decompressCloser struct {
	io.Reader
	closer io.Closer
}

func (d *decompressCloser) Close() error { return d.closer.Close() }

// IsTarball reports whether the name looks like a tar archive.
func IsTarball(name string) bool {
	return strings.HasSuffix(name, ".tar") ||
		strings.HasSuffix(name, ".tar.gz") ||
		strings.HasSuffix(name, ".tgz")
}

// WalkTar streams every regular member of the (possibly compressed) tar
// archive read from r. Member streams are named `name!memberPath`; nested
// tarballs are recursed into up to maxDepth levels. Members rejected by skip
// are not opened. fn errors abort the walk.
func WalkTar(name string, r io.Reader, maxDepth int, skip func(string) bool, fn func(member string, r io.Reader) error) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTarDepth
	}
	return walkTar(name, r, maxDepth, skip, fn)
}

func walkTar(name string, r io.Reader, depth int, skip func(string) bool, fn func(member string, r io.Reader) error) error {
	dr, err := Decompress(name, r)
	if err != nil {
		return err
	}
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar %s: %w", name, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		member := name + "!" + path.Clean(hdr.Name)
		if skip != nil && skip(hdr.Name) {
			continue
		}
		if IsTarball(hdr.Name) && depth > 1 {
			if err := walkTar(member, tr, depth-1, skip, fn); err != nil {
				return err
			}
			continue
		}
		mr, err := Decompress(hdr.Name, tr)
		if err != nil {
			// A corrupt member does not abort its siblings.
			continue
		}
		if err := fn(member, mr); err != nil {
			return err
		}
	}
}

// defaultSkipPrefixes are path prefixes that never contain useful log text.
var defaultSkipPrefixes = []string{
	"proc/", "/proc/",
	"sys/", "/sys/",
	"var/lib/selinux/", "/var/lib/selinux/",
	"var/lib/systemd/coredump/", "/var/lib/systemd/coredump/",
}

// DefaultSkip rejects hidden files, pseudo filesystems, selinux stores,
// java archives, and systemd coredumps.
func DefaultSkip(name string) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, ".jar") {
		return true
	}
	if strings.HasPrefix(base, "core.") {
		return true
	}
	for _, prefix := range defaultSkipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
