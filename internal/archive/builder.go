// Package archive assembles the in-memory zip bundle uploaded by rotating
// backups and optionally encrypts it for AGE recipients.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/unicode/norm"
)

// ErrClosed is returned when entries are added after the archive was serialized.
var ErrClosed = errors.New("archive already serialized")

// Builder collects entries into a deflate-compressed zip held in memory.
type Builder struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	names   map[string]struct{}
	entries int
	closed  bool
	now     func() time.Time
}

// NewBuilder returns an empty archive.
func NewBuilder() *Builder {
	b := &Builder{
		names: make(map[string]struct{}),
		now:   time.Now,
	}
	b.zw = zip.NewWriter(&b.buf)
	return b
}

// AddEntry reads r completely and stores it under name. A read error leaves
// the archive unchanged.
func (b *Builder) AddEntry(name string, r io.Reader) error {
	if b.closed {
		return ErrClosed
	}
	name = entryName(name)
	if name == "" {
		return errors.New("archive entry name is empty")
	}
	if _, dup := b.names[name]; dup {
		return fmt.Errorf("duplicate archive entry %s", name)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	w, err := b.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: b.now(),
	})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	b.names[name] = struct{}{}
	b.entries++
	return nil
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return b.entries
}

// Bytes finalizes the archive and returns its serialized form. Further calls
// return the same bytes.
func (b *Builder) Bytes() ([]byte, error) {
	if !b.closed {
		if err := b.zw.Close(); err != nil {
			return nil, fmt.Errorf("finalize archive: %w", err)
		}
		b.closed = true
	}
	return b.buf.Bytes(), nil
}

// entryName flattens name to its base and normalizes it to NFC.
func entryName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return norm.NFC.String(base)
}
