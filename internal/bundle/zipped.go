package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
)

// ZippedBundle indexes the payload entries of a ZIP container. The central
// directory is parsed once at construction and again after each successful
// Put, so lookups resolve through an in-memory entry table instead of
// re-walking the container. Replacement rewrites the whole container into a
// temporary file and swaps it over the original with a single rename, so
// the backing file always holds either the old or the new content.
type ZippedBundle struct {
	src  source
	zr   *zip.Reader
	keys map[string]*zip.File
}

var _ Bundle = (*ZippedBundle)(nil)

// OpenZipped opens the container at path. The bundle owns the resulting
// file handle; payloads can be replaced in place while the file is writable.
func OpenZipped(path string) (*ZippedBundle, error) {
	src, err := openFileSource(path)
	if err != nil {
		return nil, err
	}

	b := &ZippedBundle{src: src}
	if err := b.scan(); err != nil {
		src.Close()
		return nil, err
	}
	return b, nil
}

// NewZippedFromStream indexes a container supplied as a stream. The caller
// keeps ownership of r; the resulting bundle is always read-only.
func NewZippedFromStream(r io.Reader) (*ZippedBundle, error) {
	src, err := bufferStream(r)
	if err != nil {
		return nil, err
	}

	b := &ZippedBundle{src: src}
	if err := b.scan(); err != nil {
		return nil, err
	}
	return b, nil
}

// scan parses the central directory and rebuilds the key set from scratch.
func (b *ZippedBundle) scan() error {
	zr, err := zip.NewReader(b.src, b.src.Size())
	if err != nil {
		return fmt.Errorf("parsing container directory: %w", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	keys := make(map[string]*zip.File)
	for _, f := range zr.File {
		if !IsPayloadName(f.Name) {
			continue
		}
		if _, ok := keys[f.Name]; ok {
			// first entry wins for duplicate names
			continue
		}
		keys[f.Name] = f
	}

	b.zr = zr
	b.keys = keys

	slog.Debug("Indexed container", "path", b.src.Path(), "entries", len(zr.File), "keys", len(keys))
	return nil
}

// Len returns the number of currently indexed keys.
func (b *ZippedBundle) Len() int {
	return len(b.keys)
}

// Keys returns a sorted snapshot of the current key set.
func (b *ZippedBundle) Keys() []string {
	keys := make([]string, 0, len(b.keys))
	for k := range b.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Openable extracts the payload stored under key into memory. The returned
// reader is a detached copy with no further tie to the bundle.
func (b *ZippedBundle) Openable(key string) (*bytes.Reader, bool, error) {
	f, ok := b.keys[key]
	if !ok {
		return nil, false, nil
	}

	rc, err := f.Open()
	if err != nil {
		return nil, false, fmt.Errorf("opening entry %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("extracting entry %s: %w", key, err)
	}

	return bytes.NewReader(data), true, nil
}

// All extracts every payload, one lookup per key.
func (b *ZippedBundle) All() (map[string]*bytes.Reader, error) {
	all := make(map[string]*bytes.Reader, len(b.keys))
	for _, key := range b.Keys() {
		r, ok, err := b.Openable(key)
		if err != nil {
			return nil, err
		}
		if ok {
			all[key] = r
		}
	}
	return all, nil
}

// Extension identifies the backing container format.
func (b *ZippedBundle) Extension() string {
	return "zip"
}

// ReadOnly reports whether the backing storage rejects replacement. Stream
// bundles have no backing file and are always read-only.
func (b *ZippedBundle) ReadOnly() bool {
	fs, ok := b.src.(*fileSource)
	return !ok || !fs.writable()
}

// Put replaces the payload of an existing key. The whole container is
// rewritten into a temporary file next to the original, with every
// non-target entry copied through raw, then renamed over the original in
// one step. On success the bundle reopens and re-indexes the new file.
func (b *ZippedBundle) Put(key string, payload io.Reader) (bool, error) {
	if key == "" || b.ReadOnly() {
		return false, nil
	}
	if _, ok := b.keys[key]; !ok {
		// replace only, never add
		return false, nil
	}

	data, err := io.ReadAll(payload)
	if err != nil {
		return false, fmt.Errorf("reading replacement payload: %w", err)
	}

	path := b.src.Path()
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("creating temporary container: %w", err)
	}
	tmpPath := tmp.Name()

	if err := b.rewrite(tmp, key, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("closing temporary container: %w", err)
	}

	// Release the read handle before swapping the new container in. The
	// rename is atomic, so the path always resolves to either the old or
	// the new content.
	if err := b.src.Close(); err != nil {
		os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		if rerr := b.reload(); rerr != nil {
			slog.Warn("Failed to reopen container after aborted replace", "path", path, "error", rerr)
		}
		return false, fmt.Errorf("replacing container %s: %w", path, err)
	}

	if err := b.reload(); err != nil {
		return false, err
	}

	slog.Debug("Replaced payload", "path", path, "key", key, "size", len(data))
	return true, nil
}

// rewrite copies the container into w, substituting data for entries named
// key. Non-target entries keep their raw byte spans and metadata.
func (b *ZippedBundle) rewrite(w io.Writer, key string, data []byte) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	for _, f := range b.zr.File {
		if f.Name != key {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying entry %s: %w", f.Name, err)
			}
			continue
		}

		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
			Comment:  f.Comment,
		}
		hdr.SetMode(f.Mode())

		ew, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("writing entry header %s: %w", key, err)
		}
		if _, err := ew.Write(data); err != nil {
			return fmt.Errorf("writing replacement payload %s: %w", key, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing container rewrite: %w", err)
	}
	return nil
}

// reload re-acquires the backing file and rebuilds the key set.
func (b *ZippedBundle) reload() error {
	if err := b.src.Reopen(); err != nil {
		return err
	}
	return b.scan()
}

// Close releases the handle the bundle owns, if any.
func (b *ZippedBundle) Close() error {
	return b.src.Close()
}
