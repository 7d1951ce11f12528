package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	name   string
	data   []byte
	method uint16
}

// defaultEntries mirrors the canonical mixed container: two payloads and
// one entry the whitelist must skip.
func defaultEntries() []testEntry {
	return []testEntry{
		{name: "a.swf", data: []byte("flash payload a"), method: zip.Deflate},
		{name: "b.txt", data: []byte("plain text, not a payload"), method: zip.Store},
		{name: "c.abc", data: []byte("actionscript bytecode c"), method: zip.Deflate},
	}
}

func writeContainer(tb testing.TB, path string, entries []testEntry) {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		require.NoError(tb, err)
		_, err = w.Write(e.data)
		require.NoError(tb, err)
	}
	require.NoError(tb, zw.Close())
	require.NoError(tb, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestContainer(tb testing.TB, entries []testEntry) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "movies.zip")
	writeContainer(tb, path, entries)
	return path
}

// rawEntry captures an entry's compressed byte span plus the directory
// metadata that must survive a rewrite untouched.
type rawEntry struct {
	raw    []byte
	crc    uint32
	size   uint64
	method uint16
}

func readRawEntries(tb testing.TB, path string) map[string]rawEntry {
	tb.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(tb, err)
	defer zr.Close()

	out := make(map[string]rawEntry, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.OpenRaw()
		require.NoError(tb, err)
		raw, err := io.ReadAll(rc)
		require.NoError(tb, err)
		out[f.Name] = rawEntry{
			raw:    raw,
			crc:    f.CRC32,
			size:   f.UncompressedSize64,
			method: f.Method,
		}
	}
	return out
}

func TestOpenZippedFiltersKeys(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []string{"a.swf", "c.abc"}, b.Keys())
	assert.Equal(t, "zip", b.Extension())
	assert.False(t, b.ReadOnly())
}

func TestExtensionMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	entries := []testEntry{
		{name: "UPPER.SWF", data: []byte("upper"), method: zip.Deflate},
		{name: "mixed.GfX", data: []byte("mixed"), method: zip.Deflate},
		{name: "shockwave.spl", data: []byte("spl"), method: zip.Deflate},
		{name: "notes.md", data: []byte("skip"), method: zip.Store},
	}

	b, err := OpenZipped(newTestContainer(t, entries))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"UPPER.SWF", "mixed.GfX", "shockwave.spl"}, b.Keys())
}

func TestContainerWithoutPayloadsIsEmptyNotError(t *testing.T) {
	t.Parallel()

	entries := []testEntry{
		{name: "readme.txt", data: []byte("nothing to see"), method: zip.Store},
	}

	b, err := OpenZipped(newTestContainer(t, entries))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Keys())
}

func TestOpenableReturnsPayloadBytes(t *testing.T) {
	t.Parallel()

	entries := defaultEntries()
	b, err := OpenZipped(newTestContainer(t, entries))
	require.NoError(t, err)
	defer b.Close()

	for _, e := range entries {
		if !IsPayloadName(e.name) {
			continue
		}
		r, ok, err := b.Openable(e.name)
		require.NoError(t, err)
		require.True(t, ok)

		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, e.data, data)
	}
}

func TestOpenableAbsent(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)
	defer b.Close()

	for _, key := range []string{"missing.swf", "b.txt", ""} {
		r, ok, err := b.Openable(key)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, r)
	}
}

func TestOpenableIsDetachedCopy(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)

	r, ok, err := b.Openable("a.swf")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, b.Close())

	// the extracted reader survives the bundle
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("flash payload a"), data)
}

func TestAllMatchesIndividualLookups(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)
	defer b.Close()

	all, err := b.All()
	require.NoError(t, err)
	require.Len(t, all, b.Len())

	for _, key := range b.Keys() {
		r, ok := all[key]
		require.True(t, ok, "All missing key %s", key)
		got, err := io.ReadAll(r)
		require.NoError(t, err)

		want, ok, err := b.Openable(key)
		require.NoError(t, err)
		require.True(t, ok)
		wantData, err := io.ReadAll(want)
		require.NoError(t, err)

		assert.Equal(t, wantData, got)
	}
}

func TestPutRoundTrip(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())
	before := readRawEntries(t, path)

	b, err := OpenZipped(path)
	require.NoError(t, err)
	defer b.Close()

	replacement := []byte("entirely new flash payload bytes")
	ok, err := b.Put("a.swf", bytes.NewReader(replacement))
	require.NoError(t, err)
	require.True(t, ok)

	r, ok, err := b.Openable("a.swf")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, replacement, got)

	// membership is invariant across replacement
	assert.Equal(t, []string{"a.swf", "c.abc"}, b.Keys())

	// non-target entries stay byte-identical at the format level
	after := readRawEntries(t, path)
	require.Len(t, after, len(before))
	for name, want := range before {
		if name == "a.swf" {
			continue
		}
		assert.Equal(t, want, after[name], "entry %s changed", name)
	}
}

func TestPutPreconditionFailures(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	b, err := OpenZipped(path)
	require.NoError(t, err)
	defer b.Close()

	for _, key := range []string{"missing.swf", "b.txt", ""} {
		ok, err := b.Put(key, bytes.NewReader([]byte("data")))
		require.NoError(t, err)
		assert.False(t, ok, "Put(%q) should fail its precondition", key)
	}

	// storage untouched, no temporary file left behind
	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, current)

	names, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, filepath.Base(path), names[0].Name())
}

func TestPutOnStreamBundleIsRejected(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	b, err := NewZippedFromStream(f)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.ReadOnly())

	ok, err := b.Put("a.swf", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOnUnwritableFileIsRejected(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permission bits")
	}

	path := newTestContainer(t, defaultEntries())
	require.NoError(t, os.Chmod(path, 0o444))

	b, err := OpenZipped(path)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.ReadOnly())

	ok, err := b.Put("a.swf", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutKeepsRawEntryCount(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())

	b, err := OpenZipped(path)
	require.NoError(t, err)
	defer b.Close()

	ok, err := b.Put("c.abc", bytes.NewReader([]byte("new bytecode")))
	require.NoError(t, err)
	require.True(t, ok)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	// still 3 raw entries: b.txt is skipped by the index, never dropped
	assert.Len(t, zr.File, 3)
}

func TestRepeatedPuts(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)
	defer b.Close()

	for _, payload := range [][]byte{
		[]byte("first rewrite"),
		[]byte("second rewrite"),
		{},
	} {
		ok, err := b.Put("a.swf", bytes.NewReader(payload))
		require.NoError(t, err)
		require.True(t, ok)

		r, ok, err := b.Openable("a.swf")
		require.NoError(t, err)
		require.True(t, ok)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestStreamBundleKeysAndExtraction(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	b, err := NewZippedFromStream(bytes.NewReader(data))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"a.swf", "c.abc"}, b.Keys())

	r, ok, err := b.Openable("c.abc")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("actionscript bytecode c"), got)
}

func TestKeysReturnsSnapshot(t *testing.T) {
	t.Parallel()

	b, err := OpenZipped(newTestContainer(t, defaultEntries()))
	require.NoError(t, err)
	defer b.Close()

	keys := b.Keys()
	keys[0] = "clobbered"

	assert.Equal(t, []string{"a.swf", "c.abc"}, b.Keys())
}

func TestExternalTruncationSurfacesAsError(t *testing.T) {
	t.Parallel()

	path := newTestContainer(t, defaultEntries())

	b, err := OpenZipped(path)
	require.NoError(t, err)
	defer b.Close()

	// An external writer clobbering the container mid-session surfaces as
	// a read error on the next extraction, never as a silent absence.
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, _, err = b.Openable("a.swf")
	assert.Error(t, err)
}

func TestOpenZippedMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenZipped(filepath.Join(t.TempDir(), "absent.zip"))
	require.Error(t, err)
}

func TestOpenZippedMalformedContainer(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip file"), 0o644))

	_, err := OpenZipped(path)
	require.Error(t, err)
}
