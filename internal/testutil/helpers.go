package testutil

import (
	"io"
	"log/slog"
	"math/rand"
	"path"
	"testing"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/stretchr/testify/require"

	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// DiscardLogger returns a logger that drops everything, keeping test output
// readable.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mp4Header is a minimal ISO base media file header. Content sniffers
// recognize the ftyp box and report video/mp4.
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x1c, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	'm', 'p', '4', '1',
}

// MP4Bytes generates deterministic test data of the given size that sniffs
// as video/mp4. Sizes smaller than the header are truncated.
func MP4Bytes(size int) []byte {
	data := make([]byte, size)
	n := copy(data, mp4Header)
	r := rand.New(rand.NewSource(int64(size)))
	for i := n; i < size; i++ {
		data[i] = byte(r.Intn(256))
	}
	return data
}

// RandomBytes generates deterministic pseudo-random test data seeded by size.
func RandomBytes(size int) []byte {
	data := make([]byte, size)
	r := rand.New(rand.NewSource(int64(size)))
	for i := range data {
		data[i] = byte(r.Intn(256))
	}
	return data
}

// WriteTestFile writes data to the given path on the filesystem, creating
// parent directories as needed, and fails the test on error.
func WriteTestFile(t *testing.T, fsys fs.Filesystem, name string, data []byte) {
	t.Helper()
	if dir := path.Dir(name); dir != "." && dir != "/" {
		require.NoError(t, fsys.MkdirAll(dir, 0o755))
	}
	require.NoError(t, fsys.WriteFile(name, data, 0o644))
}

// WriteMP4File writes an MP4-sniffing test file of the given size and fails
// the test on error.
func WriteMP4File(t *testing.T, fsys fs.Filesystem, name string, size int) []byte {
	t.Helper()
	data := MP4Bytes(size)
	WriteTestFile(t, fsys, name, data)
	return data
}

// CollectUploadProgress drains an upload event channel until it closes and
// returns every event in order.
func CollectUploadProgress(ch <-chan mediatypes.UploadProgress) []mediatypes.UploadProgress {
	var events []mediatypes.UploadProgress
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

// CollectMergeProgress drains a merge event channel until it closes and
// returns every event in order.
func CollectMergeProgress(ch <-chan mediatypes.MergeProgress) []mediatypes.MergeProgress {
	var events []mediatypes.MergeProgress
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}
