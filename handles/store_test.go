package handles

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory stand-in for the FTP adapter, keyed by remote
// path.
type fakeRemote struct {
	mu       sync.Mutex
	contents map[string][]byte
	uploads  map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{contents: map[string][]byte{}, uploads: map[string][]byte{}}
}

func (f *fakeRemote) Download(ctx context.Context, remote, local string) error {
	f.mu.Lock()
	data, ok := f.contents[remote]
	f.mu.Unlock()
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(local, data, 0o600)
}

func (f *fakeRemote) Upload(ctx context.Context, local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[remote] = append([]byte(nil), data...)
	f.contents[remote] = append([]byte(nil), data...)
	f.mu.Unlock()
	return nil
}

func newTestTable(t *testing.T) (*Table, *fakeRemote) {
	dir := t.TempDir()
	remote := newFakeRemote()
	return New(dir, remote), remote
}

func TestHandleUniqueness(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("x")

	var idxs []int
	for i := 0; i < MaxHandles; i++ {
		idx, err := table.Open(context.Background(), "/a", syscall.O_RDONLY, true)
		require.NoError(t, err)
		idxs = append(idxs, idx)
	}

	_, err := table.Open(context.Background(), "/a", syscall.O_RDONLY, true)
	assert.ErrorIs(t, err, ErrTooManyOpenFiles)

	require.NoError(t, table.Release(context.Background(), idxs[0]))

	_, err = table.Open(context.Background(), "/a", syscall.O_RDONLY, true)
	assert.NoError(t, err)
}

func TestWriteThenReleaseUploads(t *testing.T) {
	table, remote := newTestTable(t)

	idx, err := table.Open(context.Background(), "/new.txt", syscall.O_WRONLY|syscall.O_CREAT, false)
	require.NoError(t, err)

	n, err := table.Write(idx, []byte("hi"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, table.Release(context.Background(), idx))
	assert.Equal(t, []byte("hi"), remote.uploads["/new.txt"])
}

func TestReadOnlyOpenThenReleaseDoesNotUpload(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("hello")

	idx, err := table.Open(context.Background(), "/a", syscall.O_RDONLY, true)
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := table.Read(idx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, table.Release(context.Background(), idx))
	_, uploaded := remote.uploads["/a"]
	assert.False(t, uploaded)
}

func TestOverwriteTruncatesSpillBeforeWrite(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("OLD")

	idx, err := table.Open(context.Background(), "/a", syscall.O_WRONLY|syscall.O_TRUNC, true)
	require.NoError(t, err)

	h, ok := table.Get(idx)
	require.True(t, ok)
	info, err := os.Stat(h.SpillPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	_, err = table.Write(idx, []byte("NEW"), 0)
	require.NoError(t, err)
	require.NoError(t, table.Release(context.Background(), idx))
	assert.Equal(t, []byte("NEW"), remote.uploads["/a"])
}

func TestOpenCreateWithoutTruncOnExistingDownloadsFirst(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("existing")

	idx, err := table.Open(context.Background(), "/a", syscall.O_WRONLY|syscall.O_CREAT, true)
	require.NoError(t, err)

	h, ok := table.Get(idx)
	require.True(t, ok)
	data, err := os.ReadFile(h.SpillPath)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
	assert.False(t, h.IsNew())
}

func TestReadAdHocCleansUpSpill(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("ephemeral")

	buf := make([]byte, 9)
	n, err := table.ReadAdHoc(context.Background(), "/a", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "ephemeral", string(buf[:n]))

	entries, err := os.ReadDir(table.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpillFileRemovedOnRelease(t *testing.T) {
	table, remote := newTestTable(t)
	remote.contents["/a"] = []byte("x")

	idx, err := table.Open(context.Background(), "/a", syscall.O_RDONLY, true)
	require.NoError(t, err)
	h, _ := table.Get(idx)
	spill := h.SpillPath

	require.NoError(t, table.Release(context.Background(), idx))
	_, statErr := os.Stat(spill)
	assert.True(t, os.IsNotExist(statErr))
}
