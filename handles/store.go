package handles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
)

// ErrTooManyOpenFiles is returned by Open when the table is full.
var ErrTooManyOpenFiles = errors.New("too many open files")

// ErrBadFileDescriptor is returned by operations against a handle index
// that does not name a live handle.
var ErrBadFileDescriptor = errors.New("bad file descriptor")

// MaxHandles bounds the number of simultaneously open handles.
const MaxHandles = 1024

// Remote is the subset of the FTP adapter the handle store needs: whole-file
// transfer against a local path. It is an interface so tests can supply a
// fake without a live FTP server.
type Remote interface {
	Download(ctx context.Context, remote, local string) error
	Upload(ctx context.Context, local, remote string) error
}

// Table is the process-wide fixed-size array of handle slots, indexed by
// the small integer handed back to the kernel binding as the opaque file
// handle.
type Table struct {
	tempDir string
	remote  Remote

	lock  sync.Mutex
	slots [MaxHandles]*Handle
}

// New returns an empty handle table rooted at tempDir, using remote for
// priming and release uploads.
func New(tempDir string, remote Remote) *Table {
	return &Table{tempDir: tempDir, remote: remote}
}

// Open allocates a handle for remotePath with the given POSIX open flags.
// exists reports whether the caller has already established (typically via
// the directory cache) that remotePath names an existing remote file; this
// resolves the ambiguity of O_CREAT without O_TRUNC against a name the
// caller has not yet confirmed is absent (spec's open-on-existing-file
// question): when exists is true the handle is always primed by
// downloading, regardless of O_CREAT.
func (t *Table) Open(ctx context.Context, remotePath string, flags int, exists bool) (int, error) {
	t.lock.Lock()
	idx := -1
	for i, h := range t.slots {
		if h == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.lock.Unlock()
		return 0, ErrTooManyOpenFiles
	}

	spill := newSpillPath(t.tempDir, time.Now())
	f, err := os.OpenFile(spill, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		t.lock.Unlock()
		return 0, fmt.Errorf("create spill: %w", err)
	}
	f.Close()

	h := &Handle{
		RemotePath: remotePath,
		SpillPath:  spill,
		Flags:      flags,
	}
	t.slots[idx] = h
	t.lock.Unlock()

	creatingFresh := flags&syscall.O_CREAT != 0 && flags&syscall.O_TRUNC == 0 && !exists
	if creatingFresh {
		h.mu.Lock()
		h.isNew = true
		h.state = stateEmpty
		h.mu.Unlock()
		return idx, nil
	}

	if err := t.remote.Download(ctx, remotePath, spill); err != nil {
		t.lock.Lock()
		t.slots[idx] = nil
		t.lock.Unlock()
		_ = os.Remove(spill)
		return 0, err
	}

	// O_TRUNC always yields an empty file on successful open, regardless
	// of what priming downloaded.
	if flags&syscall.O_TRUNC != 0 {
		if err := os.Truncate(spill, 0); err != nil {
			t.lock.Lock()
			t.slots[idx] = nil
			t.lock.Unlock()
			_ = os.Remove(spill)
			return 0, err
		}
	}

	h.mu.Lock()
	h.state = statePrimed
	h.mu.Unlock()
	return idx, nil
}

// Get returns the handle at idx, or ok=false if the slot is not live. The
// table lock is held only long enough to copy the pointer.
func (t *Table) Get(idx int) (h *Handle, ok bool) {
	if idx < 0 || idx >= MaxHandles {
		return nil, false
	}
	t.lock.Lock()
	h = t.slots[idx]
	t.lock.Unlock()
	return h, h != nil
}

// Write writes to the live handle at idx.
func (t *Table) Write(idx int, buf []byte, offset int64) (int, error) {
	h, ok := t.Get(idx)
	if !ok {
		return 0, ErrBadFileDescriptor
	}
	n, err := h.WriteAt(buf, offset)
	if err == nil {
		h.markDirty()
	}
	return n, err
}

// Read reads from the live handle at idx.
func (t *Table) Read(idx int, buf []byte, offset int64) (int, error) {
	h, ok := t.Get(idx)
	if !ok {
		return 0, ErrBadFileDescriptor
	}
	return h.ReadAt(buf, offset)
}

// ReadAdHoc serves a read against a remote path with no live handle: the
// file is downloaded to a one-off spill, read, and the spill is removed
// unconditionally before returning.
func (t *Table) ReadAdHoc(ctx context.Context, remotePath string, buf []byte, offset int64) (int, error) {
	spill := newSpillPath(t.tempDir, time.Now())
	defer os.Remove(spill)
	if err := t.remote.Download(ctx, remotePath, spill); err != nil {
		return 0, err
	}

	f, err := os.Open(spill)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := f.ReadAt(buf, offset)
	if err != nil && n > 0 {
		return n, nil
	}
	return n, err
}

// Release uploads the spill if the handle is dirty or was created fresh,
// then destroys the handle regardless of upload outcome. The caller is
// responsible for invalidating the parent directory in the cache on
// success; Release reports the upload error (if any) so the caller can log
// it, per the "swallowed upload failure" design note.
func (t *Table) Release(ctx context.Context, idx int) error {
	h, ok := t.Get(idx)
	if !ok {
		return ErrBadFileDescriptor
	}

	t.lock.Lock()
	t.slots[idx] = nil
	t.lock.Unlock()

	var uploadErr error
	if h.needsUpload() {
		uploadErr = t.remote.Upload(ctx, h.SpillPath, h.RemotePath)
	}

	h.mu.Lock()
	h.state = stateReleased
	h.mu.Unlock()

	_ = os.Remove(h.SpillPath)
	return uploadErr
}

// Count returns the number of live handles, for diagnostics and tests.
func (t *Table) Count() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	n := 0
	for _, h := range t.slots {
		if h != nil {
			n++
		}
	}
	return n
}
