// Package handles implements the open-file handle store: per-open-file
// state backed by a private spill file that absorbs random-access POSIX
// I/O against FTP's whole-file GET/PUT model.
package handles

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

type state int

const (
	stateEmpty state = iota
	statePrimed
	stateDirty
	stateReleased
)

// Handle is per-open-file state for mutating access to one remote path.
type Handle struct {
	RemotePath string
	SpillPath  string
	Flags      int

	mu    sync.Mutex
	state state
	dirty bool
	isNew bool
}

// Dirty reports whether any successful write has occurred on this handle.
func (h *Handle) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// IsNew reports whether the handle was opened without priming (created
// fresh, with O_CREAT and no O_TRUNC, against a name that did not exist).
func (h *Handle) IsNew() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isNew
}

// markDirty records a successful write and transitions Primed -> Dirty.
func (h *Handle) markDirty() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dirty = true
	if h.state != stateReleased {
		h.state = stateDirty
	}
}

// needsUpload reports whether release must upload the spill: the handle
// was written to, or it was created fresh and never primed from the
// remote.
func (h *Handle) needsUpload() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty || h.isNew
}

// ReadAt reads from the handle's spill file at offset, independent of any
// other concurrent reader (each call opens, seeks, reads, closes).
func (h *Handle) ReadAt(buf []byte, offset int64) (int, error) {
	f, err := os.Open(h.SpillPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := f.ReadAt(buf, offset)
	if err == io.EOF || (err != nil && n > 0) {
		// A short or empty read at EOF is not an error to the caller;
		// io.ReaderAt surfaces io.EOF, and the FUSE read path only needs
		// the byte count.
		return n, nil
	}
	return n, err
}

// WriteAt writes to the handle's spill file at offset under the per-handle
// lock, and marks the handle dirty on success.
func (h *Handle) WriteAt(buf []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.SpillPath, os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteAt(buf, offset)
	if err == nil {
		h.dirty = true
		if h.state != stateReleased {
			h.state = stateDirty
		}
	}
	return n, err
}

var spillDiscriminator uint64

// newSpillPath builds a spill path unique across the process: temp dir,
// pid, current time, and a per-handle discriminator.
func newSpillPath(tempDir string, now time.Time) string {
	n := atomic.AddUint64(&spillDiscriminator, 1)
	name := fmt.Sprintf("spill-%d-%d-%d", os.Getpid(), now.UnixNano(), n)
	return filepath.Join(tempDir, name)
}
