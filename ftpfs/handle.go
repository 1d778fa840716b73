package ftpfs

import (
	"context"
	"path"

	"bazil.org/fuse"
	"github.com/sirupsen/logrus"
)

// fileHandle is a live, write-capable open file backed by a slot in the
// handle store.
type fileHandle struct {
	Path  string
	Ctx   *Context
	Index int
}

// Read reads from the handle's spill file.
func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.Ctx.Handles.Read(h.Index, buf, req.Offset)
	if err != nil {
		return errnoFor(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write writes to the handle's spill file and marks it dirty.
func (h *fileHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.Ctx.Handles.Write(h.Index, req.Data, req.Offset)
	if err != nil {
		return errnoFor(err)
	}
	resp.Size = n
	return nil
}

// Flush and Fsync are no-ops: the upload happens on Release.
func (h *fileHandle) Flush(ctx context.Context, req *fuse.FlushRequest) error { return nil }
func (h *fileHandle) Fsync(ctx context.Context, req *fuse.FsyncRequest) error { return nil }

// Release uploads the spill if the handle was written to or created
// fresh, invalidates the parent directory's cache entry on a successful
// upload, and always destroys the handle. An upload failure is logged and
// swallowed: the handle is released regardless and the dirty data is lost,
// matching the documented (and flagged) behavior.
func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	live, _ := h.Ctx.Handles.Get(h.Index)
	var willUpload bool
	if live != nil {
		willUpload = live.Dirty() || live.IsNew()
	}

	if err := h.Ctx.Handles.Release(ctx, h.Index); err != nil {
		logrus.WithError(err).WithField("path", h.Path).Error("ftpfs: upload on release failed")
		return nil
	}
	if willUpload {
		h.Ctx.Cache.Invalidate(path.Dir(h.Path))
	}
	return nil
}
