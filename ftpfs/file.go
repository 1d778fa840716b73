package ftpfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"bazil.org/fuse"
	bfs "bazil.org/fuse/fs"
)

// File is a regular-file node, identified by its absolute remote path.
type File struct {
	Path string
	Ctx  *Context
}

// Attr fills a with this file's attributes, derived from the parent's
// cached listing.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	e, err := lookupEntry(ctx, f.Ctx, f.Path)
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(a, e)
	return nil
}

// Open serves read-only opens directly off the file (the kernel may read
// straight against this node with no allocated handle); any write or
// read-write open goes through the handle store.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (bfs.Handle, error) {
	if req.Flags&(fuse.OpenWriteOnly|fuse.OpenReadWrite) == 0 {
		return f, nil
	}

	exists := entryExists(ctx, f.Ctx, f.Path)
	idx, err := f.Ctx.Handles.Open(ctx, f.Path, int(req.Flags), exists)
	if err != nil {
		return nil, errnoFor(err)
	}
	return &fileHandle{Path: f.Path, Ctx: f.Ctx, Index: idx}, nil
}

// Read serves a read issued against this node directly (no live handle):
// an ad-hoc download/read/delete cycle.
func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := f.Ctx.Handles.ReadAdHoc(ctx, f.Path, buf, req.Offset)
	if err != nil {
		return errnoFor(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Flush, Fsync and Release are no-ops for the handle-less read path: there
// is nothing to upload and nothing was allocated.
func (f *File) Flush(ctx context.Context, req *fuse.FlushRequest) error   { return nil }
func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error  { return nil }
func (f *File) Release(ctx context.Context, req *fuse.ReleaseRequest) error { return nil }

// Setattr handles truncate (the only Valid bit with a real remote effect);
// chmod/chown/utimens are accepted as no-ops.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if req.Valid.Size() {
		if err := truncateRemote(ctx, f.Ctx, f.Path, req.Size); err != nil {
			return errnoFor(err)
		}
	}
	return nil
}

// truncateRemote implements the spec's two-branch truncate: download the
// current content, truncate the spill to size, upload. If the download
// fails (the file does not yet exist remotely), start from an empty spill
// instead, deliberately creating a size-byte file of undefined content.
func truncateRemote(ctx context.Context, c *Context, remotePath string, size uint64) error {
	spill := filepath.Join(c.TempDir, fmt.Sprintf("truncate-%d-%d", os.Getpid(), time.Now().UnixNano()))

	if err := c.Adapter.Download(ctx, remotePath, spill); err != nil {
		f, createErr := os.OpenFile(spill, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if createErr != nil {
			return createErr
		}
		f.Close()
	}
	defer os.Remove(spill)

	if err := os.Truncate(spill, int64(size)); err != nil {
		return err
	}
	if err := c.Adapter.Upload(ctx, spill, remotePath); err != nil {
		return err
	}
	c.Cache.Invalidate(path.Dir(remotePath))
	return nil
}
