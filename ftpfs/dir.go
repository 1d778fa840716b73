package ftpfs

import (
	"context"
	"path"
	"syscall"

	"bazil.org/fuse"
	bfs "bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/ftpmount/ftpmount/listing"
)

// Dir is a directory node, identified by its absolute remote path.
type Dir struct {
	Path string
	Ctx  *Context
}

// Attr fills a with this directory's attributes: synthetic for the root,
// derived from the parent's cached listing otherwise.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	if d.Path == "/" {
		fillRootAttr(a)
		return nil
	}
	e, err := lookupEntry(ctx, d.Ctx, d.Path)
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(a, e)
	return nil
}

// Lookup resolves name within this directory against its cached listing.
func (d *Dir) Lookup(ctx context.Context, name string) (bfs.Node, error) {
	entries, err := listingFor(ctx, d.Ctx, d.Path)
	if err != nil {
		return nil, errnoFor(err)
	}
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		child := path.Join(d.Path, name)
		if e.Kind == listing.Directory {
			return &Dir{Path: child, Ctx: d.Ctx}, nil
		}
		return &File{Path: child, Ctx: d.Ctx}, nil
	}
	return nil, fuse.ENOENT
}

// ReadDirAll lists this directory's contents, populating the cache on miss.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := listingFor(ctx, d.Ctx, d.Path)
	if err != nil {
		return nil, errnoFor(err)
	}

	out := make([]fuse.Dirent, 0, len(entries)+2)
	out = append(out, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	out = append(out, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, e := range entries {
		dt := fuse.DT_File
		switch e.Kind {
		case listing.Directory:
			dt = fuse.DT_Dir
		case listing.Symlink:
			dt = fuse.DT_Link
		}
		out = append(out, fuse.Dirent{Name: e.Name, Type: dt})
	}
	return out, nil
}

// Create allocates a new file handle for name via the handle store, per
// the same-semantics-as-open contract of the spec.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (bfs.Node, bfs.Handle, error) {
	child := path.Join(d.Path, req.Name)
	flags := int(req.Flags) | syscall.O_CREAT

	exists := entryExists(ctx, d.Ctx, child)
	idx, err := d.Ctx.Handles.Open(ctx, child, flags, exists)
	if err != nil {
		return nil, nil, errnoFor(err)
	}
	return &File{Path: child, Ctx: d.Ctx}, &fileHandle{Path: child, Ctx: d.Ctx, Index: idx}, nil
}

// Mkdir issues MKD for name and invalidates this directory's cache entry.
func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (bfs.Node, error) {
	child := path.Join(d.Path, req.Name)
	if err := d.Ctx.Adapter.Mkdir(ctx, child); err != nil {
		return nil, errnoFor(err)
	}
	d.Ctx.Cache.Invalidate(d.Path)
	return &Dir{Path: child, Ctx: d.Ctx}, nil
}

// Remove issues DELE or RMD for name depending on req.Dir, and invalidates
// this directory's cache entry.
func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	child := path.Join(d.Path, req.Name)

	var err error
	if req.Dir {
		err = d.Ctx.Adapter.Rmdir(ctx, child)
	} else {
		err = d.Ctx.Adapter.Delete(ctx, child)
	}
	if err != nil {
		return errnoFor(err)
	}
	d.Ctx.Cache.Invalidate(d.Path)
	return nil
}

// Rename issues RNFR/RNTO and conservatively invalidates the whole cache,
// since a cross-directory rename may affect listings on both ends.
func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir bfs.Node) error {
	destDir, ok := newDir.(*Dir)
	if !ok {
		return fuse.EIO
	}
	from := path.Join(d.Path, req.OldName)
	to := path.Join(destDir.Path, req.NewName)

	if err := d.Ctx.Adapter.Rename(ctx, from, to); err != nil {
		return errnoFor(err)
	}
	d.Ctx.Cache.Invalidate("/")
	return nil
}

// Setattr accepts chmod/chown/utimens as no-ops, since FTP has no faithful
// mapping for any of them.
func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	logrus.WithField("path", d.Path).Debug("ftpfs: setattr on directory is a no-op")
	return nil
}
