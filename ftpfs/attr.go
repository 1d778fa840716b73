package ftpfs

import (
	"context"
	"os"
	"path"
	"time"

	"bazil.org/fuse"

	"github.com/ftpmount/ftpmount/ftpadapter"
	"github.com/ftpmount/ftpmount/listing"
)

// listingFor returns the listing for dir, preferring the cache and falling
// back to a live LIST on a miss.
func listingFor(ctx context.Context, c *Context, dir string) ([]listing.Entry, error) {
	if entries, ok := c.Cache.Get(dir); ok {
		return entries, nil
	}
	entries, err := c.Adapter.ListDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	c.Cache.Put(dir, entries)
	return entries, nil
}

// lookupEntry derives the listing.Entry for p from its parent's cached
// listing, populating the cache on miss. p must not be the root.
func lookupEntry(ctx context.Context, c *Context, p string) (listing.Entry, error) {
	parent := path.Dir(p)
	name := path.Base(p)

	entries, err := listingFor(ctx, c, parent)
	if err != nil {
		return listing.Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return listing.Entry{}, &ftpadapter.Error{
		Kind: ftpadapter.NotFound,
		Op:   "lookup",
		Path: p,
		Err:  os.ErrNotExist,
	}
}

// entryExists reports whether p currently appears in its parent's listing.
func entryExists(ctx context.Context, c *Context, p string) bool {
	_, err := lookupEntry(ctx, c, p)
	return err == nil
}

// fillAttr populates a from e, using the invoking process's uid/gid since
// FTP carries no faithful ownership information.
func fillAttr(a *fuse.Attr, e listing.Entry) {
	a.Mode = e.Mode
	a.Size = uint64(e.Size)
	a.Mtime = time.Unix(e.Mtime, 0)
	a.Ctime = a.Mtime
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	if e.Kind == listing.Directory {
		a.Nlink = 2
	} else {
		a.Nlink = 1
	}
}

// fillRootAttr populates a with the synthetic root directory's attributes.
func fillRootAttr(a *fuse.Attr) {
	a.Mode = os.ModeDir | 0755
	a.Nlink = 2
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
}
