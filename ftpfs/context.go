package ftpfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ftpmount/ftpmount/dircache"
	"github.com/ftpmount/ftpmount/handles"
	"github.com/ftpmount/ftpmount/listing"
)

// Remote is the subset of the FTP adapter the filesystem layer needs. It
// is an interface so tests can drive ftpfs against an in-memory fake
// instead of a live FTP server. *ftpadapter.Adapter satisfies it.
type Remote interface {
	ListDir(ctx context.Context, dir string) ([]listing.Entry, error)
	Download(ctx context.Context, remote, local string) error
	Upload(ctx context.Context, local, remote string) error
	Delete(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Disconnect()
}

// Context is the process-wide state shared by every node and handle
// the mount serves: the adapter, the directory cache, the handle table,
// and the private spill directory.
type Context struct {
	Adapter Remote
	Cache   *dircache.Cache
	Handles *handles.Table

	TempDir string
	Debug   bool
}

// NewContext creates the private spill directory under base (typically
// os.TempDir()) named with the running pid and the current time, matching
// the teacher's convention of embedding both in a temp-dir name, and wires
// up the cache and handle table.
func NewContext(base string, cacheTimeout time.Duration, adapter Remote, debug bool) (*Context, error) {
	name := fmt.Sprintf("ftpmount%d_%d", os.Getpid(), time.Now().Unix())
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	cache := dircache.New(cacheTimeout)
	table := handles.New(dir, adapter)

	return &Context{
		Adapter: adapter,
		Cache:   cache,
		Handles: table,
		TempDir: dir,
		Debug:   debug,
	}, nil
}

// Close tears down the FTP connection and removes the spill directory
// recursively.
func (c *Context) Close() error {
	c.Adapter.Disconnect()
	return os.RemoveAll(c.TempDir)
}
