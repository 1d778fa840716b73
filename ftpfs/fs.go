package ftpfs

import (
	bfs "bazil.org/fuse/fs"
)

// FS is the bazil.org/fuse fs.FS implementation: the whole mount is one
// Context plus a Dir rooted at "/".
type FS struct {
	Ctx *Context
}

// Root returns the root directory node.
func (f FS) Root() (bfs.Node, error) {
	return &Dir{Path: "/", Ctx: f.Ctx}, nil
}
