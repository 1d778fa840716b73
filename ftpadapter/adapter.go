// Package ftpadapter is the narrow synchronous adapter between the core
// and a single FTP control connection, built on github.com/jlaffaye/ftp.
// Every exported method that talks to the server holds the adapter's lock
// for its entire body: there is no pipelining of FTP commands against the
// one control connection.
package ftpadapter

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sirupsen/logrus"

	"github.com/ftpmount/ftpmount/listing"
)

const (
	keepAliveIdle     = 120 * time.Second
	keepAliveInterval = 60 * time.Second
)

// Adapter is a single logical FTP session, serialized by mu.
type Adapter struct {
	host string
	port int
	user string
	pass string

	connectTimeout time.Duration
	opTimeout      time.Duration

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// New builds an Adapter. Connect is not called until the first operation
// (or an explicit call to Connect).
func New(host string, port int, user, pass string, connectTimeout, opTimeout time.Duration) *Adapter {
	return &Adapter{
		host:           host,
		port:           port,
		user:           user,
		pass:           pass,
		connectTimeout: connectTimeout,
		opTimeout:      opTimeout,
	}
}

func (a *Adapter) String() string {
	return encodeURL(a.host, a.port, "/", true)
}

// connectLocked establishes the control connection if one is not already
// live. Callers must hold a.mu.
func (a *Adapter) connectLocked(ctx context.Context) error {
	if a.conn != nil {
		return nil
	}
	logrus.WithField("host", a.host).Debug("ftpadapter: dialing")

	dialer := &net.Dialer{
		Timeout: a.connectTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     keepAliveIdle,
			Interval: keepAliveInterval,
		},
	}
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return dialer.Dial(network, address)
		}),
		ftp.DialWithTimeout(a.opTimeout),
	}
	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", a.host, a.port), opts...)
	if err != nil {
		return newError(Transport, "connect", "", err)
	}
	if err := conn.Login(a.user, a.pass); err != nil {
		_ = conn.Quit()
		return newError(classify(err), "login", "", err)
	}
	a.conn = conn
	return nil
}

// Connect establishes the connection eagerly; ListDir and friends also
// reconnect transparently on demand.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked(ctx)
}

// Disconnect tears down the connection, if any.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Quit()
		a.conn = nil
	}
}

// dropOnTransportError drops the connection so the next call reconnects,
// when err classifies as Transport.
func (a *Adapter) dropOnTransportError(err error) {
	if err == nil {
		return
	}
	var adapterErr *Error
	if e, ok := err.(*Error); ok {
		adapterErr = e
	}
	if adapterErr != nil && adapterErr.Kind == Transport && a.conn != nil {
		logrus.WithError(err).Debug("ftpadapter: dropping connection after transport error")
		_ = a.conn.Quit()
		a.conn = nil
	}
}

// ListDir lists dir through the jlaffaye/ftp client's List and converts the
// entries that client returns, dropping "." and "..". The listing lines are
// parsed by that client; package listing's Parse is not used here.
func (a *Adapter) ListDir(ctx context.Context, dir string) ([]listing.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return nil, err
	}

	raw, err := a.conn.List(dir)
	if err != nil {
		kind := classify(err)
		wrapped := newError(kind, "list", dir, err)
		a.dropOnTransportError(wrapped)
		return nil, wrapped
	}

	entries := make([]listing.Entry, 0, len(raw))
	for _, re := range raw {
		if re.Name == "." || re.Name == ".." {
			continue
		}
		entries = append(entries, fromLibraryEntry(re))
	}
	return entries, nil
}

func fromLibraryEntry(re *ftp.Entry) listing.Entry {
	var kind listing.Kind
	switch re.Type {
	case ftp.EntryTypeFolder:
		kind = listing.Directory
	case ftp.EntryTypeLink:
		kind = listing.Symlink
	default:
		kind = listing.File
	}
	size := int64(re.Size)
	if kind == listing.Directory {
		size = 0
	}
	return listing.Entry{
		Name:  re.Name,
		Kind:  kind,
		Size:  size,
		Mtime: re.Time.Unix(),
		Mode:  listing.SynthesizeMode(kind),
	}
}

// Download issues NOCWD RETR for remote, writing the full body to local
// (opened for binary write, truncating any prior contents).
func (a *Adapter) Download(ctx context.Context, remote, local string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}

	resp, err := a.conn.Retr(remote)
	if err != nil {
		kind := classify(err)
		wrapped := newError(kind, "download", remote, err)
		a.dropOnTransportError(wrapped)
		return wrapped
	}
	defer resp.Close()

	f, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return newError(LocalIO, "download", local, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp); err != nil {
		return newError(LocalIO, "download", local, err)
	}
	return nil
}

// Upload issues STOR for remote from the contents of local. If that STOR
// fails, it creates any missing remote parent directories and retries once.
func (a *Adapter) Upload(ctx context.Context, local, remote string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return newError(LocalIO, "upload", local, err)
	}
	defer f.Close()

	if err := a.conn.Stor(remote, f); err != nil {
		if mkErr := a.mkdirAllLocked(ctx, path.Dir(remote)); mkErr != nil {
			wrapped := newError(classify(err), "upload", remote, err)
			a.dropOnTransportError(wrapped)
			return wrapped
		}
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return newError(LocalIO, "upload", local, seekErr)
		}
		if err := a.conn.Stor(remote, f); err != nil {
			wrapped := newError(classify(err), "upload", remote, err)
			a.dropOnTransportError(wrapped)
			return wrapped
		}
	}
	return nil
}

// Delete issues DELE for path.
func (a *Adapter) Delete(ctx context.Context, remote string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}
	if err := a.conn.Delete(remote); err != nil {
		kind := classify(err)
		wrapped := newError(kind, "delete", remote, err)
		a.dropOnTransportError(wrapped)
		return wrapped
	}
	return nil
}

// Mkdir issues MKD for dir, retrying with create-missing-parents if the
// server rejects the first attempt.
func (a *Adapter) Mkdir(ctx context.Context, dir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}
	return a.mkdirAllLocked(ctx, dir)
}

// mkdirAllLocked creates dir and any missing parents. Callers must hold
// a.mu and have already connected.
func (a *Adapter) mkdirAllLocked(ctx context.Context, dir string) error {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	if err := a.conn.MakeDir(dir); err != nil {
		if tp := textprotoErr(err); tp != nil && tp.Code == ftp.StatusRequestedFileActionOK {
			// Some servers answer 250 instead of 257.
			return nil
		}
		if mkErr := a.mkdirAllLocked(ctx, path.Dir(dir)); mkErr != nil {
			return mkErr
		}
		if err := a.conn.MakeDir(dir); err != nil {
			if tp := textprotoErr(err); tp != nil {
				switch tp.Code {
				case ftp.StatusRequestedFileActionOK, ftp.StatusFileUnavailable:
					// With the parents in place, 250 is success and 550
					// reports the directory already exists.
					return nil
				}
			}
			kind := classify(err)
			wrapped := newError(kind, "mkdir", dir, err)
			a.dropOnTransportError(wrapped)
			return wrapped
		}
	}
	return nil
}

// Rmdir issues RMD for dir.
func (a *Adapter) Rmdir(ctx context.Context, dir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}
	if err := a.conn.RemoveDir(dir); err != nil {
		kind := classify(err)
		wrapped := newError(kind, "rmdir", dir, err)
		a.dropOnTransportError(wrapped)
		return wrapped
	}
	return nil
}

// Rename issues RNFR+RNTO in sequence.
func (a *Adapter) Rename(ctx context.Context, from, to string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.connectLocked(ctx); err != nil {
		return err
	}
	if err := a.conn.Rename(from, to); err != nil {
		kind := classify(err)
		wrapped := newError(kind, "rename", from, err)
		a.dropOnTransportError(wrapped)
		return wrapped
	}
	return nil
}
