// Command ftpmount mounts a remote FTP server as a local POSIX filesystem.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazil.org/fuse"
	bfs "bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ftpmount/ftpmount/ftpadapter"
	"github.com/ftpmount/ftpmount/ftpfs"
)

const (
	defaultCacheTimeout = 30
	vscodeCacheTimeout  = 60
	minCacheTimeout     = 5
	maxCacheTimeout     = 300
	connectTimeout      = 30 * time.Second
	opTimeout           = 300 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		port         = pflag.IntP("port", "p", 21, "FTP port")
		user         = pflag.StringP("user", "u", "anonymous", "FTP username")
		password     = pflag.StringP("password", "P", "", "FTP password")
		encoding     = pflag.StringP("encoding", "e", "utf-8", "filename encoding")
		cacheTimeout = pflag.IntP("cache-timeout", "c", defaultCacheTimeout, "directory cache TTL in seconds, clamped to [5, 300]")
		vscode       = pflag.Bool("vscode", false, "preset cache timeout to 60s unless --cache-timeout is given explicitly")
		debug        = pflag.BoolP("debug", "d", false, "verbose logging")
		foreground   = pflag.BoolP("foreground", "f", false, "do not daemonize")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <host> <mountpoint>\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) != 2 {
		pflag.Usage()
		return 1
	}
	host, mountpoint := args[0], args[1]

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.WithField("encoding", *encoding).Debug("ftpmount: encoding is accepted but not yet applied to filenames")

	timeout := *cacheTimeout
	if *vscode && !pflag.Lookup("cache-timeout").Changed {
		timeout = vscodeCacheTimeout
	}
	if timeout < minCacheTimeout {
		timeout = minCacheTimeout
	}
	if timeout > maxCacheTimeout {
		timeout = maxCacheTimeout
	}

	if !*foreground {
		logrus.Debug("ftpmount: --foreground not set; running in this process regardless (daemonization is left to the caller)")
	}

	adapter := ftpadapter.New(host, *port, *user, *password, connectTimeout, opTimeout)
	ctx, err := ftpfs.NewContext(os.TempDir(), time.Duration(timeout)*time.Second, adapter, *debug)
	if err != nil {
		logrus.WithError(err).Error("ftpmount: failed to initialize context")
		return 1
	}
	defer ctx.Close()

	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName("ftpmount"),
		fuse.Subtype("ftpmount"),
	)
	if err != nil {
		logrus.WithError(err).Error("ftpmount: mount failed")
		return 1
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	doneServe := make(chan error, 1)
	go func() {
		doneServe <- bfs.Serve(conn, ftpfs.FS{Ctx: ctx})
	}()

	logrus.WithField("remote", adapter.String()).WithField("mountpoint", mountpoint).Info("ftpmount: serving")

	select {
	case err := <-doneServe:
		if err != nil {
			logrus.WithError(err).Error("ftpmount: serve failed")
			return 1
		}
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("ftpmount: signal received, unmounting")
		if err := fuse.Unmount(mountpoint); err != nil {
			logrus.WithError(err).Error("ftpmount: unmount failed")
			return 1
		}
		<-doneServe
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		logrus.WithError(err).Error("ftpmount: mount error")
		return 1
	}
	return 0
}
