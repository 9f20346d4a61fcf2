//go:build !windows

package namedpipe

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// socketDir is where Unix domain sockets for named pipes are created when
// NewOSFactory is given an empty dir.
var socketDir = filepath.Join(os.TempDir(), "namedpipesproxy")

// OSFactory is the production Factory backed by Unix domain sockets on
// non-Windows hosts.
type OSFactory struct {
	dir string
}

// NewOSFactory returns a Factory that roots its sockets under dir, or a
// package-wide temp directory if dir is empty.
func NewOSFactory(dir string) *OSFactory {
	if dir == "" {
		dir = socketDir
	}
	return &OSFactory{dir: dir}
}

func (f *OSFactory) path(name string) string {
	return filepath.Join(f.dir, name+".sock")
}

// Listen creates the socket directory if needed, removes any stale socket
// file left by a prior crashed process, and starts listening.
func (f *OSFactory) Listen(ctx context.Context, name string) (net.Listener, error) {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return nil, fmt.Errorf("namedpipe: create socket dir: %w", err)
	}
	path := f.path(name)
	_ = os.Remove(path)

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("namedpipe: listen %q: %w", name, err)
	}
	return l, nil
}

// Dial connects to name with ctx-bounded dial timeout/cancellation.
func (f *OSFactory) Dial(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", f.path(name))
	if err != nil {
		return nil, fmt.Errorf("namedpipe: dial %q: %w", name, err)
	}
	return conn, nil
}
