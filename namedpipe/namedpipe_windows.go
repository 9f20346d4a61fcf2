//go:build windows

package namedpipe

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

const pipePathPrefix = `\\.\pipe\`

// OSFactory is the production Factory backed by real Windows named pipes.
type OSFactory struct{}

// NewOSFactory returns a Factory backed by Windows named pipes. dir is
// accepted for API parity with the Unix build and ignored — Windows named
// pipes live in a single system-wide namespace.
func NewOSFactory(dir string) *OSFactory {
	return &OSFactory{}
}

func (f *OSFactory) Listen(ctx context.Context, name string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		InputBufferSize:  65536,
		OutputBufferSize: 65536,
	}
	l, err := winio.ListenPipe(pipePathPrefix+name, cfg)
	if err != nil {
		return nil, fmt.Errorf("namedpipe: listen %q: %w", name, err)
	}
	return l, nil
}

func (f *OSFactory) Dial(ctx context.Context, name string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, pipePathPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("namedpipe: dial %q: %w", name, err)
	}
	return conn, nil
}
