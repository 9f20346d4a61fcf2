package namedpipe

import (
	"context"
	"testing"
	"time"
)

func TestLoopbackFactoryDialAccept(t *testing.T) {
	f := NewLoopbackFactory()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	l, err := f.Listen(ctx, "test-pipe")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	serverConn := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			serverConn <- err
			return
		}
		defer conn.Close()
		serverConn <- nil
	}()

	clientConn, err := f.Dial(ctx, "test-pipe")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientConn.Close()

	if err := <-serverConn; err != nil {
		t.Fatalf("Accept: %v", err)
	}
}

func TestLoopbackFactoryDialNoListener(t *testing.T) {
	f := NewLoopbackFactory()
	_, err := f.Dial(context.Background(), "missing")
	if err == nil {
		t.Fatal("Dial to missing listener should fail")
	}
}
