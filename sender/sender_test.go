package sender_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpat-go/mpat/channel"
	"github.com/mpat-go/mpat/config"
	"github.com/mpat-go/mpat/finalize"
	"github.com/mpat-go/mpat/receiver"
	"github.com/mpat-go/mpat/registry"
	"github.com/mpat-go/mpat/sender"
)

func startReceiver(t *testing.T, dir string, n int) []config.Channel {
	t.Helper()
	channels := make([]config.Channel, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()
		channels[i] = config.Channel{Name: portName(i), Host: "127.0.0.1", Port: port}
	}

	reg := registry.New()
	fin := finalize.New(reg, finalize.FileSink(dir))
	r := receiver.New(fin)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Serve(ctx, channels)

	for _, c := range channels {
		waitForListener(t, c.Addr())
	}
	return channels
}

func portName(i int) string {
	return string(rune('a' + i))
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("listener at %s never came up", addr)
}

func TestSendRoundTripTwoChannels(t *testing.T) {
	dir := t.TempDir()
	channels := startReceiver(t, dir, 2)

	endpoints := make([]*channel.Endpoint, len(channels))
	for i, c := range channels {
		endpoints[i] = channel.NewEndpoint(c.Name, c.Addr())
	}

	s := sender.NewSession(1, endpoints)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 'A'
	}

	if err := s.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	path := filepath.Join(dir, "session_1.dat")
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	var err error
	for time.Now().Before(deadline) {
		got, err = os.ReadFile(path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(payload) {
		t.Error("reassembled plaintext does not match the sent payload")
	}

	if len(s.Ledger()) == 0 {
		t.Error("expected a non-empty segment ledger after Send")
	}
}

func TestSendSingleByteSegment(t *testing.T) {
	dir := t.TempDir()
	channels := startReceiver(t, dir, 1)
	endpoints := []*channel.Endpoint{channel.NewEndpoint(channels[0].Name, channels[0].Addr())}

	s := sender.NewSession(4, endpoints)
	if err := s.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	path := filepath.Join(dir, "session_4.dat")
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	var err error
	for time.Now().Before(deadline) {
		got, err = os.ReadFile(path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "x" {
		t.Errorf("got %q, want %q", got, "x")
	}
}
