package natsserver

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-narrate/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartDisabled(t *testing.T) {
	srv, err := Start(config.BusConfig{Embedded: false}, newLogger())
	if err != nil || srv != nil {
		t.Fatalf("expected no server when not embedded, got %v, %v", srv, err)
	}
	if srv.ClientURL() != "" {
		t.Fatalf("nil server should report no URL")
	}
	srv.Shutdown()
}

func TestStartWithToken(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nats")
	srv, err := Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: dir, Token: "s3cret"}, newLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Shutdown()

	if _, err := nats.Connect(srv.ClientURL()); err == nil {
		t.Fatalf("expected connection without token to be rejected")
	}
	nc, err := nats.Connect(srv.ClientURL(), nats.Token("s3cret"))
	if err != nil {
		t.Fatalf("connect with token: %v", err)
	}
	defer nc.Close()
	if nc.MaxPayload() < 8<<20 {
		t.Fatalf("expected raised max payload, got %d", nc.MaxPayload())
	}
}
