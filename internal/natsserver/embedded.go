// Package natsserver runs the narration bus in-process so a single narrated
// binary can accept requests without an external broker.
package natsserver

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/loqalabs/loqa-narrate/internal/config"
	"github.com/loqalabs/loqa-narrate/internal/protocol"
)

const (
	serverName   = "loqa-narrate"
	readyTimeout = 5 * time.Second
	// Narration requests carry whole documents.
	maxPayload = 8 << 20
)

type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start launches the broker on loopback when the bus is in embedded mode and
// returns nil otherwise. Port -1 picks a free port; ClientURL reports it.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}
	if cfg.StoreDir != "" {
		if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
			return nil, fmt.Errorf("create nats store dir: %w", err)
		}
	}

	opts := &server.Options{
		ServerName: serverName,
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		StoreDir:   cfg.StoreDir,
		MaxPayload: maxPayload,
		NoSigs:     true,
	}
	switch {
	case cfg.Token != "":
		opts.Authorization = cfg.Token
	case cfg.Username != "":
		opts.Username = cfg.Username
		opts.Password = cfg.Password
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", readyTimeout)
	}

	log.Info("embedded narration bus started",
		slog.String("url", ns.ClientURL()),
		slog.String("requests", protocol.SubjectNarrationRequest),
		slog.String("status", protocol.SubjectNarrationStatus),
		slog.Bool("auth", cfg.Token != "" || cfg.Username != ""))

	return &EmbeddedServer{ns: ns, log: log}, nil
}

// ClientURL is the address the bus client should dial.
func (e *EmbeddedServer) ClientURL() string {
	if e == nil || e.ns == nil {
		return ""
	}
	return e.ns.ClientURL()
}

// Shutdown stops the broker and waits until it has released its port.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("stopping embedded narration bus", slog.Int("clients", e.ns.NumClients()))
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
