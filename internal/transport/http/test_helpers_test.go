package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lbessard/canal/internal/auth"
	"github.com/lbessard/canal/internal/config"
	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/log"
	"github.com/lbessard/canal/internal/service/identity"
	"github.com/lbessard/canal/internal/service/membership"
	"github.com/lbessard/canal/internal/service/message"
	"github.com/lbessard/canal/internal/service/nickname"
	"github.com/lbessard/canal/internal/store/sqlite"
)

// newTestServices wires the full service stack onto an in-memory store.
func newTestServices(t *testing.T) *Services {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := log.Nop()
	hub := core.NewHub(logger)
	nicks := nickname.NewResolver(st, logger)
	members := membership.NewManager(st, nicks, hub, logger)
	if err := members.EnsureGeneral(context.Background()); err != nil {
		t.Fatalf("failed to ensure default channel: %v", err)
	}

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	return &Services{
		Identity: identity.NewService(st, members, logger),
		Members:  members,
		Messages: message.NewRouter(st, nicks, hub, logger),
		Nicks:    nicks,
		Auth:     authService,
		Hub:      hub,
	}
}

func startTestServer(t *testing.T) (*httptest.Server, *Services) {
	t.Helper()

	svc := newTestServices(t)
	cfg := config.Default()
	cfg.Addr = ":0"

	server := NewServer(svc, &cfg, log.Nop())
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, svc
}
