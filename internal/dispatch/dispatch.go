// Package dispatch implements the thin outer HTTP operation surface (spec
// §6): JSON routes under /v1/guilds, /v1/proposals, /v1/multisig, /v1/treasury
// backed by chi, authenticated via internal/hostauth, observed via
// internal/metrics, and serializing invocations per entity with a mutex
// keyed by (kind, id) — the Go stand-in for "host serializes invocations
// atomically" (spec §5), adapted from the teacher's gateway/routes chi
// wiring.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"guildcore/internal/hostauth"
	"guildcore/internal/metrics"
	"guildcore/internal/principal"
	"guildcore/native/governance"
	"guildcore/native/guild"
	"guildcore/native/multisig"
	"guildcore/native/treasury"
)

// Server wires the native engines behind an authenticated, metered HTTP
// surface.
type Server struct {
	Guild      *guild.Engine
	Governance *governance.Engine
	Multisig   *multisig.Engine
	Treasury   *treasury.Engine
	Auth       hostauth.Authenticator
	NowFn      func() uint64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Router builds the chi http.Handler exposing every operation-surface route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/guilds", func(r chi.Router) {
		r.Post("/", s.withAuth(s.handleCreateGuild))
		r.Post("/{guildID}/members", s.withAuth(s.handleAddMember))
	})
	r.Route("/v1/proposals", func(r chi.Router) {
		r.Post("/", s.withAuth(s.handleCreateProposal))
		r.Post("/{proposalID}/vote", s.withAuth(s.handleVote))
		r.Post("/{proposalID}/finalize", s.withAuth(s.handleFinalize))
		r.Post("/{proposalID}/execute", s.withAuth(s.handleExecute))
	})
	r.Route("/v1/multisig", func(r chi.Router) {
		r.Post("/accounts", s.withAuth(s.handleRegisterAccount))
		r.Post("/operations/{opID}/sign", s.withAuth(s.handleSignOperation))
		r.Post("/operations/{opID}/execute", s.withAuth(s.handleExecuteOperation))
	})
	r.Route("/v1/treasury", func(r chi.Router) {
		r.Post("/{guildID}/deposit", s.withAuth(s.handleDeposit))
		r.Post("/{guildID}/withdrawals", s.withAuth(s.handleProposeWithdrawal))
	})
	return r
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(h func(http.ResponseWriter, *http.Request, principal.Principal) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.Auth.Authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			metrics.Operations().Observe("dispatch", r.URL.Path, err, 0)
			return
		}
		start := time.Now()
		err = h(w, r, caller)
		metrics.Operations().Observe("dispatch", r.URL.Path, err, time.Since(start))
	}
}

// lockFor returns the process-wide mutex serializing invocations against
// (kind, id), acquired for the duration of one HTTP request.
func (s *Server) lockFor(kind, id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	key := kind + ":" + id
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func (s *Server) now() uint64 {
	if s.NowFn != nil {
		return s.NowFn()
	}
	return uint64(time.Now().Unix())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) error {
	writeJSON(w, status, map[string]string{"error": err.Error()})
	return err
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
