package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"guildcore/internal/events"
	"guildcore/internal/hostauth"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/internal/tokenhost"
	"guildcore/native/governance"
	"guildcore/native/guild"
	"guildcore/native/multisig"
	"guildcore/native/treasury"
)

const testSecret = "test-signing-secret"

func newTestServer(t *testing.T) (*Server, principal.Principal) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.db")
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	members := guild.New(s, events.NoopEmitter{})
	ms := multisig.New(s, events.NoopEmitter{})
	gov := governance.New(s, events.NoopEmitter{}, members, ms)
	host := tokenhost.NewMemory()
	tr := treasury.New(s, events.NoopEmitter{}, members, host)

	owner, err := principal.Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}

	return &Server{
		Guild:      members,
		Governance: gov,
		Multisig:   ms,
		Treasury:   tr,
		Auth:       hostauth.NewJWTAuthenticator(testSecret),
		NowFn:      func() uint64 { return 1000 },
	}, owner
}

func authedRequest(t *testing.T, method, path string, owner principal.Principal, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	token, err := hostauth.IssueToken(testSecret, owner, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateGuildRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/guilds/", bytes.NewBufferString(`{"name":"raiders"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestCreateGuildAndAddMemberFlow(t *testing.T) {
	srv, owner := newTestServer(t)
	router := srv.Router()

	req := authedRequest(t, http.MethodPost, "/v1/guilds/", owner, createGuildRequest{Name: "raiders", Description: "pve"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating a guild, got %d: %s", rec.Code, rec.Body.String())
	}
	var created guild.Guild
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Owner != owner {
		t.Fatalf("expected the caller to be recorded as owner")
	}

	newMember, err := principal.Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	addReq := authedRequest(t, http.MethodPost, "/v1/guilds/1/members", owner, addMemberRequest{
		Address: newMember.String(),
		Role:    "member",
	})
	addRec := httptest.NewRecorder()
	router.ServeHTTP(addRec, addReq)
	if addRec.Code != http.StatusOK {
		t.Fatalf("expected 200 adding a member, got %d: %s", addRec.Code, addRec.Body.String())
	}

	ok, err := srv.Guild.IsMember(created.ID, newMember)
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if !ok {
		t.Fatalf("expected the added member to be a member of the guild")
	}
}

func TestCreateGuildRejectsInvalidBody(t *testing.T) {
	srv, owner := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/guilds/", bytes.NewBufferString("not json"))
	token, err := hostauth.IssueToken(testSecret, owner, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an undecodable body, got %d", rec.Code)
	}
}
