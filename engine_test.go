package otpauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/flow"
	"github.com/aircare/otpauth/guard"
	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/session"
)

const testClientID = "6f1c2b0e-8a55-4d0b-9a3f-2f6e8c1d7b40"

var adminIdentity = identity.Identity{ID: "admin-1", Name: "Ravi", Role: identity.RoleAdmin, Phone: "9000000001"}

type stubBackend struct {
	grant backend.Grant
}

func (b *stubBackend) IssueLoginChallenge(context.Context, string) (backend.Challenge, error) {
	return backend.Challenge{ID: "c1", Message: "OTP sent successfully"}, nil
}

func (b *stubBackend) IssueSignupChallenge(context.Context, string, string, string) (backend.Challenge, error) {
	return backend.Challenge{ID: "c1", Message: "OTP sent successfully"}, nil
}

func (b *stubBackend) VerifyLoginChallenge(_ context.Context, _, code, _ string) (backend.Grant, error) {
	if code != "123456" {
		return backend.Grant{}, backend.Reject("Invalid OTP")
	}
	return b.grant, nil
}

func (b *stubBackend) VerifySignupChallenge(ctx context.Context, phone, code, id string, _ backend.Details) (backend.Grant, error) {
	return b.VerifyLoginChallenge(ctx, phone, code, id)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func buildTestEngine(t *testing.T, rdb *redis.Client, sink AuditSink) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Audit.Enabled = sink != nil
	cfg.Audit.DropIfFull = false

	b := New().
		WithConfig(cfg).
		WithBackend(&stubBackend{grant: backend.Grant{Identity: adminIdentity, Token: "tok-admin", Message: "Login successful"}}).
		WithAuditSink(sink)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustClient(t *testing.T, e *Engine) *Client {
	t.Helper()
	c, err := e.Client(testClientID)
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	return c
}

func TestBuildRequiresBackend(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrBackendRequired) {
		t.Fatalf("expected ErrBackendRequired, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.ResendCooldown = 0
	_, err := New().WithConfig(cfg).WithBackend(&stubBackend{}).Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithBackend(&stubBackend{})
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestClientRejectsNonUUID(t *testing.T) {
	e := buildTestEngine(t, nil, nil)
	for _, id := range []string{"", "abc", "../../etc"} {
		if _, err := e.Client(id); !errors.Is(err, ErrClientIDInvalid) {
			t.Fatalf("id %q: expected ErrClientIDInvalid, got %v", id, err)
		}
	}
	if _, err := e.Client(NewClientID()); err != nil {
		t.Fatalf("fresh client id rejected: %v", err)
	}
}

func TestAdminRoundTripThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	sink := NewChannelSink(16)
	e := buildTestEngine(t, rdb, sink)

	d, err := e.Authorize(ctx, mustClient(t, e), guard.AdminOnly, "/admin/dashboard")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Action != guard.Redirect || d.Location != "/admin/login" {
		t.Fatalf("decision = %+v", d)
	}
	if got, _ := mr.Get("sf:" + testClientID + ":redirectAfterLogin"); got != "/admin/dashboard" {
		t.Fatalf("remembered destination = %q", got)
	}

	c := mustClient(t, e)
	f, err := e.NewFlow(c, flow.Login)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	defer f.Close()
	f.Mount(ctx)
	if r := f.RequestCode(ctx, flow.Subject{Phone: adminIdentity.Phone}); !r.OK {
		t.Fatalf("RequestCode = %+v", r)
	}
	r := f.Verify(ctx, "123456")
	if !r.OK || r.Redirect != "/admin/dashboard" {
		t.Fatalf("Verify = %+v", r)
	}
	if mr.Exists("sf:" + testClientID + ":redirectAfterLogin") {
		t.Fatal("redirect memory not consumed")
	}

	d, err = e.Authorize(ctx, mustClient(t, e), guard.AdminOnly, "/admin/dashboard")
	if err != nil || d.Action != guard.Render {
		t.Fatalf("after login decision = %+v err=%v", d, err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricChallengeIssued] != 1 || snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("counters = %+v", snap.Counters)
	}
	if snap.Counters[MetricSessionCommitted] != 1 || snap.Counters[MetricGuardLoginRedirect] != 1 {
		t.Fatalf("counters = %+v", snap.Counters)
	}

	want := []string{AuditChallengeIssue, AuditChallengeVerify, AuditSessionCommit}
	for _, typ := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != typ {
				t.Fatalf("expected %s, got %s", typ, ev.EventType)
			}
			if ev.ClientID != testClientID || ev.Timestamp.IsZero() {
				t.Fatalf("event missing client or timestamp: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestWrongRoleIsForbiddenAndAudited(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(4)
	e := buildTestEngine(t, nil, sink)

	c := mustClient(t, e)
	user := identity.Identity{ID: "u-1", Name: "Asha", Role: identity.RoleUser}
	if err := c.Session.Commit(ctx, user, "tok-user"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	<-sink.Events()

	d, err := e.Authorize(ctx, mustClient(t, e), guard.AdminOnly, "/admin/dashboard")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Reason != guard.ReasonForbidden || d.Location != "/" {
		t.Fatalf("decision = %+v", d)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditGuardDenied || ev.UserID != "u-1" || ev.Path != "/admin/dashboard" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for guard_denied")
	}
}

func TestLogoutClearsPersistedSession(t *testing.T) {
	ctx := context.Background()
	e := buildTestEngine(t, nil, nil)

	c := mustClient(t, e)
	if err := c.Session.Commit(ctx, adminIdentity, "tok-admin"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := e.Logout(ctx, mustClient(t, e)); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	snap := mustClient(t, e).Session.Initialize(ctx)
	if snap.Status != session.StatusAbsent {
		t.Fatalf("expected absent after logout, got %v", snap.Status)
	}
	if got := e.MetricsSnapshot().Counters[MetricLogout]; got != 1 {
		t.Fatalf("logout counter = %d", got)
	}
}

func TestHalfWrittenSessionIsResetAndCounted(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	sink := NewChannelSink(4)
	e := buildTestEngine(t, rdb, sink)

	tokenKey := "sf:" + testClientID + ":credentialToken"
	if err := mr.Set(tokenKey, "orphan-token"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	d, err := e.Authorize(ctx, mustClient(t, e), guard.UserOnly, "/account")
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if d.Action != guard.Redirect || d.Location != "/login" {
		t.Fatalf("decision = %+v", d)
	}
	if mr.Exists(tokenKey) {
		t.Fatal("orphan token not erased")
	}
	if got := e.MetricsSnapshot().Counters[MetricSessionCorruptReset]; got != 1 {
		t.Fatalf("corrupt counter = %d", got)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != AuditSessionCorruptReset || ev.Error != session.ReasonHalfWritten {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for corrupt reset event")
	}
}

func TestTokenCheckRejectsPersistedToken(t *testing.T) {
	ctx := context.Background()
	e, err := New().
		WithBackend(&stubBackend{}).
		WithTokenCheck(func(string) error { return errors.New("expired") }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()

	c := mustClient(t, e)
	c.Session.Initialize(ctx)
	if err := c.Session.Commit(ctx, adminIdentity, "tok-admin"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if snap := mustClient(t, e).Session.Initialize(ctx); snap.Status != session.StatusAbsent {
		t.Fatalf("expected rejected token to resolve absent, got %v", snap.Status)
	}
}

func TestClosedEngineIsNotReady(t *testing.T) {
	e := buildTestEngine(t, nil, nil)
	c := mustClient(t, e)
	e.Close()
	e.Close()

	if _, err := e.Client(testClientID); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Client: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.NewFlow(c, flow.Login); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("NewFlow: expected ErrEngineNotReady, got %v", err)
	}
	if err := e.Logout(context.Background(), c); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Logout: expected ErrEngineNotReady, got %v", err)
	}

	var nilEngine *Engine
	if _, err := nilEngine.Client(testClientID); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("nil engine: expected ErrEngineNotReady, got %v", err)
	}
}

func TestClientContextRoundTrip(t *testing.T) {
	e := buildTestEngine(t, nil, nil)
	c := mustClient(t, e)

	got, ok := ClientFromContext(WithClient(context.Background(), c))
	if !ok || got != c {
		t.Fatal("client not recovered from context")
	}
	if _, ok := ClientFromContext(context.Background()); ok {
		t.Fatal("expected no client in bare context")
	}
}
