package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/guard"
	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/kv"
	"github.com/aircare/otpauth/redirect"
	"github.com/aircare/otpauth/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeBackend struct {
	mu sync.Mutex

	issueCalls  int
	verifyCalls int
	ids         []string
	issueErr    error
	verifyErr   error
	grant       backend.Grant

	lastPhone     string
	lastName      string
	lastChallenge string
	lastDetails   backend.Details

	entered chan struct{}
	release chan struct{}
}

func (b *fakeBackend) block() {
	if b.release == nil {
		return
	}
	b.entered <- struct{}{}
	<-b.release
}

func (b *fakeBackend) nextIssue(phone, name string) (backend.Challenge, error) {
	b.block()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issueCalls++
	b.lastPhone, b.lastName = phone, name
	if b.issueErr != nil {
		return backend.Challenge{}, b.issueErr
	}
	id := fmt.Sprintf("c%d", b.issueCalls)
	if len(b.ids) >= b.issueCalls {
		id = b.ids[b.issueCalls-1]
	}
	return backend.Challenge{ID: id}, nil
}

func (b *fakeBackend) IssueLoginChallenge(_ context.Context, phone string) (backend.Challenge, error) {
	return b.nextIssue(phone, "")
}

func (b *fakeBackend) IssueSignupChallenge(_ context.Context, phone, name, _ string) (backend.Challenge, error) {
	return b.nextIssue(phone, name)
}

func (b *fakeBackend) nextVerify(phone, challengeID string, details backend.Details) (backend.Grant, error) {
	b.block()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verifyCalls++
	b.lastPhone, b.lastChallenge, b.lastDetails = phone, challengeID, details
	if b.verifyErr != nil {
		return backend.Grant{}, b.verifyErr
	}
	return b.grant, nil
}

func (b *fakeBackend) VerifyLoginChallenge(_ context.Context, phone, _, challengeID string) (backend.Grant, error) {
	return b.nextVerify(phone, challengeID, backend.Details{})
}

func (b *fakeBackend) VerifySignupChallenge(_ context.Context, phone, _, challengeID string, details backend.Details) (backend.Grant, error) {
	return b.nextVerify(phone, challengeID, details)
}

func (b *fakeBackend) calls() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueCalls, b.verifyCalls
}

type harness struct {
	medium  *kv.Memory
	store   *session.Store
	memory  *redirect.Memory
	backend *fakeBackend
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	medium := kv.NewMemory()
	return &harness{
		medium:  medium,
		store:   session.NewStore(medium),
		memory:  redirect.NewMemory(medium, redirect.DefaultRoutes()),
		backend: &fakeBackend{grant: grantFor(identity.RoleUser)},
		clock:   newFakeClock(),
	}
}

func (h *harness) flow(t *testing.T, v Variant) *Flow {
	t.Helper()
	f, err := New(v, Deps{
		Backend:  h.backend,
		Session:  h.store,
		Redirect: h.memory,
		Now:      h.clock.Now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func grantFor(role identity.Role) backend.Grant {
	return backend.Grant{
		Identity: identity.Identity{ID: "u-1", Name: "Asha", Role: role, Phone: "9876543210"},
		Token:    "token-1",
	}
}

func TestNewValidatesDeps(t *testing.T) {
	h := newHarness(t)
	if _, err := New(Login, Deps{Session: h.store, Redirect: h.memory}); !errors.Is(err, ErrMissingBackend) {
		t.Fatalf("expected ErrMissingBackend, got %v", err)
	}
	if _, err := New(Variant(9), Deps{Backend: h.backend, Session: h.store, Redirect: h.memory}); !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("expected ErrInvalidVariant, got %v", err)
	}
}

func TestRequestCodeValidationNeverReachesBackend(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	login := h.flow(t, Login)
	for _, phone := range []string{"", "12345", "98765432101", "phone"} {
		r := login.RequestCode(ctx, Subject{Phone: phone})
		if r.OK || r.Kind != KindValidation || r.Step != SubjectStep {
			t.Fatalf("phone %q: got %+v", phone, r)
		}
	}

	signup := h.flow(t, Signup)
	if r := signup.RequestCode(ctx, Subject{Phone: "9876543210", Name: "  "}); r.Kind != KindValidation || r.Message != msgMissingName {
		t.Fatalf("missing name: got %+v", r)
	}
	if r := signup.RequestCode(ctx, Subject{Phone: "9876543210", Name: "Asha", Email: "asha@"}); r.Kind != KindValidation || r.Message != msgInvalidEmail {
		t.Fatalf("bad email: got %+v", r)
	}

	if issues, _ := h.backend.calls(); issues != 0 {
		t.Fatalf("backend called %d times for invalid input", issues)
	}
}

func TestRequestCodeNormalizesPhone(t *testing.T) {
	h := newHarness(t)
	f := h.flow(t, Login)

	r := f.RequestCode(context.Background(), Subject{Phone: "98-76-543210"})
	if !r.OK || r.Step != ChallengeStep || r.Countdown != 60 {
		t.Fatalf("got %+v", r)
	}
	if h.backend.lastPhone != "9876543210" {
		t.Fatalf("backend saw %q", h.backend.lastPhone)
	}
	if st := f.State(); st.ChallengeID != "c1" || st.Subject.Phone != "9876543210" {
		t.Fatalf("state = %+v", st)
	}
}

func TestRequestCodeIssueRejectionStaysInSubject(t *testing.T) {
	h := newHarness(t)
	h.backend.issueErr = backend.Reject("No account found with this phone number. Please sign up first.")
	f := h.flow(t, Login)

	r := f.RequestCode(context.Background(), Subject{Phone: "9876543210"})
	if r.OK || r.Kind != KindIssue || r.Step != SubjectStep {
		t.Fatalf("got %+v", r)
	}
	if f.Message() != "No account found with this phone number. Please sign up first." {
		t.Fatalf("message = %q", f.Message())
	}
	if f.State().ChallengeID != "" {
		t.Fatal("challenge id must be empty outside ChallengeStep")
	}
}

func TestUnexpectedFailureUsesGenericMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.issueErr = errors.New("dial tcp 10.0.0.1:443: connection refused")
	f := h.flow(t, Login)

	r := f.RequestCode(context.Background(), Subject{Phone: "9876543210"})
	if r.Kind != KindUnexpected || r.Message != backend.GenericMessage {
		t.Fatalf("got %+v", r)
	}
}

func TestResendRejectedWhileCountdownRunning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Login)

	if r := f.RequestCode(ctx, Subject{Phone: "9876543210"}); !r.OK {
		t.Fatalf("RequestCode: %+v", r)
	}

	h.clock.Advance(59*time.Second + 500*time.Millisecond)
	if got := f.Countdown(h.clock.Now()); got != 1 {
		t.Fatalf("countdown = %d, want 1", got)
	}
	r := f.Resend(ctx)
	if r.OK || r.Kind != KindCooldown {
		t.Fatalf("expected cooldown rejection, got %+v", r)
	}
	if issues, _ := h.backend.calls(); issues != 1 {
		t.Fatalf("resend reached backend during cooldown: %d calls", issues)
	}

	h.clock.Advance(500 * time.Millisecond)
	if got := f.Countdown(h.clock.Now()); got != 0 {
		t.Fatalf("countdown = %d, want 0", got)
	}
	r = f.Resend(ctx)
	if !r.OK || r.Countdown != 60 {
		t.Fatalf("expected resend, got %+v", r)
	}
	if issues, _ := h.backend.calls(); issues != 2 {
		t.Fatalf("issue calls = %d, want 2", issues)
	}
	if id := f.State().ChallengeID; id != "c2" {
		t.Fatalf("challenge id = %q, want c2", id)
	}
}

func TestResendOutsideChallengeIsRejected(t *testing.T) {
	h := newHarness(t)
	f := h.flow(t, Login)

	if r := f.Resend(context.Background()); r.Kind != KindState {
		t.Fatalf("got %+v", r)
	}
	if issues, _ := h.backend.calls(); issues != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestSignupVerifyFailureKeepsChallenge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.ids = []string{"c1"}
	h.backend.verifyErr = backend.Reject("Invalid OTP")
	f := h.flow(t, Signup)

	r := f.RequestCode(ctx, Subject{Phone: "9876543210", Name: "Asha"})
	if !r.OK || r.Step != ChallengeStep || r.Countdown != 60 {
		t.Fatalf("RequestCode: %+v", r)
	}

	h.clock.Advance(12 * time.Second)
	r = f.Verify(ctx, "000000")
	if r.OK || r.Kind != KindVerify || r.Message != "Invalid OTP" {
		t.Fatalf("Verify: %+v", r)
	}

	st := f.State()
	if st.Step != ChallengeStep || st.ChallengeID != "c1" || st.Message != "Invalid OTP" {
		t.Fatalf("state = %+v", st)
	}
	if st.Countdown != 48 {
		t.Fatalf("countdown = %d, want 48", st.Countdown)
	}
	if h.backend.lastChallenge != "c1" || h.backend.lastDetails.Name != "Asha" {
		t.Fatalf("verify saw challenge %q details %+v", h.backend.lastChallenge, h.backend.lastDetails)
	}
	if h.store.IsAuthenticated() {
		t.Fatal("failed verify must not commit a session")
	}
}

func TestVerifyRequiresSixDigits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Login)
	f.RequestCode(ctx, Subject{Phone: "9876543210"})

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		if r := f.Verify(ctx, code); r.Kind != KindValidation {
			t.Fatalf("code %q: got %+v", code, r)
		}
	}
	if _, verifies := h.backend.calls(); verifies != 0 {
		t.Fatalf("backend verify called %d times", verifies)
	}
}

func TestMessageIsReplacedNotAccumulated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Login)
	f.RequestCode(ctx, Subject{Phone: "9876543210"})

	f.Verify(ctx, "12")
	h.backend.verifyErr = backend.Reject("Invalid OTP")
	f.Verify(ctx, "123456")
	if f.Message() != "Invalid OTP" {
		t.Fatalf("message = %q", f.Message())
	}
}

func TestAdminRoundTripReturnsToRememberedPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Initialize(ctx)
	h.backend.grant = grantFor(identity.RoleAdmin)

	d, err := guard.Evaluate(ctx, guard.AdminOnly, h.store, h.memory, "/admin/dashboard")
	if err != nil || d.Location != "/admin/login" {
		t.Fatalf("guard: %+v %v", d, err)
	}

	f := h.flow(t, Login)
	if r := f.Mount(ctx); !r.OK || r.Redirect != "" {
		t.Fatalf("Mount: %+v", r)
	}
	f.RequestCode(ctx, Subject{Phone: "9876543210"})
	r := f.Verify(ctx, "123456")
	if !r.OK || r.Step != Resolved || r.Redirect != "/admin/dashboard" {
		t.Fatalf("Verify: %+v", r)
	}
	if !h.store.IsAdmin() {
		t.Fatal("expected committed admin session")
	}
	if _, ok, _ := h.memory.ConsumeIfPresent(ctx); ok {
		t.Fatal("redirect memory must be consumed once")
	}
	if st := f.State(); st.ChallengeID != "" {
		t.Fatalf("challenge must be discarded, state %+v", st)
	}
}

func TestVerifyWithoutMemoryGoesToRoleHome(t *testing.T) {
	cases := map[identity.Role]string{
		identity.RoleUser:  "/",
		identity.RoleAdmin: "/admin/dashboard",
	}
	for role, want := range cases {
		t.Run(role.String(), func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.backend.grant = grantFor(role)
			f := h.flow(t, Login)

			f.RequestCode(ctx, Subject{Phone: "9876543210"})
			if r := f.Verify(ctx, "123456"); r.Redirect != want {
				t.Fatalf("redirect = %q, want %q", r.Redirect, want)
			}
		})
	}
}

func TestMountWithPresentSessionRedirects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	g := grantFor(identity.RoleAdmin)
	if err := h.store.Commit(ctx, g.Identity, g.Token); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	f := h.flow(t, Login)
	r := f.Mount(ctx)
	if !r.OK || r.Step != Resolved || r.Redirect != "/admin/dashboard" {
		t.Fatalf("Mount: %+v", r)
	}
	if r := f.RequestCode(ctx, Subject{Phone: "9876543210"}); r.Kind != KindState {
		t.Fatalf("resolved flow accepted RequestCode: %+v", r)
	}
}

func TestBackDropsChallengeKeepsSubject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Signup)

	f.RequestCode(ctx, Subject{Phone: "9876543210", Name: "Asha", Email: "asha@example.com"})
	r := f.Back()
	if !r.OK || r.Step != SubjectStep {
		t.Fatalf("Back: %+v", r)
	}
	st := f.State()
	if st.ChallengeID != "" || st.Countdown != 0 {
		t.Fatalf("challenge survived Back: %+v", st)
	}
	if st.Subject.Name != "Asha" || st.Subject.Email != "asha@example.com" {
		t.Fatalf("subject lost: %+v", st.Subject)
	}
}

func TestConcurrentSubmissionIsBusy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.entered = make(chan struct{})
	h.backend.release = make(chan struct{})
	f := h.flow(t, Login)

	first := make(chan Result, 1)
	go func() { first <- f.RequestCode(ctx, Subject{Phone: "9876543210"}) }()
	<-h.backend.entered

	if r := f.RequestCode(ctx, Subject{Phone: "9876543210"}); r.Kind != KindBusy {
		t.Fatalf("second submission: %+v", r)
	}
	if !f.State().Busy {
		t.Fatal("expected busy state")
	}

	close(h.backend.release)
	if r := <-first; !r.OK {
		t.Fatalf("first submission: %+v", r)
	}
	if issues, _ := h.backend.calls(); issues != 1 {
		t.Fatalf("issue calls = %d", issues)
	}
}

func TestCloseDiscardsInFlightVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Login)
	f.RequestCode(ctx, Subject{Phone: "9876543210"})

	h.backend.entered = make(chan struct{})
	h.backend.release = make(chan struct{})

	done := make(chan Result, 1)
	go func() { done <- f.Verify(ctx, "123456") }()
	<-h.backend.entered

	f.Close()
	close(h.backend.release)

	r := <-done
	if r.OK || r.Kind != KindClosed {
		t.Fatalf("expected discarded result, got %+v", r)
	}
	if h.store.IsAuthenticated() {
		t.Fatal("discarded verify must not commit a session")
	}
}

func TestBackDiscardsInFlightIssue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := h.flow(t, Login)
	f.RequestCode(ctx, Subject{Phone: "9876543210"})
	h.clock.Advance(time.Minute)

	h.backend.entered = make(chan struct{})
	h.backend.release = make(chan struct{})

	done := make(chan Result, 1)
	go func() { done <- f.Resend(ctx) }()
	<-h.backend.entered

	f.Back()
	close(h.backend.release)

	if r := <-done; r.Kind != KindClosed {
		t.Fatalf("expected discarded resend, got %+v", r)
	}
	if st := f.State(); st.Step != SubjectStep || st.ChallengeID != "" {
		t.Fatalf("stale resend mutated state: %+v", st)
	}
}

func TestObserverSeesRoundTrips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var mu sync.Mutex
	var events []Event
	f, err := New(Login, Deps{
		Backend:  h.backend,
		Session:  h.store,
		Redirect: h.memory,
		Now:      h.clock.Now,
		Observer: ObserverFunc(func(_ context.Context, e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Close()

	f.RequestCode(ctx, Subject{Phone: "9876543210"})
	f.Verify(ctx, "123456")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0].Op != OpIssue || events[1].Op != OpVerify || events[1].UserID != "u-1" {
		t.Fatalf("events = %+v", events)
	}
}
