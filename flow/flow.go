package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/redirect"
)

// CodeDigits is the length of a one-time code.
const CodeDigits = 6

const (
	msgInvalidPhone      = "Please enter a valid 10-digit phone number."
	msgMissingName       = "Please enter your name."
	msgInvalidEmail      = "Please enter a valid email address."
	msgInvalidCode       = "Please enter the 6-digit OTP."
	msgBusy              = "Please wait for the current request to finish."
	msgClosed            = "This form is no longer active."
	msgNoChallenge       = "Please request an OTP first."
	msgAlreadyChallenged = "An OTP has already been sent. Go back to change your details."
	msgResolved          = "You are already signed in."
	msgCooldown          = "Please wait %d seconds before requesting a new OTP."
	msgCodeSent          = "OTP sent successfully."
	msgLoggedIn          = "Login successful."
	msgSignedUp          = "Account created successfully."
)

// Flow is one mounted login or signup form.
//
// Every operation returns a [Result]; backend and storage failures are folded into
// it. At most one backend call is in flight at a time. A result that arrives after
// [Flow.Back] or [Flow.Close] is discarded without touching state or the session.
type Flow struct {
	variant Variant
	deps    Deps
	log     *zap.Logger

	busy atomic.Bool

	mu          sync.Mutex
	step        Step
	subject     Subject
	challengeID string
	issuedAt    time.Time
	resendAt    time.Time
	message     string
	gen         uint64
	closed      bool
	done        chan struct{}
}

// New creates a flow in [SubjectStep].
func New(variant Variant, deps Deps) (*Flow, error) {
	switch variant {
	case Login, Signup:
	default:
		return nil, ErrInvalidVariant
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	deps = deps.withDefaults()

	return &Flow{
		variant: variant,
		deps:    deps,
		log:     deps.Logger.With(zap.String("variant", variant.String())),
		step:    SubjectStep,
		done:    make(chan struct{}),
	}, nil
}

// Variant returns the flow's variant.
func (f *Flow) Variant() Variant {
	return f.variant
}

// Mount resolves the session and, when someone is already signed in, resolves the
// flow immediately with a redirect to that role's home.
func (f *Flow) Mount(ctx context.Context) Result {
	snap := f.deps.Session.Initialize(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.closedLocked()
	}
	if snap.IsAuthenticated() {
		f.gen++
		f.step = Resolved
		f.resetChallengeLocked()
		return Result{OK: true, Step: Resolved, Redirect: f.routes().HomeFor(snap.Identity.Role)}
	}
	return Result{OK: true, Step: f.step, Message: f.message, Countdown: f.countdownLocked(f.deps.Now())}
}

// RequestCode validates subj and asks the backend to issue a challenge.
func (f *Flow) RequestCode(ctx context.Context, subj Subject) Result {
	if !f.busy.CompareAndSwap(false, true) {
		return f.busyResult()
	}
	defer f.busy.Store(false)

	f.mu.Lock()
	if r, ok := f.admitLocked(SubjectStep); !ok {
		f.mu.Unlock()
		return r
	}
	clean, problem := validateSubject(f.variant, subj)
	f.subject = clean
	if problem != "" {
		r := f.failLocked(KindValidation, problem)
		f.mu.Unlock()
		return r
	}
	gen := f.gen
	f.mu.Unlock()

	start := f.deps.Now()
	ch, err := f.issue(ctx, clean)
	now := f.deps.Now()
	f.observe(ctx, Event{Variant: f.variant, Op: OpIssue, OK: err == nil, Kind: kindOf(KindIssue, err), Elapsed: now.Sub(start)})

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.staleLocked(gen) {
		return f.discardedLocked()
	}
	if err != nil {
		return f.backendFailLocked(KindIssue, err)
	}
	if ch.ID == "" {
		f.log.Warn("issue succeeded without challenge id")
		return f.failLocked(KindUnexpected, backend.GenericMessage)
	}

	f.startChallengeLocked(ch, now)
	return Result{OK: true, Step: f.step, Message: f.message, Countdown: f.countdownLocked(now)}
}

// Resend re-issues the challenge for the same subject once the countdown reached zero.
// Before that no backend call is made.
func (f *Flow) Resend(ctx context.Context) Result {
	if !f.busy.CompareAndSwap(false, true) {
		return f.busyResult()
	}
	defer f.busy.Store(false)

	f.mu.Lock()
	if r, ok := f.admitLocked(ChallengeStep); !ok {
		f.mu.Unlock()
		return r
	}
	if left := f.countdownLocked(f.deps.Now()); left > 0 {
		r := f.failLocked(KindCooldown, fmt.Sprintf(msgCooldown, left))
		f.mu.Unlock()
		return r
	}
	subj, gen := f.subject, f.gen
	f.mu.Unlock()

	start := f.deps.Now()
	ch, err := f.issue(ctx, subj)
	now := f.deps.Now()
	f.observe(ctx, Event{Variant: f.variant, Op: OpResend, OK: err == nil, Kind: kindOf(KindIssue, err), Elapsed: now.Sub(start)})

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.staleLocked(gen) {
		return f.discardedLocked()
	}
	if err != nil {
		return f.backendFailLocked(KindIssue, err)
	}
	if ch.ID == "" {
		f.log.Warn("resend succeeded without challenge id")
		return f.failLocked(KindUnexpected, backend.GenericMessage)
	}

	f.startChallengeLocked(ch, now)
	return Result{OK: true, Step: f.step, Message: f.message, Countdown: f.countdownLocked(now)}
}

// Verify submits code. On success the session is committed first, then the
// remembered destination is consumed to pick the redirect.
func (f *Flow) Verify(ctx context.Context, code string) Result {
	if !f.busy.CompareAndSwap(false, true) {
		return f.busyResult()
	}
	defer f.busy.Store(false)

	f.mu.Lock()
	if r, ok := f.admitLocked(ChallengeStep); !ok {
		f.mu.Unlock()
		return r
	}
	code = strings.TrimSpace(code)
	if !validCode(code) {
		r := f.failLocked(KindValidation, msgInvalidCode)
		f.mu.Unlock()
		return r
	}
	subj, challengeID, gen := f.subject, f.challengeID, f.gen
	f.mu.Unlock()

	start := f.deps.Now()
	grant, err := f.verify(ctx, subj, code, challengeID)
	ev := Event{Variant: f.variant, Op: OpVerify, OK: err == nil, Kind: kindOf(KindVerify, err), Elapsed: f.deps.Now().Sub(start)}
	if err == nil {
		ev.UserID, ev.Role = grant.Identity.ID, grant.Identity.Role.String()
	}
	f.observe(ctx, ev)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.staleLocked(gen) {
		return f.discardedLocked()
	}
	if err != nil {
		return f.backendFailLocked(KindVerify, err)
	}

	if err := f.deps.Session.Commit(ctx, grant.Identity, grant.Token); err != nil {
		f.log.Error("session commit failed", zap.Error(err))
		return f.failLocked(KindUnexpected, backend.GenericMessage)
	}

	target := f.routes().HomeFor(grant.Identity.Role)
	if path, ok, err := f.deps.Redirect.ConsumeIfPresent(ctx); err != nil {
		f.log.Warn("redirect memory unavailable", zap.Error(err))
	} else if ok && !f.routes().IsLoginPath(path) {
		target = path
	}

	f.gen++
	f.step = Resolved
	f.resetChallengeLocked()
	f.message = messageOr(grant.Message, f.successMessage())
	return Result{OK: true, Step: Resolved, Message: f.message, Redirect: target}
}

// Back returns from [ChallengeStep] to [SubjectStep], dropping the challenge and
// its countdown but keeping the typed subject.
func (f *Flow) Back() Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.closedLocked()
	}
	switch f.step {
	case SubjectStep:
		return Result{OK: true, Step: SubjectStep, Message: f.message}
	case ChallengeStep:
		f.gen++
		f.step = SubjectStep
		f.resetChallengeLocked()
		f.message = ""
		return Result{OK: true, Step: SubjectStep}
	case Resolved:
		return f.failLocked(KindState, msgResolved)
	}
	return f.failLocked(KindState, msgNoChallenge)
}

// Countdown returns the whole seconds left until a resend is allowed at now.
func (f *Flow) Countdown(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countdownLocked(now)
}

// WaitResend blocks until the resend countdown reaches zero. It returns nil at once
// when no countdown is running, ctx.Err() on cancellation, or [ErrClosed].
func (f *Flow) WaitResend(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	var wait time.Duration
	if f.step == ChallengeStep {
		wait = f.resendAt.Sub(f.deps.Now())
	}
	done := f.done
	f.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrClosed
	}
}

// Close unmounts the flow. Pending waits return [ErrClosed]; results still in
// flight are discarded.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.gen++
	f.resetChallengeLocked()
	close(f.done)
}

// Message returns the single message currently shown by the flow.
func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// State returns a copy of the flow's view state.
func (f *Flow) State() State {
	now := f.deps.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	return State{
		Variant:     f.variant,
		Step:        f.step,
		Subject:     f.subject,
		ChallengeID: f.challengeID,
		IssuedAt:    f.issuedAt,
		Countdown:   f.countdownLocked(now),
		Message:     f.message,
		Busy:        f.busy.Load(),
		Closed:      f.closed,
	}
}

func (f *Flow) issue(ctx context.Context, subj Subject) (backend.Challenge, error) {
	switch f.variant {
	case Login:
		return f.deps.Backend.IssueLoginChallenge(ctx, subj.Phone)
	case Signup:
		return f.deps.Backend.IssueSignupChallenge(ctx, subj.Phone, subj.Name, subj.Email)
	}
	return backend.Challenge{}, ErrInvalidVariant
}

func (f *Flow) verify(ctx context.Context, subj Subject, code, challengeID string) (backend.Grant, error) {
	switch f.variant {
	case Login:
		return f.deps.Backend.VerifyLoginChallenge(ctx, subj.Phone, code, challengeID)
	case Signup:
		return f.deps.Backend.VerifySignupChallenge(ctx, subj.Phone, code, challengeID, backend.Details{
			Name:  subj.Name,
			Email: subj.Email,
		})
	}
	return backend.Grant{}, ErrInvalidVariant
}

func (f *Flow) routes() redirect.Routes {
	return f.deps.Redirect.Routes()
}

func (f *Flow) observe(ctx context.Context, e Event) {
	if f.deps.Observer != nil {
		f.deps.Observer.ObserveFlow(ctx, e)
	}
}

func (f *Flow) successMessage() string {
	if f.variant == Signup {
		return msgSignedUp
	}
	return msgLoggedIn
}

func (f *Flow) admitLocked(want Step) (Result, bool) {
	if f.closed {
		return f.closedLocked(), false
	}
	if f.step == want {
		return Result{}, true
	}
	switch f.step {
	case Resolved:
		return f.failLocked(KindState, msgResolved), false
	case SubjectStep:
		return f.failLocked(KindState, msgNoChallenge), false
	case ChallengeStep:
		return f.failLocked(KindState, msgAlreadyChallenged), false
	}
	return f.failLocked(KindState, msgNoChallenge), false
}

func (f *Flow) startChallengeLocked(ch backend.Challenge, now time.Time) {
	f.step = ChallengeStep
	f.challengeID = ch.ID
	f.issuedAt = now
	f.resendAt = now.Add(f.deps.ResendCooldown)
	f.message = messageOr(ch.Message, msgCodeSent)
}

func (f *Flow) resetChallengeLocked() {
	f.challengeID = ""
	f.issuedAt = time.Time{}
	f.resendAt = time.Time{}
}

func (f *Flow) staleLocked(gen uint64) bool {
	return f.closed || gen != f.gen
}

func (f *Flow) failLocked(kind Kind, message string) Result {
	f.message = message
	return Result{Kind: kind, Message: message, Step: f.step, Countdown: f.countdownLocked(f.deps.Now())}
}

func (f *Flow) backendFailLocked(kind Kind, err error) Result {
	if !backend.IsRejection(err) {
		f.log.Warn("backend call failed", zap.String("kind", kind.String()), zap.Error(err))
		kind = KindUnexpected
	}
	return f.failLocked(kind, backend.MessageOf(err))
}

func (f *Flow) closedLocked() Result {
	return Result{Kind: KindClosed, Message: msgClosed, Step: f.step}
}

func (f *Flow) discardedLocked() Result {
	return Result{Kind: KindClosed, Step: f.step}
}

func (f *Flow) busyResult() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Result{Kind: KindBusy, Message: msgBusy, Step: f.step, Countdown: f.countdownLocked(f.deps.Now())}
}

func (f *Flow) countdownLocked(now time.Time) int {
	if f.step != ChallengeStep || f.resendAt.IsZero() {
		return 0
	}
	left := f.resendAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func validateSubject(variant Variant, subj Subject) (Subject, string) {
	phone, ok := identity.ValidPhone(subj.Phone)
	clean := Subject{Phone: phone}
	if variant == Signup {
		clean.Name = strings.TrimSpace(subj.Name)
		clean.Email = strings.TrimSpace(subj.Email)
	}

	if !ok {
		return clean, msgInvalidPhone
	}
	if variant == Signup {
		if clean.Name == "" {
			return clean, msgMissingName
		}
		if clean.Email != "" && !identity.ValidEmail(clean.Email) {
			return clean, msgInvalidEmail
		}
	}
	return clean, ""
}

func validCode(code string) bool {
	if len(code) != CodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func kindOf(rejection Kind, err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case backend.IsRejection(err):
		return rejection
	default:
		return KindUnexpected
	}
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
