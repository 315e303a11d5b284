package flow

import "time"

// Variant selects login or signup.
type Variant uint8

const (
	Login Variant = iota + 1
	Signup
)

func (v Variant) String() string {
	switch v {
	case Login:
		return "login"
	case Signup:
		return "signup"
	default:
		return "unknown"
	}
}

// ParseVariant maps "login" and "signup" to a [Variant].
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "login":
		return Login, true
	case "signup":
		return Signup, true
	default:
		return 0, false
	}
}

// Step is the state of the challenge/response exchange.
type Step uint8

const (
	// SubjectStep collects the phone (and signup details).
	SubjectStep Step = iota
	// ChallengeStep awaits the six-digit code.
	ChallengeStep
	// Resolved is terminal: a session was committed or was already present.
	Resolved
)

func (s Step) String() string {
	switch s {
	case SubjectStep:
		return "subject"
	case ChallengeStep:
		return "challenge"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Kind classifies the outcome of a flow operation.
type Kind uint8

const (
	KindNone Kind = iota
	// KindValidation is a locally detected input error; the backend was not called.
	KindValidation
	// KindIssue is a backend rejection of an issue or resend.
	KindIssue
	// KindVerify is a backend rejection of a code.
	KindVerify
	// KindUnexpected is a transport or storage failure.
	KindUnexpected
	// KindBusy rejects a submission while another one is in flight.
	KindBusy
	// KindClosed reports a flow that was closed, or a result discarded by Close or Back.
	KindClosed
	// KindCooldown rejects a resend before the countdown reached zero.
	KindCooldown
	// KindState rejects an operation not valid in the current step.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindIssue:
		return "issue"
	case KindVerify:
		return "verify"
	case KindUnexpected:
		return "unexpected"
	case KindBusy:
		return "busy"
	case KindClosed:
		return "closed"
	case KindCooldown:
		return "cooldown"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Subject is what the person typed in the first step. Name and Email are signup only.
type Subject struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Result is returned by every flow operation. Failures are values, never errors.
type Result struct {
	OK        bool
	Kind      Kind
	Message   string
	Step      Step
	Redirect  string
	Countdown int
}

// State is a read-only view of a flow.
type State struct {
	Variant     Variant
	Step        Step
	Subject     Subject
	ChallengeID string
	IssuedAt    time.Time
	Countdown   int
	Message     string
	Busy        bool
	Closed      bool
}

// Op names the backend operation an [Event] reports.
type Op uint8

const (
	OpIssue Op = iota + 1
	OpResend
	OpVerify
)

func (o Op) String() string {
	switch o {
	case OpIssue:
		return "issue"
	case OpResend:
		return "resend"
	case OpVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// Event describes one completed backend round trip.
type Event struct {
	Variant Variant
	Op      Op
	OK      bool
	Kind    Kind
	UserID  string
	Role    string
	Elapsed time.Duration
}
