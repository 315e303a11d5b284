package internaldefs

import (
	"sort"

	"github.com/aircare/otpauth"
)

// Series is one labelled sample of a [Family].
type Series struct {
	ID    otpauth.MetricID
	Value string
}

// Family groups engine counters that differ in a single label. An empty Label
// means the family has one unlabelled series.
type Family struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

// Families lists every exported counter family in render order.
var Families = []Family{
	{
		Name:  "storefront_challenges_total",
		Help:  "Code issue attempts by outcome.",
		Label: "outcome",
		Series: []Series{
			{ID: otpauth.MetricChallengeIssued, Value: "issued"},
			{ID: otpauth.MetricChallengeResent, Value: "resent"},
			{ID: otpauth.MetricChallengeIssueFailed, Value: "failed"},
		},
	},
	{
		Name:  "storefront_verifications_total",
		Help:  "Code verifications by outcome.",
		Label: "outcome",
		Series: []Series{
			{ID: otpauth.MetricVerifySuccess, Value: "accepted"},
			{ID: otpauth.MetricVerifyFailure, Value: "rejected"},
		},
	},
	{
		Name:  "storefront_sign_ins_total",
		Help:  "Completed sign-in flows by variant.",
		Label: "variant",
		Series: []Series{
			{ID: otpauth.MetricLoginSuccess, Value: "login"},
			{ID: otpauth.MetricSignupSuccess, Value: "signup"},
		},
	},
	{
		Name:  "storefront_session_events_total",
		Help:  "Session store transitions.",
		Label: "event",
		Series: []Series{
			{ID: otpauth.MetricSessionCommitted, Value: "committed"},
			{ID: otpauth.MetricSessionCleared, Value: "cleared"},
			{ID: otpauth.MetricSessionCorruptReset, Value: "corrupt_reset"},
			{ID: otpauth.MetricLogout, Value: "logout"},
		},
	},
	{
		Name:  "storefront_guard_decisions_total",
		Help:  "Route guard outcomes for protected pages.",
		Label: "decision",
		Series: []Series{
			{ID: otpauth.MetricGuardAllowed, Value: "render"},
			{ID: otpauth.MetricGuardPending, Value: "pending"},
			{ID: otpauth.MetricGuardLoginRedirect, Value: "login_redirect"},
			{ID: otpauth.MetricGuardForbidden, Value: "forbidden"},
		},
	},
	{
		Name:   "storefront_redirects_remembered_total",
		Help:   "Denied destinations remembered for after sign-in.",
		Series: []Series{{ID: otpauth.MetricRedirectRemembered}},
	},
}

// Latency describes the backend round-trip histogram.
var Latency = struct {
	ID   otpauth.MetricID
	Name string
	Help string
}{
	ID:   otpauth.MetricBackendLatency,
	Name: "storefront_backend_latency_seconds",
	Help: "Challenge backend round-trip latency.",
}

// AuditDropped describes the dropped audit event counter, labelled by event_type.
var AuditDropped = struct {
	Name  string
	Help  string
	Label string
}{
	Name:  "storefront_audit_dropped_total",
	Help:  "Audit events lost to dispatcher backpressure or cancellation.",
	Label: "event_type",
}

// LabelCount is one value of a labelled count.
type LabelCount struct {
	Value string
	Count uint64
}

// AuditEventTypes are always exported, at zero when nothing was dropped.
var AuditEventTypes = []string{
	otpauth.AuditChallengeIssue,
	otpauth.AuditChallengeVerify,
	otpauth.AuditGuardDenied,
	otpauth.AuditSessionClear,
	otpauth.AuditSessionCommit,
	otpauth.AuditSessionCorruptReset,
}

// DroppedSeries returns the audit drop counts in a stable order: the known event
// types first, then any others sorted by name.
func DroppedSeries(dropped map[string]uint64) []LabelCount {
	out := make([]LabelCount, 0, len(AuditEventTypes)+len(dropped))
	known := make(map[string]struct{}, len(AuditEventTypes))
	for _, t := range AuditEventTypes {
		known[t] = struct{}{}
		out = append(out, LabelCount{Value: t, Count: dropped[t]})
	}
	var extra []string
	for t := range dropped {
		if _, ok := known[t]; !ok {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	for _, t := range extra {
		out = append(out, LabelCount{Value: t, Count: dropped[t]})
	}
	return out
}

// HistogramBounds are the upper bounds of the eight latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into le counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
