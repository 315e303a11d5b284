package storefront

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/flow"
	"github.com/aircare/otpauth/middleware"
)

const (
	maxRequestBody = 16 << 10
	msgNoFlow      = "This form has expired. Please reload the page."
	msgBadRequest  = "Invalid request body."
)

// Option configures a [Server].
type Option func(*Server)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRegistry replaces the default flow registry.
func WithRegistry(r *Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.flows = r
		}
	}
}

// Server is the storefront's backend-for-frontend: page mounts, the flow API and
// the guarded pages.
type Server struct {
	engine  *otpauth.Engine
	flows   *Registry
	logger  *zap.Logger
	metrics http.Handler
}

// New returns a server for engine.
func New(engine *otpauth.Engine, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.flows == nil {
		s.flows = NewRegistry(engine, engine.Config().Flow.IdleTimeout, logger)
	}
	return s
}

// Registry returns the server's flow registry.
func (s *Server) Registry() *Registry {
	return s.flows
}

// Handler returns the complete HTTP surface.
func (s *Server) Handler() http.Handler {
	routes := s.engine.Routes()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("GET "+routes.LoginPath, s.page(flow.Login))
	mux.HandleFunc("GET "+routes.AdminLoginPath, s.page(flow.Login))
	mux.HandleFunc("GET /signup", s.page(flow.Signup))

	mux.HandleFunc("GET /api/flow/{variant}", s.withFlow(s.state))
	mux.HandleFunc("DELETE /api/flow/{variant}", s.withFlow(s.abandon))
	mux.HandleFunc("POST /api/flow/{variant}/request", s.withFlow(s.request))
	mux.HandleFunc("POST /api/flow/{variant}/resend", s.withFlow(s.resend))
	mux.HandleFunc("POST /api/flow/{variant}/verify", s.withFlow(s.verify))
	mux.HandleFunc("POST /api/flow/{variant}/back", s.withFlow(s.back))
	mux.HandleFunc("POST /api/logout", s.logout)

	mux.Handle("GET /account", middleware.RequireUser(s.engine)(http.HandlerFunc(s.profile("account"))))
	mux.Handle("GET /orders", middleware.RequireAuthenticated(s.engine)(http.HandlerFunc(s.profile("orders"))))
	mux.Handle("GET "+routes.AdminHome, middleware.RequireAdmin(s.engine)(http.HandlerFunc(s.profile("admin_dashboard"))))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return middleware.Client(s.engine)(mux)
}

type resultView struct {
	OK        bool   `json:"ok"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Step      string `json:"step"`
	Redirect  string `json:"redirect,omitempty"`
	Countdown int    `json:"countdown"`
}

type stateView struct {
	Variant   string `json:"variant"`
	Step      string `json:"step"`
	Phone     string `json:"phone,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Message   string `json:"message,omitempty"`
	Countdown int    `json:"countdown"`
	Busy      bool   `json:"busy"`
}

func viewOf(r flow.Result) resultView {
	v := resultView{
		OK:        r.OK,
		Message:   r.Message,
		Step:      r.Step.String(),
		Redirect:  r.Redirect,
		Countdown: r.Countdown,
	}
	if !r.OK {
		v.Kind = r.Kind.String()
	}
	return v
}

func stateOf(st flow.State) stateView {
	return stateView{
		Variant:   st.Variant.String(),
		Step:      st.Step.String(),
		Phone:     st.Subject.Phone,
		Name:      st.Subject.Name,
		Email:     st.Subject.Email,
		Message:   st.Message,
		Countdown: st.Countdown,
		Busy:      st.Busy,
	}
}

func statusOf(r flow.Result) int {
	if r.OK {
		return http.StatusOK
	}
	switch r.Kind {
	case flow.KindBusy:
		return http.StatusConflict
	case flow.KindCooldown:
		return http.StatusTooManyRequests
	case flow.KindClosed:
		return http.StatusGone
	case flow.KindUnexpected:
		return http.StatusBadGateway
	case flow.KindValidation, flow.KindIssue, flow.KindVerify, flow.KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	c, _ := otpauth.ClientFromContext(r.Context())
	snap := c.Session.Initialize(r.Context())
	body := map[string]any{"authenticated": snap.IsAuthenticated()}
	if snap.IsAuthenticated() {
		body["name"] = snap.Identity.Name
		body["role"] = snap.Identity.Role.String()
	}
	writeJSON(w, http.StatusOK, body)
}

// page mounts a fresh flow, or redirects home when a session is already present.
func (s *Server) page(variant flow.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, _ := otpauth.ClientFromContext(r.Context())
		f, err := s.flows.Mount(c, variant)
		if err != nil {
			s.logger.Error("mount flow", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, resultView{Kind: flow.KindUnexpected.String(), Message: backend.GenericMessage})
			return
		}

		res := f.Mount(r.Context())
		if res.Step == flow.Resolved {
			s.flows.Remove(c.ID, f)
			http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, stateOf(f.State()))
	}
}

type flowHandler func(w http.ResponseWriter, r *http.Request, c *otpauth.Client, f *flow.Flow)

func (s *Server) withFlow(h flowHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		variant, ok := flow.ParseVariant(r.PathValue("variant"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		c, _ := otpauth.ClientFromContext(r.Context())
		f, ok := s.flows.Get(c.ID, variant)
		if !ok {
			writeJSON(w, http.StatusNotFound, resultView{Kind: flow.KindClosed.String(), Message: msgNoFlow})
			return
		}
		h(w, r, c, f)
	}
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request, _ *otpauth.Client, f *flow.Flow) {
	writeJSON(w, http.StatusOK, stateOf(f.State()))
}

func (s *Server) abandon(w http.ResponseWriter, _ *http.Request, c *otpauth.Client, f *flow.Flow) {
	s.flows.Remove(c.ID, f)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) request(w http.ResponseWriter, r *http.Request, _ *otpauth.Client, f *flow.Flow) {
	var subj flow.Subject
	if err := decode(w, r, &subj); err != nil {
		writeJSON(w, http.StatusBadRequest, resultView{Kind: flow.KindValidation.String(), Message: msgBadRequest})
		return
	}
	res := f.RequestCode(r.Context(), subj)
	writeJSON(w, statusOf(res), viewOf(res))
}

func (s *Server) resend(w http.ResponseWriter, r *http.Request, _ *otpauth.Client, f *flow.Flow) {
	res := f.Resend(r.Context())
	writeJSON(w, statusOf(res), viewOf(res))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request, c *otpauth.Client, f *flow.Flow) {
	var body struct {
		OTP string `json:"otp"`
	}
	if err := decode(w, r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, resultView{Kind: flow.KindValidation.String(), Message: msgBadRequest})
		return
	}
	res := f.Verify(r.Context(), body.OTP)
	if res.OK && res.Step == flow.Resolved {
		s.flows.Remove(c.ID, f)
	}
	writeJSON(w, statusOf(res), viewOf(res))
}

func (s *Server) back(w http.ResponseWriter, _ *http.Request, _ *otpauth.Client, f *flow.Flow) {
	res := f.Back()
	writeJSON(w, statusOf(res), viewOf(res))
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	c, _ := otpauth.ClientFromContext(r.Context())
	s.flows.Remove(c.ID, nil)

	if err := s.engine.Logout(r.Context(), c); err != nil {
		writeJSON(w, http.StatusInternalServerError, resultView{Kind: flow.KindUnexpected.String(), Message: backend.GenericMessage})
		return
	}
	writeJSON(w, http.StatusOK, resultView{OK: true, Redirect: s.engine.Routes().LoginPath})
}

func (s *Server) profile(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := middleware.SessionFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{
			"page": page,
			"name": snap.Identity.Name,
			"role": snap.Identity.Role.String(),
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(out); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
