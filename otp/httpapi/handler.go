package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/backend/rest"
)

const (
	maxRequestBody = 16 << 10
	msgBadRequest  = "Invalid request body."
)

// Handler exposes a backend.Backend over HTTP.
type Handler struct {
	backend backend.Backend
	logger  *zap.Logger
}

// New returns a handler delegating to b.
func New(b backend.Backend, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{backend: b, logger: logger}
}

// Register mounts the four endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+rest.PathLoginSendOTP, h.sendOTP(false))
	mux.HandleFunc("POST "+rest.PathSignupSendOTP, h.sendOTP(true))
	mux.HandleFunc("POST "+rest.PathLoginVerifyOTP, h.verifyOTP(false))
	mux.HandleFunc("POST "+rest.PathSignupVerifyOTP, h.verifyOTP(true))
}

// Routes returns a mux serving only the authentication API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func (h *Handler) sendOTP(signup bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rest.SendOTPRequest
		if !decode(w, r, &body) {
			writeJSON(w, http.StatusBadRequest, rest.ChallengeResponse{Message: msgBadRequest})
			return
		}

		var (
			ch  backend.Challenge
			err error
		)
		if signup {
			ch, err = h.backend.IssueSignupChallenge(r.Context(), body.Phone, body.Name, body.Email)
		} else {
			ch, err = h.backend.IssueLoginChallenge(r.Context(), body.Phone)
		}
		if err != nil {
			status := h.failureStatus(r.Context(), "send-otp", err)
			writeJSON(w, status, rest.ChallengeResponse{Message: backend.MessageOf(err)})
			return
		}

		writeJSON(w, http.StatusOK, rest.ChallengeResponse{
			Success:     true,
			Message:     ch.Message,
			ChallengeID: ch.ID,
		})
	}
}

func (h *Handler) verifyOTP(signup bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body rest.VerifyOTPRequest
		if !decode(w, r, &body) {
			writeJSON(w, http.StatusBadRequest, rest.GrantResponse{Message: msgBadRequest})
			return
		}

		var (
			grant backend.Grant
			err   error
		)
		if signup {
			grant, err = h.backend.VerifySignupChallenge(r.Context(), body.Phone, body.OTP, body.ChallengeID, backend.Details{
				Name:  body.Name,
				Email: body.Email,
			})
		} else {
			grant, err = h.backend.VerifyLoginChallenge(r.Context(), body.Phone, body.OTP, body.ChallengeID)
		}
		if err != nil {
			status := h.failureStatus(r.Context(), "verify-otp", err)
			writeJSON(w, status, rest.GrantResponse{Message: backend.MessageOf(err)})
			return
		}

		user := grant.Identity
		writeJSON(w, http.StatusOK, rest.GrantResponse{
			Success: true,
			Message: grant.Message,
			User:    &user,
			Token:   grant.Token,
		})
	}
}

func (h *Handler) failureStatus(ctx context.Context, op string, err error) int {
	if backend.IsRejection(err) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return http.StatusServiceUnavailable
	}
	h.logger.Error("auth api failure", zap.String("op", op), zap.Error(err))
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(out); err != nil {
		return false
	}
	return errors.Is(dec.Decode(&struct{}{}), io.EOF)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
