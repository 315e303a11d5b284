// Package rest is the JSON-over-HTTP implementation of backend.Backend.
//
// A 4xx response or a body with success=false is a rejection whose message is
// shown verbatim. Network failures, 5xx responses and unreadable bodies are
// transport errors.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aircare/otpauth/backend"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// ErrMalformedResponse reports a 2xx response the client could not use.
var ErrMalformedResponse = errors.New("rest: malformed response")

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default client (10 s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to the authentication API rooted at a base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ backend.Backend = (*Client)(nil)

// New returns a client for baseURL, e.g. "https://api.aircare.example".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) IssueLoginChallenge(ctx context.Context, phone string) (backend.Challenge, error) {
	return c.issue(ctx, PathLoginSendOTP, SendOTPRequest{Phone: phone})
}

func (c *Client) IssueSignupChallenge(ctx context.Context, phone, name, email string) (backend.Challenge, error) {
	return c.issue(ctx, PathSignupSendOTP, SendOTPRequest{Phone: phone, Name: name, Email: email})
}

func (c *Client) VerifyLoginChallenge(ctx context.Context, phone, code, challengeID string) (backend.Grant, error) {
	return c.verify(ctx, PathLoginVerifyOTP, VerifyOTPRequest{Phone: phone, OTP: code, ChallengeID: challengeID})
}

func (c *Client) VerifySignupChallenge(
	ctx context.Context,
	phone, code, challengeID string,
	details backend.Details,
) (backend.Grant, error) {
	return c.verify(ctx, PathSignupVerifyOTP, VerifyOTPRequest{
		Phone:       phone,
		OTP:         code,
		ChallengeID: challengeID,
		Name:        details.Name,
		Email:       details.Email,
	})
}

func (c *Client) issue(ctx context.Context, path string, req SendOTPRequest) (backend.Challenge, error) {
	var resp ChallengeResponse
	if err := c.post(ctx, path, req, &resp, func() (bool, string) { return resp.Success, resp.Message }); err != nil {
		return backend.Challenge{}, err
	}
	if resp.ChallengeID == "" {
		return backend.Challenge{}, fmt.Errorf("%w: missing challengeId", ErrMalformedResponse)
	}
	return backend.Challenge{ID: resp.ChallengeID, Message: resp.Message}, nil
}

func (c *Client) verify(ctx context.Context, path string, req VerifyOTPRequest) (backend.Grant, error) {
	var resp GrantResponse
	if err := c.post(ctx, path, req, &resp, func() (bool, string) { return resp.Success, resp.Message }); err != nil {
		return backend.Grant{}, err
	}
	if resp.User == nil || resp.Token == "" {
		return backend.Grant{}, fmt.Errorf("%w: missing user or token", ErrMalformedResponse)
	}
	if err := resp.User.Validate(); err != nil {
		return backend.Grant{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return backend.Grant{Identity: *resp.User, Token: resp.Token, Message: resp.Message}, nil
}

// post sends body and decodes into out; outcome reads success and message from out.
func (c *Client) post(ctx context.Context, path string, body, out any, outcome func() (bool, string)) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return fmt.Errorf("rest: %s: status %d", path, resp.StatusCode)
	}

	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out)
	success, message := outcome()

	if resp.StatusCode >= http.StatusBadRequest {
		return backend.Reject(message)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if !success {
		return backend.Reject(message)
	}
	return nil
}
