package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/identity"
	"github.com/aircare/otpauth/internal"
	"github.com/aircare/otpauth/internal/rate"
	"github.com/aircare/otpauth/internal/stores"
	"github.com/aircare/otpauth/sms"
	"github.com/aircare/otpauth/token"
)

const (
	purposeLogin  uint8 = 1
	purposeSignup uint8 = 2
)

// Messages returned to the person at the keyboard.
const (
	MsgCodeSent        = "OTP sent successfully"
	MsgInvalidPhone    = "Please enter a valid 10-digit phone number."
	MsgMissingName     = "Name is required."
	MsgInvalidEmail    = "Please enter a valid email address."
	MsgUnknownPhone    = "No account found with this phone number. Please sign up first."
	MsgPhoneTaken      = "An account with this phone number already exists. Please log in."
	MsgTooManyRequests = "Too many OTP requests. Please try again later."
	MsgInvalidCode     = "Invalid OTP"
	MsgExpired         = "OTP has expired. Please request a new one."
	MsgTooManyAttempts = "Too many incorrect attempts. Please request a new OTP."
	MsgLoggedIn        = "Login successful"
	MsgSignedUp        = "Signup successful"
)

var (
	ErrMissingRedis     = errors.New("otp: redis client is required")
	ErrMissingDirectory = errors.New("otp: directory is required")
	ErrMissingSender    = errors.New("otp: sms sender is required")
	ErrMissingTokens    = errors.New("otp: token manager is required")
)

// Option configures a [Service].
type Option func(*Service)

// WithLogger sets the service logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the random challenge and user id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Service issues six-digit codes over SMS and trades a correct code for a
// credential token. It implements backend.Backend.
type Service struct {
	cfg        Config
	challenges *stores.ChallengeStore
	limiter    *rate.Limiter
	directory  Directory
	sender     sms.Sender
	tokens     *token.Manager
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

var _ backend.Backend = (*Service)(nil)

// NewService validates cfg and wires the service.
func NewService(
	rdb redis.UniversalClient,
	directory Directory,
	sender sms.Sender,
	tokens *token.Manager,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	switch {
	case rdb == nil:
		return nil, ErrMissingRedis
	case directory == nil:
		return nil, ErrMissingDirectory
	case sender == nil:
		return nil, ErrMissingSender
	case tokens == nil:
		return nil, ErrMissingTokens
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		directory: directory,
		sender:    sender,
		tokens:    tokens,
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.challenges = stores.NewChallengeStore(rdb, cfg.KeyPrefix+"c").WithClock(s.now)
	s.limiter = rate.New(rdb, rate.Config{
		Prefix: cfg.KeyPrefix + "i",
		Max:    cfg.MaxRequests,
		Window: cfg.RequestWindow,
	})
	return s, nil
}

func (s *Service) IssueLoginChallenge(ctx context.Context, phone string) (backend.Challenge, error) {
	phone, ok := identity.ValidPhone(phone)
	if !ok {
		return backend.Challenge{}, backend.Reject(MsgInvalidPhone)
	}
	if _, err := s.directory.FindByPhone(ctx, phone); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return backend.Challenge{}, backend.Reject(MsgUnknownPhone)
		}
		return backend.Challenge{}, fmt.Errorf("otp: directory: %w", err)
	}
	return s.issue(ctx, purposeLogin, phone)
}

func (s *Service) IssueSignupChallenge(ctx context.Context, phone, name, email string) (backend.Challenge, error) {
	phone, ok := identity.ValidPhone(phone)
	if !ok {
		return backend.Challenge{}, backend.Reject(MsgInvalidPhone)
	}
	if msg := checkDetails(name, email); msg != "" {
		return backend.Challenge{}, backend.Reject(msg)
	}
	_, err := s.directory.FindByPhone(ctx, phone)
	switch {
	case err == nil:
		return backend.Challenge{}, backend.Reject(MsgPhoneTaken)
	case !errors.Is(err, ErrUserNotFound):
		return backend.Challenge{}, fmt.Errorf("otp: directory: %w", err)
	}
	return s.issue(ctx, purposeSignup, phone)
}

func (s *Service) VerifyLoginChallenge(ctx context.Context, phone, code, challengeID string) (backend.Grant, error) {
	phone, ok := identity.ValidPhone(phone)
	if !ok {
		return backend.Grant{}, backend.Reject(MsgInvalidPhone)
	}
	if err := s.consume(ctx, purposeLogin, phone, code, challengeID); err != nil {
		return backend.Grant{}, err
	}

	id, err := s.directory.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return backend.Grant{}, backend.Reject(MsgUnknownPhone)
		}
		return backend.Grant{}, fmt.Errorf("otp: directory: %w", err)
	}
	return s.grant(id, MsgLoggedIn)
}

func (s *Service) VerifySignupChallenge(
	ctx context.Context,
	phone, code, challengeID string,
	details backend.Details,
) (backend.Grant, error) {
	phone, ok := identity.ValidPhone(phone)
	if !ok {
		return backend.Grant{}, backend.Reject(MsgInvalidPhone)
	}
	name, email := strings.TrimSpace(details.Name), strings.TrimSpace(details.Email)
	if msg := checkDetails(name, email); msg != "" {
		return backend.Grant{}, backend.Reject(msg)
	}
	if err := s.consume(ctx, purposeSignup, phone, code, challengeID); err != nil {
		return backend.Grant{}, err
	}

	id, err := s.directory.Create(ctx, identity.Identity{
		ID:    s.newID(),
		Name:  name,
		Role:  identity.RoleUser,
		Email: email,
		Phone: phone,
	})
	if err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			return backend.Grant{}, backend.Reject(MsgPhoneTaken)
		}
		return backend.Grant{}, fmt.Errorf("otp: directory: %w", err)
	}
	s.logger.Info("account created", zap.String("user_id", id.ID))
	return s.grant(id, MsgSignedUp)
}

func (s *Service) issue(ctx context.Context, purpose uint8, phone string) (backend.Challenge, error) {
	if err := s.limiter.Hit(ctx, phone); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return backend.Challenge{}, backend.Reject(MsgTooManyRequests)
		}
		return backend.Challenge{}, fmt.Errorf("otp: throttle: %w", err)
	}

	code, err := internal.NewOTP(s.cfg.CodeDigits)
	if err != nil {
		return backend.Challenge{}, fmt.Errorf("otp: generate: %w", err)
	}
	challengeID := s.newID()

	record := &stores.ChallengeRecord{
		Purpose:   purpose,
		Phone:     phone,
		CodeHash:  internal.HashCode(challengeID, code),
		ExpiresAt: s.now().Add(s.cfg.ChallengeTTL).Unix(),
	}
	if err := s.challenges.Save(ctx, challengeID, record, s.cfg.ChallengeTTL); err != nil {
		return backend.Challenge{}, fmt.Errorf("otp: save: %w", err)
	}

	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		_ = s.challenges.Delete(ctx, challengeID)
		s.logger.Warn("otp delivery failed", zap.String("phone", sms.MaskPhone(phone)), zap.Error(err))
		return backend.Challenge{}, fmt.Errorf("otp: deliver: %w", err)
	}

	s.logger.Info("challenge issued",
		zap.String("purpose", purposeName(purpose)),
		zap.String("phone", sms.MaskPhone(phone)),
		zap.String("challenge_id", challengeID),
	)
	return backend.Challenge{ID: challengeID, Message: MsgCodeSent}, nil
}

func (s *Service) consume(ctx context.Context, purpose uint8, phone, code, challengeID string) error {
	code = strings.TrimSpace(code)
	if len(code) != s.cfg.CodeDigits || strings.Trim(code, "0123456789") != "" {
		return backend.Reject(MsgInvalidCode)
	}
	if challengeID == "" {
		return backend.Reject(MsgExpired)
	}

	_, err := s.challenges.Consume(ctx, challengeID, purpose, phone, internal.HashCode(challengeID, code), s.cfg.MaxAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeCodeMismatch):
		return backend.Reject(MsgInvalidCode)
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return backend.Reject(MsgTooManyAttempts)
	case errors.Is(err, stores.ErrChallengeNotFound):
		return backend.Reject(MsgExpired)
	default:
		return fmt.Errorf("otp: consume: %w", err)
	}
}

func (s *Service) grant(id identity.Identity, message string) (backend.Grant, error) {
	tok, err := s.tokens.Issue(id)
	if err != nil {
		return backend.Grant{}, fmt.Errorf("otp: token: %w", err)
	}
	return backend.Grant{Identity: id, Token: tok, Message: message}, nil
}

func checkDetails(name, email string) string {
	if strings.TrimSpace(name) == "" {
		return MsgMissingName
	}
	if email = strings.TrimSpace(email); email != "" && !identity.ValidEmail(email) {
		return MsgInvalidEmail
	}
	return ""
}

func purposeName(purpose uint8) string {
	switch purpose {
	case purposeLogin:
		return "login"
	case purposeSignup:
		return "signup"
	default:
		return "unknown"
	}
}
