package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aircare/otpauth/otp"
	"github.com/aircare/otpauth/otp/pgdir"
	"github.com/aircare/otpauth/sms"
	"github.com/aircare/otpauth/token"
)

// openRedis connects to cfg.RedisAddr, or starts an in-process miniredis when it is empty.
func openRedis(ctx context.Context) (redis.UniversalClient, func(), error) {
	if cfg.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("STOREFRONT_REDIS_ADDR not set, using in-process miniredis", zap.String("addr", mr.Addr()))
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func newTokenManager() (*token.Manager, error) {
	tc := token.Config{
		TTL:    cfg.TokenTTL,
		Issuer: cfg.TokenIssuer,
	}
	if cfg.TokenSecret != "" {
		tc.SigningMethod = token.MethodHS256
		tc.PrivateKey = []byte(cfg.TokenSecret)
		return token.NewManager(tc)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	logger.Warn("STOREFRONT_TOKEN_SECRET not set, signing with an ephemeral ed25519 key")
	tc.SigningMethod = token.MethodEd25519
	tc.PrivateKey = priv
	tc.PublicKey = pub
	return token.NewManager(tc)
}

func newSender() sms.Sender {
	if cfg.SMSLocalKey != "" {
		return sms.NewSMSLocalClient(cfg.SMSLocalKey, "", cfg.SMSLocalSender)
	}
	logger.Warn("STOREFRONT_SMSLOCAL_API_KEY not set, codes go to the log")
	return sms.LogSender{Logger: logger.Named("sms"), RevealCodes: cfg.RevealCodes}
}

func newDirectory(ctx context.Context) (otp.Directory, func(), error) {
	if cfg.DatabaseURL == "" {
		return otp.NewMemoryDirectory(), func() {}, nil
	}
	db, err := pgdir.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pgdir.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return pgdir.New(db), func() { _ = db.Close() }, nil
}

// newOTPService wires the challenge service over rdb.
func newOTPService(ctx context.Context, rdb redis.UniversalClient) (*otp.Service, *token.Manager, func(), error) {
	tokens, err := newTokenManager()
	if err != nil {
		return nil, nil, nil, err
	}
	dir, closeDir, err := newDirectory(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := otp.NewService(rdb, dir, newSender(), tokens, otp.DefaultConfig(), otp.WithLogger(logger.Named("otp")))
	if err != nil {
		closeDir()
		return nil, nil, nil, err
	}
	return svc, tokens, closeDir, nil
}
