package sms

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes deliveries to a logger instead of a carrier.
//
// Codes are only included when RevealCodes is set, which local development does.
type LogSender struct {
	Logger      *zap.Logger
	RevealCodes bool
}

// SendOTP logs the delivery.
func (s LogSender) SendOTP(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fields := []zap.Field{zap.String("phone", MaskPhone(phone))}
	if s.RevealCodes {
		fields = append(fields, zap.String("code", code))
	}
	logger.Info("otp delivered to log", fields...)
	return nil
}

// MaskPhone keeps the last four digits of phone.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		if i < len(phone)-4 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
