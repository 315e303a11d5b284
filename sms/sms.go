// Package sms delivers one-time codes to phones.
package sms

import (
	"context"
	"errors"
	"sync"
)

// ErrNotConfigured is returned by senders missing credentials.
var ErrNotConfigured = errors.New("sms: sender not configured")

// Sender delivers a one-time code to a 10-digit phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, phone, code string) error

func (f SenderFunc) SendOTP(ctx context.Context, phone, code string) error { return f(ctx, phone, code) }

// Message is one delivery captured by [Recorder].
type Message struct {
	Phone string
	Code  string
}

// Recorder keeps every code it is asked to send. Local development and tests only.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

// SendOTP records the delivery.
func (r *Recorder) SendOTP(ctx context.Context, phone, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sent = append(r.sent, Message{Phone: phone, Code: code})
	r.mu.Unlock()
	return nil
}

// Last returns the most recent code sent to phone.
func (r *Recorder) Last(phone string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Phone == phone {
			return r.sent[i].Code, true
		}
	}
	return "", false
}

// Count returns the number of recorded deliveries.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}
