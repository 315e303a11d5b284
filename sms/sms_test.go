package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSMSLocalClientSendsOTPRoute(t *testing.T) {
	var got smsLocalRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSMSLocalClient("key-1", srv.URL, "AIRCRE")
	if err := c.SendOTP(context.Background(), "9876543210", "123456"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if auth != "key-1" || got.Route != "otp" || got.Numbers != "919876543210" || got.Variables != "123456" || got.Sender != "AIRCRE" {
		t.Fatalf("unexpected request auth=%q body=%+v", auth, got)
	}
}

func TestSMSLocalClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	err := NewSMSLocalClient("key-1", srv.URL, "").SendOTP(context.Background(), "9876543210", "123456")
	if err == nil || !strings.Contains(err.Error(), "status=402") || strings.Contains(err.Error(), "123456") {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := NewSMSLocalClient("", srv.URL, "").SendOTP(context.Background(), "9876543210", "123456"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLogSenderHidesCodesByDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := LogSender{Logger: zap.New(core)}

	if err := s.SendOTP(context.Background(), "9876543210", "123456"); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	entry := logs.All()[0]
	fields := entry.ContextMap()
	if fields["phone"] != "******3210" {
		t.Fatalf("phone field = %v", fields["phone"])
	}
	if _, ok := fields["code"]; ok {
		t.Fatal("code must not be logged unless revealed")
	}

	s.RevealCodes = true
	_ = s.SendOTP(context.Background(), "9876543210", "654321")
	if logs.All()[1].ContextMap()["code"] != "654321" {
		t.Fatal("expected revealed code")
	}
}

func TestRecorderLast(t *testing.T) {
	var r Recorder
	_ = r.SendOTP(context.Background(), "9876543210", "111111")
	_ = r.SendOTP(context.Background(), "9000000000", "222222")
	_ = r.SendOTP(context.Background(), "9876543210", "333333")

	if code, ok := r.Last("9876543210"); !ok || code != "333333" {
		t.Fatalf("Last = %q %v", code, ok)
	}
	if _, ok := r.Last("9111111111"); ok {
		t.Fatal("unexpected code for unknown phone")
	}
	if r.Count() != 3 {
		t.Fatalf("Count = %d", r.Count())
	}
}
