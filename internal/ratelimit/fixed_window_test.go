package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAllowWithinLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:limit", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("request %d denied within limit", i+1)
		}
	}
	if limiter.Allow("1.2.3.4") {
		t.Error("request over limit allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:limit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("first key denied")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Error("second key denied despite separate quota")
	}
	if limiter.Allow("1.2.3.4") {
		t.Error("first key allowed over limit")
	}
}

func TestWindowExpiryResetsQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	window := 100 * time.Millisecond
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:limit", 1, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("first request denied")
	}
	mr.FastForward(window)
	time.Sleep(window + 10*time.Millisecond)
	if !limiter.Allow("1.2.3.4") {
		t.Error("request after window expiry denied")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "p", 0, time.Minute); err == nil {
		t.Error("expected error for zero limit")
	}
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "p", 5, 0); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := NewRedisFixedWindowLimiter("  ", "", "p", 5, time.Minute); err == nil {
		t.Error("expected error for empty addr")
	}
}

func TestFailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(mr.Addr(), "", "test:limit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if !limiter.Allow("1.2.3.4") {
		t.Error("limiter should fail open when redis is unreachable")
	}
	if !limiter.Allow("1.2.3.4") {
		t.Error("limiter should keep failing open")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if !limiter.Allow("anyone") {
		t.Error("nil limiter must allow everything")
	}
}
