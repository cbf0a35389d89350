package model

import (
	"errors"
	"testing"
	"time"
)

var errSentinel = errors.New("mark failed")

func TestSessionRecord_IsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour

	tests := []struct {
		name         string
		lastActivity time.Time
		want         bool
	}{
		{name: "直前の活動は有効", lastActivity: now.Add(-time.Minute), want: false},
		{name: "境界ちょうどは有効", lastActivity: now.Add(-ttl), want: false},
		{name: "境界を1秒超えたら失効", lastActivity: now.Add(-ttl - time.Second), want: true},
		{name: "8日前は失効", lastActivity: now.Add(-8 * 24 * time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &SessionRecord{Identity: "user-1", LastActivity: tt.lastActivity}
			if got := rec.IsExpired(now, ttl); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidApplicationStatus(t *testing.T) {
	valid := []ApplicationStatus{StatusApplied, StatusInterviewing, StatusOffered, StatusRejected, StatusAccepted}
	for _, s := range valid {
		if !IsValidApplicationStatus(s) {
			t.Errorf("IsValidApplicationStatus(%q) = false, want true", s)
		}
	}

	invalid := []ApplicationStatus{"", "ghosted", "APPLIED", "pending"}
	for _, s := range invalid {
		if IsValidApplicationStatus(s) {
			t.Errorf("IsValidApplicationStatus(%q) = true, want false", s)
		}
	}
}

func TestFailedCount(t *testing.T) {
	results := []CascadeResult{
		{Collection: "applications", Key: "app-1"},
		{Collection: "applications", Key: "app-2", Err: errSentinel},
		{Collection: "emailEvents", Key: "ev-1", Err: errSentinel},
	}

	if got := FailedCount(results); got != 2 {
		t.Errorf("FailedCount = %d, want 2", got)
	}
	if got := FailedCount(nil); got != 0 {
		t.Errorf("FailedCount(nil) = %d, want 0", got)
	}
}
