package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("no such table: users"), false},
	}
	for _, tt := range tests {
		if got := IsSQLiteConflictError(tt.err); got != tt.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), "test", RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}, func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if !IsSQLiteBusyError(err) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}
