package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach/internal/contact"
	"outreach/internal/executor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFollower(t *testing.T, handler http.HandlerFunc) *Follower {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFollower(Config{BaseURL: srv.URL, Token: "test-token"}, testLogger())
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestFollowSuccess(t *testing.T) {
	f := newTestFollower(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/follows" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var req followRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Handle != "somecurator" {
			t.Errorf("unexpected handle: %q", req.Handle)
		}

		respond(w, http.StatusCreated, map[string]string{"status": "following"})
	})

	result, err := f.Execute(context.Background(), contact.Target{ID: "somecurator"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Skipped {
		t.Error("fresh follow should not be a skip")
	}
}

func TestFollowAlreadyFollowing(t *testing.T) {
	f := newTestFollower(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "already_following"})
	})

	result, err := f.Execute(context.Background(), contact.Target{ID: "somecurator"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Skipped || result.Reason != "already_following" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestFollowErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       map[string]string
		wantKind   executor.ErrKind
		wantReason string
	}{
		{"not found", http.StatusNotFound, nil, executor.KindPermanent, "account_not_found"},
		{"gone", http.StatusGone, nil, executor.KindPermanent, "account_not_found"},
		{"blocked", http.StatusUnprocessableEntity, map[string]string{"error": "blocked"}, executor.KindPermanent, "blocked"},
		{"invalid handle", http.StatusUnprocessableEntity, nil, executor.KindPermanent, "invalid_handle"},
		{"rate limited", http.StatusTooManyRequests, nil, executor.KindTransient, "rate_limited"},
		{"challenge", http.StatusBadRequest, map[string]string{"error": "challenge_required"}, executor.KindTransient, "challenge_required"},
		{"server error", http.StatusBadGateway, nil, executor.KindTransient, "service_error"},
		{"unauthorized", http.StatusUnauthorized, nil, executor.KindFatal, "authentication_failed"},
		{"forbidden", http.StatusForbidden, nil, executor.KindFatal, "authentication_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFollower(t, func(w http.ResponseWriter, r *http.Request) {
				respond(w, tt.status, tt.body)
			})

			_, err := f.Execute(context.Background(), contact.Target{ID: "somecurator"})
			if err == nil {
				t.Fatal("expected error")
			}

			var ae *executor.ActionError
			if !errors.As(err, &ae) {
				t.Fatalf("expected ActionError, got %T", err)
			}
			if ae.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", ae.Kind, tt.wantKind)
			}
			if ae.Reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", ae.Reason, tt.wantReason)
			}
		})
	}
}

func TestFollowConnectionError(t *testing.T) {
	f := NewFollower(Config{BaseURL: "http://127.0.0.1:1"}, testLogger())

	_, err := f.Execute(context.Background(), contact.Target{ID: "somecurator"})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := executor.Classify(err); kind != executor.KindTransient {
		t.Errorf("connection error should be transient, got %s", kind)
	}
}
