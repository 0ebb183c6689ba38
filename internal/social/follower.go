// Package social is the follow action executor: one HTTP call per account
// handle against the social network's follow endpoint, with response codes
// mapped onto the action error taxonomy.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"outreach/internal/contact"
	"outreach/internal/executor"
)

// Config holds the follow API settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Follower follows one account per Execute call. It never touches the
// progress store.
type Follower struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewFollower creates a follow executor.
func NewFollower(cfg Config, logger *slog.Logger) *Follower {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Follower{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type followRequest struct {
	Handle string `json:"handle"`
}

type followResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Execute issues the follow call for one account handle.
func (f *Follower) Execute(ctx context.Context, target contact.Target) (*executor.Result, error) {
	payload, err := json.Marshal(followRequest{Handle: target.ID})
	if err != nil {
		return nil, &executor.ActionError{
			Kind:   executor.KindPermanent,
			Reason: "encode_failed",
			Err:    err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+"/follows", bytes.NewReader(payload))
	if err != nil {
		return nil, &executor.ActionError{
			Kind:   executor.KindPermanent,
			Reason: "bad_request",
			Err:    err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "request_failed",
			Err:    err,
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var decoded followResponse
	json.Unmarshal(body, &decoded)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if decoded.Status == "already_following" {
			f.logger.Info("already following", "handle", target.ID)
			return &executor.Result{Skipped: true, Reason: "already_following"}, nil
		}
		f.logger.Info("followed", "handle", target.ID)
		return &executor.Result{}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &executor.ActionError{
			Kind:   executor.KindFatal,
			Reason: "authentication_failed",
			Err:    fmt.Errorf("follow API returned %d: %s", resp.StatusCode, decoded.Error),
		}

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &executor.ActionError{
			Kind:   executor.KindPermanent,
			Reason: "account_not_found",
		}

	case resp.StatusCode == http.StatusUnprocessableEntity:
		reason := "invalid_handle"
		if decoded.Error == "blocked" {
			reason = "blocked"
		}
		return nil, &executor.ActionError{
			Kind:   executor.KindPermanent,
			Reason: reason,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "rate_limited",
		}

	case decoded.Error == "challenge_required":
		// The service wants manual verification; worth retrying after the
		// operator clears it, not a terminal failure.
		return nil, &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "challenge_required",
		}

	case resp.StatusCode >= 500:
		return nil, &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "service_error",
			Err:    fmt.Errorf("follow API returned %d", resp.StatusCode),
		}

	default:
		return nil, &executor.ActionError{
			Kind:   executor.KindTransient,
			Reason: "unexpected_response",
			Err:    fmt.Errorf("follow API returned %d: %s", resp.StatusCode, decoded.Error),
		}
	}
}
