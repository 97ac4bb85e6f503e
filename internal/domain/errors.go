package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the user has no stored Google Fit credential.
	ErrNotConnected = errors.New("google fit not connected")
	// ErrReauthRequired means the access token expired and no refresh token exists;
	// the user has to repeat the OAuth consent flow.
	ErrReauthRequired = errors.New("token expired and no refresh token available")
	// ErrRefreshFailed means the token endpoint rejected the refresh. The stale
	// access token must not be used.
	ErrRefreshFailed = errors.New("failed to refresh access token")
	// ErrUpstream marks a non-2xx response from the aggregate endpoint.
	ErrUpstream = errors.New("fitness api request failed")
	// ErrMalformedResponse marks an aggregate payload without a bucket array.
	ErrMalformedResponse = errors.New("malformed aggregate response")
	// ErrStore marks a failed activity or weight write.
	ErrStore = errors.New("store write failed")
	// ErrInvalidInput is returned for rejected user-supplied values.
	ErrInvalidInput = errors.New("invalid input")
)

// UpstreamError carries the status and raw body of a failed provider call.
// The body is kept for diagnostics only.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrUpstream, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// StoreError labels which store failed during a sync.
type StoreError struct {
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Store, e.Err)
}

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }
