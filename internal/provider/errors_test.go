package provider

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  RemoteError
		want bool
	}{
		{RemoteError{Code: 429}, true},
		{RemoteError{Code: 500}, true},
		{RemoteError{Code: 599}, true},
		{RemoteError{Code: 400}, false},
		{RemoteError{Code: 401}, false},
		{RemoteError{Code: 404}, false},
		{RemoteError{Code: 503, Transport: true}, true},
		{RemoteError{Code: 500, Reason: ReasonJSONParse, HTTPStatus: 200}, false},
		{RemoteError{Code: 500, Reason: ReasonJSONParse, HTTPStatus: 429}, true},
		{RemoteError{Code: 499, Reason: ReasonCanceled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestParseThrottleHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
		ok   bool
	}{
		{"explicit seconds", jobFailure("Too many requests. Please try again after 45 seconds"), 46 * time.Second, true},
		{"no number", jobFailure("API rate limit exceeded"), 61 * time.Second, true},
		{"wrapped", fmt.Errorf("mockup: %w", jobFailure("rate limit, try again after 5 sec")), 6 * time.Second, true},
		{"unrelated job failure", jobFailure("Invalid variant"), 0, false},
		{"transport 429", &RemoteError{Code: 429, HTTPStatus: 429, Message: "Too Many Requests"}, 0, false},
		{"429 with hint", &RemoteError{Code: 429, HTTPStatus: 429, Message: "Too many requests. Try again after 30 seconds"}, 0, false},
		{"job reason on error status", &RemoteError{Code: 429, Reason: ReasonJobFailed, HTTPStatus: 429, Message: "rate limit"}, 0, false},
		{"unrelated remote error", &RemoteError{Code: 400, Message: "Invalid variant"}, 0, false},
		{"plain error", errors.New("rate limit"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseThrottleHint(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func jobFailure(message string) *RemoteError {
	return &RemoteError{Code: 422, Reason: ReasonJobFailed, HTTPStatus: 200, Message: message}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))
}
