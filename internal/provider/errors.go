package provider

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	ReasonMissingAPIKey = "missing_api_key"
	ReasonJSONParse     = "json_parse_error"
	ReasonMissingResult = "missing_result"
	ReasonNetwork       = "network_error"
	ReasonCanceled      = "canceled"
	ReasonJobFailed     = "job_failed"
)

// RemoteError is returned for every failed provider call: an error payload,
// an unusable body, or a transport failure.
type RemoteError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Transport  bool   `json:"transport,omitempty"`
	Err        error  `json:"-"`
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider error %d", e.Code)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(&b, " on %s", e.Endpoint)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable: transport failures, 429 and 5xx. A body that failed to parse is
// retried only when the HTTP status that carried it was itself retryable.
func (e *RemoteError) Retryable() bool {
	switch {
	case e.Reason == ReasonCanceled:
		return false
	case e.Transport:
		return true
	case e.Reason == ReasonJSONParse:
		return retryableCode(e.HTTPStatus)
	default:
		return retryableCode(e.Code)
	}
}

func retryableCode(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// AsRemoteError unwraps err into a *RemoteError when possible.
func AsRemoteError(err error) (*RemoteError, bool) {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// IsNotFound reports a 404 from the provider.
func IsNotFound(err error) bool {
	rerr, ok := AsRemoteError(err)
	return ok && rerr.Code == http.StatusNotFound
}

const (
	defaultThrottleWait = 60 * time.Second
	throttleMargin      = time.Second
)

var (
	throttleMarkers    = []string{"rate limit", "too many requests", "try again after"}
	throttleRetryAfter = regexp.MustCompile(`(?i)try again after\s+(\d+)\s*sec`)
)

// ParseThrottleHint recognises the provider's job-level throttle message and
// returns how long to wait before resubmitting. The message format is a
// contract with the provider; this is the only place that parses it. When the
// number is missing the wait falls back to 60s. A one second margin is added.
//
// Only failed jobs reported inside a successful response qualify. A 429 on
// the transport has already been retried by the client and is final.
func ParseThrottleHint(err error) (time.Duration, bool) {
	rerr, ok := AsRemoteError(err)
	if !ok || !rerr.JobFailure() {
		return 0, false
	}

	text := strings.ToLower(rerr.Message)
	matched := false
	for _, marker := range throttleMarkers {
		if strings.Contains(text, marker) {
			matched = true
			break
		}
	}
	if !matched {
		return 0, false
	}

	wait := defaultThrottleWait
	if m := throttleRetryAfter.FindStringSubmatch(rerr.Message); len(m) == 2 {
		if secs, err := strconv.Atoi(m[1]); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	return wait + throttleMargin, true
}

// JobFailure reports an asynchronous job that the provider accepted and then
// marked failed.
func (e *RemoteError) JobFailure() bool {
	return e.Reason == ReasonJobFailed && e.HTTPStatus == http.StatusOK
}
