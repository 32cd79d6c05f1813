package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind is a closed classification of update failures. The store
// and transport boundaries assign kinds; the orchestrator only ever
// switches on them.
type ErrorKind int

const (
	// KindUnknown covers anything the boundary could not classify.
	KindUnknown ErrorKind = iota

	// KindAborted means the operation was cancelled on request.
	KindAborted

	// KindOffline means the remote host could not be reached at all
	// (DNS failure, connection refused, no route).
	KindOffline

	// KindNetwork covers transient network trouble: timeouts, dropped
	// connections, truncated downloads.
	KindNetwork

	// KindServer covers retryable server-side failures (5xx, 429).
	KindServer

	// KindInvalid means the remote content was missing or malformed;
	// retrying will not help.
	KindInvalid

	// KindQuota means local storage is full.
	KindQuota
)

func (k ErrorKind) String() string {
	switch k {
	case KindAborted:
		return "aborted"
	case KindOffline:
		return "offline"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindInvalid:
		return "invalid"
	case KindQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// Retryable reports whether the delegated retry primitive should keep
// trying after a failure of this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindOffline || k == KindNetwork || k == KindServer
}

// Sentinel errors.
var (
	ErrInvalidLanguage = errors.New("invalid language")
	ErrStoreDestroyed  = errors.New("store destroyed")
	ErrUpdateAborted   = errors.New("update aborted")
)

// UpdateError wraps a failure from one update step with its kind.
type UpdateError struct {
	Kind   ErrorKind
	Series Series
	Op     string
	Err    error
}

func (e *UpdateError) Error() string {
	if e.Series != "" {
		return fmt.Sprintf("update %s: %s [%s]: %v", e.Series, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("update: %s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// DownloadError is a transport-level failure fetching a remote file.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Kind classifies the download failure.
func (e *DownloadError) Kind() ErrorKind {
	switch {
	case e.StatusCode == 429 || e.StatusCode >= 500:
		return KindServer
	case e.StatusCode >= 400:
		return KindInvalid
	case errors.Is(e.Err, context.Canceled):
		return KindAborted
	case e.Err != nil:
		return classifyNetErr(e.Err)
	default:
		return KindUnknown
	}
}

// KindOf walks an error chain and returns its classification.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Kind()
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrUpdateAborted):
		return KindAborted
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case isQuotaErr(err):
		return KindQuota
	default:
		return classifyNetErr(err)
	}
}

func classifyNetErr(err error) ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindOffline
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindOffline
		}
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

// isQuotaErr matches the storage engines' disk-full failures. SQLite
// reports "database or disk is full"; bbolt surfaces ENOSPC as
// "no space left on device".
func isQuotaErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "no space left on device")
}

// UpdateFailure is the payload of the store's error callback: the
// failure itself plus the retry metadata of the delegated retry
// primitive. A zero NextRetry means no further retries are scheduled.
type UpdateFailure struct {
	Err        error     `json:"-"`
	NextRetry  time.Time `json:"nextRetry,omitzero"`
	RetryCount int       `json:"retryCount,omitempty"`
}

// WillRetry reports whether the retry primitive has another attempt
// scheduled.
func (f UpdateFailure) WillRetry() bool { return !f.NextRetry.IsZero() }

// Kind classifies the underlying error.
func (f UpdateFailure) Kind() ErrorKind { return KindOf(f.Err) }

// Message returns the failure text for serialized snapshots.
func (f UpdateFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}
