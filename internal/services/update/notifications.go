package update

import (
	"time"

	"github.com/seiken-dev/jiten/internal/models"
)

// NotificationType identifies an outbound message.
type NotificationType string

const (
	// NotifStateUpdated carries a fresh aggregate snapshot.
	NotifStateUpdated NotificationType = "stateUpdated"

	// NotifUpdateComplete marks the end of a full kanji, names, words
	// cycle.
	NotifUpdateComplete NotificationType = "updateComplete"

	// NotifError is an actionable failure.
	NotifError NotificationType = "error"

	// NotifBreadcrumb is a non-actionable diagnostic trail entry.
	NotifBreadcrumb NotificationType = "breadcrumb"
)

// Severity qualifies an error notification.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Notification is one outbound message to observers.
type Notification struct {
	Type      NotificationType
	Timestamp time.Time

	// Snapshot for stateUpdated.
	Snapshot *models.Snapshot

	// LastCheck for updateComplete; zero when no check ever succeeded.
	LastCheck time.Time

	// Err and Severity for error notifications.
	Err      error
	Severity Severity

	// Message for breadcrumbs.
	Message string
}
