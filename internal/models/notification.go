package models

// NotificationType tags a notification for the delivering collaborator.
type NotificationType string

const (
	NotificationApplicationApproved NotificationType = "application_approved"
	NotificationApplicationRejected NotificationType = "application_rejected"
)

// Notification is a one-way status message addressed to a User.
// It is never persisted by this service.
type Notification struct {
	UserID  string           `json:"userId"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	// Email is the recipient address for mail delivery; not sent over HTTP.
	Email string `json:"-"`
}
