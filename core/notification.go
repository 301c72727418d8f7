package core

type (
	// Notification is a short message pushed to a user after an app event.
	Notification struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Href        string `json:"href,omitempty"` // frontend path the notification links to
	}

	// Recipient identifies who a notification is delivered to.
	// Email may be empty; delivery backends that need an address skip such recipients.
	Recipient struct {
		UserID string
		Name   string
		Email  string
	}

	// NotificationService is any service that can deliver notifications.
	// Delivery is fire-and-forget: implementations send asynchronously and
	// log failures instead of returning them.
	NotificationService interface {
		Notify(rcpt Recipient, notifications ...Notification)
	}
)
