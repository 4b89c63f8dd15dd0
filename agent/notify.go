package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/jonwraymond/offlinekit/bus"
)

// NotificationConfig fixes how push events render.
type NotificationConfig struct {
	// Title of every notification.
	// Default: "offlinekit"
	Title string

	// Icon URL of every notification.
	// Default: "/icon-192.png"
	Icon string

	// DefaultBody is used when a push carries no usable payload.
	// Default: "You have a new notification"
	DefaultBody string
}

func (c NotificationConfig) withDefaults() NotificationConfig {
	if c.Title == "" {
		c.Title = "offlinekit"
	}
	if c.Icon == "" {
		c.Icon = "/icon-192.png"
	}
	if c.DefaultBody == "" {
		c.DefaultBody = "You have a new notification"
	}
	return c
}

// render builds the notification for a push payload. No payload schema is
// enforced; the payload text is the body. It reports false when the
// payload was present but unusable.
func (c NotificationConfig) render(payload []byte) (bus.Notification, bool) {
	n := bus.Notification{Title: c.Title, Icon: c.Icon, Body: c.DefaultBody}
	if !utf8.Valid(payload) {
		return n, false
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		n.Body = body
	}
	return n, true
}
