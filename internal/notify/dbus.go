package notify

import (
	"context"
	"fmt"
	"math"

	"github.com/godbus/dbus/v5"
)

// freedesktop notification service coordinates.
const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod         = notificationsService + ".Notify"

	// AppName is reported to the notification server.
	AppName = "mqtt-notify"
)

// DBusSender raises notifications through the freedesktop notification
// service on the session bus.
type DBusSender struct {
	conn *dbus.Conn
}

// NewDBusSender connects to the session bus.
//
// The process-wide shared session bus connection is reused and never closed.
func NewDBusSender() (*DBusSender, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	return &DBusSender{conn: conn}, nil
}

// Send implements Sender.
//
// The notification timeout is passed as expire_timeout in milliseconds.
func (s *DBusSender) Send(ctx context.Context, n Notification) error {
	obj := s.conn.Object(notificationsService, notificationsPath)

	call := obj.CallWithContext(ctx, notifyMethod, 0,
		AppName,
		uint32(0), // replaces_id
		"",        // app_icon
		n.Summary,
		n.Body,
		[]string{},                // actions
		map[string]dbus.Variant{}, // hints
		expireTimeout(n),
	)
	if call.Err != nil {
		return fmt.Errorf("calling %s: %w", notifyMethod, call.Err)
	}
	return nil
}

// expireTimeout converts the notification timeout to the int32 milliseconds
// the Notify method expects: 0 never expires and -1 uses the server default.
func expireTimeout(n Notification) int32 {
	ms := n.Timeout.Milliseconds()
	switch {
	case n.Timeout < 0:
		return -1
	case n.Timeout == 0:
		return 0
	case ms == 0:
		return 1
	case ms > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(ms)
	}
}
