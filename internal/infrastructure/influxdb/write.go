package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementNotifications = "notifications"
	MeasurementReconnects    = "reconnects"
)

// RecordNotification writes one point per dispatched notification.
//
// The topic and whether a rule matched are tags; the field is a count of one
// so that sum() over a window gives the notification rate.
//
// Example:
//
//	client.RecordNotification("sensor/door", true)
func (c *Client) RecordNotification(topic string, matched bool) {
	c.WritePoint(
		MeasurementNotifications,
		map[string]string{
			"topic":   topic,
			"matched": strconv.FormatBool(matched),
		},
		map[string]any{
			"count": 1,
		},
	)
}

// RecordReconnect writes one point per reconnection attempt.
//
// Parameters:
//   - attempt: cumulative restart counter after the increment
func (c *Client) RecordReconnect(attempt int) {
	c.WritePoint(
		MeasurementReconnects,
		nil,
		map[string]any{
			"attempt": attempt,
		},
	)
}

// WritePoint writes a custom point timestamped now.
// Dropped silently when the client is not connected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
