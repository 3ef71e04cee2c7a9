// Package influxdb records mqtt-notify telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Telemetry is
// optional: Connect returns ErrDisabled unless influxdb.enabled is set, and
// the bridge runs the same either way.
//
// # Measurements
//
//   - notifications: one point per dispatched notification, tagged with
//     topic and matched ("true" when a rule produced the text, "false" for
//     the fallback).
//   - reconnects: one point per restart, field attempt.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("telemetry write failed", "error", err) })
//	client.RecordNotification("sensor/door", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched (batch_size, flush_interval); their errors arrive via SetOnError.
package influxdb
