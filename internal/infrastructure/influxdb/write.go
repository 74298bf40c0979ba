package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementConnectivity = "syncsign_connectivity"
	MeasurementDispatch     = "syncsign_dispatch"
)

// PollSample is the outcome of one connectivity poll.
type PollSample struct {
	EntryID   string
	AssetID   string
	Kind      string
	Connected bool
	// OK is false for a stale poll; Connected then repeats the last known value.
	OK       bool
	Duration time.Duration
	At       time.Time
}

// DispatchSample is the outcome of one display update.
type DispatchSample struct {
	EntryID  string
	NodeID   string
	OK       bool
	Duration time.Duration
	At       time.Time
}

// WritePoll records a poll outcome. Non-blocking.
func (c *Client) WritePoll(s PollSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pollPoint(s))
}

// WriteDispatch records a display update outcome. Non-blocking.
func (c *Client) WriteDispatch(s DispatchSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(dispatchPoint(s))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func pollPoint(s PollSample) *write.Point {
	return write.NewPoint(
		MeasurementConnectivity,
		map[string]string{
			"entry_id": s.EntryID,
			"asset_id": s.AssetID,
			"kind":     s.Kind,
		},
		map[string]interface{}{
			"connected":   s.Connected,
			"ok":          s.OK,
			"duration_ms": s.Duration.Milliseconds(),
		},
		stamp(s.At),
	)
}

func dispatchPoint(s DispatchSample) *write.Point {
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"entry_id": s.EntryID,
			"node_id":  s.NodeID,
		},
		map[string]interface{}{
			"ok":          s.OK,
			"duration_ms": s.Duration.Milliseconds(),
		},
		stamp(s.At),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
