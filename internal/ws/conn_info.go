package ws

import "time"

// ConnInfo describes one live feed subscriber for logs and ws_events.
type ConnInfo struct {
	ConnID      string
	GroupID     string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) eventPayload(event, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "group",
			"resource_id": i.GroupID,
			"event":       event,
			"conn_id":     i.ConnID,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   i.UserID,
			"device_id": i.DeviceID,
			"ip":        i.IP,
		},
		"request_id": i.RequestID,
		"trace_id":   i.TraceID,
	}
}
