package ws

import "time"

type ConnInfo struct {
	ConnID      string
	UserID      string
	Role        string
	Room        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) eventPayload(event, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     i.ConnID,
			"room":        i.Room,
			"duration_ms": time.Since(i.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   i.UserID,
			"role":      i.Role,
			"device_id": i.DeviceID,
			"ip":        i.IP,
		},
	}
}
