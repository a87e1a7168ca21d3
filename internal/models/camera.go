package models

import "time"

// Camera statuses
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Camera is a monitored device. The registry owns its lifecycle; the
// monitoring engine only reads and writes Status and LastHeartbeat.
type Camera struct {
	ID            int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Name          string    `json:"name" gorm:"not null"`
	StreamURL     string    `json:"stream_url" gorm:"column:stream_url"`
	Status        string    `json:"status" gorm:"not null;default:'offline';index:idx_cameras_status_heartbeat"`
	LastHeartbeat time.Time `json:"last_heartbeat" gorm:"not null;index:idx_cameras_status_heartbeat"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for Camera
func (Camera) TableName() string {
	return "cameras"
}

// IsOnline reports whether the camera is currently marked online
func (c *Camera) IsOnline() bool {
	return c.Status == StatusOnline
}
