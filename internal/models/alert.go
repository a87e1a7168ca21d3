package models

import "time"

// AutoResolutionReason is stored on alerts closed by a resumed heartbeat
const AutoResolutionReason = "auto: heartbeat resumed"

// Alert tracks one offline period of a camera. At most one unresolved
// alert exists per camera; once resolved the row is never changed again.
type Alert struct {
	ID               int        `json:"id" gorm:"primaryKey;autoIncrement"`
	CameraID         int        `json:"camera_id" gorm:"not null;index"`
	OpenedAt         time.Time  `json:"opened_at" gorm:"not null"`
	IsResolved       bool       `json:"is_resolved" gorm:"not null;default:false"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	ResolutionReason *string    `json:"resolution_reason"`
}

// TableName specifies the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// AlertView is an alert joined with the name of its camera
type AlertView struct {
	Alert
	CameraName string `json:"camera_name" gorm:"column:camera_name"`
}
