package models

import "gorm.io/gorm"

/** --------------------ENTITIES-------------------- */
// Notification is a per-user inbox entry mirrored to live sessions through
// the global notification:* broadcasts.
type Notification struct {
	gorm.Model

	UserID  uint   `gorm:"not null;index" json:"userId"`
	ChatID  *uint  `gorm:"index" json:"chatId"`
	Kind    string `gorm:"not null" json:"kind"` // e.g. "message", "points"
	Preview string `json:"preview"`
	Read    bool   `gorm:"default:false" json:"read"`
}

/** -------------------- DTOs -------------------- */
type CreateNotificationRequest struct {
	UserID  uint   `json:"userId" binding:"required"`
	ChatID  *uint  `json:"chatId,omitempty"`
	Kind    string `json:"kind" binding:"required"`
	Preview string `json:"preview"`
}

type ClearNotificationsRequest struct {
	ChatIDs []uint `json:"chatIds" binding:"required,min=1"`
}
