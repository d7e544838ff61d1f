package models

import (
	"time"

	"gorm.io/gorm"
)

// Eligibility state of a message for heart-point awards.
type EligibilityStatus string

const (
	EligibilityPending    EligibilityStatus = "pending"
	EligibilityEligible   EligibilityStatus = "eligible"
	EligibilityIneligible EligibilityStatus = "ineligible"
)

// Points award kinds: HP is a regular heart point, H2HP a heart-to-heart
// point.
const (
	PointsTypeHP   = "HP"
	PointsTypeH2HP = "H2HP"
)

/** --------------------ENTITIES-------------------- */
// Message is one chat message in a conversation. The conversation id doubles
// as the room id on the realtime side.
type Message struct {
	gorm.Model

	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	UserID         *uint  `gorm:"index" json:"user_id"` // nil for AI messages
	Content        string `gorm:"not null" json:"content"`
	IsAI           bool   `gorm:"default:false" json:"is_ai"`
	SenderName     string `gorm:"not null" json:"sender_name"`

	EligibilityStatus  EligibilityStatus `gorm:"default:pending" json:"eligibility_status"`
	EligibilityReasons []string          `gorm:"serializer:json" json:"eligibility_reasons"`

	HeartPointsReceived  int        `gorm:"default:0" json:"heart_points_received"`
	HeartPointsAwardedAt *time.Time `json:"heart_points_awarded_at"`
	HeartPointsAwardedBy *string    `json:"heart_points_awarded_by"`

	AttachmentURL *string `json:"attachment_url,omitempty"`
}

/** -------------------- DTOs -------------------- */
type PostMessageRequest struct {
	ConversationID uint    `json:"conversation_id" binding:"required"`
	Content        string  `json:"content" binding:"required"`
	AttachmentURL  *string `json:"attachment_url,omitempty"`
}

type AwardPointsRequest struct {
	Points int    `json:"points" binding:"required,min=1,max=5"`
	Type   string `json:"type" binding:"required,oneof=HP H2HP"`
}
