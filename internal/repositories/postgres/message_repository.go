package postgres

import (
	"time"

	"heartchat-service/internal/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(msg *models.Message) error {
	return r.db.Create(msg).Error
}

func (r *MessageRepository) FindByID(id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.First(&msg, "id = ?", id).Error
	return &msg, err
}

func (r *MessageRepository) FindByConversationID(conversationID uint, limit, offset int) ([]*models.Message, error) {
	var msgs []*models.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

// AwardPoints records a heart-point award on a message. Returns the updated
// row so the caller can broadcast it.
func (r *MessageRepository) AwardPoints(id uint, points int, awardedBy string) (*models.Message, error) {
	now := time.Now()
	err := r.db.Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"heart_points_received":   gorm.Expr("heart_points_received + ?", points),
			"heart_points_awarded_at": now,
			"heart_points_awarded_by": awardedBy,
		}).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(id)
}
