package postgres

import (
	"heartchat-service/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db}
}

func (r *NotificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

func (r *NotificationRepository) FindByID(id uint) (*models.Notification, error) {
	var n models.Notification
	err := r.db.First(&n, "id = ?", id).Error
	return &n, err
}

func (r *NotificationRepository) FindByUserID(userID uint) ([]*models.Notification, error) {
	var ns []*models.Notification
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&ns).Error
	return ns, err
}

func (r *NotificationRepository) Delete(id uint) error {
	return r.db.Delete(&models.Notification{}, "id = ?", id).Error
}

// ClearByChatIDs removes every notification tied to the given chats.
func (r *NotificationRepository) ClearByChatIDs(userID uint, chatIDs []uint) error {
	return r.db.Where("user_id = ? AND chat_id IN ?", userID, chatIDs).
		Delete(&models.Notification{}).Error
}

// MarkReadByChatID marks all of a chat's notifications read for one user.
func (r *NotificationRepository) MarkReadByChatID(userID, chatID uint) error {
	return r.db.Model(&models.Notification{}).
		Where("user_id = ? AND chat_id = ?", userID, chatID).
		UpdateColumn("read", true).Error
}
