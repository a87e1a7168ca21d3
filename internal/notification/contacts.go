package notification

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fuomag9/camera-sentinel/internal/models"
)

// ContactStore reads notification targets from the users table. It owns
// nothing and caches nothing: every call is a fresh snapshot.
type ContactStore struct {
	db *gorm.DB
}

// NewContactStore creates a contact store
func NewContactStore(db *gorm.DB) *ContactStore {
	return &ContactStore{db: db}
}

// ListNotificationTargets returns the contact info of every user with at
// least a phone number or an email address
func (s *ContactStore) ListNotificationTargets(ctx context.Context) ([]Target, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Select("id, username, email, phone_number").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notification targets: %w", err)
	}

	targets := make([]Target, 0, len(users))
	for _, u := range users {
		t := Target{Name: u.Username}
		if u.PhoneNumber != nil {
			t.Phone = *u.PhoneNumber
		}
		if u.Email != nil {
			t.Email = *u.Email
		}
		if t.Phone == "" && t.Email == "" {
			continue
		}
		targets = append(targets, t)
	}
	return targets, nil
}
