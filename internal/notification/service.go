package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nyumbahub/rentals/internal/directory"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// UserLookup resolves recipients for email delivery
type UserLookup interface {
	Lookup(ctx context.Context, id int64) (*directory.User, error)
}

// Service handles notification business logic. It implements Dispatcher by
// storing an in-app notification and, when a mailer is configured, emailing
// the recipient in their preferred language.
type Service struct {
	repo   *Repository
	users  UserLookup
	mailer Mailer
	logger *logrus.Logger
}

// NewService creates a new notification service. users and mailer may be nil.
func NewService(repo *Repository, users UserLookup, mailer Mailer, logger *logrus.Logger) *Service {
	return &Service{repo: repo, users: users, mailer: mailer, logger: logger}
}

// Send renders and stores a notification for recipientID
func (s *Service) Send(ctx context.Context, eventType EventType, recipientID int64, payload Payload) error {
	msg, err := Render(eventType, payload)
	if err != nil {
		return err
	}

	n := &Notification{
		RecipientID: recipientID,
		EventType:   eventType,
		Title:       msg.Title,
		Message:     msg.English,
		MessageSw:   msg.Swahili,
		ActionURL:   msg.ActionURL,
	}
	if payload.EntityType != "" {
		entityType, entityID := payload.EntityType, payload.EntityID
		n.RelatedEntityType = &entityType
		n.RelatedEntityID = &entityID
	}

	created, err := s.repo.Create(ctx, n)
	if err != nil {
		return err
	}

	if s.mailer == nil || s.users == nil {
		return nil
	}

	user, err := s.users.Lookup(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient %d: %w", recipientID, err)
	}
	if user.Email == "" {
		return nil
	}
	if err := s.mailer.Send(user.Email, msg.Title, msg.For(user.PreferredLanguage)); err != nil {
		return err
	}
	return s.repo.MarkEmailSent(ctx, created.ID)
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification == nil {
		return nil, ErrNotificationNotFound
	}
	return notification, nil
}

// ListByRecipientID retrieves all notifications for a user
func (s *Service) ListByRecipientID(ctx context.Context, recipientID int64, page, perPage int, unreadOnly bool) ([]*Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, perPage, offset, unreadOnly)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if notification == nil {
		return ErrNotificationNotFound
	}
	if notification.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// Notify sends through d and logs any failure. Notification problems never
// reach the caller.
func Notify(ctx context.Context, d Dispatcher, logger logrus.FieldLogger, eventType EventType, recipientID int64, payload Payload) {
	if d == nil || recipientID == 0 {
		return
	}
	if err := d.Send(ctx, eventType, recipientID, payload); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"event":     eventType,
			"recipient": recipientID,
			"entity":    payload.EntityType,
			"entity_id": payload.EntityID,
		}).Warn("notification dispatch failed")
	}
}
