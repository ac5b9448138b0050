package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// CreateSession inserts s and reports how many rows the engine wrote.
func (r *Repo) CreateSession(ctx context.Context, s *Session) (int64, error) {
	res := r.db.WithContext(ctx).Create(s)
	return res.RowsAffected, res.Error
}

// GetSessionForUser loads a session only if userID owns it, so a foreign id
// and a missing id look the same to callers.
func (r *Repo) GetSessionForUser(ctx context.Context, sessionID, userID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessionsByUser returns the user's sessions, most recently updated first.
func (r *Repo) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	sessions := make([]Session, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListMessagesBySession returns the conversation oldest first.
func (r *Repo) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	msgs := make([]Message, 0)
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// AppendMessage inserts m and bumps the parent session's activity and
// counters in one transaction.
func (r *Repo) AppendMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		res := tx.Model(&Session{}).
			Where("id = ?", m.SessionID).
			Updates(map[string]any{
				"updated_at":      m.CreatedAt,
				"last_message_at": m.CreatedAt,
				"message_count":   gorm.Expr("message_count + ?", 1),
				"total_tokens":    gorm.Expr("total_tokens + ?", m.TokensUsed),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("session vanished during append")
		}
		return nil
	})
}

// ListRecentMessagesDesc returns the most recent messages newest first.
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
