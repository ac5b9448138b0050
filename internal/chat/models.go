package chat

import (
	"time"

	"github.com/suPer8Hu/chatapp/internal/models"
	"gorm.io/datatypes"
)

const (
	DefaultTitle = "New Chat"
	DefaultModel = "@cf/deepseek-ai/deepseek-r1-distill-qwen-32b"

	// AssistantUserID marks messages authored by the model.
	AssistantUserID = "assistant"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Session struct {
	ID            string       `gorm:"type:varchar(26);primaryKey" json:"id"`
	UserID        string       `gorm:"type:varchar(36);not null;index:idx_chat_sessions_user_updated,priority:1" json:"userId"`
	User          *models.User `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Title         string       `gorm:"type:varchar(255);not null;default:New Chat" json:"title"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `gorm:"index:idx_chat_sessions_user_updated,priority:2" json:"updatedAt"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	Status        string       `gorm:"type:varchar(16);not null;default:active" json:"status"`
	MessageCount  int          `gorm:"not null;default:0" json:"messageCount"`
	TotalTokens   int          `gorm:"not null;default:0" json:"totalTokens"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message rows are immutable once written. UserID holds the owner's id, or
// AssistantUserID for model output, so it carries no foreign key.
type Message struct {
	ID               string         `gorm:"type:varchar(26);primaryKey" json:"id"`
	SessionID        string         `gorm:"type:varchar(26);not null;index:idx_chat_messages_session_created,priority:1" json:"sessionId"`
	Session          *Session       `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	UserID           string         `gorm:"type:varchar(36);not null;index" json:"userId"`
	Role             string         `gorm:"type:varchar(16);not null" json:"role"`
	Content          string         `gorm:"type:text;not null" json:"content"`
	CreatedAt        time.Time      `gorm:"index:idx_chat_messages_session_created,priority:2" json:"createdAt"`
	TokensUsed       int            `gorm:"not null;default:0" json:"tokensUsed"`
	PromptTokens     int            `gorm:"not null;default:0" json:"promptTokens"`
	CompletionTokens int            `gorm:"not null;default:0" json:"completionTokens"`
	Model            string         `gorm:"type:varchar(128);not null;default:@cf/deepseek-ai/deepseek-r1-distill-qwen-32b" json:"model"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
}

func (Message) TableName() string { return "chat_messages" }

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}
