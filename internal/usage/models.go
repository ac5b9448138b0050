package usage

import (
	"time"

	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/models"
)

// Record is one completion attempt. Rows are append-only; the id is the
// originating event id, which makes redelivered events harmless.
type Record struct {
	ID               string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string        `gorm:"type:varchar(36);not null;index" json:"userId"`
	User             *models.User  `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	SessionID        string        `gorm:"type:varchar(26);not null;index" json:"sessionId"`
	Session          *chat.Session `gorm:"foreignKey:SessionID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	MessageID        string        `gorm:"type:varchar(26);not null" json:"messageId"`
	Message          *chat.Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Timestamp        time.Time     `gorm:"not null;index" json:"timestamp"`
	TokensUsed       int           `gorm:"not null;default:0" json:"tokensUsed"`
	PromptTokens     int           `gorm:"not null;default:0" json:"promptTokens"`
	CompletionTokens int           `gorm:"not null;default:0" json:"completionTokens"`
	Model            string        `gorm:"type:varchar(128);not null" json:"model"`
	Success          bool          `json:"success"`
	ErrorMessage     *string       `gorm:"type:text" json:"errorMessage,omitempty"`
	Cost             *float64      `json:"cost,omitempty"`
}

func (Record) TableName() string { return "usage_tracking" }

// Event is the wire form of a completion attempt. MessageID is the assistant
// reply on success and the prompting user message otherwise.
type Event struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	MessageID        string    `json:"message_id"`
	Timestamp        time.Time `json:"timestamp"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Model            string    `json:"model"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
}

func (e Event) Validate() error {
	switch {
	case e.ID == "":
		return errMissing("id")
	case e.UserID == "":
		return errMissing("user_id")
	case e.SessionID == "":
		return errMissing("session_id")
	case e.MessageID == "":
		return errMissing("message_id")
	case e.Model == "":
		return errMissing("model")
	}
	return nil
}

// ToRecord converts e, pricing it at costPer1K per thousand tokens when positive.
func (e Event) ToRecord(costPer1K float64) Record {
	total := e.PromptTokens + e.CompletionTokens
	r := Record{
		ID:               e.ID,
		UserID:           e.UserID,
		SessionID:        e.SessionID,
		MessageID:        e.MessageID,
		Timestamp:        e.Timestamp.UTC(),
		TokensUsed:       total,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		Model:            e.Model,
		Success:          e.Success,
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if e.Error != "" {
		msg := e.Error
		r.ErrorMessage = &msg
	}
	if costPer1K > 0 {
		cost := float64(total) / 1000 * costPer1K
		r.Cost = &cost
	}
	return r
}
