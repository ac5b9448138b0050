package usage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Append inserts r unless a row with the same id exists. It reports whether
// a row was written.
func (r *Repo) Append(ctx context.Context, rec *Record) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("append usage: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

type Totals struct {
	Requests         int64 `json:"requests"`
	TokensUsed       int64 `json:"tokensUsed"`
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	Failures         int64 `json:"failures"`
}

// TotalsForUser sums every recorded attempt of one user.
func (r *Repo) TotalsForUser(ctx context.Context, userID string) (Totals, error) {
	var t Totals
	err := r.db.WithContext(ctx).Model(&Record{}).
		Select(`COUNT(*) AS requests,
			COALESCE(SUM(tokens_used), 0) AS tokens_used,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failures`).
		Where("user_id = ?", userID).
		Scan(&t).Error
	if err != nil {
		return Totals{}, fmt.Errorf("usage totals: %w", err)
	}
	return t, nil
}
