package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/suPer8Hu/chatapp/internal/logging"
)

var log = logging.For("usage")

func errMissing(field string) error { return fmt.Errorf("usage event: %s is required", field) }

// ErrBadEvent marks payloads that will never succeed and should not be retried.
var ErrBadEvent = errors.New("bad usage event")

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// StoreRecorder writes events straight to the database.
type StoreRecorder struct {
	repo      *Repo
	costPer1K float64
}

func NewStoreRecorder(repo *Repo, costPer1K float64) *StoreRecorder {
	return &StoreRecorder{repo: repo, costPer1K: costPer1K}
}

func (s *StoreRecorder) Record(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	rec := ev.ToRecord(s.costPer1K)
	written, err := s.repo.Append(ctx, &rec)
	if err != nil {
		return err
	}
	if !written {
		log.WithField("event_id", ev.ID).Debug("duplicate usage event ignored")
	}
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, v any) error
}

// QueueRecorder hands events to the broker; the worker persists them.
type QueueRecorder struct {
	pub Publisher
}

func NewQueueRecorder(pub Publisher) *QueueRecorder {
	return &QueueRecorder{pub: pub}
}

func (q *QueueRecorder) Record(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	return q.pub.Publish(ctx, ev)
}

// HandleDelivery persists one queued event body. Undecodable or invalid
// bodies wrap ErrBadEvent.
func HandleDelivery(ctx context.Context, rec *StoreRecorder, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	return rec.Record(ctx, ev)
}
