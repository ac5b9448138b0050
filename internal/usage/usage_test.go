package usage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/models"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	user      *models.User
	session   *chat.Session
	messageID string
}

func setup(t *testing.T) fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &chat.Session{}, &chat.Message{}, &Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	u := &models.User{Email: "u@x.io", ExternalAuthID: "ext-u"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	now := time.Now().UTC()
	s := &chat.Session{ID: "01J00000000000000000000001", UserID: u.ID, Title: "t", Status: chat.StatusActive, CreatedAt: now, UpdatedAt: now, LastMessageAt: now}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	m := &chat.Message{ID: "01J00000000000000000000002", SessionID: s.ID, UserID: chat.AssistantUserID, Role: chat.RoleAssistant, Content: "hi", Model: chat.DefaultModel}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return fixture{db: db, user: u, session: s, messageID: m.ID}
}

func (f fixture) event(id string) Event {
	return Event{
		ID:               id,
		UserID:           f.user.ID,
		SessionID:        f.session.ID,
		MessageID:        f.messageID,
		PromptTokens:     30,
		CompletionTokens: 20,
		Model:            chat.DefaultModel,
		Success:          true,
	}
}

func TestToRecord_Cost(t *testing.T) {
	r := Event{ID: "e", PromptTokens: 1500, CompletionTokens: 500, Error: "boom"}.ToRecord(0.5)
	if r.TokensUsed != 2000 {
		t.Fatalf("expected 2000 tokens, got %d", r.TokensUsed)
	}
	if r.Cost == nil || *r.Cost != 1.0 {
		t.Fatalf("expected cost 1.0, got %v", r.Cost)
	}
	if r.ErrorMessage == nil || *r.ErrorMessage != "boom" {
		t.Fatalf("expected error message, got %v", r.ErrorMessage)
	}
	if r.Timestamp.IsZero() {
		t.Fatalf("expected timestamp default")
	}

	if free := (Event{}).ToRecord(0); free.Cost != nil {
		t.Fatalf("expected nil cost when pricing disabled")
	}
}

func TestStoreRecorder_Idempotent(t *testing.T) {
	f := setup(t)
	rec := NewStoreRecorder(NewRepo(f.db), 0)
	ctx := context.Background()

	ev := f.event("11111111-1111-1111-1111-111111111111")
	if err := rec.Record(ctx, ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Record(ctx, ev); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	var n int64
	f.db.Model(&Record{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 row after duplicate delivery, got %d", n)
	}

	totals, err := NewRepo(f.db).TotalsForUser(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Requests != 1 || totals.TokensUsed != 50 || totals.Failures != 0 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestStoreRecorder_RejectsInvalid(t *testing.T) {
	f := setup(t)
	rec := NewStoreRecorder(NewRepo(f.db), 0)
	ev := f.event("x")
	ev.SessionID = ""
	if err := rec.Record(context.Background(), ev); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHandleDelivery(t *testing.T) {
	f := setup(t)
	rec := NewStoreRecorder(NewRepo(f.db), 0)
	ctx := context.Background()

	if err := HandleDelivery(ctx, rec, []byte("{nope")); !errors.Is(err, ErrBadEvent) {
		t.Fatalf("expected ErrBadEvent for bad json, got %v", err)
	}
	if err := HandleDelivery(ctx, rec, []byte(`{"id":"a"}`)); !errors.Is(err, ErrBadEvent) {
		t.Fatalf("expected ErrBadEvent for incomplete event, got %v", err)
	}

	ev := f.event("22222222-2222-2222-2222-222222222222")
	ev.Success = false
	ev.Error = "provider timeout"
	body, _ := json.Marshal(ev)
	if err := HandleDelivery(ctx, rec, body); err != nil {
		t.Fatalf("handle: %v", err)
	}
	var stored Record
	if err := f.db.First(&stored, "id = ?", ev.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.Success || stored.ErrorMessage == nil || *stored.ErrorMessage != "provider timeout" {
		t.Fatalf("unexpected stored record %+v", stored)
	}
}

type fakePublisher struct {
	got []any
}

func (p *fakePublisher) Publish(_ context.Context, v any) error {
	p.got = append(p.got, v)
	return nil
}

func TestQueueRecorder(t *testing.T) {
	pub := &fakePublisher{}
	q := NewQueueRecorder(pub)
	ev := Event{ID: "e1", UserID: "u", SessionID: "s", MessageID: "m", Model: "x"}
	if err := q.Record(context.Background(), ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(pub.got) != 1 || pub.got[0].(Event).ID != "e1" {
		t.Fatalf("expected event published, got %v", pub.got)
	}
	if err := q.Record(context.Background(), Event{}); err == nil || len(pub.got) != 1 {
		t.Fatalf("expected invalid event rejected before publish")
	}
}

func TestRecordsCascadeWithUser(t *testing.T) {
	f := setup(t)
	rec := NewStoreRecorder(NewRepo(f.db), 0)
	if err := rec.Record(context.Background(), f.event("33333333-3333-3333-3333-333333333333")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := f.db.Delete(&models.User{}, "id = ?", f.user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var n int64
	f.db.Model(&Record{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected usage rows to cascade, found %d", n)
	}
}
