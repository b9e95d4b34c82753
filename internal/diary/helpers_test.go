package diary_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"diary/internal/db"
	"diary/internal/diary"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T, c *clock) *diary.Store {
	t.Helper()
	gdb, err := db.Connect(filepath.Join(t.TempDir(), "diary.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &diary.Store{DB: gdb, Now: c.Now}
}

// fakePublisher records created documents. failCreate makes the next n
// calls fail; lostResponse makes the next n calls create the document and
// then report failure, as if the response never arrived.
type fakePublisher struct {
	mu           sync.Mutex
	docs         []diary.Document
	refs         []string
	failCreate   int
	lostResponse int
	updates      map[string]string
}

func (p *fakePublisher) Create(_ context.Context, doc diary.Document) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCreate > 0 {
		p.failCreate--
		return "", &diary.ExternalServiceError{Op: "create issue", StatusCode: 502, Message: "bad gateway"}
	}
	p.docs = append(p.docs, doc)
	ref := fmt.Sprintf("https://example.test/issues/%d", len(p.docs))
	p.refs = append(p.refs, ref)
	if p.lostResponse > 0 {
		p.lostResponse--
		return "", &diary.ExternalServiceError{Op: "create issue", Message: "connection reset"}
	}
	return ref, nil
}

func (p *fakePublisher) created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

func (p *fakePublisher) last() diary.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs[len(p.docs)-1]
}

// finderPublisher can look up documents by merge key.
type finderPublisher struct {
	*fakePublisher
	lookups int
}

func (p *finderPublisher) FindByKey(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	for i, d := range p.docs {
		if d.Key == key {
			return p.refs[i], true, nil
		}
	}
	return "", false, nil
}

func (p *finderPublisher) Update(_ context.Context, ref, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updates == nil {
		p.updates = map[string]string{}
	}
	p.updates[ref] = body
	return nil
}

var day0 = time.Date(2024, 2, 12, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, pub diary.Publisher) (*diary.Service, *diary.Store, *clock) {
	t.Helper()
	c := newClock(day0)
	st := newStore(t, c)
	n := 0
	svc := &diary.Service{
		Store:     st,
		Publisher: pub,
		Location:  time.UTC,
		Now:       c.Now,
		NewKey: func() string {
			n++
			return fmt.Sprintf("key-%d", n)
		},
	}
	return svc, st, c
}

func text(userID uint64, s string) diary.Message {
	return diary.Message{UserID: userID, Text: s, Tags: diary.ExtractTags(s, diary.DefaultLabel)}
}
