package diamonds

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "diamonds.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&Diamond{}, &SyncRun{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	store, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return store, db
}

func mustDiamondID(t *testing.T, value string) DiamondID {
	t.Helper()
	id, err := NewDiamondID(value)
	if err != nil {
		t.Fatalf("unexpected diamond id error: %v", err)
	}
	return id
}

func floatPointer(value float64) *float64 {
	return &value
}

type staticFeedClient struct {
	mu     sync.Mutex
	bodies []string
	err    error
	calls  int
}

func (c *staticFeedClient) Fetch(_ context.Context, _ string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.bodies) == 0 {
		return nil, errors.New("no feed body configured")
	}
	body := c.bodies[0]
	if len(c.bodies) > 1 {
		c.bodies = c.bodies[1:]
	}
	return []byte(body), nil
}

type sequentialIDProvider struct {
	prefix string
	next   int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

func fixedClock() func() time.Time {
	current := time.Unix(1750000000, 0).UTC()
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}
