package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/events"
)

func TestCatalogEventsStreamSyncNotifications(t *testing.T) {
	dispatcher := events.NewDispatcher()
	router := newTestRouter(t, Dependencies{Events: dispatcher, HeartbeatInterval: time.Hour})
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/wp-json/ananta-custom-diamond/v1/diamonds/events", http.NoBody)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer response.Body.Close()

	if !strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", response.Header.Get("Content-Type"))
	}

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(response.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitForLine(t, lines, "event:"+events.EventHeartbeat)

	if err := dispatcher.NotifySync(context.Background(), diamonds.SyncRun{
		RunID:    "run-42",
		Status:   diamonds.SyncStatusCompleted,
		Inserted: 3,
	}); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	waitForLine(t, lines, "event:"+events.EventCatalogSynced)
	data := waitForLine(t, lines, "data:")
	if !strings.Contains(data, `"run_id":"run-42"`) || !strings.Contains(data, `"inserted":3`) {
		t.Fatalf("unexpected event data %q", data)
	}
}

func waitForLine(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q", prefix)
			}
			if strings.HasPrefix(strings.ReplaceAll(line, ": ", ":"), prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", prefix)
		}
	}
}
