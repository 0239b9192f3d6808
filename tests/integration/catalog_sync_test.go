package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/auth"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/database"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/events"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/metrics"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	nonceSecret = "integration-nonce-secret"
	firstFeed   = `[
		{"diamond_id":"D1","supplier_name":"Kiran Gems","shape":"Round","size":1.0,"color":"E","clarity":"VS1","price_usd":5000},
		{"shape":"Oval","price_usd":3000},
		{"diamond_id":"D2","shape":"Pear","size":"0.70","color":"G","clarity":"SI1","price_usd":"2100.5"}
	]`
	secondFeed = `[
		{"diamond_id":"D1","shape":"Round","size":1.0,"color":"E","clarity":"VS1","price_usd":6000},
		{"diamond_id":"D3","shape":"Emerald","size":2.1,"color":"D","clarity":"IF","price_usd":18000}
	]`
)

var nonceField = regexp.MustCompile(`name="_nonce" value="([^"]+)"`)

type storedDiamond struct {
	ID        uint     `json:"id"`
	DiamondID string   `json:"diamond_id"`
	Shape     string   `json:"shape"`
	Size      *float64 `json:"size"`
	PriceUSD  *float64 `json:"price_usd"`
}

func TestCatalogSyncFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	var feedBody atomic.Value
	feedBody.Store(firstFeed)
	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, feedBody.Load().(string))
	}))
	defer feedServer.Close()

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "integration.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	store, err := diamonds.NewGormStore(db)
	if err != nil {
		testContext.Fatalf("failed to build store: %v", err)
	}
	runs, err := diamonds.NewGormRunRecorder(db)
	if err != nil {
		testContext.Fatalf("failed to build run recorder: %v", err)
	}

	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)
	dispatcher := events.NewDispatcher()

	synchronizer, err := diamonds.NewSynchronizer(diamonds.SynchronizerConfig{
		Store:      store,
		FeedClient: diamonds.NewHTTPFeedClient(diamonds.HTTPFeedClientConfig{HTTPClient: feedServer.Client()}),
		Runs:       runs,
		IDProvider: diamonds.NewUUIDProvider(),
		Observer:   syncMetrics,
		Notifiers:  []diamonds.SyncNotifier{dispatcher},
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build synchronizer: %v", err)
	}
	catalog, err := diamonds.NewCatalog(diamonds.CatalogConfig{Store: store})
	if err != nil {
		testContext.Fatalf("failed to build catalog: %v", err)
	}
	nonces, err := auth.NewNonces(auth.NonceConfig{SigningSecret: []byte(nonceSecret)})
	if err != nil {
		testContext.Fatalf("failed to build nonces: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:         catalog,
		Synchronizer:    synchronizer,
		Runs:            runs,
		Nonces:          nonces,
		Events:          dispatcher,
		RequestObserver: syncMetrics,
		FeedURL:         feedServer.URL + "/mock-diamonds.json",
		Logger:          zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}
	appServer := httptest.NewServer(handler)
	defer appServer.Close()

	stream, cleanup := dispatcher.Subscribe(context.Background())
	defer cleanup()

	body := triggerAdminSync(testContext, appServer)
	if !strings.Contains(body, "Sync complete. 2 items inserted, 0 items updated, 1 errors.") {
		testContext.Fatalf("unexpected first sync page:\n%s", body)
	}
	select {
	case event := <-stream:
		if event.EventType != "catalog-synced" || event.Inserted != 2 || event.Errors != 1 {
			testContext.Fatalf("unexpected catalog event %#v", event)
		}
	default:
		testContext.Fatalf("expected catalog-synced event after admin sync")
	}

	first := fetchCatalog(testContext, appServer, "")
	if len(first) != 2 || first[0].DiamondID != "D2" || first[1].DiamondID != "D1" {
		testContext.Fatalf("expected price ascending D2, D1; got %#v", first)
	}
	if first[0].Size == nil || *first[0].Size != 0.7 || *first[0].PriceUSD != 2100.5 {
		testContext.Fatalf("quoted numbers were not stored as numbers: %#v", first[0])
	}
	d1ID := first[1].ID

	feedBody.Store(secondFeed)
	body = triggerAdminSync(testContext, appServer)
	if !strings.Contains(body, "Sync complete. 1 items inserted, 1 items updated, 0 errors.") {
		testContext.Fatalf("unexpected second sync page:\n%s", body)
	}

	second := fetchCatalog(testContext, appServer, "?orderby=price&order=DESC&limit=2")
	if len(second) != 2 || second[0].DiamondID != "D3" || second[1].DiamondID != "D1" {
		testContext.Fatalf("unexpected ordering %#v", second)
	}
	if second[1].ID != d1ID || *second[1].PriceUSD != 6000 {
		testContext.Fatalf("expected D1 updated in place, got %#v", second[1])
	}
	if all := fetchCatalog(testContext, appServer, ""); len(all) != 3 {
		testContext.Fatalf("expected rows absent from the feed to be kept, got %d", len(all))
	}

	history, err := runs.Recent(context.Background(), 10)
	if err != nil || len(history) != 2 {
		testContext.Fatalf("expected two recorded runs, got %d (%v)", len(history), err)
	}
}

func triggerAdminSync(testContext *testing.T, appServer *httptest.Server) string {
	testContext.Helper()
	response, err := appServer.Client().Get(appServer.URL + "/admin/diamonds")
	if err != nil {
		testContext.Fatalf("admin page request failed: %v", err)
	}
	page, _ := io.ReadAll(response.Body)
	response.Body.Close()

	match := nonceField.FindStringSubmatch(string(page))
	if len(match) != 2 {
		testContext.Fatalf("admin page is missing the sync nonce")
	}

	response, err = appServer.Client().PostForm(appServer.URL+"/admin/diamonds/sync", url.Values{"_nonce": {match[1]}})
	if err != nil {
		testContext.Fatalf("sync request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("expected status %d, got %d", http.StatusOK, response.StatusCode)
	}
	result, _ := io.ReadAll(response.Body)
	return string(result)
}

func fetchCatalog(testContext *testing.T, appServer *httptest.Server, query string) []storedDiamond {
	testContext.Helper()
	response, err := appServer.Client().Get(appServer.URL + "/wp-json/ananta-custom-diamond/v1/diamonds" + query)
	if err != nil {
		testContext.Fatalf("catalog request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testContext.Fatalf("expected status %d, got %d", http.StatusOK, response.StatusCode)
	}
	var records []storedDiamond
	if err := json.NewDecoder(response.Body).Decode(&records); err != nil {
		testContext.Fatalf("invalid catalog payload: %v", err)
	}
	return records
}
