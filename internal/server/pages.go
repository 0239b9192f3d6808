package server

import (
	"embed"
	"errors"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"go.uber.org/zap"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

//go:embed assets/*
var embeddedAssets embed.FS

const (
	templateListing   = "listing.tmpl"
	templateAdmin     = "admin.tmpl"
	templateSelector  = "selector.tmpl"
	templateForbidden = "forbidden.tmpl"

	bannerSuccess = "success"
	bannerError   = "error"

	msgEmptyListing = "No diamond products available at the moment."
	msgEmptyAdmin   = "No diamonds found. Please sync the data."
	msgParseFailed  = "Error decoding JSON data or invalid data format."
	msgListFailed   = "Database error occurred"
)

var (
	listingDefaults = diamonds.ListDefaults{
		OrderBy:   diamonds.OrderKeyName,
		Direction: diamonds.OrderAscending,
		Limit:     10,
	}
	adminTableOrder = diamonds.ListDefaults{
		OrderBy:   diamonds.OrderKeyID,
		Direction: diamonds.OrderAscending,
	}
)

var templateFuncs = template.FuncMap{
	"number":   formatNumber,
	"price":    formatPrice,
	"unixTime": formatUnixTime,
}

func parsePageTemplates() (*template.Template, error) {
	return template.New("pages").Funcs(templateFuncs).ParseFS(embeddedTemplates, "templates/*.tmpl")
}

type listingView struct {
	Items        []diamonds.Diamond
	EmptyMessage string
	Failure      string
}

func (h *httpHandler) handleProductListing(c *gin.Context) {
	query := diamonds.NewListQuery(c.Query("orderby"), c.Query("order"), c.Query("limit"), listingDefaults)
	records, err := h.catalog.ListDiamonds(c.Request.Context(), query)
	if err != nil {
		c.HTML(http.StatusInternalServerError, templateListing, listingView{Failure: msgListFailed})
		return
	}
	c.HTML(http.StatusOK, templateListing, listingView{Items: records, EmptyMessage: msgEmptyListing})
}

type banner struct {
	Kind    string
	Message string
}

type adminView struct {
	Title        string
	Banner       *banner
	Nonce        string
	SyncPath     string
	Items        []diamonds.Diamond
	Runs         []diamonds.SyncRun
	EmptyMessage string
	Failure      string
}

func (h *httpHandler) handleAdminPage(c *gin.Context) {
	h.renderAdmin(c, http.StatusOK, nil)
}

func (h *httpHandler) handleAdminSync(c *gin.Context) {
	if err := h.nonces.Verify(c.PostForm("_nonce"), syncNonceAction); err != nil {
		h.logger.Warn("admin sync rejected", zap.String("reason", "invalid_nonce"), zap.Error(err))
		c.HTML(http.StatusForbidden, templateForbidden, gin.H{"Title": "Ananta Diamonds"})
		return
	}

	report, err := h.synchronizer.Sync(c.Request.Context(), h.feedURL)
	h.renderAdmin(c, http.StatusOK, syncBanner(report, err))
}

// syncBanner maps a sync outcome onto the notice shown above the admin table.
func syncBanner(report diamonds.SyncReport, err error) *banner {
	var fetchErr *diamonds.FetchError
	var parseErr *diamonds.ParseError
	switch {
	case err == nil:
		return &banner{
			Kind: bannerSuccess,
			Message: "Sync complete. " + strconv.Itoa(report.Inserted) + " items inserted, " +
				strconv.Itoa(report.Updated) + " items updated, " +
				strconv.Itoa(report.Errors) + " errors.",
		}
	case errors.As(err, &fetchErr):
		return &banner{Kind: bannerError, Message: "Error fetching data: " + fetchErr.Error()}
	case errors.As(err, &parseErr):
		return &banner{Kind: bannerError, Message: msgParseFailed}
	default:
		return &banner{
			Kind: bannerError,
			Message: "Sync interrupted. " + strconv.Itoa(report.Inserted) + " items inserted, " +
				strconv.Itoa(report.Updated) + " items updated, " +
				strconv.Itoa(report.Errors) + " errors.",
		}
	}
}

func (h *httpHandler) renderAdmin(c *gin.Context, status int, notice *banner) {
	ctx := c.Request.Context()
	view := adminView{
		Title:        "Ananta Diamonds",
		Banner:       notice,
		SyncPath:     "/admin/diamonds/sync",
		EmptyMessage: msgEmptyAdmin,
	}

	nonce, err := h.nonces.Issue(syncNonceAction)
	if err != nil {
		h.logger.Error("admin nonce issue failed", zap.Error(err))
		c.HTML(http.StatusInternalServerError, templateForbidden, gin.H{"Title": view.Title})
		return
	}
	view.Nonce = nonce

	records, err := h.catalog.ListDiamonds(ctx, diamonds.NewListQuery("", "", "", adminTableOrder))
	if err != nil {
		view.Failure = msgListFailed
	}
	view.Items = records

	if h.runs != nil {
		runs, runsErr := h.runs.Recent(ctx, recentRunsShown)
		if runsErr != nil {
			h.logger.Error("sync history unavailable", zap.Error(runsErr))
		}
		view.Runs = runs
	}

	c.HTML(status, templateAdmin, view)
}

type selectorView struct {
	Endpoint       string
	EventsEndpoint string
}

func (h *httpHandler) handleSelectorPage(c *gin.Context) {
	view := selectorView{Endpoint: h.endpointPath()}
	if h.events != nil {
		view.EventsEndpoint = h.endpointPath() + "/events"
	}
	c.HTML(http.StatusOK, templateSelector, view)
}

func formatNumber(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}

// formatPrice renders two decimals with comma thousands separators.
func formatPrice(value *float64) string {
	if value == nil {
		return ""
	}
	raw := strconv.FormatFloat(math.Abs(*value), 'f', 2, 64)
	whole, fraction, _ := strings.Cut(raw, ".")

	var grouped strings.Builder
	for index, digit := range whole {
		if index > 0 && (len(whole)-index)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}
	sign := ""
	if *value < 0 && raw != "0.00" {
		sign = "-"
	}
	return sign + grouped.String() + "." + fraction
}

func formatUnixTime(seconds int64) string {
	if seconds == 0 {
		return ""
	}
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}
