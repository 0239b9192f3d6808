package diamonds

import (
	"errors"
	"fmt"
	"strings"
)

const maxDiamondIDLength = 255

var (
	// ErrInvalidDiamondID indicates that a supplier diamond identifier is empty or exceeds storage bounds.
	ErrInvalidDiamondID = errors.New("diamonds: invalid diamond id")
	// ErrDiamondNotFound indicates that no stored record carries the requested diamond identifier.
	ErrDiamondNotFound = errors.New("diamonds: diamond not found")
)

// DiamondID represents a validated supplier-assigned diamond identifier.
type DiamondID string

// NewDiamondID validates raw input and returns a DiamondID.
func NewDiamondID(rawInput string) (DiamondID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDiamondID)
	}
	if len(trimmed) > maxDiamondIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDiamondID, maxDiamondIDLength)
	}
	return DiamondID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DiamondID) String() string {
	return string(id)
}

// Diamond models one persisted catalog row. ID is the store-assigned surrogate
// key; DiamondID is the supplier's natural key.
type Diamond struct {
	ID                uint     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DiamondID         string   `gorm:"column:diamond_id;size:255;not null;uniqueIndex:idx_ananta_diamonds_diamond_id" json:"diamond_id"`
	SupplierName      string   `gorm:"column:sup_name;size:255;not null;default:''" json:"sup_name"`
	Shape             string   `gorm:"column:shape;size:255;not null;default:''" json:"shape"`
	Size              *float64 `gorm:"column:size" json:"size"`
	Color             string   `gorm:"column:color;size:255;not null;default:''" json:"color"`
	Clarity           string   `gorm:"column:clarity;size:255;not null;default:''" json:"clarity"`
	Cut               string   `gorm:"column:cut;size:255;not null;default:''" json:"cut"`
	Symmetry          string   `gorm:"column:symmetry;size:255;not null;default:''" json:"symmetry"`
	Polish            string   `gorm:"column:polish;size:255;not null;default:''" json:"polish"`
	Lab               string   `gorm:"column:lab;size:255;not null;default:''" json:"lab"`
	CertificateNumber string   `gorm:"column:cert_number;size:255;not null;default:''" json:"cert_number"`
	CertificateURL    string   `gorm:"column:cert_url;size:255;not null;default:''" json:"cert_url"`
	Location          string   `gorm:"column:location;size:255;not null;default:''" json:"location"`
	PriceUSD          *float64 `gorm:"column:price_usd;index:idx_ananta_diamonds_price" json:"price_usd"`
}

// TableName provides the explicit table binding for GORM.
func (Diamond) TableName() string {
	return "ananta_diamonds"
}

// Attributes holds every graded attribute supplied by the feed for one diamond.
// A sync overwrites all of them at once.
type Attributes struct {
	DiamondID         DiamondID
	SupplierName      string
	Shape             string
	Size              *float64
	Color             string
	Clarity           string
	Cut               string
	Symmetry          string
	Polish            string
	Lab               string
	CertificateNumber string
	CertificateURL    string
	Location          string
	PriceUSD          *float64
}

// Record builds the persisted form of the attributes for the given surrogate id.
// A zero id leaves the assignment to the store.
func (attrs Attributes) Record(id uint) Diamond {
	return Diamond{
		ID:                id,
		DiamondID:         attrs.DiamondID.String(),
		SupplierName:      attrs.SupplierName,
		Shape:             attrs.Shape,
		Size:              copyFloat(attrs.Size),
		Color:             attrs.Color,
		Clarity:           attrs.Clarity,
		Cut:               attrs.Cut,
		Symmetry:          attrs.Symmetry,
		Polish:            attrs.Polish,
		Lab:               attrs.Lab,
		CertificateNumber: attrs.CertificateNumber,
		CertificateURL:    attrs.CertificateURL,
		Location:          attrs.Location,
		PriceUSD:          copyFloat(attrs.PriceUSD),
	}
}

// SyncStatus enumerates the terminal states of a sync run.
type SyncStatus string

const (
	// SyncStatusCompleted marks a run that processed every feed element.
	SyncStatusCompleted SyncStatus = "completed"
	// SyncStatusFetchFailed marks a run aborted because the feed could not be retrieved.
	SyncStatusFetchFailed SyncStatus = "fetch_failed"
	// SyncStatusParseFailed marks a run aborted because the feed body was unusable.
	SyncStatusParseFailed SyncStatus = "parse_failed"
	// SyncStatusCanceled marks a run stopped by context cancellation.
	SyncStatusCanceled SyncStatus = "canceled"
)

// SyncRun captures an append-only audit row for every sync attempt.
type SyncRun struct {
	RunID             string     `gorm:"column:run_id;primaryKey;size:64;not null"`
	FeedURL           string     `gorm:"column:feed_url;size:2048;not null"`
	StartedAtSeconds  int64      `gorm:"column:started_at_s;not null;index:idx_sync_runs_started"`
	FinishedAtSeconds int64      `gorm:"column:finished_at_s;not null"`
	Status            SyncStatus `gorm:"column:status;size:32;not null"`
	Inserted          int        `gorm:"column:inserted;not null;default:0"`
	Updated           int        `gorm:"column:updated;not null;default:0"`
	Errors            int        `gorm:"column:errors;not null;default:0"`
	Failure           string     `gorm:"column:failure;type:text;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (SyncRun) TableName() string {
	return "diamond_sync_runs"
}

// SyncReport summarizes the outcome of one sync.
type SyncReport struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// Total returns the number of feed elements accounted for by the report.
func (r SyncReport) Total() int {
	return r.Inserted + r.Updated + r.Errors
}

func copyFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
