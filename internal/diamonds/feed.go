package diamonds

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Source field names used by the supplier feed.
const (
	feedFieldDiamondID         = "diamond_id"
	feedFieldSupplierName      = "supplier_name"
	feedFieldShape             = "shape"
	feedFieldSize              = "size"
	feedFieldColor             = "color"
	feedFieldClarity           = "clarity"
	feedFieldCut               = "cut"
	feedFieldSymmetry          = "symmetry"
	feedFieldPolish            = "polish"
	feedFieldLab               = "lab"
	feedFieldCertificateNumber = "certification_number"
	feedFieldCertificateURL    = "certificate_url"
	feedFieldLocation          = "location"
	feedFieldPriceUSD          = "price_usd"
)

var (
	errUnsupportedValue = errors.New("unsupported value type")
	errNotNumeric       = errors.New("value is not numeric")
)

// DecodeFeed splits a feed body into its array elements. Elements are decoded
// individually by DecodeFeedEntry so a bad element never hides the others.
func DecodeFeed(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: errors.New("empty body")}
	}
	if !json.Valid(trimmed) {
		return nil, &ParseError{Err: errors.New("invalid json")}
	}
	if trimmed[0] != '[' {
		return nil, &ParseError{Err: errFeedNotArray}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, &ParseError{Err: err}
	}
	if entries == nil {
		entries = []json.RawMessage{}
	}
	return entries, nil
}

// DecodeFeedEntry maps one feed element onto typed attributes. Absent and null
// fields become empty values; anything that cannot be represented yields a
// *ValidationError.
func DecodeFeedEntry(index int, raw json.RawMessage) (Attributes, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Attributes{}, &ValidationError{Index: index, Err: errEntryNotObject}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Attributes{}, &ValidationError{Index: index, Err: err}
	}

	reader := entryReader{index: index, fields: fields}

	rawID := reader.text(feedFieldDiamondID)
	if reader.err != nil {
		return Attributes{}, reader.err
	}
	diamondID, err := NewDiamondID(rawID)
	if err != nil {
		return Attributes{}, &ValidationError{Index: index, Field: feedFieldDiamondID, Err: err}
	}

	attrs := Attributes{
		DiamondID:         diamondID,
		SupplierName:      reader.text(feedFieldSupplierName),
		Shape:             reader.text(feedFieldShape),
		Size:              reader.number(feedFieldSize),
		Color:             reader.text(feedFieldColor),
		Clarity:           reader.text(feedFieldClarity),
		Cut:               reader.text(feedFieldCut),
		Symmetry:          reader.text(feedFieldSymmetry),
		Polish:            reader.text(feedFieldPolish),
		Lab:               reader.text(feedFieldLab),
		CertificateNumber: reader.text(feedFieldCertificateNumber),
		CertificateURL:    reader.text(feedFieldCertificateURL),
		Location:          reader.text(feedFieldLocation),
		PriceUSD:          reader.number(feedFieldPriceUSD),
	}
	if reader.err != nil {
		return Attributes{}, reader.err
	}
	return attrs, nil
}

// entryReader keeps the first field error so the call sites stay flat.
type entryReader struct {
	index  int
	fields map[string]json.RawMessage
	err    error
}

func (r *entryReader) fail(field string, cause error) {
	if r.err == nil {
		r.err = &ValidationError{Index: r.index, Field: field, Err: cause}
	}
}

func (r *entryReader) lookup(field string) (json.RawMessage, bool) {
	raw, ok := r.fields[field]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

func (r *entryReader) text(field string) string {
	raw, ok := r.lookup(field)
	if !ok {
		return ""
	}
	switch raw[0] {
	case '"':
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			r.fail(field, err)
			return ""
		}
		return strings.TrimSpace(value)
	case '{', '[', 't', 'f':
		r.fail(field, errUnsupportedValue)
		return ""
	default:
		// Numbers keep their literal text, e.g. a numeric supplier id.
		var number json.Number
		if err := json.Unmarshal(raw, &number); err != nil {
			r.fail(field, err)
			return ""
		}
		return number.String()
	}
}

func (r *entryReader) number(field string) *float64 {
	raw, ok := r.lookup(field)
	if !ok {
		return nil
	}
	var literal string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &literal); err != nil {
			r.fail(field, err)
			return nil
		}
		literal = strings.TrimSpace(literal)
		if literal == "" {
			return nil
		}
	case '{', '[', 't', 'f':
		r.fail(field, errUnsupportedValue)
		return nil
	default:
		literal = string(raw)
	}
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		r.fail(field, fmt.Errorf("%w: %q", errNotNumeric, literal))
		return nil
	}
	return &value
}
