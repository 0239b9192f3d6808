package diamonds

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderDirection restricts sort direction to the two SQL keywords.
type OrderDirection string

const (
	OrderAscending  OrderDirection = "ASC"
	OrderDescending OrderDirection = "DESC"
)

// Order keys accepted from callers. Several keys alias the same column.
const (
	OrderKeyID      = "id"
	OrderKeyName    = "name"
	OrderKeySKU     = "sku"
	OrderKeyShape   = "shape"
	OrderKeyCarat   = "carat"
	OrderKeySize    = "size"
	OrderKeyColor   = "color"
	OrderKeyClarity = "clarity"
	OrderKeyPrice   = "price"
	OrderKeyPriceUS = "price_usd"
)

var orderColumns = map[string]string{
	OrderKeyID:      "id",
	OrderKeyName:    "diamond_id",
	OrderKeySKU:     "cert_number",
	OrderKeyShape:   "shape",
	OrderKeyCarat:   "size",
	OrderKeySize:    "size",
	OrderKeyColor:   "color",
	OrderKeyClarity: "clarity",
	OrderKeyPrice:   "price_usd",
	OrderKeyPriceUS: "price_usd",
}

// ListDefaults supplies the values used when caller input is missing or invalid.
type ListDefaults struct {
	OrderBy   string
	Direction OrderDirection
	Limit     int
}

// ListQuery is a sanitized listing request. Construct it with NewListQuery.
type ListQuery struct {
	orderBy   string
	direction OrderDirection
	limit     int
}

// NewListQuery sanitizes raw listing parameters. Unknown order keys, unknown
// directions and non-positive or unparsable limits fall back to the defaults
// without error.
func NewListQuery(orderBy, direction, limit string, defaults ListDefaults) ListQuery {
	defaultKey := normalizeOrderKey(defaults.OrderBy)
	if _, ok := orderColumns[defaultKey]; !ok {
		defaultKey = OrderKeyID
	}
	key := normalizeOrderKey(orderBy)
	if _, ok := orderColumns[key]; !ok {
		key = defaultKey
	}

	defaultDirection := defaults.Direction
	if defaultDirection != OrderDescending {
		defaultDirection = OrderAscending
	}
	dir := defaultDirection
	switch OrderDirection(strings.ToUpper(strings.TrimSpace(direction))) {
	case OrderAscending:
		dir = OrderAscending
	case OrderDescending:
		dir = OrderDescending
	case "":
	default:
		dir = OrderAscending
	}

	parsedLimit := defaults.Limit
	if parsedLimit < 0 {
		parsedLimit = 0
	}
	if value, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && value > 0 {
		parsedLimit = value
	}

	return ListQuery{orderBy: key, direction: dir, limit: parsedLimit}
}

func normalizeOrderKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// OrderBy returns the sanitized order key.
func (q ListQuery) OrderBy() string {
	if q.orderBy == "" {
		return OrderKeyID
	}
	return q.orderBy
}

// Direction returns the sanitized sort direction.
func (q ListQuery) Direction() OrderDirection {
	if q.direction == "" {
		return OrderAscending
	}
	return q.direction
}

// Limit returns the row cap; zero means unlimited.
func (q ListQuery) Limit() int {
	return q.limit
}

func (q ListQuery) column() string {
	if column, ok := orderColumns[q.OrderBy()]; ok {
		return column
	}
	return orderColumns[OrderKeyID]
}

// Store persists catalog rows keyed by the supplier diamond id.
type Store interface {
	FindByDiamondID(ctx context.Context, diamondID DiamondID) (Diamond, error)
	Insert(ctx context.Context, record *Diamond) (uint, error)
	Update(ctx context.Context, id uint, record Diamond) error
	ListAll(ctx context.Context, query ListQuery) ([]Diamond, error)
}

// GormStore implements Store on a gorm handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps the provided database handle.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) FindByDiamondID(ctx context.Context, diamondID DiamondID) (Diamond, error) {
	var record Diamond
	err := s.db.WithContext(ctx).
		Where("diamond_id = ?", diamondID.String()).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Diamond{}, ErrDiamondNotFound
	}
	if err != nil {
		return Diamond{}, &PersistenceError{Operation: "find", DiamondID: diamondID.String(), Err: err}
	}
	return record, nil
}

func (s *GormStore) Insert(ctx context.Context, record *Diamond) (uint, error) {
	if record == nil {
		return 0, &PersistenceError{Operation: "insert", Err: errors.New("record is required")}
	}
	record.ID = 0
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return 0, &PersistenceError{Operation: "insert", DiamondID: record.DiamondID, Err: err}
	}
	return record.ID, nil
}

// Update overwrites every attribute column, including empty ones, on the row
// with the given surrogate id.
func (s *GormStore) Update(ctx context.Context, id uint, record Diamond) error {
	record.ID = id
	result := s.db.WithContext(ctx).
		Model(&Diamond{}).
		Where("id = ?", id).
		Select("*").
		Omit("id").
		Updates(&record)
	if result.Error != nil {
		return &PersistenceError{Operation: "update", DiamondID: record.DiamondID, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return &PersistenceError{Operation: "update", DiamondID: record.DiamondID, Err: ErrDiamondNotFound}
	}
	return nil
}

func (s *GormStore) ListAll(ctx context.Context, query ListQuery) ([]Diamond, error) {
	statement := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{
			Column: clause.Column{Name: query.column()},
			Desc:   query.Direction() == OrderDescending,
		}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	if query.Limit() > 0 {
		statement = statement.Limit(query.Limit())
	}
	records := make([]Diamond, 0)
	if err := statement.Find(&records).Error; err != nil {
		return nil, &PersistenceError{Operation: "list", Err: err}
	}
	return records, nil
}
