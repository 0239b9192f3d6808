package diamonds

import (
	"context"

	"go.uber.org/zap"
)

const (
	opCatalogNew    = "diamonds.catalog.new"
	opListDiamonds  = "diamonds.list"
	reasonQueryFail = "query_failed"
)

// DefaultCatalogOrder is the ordering applied by the public listing endpoint.
var DefaultCatalogOrder = ListDefaults{
	OrderBy:   OrderKeyPrice,
	Direction: OrderAscending,
}

// CatalogConfig describes the dependencies of a Catalog.
type CatalogConfig struct {
	Store  Store
	Logger *zap.Logger
}

// Catalog is the read-only view over stored diamonds. It is safe for
// concurrent use and holds no state besides the store.
type Catalog struct {
	store  Store
	logger *zap.Logger
}

// NewCatalog validates the configuration.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opCatalogNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{store: cfg.Store, logger: logger}, nil
}

// ListDiamonds returns stored records in the requested order. Store failures
// are logged and surface only as a generic *ServiceError next to an empty slice.
func (c *Catalog) ListDiamonds(ctx context.Context, query ListQuery) ([]Diamond, error) {
	if c == nil || c.store == nil {
		return []Diamond{}, newServiceError(opListDiamonds, "missing_store", nil)
	}
	records, err := c.store.ListAll(ctx, query)
	if err != nil {
		c.logger.Error("diamond catalog error",
			zap.String("operation", opListDiamonds),
			zap.String("reason", reasonQueryFail),
			zap.String("order_by", query.OrderBy()),
			zap.String("direction", string(query.Direction())),
			zap.Error(err))
		return []Diamond{}, newServiceError(opListDiamonds, reasonQueryFail, nil)
	}
	if records == nil {
		records = []Diamond{}
	}
	return records, nil
}
