/*
Package inventory manages the counter products sold at the front desk:
water, bars, shakers. Sales themselves go through payments, which deducts
stock in the same transaction as the payment row.

STOCK:
  Stock is an atomic store counter. Saving a product edits the catalog
  fields only; units come in through Restock and leave through sales.

REMOVAL:
  Products are never deleted, since payments reference them. Deactivate
  hides a product from the desk and refuses further sales.
*/
package inventory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

// ProductInput is a create or edit from the admin screen. An empty ID
// creates a product; InitialStock only applies then.
type ProductInput struct {
	ID           core.ProductID
	Name         string
	Price        decimal.Decimal
	InitialStock int
	MinStock     int
	Category     string
	Emoji        string
	Active       *bool
}

type Catalog struct {
	store  core.ProductStore
	logger *slog.Logger
}

func NewCatalog(store core.ProductStore, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, logger: logger}
}

// Save creates or edits a product and returns it as stored.
func (c *Catalog) Save(ctx context.Context, in ProductInput) (*core.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := core.Product{
		ID:       in.ID,
		Name:     strings.TrimSpace(in.Name),
		Price:    in.Price,
		MinStock: in.MinStock,
		Category: strings.TrimSpace(in.Category),
		Emoji:    in.Emoji,
		Active:   true,
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	if p.ID == "" {
		p.ID = core.ProductID(core.NewID())
		p.Stock = in.InitialStock
	} else if _, err := c.store.GetProduct(ctx, p.ID); err != nil {
		return nil, err
	}

	if err := c.store.SaveProduct(ctx, p); err != nil {
		return nil, err
	}
	c.logger.Info("product saved", "product_id", p.ID, "name", p.Name, "price", p.Price.StringFixed(2))
	return c.store.GetProduct(ctx, p.ID)
}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return core.Invalid("name", "is required")
	case in.Price.IsNegative():
		return core.Invalid("price", "must not be negative")
	case !core.WholeCents(in.Price):
		return core.Invalid("price", "use at most two decimal places")
	case in.InitialStock < 0:
		return core.Invalid("stock", "must not be negative")
	case in.MinStock < 0:
		return core.Invalid("min_stock", "must not be negative")
	}
	return nil
}

func (c *Catalog) List(ctx context.Context, activeOnly bool) ([]core.Product, error) {
	return c.store.ListProducts(ctx, activeOnly)
}

// Deactivate stops a product from being sold. Its stock is kept.
func (c *Catalog) Deactivate(ctx context.Context, id core.ProductID) error {
	p, err := c.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !p.Active {
		return nil
	}
	p.Active = false
	if err := c.store.SaveProduct(ctx, *p); err != nil {
		return err
	}
	c.logger.Info("product deactivated", "product_id", id)
	return nil
}

// Restock adds qty units and returns the new stock.
func (c *Catalog) Restock(ctx context.Context, id core.ProductID, qty int) (int, error) {
	if qty <= 0 {
		return 0, core.Invalid("quantity", "must be positive")
	}
	stock, err := c.store.RestockProduct(ctx, id, qty)
	if err != nil {
		return 0, err
	}
	c.logger.Info("product restocked", "product_id", id, "added", qty, "stock", stock)
	return stock, nil
}
