package repository

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/metrics"
	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// CatalogSource сообщает, откуда получен каталог.
type CatalogSource string

const (
	SourceRemote CatalogSource = "remote"
	SourceLocal  CatalogSource = "local"
	SourceSeed   CatalogSource = "seed"
)

// Products отдаёт каталог и поддерживает его локальную копию.
type Products struct {
	store    ProductStore
	remote   CatalogRemote
	seed     func() []model.Product
	fallback fallback
	logger   *zap.Logger
}

// NewProducts создаёт репозиторий каталога. remote может быть nil.
func NewProducts(st ProductStore, remote CatalogRemote, logger *zap.Logger, rec metrics.Recorder) *Products {
	fb := newFallback(logger, rec)
	return &Products{
		store:    st,
		remote:   remote,
		seed:     SeedProducts,
		fallback: fb,
		logger:   fb.logger,
	}
}

// Refresh загружает каталог с сервера и заменяет им локальную копию.
// Если сервер недоступен или вернул пустой список, используется локальная копия,
// а пустая или устаревшая копия заполняется встроенным каталогом.
func (p *Products) Refresh(ctx context.Context) ([]model.Product, CatalogSource, error) {
	if enabled(p.remote) {
		products, err := p.remote.Products(ctx)
		products = sanitize(products)
		switch {
		case err != nil:
			p.fallback.remoteFailed("products.refresh", err)
		case len(products) == 0:
			p.logger.Warn("remote catalog is empty, using local copy")
		default:
			if err := p.store.ReplaceProducts(ctx, products); err != nil {
				return nil, "", err
			}
			p.logger.Info("catalog refreshed from remote", zap.Int("count", len(products)))
			return products, SourceRemote, nil
		}
	}

	return p.loadLocal(ctx)
}

func (p *Products) loadLocal(ctx context.Context) ([]model.Product, CatalogSource, error) {
	products, err := p.store.Products(ctx)
	if err != nil {
		return nil, "", err
	}

	if len(products) > 0 && !hasStaleImages(products) {
		p.logger.Debug("catalog loaded from local store", zap.Int("count", len(products)))
		return products, SourceLocal, nil
	}

	seed := p.seed()
	if err := p.store.ReplaceProducts(ctx, seed); err != nil {
		return nil, "", err
	}
	p.logger.Info("catalog seeded", zap.Int("count", len(seed)))

	products, err = p.store.Products(ctx)
	if err != nil {
		return nil, "", err
	}
	return products, SourceSeed, nil
}

// All возвращает локальную копию каталога.
func (p *Products) All(ctx context.Context) ([]model.Product, error) {
	return p.store.Products(ctx)
}

// ByID возвращает товар по id.
func (p *Products) ByID(ctx context.Context, id string) (model.Product, error) {
	return p.store.ProductByID(ctx, id)
}

func sanitize(products []model.Product) []model.Product {
	out := make([]model.Product, 0, len(products))
	for _, pr := range products {
		pr.ID = strings.TrimSpace(pr.ID)
		if pr.ID == "" {
			continue
		}
		pr.Name = strings.TrimSpace(pr.Name)
		pr.ImageURL = strings.TrimSpace(pr.ImageURL)
		pr.Category = strings.TrimSpace(pr.Category)
		if pr.DiscountRate < 0 || pr.DiscountRate > 100 {
			pr.DiscountRate = 0
		}
		out = append(out, pr)
	}
	return out
}

// hasStaleImages сообщает, что копия собрана для локального сервера разработки.
func hasStaleImages(products []model.Product) bool {
	return strings.Contains(products[0].ImageURL, "localhost")
}
