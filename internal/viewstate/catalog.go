package viewstate

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/model"
	"github.com/mmeshcher/pastry-storefront/internal/repository"
	"github.com/mmeshcher/pastry-storefront/internal/stream"
)

// AllCategories — первый пункт списка категорий, отключающий фильтр.
const AllCategories = "Toutes"

// Phase описывает этап загрузки данных экрана.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseFailed
)

// Section группирует товары одной категории.
type Section struct {
	Category string
	Products []model.Product
}

// CatalogState хранит состояние экрана каталога.
type CatalogState struct {
	Phase      Phase
	Sections   []Section
	Categories []string
	Query      string
	Category   string
	Source     repository.CatalogSource
	Message    string
	// Notice — результат последнего добавления в корзину.
	Notice string
}

// CatalogLoader загружает каталог.
type CatalogLoader interface {
	Refresh(ctx context.Context) ([]model.Product, repository.CatalogSource, error)
}

// CartAdder добавляет товар в корзину активного пользователя.
type CartAdder interface {
	Add(ctx context.Context, p model.Product, quantity int) error
}

// Catalog держит состояние каталога с поиском и фильтром по категории.
type Catalog struct {
	loader CatalogLoader
	cart   CartAdder
	logger *zap.Logger
	state  *stream.Subject[CatalogState]

	mu  sync.Mutex
	all []model.Product
}

// NewCatalog создаёт держатель каталога.
func NewCatalog(loader CatalogLoader, cart CartAdder, logger *zap.Logger) *Catalog {
	return &Catalog{
		loader: loader,
		cart:   cart,
		logger: logger,
		state:  stream.NewSubject(CatalogState{Phase: PhaseLoading, Category: AllCategories}),
	}
}

// Watch подписывается на состояние каталога.
func (c *Catalog) Watch(ctx context.Context) <-chan CatalogState {
	return c.state.Subscribe(ctx)
}

// State возвращает текущее состояние.
func (c *Catalog) State() CatalogState {
	return c.state.Value()
}

// Run загружает каталог и ждёт отмены контекста.
func (c *Catalog) Run(ctx context.Context) error {
	c.Load(ctx)
	<-ctx.Done()
	return nil
}

// Load загружает каталог: сервер, локальная копия или встроенный список.
func (c *Catalog) Load(ctx context.Context) {
	c.state.Update(func(s CatalogState) CatalogState {
		s.Phase = PhaseLoading
		s.Message = ""
		return s
	})

	products, source, err := c.loader.Refresh(ctx)
	if err != nil {
		c.logger.Error("failed to load catalog", zap.Error(err))
		c.state.Update(func(s CatalogState) CatalogState {
			s.Phase = PhaseFailed
			s.Message = "Impossible de charger les pâtisseries. Vérifiez votre connexion."
			return s
		})
		return
	}

	c.mu.Lock()
	c.all = products
	c.mu.Unlock()

	c.state.Update(func(s CatalogState) CatalogState {
		s.Phase = PhaseReady
		s.Source = source
		return c.apply(s)
	})
}

// SetQuery задаёт строку поиска по названию.
func (c *Catalog) SetQuery(q string) {
	c.state.Update(func(s CatalogState) CatalogState {
		s.Query = strings.TrimSpace(q)
		return c.apply(s)
	})
}

// SetCategory задаёт фильтр по категории. Пустая строка или AllCategories снимает фильтр.
func (c *Catalog) SetCategory(category string) {
	c.state.Update(func(s CatalogState) CatalogState {
		if category == "" {
			category = AllCategories
		}
		s.Category = category
		return c.apply(s)
	})
}

// AddToCart добавляет одну единицу товара в корзину. Требует входа.
func (c *Catalog) AddToCart(ctx context.Context, productID string) error {
	p, ok := c.find(productID)
	if !ok {
		err := model.E(model.KindNotFound, "catalog.AddToCart", model.ErrNotFound.Message, nil)
		c.setNotice(Message(err))
		return err
	}

	if err := c.cart.Add(ctx, p, 1); err != nil {
		c.setNotice(Message(err))
		return err
	}
	c.setNotice(p.Name + " ajouté au panier")
	return nil
}

func (c *Catalog) setNotice(msg string) {
	c.state.Update(func(s CatalogState) CatalogState {
		s.Notice = msg
		return s
	})
}

func (c *Catalog) find(id string) (model.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.all {
		if p.ID == id {
			return p, true
		}
	}
	return model.Product{}, false
}

// apply пересчитывает категории и секции по фильтрам состояния.
func (c *Catalog) apply(s CatalogState) CatalogState {
	c.mu.Lock()
	all := c.all
	c.mu.Unlock()

	s.Categories = categories(all)
	s.Sections = sections(all, s.Category, s.Query)
	return s
}

func categories(products []model.Product) []string {
	out := []string{AllCategories}
	seen := make(map[string]bool)
	for _, p := range products {
		if p.Category == "" || seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		out = append(out, p.Category)
	}
	return out
}

func sections(products []model.Product, category, query string) []Section {
	filterCategory := category != "" && category != AllCategories
	q := strings.ToLower(query)

	var out []Section
	index := make(map[string]int)
	for _, p := range products {
		if filterCategory && !strings.EqualFold(p.Category, category) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		i, ok := index[p.Category]
		if !ok {
			i = len(out)
			index[p.Category] = i
			out = append(out, Section{Category: p.Category})
		}
		out[i].Products = append(out[i].Products, p)
	}
	return out
}
