package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

const productColumns = `id, name, price, image_url, available, description, in_promotion, discount_rate, category`

func scanProduct(row rowScanner) (model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Available, &p.Description,
		&p.InPromotion, &p.DiscountRate, &p.Category)
	return p, err
}

// Products возвращает каталог, упорядоченный по категории и названию.
func (s *Store) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY category, name`)
	if err != nil {
		return nil, storageErr("store.Products", fmt.Errorf("select products: %w", err))
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storageErr("store.Products", fmt.Errorf("scan product: %w", err))
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("store.Products", fmt.Errorf("rows error: %w", err))
	}

	return products, nil
}

// ProductByID возвращает товар по id.
func (s *Store) ProductByID(ctx context.Context, id string) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Product{}, model.ErrNotFound
		}
		return model.Product{}, storageErr("store.ProductByID", fmt.Errorf("get product: %w", err))
	}
	return p, nil
}

// ProductCount возвращает количество товаров в каталоге.
func (s *Store) ProductCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, storageErr("store.ProductCount", fmt.Errorf("count products: %w", err))
	}
	return n, nil
}

// ReplaceProducts заменяет каталог целиком одной транзакцией.
func (s *Store) ReplaceProducts(ctx context.Context, products []model.Product) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
			return fmt.Errorf("delete products: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range products {
			_, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.ImageURL, p.Available,
				p.Description, p.InPromotion, p.DiscountRate, p.Category)
			if err != nil {
				return fmt.Errorf("insert product %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("store.ReplaceProducts", err)
	}

	s.hub.publish(topic{tableProducts, allUsers})
	return nil
}

// WatchProducts выдаёт каталог при каждом его изменении.
func (s *Store) WatchProducts(ctx context.Context) <-chan []model.Product {
	return watch(ctx, s, topic{tableProducts, allUsers}, s.Products)
}
