package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

const cartColumns = `id, user_id, product_id, name, price, image_url, quantity, in_promotion, discount_rate`

func scanCartLine(row rowScanner) (model.CartLine, error) {
	var c model.CartLine
	err := row.Scan(&c.ID, &c.UserID, &c.ProductID, &c.Name, &c.Price, &c.ImageURL,
		&c.Quantity, &c.InPromotion, &c.DiscountRate)
	return c, err
}

// CartLines возвращает корзину пользователя в порядке добавления.
func (s *Store) CartLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cartColumns+` FROM cart_items WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, storageErr("store.CartLines", fmt.Errorf("select cart: %w", err))
	}
	defer rows.Close()

	lines := make([]model.CartLine, 0)
	for rows.Next() {
		c, err := scanCartLine(rows)
		if err != nil {
			return nil, storageErr("store.CartLines", fmt.Errorf("scan cart line: %w", err))
		}
		lines = append(lines, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("store.CartLines", fmt.Errorf("rows error: %w", err))
	}

	return lines, nil
}

// CartLine возвращает позицию корзины по товару.
func (s *Store) CartLine(ctx context.Context, userID int64, productID string) (model.CartLine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	c, err := scanCartLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CartLine{}, model.ErrNotFound
		}
		return model.CartLine{}, storageErr("store.CartLine", fmt.Errorf("get cart line: %w", err))
	}
	return c, nil
}

// InsertCartLine добавляет позицию. Если товар уже в корзине, количество складывается,
// а название, цена и изображение обновляются.
func (s *Store) InsertCartLine(ctx context.Context, line model.CartLine) (int64, error) {
	if line.Quantity < 1 {
		return 0, model.Validation("store.InsertCartLine", "quantity must be at least 1")
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO cart_items (user_id, product_id, name, price, image_url, quantity, in_promotion, discount_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO UPDATE SET
		     quantity = cart_items.quantity + excluded.quantity,
		     name = excluded.name,
		     price = excluded.price,
		     image_url = excluded.image_url,
		     in_promotion = excluded.in_promotion,
		     discount_rate = excluded.discount_rate
		 RETURNING id`,
		line.UserID, line.ProductID, line.Name, line.Price, line.ImageURL,
		line.Quantity, line.InPromotion, line.DiscountRate,
	).Scan(&id)
	if err != nil {
		return 0, storageErr("store.InsertCartLine", fmt.Errorf("insert cart line: %w", err))
	}

	s.hub.publish(topic{tableCart, line.UserID})
	return id, nil
}

// UpdateCartQuantity устанавливает количество товара.
func (s *Store) UpdateCartQuantity(ctx context.Context, userID int64, productID string, quantity int) error {
	if quantity < 1 {
		return model.Validation("store.UpdateCartQuantity", "quantity must be at least 1")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = ? WHERE user_id = ? AND product_id = ?`,
		quantity, userID, productID,
	)
	if err != nil {
		return storageErr("store.UpdateCartQuantity", fmt.Errorf("update quantity: %w", err))
	}
	if err := requireAffected(res, "store.UpdateCartQuantity"); err != nil {
		return err
	}

	s.hub.publish(topic{tableCart, userID})
	return nil
}

// AdjustCartQuantity меняет количество на delta, если результат не меньше 1.
// Возвращает false, если строка не изменилась.
func (s *Store) AdjustCartQuantity(ctx context.Context, userID int64, productID string, delta int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity = quantity + ?
		 WHERE user_id = ? AND product_id = ? AND quantity + ? >= 1`,
		delta, userID, productID, delta,
	)
	if err != nil {
		return false, storageErr("store.AdjustCartQuantity", fmt.Errorf("adjust quantity: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("store.AdjustCartQuantity", fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		return false, nil
	}

	s.hub.publish(topic{tableCart, userID})
	return true, nil
}

// DeleteCartLine удаляет товар из корзины.
func (s *Store) DeleteCartLine(ctx context.Context, userID int64, productID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`, userID, productID)
	if err != nil {
		return storageErr("store.DeleteCartLine", fmt.Errorf("delete cart line: %w", err))
	}

	s.hub.publish(topic{tableCart, userID})
	return nil
}

// ClearCart удаляет все позиции пользователя.
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return storageErr("store.ClearCart", fmt.Errorf("clear cart: %w", err))
	}

	s.hub.publish(topic{tableCart, userID})
	return nil
}

// WatchCart выдаёт корзину пользователя при каждом её изменении.
func (s *Store) WatchCart(ctx context.Context, userID int64) <-chan []model.CartLine {
	return watch(ctx, s, topic{tableCart, userID}, func(ctx context.Context) ([]model.CartLine, error) {
		return s.CartLines(ctx, userID)
	})
}
