package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

const orderColumns = `id, user_id, total_amount, payment_method, card_ref, shipping_address, status, created_at, delivery_date, review, remote_id`

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o                    model.Order
		method, status       string
		createdAt, delivered int64
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &method, &o.CardRef, &o.ShippingAddress,
		&status, &createdAt, &delivered, &o.Review, &o.RemoteID)
	if err != nil {
		return model.Order{}, err
	}
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	o.CreatedAt = fromMillis(createdAt)
	o.DeliveryDate = fromMillis(delivered)
	return o, nil
}

func (s *Store) queryOrders(ctx context.Context, op, query string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, fmt.Errorf("select orders: %w", err))
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr(op, fmt.Errorf("scan order: %w", err))
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(op, fmt.Errorf("rows error: %w", err))
	}

	return orders, nil
}

// PlaceOrder сохраняет заказ и очищает корзину пользователя одной транзакцией.
// lines — снимок корзины, по которому посчитана сумма. Если в транзакции корзина
// отличается от снимка, заказ не сохраняется и возвращается model.ErrCartChanged.
// Пустые поля времени и статуса заполняются значениями по умолчанию.
func (s *Store) PlaceOrder(ctx context.Context, o model.Order, lines []model.CartLine) (int64, error) {
	const op = "store.PlaceOrder"

	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	if o.DeliveryDate.IsZero() {
		o.DeliveryDate = o.CreatedAt.Add(model.DeliveryDelay)
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := cartInTx(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		if !sameCart(current, lines) {
			return model.E(model.KindInvalidState, op, model.ErrCartChanged.Message, nil)
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, total_amount, payment_method, card_ref, shipping_address, status, created_at, delivery_date, review, remote_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?) RETURNING id`,
			o.UserID, o.TotalAmount, string(o.PaymentMethod), o.CardRef, o.ShippingAddress,
			string(o.Status), millis(o.CreatedAt), millis(o.DeliveryDate), o.RemoteID,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, o.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.NoOrder, storageErr(op, err)
	}

	s.hub.publish(topic{tableOrders, o.UserID}, topic{tableCart, o.UserID})
	return id, nil
}

func cartInTx(ctx context.Context, tx *sql.Tx, userID int64) ([]model.CartLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+cartColumns+` FROM cart_items WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		c, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return lines, nil
}

// sameCart сравнивает корзины по товару, цене и количеству без учёта порядка.
func sameCart(a, b []model.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	type key struct {
		productID string
		price     float64
		quantity  int
	}
	seen := make(map[key]int, len(a))
	for _, l := range a {
		seen[key{l.ProductID, l.Price, l.Quantity}]++
	}
	for _, l := range b {
		k := key{l.ProductID, l.Price, l.Quantity}
		if seen[k] == 0 {
			return false
		}
		seen[k]--
	}
	return true
}

// Orders возвращает заказы пользователя, новые первыми.
func (s *Store) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.queryOrders(ctx, "store.Orders",
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// LastOrder возвращает последний заказ пользователя.
func (s *Store) LastOrder(ctx context.Context, userID int64) (model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	return s.singleOrder(row, "store.LastOrder")
}

// OrderByID возвращает заказ по id.
func (s *Store) OrderByID(ctx context.Context, id int64) (model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	return s.singleOrder(row, "store.OrderByID")
}

func (s *Store) singleOrder(row *sql.Row, op string) (model.Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Order{}, model.ErrNotFound
		}
		return model.Order{}, storageErr(op, fmt.Errorf("get order: %w", err))
	}
	return o, nil
}

// AdvanceOrderStatus переводит заказ из from в to, только если заказ сейчас в статусе from
// и to следует сразу за from.
func (s *Store) AdvanceOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) error {
	if !from.CanAdvanceTo(to) {
		return model.E(model.KindInvalidState, "store.AdvanceOrderStatus", model.ErrStatusConflict.Message, nil)
	}

	var userID int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ? RETURNING user_id`,
		string(to), id, string(from),
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.E(model.KindInvalidState, "store.AdvanceOrderStatus", model.ErrStatusConflict.Message, nil)
		}
		return storageErr("store.AdvanceOrderStatus", fmt.Errorf("update status: %w", err))
	}

	s.hub.publish(topic{tableOrders, userID})
	return nil
}

// SetOrderReview сохраняет отзыв доставленного заказа, заменяя предыдущий.
func (s *Store) SetOrderReview(ctx context.Context, id int64, review string) error {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE orders SET review = ? WHERE id = ? AND status = ? RETURNING user_id`,
		review, id, string(model.OrderStatusDelivered),
	).Scan(&userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return storageErr("store.SetOrderReview", fmt.Errorf("update review: %w", err))
		}
		if _, err := s.OrderByID(ctx, id); err != nil {
			return err
		}
		return model.E(model.KindInvalidState, "store.SetOrderReview", model.ErrReviewNotAllowed.Message, nil)
	}

	s.hub.publish(topic{tableOrders, userID})
	return nil
}

// SetOrderRemoteID запоминает id, под которым заказ сохранён на сервере.
func (s *Store) SetOrderRemoteID(ctx context.Context, id, remoteID int64) error {
	var userID int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE orders SET remote_id = ? WHERE id = ? RETURNING user_id`, remoteID, id,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return storageErr("store.SetOrderRemoteID", fmt.Errorf("update remote id: %w", err))
	}

	s.hub.publish(topic{tableOrders, userID})
	return nil
}

// OrdersInProgress возвращает недоставленные заказы, старые первыми.
func (s *Store) OrdersInProgress(ctx context.Context, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx, "store.OrdersInProgress",
		`SELECT `+orderColumns+` FROM orders WHERE status <> ? ORDER BY created_at, id LIMIT ?`,
		string(model.OrderStatusDelivered), limit)
}

// WatchOrders выдаёт заказы пользователя при каждом их изменении.
func (s *Store) WatchOrders(ctx context.Context, userID int64) <-chan []model.Order {
	return watch(ctx, s, topic{tableOrders, userID}, func(ctx context.Context) ([]model.Order, error) {
		return s.Orders(ctx, userID)
	})
}
