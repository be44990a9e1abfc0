// Package backend содержит сервер витрины: хранилище в PostgreSQL и бизнес-логику REST API.
package backend

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	retryBase = 100 * time.Millisecond
	retryMax  = 3
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, взаимной блокировке и обрыве соединения.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryMax, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// commitError оборачивает сбой COMMIT. Если сервер не ответил, транзакция могла
// примениться, поэтому повторяется только явный отказ сервера.
type commitError struct {
	err error
}

func (e *commitError) Error() string { return "commit tx: " + e.err.Error() }
func (e *commitError) Unwrap() error { return e.err }

func commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return &commitError{err: err}
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ce *commitError
	if errors.As(err, &ce) {
		var pgErr *pgconn.PgError
		return errors.As(ce.err, &pgErr) &&
			(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgerrcode.IsConnectionException(pgErr.Code)
	}

	return pgconn.SafeToRetry(err) || isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func storageErr(op string, err error) error {
	return model.E(model.KindStorage, op, "storage failure", err)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const userColumns = `id, first_name, last_name, email, address, phone, password_hash, active, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Address, &u.Phone,
		&u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser создаёт пользователя. Занятый email даёт model.ErrDuplicateEmail.
func (r *PostgresRepository) CreateUser(ctx context.Context, u model.User) (int64, error) {
	const op = "backend.CreateUser"

	var id int64
	err := withRetry(ctx, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO users (first_name, last_name, email, address, phone, password_hash)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			u.FirstName, u.LastName, u.Email, u.Address, u.Phone, u.PasswordHash,
		).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, model.E(model.KindDuplicate, op, model.ErrDuplicateEmail.Message, err)
		}
		return 0, storageErr(op, err)
	}
	return id, nil
}

// UserByEmail возвращает пользователя по email без учёта регистра.
func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (model.User, error) {
	const op = "backend.UserByEmail"

	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
		}
		return model.User{}, storageErr(op, err)
	}
	return u, nil
}

// UserByID возвращает пользователя по id.
func (r *PostgresRepository) UserByID(ctx context.Context, id int64) (model.User, error) {
	const op = "backend.UserByID"

	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
		}
		return model.User{}, storageErr(op, err)
	}
	return u, nil
}

// UpdateUser сохраняет профиль. Пароль и признак активности не меняются.
func (r *PostgresRepository) UpdateUser(ctx context.Context, u model.User) error {
	const op = "backend.UpdateUser"

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, email = $4, address = $5, phone = $6, updated_at = NOW()
		 WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Address, u.Phone,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.E(model.KindDuplicate, op, model.ErrDuplicateEmail.Message, err)
		}
		return storageErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
	}
	return nil
}

// SoftDeleteUser помечает пользователя неактивным и удаляет его корзину и заказы.
func (r *PostgresRepository) SoftDeleteUser(ctx context.Context, id int64) error {
	const op = "backend.SoftDeleteUser"

	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `UPDATE users SET active = FALSE, updated_at = NOW() WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		return commit(ctx, tx)
	})
	if err != nil {
		return storageErr(op, err)
	}
	return nil
}

// DeleteUser удаляет пользователя. Корзина и заказы удаляются каскадно.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	const op = "backend.DeleteUser"

	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// Products возвращает каталог, упорядоченный по категории и id.
func (r *PostgresRepository) Products(ctx context.Context) ([]model.Product, error) {
	const op = "backend.Products"

	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, image_url, available, description, in_promotion, discount_rate, category
		 FROM products
		 ORDER BY category, LENGTH(id), id`,
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Available, &p.Description,
			&p.InPromotion, &p.DiscountRate, &p.Category); err != nil {
			return nil, storageErr(op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return products, nil
}

// CartLines возвращает корзину пользователя.
func (r *PostgresRepository) CartLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	const op = "backend.CartLines"

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, product_id, name, price, image_url, quantity, in_promotion, discount_rate
		 FROM cart_items
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Name, &l.Price, &l.ImageURL,
			&l.Quantity, &l.InPromotion, &l.DiscountRate); err != nil {
			return nil, storageErr(op, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return lines, nil
}

// AddCartLine добавляет позицию. Если товар уже в корзине, количество суммируется.
func (r *PostgresRepository) AddCartLine(ctx context.Context, l model.CartLine) error {
	const op = "backend.AddCartLine"

	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO cart_items (user_id, product_id, name, price, image_url, quantity, in_promotion, discount_rate)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			l.UserID, l.ProductID, l.Name, l.Price, l.ImageURL, l.Quantity, l.InPromotion, l.DiscountRate,
		)
		return err
	})
	if err != nil {
		return storageErr(op, err)
	}
	return nil
}

// DeleteCartLine удаляет товар из корзины. Отсутствие позиции не считается ошибкой.
func (r *PostgresRepository) DeleteCartLine(ctx context.Context, userID int64, productID string) error {
	const op = "backend.DeleteCartLine"

	if _, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return storageErr(op, err)
	}
	return nil
}

const orderColumns = `id, user_id, total_amount, payment_method, card_ref, shipping_address, status, created_at, delivery_date, review`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		method string
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &method, &o.CardRef, &o.ShippingAddress,
		&status, &o.CreatedAt, &o.DeliveryDate, &o.Review)
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	return o, err
}

// PlaceOrder в одной транзакции создаёт заказ и очищает корзину пользователя.
func (r *PostgresRepository) PlaceOrder(ctx context.Context, o model.Order) (int64, error) {
	const op = "backend.PlaceOrder"

	var id int64
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, total_amount, payment_method, card_ref, shipping_address, status, created_at, delivery_date)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			o.UserID, o.TotalAmount, string(o.PaymentMethod), o.CardRef, o.ShippingAddress,
			string(model.OrderStatusPending), o.CreatedAt, o.DeliveryDate,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, o.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		return commit(ctx, tx)
	})
	if err != nil {
		return model.NoOrder, storageErr(op, err)
	}
	return id, nil
}

// Orders возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	const op = "backend.Orders"

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return orders, nil
}

// OrderByID возвращает заказ по id.
func (r *PostgresRepository) OrderByID(ctx context.Context, id int64) (model.Order, error) {
	const op = "backend.OrderByID"

	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
		}
		return model.Order{}, storageErr(op, err)
	}
	return o, nil
}

// AdvanceOrderStatus меняет статус, только если текущий равен from.
// Возвращает false, если статус уже изменён другим запросом.
func (r *PostgresRepository) AdvanceOrderStatus(ctx context.Context, id int64, from, to model.OrderStatus) (bool, error) {
	const op = "backend.AdvanceOrderStatus"

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, storageErr(op, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetOrderReview сохраняет отзыв к доставленному заказу, заменяя прежний.
func (r *PostgresRepository) SetOrderReview(ctx context.Context, id int64, review string) error {
	const op = "backend.SetOrderReview"

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET review = $2 WHERE id = $1 AND status = $3`,
		id, review, string(model.OrderStatusDelivered),
	)
	if err != nil {
		return storageErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.E(model.KindInvalidState, op, model.ErrReviewNotAllowed.Message, nil)
	}
	return nil
}

// OrdersInProgress возвращает недоставленные заказы, старые первыми.
func (r *PostgresRepository) OrdersInProgress(ctx context.Context, limit int) ([]model.Order, error) {
	const op = "backend.OrdersInProgress"

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status <> $1
		 ORDER BY created_at, id
		 LIMIT $2`,
		string(model.OrderStatusDelivered), limit,
	)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return orders, nil
}
