package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

const userColumns = `id, first_name, last_name, email, address, phone, password_hash, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u                    model.User
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Address, &u.Phone,
		&u.PasswordHash, &u.Active, &createdAt, &updatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его id.
func (s *Store) CreateUser(ctx context.Context, u model.User) (int64, error) {
	now := s.now()
	if u.ID > 0 {
		// Пользователь, уже известный удалённому серверу, сохраняется под его id.
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, first_name, last_name, email, address, phone, password_hash, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			u.ID, u.FirstName, u.LastName, u.Email, u.Address, u.Phone, u.PasswordHash, millis(now), millis(now),
		)
		if err != nil {
			return 0, createUserErr(err)
		}
		s.hub.publish(topic{tableUsers, u.ID})
		return u.ID, nil
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (first_name, last_name, email, address, phone, password_hash, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?) RETURNING id`,
		u.FirstName, u.LastName, u.Email, u.Address, u.Phone, u.PasswordHash, millis(now), millis(now),
	).Scan(&id)
	if err != nil {
		return 0, createUserErr(err)
	}

	s.hub.publish(topic{tableUsers, id})
	return id, nil
}

func createUserErr(err error) error {
	if isUniqueViolation(err) {
		return model.E(model.KindDuplicate, "store.CreateUser", model.ErrDuplicateEmail.Message, nil)
	}
	return storageErr("store.CreateUser", fmt.Errorf("insert user: %w", err))
}

// UserByEmail возвращает пользователя по email без учёта регистра.
func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, storageErr("store.UserByEmail", fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// UserByID возвращает пользователя по id.
func (s *Store) UserByID(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, storageErr("store.UserByID", fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// EmailExists сообщает, занят ли email.
func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, storageErr("store.EmailExists", fmt.Errorf("check email: %w", err))
	}
	return exists, nil
}

// UpdateUser обновляет профиль пользователя. Пароль и признак активности не меняются.
func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = ?, last_name = ?, email = ?, address = ?, phone = ?, updated_at = ?
		 WHERE id = ?`,
		u.FirstName, u.LastName, u.Email, u.Address, u.Phone, millis(s.now()), u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.E(model.KindDuplicate, "store.UpdateUser", model.ErrDuplicateEmail.Message, nil)
		}
		return storageErr("store.UpdateUser", fmt.Errorf("update user: %w", err))
	}
	if err := requireAffected(res, "store.UpdateUser"); err != nil {
		return err
	}

	s.hub.publish(topic{tableUsers, u.ID})
	return nil
}

// UpdatePassword заменяет хэш пароля.
func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, millis(s.now()), id,
	)
	if err != nil {
		return storageErr("store.UpdatePassword", fmt.Errorf("update password: %w", err))
	}
	if err := requireAffected(res, "store.UpdatePassword"); err != nil {
		return err
	}

	s.hub.publish(topic{tableUsers, id})
	return nil
}

// SoftDeleteUser снимает признак активности и удаляет корзину и заказы. Запись пользователя
// остаётся, email повторно не регистрируется.
func (s *Store) SoftDeleteUser(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET active = 0, updated_at = ? WHERE id = ?`, millis(s.now()), id)
		if err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		if err := requireAffected(res, "store.SoftDeleteUser"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return storageErr("store.SoftDeleteUser", err)
	}

	s.hub.publish(topic{tableUsers, id}, topic{tableCart, id}, topic{tableOrders, id})
	return nil
}

// DeleteUserCascade удаляет пользователя вместе с корзиной и заказами одной транзакцией.
func (s *Store) DeleteUserCascade(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return requireAffected(res, "store.DeleteUserCascade")
	})
	if err != nil {
		return storageErr("store.DeleteUserCascade", err)
	}

	s.hub.publish(topic{tableUsers, id}, topic{tableCart, id}, topic{tableOrders, id})
	return nil
}

// WatchUser выдаёт пользователя при каждом изменении. Отсутствующий пользователь выдаётся как nil.
func (s *Store) WatchUser(ctx context.Context, id int64) <-chan *model.User {
	return watch(ctx, s, topic{tableUsers, id}, func(ctx context.Context) (*model.User, error) {
		u, err := s.UserByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &u, nil
	})
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.E(model.KindNotFound, op, model.ErrNotFound.Message, nil)
	}
	return nil
}
