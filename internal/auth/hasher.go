// Package auth содержит хэширование паролей.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost — число раундов bcrypt по умолчанию.
const DefaultCost = 12

// Hasher хэширует и проверяет пароли.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher хэширует пароли bcrypt с солью на каждый пароль.
type BcryptHasher struct {
	Cost int
}

var _ Hasher = BcryptHasher{}

// Hash возвращает bcrypt-хэш пароля.
func (b BcryptHasher) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify сравнивает пароль с хэшем за постоянное время.
func (b BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash сообщает, что хэш создан с другой стоимостью.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	want := b.Cost
	if want == 0 {
		want = DefaultCost
	}
	return cost != want
}
