package model

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку для слоя представления.
type Kind int

const (
	// KindStorage — ошибка хранилища или любая неклассифицированная ошибка.
	KindStorage Kind = iota
	KindValidation
	KindAuth
	KindDuplicate
	KindNotFound
	KindNotLoggedIn
	KindInvalidState
	KindConnectivity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindNotLoggedIn:
		return "not_logged_in"
	case KindInvalidState:
		return "invalid_state"
	case KindConnectivity:
		return "connectivity"
	default:
		return "storage"
	}
}

// Error описывает ошибку с категорией, которую возвращают репозитории и сервисы.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по категории и сообщению, чтобы errors.Is работал с предопределёнными ошибками.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message && t.Op == ""
}

// E создаёт классифицированную ошибку.
func E(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf возвращает категорию первой классифицированной ошибки в цепочке.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

var (
	// ErrInvalidCredentials возвращается и для неизвестного email, и для неверного пароля.
	ErrInvalidCredentials = &Error{Kind: KindAuth, Message: "invalid email or password"}
	// ErrDuplicateEmail возвращается при регистрации с уже занятым email.
	ErrDuplicateEmail = &Error{Kind: KindDuplicate, Message: "email already registered"}
	// ErrNotLoggedIn возвращается, если операция требует активной сессии.
	ErrNotLoggedIn = &Error{Kind: KindNotLoggedIn, Message: "not logged in"}
	// ErrNotFound возвращается при отсутствии записи.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrReviewNotAllowed возвращается при попытке оставить отзыв до доставки.
	ErrReviewNotAllowed = &Error{Kind: KindInvalidState, Message: "review allowed only for delivered orders"}
	// ErrStatusConflict возвращается, если статус заказа уже изменился или переход недопустим.
	ErrStatusConflict = &Error{Kind: KindInvalidState, Message: "order status cannot advance"}
	// ErrCartChanged возвращается, если корзина изменилась между расчётом суммы и сохранением заказа.
	ErrCartChanged = &Error{Kind: KindInvalidState, Message: "cart changed during checkout"}
	// ErrCheckoutInProgress возвращается при повторном оформлении, пока первое не завершилось.
	ErrCheckoutInProgress = &Error{Kind: KindInvalidState, Message: "checkout already in progress"}
)

// Validation создаёт ошибку валидации входных данных.
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}
