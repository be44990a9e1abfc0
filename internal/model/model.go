// Package model содержит доменные сущности витрины кондитерской.
package model

import (
	"strings"
	"time"
)

// NoUser обозначает отсутствие активного пользователя в сессии.
const NoUser int64 = -1

// NoOrder возвращается вместо id, если заказ не создан.
const NoOrder int64 = -1

// SessionTTL определяет срок действия сессии с момента входа.
const SessionTTL = 30 * 24 * time.Hour

// DeliveryDelay задаёт плановый срок доставки заказа.
const DeliveryDelay = 48 * time.Hour

// User представляет зарегистрированного покупателя.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	Address      string
	Phone        string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName возвращает имя для отображения.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CartLine описывает позицию корзины пользователя.
// Название, цена и изображение денормализованы, чтобы корзина не менялась вместе с каталогом.
type CartLine struct {
	ID           int64
	UserID       int64
	ProductID    string
	Name         string
	Price        float64
	ImageURL     string
	Quantity     int
	InPromotion  bool
	DiscountRate int
}

// Subtotal возвращает стоимость позиции.
func (c CartLine) Subtotal() float64 {
	return c.Price * float64(c.Quantity)
}

// OrderStatus описывает этап выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusDelivered  OrderStatus = "delivered"
)

var statusProgression = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusDelivering,
	OrderStatusDelivered,
}

func (s OrderStatus) rank() int {
	for i, st := range statusProgression {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid сообщает, входит ли статус в известную последовательность.
func (s OrderStatus) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal сообщает, что заказ доставлен и дальше не продвигается.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered
}

// Next возвращает следующий статус. Для терминального или неизвестного статуса возвращает false.
func (s OrderStatus) Next() (OrderStatus, bool) {
	r := s.rank()
	if r < 0 || r == len(statusProgression)-1 {
		return s, false
	}
	return statusProgression[r+1], true
}

// Previous возвращает предыдущий статус.
func (s OrderStatus) Previous() (OrderStatus, bool) {
	r := s.rank()
	if r <= 0 {
		return s, false
	}
	return statusProgression[r-1], true
}

// CanAdvanceTo разрешает переход только на один шаг вперёд.
func (s OrderStatus) CanAdvanceTo(to OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentCard
}

// Order описывает оформленный заказ.
type Order struct {
	ID              int64
	UserID          int64
	TotalAmount     float64
	PaymentMethod   PaymentMethod
	CardRef         string
	ShippingAddress string
	Status          OrderStatus
	CreatedAt       time.Time
	DeliveryDate    time.Time
	Review          string
	// RemoteID — id заказа на сервере, 0 пока заказ не синхронизирован.
	RemoteID        int64
}

// Product описывает позицию каталога.
type Product struct {
	ID           string
	Name         string
	Price        float64
	ImageURL     string
	Available    bool
	Description  string
	InPromotion  bool
	DiscountRate int
	Category     string
}

// Session содержит состояние текущего входа на устройстве.
type Session struct {
	UserID       int64     `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	LoggedIn     bool      `json:"logged_in"`
	LoginAt      time.Time `json:"login_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// EmptySession возвращает сессию без пользователя.
func EmptySession() Session {
	return Session{UserID: NoUser}
}

// IsValid проверяет, что вход выполнен и срок сессии не истёк.
func (s Session) IsValid(now time.Time) bool {
	if !s.LoggedIn || s.UserID == NoUser {
		return false
	}
	return now.Sub(s.LoginAt) < SessionTTL
}
