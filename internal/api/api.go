// Package api описывает JSON-контракт между клиентом витрины и сервером.
// Имена полей совпадают с именами колонок локального хранилища.
package api

import (
	"time"

	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// User описывает профиль пользователя. Пароль передаётся только при регистрации.
type User struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Password  string `json:"password,omitempty"`
}

// Credentials содержит email и пароль для входа.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DeleteAccount передаёт пароль и способ удаления аккаунта.
type DeleteAccount struct {
	Password string `json:"password"`
	Mode     string `json:"mode"`
}

// Product описывает позицию каталога.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ImageURL     string  `json:"image_url"`
	Available    bool    `json:"available"`
	Description  string  `json:"description"`
	InPromotion  bool    `json:"in_promotion"`
	DiscountRate int     `json:"discount_rate"`
	Category     string  `json:"category"`
}

type CartLine struct {
	ID           int64   `json:"id,omitempty"`
	UserID       int64   `json:"user_id"`
	ProductID    string  `json:"product_id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ImageURL     string  `json:"image_url"`
	Quantity     int     `json:"quantity"`
	InPromotion  bool    `json:"in_promotion"`
	DiscountRate int     `json:"discount_rate"`
}

type Order struct {
	ID              int64     `json:"id,omitempty"`
	UserID          int64     `json:"user_id"`
	TotalAmount     float64   `json:"total_amount"`
	PaymentMethod   string    `json:"payment_method"`
	CardRef         string    `json:"card_ref,omitempty"`
	ShippingAddress string    `json:"shipping_address"`
	Status          string    `json:"status,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	DeliveryDate    time.Time `json:"delivery_date"`
	Review          string    `json:"review,omitempty"`
}

// StatusUpdate задаёт новый статус заказа.
type StatusUpdate struct {
	Status string `json:"status"`
}

type Review struct {
	Review string `json:"review"`
}

// Created возвращается при создании записи.
type Created struct {
	ID int64 `json:"id"`
}

// FromUser переводит пользователя в формат передачи без хэша пароля.
func FromUser(u model.User) User {
	return User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Address:   u.Address,
		Phone:     u.Phone,
	}
}

// ToModel переводит профиль в доменную модель.
func (u User) ToModel() model.User {
	return model.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Address:   u.Address,
		Phone:     u.Phone,
		Active:    true,
	}
}

func FromProduct(p model.Product) Product {
	return Product(p)
}

func (p Product) ToModel() model.Product {
	return model.Product(p)
}

func FromCartLine(c model.CartLine) CartLine {
	return CartLine(c)
}

func (c CartLine) ToModel() model.CartLine {
	return model.CartLine(c)
}

func FromOrder(o model.Order) Order {
	return Order{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		PaymentMethod:   string(o.PaymentMethod),
		CardRef:         o.CardRef,
		ShippingAddress: o.ShippingAddress,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		DeliveryDate:    o.DeliveryDate,
		Review:          o.Review,
	}
}

func (o Order) ToModel() model.Order {
	return model.Order{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		PaymentMethod:   model.PaymentMethod(o.PaymentMethod),
		CardRef:         o.CardRef,
		ShippingAddress: o.ShippingAddress,
		Status:          model.OrderStatus(o.Status),
		CreatedAt:       o.CreatedAt,
		DeliveryDate:    o.DeliveryDate,
		Review:          o.Review,
	}
}
