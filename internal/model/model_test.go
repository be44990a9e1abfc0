package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusProgression(t *testing.T) {
	tests := []struct {
		name     string
		from     OrderStatus
		wantNext OrderStatus
		wantOK   bool
	}{
		{name: "pending", from: OrderStatusPending, wantNext: OrderStatusPreparing, wantOK: true},
		{name: "preparing", from: OrderStatusPreparing, wantNext: OrderStatusDelivering, wantOK: true},
		{name: "delivering", from: OrderStatusDelivering, wantNext: OrderStatusDelivered, wantOK: true},
		{name: "delivered is terminal", from: OrderStatusDelivered, wantNext: OrderStatusDelivered, wantOK: false},
		{name: "unknown", from: OrderStatus("cancelled"), wantNext: OrderStatus("cancelled"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := tt.from.Next()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestOrderStatusCanAdvanceTo(t *testing.T) {
	assert.True(t, OrderStatusPending.CanAdvanceTo(OrderStatusPreparing))
	assert.False(t, OrderStatusPending.CanAdvanceTo(OrderStatusDelivering), "skipping a stage")
	assert.False(t, OrderStatusDelivering.CanAdvanceTo(OrderStatusPreparing), "moving backward")
	assert.False(t, OrderStatusDelivered.CanAdvanceTo(OrderStatusDelivered))
	assert.True(t, OrderStatusDelivered.IsTerminal())

	prev, ok := OrderStatusDelivering.Previous()
	assert.True(t, ok)
	assert.Equal(t, OrderStatusPreparing, prev)
	_, ok = OrderStatusPending.Previous()
	assert.False(t, ok)
}

func TestSessionIsValid(t *testing.T) {
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{name: "empty", session: EmptySession(), want: false},
		{name: "fresh", session: Session{UserID: 7, LoggedIn: true, LoginAt: now.Add(-time.Hour)}, want: true},
		{name: "expired", session: Session{UserID: 7, LoggedIn: true, LoginAt: now.Add(-SessionTTL)}, want: false},
		{name: "flag unset", session: Session{UserID: 7, LoggedIn: false, LoginAt: now}, want: false},
		{name: "sentinel id", session: Session{UserID: NoUser, LoggedIn: true, LoginAt: now}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.IsValid(now))
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", ErrDuplicateEmail)

	assert.Equal(t, KindDuplicate, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrDuplicateEmail))
	assert.True(t, errors.Is(E(KindAuth, "auth.Login", ErrInvalidCredentials.Message, nil), ErrInvalidCredentials))
	assert.Equal(t, KindStorage, KindOf(errors.New("disk full")))
	assert.Equal(t, KindValidation, KindOf(Validation("op", "email is required")))
}

func TestUserFullName(t *testing.T) {
	u := User{FirstName: "Amira", LastName: "Ben Salah"}
	assert.Equal(t, "Amira Ben Salah", u.FullName())
}
