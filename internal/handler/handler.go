// Package handler содержит HTTP-обработчики API сервера витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/api"
	"github.com/mmeshcher/pastry-storefront/internal/middleware"
	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, u model.User, password string) (model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (model.User, error)
	User(ctx context.Context, id int64) (model.User, error)
	UpdateProfile(ctx context.Context, u model.User) (model.User, error)
	DeleteAccount(ctx context.Context, id int64, password, mode string) error
	Products(ctx context.Context) ([]model.Product, error)
	Cart(ctx context.Context, userID int64) ([]model.CartLine, error)
	AddToCart(ctx context.Context, userID int64, l model.CartLine) error
	RemoveFromCart(ctx context.Context, userID int64, productID string) error
	PlaceOrder(ctx context.Context, userID int64, o model.Order) (int64, error)
	Orders(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, userID, id int64, to model.OrderStatus) error
	SubmitReview(ctx context.Context, userID, id int64, review string) error
}

// Handler реализует HTTP-обработчики API сервера витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	throttle       *middleware.LoginThrottle
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// throttle может быть nil, тогда вход и регистрация не ограничиваются.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, throttle *middleware.LoginThrottle) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		throttle:       throttle,
	}
}

func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindAuth, model.KindNotLoggedIn:
		return http.StatusUnauthorized
	case model.KindDuplicate, model.KindInvalidState:
		return http.StatusConflict
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail отвечает кодом, соответствующим категории ошибки.
// Внутренние ошибки логируются, для остальных клиент получает сообщение без имени операции.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		http.Error(w, http.StatusText(code), code)
		return
	}
	text := err.Error()
	var e *model.Error
	if errors.As(err, &e) && e.Message != "" {
		text = e.Message
	}
	http.Error(w, text, code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return userID, ok
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req api.User
	if !decode(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.ToModel(), req.Password)
	if err != nil {
		h.fail(w, r, "register user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	writeJSON(w, http.StatusCreated, api.FromUser(u))
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.Credentials
	if !decode(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, "login user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, u.ID)
	writeJSON(w, http.StatusOK, api.FromUser(u))
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	u, err := h.service.User(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get user error", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromUser(u))
}

// UpdateMe сохраняет профиль текущего пользователя.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req api.User
	if !decode(w, r, &req) {
		return
	}
	u := req.ToModel()
	u.ID = userID

	updated, err := h.service.UpdateProfile(r.Context(), u)
	if err != nil {
		h.fail(w, r, "update user error", err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromUser(updated))
}

// DeleteMe удаляет учётную запись текущего пользователя и сбрасывает cookie.
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req api.DeleteAccount
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID, req.Password, req.Mode); err != nil {
		h.fail(w, r, "delete user error", err)
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Products возвращает каталог. Доступен без авторизации.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		h.fail(w, r, "get products error", err)
		return
	}

	resp := make([]api.Product, 0, len(products))
	for _, p := range products {
		resp = append(resp, api.FromProduct(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	lines, err := h.service.Cart(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get cart error", err)
		return
	}

	resp := make([]api.CartLine, 0, len(lines))
	for _, l := range lines {
		resp = append(resp, api.FromCartLine(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddToCart добавляет позицию в корзину текущего пользователя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req api.CartLine
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.AddToCart(r.Context(), userID, req.ToModel()); err != nil {
		h.fail(w, r, "add to cart error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromCart удаляет товар из корзины текущего пользователя.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), userID, chi.URLParam(r, "productID")); err != nil {
		h.fail(w, r, "remove from cart error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlaceOrder оформляет заказ текущего пользователя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req api.Order
	if !decode(w, r, &req) {
		return
	}

	id, err := h.service.PlaceOrder(r.Context(), userID, req.ToModel())
	if err != nil {
		h.fail(w, r, "place order error", err)
		return
	}
	writeJSON(w, http.StatusCreated, api.Created{ID: id})
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	orders, err := h.service.Orders(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get orders error", err)
		return
	}

	resp := make([]api.Order, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, api.FromOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateOrderStatus переводит заказ текущего пользователя в следующий статус.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req api.StatusUpdate
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), userID, id, model.OrderStatus(req.Status)); err != nil {
		h.fail(w, r, "update order status error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitReview сохраняет отзыв к заказу текущего пользователя.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req api.Review
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.SubmitReview(r.Context(), userID, id, req.Review); err != nil {
		h.fail(w, r, "submit review error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
