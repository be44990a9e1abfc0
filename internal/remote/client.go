// Package remote предоставляет клиент REST-сервера витрины.
//
// Сервер используется по возможности: ошибки транспорта классифицируются как
// model.KindConnectivity, и вызывающий переходит на локальное хранилище.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/pastry-storefront/internal/api"
	"github.com/mmeshcher/pastry-storefront/internal/model"
)

// ErrNotConfigured возвращается, если адрес сервера не задан.
var ErrNotConfigured = model.E(model.KindConnectivity, "", "remote client not configured", nil)

// StatusError описывает ответ сервера с неуспешным кодом.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

// Client инкапсулирует HTTP-взаимодействие с сервером витрины.
type Client struct {
	baseURL string
	timeout time.Duration
	retries int
	logger  *zap.Logger

	mu         sync.Mutex
	httpClient *http.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithRetries задаёт число повторов при недоступности сервера.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// NewClient создаёт клиент. Пустой baseURL означает работу без сервера.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := &Client{
		baseURL: base,
		timeout: timeout,
		retries: 1,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = c.newHTTPClient()
	return c
}

// newHTTPClient собирает клиент: пул соединений cleanhttp, повторы retryablehttp
// и cookie авторизации на внешнем http.Client.
func (c *Client) newHTTPClient() *http.Client {
	inner := cleanhttp.DefaultPooledClient()
	inner.Timeout = c.timeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = inner
	rc.RetryMax = c.retries
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.CheckRetry = retryUnavailable
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{c.logger.Sugar()}

	hc := rc.StandardClient()
	// cookiejar.New возвращает ошибку только при некорректных опциях.
	jar, _ := cookiejar.New(nil)
	hc.Jar = jar
	return hc
}

// retryUnavailable повторяет запрос, только если сервер его не обработал:
// ошибка соединения, 429 или 503. Создание заказа не должно выполниться дважды.
func retryUnavailable(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true, nil
	}
	return false, nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// Enabled сообщает, настроен ли адрес сервера.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// ResetSession забывает cookie авторизации.
func (c *Client) ResetSession() {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient.CloseIdleConnections()
	c.httpClient = c.newHTTPClient()
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.httpClient
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return model.E(model.KindStorage, op, "", fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout*time.Duration(c.retries+1)+time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return model.E(model.KindConnectivity, op, "", fmt.Errorf("create request: %w", err))
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return model.E(model.KindConnectivity, op, "", fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		c.logger.Debug("remote call rejected",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
		)
		return classify(op, statusErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.E(model.KindConnectivity, op, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func classify(op string, err *StatusError) error {
	switch err.Code {
	case http.StatusUnauthorized:
		return model.E(model.KindAuth, op, model.ErrInvalidCredentials.Message, err)
	case http.StatusConflict:
		return model.E(model.KindDuplicate, op, model.ErrDuplicateEmail.Message, err)
	case http.StatusNotFound:
		return model.E(model.KindNotFound, op, model.ErrNotFound.Message, err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.E(model.KindValidation, op, "", err)
	default:
		return model.E(model.KindConnectivity, op, "", err)
	}
}

// IsStatus сообщает, что err содержит ответ сервера с кодом code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}

// Register регистрирует пользователя и возвращает его профиль с id сервера.
func (c *Client) Register(ctx context.Context, u model.User, password string) (model.User, error) {
	in := api.FromUser(u)
	in.ID = 0
	in.Password = password

	var out api.User
	if err := c.do(ctx, "remote.Register", http.MethodPost, "/api/users/register", in, &out); err != nil {
		return model.User{}, err
	}
	return out.ToModel(), nil
}

// Login выполняет вход и сохраняет cookie авторизации.
func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	var out api.User
	in := api.Credentials{Email: email, Password: password}
	if err := c.do(ctx, "remote.Login", http.MethodPost, "/api/users/login", in, &out); err != nil {
		return model.User{}, err
	}
	return out.ToModel(), nil
}

// Me возвращает профиль текущего пользователя.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out api.User
	if err := c.do(ctx, "remote.Me", http.MethodGet, "/api/users/me", nil, &out); err != nil {
		return model.User{}, err
	}
	return out.ToModel(), nil
}

// UpdateProfile обновляет профиль текущего пользователя.
func (c *Client) UpdateProfile(ctx context.Context, u model.User) error {
	return c.do(ctx, "remote.UpdateProfile", http.MethodPut, "/api/users/me", api.FromUser(u), nil)
}

// DeleteAccount удаляет или деактивирует аккаунт текущего пользователя.
func (c *Client) DeleteAccount(ctx context.Context, password, mode string) error {
	in := api.DeleteAccount{Password: password, Mode: mode}
	return c.do(ctx, "remote.DeleteAccount", http.MethodDelete, "/api/users/me", in, nil)
}

// Products возвращает каталог сервера.
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var out []api.Product
	if err := c.do(ctx, "remote.Products", http.MethodGet, "/api/products", nil, &out); err != nil {
		return nil, err
	}
	products := make([]model.Product, 0, len(out))
	for _, p := range out {
		products = append(products, p.ToModel())
	}
	return products, nil
}

// Cart возвращает корзину текущего пользователя на сервере.
func (c *Client) Cart(ctx context.Context) ([]model.CartLine, error) {
	var out []api.CartLine
	if err := c.do(ctx, "remote.Cart", http.MethodGet, "/api/cart", nil, &out); err != nil {
		return nil, err
	}
	lines := make([]model.CartLine, 0, len(out))
	for _, l := range out {
		lines = append(lines, l.ToModel())
	}
	return lines, nil
}

// AddToCart добавляет позицию в корзину на сервере.
func (c *Client) AddToCart(ctx context.Context, line model.CartLine) error {
	in := api.FromCartLine(line)
	in.ID = 0
	return c.do(ctx, "remote.AddToCart", http.MethodPost, "/api/cart", in, nil)
}

// RemoveFromCart удаляет товар из корзины на сервере.
func (c *Client) RemoveFromCart(ctx context.Context, productID string) error {
	return c.do(ctx, "remote.RemoveFromCart", http.MethodDelete, "/api/cart/"+productID, nil, nil)
}

// PlaceOrder создаёт заказ на сервере и возвращает его id.
func (c *Client) PlaceOrder(ctx context.Context, o model.Order) (int64, error) {
	in := api.FromOrder(o)
	in.ID = 0

	var out api.Created
	if err := c.do(ctx, "remote.PlaceOrder", http.MethodPost, "/api/orders", in, &out); err != nil {
		return model.NoOrder, err
	}
	return out.ID, nil
}

// Orders возвращает заказы текущего пользователя на сервере.
func (c *Client) Orders(ctx context.Context) ([]model.Order, error) {
	var out []api.Order
	if err := c.do(ctx, "remote.Orders", http.MethodGet, "/api/orders", nil, &out); err != nil {
		return nil, err
	}
	orders := make([]model.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, o.ToModel())
	}
	return orders, nil
}

// UpdateOrderStatus переводит заказ на сервере в статус status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	path := "/api/orders/" + strconv.FormatInt(id, 10) + "/status"
	return c.do(ctx, "remote.UpdateOrderStatus", http.MethodPatch, path, api.StatusUpdate{Status: string(status)}, nil)
}

// SubmitReview сохраняет отзыв к заказу на сервере.
func (c *Client) SubmitReview(ctx context.Context, id int64, review string) error {
	path := "/api/orders/" + strconv.FormatInt(id, 10) + "/review"
	return c.do(ctx, "remote.SubmitReview", http.MethodPut, path, api.Review{Review: review}, nil)
}
