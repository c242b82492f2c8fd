package gateway

import (
	"context"
	"errors"
	"time"

	"example.com/shop-backend/internal/payment/domain"
)

// ErrOfflineMethod возвращается при попытке обратиться к шлюзу
// по офлайн-методу оплаты.
var ErrOfflineMethod = errors.New("метод оплаты не использует платёжный шлюз")

// offlineAdapter — адаптер методов без внешнего шлюза (cod, banking).
// Создание заказа — no-op: платёж остаётся pending до ручного подтверждения.
// Опрос и callback'и не поддерживаются, таймаут истечения не действует.
type offlineAdapter struct {
	method domain.Method
}

// NewCOD создаёт адаптер оплаты наличными при получении.
func NewCOD() Adapter {
	return &offlineAdapter{method: domain.MethodCOD}
}

// NewBanking создаёт адаптер банковского перевода.
func NewBanking() Adapter {
	return &offlineAdapter{method: domain.MethodBanking}
}

func (a *offlineAdapter) Method() domain.Method { return a.method }

func (a *offlineAdapter) Online() bool { return false }

func (a *offlineAdapter) ExpireAfter() time.Duration { return 0 }

// CreateOrder для офлайн-метода не обращается к провайдеру.
func (a *offlineAdapter) CreateOrder(_ context.Context, _ CreateOrderRequest) (*CreateOrderResult, error) {
	return &CreateOrderResult{}, nil
}

func (a *offlineAdapter) QueryOrder(_ context.Context, _ *domain.Payment) (*QueryResult, error) {
	return nil, ErrOfflineMethod
}

func (a *offlineAdapter) VerifyCallback(_ []byte) (*CallbackResult, error) {
	return nil, ErrOfflineMethod
}
