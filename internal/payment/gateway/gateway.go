// Package gateway содержит адаптеры платёжных провайдеров.
//
// Каждый адаптер приводит проприетарный протокол провайдера к единому
// контракту: создание заказа на оплату, опрос статуса, проверка подписи
// callback'а. Коды результата провайдера нормализуются в канонический
// исход (success/failure/pending) — за счёт этого обработчик callback'ов
// и движок сверки используют один и тот же код применения исхода.
package gateway

import (
	"context"
	"fmt"
	"time"

	"example.com/shop-backend/internal/payment/domain"
)

// Error — ошибка обращения к платёжному провайдеру.
// Сеть, таймаут, открытый circuit breaker и отказ самого провайдера.
type Error struct {
	Provider string // Имя провайдера (zalopay, momo)
	Op       string // Операция (create, query)
	Message  string // Сообщение провайдера, если есть
	Err      error  // Исходная ошибка
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("шлюз %s, операция %s: %v", e.Provider, e.Op, e.Err)
	}
	return fmt.Sprintf("шлюз %s, операция %s: %s", e.Provider, e.Op, e.Message)
}

// Unwrap возвращает исходную ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// CreateOrderRequest — запрос создания заказа на оплату у провайдера.
type CreateOrderRequest struct {
	Payment     *domain.Payment
	Description string
}

// CreateOrderResult — результат создания заказа у провайдера.
type CreateOrderResult struct {
	PayURL      string // URL страницы оплаты для редиректа пользователя
	AppTransID  string // ZaloPay: наш идентификатор у провайдера
	RequestID   string // MoMo: requestId
	RawResponse string // Сырой ответ провайдера для аудита
}

// QueryResult — результат опроса статуса платежа у провайдера.
type QueryResult struct {
	Outcome         domain.Outcome // Канонический исход
	ProviderTransID string         // Идентификатор транзакции провайдера
	RawResponse     string         // Сырой ответ для аудита
}

// CallbackResult — разобранный и проверенный callback провайдера.
type CallbackResult struct {
	PaymentRef      string         // Корреляция: app_trans_id (ZaloPay) или requestId (MoMo)
	Outcome         domain.Outcome // Канонический исход
	ProviderTransID string         // Идентификатор транзакции провайдера
	RawPayload      string         // Сырой payload для аудита
}

// Adapter — единый контракт платёжного провайдера.
type Adapter interface {
	// Method возвращает метод оплаты адаптера.
	Method() domain.Method

	// Online возвращает true, если метод работает через внешний шлюз.
	Online() bool

	// ExpireAfter возвращает таймаут, после которого неоплаченный платёж
	// отменяется sweep'ом. Ноль — метод не истекает (cod, banking).
	ExpireAfter() time.Duration

	// CreateOrder создаёт заказ на оплату у провайдера.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)

	// QueryOrder опрашивает провайдера о текущем статусе платежа.
	QueryOrder(ctx context.Context, payment *domain.Payment) (*QueryResult, error)

	// VerifyCallback проверяет подпись callback'а и нормализует его исход.
	// Возвращает domain.ErrInvalidSignature при несовпадении подписи —
	// неподписанным полям доверять нельзя.
	VerifyCallback(body []byte) (*CallbackResult, error)
}

// Registry хранит адаптеры по методу оплаты.
type Registry struct {
	adapters map[domain.Method]Adapter
}

// NewRegistry создаёт реестр из переданных адаптеров.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Method]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Method()] = a
	}
	return r
}

// Get возвращает адаптер метода оплаты.
func (r *Registry) Get(method domain.Method) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("адаптер для метода оплаты %q не зарегистрирован", method)
	}
	return a, nil
}

// Online возвращает все онлайн-адаптеры.
func (r *Registry) Online() []Adapter {
	var online []Adapter
	for _, a := range r.adapters {
		if a.Online() {
			online = append(online, a)
		}
	}
	return online
}
