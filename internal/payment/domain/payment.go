// Package domain содержит бизнес-сущности и доменные ошибки платежей.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status — статус платежа в системе.
type Status string

const (
	// StatusPending — платёж создан, заказ у шлюза ещё не открыт (или COD).
	StatusPending Status = "pending"

	// StatusProcessing — заказ у шлюза создан, ожидаем оплату пользователем.
	StatusProcessing Status = "processing"

	// StatusCompleted — шлюз подтвердил успешную оплату.
	StatusCompleted Status = "completed"

	// StatusFailed — шлюз подтвердил неуспех оплаты.
	StatusFailed Status = "failed"

	// StatusCancelled — платёж отменён (истёк по таймауту или отменён с заказом).
	StatusCancelled Status = "cancelled"

	// StatusRefundRequested — пользователь запросил возврат завершённого платежа.
	StatusRefundRequested Status = "refund_requested"

	// StatusRefunded — администратор подтвердил возврат.
	StatusRefunded Status = "refunded"
)

// IsTerminal возвращает true, если статус финальный для сверки со шлюзом.
// completed не терминальный в строгом смысле — из него возможна ветка возврата,
// но повторный исход шлюза к нему уже не применяется.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// IsAwaitingGateway возвращает true для статусов, участвующих в сверке.
func (s Status) IsAwaitingGateway() bool {
	return s == StatusPending || s == StatusProcessing
}

// Method — метод оплаты платежа.
type Method string

const (
	MethodCOD     Method = "cod"
	MethodBanking Method = "banking"
	MethodZaloPay Method = "zalopay"
	MethodMoMo    Method = "momo"
)

// IsOnline возвращает true для методов с платёжным шлюзом.
// Только онлайн-методы опрашиваются при сверке и истекают по таймауту.
func (m Method) IsOnline() bool {
	return m == MethodZaloPay || m == MethodMoMo
}

// Outcome — канонический исход оплаты, нормализованный из кодов провайдера.
// Единый словарь для callback'ов и сверки: оба пути сходятся в одну
// функцию применения исхода.
type Outcome string

const (
	// OutcomeSuccess — провайдер подтвердил успешную оплату.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure — провайдер подтвердил неуспех оплаты.
	OutcomeFailure Outcome = "failure"

	// OutcomePending — провайдер ещё не знает исход (оплата в процессе).
	OutcomePending Outcome = "pending"
)

// =============================================================================
// Допустимые переходы состояний (State Machine)
// =============================================================================

// allowedTransitions определяет валидные переходы состояний платежа.
// Переходы монотонны: терминальный статус не перезаписывается запоздавшим
// или повторным уведомлением шлюза.
var allowedTransitions = map[Status][]Status{
	StatusPending:         {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:      {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:       {StatusRefundRequested},
	StatusRefundRequested: {StatusRefunded},
	// StatusFailed, StatusCancelled, StatusRefunded — терминальные состояния
}

// =============================================================================
// Payment — доменная сущность
// =============================================================================

// Payment — одна попытка оплаты заказа.
// Заказ может иметь несколько платежей при повторных попытках,
// но не более одного незавершённого одновременно.
type Payment struct {
	ID      string          // UUID платежа
	OrderID string          // ID связанного заказа
	UserID  string          // ID пользователя
	Amount  decimal.Decimal // Сумма платежа
	Method  Method          // Метод оплаты
	Status  Status          // Текущий статус

	// Корреляция с провайдером.
	AppTransID  string // ZaloPay: app_trans_id (наш идентификатор у провайдера)
	ZpTransID   string // ZaloPay: zp_trans_id (идентификатор провайдера)
	RequestID   string // MoMo: requestId
	MomoTransID string // MoMo: transId
	PayURL      string // URL страницы оплаты для редиректа пользователя

	GatewayResponse string     // Сырой ответ шлюза для аудита
	FailureReason   *string    // Причина неуспеха (при failed/cancelled)
	PaidAt          *time.Time // Момент подтверждения оплаты

	Refund   *Refund         // Данные возврата (nil если возврат не запрашивался)
	Timeline []TimelineEntry // Append-only история переходов статуса

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Refund — данные возврата платежа.
type Refund struct {
	Reason      string     // Причина возврата, указанная пользователем
	RequestedAt time.Time  // Момент запроса
	ProcessedAt *time.Time // Момент подтверждения администратором
	ProcessedBy string     // ID администратора, подтвердившего возврат
}

// TimelineEntry — запись истории переходов статуса платежа.
// История append-only: записи никогда не изменяются и не удаляются.
type TimelineEntry struct {
	Status    string    // Новый статус
	ChangedBy string    // Актор перехода (system/user/admin/gateway)
	ChangedAt time.Time // Момент перехода
	Note      string    // Пояснение
}

// Validate проверяет корректность полей платежа перед созданием.
func (p *Payment) Validate() error {
	if p.OrderID == "" {
		return ErrPaymentNotFound
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	allowed, ok := allowedTransitions[p.Status]
	if !ok {
		return false // Терминальное состояние
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новое состояние и добавляет запись в timeline.
func (p *Payment) TransitionTo(newStatus Status, changedBy, note string) error {
	if !p.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}

	now := time.Now()
	p.Status = newStatus
	p.UpdatedAt = now
	p.Timeline = append(p.Timeline, TimelineEntry{
		Status:    string(newStatus),
		ChangedBy: changedBy,
		ChangedAt: now,
		Note:      note,
	})
	return nil
}

// Complete помечает платёж оплаченным и фиксирует момент оплаты.
func (p *Payment) Complete(changedBy, note string) error {
	if err := p.TransitionTo(StatusCompleted, changedBy, note); err != nil {
		return err
	}
	now := time.Now()
	p.PaidAt = &now
	return nil
}

// Fail помечает платёж неуспешным с указанием причины.
func (p *Payment) Fail(changedBy, reason string) error {
	if err := p.TransitionTo(StatusFailed, changedBy, reason); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// Cancel отменяет платёж (таймаут сверки или отмена заказа).
func (p *Payment) Cancel(changedBy, reason string) error {
	if err := p.TransitionTo(StatusCancelled, changedBy, reason); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// RequestRefund запрашивает возврат завершённого платежа.
// Повторный запрос отклоняется.
func (p *Payment) RequestRefund(reason string) error {
	if p.Status == StatusRefundRequested || p.Status == StatusRefunded {
		return ErrRefundAlreadyRequested
	}
	if p.Status != StatusCompleted {
		return ErrRefundNotAllowed
	}
	if err := p.TransitionTo(StatusRefundRequested, "user", reason); err != nil {
		return err
	}
	p.Refund = &Refund{
		Reason:      reason,
		RequestedAt: time.Now(),
	}
	return nil
}

// ConfirmRefund подтверждает возврат. Вызывается администратором.
func (p *Payment) ConfirmRefund(adminID string) error {
	if err := p.TransitionTo(StatusRefunded, "admin", "возврат подтверждён"); err != nil {
		return err
	}
	now := time.Now()
	if p.Refund == nil {
		p.Refund = &Refund{RequestedAt: now}
	}
	p.Refund.ProcessedAt = &now
	p.Refund.ProcessedBy = adminID
	return nil
}
