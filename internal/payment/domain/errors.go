// Package domain содержит бизнес-сущности и доменные ошибки платежей.
package domain

import "errors"

// Доменные ошибки платежей.
var (
	// ErrPaymentNotFound возвращается, когда платёж не найден в базе данных.
	ErrPaymentNotFound = errors.New("платёж не найден")

	// ErrInvalidTransition возвращается при недопустимом переходе статуса платежа.
	// Дубликаты и запоздавшие уведомления шлюза — ожидаемый трафик, поэтому
	// вызывающий код логирует эту ошибку как no-op, а не падает.
	ErrInvalidTransition = errors.New("недопустимый переход статуса платежа")

	// ErrInvalidAmount возвращается при нулевой или отрицательной сумме платежа.
	ErrInvalidAmount = errors.New("сумма платежа должна быть больше нуля")

	// ErrRefundNotAllowed возвращается при запросе возврата не завершённого платежа.
	ErrRefundNotAllowed = errors.New("возврат возможен только для завершённого платежа")

	// ErrRefundAlreadyRequested возвращается при повторном запросе возврата.
	ErrRefundAlreadyRequested = errors.New("возврат по этому платежу уже запрошен")

	// ErrInvalidSignature возвращается, когда подпись callback'а шлюза не прошла проверку.
	ErrInvalidSignature = errors.New("подпись callback'а не прошла проверку")

	// ErrActivePaymentExists возвращается при попытке создать второй
	// незавершённый платёж для одного заказа.
	ErrActivePaymentExists = errors.New("по заказу уже существует активный платёж")

	// ErrAccessDenied возвращается, когда пользователь обращается к чужому платежу.
	ErrAccessDenied = errors.New("платёж принадлежит другому пользователю")
)
