// Package domain содержит бизнес-сущности и доменные ошибки заказов.
package domain

import "errors"

// Доменные ошибки заказов.
// Используются для передачи бизнес-ошибок между слоями приложения.
var (
	// ErrOrderNotFound возвращается, когда заказ не найден в базе данных.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrEmptyOrderItems возвращается при попытке создать заказ без позиций.
	ErrEmptyOrderItems = errors.New("заказ должен содержать хотя бы одну позицию")

	// ErrTooManyOrderItems возвращается, когда позиций больше допустимого максимума.
	ErrTooManyOrderItems = errors.New("заказ не может содержать больше 100 позиций")

	// ErrInvalidUserID возвращается при пустом или некорректном идентификаторе пользователя.
	ErrInvalidUserID = errors.New("некорректный идентификатор пользователя")

	// ErrInvalidProductID возвращается при пустом или некорректном идентификаторе товара.
	ErrInvalidProductID = errors.New("некорректный идентификатор товара")

	// ErrInvalidQuantity возвращается, когда количество товара меньше или равно нулю.
	ErrInvalidQuantity = errors.New("количество должно быть больше нуля")

	// ErrInvalidPrice возвращается, когда цена товара отрицательная или нулевая.
	ErrInvalidPrice = errors.New("цена должна быть больше нуля")

	// ErrInvalidPaymentMethod возвращается при неизвестном методе оплаты.
	ErrInvalidPaymentMethod = errors.New("неизвестный метод оплаты")

	// ErrInvalidShippingAddress возвращается при неполном адресе доставки.
	ErrInvalidShippingAddress = errors.New("адрес доставки заполнен не полностью")

	// ErrInvalidTransition возвращается при недопустимом переходе статуса заказа.
	ErrInvalidTransition = errors.New("недопустимый переход статуса заказа")

	// ErrOrderCannotCancel возвращается при попытке отменить заказ в неподходящем статусе.
	ErrOrderCannotCancel = errors.New("заказ нельзя отменить в текущем статусе")

	// ErrOrderCannotReturn возвращается при попытке оформить возврат не завершённого заказа.
	ErrOrderCannotReturn = errors.New("возврат возможен только для завершённого заказа")

	// ErrAccessDenied возвращается, когда пользователь обращается к чужому заказу.
	ErrAccessDenied = errors.New("заказ принадлежит другому пользователю")
)
