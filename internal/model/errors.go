package model

import "errors"

var (
	// ErrNotFound возвращается, если кошелёк, заказ, лот или иная запись не найдены.
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("already exists")
	// ErrInsufficientFunds возвращается, если баланса кошелька недостаточно для перевода.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientPoints возвращается, если эко-баллов недостаточно для списания.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInvalidAmount возвращается при неположительной или несовпадающей сумме.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidState возвращается, если объект находится в неподходящем статусе.
	ErrInvalidState = errors.New("invalid state")
	// ErrExternalService возвращается при отказе внешнего сервиса (шлюз блокчейна, платёжный шлюз).
	ErrExternalService = errors.New("external service failure")
	// ErrAlreadySettled возвращается при повторном расчёте уже рассчитанного заказа.
	ErrAlreadySettled = errors.New("already settled")
	// ErrAlreadyCompleted возвращается при повторном завершении заказа.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrInvalidAddress возвращается при неверном формате адреса в блокчейне.
	ErrInvalidAddress = errors.New("invalid chain address")
	// ErrWalletNotConnected возвращается, если у владельца нет адреса в блокчейне.
	ErrWalletNotConnected = errors.New("wallet address not connected")
)
