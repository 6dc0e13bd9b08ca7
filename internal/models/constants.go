package models

// TradeStatus константы статусов сделок
const (
	TradeStatusPending         = "pending"
	TradeStatusAwaitingPayment = "awaiting_payment"
	TradeStatusPaid            = "paid"
	TradeStatusAwaitingRelease = "awaiting_release"
	TradeStatusCompleted       = "completed"
	TradeStatusCancelled       = "cancelled"
	TradeStatusDisputed        = "disputed"
)

// TradeAction константы действий участников сделки
const (
	TradeActionSendPaymentInfo = "send_payment_info"
	TradeActionSubmitReceipt   = "submit_receipt"
	TradeActionConfirmReceipt  = "confirm_receipt"
	TradeActionCancel          = "cancel"
	TradeActionRaiseDispute    = "raise_dispute"
)

// MessageKind константы типов сообщений в чате сделки
const (
	MessageKindChat        = "chat"
	MessageKindSystem      = "system"
	MessageKindPaymentInfo = "payment_info"
)

// DisputeStatus константы статусов споров
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// DisputeOutcome константы вердиктов арбитра
const (
	DisputeOutcomeRelease = "release" // актив передаётся покупателю, сделка завершена
	DisputeOutcomeRefund  = "refund"  // сделка отменена, остаток возвращается объявлению
)

// ValidDisputeOutcomes список валидных вердиктов
var ValidDisputeOutcomes = map[string]struct{}{
	DisputeOutcomeRelease: {},
	DisputeOutcomeRefund:  {},
}

// NotificationType константы типов уведомлений
const (
	NotificationTypeMessage         = "message"
	NotificationTypeTradeStatus     = "trade_status"
	NotificationTypeDisputeOpened   = "dispute_opened"
	NotificationTypeDisputeResolved = "dispute_resolved"
)

// Role константы ролей пользователей
const (
	RoleUser    = "user"
	RoleArbiter = "arbiter"
)

// ValidTradeStatuses список валидных статусов сделок
var ValidTradeStatuses = map[string]struct{}{
	TradeStatusPending:         {},
	TradeStatusAwaitingPayment: {},
	TradeStatusPaid:            {},
	TradeStatusAwaitingRelease: {},
	TradeStatusCompleted:       {},
	TradeStatusCancelled:       {},
	TradeStatusDisputed:        {},
}

// TerminalTradeStatuses список терминальных статусов сделок
var TerminalTradeStatuses = map[string]struct{}{
	TradeStatusCompleted: {},
	TradeStatusCancelled: {},
}

// ValidTradeActions список валидных действий над сделкой
var ValidTradeActions = map[string]struct{}{
	TradeActionSendPaymentInfo: {},
	TradeActionSubmitReceipt:   {},
	TradeActionConfirmReceipt:  {},
	TradeActionCancel:          {},
	TradeActionRaiseDispute:    {},
}

// IsTerminalTradeStatus сообщает, является ли статус терминальным.
func IsTerminalTradeStatus(status string) bool {
	_, ok := TerminalTradeStatuses[status]
	return ok
}
