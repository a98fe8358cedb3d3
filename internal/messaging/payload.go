package messaging

import "github.com/google/uuid"

// BalanceTopUpPayload - сообщение от платежной подсистемы о подтвержденном
// пополнении баланса. PaymentID нужен только для логов и трассировки:
// дедупликацию платежей делает сама платежная подсистема.
type BalanceTopUpPayload struct {
	UserID    uuid.UUID `json:"userId"`
	Amount    int       `json:"amount"`
	PaymentID string    `json:"paymentId"`
}
