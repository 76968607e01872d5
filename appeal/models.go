package appeal

import (
	"time"

	"escrowflow/order"
)

// Type names the outcome an appellant is asking the arbiter for.
type Type string

const (
	TypeCancel  Type = "CANCEL"
	TypeRelease Type = "RELEASE"
	TypeRefund  Type = "REFUND"
)

// AppealedStatus maps an appeal type to the status transition raising it
// performs.
func (t Type) AppealedStatus() (order.StatusType, bool) {
	switch t {
	case TypeCancel:
		return order.StatusCancelAppealed, true
	case TypeRelease:
		return order.StatusReleaseAppealed, true
	case TypeRefund:
		return order.StatusRefundAppealed, true
	}
	return "", false
}

// Appeal is a trade party's request for arbiter intervention. ResolvedAt is
// stamped exactly once, when the arbiter's release or refund settles.
type Appeal struct {
	ID         string
	OrderID    string
	OwnerID    string
	Type       Type
	Reasons    []string
	ResolvedAt *time.Time
	CreatedAt  time.Time
}
