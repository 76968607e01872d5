package order

// StatusType enumerates the order lifecycle states.
type StatusType string

const (
	StatusSubmitted       StatusType = "SUBMITTED"
	StatusConfirmed       StatusType = "CONFIRMED"
	StatusPaidPending     StatusType = "PAID_PENDING"
	StatusPaid            StatusType = "PAID"
	StatusCancelAppealed  StatusType = "CANCEL_APPEALED"
	StatusReleaseAppealed StatusType = "RELEASE_APPEALED"
	StatusRefundAppealed  StatusType = "REFUND_APPEALED"
	StatusReleased        StatusType = "RELEASED"
	StatusRefunded        StatusType = "REFUNDED"
	StatusCanceled        StatusType = "CANCELED"
)

// successors is the full status diagram. A status type may be recorded for
// an order only when the order's latest status lists it here.
var successors = map[StatusType][]StatusType{
	StatusSubmitted:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed:   {StatusPaidPending, StatusCancelAppealed, StatusReleaseAppealed, StatusRefundAppealed},
	StatusPaidPending: {StatusPaid, StatusCancelAppealed, StatusReleaseAppealed, StatusRefundAppealed},
	StatusPaid: {
		StatusReleased, StatusRefunded, StatusCanceled,
		StatusCancelAppealed, StatusReleaseAppealed, StatusRefundAppealed,
	},
	StatusCancelAppealed:  {StatusReleased, StatusRefunded, StatusCanceled},
	StatusReleaseAppealed: {StatusReleased, StatusRefunded},
	StatusRefundAppealed:  {StatusReleased, StatusRefunded},
	StatusReleased:        {},
	StatusRefunded:        {},
	StatusCanceled:        {},
}

// KnownStatus reports whether s is part of the diagram.
func KnownStatus(s StatusType) bool {
	_, ok := successors[s]
	return ok
}

// Terminal reports whether no further transition can leave s.
func Terminal(s StatusType) bool {
	return len(successors[s]) == 0 && KnownStatus(s)
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to StatusType) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}
