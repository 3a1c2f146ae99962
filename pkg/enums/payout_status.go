package enums

import "fmt"

// PayoutStatus tracks a payout request through the processor handshake.
type PayoutStatus string

const (
	PayoutStatusRequested PayoutStatus = "requested"
	PayoutStatusSubmitted PayoutStatus = "submitted"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusFailed    PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusRequested,
	PayoutStatusSubmitted,
	PayoutStatusPaid,
	PayoutStatusFailed,
}

// payoutStatusRank orders statuses so updates only ever move forward.
var payoutStatusRank = map[PayoutStatus]int{
	PayoutStatusRequested: 0,
	PayoutStatusSubmitted: 1,
	PayoutStatusPaid:      2,
	PayoutStatusFailed:    2,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the payout can no longer change state.
func (p PayoutStatus) IsTerminal() bool {
	return p == PayoutStatusPaid || p == PayoutStatusFailed
}

// CanAdvanceTo reports whether moving from p to target is a forward transition.
func (p PayoutStatus) CanAdvanceTo(target PayoutStatus) bool {
	if p.IsTerminal() {
		return false
	}
	from, ok := payoutStatusRank[p]
	if !ok {
		return false
	}
	to, ok := payoutStatusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
