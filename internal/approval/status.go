package approval

// Status represents a requisition's position in the approval lifecycle
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusFinanceApproved Status = "FINANCE_APPROVED"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

// Terminal reports whether no further transition is permitted from s
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is one of the known lifecycle statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFinanceApproved, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
