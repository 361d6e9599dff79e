package project

// Ledger is the budget accounting shared by projects and packages:
// Allocated never exceeds Budget and never goes below zero.
type Ledger struct {
	Budget    uint64
	Allocated uint64
}

// Available returns the unreserved part of the budget.
func (l Ledger) Available() uint64 {
	if l.Allocated >= l.Budget {
		return 0
	}
	return l.Budget - l.Allocated
}

// Reserve increments Allocated by amount if capacity allows.
func (l *Ledger) Reserve(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount > l.Available() {
		return ErrInsufficientBudget
	}
	l.Allocated += amount
	return nil
}

// Release returns amount to the available budget.
func (l *Ledger) Release(amount uint64) error {
	if amount == 0 || amount > l.Allocated {
		return ErrInvalidAmount
	}
	l.Allocated -= amount
	return nil
}
