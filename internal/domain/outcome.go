package domain

// Outcome is the result of processing one company. It is either Found or
// Unresolved; blacklist skips are decided before the processor runs and never
// produce an Outcome.
type Outcome interface {
	outcome()
}

type Found struct {
	Contact Contact
}

type Unresolved struct {
	Reason Reason
	Err    error
}

func (Found) outcome()      {}
func (Unresolved) outcome() {}

func (u Unresolved) Error() string {
	if u.Err == nil {
		return string(u.Reason)
	}
	return u.Err.Error()
}
