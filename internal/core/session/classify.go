package session

// DefaultActionCodes is the fixed default set of event codes that count as
// user actions. Overridable globally via config and per product via profiles.
var DefaultActionCodes = []string{"a", "b", "c"}

// ActionSet is a membership set of action event codes.
type ActionSet map[string]struct{}

// NewActionSet builds an ActionSet from a list of codes.
func NewActionSet(codes []string) ActionSet {
	s := make(ActionSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether the event code is a user action. Total: unknown
// codes classify as false.
func (s ActionSet) Contains(eventID string) bool {
	_, ok := s[eventID]
	return ok
}
