package store

import (
	"strings"

	"canopy/internal/types"
)

// ErrorClass decides how a session error is surfaced. Hidden errors are
// never shown, critical ones cannot be dismissed, everything else gets a
// banner with a dismiss affordance.
type ErrorClass string

const (
	ErrorHidden      ErrorClass = "hidden"
	ErrorCritical    ErrorClass = "critical"
	ErrorDismissable ErrorClass = "dismissable"
)

// Classify maps a runtime error name to its class. Abort errors are the
// user's own doing; auth failures block all progress until fixed.
func Classify(name string) ErrorClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "messageabortederror", "aborterror":
		return ErrorHidden
	case "providerautherror", "autherror", "unauthorizederror":
		return ErrorCritical
	default:
		return ErrorDismissable
	}
}

// VisibleError returns the banner-worthy error for a session: nil when
// there is none, when its class is hidden, or when the user dismissed
// this exact signature. A distinct error re-opens the banner.
func (s *Store) VisibleError(key string) *types.SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.sessionErrs[key]
	if err == nil || Classify(err.Name) == ErrorHidden {
		return nil
	}
	if s.dismissed[key] == err.Signature() {
		return nil
	}
	return err
}

// DismissError records the current error's signature so its banner stays
// closed until a different error arrives. Critical errors stay up.
func (s *Store) DismissError(key string) bool {
	s.mu.Lock()
	err := s.sessionErrs[key]
	if err == nil || Classify(err.Name) != ErrorDismissable {
		s.mu.Unlock()
		return false
	}
	s.dismissed[key] = err.Signature()
	s.mu.Unlock()
	s.notify([]string{TopicError(key)})
	return true
}

// RestoreDismissals seeds dismissed signatures from persisted hints.
func (s *Store) RestoreDismissals(bySession map[string]string) {
	s.mu.Lock()
	for key, signature := range bySession {
		if signature != "" {
			s.dismissed[key] = signature
		}
	}
	s.mu.Unlock()
}

// Dismissals snapshots the dismissed signatures for persistence.
func (s *Store) Dismissals() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.dismissed))
	for key, signature := range s.dismissed {
		out[key] = signature
	}
	return out
}
