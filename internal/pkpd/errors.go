package pkpd

import (
	"errors"
	"fmt"
)

// ErrDomain marks a single exposure evaluation outside the model's domain.
var ErrDomain = errors.New("exposure model domain error")

// DomainError describes why one patient's exposure could not be computed.
type DomainError struct {
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDomain, e.Reason)
}

// Is lets errors.Is(err, ErrDomain) match any DomainError.
func (e *DomainError) Is(target error) bool {
	return target == ErrDomain
}
