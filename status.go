package auth

// UserStatus tracks the account lifecycle state relevant to authentication.
type UserStatus = string

const (
	// UserStatusPending marks accounts created but not yet email verified.
	// Pending accounts may log in; verification gates are a product choice
	// enforced at the boundary layer.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is the normal state.
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled blocks authentication entirely.
	UserStatusDisabled UserStatus = "disabled"
)

// EnsureStatus backfills the status for records created before the column
// existed.
func (u *User) EnsureStatus() {
	if u == nil {
		return
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// statusAuthError maps a lifecycle status to the rejection surfaced during
// authentication. Disabled accounts never receive tokens.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusDisabled:
		return ErrAccountDisabled
	default:
		return nil
	}
}

type statusAwareIdentity interface {
	Status() UserStatus
}

func identityStatus(identity Identity) (UserStatus, bool) {
	if identity == nil {
		return "", false
	}

	if sa, ok := identity.(statusAwareIdentity); ok {
		return sa.Status(), true
	}

	return "", false
}
