package rbac

import (
	"fmt"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
)

// AuthorizationError reports a failed role-level or permission check. It
// carries the missing requirement so callers can surface it, and matches
// httpx.ErrForbidden under errors.Is for HTTP mapping.
type AuthorizationError struct {
	RequiredLevel     Level
	MissingPermission Permission
}

func (e *AuthorizationError) Error() string {
	if e.MissingPermission != "" {
		return fmt.Sprintf("rbac: missing permission %q", e.MissingPermission)
	}
	return fmt.Sprintf("rbac: requires role level %d or higher", e.RequiredLevel)
}

// Is makes the error satisfy errors.Is(err, httpx.ErrForbidden).
func (e *AuthorizationError) Is(target error) bool {
	return target == httpx.ErrForbidden
}
