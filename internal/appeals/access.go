package appeals

import (
	"fmt"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
)

// respondPermissions maps each appeal type to the permission that allows
// responding to it.
var respondPermissions = map[Type]rbac.Permission{
	TypeHelp:      rbac.PermRespondSupportTickets,
	TypeComplaint: rbac.PermRespondModerationComplaints,
	TypeAmnesty:   rbac.PermRespondAmnestyRequests,
}

// RespondPermission returns the permission gating responses to the type.
func RespondPermission(t Type) rbac.Permission {
	return respondPermissions[t]
}

// IsModerator reports whether the principal is staff at all: junior
// moderator tier or above.
func IsModerator(p rbac.Principal) bool {
	return p.HasRoleOrHigher(rbac.LevelJuniorModerator)
}

// AllowedTypes returns the appeal types the principal may act on, derived
// from the three respond permissions.
func AllowedTypes(p rbac.Principal) []Type {
	var types []Type
	for _, t := range []Type{TypeHelp, TypeComplaint, TypeAmnesty} {
		if p.HasPermission(respondPermissions[t]) {
			types = append(types, t)
		}
	}
	return types
}

// AllowedStatuses returns the statuses of the given type visible to the
// principal. Holders of the type's respond permission see pending;
// view_active_chats adds in_progress. Resolved and rejected are always
// appended for any principal that reaches this check (callers must enforce
// the "at least one respond permission" precondition first).
func AllowedStatuses(p rbac.Principal, t Type) []Status {
	seen := map[Status]bool{}
	var statuses []Status
	add := func(s Status) {
		if !seen[s] {
			seen[s] = true
			statuses = append(statuses, s)
		}
	}
	if perm, ok := respondPermissions[t]; ok && p.HasPermission(perm) {
		add(StatusPending)
	}
	if p.HasPermission(rbac.PermViewActiveChats) {
		add(StatusPending)
		add(StatusInProgress)
	}
	add(StatusResolved)
	add(StatusRejected)
	return statuses
}

func statusAllowed(p rbac.Principal, t Type, s Status) bool {
	for _, allowed := range AllowedStatuses(p, t) {
		if allowed == s {
			return true
		}
	}
	return false
}

func typeAllowed(p rbac.Principal, t Type) bool {
	for _, allowed := range AllowedTypes(p) {
		if allowed == t {
			return true
		}
	}
	return false
}

// CheckAccess decides whether the principal may open the appeal at all.
// Owners are always allowed. An in-progress appeal claimed by someone else is
// hidden unless the principal holds view_active_chats. Everyone else must
// pass the type and status gates.
func CheckAccess(p rbac.Principal, view View) error {
	if view.IsOwner(p.ID) {
		return nil
	}

	if view.Status == StatusInProgress {
		if view.AssignedTo != nil && *view.AssignedTo == p.ID {
			return nil
		}
		if !p.HasPermission(rbac.PermViewActiveChats) {
			return fmt.Errorf("appeal assigned to another moderator: %w", httpx.ErrForbidden)
		}
	}

	if !typeAllowed(p, view.Type) {
		return fmt.Errorf("no rights for %s appeals: %w", view.Type, httpx.ErrForbidden)
	}
	if !statusAllowed(p, view.Type, view.Status) {
		return fmt.Errorf("no rights for %s appeals in status %s: %w", view.Type, view.Status, httpx.ErrForbidden)
	}
	return nil
}

// CanSendMessage decides whether the principal may post to the appeal.
// Terminal appeals accept nothing from anyone. Once claimed, only the active
// assignee may respond; before a claim, any staffer holding the type's
// respond permission may (that first message performs the claim). Otherwise
// only the owner may write.
func CanSendMessage(p rbac.Principal, view View, isAssigned, isModerator, isOwner bool) bool {
	if view.Status.Terminal() {
		return false
	}
	if isModerator {
		if isAssigned && view.Status == StatusInProgress {
			return true
		}
		if perm, ok := respondPermissions[view.Type]; ok && p.HasPermission(perm) {
			return true
		}
	}
	return isOwner
}
