// Package appeals implements the appeal lifecycle: submission, the
// assignment state machine, permission-gated visibility, and chat messages.
package appeals

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an appeal. Immutable after creation.
type Type string

const (
	TypeHelp      Type = "help"
	TypeComplaint Type = "complaint"
	TypeAmnesty   Type = "amnesty"
)

// Valid reports whether t is a known appeal type.
func (t Type) Valid() bool {
	switch t {
	case TypeHelp, TypeComplaint, TypeAmnesty:
		return true
	}
	return false
}

// Status is the lifecycle state of an appeal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status is final. Terminal appeals accept no
// further messages; only an explicit status API may have set them.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// MaxMessageLength bounds a single chat message.
const MaxMessageLength = 1500

// Appeal is a user-submitted ticket. UserID is nil for anonymous submissions.
type Appeal struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Type      Type
	Status    Status
	CreatedAt time.Time
}

// Detail is the type-specific record created atomically with its appeal.
// Nickname/Email apply to help appeals, ViolatorNickname to complaints and
// AdminNickname to amnesty requests.
type Detail struct {
	AppealID         uuid.UUID
	Description      string
	Nickname         string
	Email            string
	ViolatorNickname string
	AdminNickname    string
}

// Assignment claims an appeal for one moderator. At most one row per appeal
// may have ReleasedAt == nil.
type Assignment struct {
	AppealID       uuid.UUID
	UserID         uuid.UUID
	AssignedAt     time.Time
	ReleasedAt     *time.Time
	IsAutoReleased bool
}

// AssignmentHistory is the append-only record of a past assignment.
// CannotReassign marks that the user voluntarily gave the appeal up and may
// never claim it again.
type AssignmentHistory struct {
	AppealID       uuid.UUID
	UserID         uuid.UUID
	AssignedAt     time.Time
	ReleasedAt     time.Time
	IsAutoReleased bool
	CannotReassign bool
}

// MessageMetadata is the typed payload stored alongside a message.
type MessageMetadata struct {
	AttachmentIDs []string `json:"attachments,omitempty"`
}

// Message is one chat entry on an appeal, ordered by CreatedAt ascending.
type Message struct {
	ID        uuid.UUID
	AppealID  uuid.UUID
	UserID    uuid.UUID
	UserName  string
	Message   string
	IsSystem  bool
	Metadata  MessageMetadata
	CreatedAt time.Time
}

// Attachment holds file metadata; message metadata references attachments by
// id rather than embedding them.
type Attachment struct {
	ID         uuid.UUID
	AppealID   uuid.UUID
	FileName   string
	FileSize   int64
	MimeType   string
	UploadedBy uuid.UUID
	CreatedAt  time.Time
}

// SupportAssignment is the standing pairing of a support staffer to their
// supervising moderator, used to route reassignment.
type SupportAssignment struct {
	SupportID   uuid.UUID
	ModeratorID uuid.UUID
	AssignedAt  time.Time
	IsActive    bool
}

// View is an appeal joined with its detail and current assignee, the shape
// handlers and the realtime layer work with.
type View struct {
	Appeal
	Detail       Detail
	UserName     string
	AssignedTo   *uuid.UUID
	AssignedName string
}

// IsOwner reports whether the user submitted the appeal. Anonymous appeals
// have no owner.
func (v View) IsOwner(userID uuid.UUID) bool {
	return v.UserID != nil && *v.UserID == userID
}

// Counters is the dashboard counter pair broadcast after appeal mutations.
type Counters struct {
	Pending      int `json:"pending"`
	UserAssigned int `json:"user_assigned"`
}

// ListFilter narrows an appeal listing.
type ListFilter struct {
	Statuses   []Status
	Types      []Type
	AssignedTo *uuid.UUID
	OwnerID    *uuid.UUID
	Search     string
	Page       int
	PerPage    int
}

// Summary is one row of an appeal listing.
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UserID      *uuid.UUID `json:"user_id"`
	UserName    string     `json:"user_name,omitempty"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
}

// Page is a paginated appeal listing.
type Page struct {
	Appeals    []Summary `json:"appeals"`
	Total      int       `json:"total"`
	PageNum    int       `json:"page"`
	PerPage    int       `json:"per_page"`
	TotalPages int       `json:"total_pages"`
}
