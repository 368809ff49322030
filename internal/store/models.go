package store

import "time"

// Roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Document lifecycle states. A document parked in a pending state has an
// open permission request against it and rejects further mutation.
const (
	DocumentActive         = "ACTIVE"
	DocumentPendingDelete  = "PENDING_DELETE"
	DocumentPendingReplace = "PENDING_REPLACE"
)

// Permission request kinds
const (
	RequestKindDelete  = "DELETE"
	RequestKindReplace = "REPLACE"
	RequestKindEdit    = "EDIT"
)

// Permission request states
const (
	RequestPending  = "PENDING"
	RequestApproved = "APPROVED"
	RequestRejected = "REJECTED"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document is a managed file with metadata. FileKey points at the current
// object in storage; Version increments on every metadata or file change.
type Document struct {
	ID          string
	Title       string
	Description string
	DocType     string
	Status      string
	OwnerID     string
	FileKey     string
	FileName    string
	FileSize    int64
	ContentType string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Joined for API responses
	OwnerName string
}

// PermissionRequest is a member's petition to mutate a document. At most
// one PENDING request may exist per document, enforced by a partial unique
// index.
type PermissionRequest struct {
	ID          string
	DocumentID  string
	RequesterID string
	Kind        string
	Status      string
	Reason      string
	// REPLACE requests stage the incoming file here until approval.
	NewFileKey      string
	NewFileName     string
	NewFileSize     int64
	NewContentType  string
	ResolverID      *string
	ResolutionNote  string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	// Joined for API responses
	RequesterName string
	DocumentTitle string
}

// Notification is a durable inbox entry. Delivery over the live channel is
// best effort; this row is the record.
type Notification struct {
	ID         string
	UserID     string
	Title      string
	Message    string
	Category   string
	DocumentID *string
	RequestID  *string
	ReadAt     *time.Time
	CreatedAt  time.Time
}
