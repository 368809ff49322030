package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrRequestAlreadyPending is returned when a document already has an
	// open request. Enforced by the partial unique index on
	// permission_requests(document_id) WHERE status='PENDING'.
	ErrRequestAlreadyPending = errors.New("document already has a pending request")

	// ErrRequestAlreadyResolved is returned when a resolver loses the race
	// to review a request.
	ErrRequestAlreadyResolved = errors.New("request already resolved")
)

const requestColumns = `
	r.id, COALESCE(r.document_id, ''), r.requester_id, r.kind, r.status, r.reason,
	r.new_file_key, r.new_file_name, r.new_file_size, r.new_content_type,
	r.resolver_id, r.resolution_note, r.created_at, r.resolved_at,
	u.display_name, r.document_title
`

func scanRequest(row interface{ Scan(...any) error }) (PermissionRequest, error) {
	var item PermissionRequest
	err := row.Scan(
		&item.ID,
		&item.DocumentID,
		&item.RequesterID,
		&item.Kind,
		&item.Status,
		&item.Reason,
		&item.NewFileKey,
		&item.NewFileName,
		&item.NewFileSize,
		&item.NewContentType,
		&item.ResolverID,
		&item.ResolutionNote,
		&item.CreatedAt,
		&item.ResolvedAt,
		&item.RequesterName,
		&item.DocumentTitle,
	)
	return item, err
}

// CreateRequestTx files a permission request and, for DELETE and REPLACE
// kinds, parks the document in the matching pending state. The document row
// is locked for the duration so concurrent filers serialize; the partial
// unique index backstops the one-pending-per-document invariant.
func (s *PostgresStore) CreateRequestTx(ctx context.Context, request PermissionRequest) (PermissionRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PermissionRequest{}, fmt.Errorf("begin create request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status, title string
	err = tx.QueryRowContext(ctx, `
		SELECT status, title FROM documents WHERE id=$1 FOR UPDATE
	`, request.DocumentID).Scan(&status, &title)
	if err != nil {
		return PermissionRequest{}, err
	}
	if status != DocumentActive {
		return PermissionRequest{}, ErrRequestAlreadyPending
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO permission_requests
			(id, document_id, document_title, requester_id, kind, status, reason,
			 new_file_key, new_file_name, new_file_size, new_content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, request.ID, request.DocumentID, title, request.RequesterID, request.Kind, RequestPending, request.Reason,
		request.NewFileKey, request.NewFileName, request.NewFileSize, request.NewContentType)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PermissionRequest{}, ErrRequestAlreadyPending
		}
		return PermissionRequest{}, fmt.Errorf("insert request: %w", err)
	}

	if parked := parkedStatus(request.Kind); parked != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1
		`, request.DocumentID, parked); err != nil {
			return PermissionRequest{}, fmt.Errorf("park document: %w", err)
		}
	}

	created, err := scanRequest(tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.id=$1
	`, request.ID))
	if err != nil {
		return PermissionRequest{}, fmt.Errorf("read created request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PermissionRequest{}, fmt.Errorf("commit create request: %w", err)
	}
	return created, nil
}

// parkedStatus maps a request kind to the document state it parks the
// document in while pending. EDIT requests leave the document ACTIVE.
func parkedStatus(kind string) string {
	switch kind {
	case RequestKindDelete:
		return DocumentPendingDelete
	case RequestKindReplace:
		return DocumentPendingReplace
	}
	return ""
}

// ResolveResult reports what a resolution did, including object-storage
// keys that are now unreferenced and safe to remove.
type ResolveResult struct {
	Request         PermissionRequest
	DocumentDeleted bool
	OrphanedKeys    []string
}

// ResolveRequestTx applies an approve or reject decision exactly once. The
// request row is locked so concurrent resolvers serialize; the loser gets
// ErrRequestAlreadyResolved. Document effects land in the same transaction.
func (s *PostgresStore) ResolveRequestTx(ctx context.Context, requestID, resolverID string, approve bool, note string) (ResolveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResolveResult{}, fmt.Errorf("begin resolve request: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	request, err := scanRequest(tx.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.id=$1
		FOR UPDATE OF r
	`, requestID))
	if err != nil {
		return ResolveResult{}, err
	}
	if request.Status != RequestPending {
		return ResolveResult{}, ErrRequestAlreadyResolved
	}

	status := RequestRejected
	if approve {
		status = RequestApproved
	}
	resolvedAt := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE permission_requests
		SET status=$2, resolver_id=$3, resolution_note=$4, resolved_at=$5
		WHERE id=$1
	`, requestID, status, resolverID, note, resolvedAt); err != nil {
		return ResolveResult{}, fmt.Errorf("update request: %w", err)
	}

	result := ResolveResult{Request: request}
	result.Request.Status = status
	result.Request.ResolverID = &resolverID
	result.Request.ResolutionNote = note
	result.Request.ResolvedAt = &resolvedAt

	switch {
	case request.Kind == RequestKindDelete && approve:
		// The FK detaches the resolved request row (document_id goes NULL)
		// rather than cascading it away; the row stays as the audit record.
		var fileKey string
		if err := tx.QueryRowContext(ctx, `
			DELETE FROM documents WHERE id=$1 RETURNING file_key
		`, request.DocumentID).Scan(&fileKey); err != nil {
			return ResolveResult{}, fmt.Errorf("delete document: %w", err)
		}
		result.DocumentDeleted = true
		result.OrphanedKeys = append(result.OrphanedKeys, fileKey)

	case request.Kind == RequestKindReplace && approve:
		var oldKey string
		if err := tx.QueryRowContext(ctx, `
			SELECT file_key FROM documents WHERE id=$1 FOR UPDATE
		`, request.DocumentID).Scan(&oldKey); err != nil {
			return ResolveResult{}, fmt.Errorf("read replaced file key: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET file_key=$2, file_name=$3, file_size=$4, content_type=$5,
				status=$6, version=version+1, updated_at=NOW()
			WHERE id=$1
		`, request.DocumentID, request.NewFileKey, request.NewFileName, request.NewFileSize,
			request.NewContentType, DocumentActive); err != nil {
			return ResolveResult{}, fmt.Errorf("apply replacement: %w", err)
		}
		result.OrphanedKeys = append(result.OrphanedKeys, oldKey)

	case request.Kind == RequestKindEdit:
		// No document effect. An approved EDIT is a standing grant
		// discovered through HasEditGrant.

	default:
		// Rejected DELETE or REPLACE: unpark the document.
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET status=$2, updated_at=NOW() WHERE id=$1
		`, request.DocumentID, DocumentActive); err != nil {
			return ResolveResult{}, fmt.Errorf("unpark document: %w", err)
		}
		if request.Kind == RequestKindReplace && request.NewFileKey != "" {
			result.OrphanedKeys = append(result.OrphanedKeys, request.NewFileKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return ResolveResult{}, fmt.Errorf("commit resolve request: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (PermissionRequest, error) {
	item, err := scanRequest(s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.id=$1
	`, requestID))
	if err != nil {
		return PermissionRequest{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListPendingRequests(ctx context.Context) ([]PermissionRequest, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.status=$1
		ORDER BY r.created_at ASC
	`, RequestPending)
}

func (s *PostgresStore) ListRequestsForDocument(ctx context.Context, documentID string) ([]PermissionRequest, error) {
	return s.listRequests(ctx, `
		SELECT `+requestColumns+`
		FROM permission_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.document_id=$1
		ORDER BY r.created_at DESC
	`, documentID)
}

func (s *PostgresStore) listRequests(ctx context.Context, query string, args ...any) ([]PermissionRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]PermissionRequest, 0)
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

// HasEditGrant reports whether the user holds an approved EDIT request for
// the document. Grants persist until the document changes hands or is
// removed.
func (s *PostgresStore) HasEditGrant(ctx context.Context, documentID, userID string) (bool, error) {
	var granted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM permission_requests
			WHERE document_id=$1 AND requester_id=$2 AND kind=$3 AND status=$4
		)
	`, documentID, userID, RequestKindEdit, RequestApproved).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("check edit grant: %w", err)
	}
	return granted, nil
}
