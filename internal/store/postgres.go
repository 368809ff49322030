package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrStaleVersion is returned when an optimistic-concurrency update loses
// the race against a newer write.
var ErrStaleVersion = errors.New("stale document version")

// ErrDocumentNotActive is returned when a mutation targets a document that
// is parked behind a pending permission request.
var ErrDocumentNotActive = errors.New("document is not active")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListAdminIDs returns the ids of all admin users, for notification fan-out.
func (s *PostgresStore) ListAdminIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE role=$1`, RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admins: %w", err)
	}
	return ids, nil
}

const documentColumns = `
	d.id, d.title, d.description, d.doc_type, d.status, d.owner_id,
	d.file_key, d.file_name, d.file_size, d.content_type,
	d.version, d.created_at, d.updated_at, u.display_name
`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.DocType,
		&item.Status,
		&item.OwnerID,
		&item.FileKey,
		&item.FileName,
		&item.FileSize,
		&item.ContentType,
		&item.Version,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.OwnerName,
	)
	return item, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN users u ON u.id = d.owner_id
		ORDER BY d.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	item, err := scanDocument(s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents d
		JOIN users u ON u.id = d.owner_id
		WHERE d.id=$1
	`, documentID))
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, description, doc_type, status, owner_id, file_key, file_name, file_size, content_type, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
	`, item.ID, item.Title, item.Description, item.DocType, item.Status, item.OwnerID,
		item.FileKey, item.FileName, item.FileSize, item.ContentType)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateDocumentMeta updates title and description, guarded by the caller's
// expected version. The update only lands on an ACTIVE document.
func (s *PostgresStore) UpdateDocumentMeta(ctx context.Context, documentID, title, description string, expectedVersion int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, description=$3, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$4 AND status=$5
	`, documentID, title, description, expectedVersion, DocumentActive)
	if err != nil {
		return fmt.Errorf("update document meta: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document meta rows: %w", err)
	}
	if affected == 0 {
		// Distinguish the three misses: gone, parked, or stale.
		var status string
		var version int
		err := s.db.QueryRowContext(ctx, `SELECT status, version FROM documents WHERE id=$1`, documentID).Scan(&status, &version)
		if err != nil {
			return err
		}
		if status != DocumentActive {
			return ErrDocumentNotActive
		}
		return ErrStaleVersion
	}
	return nil
}

// ReplaceDocumentFile swaps the current file pointer and bumps the version.
// Used by admin direct replacement; approval-driven replacement goes through
// ResolveRequestTx.
func (s *PostgresStore) ReplaceDocumentFile(ctx context.Context, documentID, fileKey, fileName, contentType string, fileSize int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET file_key=$2, file_name=$3, file_size=$4, content_type=$5, version=version+1, updated_at=NOW()
		WHERE id=$1 AND status=$6
	`, documentID, fileKey, fileName, fileSize, contentType, DocumentActive)
	if err != nil {
		return fmt.Errorf("replace document file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace document file rows: %w", err)
	}
	if affected == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id=$1`, documentID).Scan(&status)
		if err != nil {
			return err
		}
		return ErrDocumentNotActive
	}
	return nil
}

// DeleteDocument removes the row. Direct deletion is refused while the
// document has an open request: the request must be resolved first so the
// requester gets a decision. Approval-driven deletion goes through
// ResolveRequestTx. The document row is locked so a concurrent filer
// cannot slip a request in between the check and the delete.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx, `
		SELECT status FROM documents WHERE id=$1 FOR UPDATE
	`, documentID).Scan(&status); err != nil {
		return err
	}
	var pending bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM permission_requests WHERE document_id=$1 AND status=$2
		)
	`, documentID, RequestPending).Scan(&pending); err != nil {
		return fmt.Errorf("check pending requests: %w", err)
	}
	if pending {
		return ErrDocumentNotActive
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete document: %w", err)
	}
	return nil
}
