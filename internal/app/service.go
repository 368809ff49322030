package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"custodian/api/internal/auth"
	"custodian/api/internal/authpw"
	"custodian/api/internal/config"
	"custodian/api/internal/files"
	"custodian/api/internal/notify"
	"custodian/api/internal/rbac"
	"custodian/api/internal/search"
	"custodian/api/internal/session"
	"custodian/api/internal/store"
	"custodian/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type SignUpInput struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateDocumentInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DocType     string `json:"docType"`
	FileKey     string `json:"fileKey"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

type UpdateDocumentInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     int    `json:"version"`
}

type ReplaceFileInput struct {
	FileKey     string `json:"fileKey"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	ContentType string `json:"contentType"`
}

type CreateRequestInput struct {
	Kind           string `json:"kind"`
	Reason         string `json:"reason"`
	NewFileKey     string `json:"newFileKey"`
	NewFileName    string `json:"newFileName"`
	NewFileSize    int64  `json:"newFileSize"`
	NewContentType string `json:"newContentType"`
}

type ResolveRequestInput struct {
	Decision string `json:"decision"`
	Note     string `json:"note"`
}

var allowedRequestKinds = map[string]struct{}{
	store.RequestKindDelete:  {},
	store.RequestKindReplace: {},
	store.RequestKindEdit:    {},
}

type dataStore interface {
	Ping(context.Context) error
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListDocuments(context.Context) ([]store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	InsertDocument(context.Context, store.Document) error
	UpdateDocumentMeta(ctx context.Context, documentID, title, description string, expectedVersion int) error
	ReplaceDocumentFile(ctx context.Context, documentID, fileKey, fileName, contentType string, fileSize int64) error
	DeleteDocument(context.Context, string) error
	CreateRequestTx(context.Context, store.PermissionRequest) (store.PermissionRequest, error)
	ResolveRequestTx(ctx context.Context, requestID, resolverID string, approve bool, note string) (store.ResolveResult, error)
	GetRequest(context.Context, string) (store.PermissionRequest, error)
	ListPendingRequests(context.Context) ([]store.PermissionRequest, error)
	ListRequestsForDocument(context.Context, string) ([]store.PermissionRequest, error)
	HasEditGrant(ctx context.Context, documentID, userID string) (bool, error)
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]store.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type fileStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignedPutURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	IndexRequest(r search.RequestRecord)
	DeleteDocument(id string)
}

type notifier interface {
	OnRequestCreated(ctx context.Context, request store.PermissionRequest)
	OnRequestResolved(ctx context.Context, request store.PermissionRequest)
}

const (
	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = 5 * time.Minute
)

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	objects   fileStore
	search    searchIndex
	notify    notifier
	passwords *authpw.Service
}

func New(cfg config.Config, pg *store.PostgresStore, sessions *session.RedisStore, objects *files.Store, searchSvc *search.Service, dispatcher *notify.Dispatcher) *Service {
	return &Service{
		cfg:       cfg,
		store:     pg,
		sessions:  sessions,
		objects:   objects,
		search:    searchSvc,
		notify:    dispatcher,
		passwords: authpw.NewService(pg),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. The user snapshot lives in the session record, so
// refreshes never touch Postgres.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token using only its claims. Role
// changes take effect on the next refresh, which rebuilds the token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		Email:     claims.Email,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) Profile(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
		"createdAt":   user.CreatedAt,
	}, nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, documentView(doc))
	}
	return items, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	requests, err := s.store.ListRequestsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	item := documentView(doc)
	views := make([]map[string]any, 0, len(requests))
	for _, r := range requests {
		views = append(views, requestView(r))
	}
	item["requests"] = views
	return item, nil
}

func (s *Service) CreateDocument(ctx context.Context, sess Session, input CreateDocumentInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.FileKey == "" || input.FileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileKey and fileName are required", nil)
	}
	ok, err := s.objects.Exists(ctx, input.FileKey)
	if err != nil {
		return nil, fmt.Errorf("check uploaded file: %w", err)
	}
	if !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "FILE_NOT_UPLOADED", "no uploaded file found for fileKey", nil)
	}

	docType := strings.TrimSpace(input.DocType)
	if docType == "" {
		docType = "general"
	}
	doc := store.Document{
		ID:          util.NewID("doc"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		DocType:     docType,
		Status:      store.DocumentActive,
		OwnerID:     sess.UserID,
		FileKey:     input.FileKey,
		FileName:    input.FileName,
		FileSize:    input.FileSize,
		ContentType: input.ContentType,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	created, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	s.search.IndexDocument(documentRecord(created))
	return documentView(created), nil
}

// UpdateDocument changes title and description. Owners, admins, and members
// holding an approved EDIT grant may write; everyone else must file a
// request. Writes carry the version the caller last saw.
func (s *Service) UpdateDocument(ctx context.Context, sess Session, documentID string, input UpdateDocumentInput) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	allowed := s.Can(sess.Role, rbac.ActionAdmin) || doc.OwnerID == sess.UserID
	if !allowed {
		granted, err := s.store.HasEditGrant(ctx, documentID, sess.UserID)
		if err != nil {
			return nil, err
		}
		allowed = granted
	}
	if !allowed {
		return nil, domainError(http.StatusForbidden, "APPROVAL_REQUIRED", "file an EDIT request to modify this document", nil)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	err = s.store.UpdateDocumentMeta(ctx, documentID, title, strings.TrimSpace(input.Description), input.Version)
	switch {
	case errors.Is(err, store.ErrStaleVersion):
		return nil, domainError(http.StatusConflict, "VERSION_CONFLICT", "document was modified by someone else, reload and retry", nil)
	case errors.Is(err, store.ErrDocumentNotActive):
		return nil, domainError(http.StatusConflict, "DOCUMENT_LOCKED", "document has a pending request and cannot be modified", nil)
	case err != nil:
		return nil, err
	}

	updated, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.search.IndexDocument(documentRecord(updated))
	return documentView(updated), nil
}

// DeleteDocument is the admin short path. Members go through a DELETE
// request instead.
func (s *Service) DeleteDocument(ctx context.Context, sess Session, documentID string) error {
	if !s.Can(sess.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "APPROVAL_REQUIRED", "file a DELETE request to remove this document", nil)
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	err = s.store.DeleteDocument(ctx, documentID)
	switch {
	case errors.Is(err, store.ErrDocumentNotActive):
		return domainError(http.StatusConflict, "DOCUMENT_LOCKED", "document has a pending request, resolve it before deleting", nil)
	case err != nil:
		return err
	}
	s.search.DeleteDocument(documentID)
	s.removeObjects(doc.FileKey)
	return nil
}

// ReplaceDocumentFile is the admin short path for swapping the stored file.
func (s *Service) ReplaceDocumentFile(ctx context.Context, sess Session, documentID string, input ReplaceFileInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionAdmin) {
		return nil, domainError(http.StatusForbidden, "APPROVAL_REQUIRED", "file a REPLACE request to swap this document's file", nil)
	}
	if input.FileKey == "" || input.FileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileKey and fileName are required", nil)
	}
	ok, err := s.objects.Exists(ctx, input.FileKey)
	if err != nil {
		return nil, fmt.Errorf("check uploaded file: %w", err)
	}
	if !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "FILE_NOT_UPLOADED", "no uploaded file found for fileKey", nil)
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	err = s.store.ReplaceDocumentFile(ctx, documentID, input.FileKey, input.FileName, input.ContentType, input.FileSize)
	switch {
	case errors.Is(err, store.ErrDocumentNotActive):
		return nil, domainError(http.StatusConflict, "DOCUMENT_LOCKED", "document has a pending request and cannot be modified", nil)
	case err != nil:
		return nil, err
	}
	s.removeObjects(doc.FileKey)

	updated, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.search.IndexDocument(documentRecord(updated))
	return documentView(updated), nil
}

// OpenDocumentFile streams the current file from object storage.
func (s *Service) OpenDocumentFile(ctx context.Context, documentID string) (store.Document, io.ReadCloser, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, nil, err
	}
	reader, err := s.objects.Download(ctx, doc.FileKey)
	if err != nil {
		return store.Document{}, nil, fmt.Errorf("open document file: %w", err)
	}
	return doc, reader, nil
}

func (s *Service) DownloadURL(ctx context.Context, documentID string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	url, err := s.objects.PresignedGetURL(ctx, doc.FileKey, downloadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}
	return map[string]any{
		"url":       url,
		"fileName":  doc.FileName,
		"expiresIn": int(downloadURLTTL.Seconds()),
	}, nil
}

// UploadURL hands out a presigned PUT target. The client uploads directly
// to object storage, then references the key when creating a document or a
// REPLACE request.
func (s *Service) UploadURL(ctx context.Context, fileName string) (map[string]any, error) {
	name := path.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == "/" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileName is required", nil)
	}
	key := "uploads/" + util.NewID("obj") + "/" + name
	url, err := s.objects.PresignedPutURL(ctx, key, uploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return map[string]any{
		"key":       key,
		"url":       url,
		"expiresIn": int(uploadURLTTL.Seconds()),
	}, nil
}

// UploadFile routes bytes through the API for clients that cannot reach
// object storage directly. Presigned PUT is the preferred path.
func (s *Service) UploadFile(ctx context.Context, fileName, contentType string, size int64, reader io.Reader) (map[string]any, error) {
	name := path.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == "/" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileName is required", nil)
	}
	key := "uploads/" + util.NewID("obj") + "/" + name
	if err := s.objects.Upload(ctx, key, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	return map[string]any{
		"key":      key,
		"fileName": name,
		"fileSize": size,
	}, nil
}

// CreateRequest files a permission request against a document. Admins act
// on documents directly and are rejected here; a document carries at most
// one pending request at a time.
func (s *Service) CreateRequest(ctx context.Context, sess Session, documentID string, input CreateRequestInput) (map[string]any, error) {
	if s.Can(sess.Role, rbac.ActionApprove) {
		return nil, domainError(http.StatusForbidden, "ADMIN_DIRECT_ACTION", "admins modify documents directly instead of filing requests", nil)
	}
	kind := strings.ToUpper(strings.TrimSpace(input.Kind))
	if _, ok := allowedRequestKinds[kind]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be DELETE, REPLACE, or EDIT", nil)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "reason is required", nil)
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if kind == store.RequestKindEdit {
		if doc.OwnerID == sess.UserID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "document owners already have edit access", nil)
		}
	} else if doc.OwnerID != sess.UserID {
		// DELETE and REPLACE are owner petitions; EDIT is how non-owners
		// ask for access.
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only the document owner can request this change", nil)
	}

	request := store.PermissionRequest{
		ID:          util.NewID("req"),
		DocumentID:  documentID,
		RequesterID: sess.UserID,
		Kind:        kind,
		Reason:      reason,
	}
	if kind == store.RequestKindReplace {
		if input.NewFileKey == "" || input.NewFileName == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "REPLACE requests need newFileKey and newFileName", nil)
		}
		ok, err := s.objects.Exists(ctx, input.NewFileKey)
		if err != nil {
			return nil, fmt.Errorf("check staged file: %w", err)
		}
		if !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "FILE_NOT_UPLOADED", "no uploaded file found for newFileKey", nil)
		}
		request.NewFileKey = input.NewFileKey
		request.NewFileName = input.NewFileName
		request.NewFileSize = input.NewFileSize
		request.NewContentType = input.NewContentType
	}

	created, err := s.store.CreateRequestTx(ctx, request)
	switch {
	case errors.Is(err, store.ErrRequestAlreadyPending):
		return nil, domainError(http.StatusConflict, "REQUEST_PENDING", "document already has a pending request", nil)
	case err != nil:
		return nil, err
	}

	s.search.IndexRequest(requestRecord(created))
	go s.notify.OnRequestCreated(context.WithoutCancel(ctx), created)
	return requestView(created), nil
}

func (s *Service) ListDocumentRequests(ctx context.Context, documentID string) ([]map[string]any, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	requests, err := s.store.ListRequestsForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(requests))
	for _, r := range requests {
		items = append(items, requestView(r))
	}
	return items, nil
}

func (s *Service) PendingRequests(ctx context.Context, sess Session) ([]map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionApprove) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only admins review requests", nil)
	}
	requests, err := s.store.ListPendingRequests(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(requests))
	for _, r := range requests {
		items = append(items, requestView(r))
	}
	return items, nil
}

// ResolveRequest approves or rejects a pending request. The decision lands
// exactly once; a second resolver gets a conflict. Object-storage cleanup
// and notifications happen after the transaction commits.
func (s *Service) ResolveRequest(ctx context.Context, sess Session, requestID string, input ResolveRequestInput) (map[string]any, error) {
	if !s.Can(sess.Role, rbac.ActionApprove) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "only admins review requests", nil)
	}
	decision := strings.ToUpper(strings.TrimSpace(input.Decision))
	if decision != store.RequestApproved && decision != store.RequestRejected {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be APPROVED or REJECTED", nil)
	}
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID == sess.UserID {
		return nil, domainError(http.StatusForbidden, "SELF_RESOLVE", "cannot review your own request", nil)
	}

	result, err := s.store.ResolveRequestTx(ctx, requestID, sess.UserID, decision == store.RequestApproved, strings.TrimSpace(input.Note))
	switch {
	case errors.Is(err, store.ErrRequestAlreadyResolved):
		return nil, domainError(http.StatusConflict, "ALREADY_RESOLVED", "request was already resolved", nil)
	case err != nil:
		return nil, err
	}

	s.removeObjects(result.OrphanedKeys...)
	if result.DocumentDeleted {
		s.search.DeleteDocument(result.Request.DocumentID)
	} else if doc, err := s.store.GetDocument(ctx, result.Request.DocumentID); err == nil {
		s.search.IndexDocument(documentRecord(doc))
	}
	s.search.IndexRequest(requestRecord(result.Request))
	go s.notify.OnRequestResolved(context.WithoutCancel(ctx), result.Request)

	item := requestView(result.Request)
	item["documentDeleted"] = result.DocumentDeleted
	return item, nil
}

func (s *Service) Notifications(ctx context.Context, sess Session, limit, offset int) ([]map[string]any, error) {
	items, err := s.store.ListNotifications(ctx, sess.UserID, limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, 0, len(items))
	for _, n := range items {
		views = append(views, notificationView(n))
	}
	return views, nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, sess Session) (int, error) {
	return s.store.CountUnreadNotifications(ctx, sess.UserID)
}

func (s *Service) MarkNotificationRead(ctx context.Context, sess Session, notificationID string) error {
	return s.store.MarkNotificationRead(ctx, notificationID, sess.UserID)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(q)
}

// removeObjects deletes unreferenced storage keys in the background.
// Failures leave harmless orphans and are logged by the file store caller.
func (s *Service) removeObjects(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		go func(k string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.objects.Delete(ctx, k)
		}(key)
	}
}

func documentView(doc store.Document) map[string]any {
	return map[string]any{
		"id":          doc.ID,
		"title":       doc.Title,
		"description": doc.Description,
		"docType":     doc.DocType,
		"status":      doc.Status,
		"owner": map[string]any{
			"id":   doc.OwnerID,
			"name": doc.OwnerName,
		},
		"fileName":    doc.FileName,
		"fileSize":    doc.FileSize,
		"contentType": doc.ContentType,
		"version":     doc.Version,
		"createdAt":   doc.CreatedAt,
		"updatedAt":   doc.UpdatedAt,
	}
}

func requestView(r store.PermissionRequest) map[string]any {
	item := map[string]any{
		"id":            r.ID,
		"documentId":    r.DocumentID,
		"documentTitle": r.DocumentTitle,
		"requester": map[string]any{
			"id":   r.RequesterID,
			"name": r.RequesterName,
		},
		"kind":      r.Kind,
		"status":    r.Status,
		"reason":    r.Reason,
		"createdAt": r.CreatedAt,
	}
	if r.Kind == store.RequestKindReplace && r.NewFileName != "" {
		item["newFileName"] = r.NewFileName
		item["newFileSize"] = r.NewFileSize
	}
	if r.ResolverID != nil {
		item["resolution"] = map[string]any{
			"resolverId": *r.ResolverID,
			"note":       r.ResolutionNote,
			"resolvedAt": r.ResolvedAt,
		}
	}
	return item
}

func notificationView(n store.Notification) map[string]any {
	item := map[string]any{
		"id":        n.ID,
		"title":     n.Title,
		"message":   n.Message,
		"category":  n.Category,
		"read":      n.ReadAt != nil,
		"createdAt": n.CreatedAt,
	}
	if n.DocumentID != nil {
		item["documentId"] = *n.DocumentID
	}
	if n.RequestID != nil {
		item["requestId"] = *n.RequestID
	}
	return item
}

func documentRecord(doc store.Document) search.DocumentRecord {
	return search.DocumentRecord{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		FileName:    doc.FileName,
		Status:      doc.Status,
	}
}

func requestRecord(r store.PermissionRequest) search.RequestRecord {
	return search.RequestRecord{
		ID:         r.ID,
		Reason:     r.Reason,
		Kind:       r.Kind,
		Status:     r.Status,
		DocumentID: r.DocumentID,
	}
}
