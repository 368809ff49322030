package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custodian/api/internal/push"
	"custodian/api/internal/store"
)

func newTestServer(t *testing.T, fs *fakeStore) (*HTTPServer, *testEnv) {
	t.Helper()
	env := newTestService(fs)
	hub := push.NewHub()
	t.Cleanup(hub.Close)
	return NewHTTPServer(env.svc, hub, "*"), env
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func memberToken(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	sess, err := env.svc.issueSession(context.Background(), store.User{
		ID: userID, DisplayName: "Member", Email: userID + "@example.com", Role: store.RoleMember,
	})
	if err != nil {
		t.Fatalf("issue member session: %v", err)
	}
	return sess.Token
}

func adminToken(t *testing.T, env *testEnv, userID string) string {
	t.Helper()
	sess, err := env.svc.issueSession(context.Background(), store.User{
		ID: userID, DisplayName: "Admin", Email: userID + "@example.com", Role: store.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("issue admin session: %v", err)
	}
	return sess.Token
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	}
	server, _ := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := parseBody(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
}

func TestSignUpReturnsSessionContract(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodPost, "/api/auth/signup", "", `{"displayName":"Avery","email":"avery@example.com","password":"correct-horse"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["accessToken"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("expected token pair, got %v", payload)
	}
	if payload["role"] != store.RoleMember {
		t.Fatalf("expected member role, got %v", payload["role"])
	}
}

func TestSignUpConflictOnExistingEmail(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: "usr_1", Email: "avery@example.com"}, nil
		},
	}
	server, _ := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodPost, "/api/auth/signup", "", `{"displayName":"Avery","email":"avery@example.com","password":"correct-horse"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "EMAIL_EXISTS" {
		t.Fatalf("expected EMAIL_EXISTS, got %s", rr.Body.String())
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodPost, "/api/auth/signin", "", `{"email":"nobody@example.com","password":"wrong"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected INVALID_CREDENTIALS, got %s", rr.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	for _, route := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/documents"},
		{http.MethodGet, "/api/requests/pending"},
		{http.MethodGet, "/api/notifications"},
		{http.MethodPost, "/api/files/upload-url"},
	} {
		rr := doJSON(t, server, route.method, route.path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, rr.Code)
		}
	}
}

func TestListDocumentsContract(t *testing.T) {
	fs := &fakeStore{
		listDocumentsFn: func(context.Context) ([]store.Document, error) {
			return []store.Document{
				{ID: "doc_1", Title: "Q3 Plan", Status: store.DocumentActive, OwnerID: "usr_1", OwnerName: "Avery", Version: 2},
			}, nil
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodGet, "/api/documents", memberToken(t, env, "usr_1"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	documents, _ := payload["documents"].([]any)
	if len(documents) != 1 {
		t.Fatalf("expected 1 document, got %v", payload)
	}
	first, _ := documents[0].(map[string]any)
	if first["id"] != "doc_1" || first["status"] != store.DocumentActive {
		t.Fatalf("unexpected document view %v", first)
	}
	owner, _ := first["owner"].(map[string]any)
	if owner["name"] != "Avery" {
		t.Fatalf("expected joined owner name, got %v", first)
	}
}

func TestGetDocumentMapsNotFound(t *testing.T) {
	server, env := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodGet, "/api/documents/doc_missing", memberToken(t, env, "usr_1"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", rr.Body.String())
	}
}

func TestMemberDeleteIsRedirectedToRequest(t *testing.T) {
	fs := &fakeStore{
		getDocumentFn: func(context.Context, string) (store.Document, error) {
			return store.Document{ID: "doc_1", Status: store.DocumentActive}, nil
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodDelete, "/api/documents/doc_1", memberToken(t, env, "usr_1"), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "APPROVAL_REQUIRED" {
		t.Fatalf("expected APPROVAL_REQUIRED, got %s", rr.Body.String())
	}
}

func TestCreateRequestEndpoint(t *testing.T) {
	fs := &fakeStore{
		getDocumentFn: func(context.Context, string) (store.Document, error) {
			return store.Document{ID: "doc_1", OwnerID: "usr_owner", Status: store.DocumentActive}, nil
		},
		createRequestTxFn: func(_ context.Context, request store.PermissionRequest) (store.PermissionRequest, error) {
			request.Status = store.RequestPending
			request.RequesterName = "Member"
			request.DocumentTitle = "Q3 Plan"
			return request, nil
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodPost, "/api/documents/doc_1/requests", memberToken(t, env, "usr_owner"),
		`{"kind":"DELETE","reason":"superseded by the Q4 plan"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["status"] != store.RequestPending || payload["documentTitle"] != "Q3 Plan" {
		t.Fatalf("unexpected request view %v", payload)
	}
}

func TestPendingRequestsIsAdminOnly(t *testing.T) {
	fs := &fakeStore{
		listPendingRequestsFn: func(context.Context) ([]store.PermissionRequest, error) {
			return []store.PermissionRequest{{ID: "req_1", Status: store.RequestPending}}, nil
		},
	}
	server, env := newTestServer(t, fs)

	rr := doJSON(t, server, http.MethodGet, "/api/requests/pending", memberToken(t, env, "usr_m"), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/requests/pending", adminToken(t, env, "usr_a"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body=%s", rr.Code, rr.Body.String())
	}
	requests, _ := parseBody(t, rr)["requests"].([]any)
	if len(requests) != 1 {
		t.Fatalf("expected 1 pending request, got %s", rr.Body.String())
	}
}

func TestResolveEndpointMapsConflict(t *testing.T) {
	fs := &fakeStore{
		getRequestFn: func(context.Context, string) (store.PermissionRequest, error) {
			return store.PermissionRequest{ID: "req_1", RequesterID: "usr_someone"}, nil
		},
		resolveRequestTxFn: func(context.Context, string, string, bool, string) (store.ResolveResult, error) {
			return store.ResolveResult{}, store.ErrRequestAlreadyResolved
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodPost, "/api/requests/req_1/resolve", adminToken(t, env, "usr_a"),
		`{"decision":"APPROVED","note":"done"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if parseBody(t, rr)["code"] != "ALREADY_RESOLVED" {
		t.Fatalf("expected ALREADY_RESOLVED, got %s", rr.Body.String())
	}
}

func TestNotificationEndpoints(t *testing.T) {
	now := time.Now()
	readID := ""
	fs := &fakeStore{
		listNotificationsFn: func(_ context.Context, userID string, _, _ int) ([]store.Notification, error) {
			if userID != "usr_1" {
				t.Fatalf("expected notifications for session user, got %q", userID)
			}
			return []store.Notification{
				{ID: "ntf_1", UserID: userID, Title: "Request approved", Category: "approval-decision", CreatedAt: now},
			}, nil
		},
		countUnreadFn: func(context.Context, string) (int, error) { return 3, nil },
		markNotificationReadFn: func(_ context.Context, notificationID, userID string) error {
			if userID != "usr_1" {
				return sql.ErrNoRows
			}
			readID = notificationID
			return nil
		},
	}
	server, env := newTestServer(t, fs)
	token := memberToken(t, env, "usr_1")

	rr := doJSON(t, server, http.MethodGet, "/api/notifications", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	items, _ := parseBody(t, rr)["notifications"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %s", rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/notifications/unread-count", token, "")
	if rr.Code != http.StatusOK || parseBody(t, rr)["count"] != float64(3) {
		t.Fatalf("expected count 3, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/api/notifications/ntf_1/read", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if readID != "ntf_1" {
		t.Fatalf("expected mark read to reach store, got %q", readID)
	}
}

func TestNotificationListPassesPaging(t *testing.T) {
	var gotLimit, gotOffset int
	fs := &fakeStore{
		listNotificationsFn: func(_ context.Context, _ string, limit, offset int) ([]store.Notification, error) {
			gotLimit, gotOffset = limit, offset
			return []store.Notification{}, nil
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodGet, "/api/notifications?limit=25&offset=50", memberToken(t, env, "usr_1"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotLimit != 25 || gotOffset != 50 {
		t.Fatalf("paging = (%d, %d), want (25, 50)", gotLimit, gotOffset)
	}
}

func TestMarkReadRejectsOtherUsersNotification(t *testing.T) {
	fs := &fakeStore{
		markNotificationReadFn: func(context.Context, string, string) error {
			return store.ErrNotificationNotOwned
		},
	}
	server, env := newTestServer(t, fs)
	rr := doJSON(t, server, http.MethodPost, "/api/notifications/ntf_9/read", memberToken(t, env, "usr_1"), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUploadURLEndpoint(t *testing.T) {
	server, env := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodPost, "/api/files/upload-url", memberToken(t, env, "usr_1"),
		`{"fileName":"report.pdf"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	key, _ := payload["key"].(string)
	url, _ := payload["url"].(string)
	if key == "" || url == "" {
		t.Fatalf("expected key and url, got %v", payload)
	}
}

func TestDirectUploadStoresObject(t *testing.T) {
	server, env := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload?fileName=report.pdf", bytes.NewBufferString("%PDF-1.7 stub"))
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Authorization", "Bearer "+memberToken(t, env, "usr_1"))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	key, _ := parseBody(t, rr)["key"].(string)
	if key == "" {
		t.Fatalf("expected key in response")
	}
	ok, err := env.objects.Exists(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected object stored under %q", key)
	}
}

func TestSessionEndpointReportsAnonymous(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := doJSON(t, server, http.MethodGet, "/api/session", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if parseBody(t, rr)["authenticated"] != false {
		t.Fatalf("expected authenticated false, got %s", rr.Body.String())
	}
}

func TestRefreshEndpointRotatesPair(t *testing.T) {
	server, env := newTestServer(t, &fakeStore{})
	sess, err := env.svc.issueSession(context.Background(), store.User{ID: "usr_1", Role: store.RoleMember})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	rr := doJSON(t, server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+sess.RefreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["refreshToken"] == sess.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}

	rr = doJSON(t, server, http.MethodPost, "/api/session/refresh", "", `{"refreshToken":"`+sess.RefreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reused refresh token, got %d", rr.Code)
	}
}
