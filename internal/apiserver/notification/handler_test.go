// Package notification 通知 HTTP 处理器测试
//
// 复用 service_test 的 mock 存储验证：
//   - POST /api/notifications/send 的 type 字段透传到落库记录
//   - type 缺省时回退 general，未知取值拒绝
//   - 非审批角色 403
package notification

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leave-admin/internal/apiserver/auth"
	"leave-admin/internal/shared/model"
)

func newTestMux() (*http.ServeMux, *mockStore) {
	svc, store, _ := newTestService()
	h := NewHandler(svc, store)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, store
}

func doSend(t *testing.T, mux *http.ServeMux, body string, as *auth.AuthUser) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/send", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req = req.WithContext(auth.WithAuthUser(req.Context(), as))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSendWithExplicitType(t *testing.T) {
	mux, store := newTestMux()
	admin := &auth.AuthUser{ID: "usr-admin", Role: model.UserRoleAdmin}

	rec := doSend(t, mux,
		`{"type":"vacation_deadline","title":"Deadline","message":"expiring soon","user_ids":["usr-alice"]}`,
		admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, "usr-alice", n.UserID)
	assert.Equal(t, model.NotificationVacationDeadline, n.Type)
	assert.Equal(t, "Deadline", n.Title)
}

func TestSendDefaultsToGeneral(t *testing.T) {
	mux, store := newTestMux()
	admin := &auth.AuthUser{ID: "usr-admin", Role: model.UserRoleAdmin}

	rec := doSend(t, mux, `{"title":"Hello","message":"no type set","user_ids":["usr-bob"]}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, store.notifications, 1)
	assert.Equal(t, model.NotificationGeneral, store.notifications[0].Type)
}

func TestSendRejectsUnknownType(t *testing.T) {
	mux, store := newTestMux()
	admin := &auth.AuthUser{ID: "usr-admin", Role: model.UserRoleAdmin}

	rec := doSend(t, mux, `{"type":"carrier_pigeon","title":"T","message":"M","user_ids":["usr-alice"]}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.notifications)
}

func TestSendReviewerOnly(t *testing.T) {
	mux, store := newTestMux()
	user := &auth.AuthUser{ID: "usr-alice", Role: model.UserRoleUser}

	rec := doSend(t, mux, `{"title":"T","message":"M"}`, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, store.notifications)
}
