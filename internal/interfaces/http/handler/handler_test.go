package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenant-provisioner/internal/application/lifecycle"
	"tenant-provisioner/internal/application/namespace"
	"tenant-provisioner/internal/domain/entity"
	"tenant-provisioner/internal/domain/repository"
	"tenant-provisioner/internal/interfaces/http/middleware"
	apperrors "tenant-provisioner/pkg/errors"
	"tenant-provisioner/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockTenants struct{ mock.Mock }

func (m *mockTenants) Create(ctx context.Context, in lifecycle.CreateInput) (*entity.Tenant, error) {
	args := m.Called(ctx, in)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

func (m *mockTenants) Authorize(ctx context.Context, actor lifecycle.Actor, id string) (*entity.Tenant, error) {
	args := m.Called(ctx, actor, id)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

func (m *mockTenants) GetStatus(ctx context.Context, actor lifecycle.Actor, id string) (*lifecycle.StatusView, error) {
	args := m.Called(ctx, actor, id)
	v, _ := args.Get(0).(*lifecycle.StatusView)
	return v, args.Error(1)
}

func (m *mockTenants) GetCredentials(ctx context.Context, actor lifecycle.Actor, id string) (*lifecycle.Credentials, error) {
	args := m.Called(ctx, actor, id)
	v, _ := args.Get(0).(*lifecycle.Credentials)
	return v, args.Error(1)
}

func (m *mockTenants) List(ctx context.Context, customerID string, p repository.Pagination) (*repository.PagedResult[*entity.Tenant], error) {
	args := m.Called(ctx, customerID, p)
	r, _ := args.Get(0).(*repository.PagedResult[*entity.Tenant])
	return r, args.Error(1)
}

func (m *mockTenants) Retry(ctx context.Context, id string) (*entity.Tenant, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

func (m *mockTenants) Suspend(ctx context.Context, id, reason string) (*entity.Tenant, error) {
	args := m.Called(ctx, id, reason)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

func (m *mockTenants) Reactivate(ctx context.Context, id string) (*entity.Tenant, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

func (m *mockTenants) Delete(ctx context.Context, id string, teardown bool) error {
	return m.Called(ctx, id, teardown).Error(0)
}

func (m *mockTenants) RenameSite(ctx context.Context, id, newSiteName string) (*entity.Tenant, error) {
	args := m.Called(ctx, id, newSiteName)
	t, _ := args.Get(0).(*entity.Tenant)
	return t, args.Error(1)
}

type mockModules struct{ mock.Mock }

func (m *mockModules) RequestInstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	args := m.Called(ctx, tenantID, app)
	p, _ := args.Get(0).(*entity.ModuleJobProgress)
	return p, args.Error(1)
}

func (m *mockModules) RequestUninstall(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	args := m.Called(ctx, tenantID, app)
	p, _ := args.Get(0).(*entity.ModuleJobProgress)
	return p, args.Error(1)
}

func (m *mockModules) RequestUpdate(ctx context.Context, tenantID, app string) (*entity.ModuleJobProgress, error) {
	args := m.Called(ctx, tenantID, app)
	p, _ := args.Get(0).(*entity.ModuleJobProgress)
	return p, args.Error(1)
}

func (m *mockModules) InstalledApps(ctx context.Context, tenant *entity.Tenant) ([]entity.InstalledApp, error) {
	args := m.Called(ctx, tenant)
	a, _ := args.Get(0).([]entity.InstalledApp)
	return a, args.Error(1)
}

func (m *mockModules) JobStatus(ctx context.Context, jobID string) (*entity.ModuleJobProgress, error) {
	args := m.Called(ctx, jobID)
	p, _ := args.Get(0).(*entity.ModuleJobProgress)
	return p, args.Error(1)
}

type mockBackups struct{ mock.Mock }

func (m *mockBackups) RequestBackup(ctx context.Context, tenantID string) (string, error) {
	args := m.Called(ctx, tenantID)
	return args.String(0), args.Error(1)
}

func (m *mockBackups) RequestRestore(ctx context.Context, tenantID, backupID string) (string, error) {
	args := m.Called(ctx, tenantID, backupID)
	return args.String(0), args.Error(1)
}

func (m *mockBackups) List(ctx context.Context, tenantID string, p repository.Pagination) (*repository.PagedResult[*entity.Backup], error) {
	args := m.Called(ctx, tenantID, p)
	r, _ := args.Get(0).(*repository.PagedResult[*entity.Backup])
	return r, args.Error(1)
}

type stubSubs struct{ sub *entity.Subscription }

func (s stubSubs) GetByID(_ context.Context, _ string) (*entity.Subscription, error) {
	return s.sub, nil
}

type stubEnforcer struct{ suspended []string }

func (s stubEnforcer) Reconcile(_ context.Context, _ *entity.Subscription) ([]string, []string, error) {
	return s.suspended, nil, nil
}

// as 模拟认证中间件写入的调用者
func as(customerID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.CtxCustomerID, customerID)
		c.Set(middleware.CtxEmail, customerID+"@example.com")
		c.Set(middleware.CtxRole, role)
		c.Next()
	}
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   struct {
		ErrorCode   string   `json:"error_code"`
		Reason      string   `json:"reason"`
		Suggestions []string `json:"suggestions"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func activeTenant() *entity.Tenant {
	t := entity.NewTenant("cust-1", "Acme Trading", "acme", "example.com")
	t.ID = "t-1"
	t.Status = entity.TenantStatusActive
	return t
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"allocation", &namespace.AllocationError{Subdomain: "acme", Reason: "taken", Message: "subdomain is taken", Suggestions: []string{"acme1"}}, http.StatusUnprocessableEntity, string(apperrors.CodeSubdomainUnavailable)},
		{"validation", &namespace.ValidationError{Message: "too short"}, http.StatusBadRequest, string(apperrors.CodeInvalidParam)},
		{"not found", apperrors.ErrTenantNotFound, http.StatusNotFound, string(apperrors.CodeTenantNotFound)},
		{"quota", apperrors.ErrQuotaExceeded.WithReason("QUOTA_EXCEEDED"), http.StatusUnprocessableEntity, string(apperrors.CodeQuotaExceeded)},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, string(apperrors.CodeUnknown)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { respondError(c, tc.err) })
			w := serve(r, http.MethodGet, "/", "")

			assert.Equal(t, tc.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.code, body.Error.ErrorCode)
			if tc.name == "allocation" {
				assert.Equal(t, "taken", body.Error.Reason)
				assert.Equal(t, []string{"acme1"}, body.Error.Suggestions)
			}
		})
	}
}

func TestTenantHandler_Create(t *testing.T) {
	tenants := new(mockTenants)
	h := NewTenantHandler(tenants)
	r := gin.New()
	r.POST("/v1/tenants", as("cust-1", utils.RoleCustomer), h.Create)

	created := activeTenant()
	created.Status = entity.TenantStatusQueued
	tenants.On("Create", mock.Anything, mock.MatchedBy(func(in lifecycle.CreateInput) bool {
		return in.CustomerID == "cust-1" && in.CustomerEmail == "cust-1@example.com" && in.Subdomain == "acme"
	})).Return(created, nil)

	w := serve(r, http.MethodPost, "/v1/tenants", `{"company_name":"Acme Trading","subdomain":"acme"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data struct {
			TenantID string `json:"tenant_id"`
			Status   string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "t-1", body.Data.TenantID)
	assert.Equal(t, "Queued", body.Data.Status)
	tenants.AssertExpectations(t)
}

func TestTenantHandler_Create_InvalidBody(t *testing.T) {
	tenants := new(mockTenants)
	r := gin.New()
	r.POST("/v1/tenants", as("cust-1", utils.RoleCustomer), NewTenantHandler(tenants).Create)

	w := serve(r, http.MethodPost, "/v1/tenants", `{"company_name":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	tenants.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestTenantHandler_Retry_Forbidden(t *testing.T) {
	tenants := new(mockTenants)
	r := gin.New()
	r.POST("/v1/tenants/:id/retry", as("cust-2", utils.RoleCustomer), NewTenantHandler(tenants).Retry)

	tenants.On("Authorize", mock.Anything, mock.Anything, "t-1").Return(nil, apperrors.ErrForbidden)

	w := serve(r, http.MethodPost, "/v1/tenants/t-1/retry", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	tenants.AssertNotCalled(t, "Retry", mock.Anything, mock.Anything)
}

func TestTenantHandler_Delete(t *testing.T) {
	tenants := new(mockTenants)
	r := gin.New()
	r.DELETE("/v1/tenants/:id", as("cust-1", utils.RoleCustomer), NewTenantHandler(tenants).Delete)

	tenants.On("Authorize", mock.Anything, lifecycle.Actor{CustomerID: "cust-1", Email: "cust-1@example.com"}, "t-1").
		Return(activeTenant(), nil)
	tenants.On("Delete", mock.Anything, "t-1", true).Return(nil)

	w := serve(r, http.MethodDelete, "/v1/tenants/t-1?drop_site=true", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	tenants.AssertExpectations(t)
}

func TestTenantHandler_List_AdminFilter(t *testing.T) {
	tenants := new(mockTenants)
	r := gin.New()
	r.GET("/v1/tenants", as("ops", utils.RoleAdmin), NewTenantHandler(tenants).List)

	result := &repository.PagedResult[*entity.Tenant]{Items: []*entity.Tenant{activeTenant()}, Total: 1, Page: 1, PageSize: 20, TotalPages: 1}
	tenants.On("List", mock.Anything, "cust-9", mock.Anything).Return(result, nil)

	w := serve(r, http.MethodGet, "/v1/tenants?customer_id=cust-9", "")
	assert.Equal(t, http.StatusOK, w.Code)
	tenants.AssertExpectations(t)
}

func TestModuleHandler_Install(t *testing.T) {
	tenants := new(mockTenants)
	modules := new(mockModules)
	r := gin.New()
	r.POST("/v1/tenants/:id/apps/:app", as("cust-1", utils.RoleCustomer), NewModuleHandler(tenants, modules).Install)

	tenants.On("Authorize", mock.Anything, mock.Anything, "t-1").Return(activeTenant(), nil)
	modules.On("RequestInstall", mock.Anything, "t-1", "hrms").Return(&entity.ModuleJobProgress{
		JobID: "install_app:t-1:hrms", TenantID: "t-1", App: "hrms", Op: "install_app", Status: entity.ModuleJobQueued,
	}, nil)

	w := serve(r, http.MethodPost, "/v1/tenants/t-1/apps/hrms", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"done":false`)
}

func TestModuleHandler_Install_InProgress(t *testing.T) {
	tenants := new(mockTenants)
	modules := new(mockModules)
	r := gin.New()
	r.POST("/v1/tenants/:id/apps/:app", as("cust-1", utils.RoleCustomer), NewModuleHandler(tenants, modules).Install)

	tenants.On("Authorize", mock.Anything, mock.Anything, "t-1").Return(activeTenant(), nil)
	modules.On("RequestInstall", mock.Anything, "t-1", "hrms").Return(nil, apperrors.ErrJobInProgress)

	w := serve(r, http.MethodPost, "/v1/tenants/t-1/apps/hrms", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestModuleHandler_GetJob_ChecksOwner(t *testing.T) {
	tenants := new(mockTenants)
	modules := new(mockModules)
	r := gin.New()
	r.GET("/v1/jobs/:jid", as("cust-2", utils.RoleCustomer), NewModuleHandler(tenants, modules).GetJob)

	modules.On("JobStatus", mock.Anything, "job-1").Return(&entity.ModuleJobProgress{JobID: "job-1", TenantID: "t-1"}, nil)
	tenants.On("Authorize", mock.Anything, mock.Anything, "t-1").Return(nil, apperrors.ErrForbidden)

	w := serve(r, http.MethodGet, "/v1/jobs/job-1", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBackupHandler_CreateAndRestore(t *testing.T) {
	tenants := new(mockTenants)
	backups := new(mockBackups)
	h := NewBackupHandler(tenants, backups)
	r := gin.New()
	r.Use(as("cust-1", utils.RoleCustomer))
	r.POST("/v1/tenants/:id/backups", h.Create)
	r.POST("/v1/tenants/:id/backups/:bid/restore", h.Restore)

	tenants.On("Authorize", mock.Anything, mock.Anything, "t-1").Return(activeTenant(), nil)
	backups.On("RequestBackup", mock.Anything, "t-1").Return("b-1", nil)
	backups.On("RequestRestore", mock.Anything, "t-1", "b-9").Return("", apperrors.ErrBackupNotFound)

	w := serve(r, http.MethodPost, "/v1/tenants/t-1/backups", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"b-1"`)

	w = serve(r, http.MethodPost, "/v1/tenants/t-1/backups/b-9/restore", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_EnforceSubscription(t *testing.T) {
	r := gin.New()
	missing := NewAdminHandler(stubSubs{}, stubEnforcer{})
	r.POST("/missing/:sid", missing.EnforceSubscription)

	sub := &entity.Subscription{}
	sub.ID = "sub-1"
	found := NewAdminHandler(stubSubs{sub: sub}, stubEnforcer{suspended: []string{"t-3"}})
	r.POST("/found/:sid", found.EnforceSubscription)

	w := serve(r, http.MethodPost, "/missing/sub-x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodPost, "/found/sub-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"suspended":["t-3"]`)
	assert.Contains(t, w.Body.String(), `"reactivated":[]`)
}

func TestDomainHandler_CheckRequiresSubdomain(t *testing.T) {
	r := gin.New()
	r.GET("/check", NewDomainHandler(nil).Check)

	w := serve(r, http.MethodGet, "/check", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler_Ready(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	r := gin.New()
	r.GET("/degraded", NewHealthHandler("v1",
		Dependency{Name: "postgres", Required: true, Check: ok},
		Dependency{Name: "mariadb", Check: down},
	).Ready)
	r.GET("/down", NewHealthHandler("v1",
		Dependency{Name: "postgres", Required: true, Check: down},
	).Ready)

	w := serve(r, http.MethodGet, "/degraded", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)

	w = serve(r, http.MethodGet, "/down", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"not_ready"`)
}
