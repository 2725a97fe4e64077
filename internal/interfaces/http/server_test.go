package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/internal/service"
	"github.com/finchly/expenseflow/pkg/database"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../../migrations"))

	logger := zap.NewNop()
	reports := repository.NewReportRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	employees := repository.NewEmployeeRepository(db.DB, logger)
	policies := repository.NewPolicyRepository(db.DB, logger)
	batches := repository.NewBatchRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)
	recorder := audit.NewRecorder(auditRepo, logger)
	engine := policy.NewEngine(policy.DefaultRules())

	expenses := service.NewExpenseService(db, reports, approvalRepo, policies, recorder, engine, logger)
	approvals := service.NewApprovalService(db, reports, approvalRepo, employees, recorder, logger)
	finance := service.NewFinanceService(db, reports, batches, employees, recorder, logger)

	mgrID := "mgr-1"
	for _, emp := range []*models.Employee{
		{ID: "mgr-1", HRIdentifier: "hr-mgr-1", Role: models.RoleManager, Department: "Engineering"},
		{ID: "emp-1", HRIdentifier: "hr-emp-1", ManagerID: &mgrID, Role: models.RoleEmployee, Department: "Engineering"},
		{ID: "fin-1", HRIdentifier: "hr-fin-1", Role: models.RoleFinance, Department: "Finance"},
	} {
		emp.CreatedAt = time.Now().UTC()
		require.NoError(t, employees.Create(emp))
	}

	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, expenses, approvals, finance, logger)
	return server.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path, employeeID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if employeeID != "" {
		req.Header.Set("X-Employee-ID", employeeID)
		req.Header.Set("X-Role", role)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func reportBody() map[string]any {
	return map[string]any{
		"reporting_period_start": "2024-03-01",
		"reporting_period_end":   "2024-03-31",
		"currency":               "USD",
		"items": []map[string]any{{
			"expense_date": "2024-03-05",
			"category":     "meal",
			"description":  "Team lunch",
			"amount_cents": 4200,
			"receipts": []map[string]any{{
				"file_key":   "receipts/lunch.pdf",
				"file_name":  "lunch.pdf",
				"mime_type":  "application/pdf",
				"size_bytes": 80000,
			}},
		}},
	}
}

// createReport posts a compliant draft and returns its ID and version
func createReport(t *testing.T, router *gin.Engine) (string, int64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/expenses/reports", "emp-1", "employee", reportBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	envelope := decodeEnvelope(t, rec)
	report := envelope["data"].(map[string]any)["report"].(map[string]any)
	return report["id"].(string), int64(report["version"].(float64))
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMissingIdentityHeadersRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/manager/queue", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/manager/queue", "mgr-1", "superuser", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndFetchReport(t *testing.T) {
	router := newTestRouter(t)

	id, version := createReport(t, router)
	assert.Equal(t, int64(1), version)

	rec := doJSON(t, router, http.MethodGet, "/api/expenses/reports/"+id, "emp-1", "employee", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	report := envelope["data"].(map[string]any)["report"].(map[string]any)
	assert.Equal(t, "draft", report["status"])
	assert.Equal(t, float64(4200), report["total_amount_cents"])
}

func TestCreateReportBadDateReturnsDetails(t *testing.T) {
	router := newTestRouter(t)

	body := reportBody()
	body["reporting_period_start"] = "March 1st"
	rec := doJSON(t, router, http.MethodPost, "/api/expenses/reports", "emp-1", "employee", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "reporting_period_start")
}

func TestSubmitLifecycleStatusCodes(t *testing.T) {
	router := newTestRouter(t)

	id, version := createReport(t, router)
	submitPath := fmt.Sprintf("/api/expenses/reports/%s/submit", id)

	rec := doJSON(t, router, http.MethodPost, submitPath, "emp-1", "employee", map[string]any{"expected_version": version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// stale version and repeat submission both land on 409
	rec = doJSON(t, router, http.MethodPost, submitPath, "emp-1", "employee", map[string]any{"expected_version": version})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, submitPath, "emp-1", "employee", map[string]any{"expected_version": version + 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitMissingReceiptReturnsViolations(t *testing.T) {
	router := newTestRouter(t)

	body := reportBody()
	body["items"].([]map[string]any)[0]["receipts"] = nil
	rec := doJSON(t, router, http.MethodPost, "/api/expenses/reports", "emp-1", "employee", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	envelope := decodeEnvelope(t, rec)
	report := envelope["data"].(map[string]any)["report"].(map[string]any)
	id := report["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/api/expenses/reports/"+id+"/submit", "emp-1", "employee",
		map[string]any{"expected_version": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "receipt")
}

func TestDecisionForbiddenForEmployee(t *testing.T) {
	router := newTestRouter(t)

	id, version := createReport(t, router)
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/expenses/reports/%s/submit", id),
		"emp-1", "employee", map[string]any{"expected_version": version})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/approvals/"+id, "emp-1", "employee",
		map[string]any{"decision": "approved", "expected_version": version + 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownReportReturns404(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/expenses/reports/nope", "emp-1", "employee", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveAndFinalizeFlow(t *testing.T) {
	router := newTestRouter(t)

	id, version := createReport(t, router)
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/expenses/reports/%s/submit", id),
		"emp-1", "employee", map[string]any{"expected_version": version})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/manager/queue", "mgr-1", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = doJSON(t, router, http.MethodPost, "/api/approvals/"+id, "mgr-1", "manager",
		map[string]any{"decision": "approved", "expected_version": version + 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/finance/finalize", "fin-1", "finance", map[string]any{
		"reports": []map[string]any{{"report_id": id, "expected_version": version + 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	envelope := decodeEnvelope(t, rec)
	batch := envelope["data"].(map[string]any)["batch"].(map[string]any)
	batchID := batch["id"].(string)
	assert.Equal(t, "pending", batch["status"])

	rec = doJSON(t, router, http.MethodGet, "/api/finance/batches/"+batchID, "fin-1", "finance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/finance/batches", "fin-1", "finance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), batchID)

	// finalized reports cannot be batched twice
	rec = doJSON(t, router, http.MethodPost, "/api/finance/finalize", "fin-1", "finance", map[string]any{
		"reports": []map[string]any{{"report_id": id, "expected_version": version + 3}},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPolicyPreviewEndpoint(t *testing.T) {
	router := newTestRouter(t)

	id, _ := createReport(t, router)
	rec := doJSON(t, router, http.MethodGet, "/api/expenses/reports/"+id+"/policy", "emp-1", "employee", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, true, envelope["success"])
}
