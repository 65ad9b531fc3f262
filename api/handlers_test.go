package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAPI(t *testing.T) (*store.Memory, http.Handler) {
	t.Helper()

	controller, err := factory.BuildController(factory.DefaultSwissRegulation())
	require.NoError(t, err)

	mem := store.NewMemory()
	runner := api.NewRunner(mem, controller,
		&payroll.Company{ID: "acme", Name: "Acme AG", Canton: "ZH"},
		&payroll.National{Currency: "CHF"},
	)
	runner.DrainInterval = 0
	runner.Log.SetOutput(io.Discard)

	return mem, api.NewRouter(api.NewHandler(mem, runner))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestCreateAndGetEmployee(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID:        "emp-1",
		Name:      "Mara Keller",
		EntryDate: "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	e := decode[api.EmployeeDTO](t, rec)
	assert.Equal(t, "emp-1", e.ID)
	assert.Equal(t, "Mara Keller", e.Name)
	assert.Equal(t, "2024-01-15", e.EntryDate)

	rec = doJSON(t, h, http.MethodGet, "/api/employees/emp-unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID: "emp-2", Name: "No Entry",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]api.EmployeeDTO](t, rec)
	assert.Len(t, list, 1)
}

// =============================================================================
// CASE VALUES
// =============================================================================

func TestSaveCaseValues(t *testing.T) {
	_, h := newTestAPI(t)

	values := api.SaveCaseValuesRequest{Values: []api.CaseValueRequest{
		{Field: "swiss.salary.monthly", Start: "2024-01-15", Kind: "number", Value: "6000"},
	}}

	// Unknown employee is rejected before anything is written
	rec := doJSON(t, h, http.MethodPost, "/api/employees/emp-ghost/cases", values)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID: "emp-1", Name: "Mara Keller", EntryDate: "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/employees/emp-1/cases", values)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Malformed values are rejected
	rec = doJSON(t, h, http.MethodPost, "/api/employees/emp-1/cases", api.SaveCaseValuesRequest{
		Values: []api.CaseValueRequest{
			{Field: "swiss.salary.monthly", Start: "2024-01-15", Kind: "number", Value: "not-a-number"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYRUN END TO END
// =============================================================================

func TestPayrunEndToEnd(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID: "emp-1", Name: "Mara Keller", EntryDate: "2024-01-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/employees/emp-1/cases", api.SaveCaseValuesRequest{
		Values: []api.CaseValueRequest{
			{Field: "swiss.salary.monthly", Start: "2024-01-15", Kind: "number", Value: "6000"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/payruns", api.ExecutePayrunRequest{
		Period: "2024-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	run := decode[api.PayrunResponse](t, rec)
	assert.Equal(t, "2024-01", run.Period)
	require.Len(t, run.Employees, 1)

	pass := run.Employees[0]
	assert.Equal(t, "emp-1", pass.Employee)
	assert.True(t, pass.Available)
	assert.Empty(t, pass.Error)

	// Pro-rated salary: 6000 * 16 / 30
	var salary *api.ResultDTO
	for i := range pass.Results {
		if pass.Results[i].WageType == "1000" {
			salary = &pass.Results[i]
		}
	}
	require.NotNil(t, salary, "expected a wage type 1000 result")
	assert.Equal(t, "3200", salary.Value)

	// The run persisted its results
	rec = doJSON(t, h, http.MethodGet, "/api/employees/emp-1/results?period=2024-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]api.ResultDTO](t, rec)
	assert.NotEmpty(t, results)

	// Consolidated accumulation sees them too
	rec = doJSON(t, h, http.MethodGet, "/api/employees/emp-1/consolidated?cycle=2024&wage_types=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[api.ConsolidatedSumDTO](t, rec)
	assert.Equal(t, "3200", sum.Sum)
	assert.Len(t, sum.Results, 1)
}

func TestPayrunUnknownEmployee(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/payruns", api.ExecutePayrunRequest{
		Period:    "2024-01",
		Employees: []string{"emp-ghost"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConsolidatedRequiresSelector(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/api/employees/emp-1/consolidated?cycle=2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RETRO JOBS
// =============================================================================

func TestRetroJobFlow(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/employees", api.CreateEmployeeRequest{
		ID: "emp-1", Name: "Mara Keller", EntryDate: "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// A salary recorded now but valid from January is a back-dated change
	// for any later period
	rec = doJSON(t, h, http.MethodPost, "/api/employees/emp-1/cases", api.SaveCaseValuesRequest{
		Values: []api.CaseValueRequest{
			{Field: "swiss.salary.monthly", Start: "2024-01-01", Kind: "number", Value: "6000"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/payruns", api.ExecutePayrunRequest{Period: "2024-02"})
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[api.PayrunResponse](t, rec)
	require.Len(t, run.Employees, 1)
	require.Len(t, run.Employees[0].RetroJobs, 1)
	assert.Equal(t, "2024-01", run.Employees[0].RetroJobs[0].Target)

	// The job landed in the queue
	rec = doJSON(t, h, http.MethodGet, "/api/jobs/pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]api.RetroJobDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, "emp-1", pending[0].Employee)

	// Draining recomputes January through February
	rec = doJSON(t, h, http.MethodPost, "/api/jobs/process", api.ProcessJobsRequest{Period: "2024-02"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	drained := decode[api.ProcessJobsResponse](t, rec)
	assert.Equal(t, 1, drained.Processed)
	assert.Equal(t, 0, drained.Failed)
	require.Len(t, drained.Jobs, 1)
	assert.Equal(t, "completed", drained.Jobs[0].State)

	// January now holds recomputed results
	rec = doJSON(t, h, http.MethodGet, "/api/employees/emp-1/results?period=2024-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]api.ResultDTO](t, rec)
	assert.NotEmpty(t, results)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestResetUnsupportedByMemoryStore(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/api/reset", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthz(t *testing.T) {
	_, h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
