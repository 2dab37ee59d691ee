package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyhq/reengage-api/internal/email"
	campaignhandler "github.com/rallyhq/reengage-api/internal/handler/campaign"
	customerhandler "github.com/rallyhq/reengage-api/internal/handler/customer"
	rulehandler "github.com/rallyhq/reengage-api/internal/handler/rule"
	schedulehandler "github.com/rallyhq/reengage-api/internal/handler/schedule"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/repository/memory"
	"github.com/rallyhq/reengage-api/internal/service/campaign"
	"github.com/rallyhq/reengage-api/internal/service/customer"
	"github.com/rallyhq/reengage-api/internal/service/rule"
	"github.com/rallyhq/reengage-api/internal/service/schedule"
	"github.com/rallyhq/reengage-api/pkg/logger"
	"github.com/rallyhq/reengage-api/pkg/messaging"
	"github.com/rallyhq/reengage-api/pkg/metrics"
)

type noopProgressor struct{}

func (noopProgressor) StartRun(uuid.UUID) {}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	engine http.Handler
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard, TimeFormat: time.RFC3339})
	m := metrics.NewMetricsWithRegisterer(prometheus.NewRegistry(), "reengage", "test")

	ruleRepo := memory.NewRuleRepository(store)
	vehicleRepo := memory.NewVehicleRepository(store)
	campaignRepo := memory.NewCampaignRepository(store)
	scheduleRepo := memory.NewScheduleRepository(store)

	ruleSvc := rule.NewService(ruleRepo, vehicleRepo, log)
	campaignSvc := campaign.NewService(
		ruleRepo, vehicleRepo, campaignRepo, scheduleRepo,
		email.NewTemplateGenerator(""), noopProgressor{}, messaging.NoopBroker{}, m, log,
	)
	scheduleSvc := schedule.NewService(scheduleRepo, ruleRepo, log)
	customerSvc := customer.NewService(vehicleRepo, log)

	r := NewRouter(log, Config{},
		rulehandler.NewHandler(ruleSvc),
		campaignhandler.NewHandler(campaignSvc),
		schedulehandler.NewHandler(scheduleSvc),
		customerhandler.NewHandler(customerSvc),
	)

	return &testAPI{engine: r.Engine(), store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func (a *testAPI) seedRule(cadenceMonths int) *model.Rule {
	r := &model.Rule{
		ID:            uuid.New(),
		Name:          "oil change reminder",
		Service:       model.ServiceTypeOilChange,
		CadenceMonths: cadenceMonths,
		Timezone:      "UTC",
		Enabled:       true,
	}
	a.store.Rules[r.ID] = r
	return r
}

func (a *testAPI) seedVehicle(lastServiced time.Time) *model.Vehicle {
	c := &model.Customer{ID: uuid.New(), FirstName: "Ana", LastName: "Nguyen", Email: "ana@example.com"}
	v := &model.Vehicle{ID: uuid.New(), CustomerID: c.ID, Make: "Toyota", Model: "Camry", Year: 2019}
	a.store.Customers[c.ID] = c
	a.store.Vehicles[v.ID] = v
	a.store.ServiceHistory = append(a.store.ServiceHistory, &model.ServiceHistory{
		ID:          uuid.New(),
		VehicleID:   v.ID,
		Service:     model.ServiceTypeOilChange,
		PerformedAt: lastServiced,
	})
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
}

func TestCreateAndGetRule(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"name":           "winter tire check",
		"service":        "TIRE_ROTATION",
		"cadence_months": 6,
		"timezone":       "America/New_York",
		"email_template": "Hi {firstName}, time for a rotation.",
	})
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "success", resp.Status)

	var created model.Rule
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, "winter tire check", created.Name)

	code, resp = api.do(t, http.MethodGet, "/api/v1/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)

	var fetched model.Rule
	require.NoError(t, json.Unmarshal(resp.Data, &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestCreateRule_RejectsUnknownTimezone(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/rules", map[string]interface{}{
		"name":           "bad tz",
		"service":        "OIL_CHANGE",
		"cadence_months": 3,
		"timezone":       "Mars/Olympus_Mons",
		"email_template": "x",
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
}

func TestGetRule_NotFound(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodGet, "/api/v1/rules/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", resp.Status)
}

func TestPreviewCohort(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)
	api.seedVehicle(time.Now().AddDate(-1, 0, 0))

	code, resp := api.do(t, http.MethodGet, "/api/v1/rules/"+r.ID.String()+"/cohort", nil)

	require.Equal(t, http.StatusOK, code)
	var data struct {
		Count   int                  `json:"count"`
		Members []model.CohortMember `json:"members"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 1, data.Count)
	require.Len(t, data.Members, 1)
	assert.Equal(t, "Toyota", data.Members[0].Vehicle.Make)
}

func TestExecuteCampaign(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)

	code, resp := api.do(t, http.MethodPost, "/api/v1/campaigns/execute", map[string]interface{}{
		"rule_id": r.ID,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)

	api.seedVehicle(time.Now().AddDate(-1, 0, 0))

	code, resp = api.do(t, http.MethodPost, "/api/v1/campaigns/execute", map[string]interface{}{
		"rule_id": r.ID,
	})
	require.Equal(t, http.StatusCreated, code)

	var data struct {
		Run *model.RuleRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotNil(t, data.Run)
	assert.Equal(t, r.ID, data.Run.RuleID)
	assert.Len(t, api.store.Emails, 1)
}

func TestScheduleCampaign_RejectsPast(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)

	code, resp := api.do(t, http.MethodPost, "/api/v1/campaigns/schedule", map[string]interface{}{
		"rule_id":       r.ID,
		"scheduled_for": time.Now().Add(-time.Hour).Format(time.RFC3339),
		"timezone":      "UTC",
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
}

func TestScheduleAndCancelCampaign(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)

	code, resp := api.do(t, http.MethodPost, "/api/v1/campaigns/schedule", map[string]interface{}{
		"rule_id":       r.ID,
		"scheduled_for": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"timezone":      "UTC",
	})
	require.Equal(t, http.StatusCreated, code)

	var scheduled model.ScheduledCampaign
	require.NoError(t, json.Unmarshal(resp.Data, &scheduled))
	assert.Equal(t, model.ScheduledCampaignStatusPending, scheduled.Status)

	code, resp = api.do(t, http.MethodPost, "/api/v1/campaigns/scheduled/"+scheduled.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, code)

	var cancelled model.ScheduledCampaign
	require.NoError(t, json.Unmarshal(resp.Data, &cancelled))
	assert.Equal(t, model.ScheduledCampaignStatusCancelled, cancelled.Status)
}

func TestCreateRecurringSchedule_RejectsBadTimeOfDay(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)

	code, resp := api.do(t, http.MethodPost, "/api/v1/recurring-schedules", map[string]interface{}{
		"rule_id":     r.ID,
		"frequency":   "DAILY",
		"time_of_day": "25:99",
		"timezone":    "UTC",
		"starts_at":   time.Now().Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
}

func TestCreateRecurringSchedule(t *testing.T) {
	api := newTestAPI(t)
	r := api.seedRule(6)

	code, resp := api.do(t, http.MethodPost, "/api/v1/recurring-schedules", map[string]interface{}{
		"rule_id":     r.ID,
		"frequency":   "DAILY",
		"time_of_day": "09:00",
		"timezone":    "UTC",
		"starts_at":   time.Now().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code)

	var created model.RecurringSchedule
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.True(t, created.IsActive)
	require.NotNil(t, created.NextScheduledFor)

	// The first occurrence is seeded alongside the schedule.
	assert.Len(t, api.store.Scheduled, 1)
}

func TestBookAppointment(t *testing.T) {
	api := newTestAPI(t)
	v := api.seedVehicle(time.Now().AddDate(-1, 0, 0))

	code, resp := api.do(t, http.MethodPost, "/api/v1/appointments", map[string]interface{}{
		"vehicle_id": v.ID,
		"service":    "OIL_CHANGE",
		"starts_at":  time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"ends_at":    time.Now().Add(49 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code)

	var booked model.Appointment
	require.NoError(t, json.Unmarshal(resp.Data, &booked))
	assert.Equal(t, model.AppointmentStatusBooked, booked.Status)

	// A future booking removes the vehicle from the cohort.
	r := api.seedRule(6)
	code, resp = api.do(t, http.MethodGet, "/api/v1/rules/"+r.ID.String()+"/cohort", nil)
	require.Equal(t, http.StatusOK, code)

	var data struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, 0, data.Count)
}
