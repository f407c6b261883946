package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/memstore"
	"github.com/Freeeeeet/clinic_scheduler/internal/service"
)

var testJWT = JWTConfig{Secret: []byte("test-secret"), Issuer: "clinic-test"}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	e   *echo.Echo
	now time.Time
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := memstore.New()
	logger := zap.NewNop()
	f := &apiFixture{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }

	availability := service.NewAvailabilityService(store, store.Availabilities(), logger)
	schedule := service.NewScheduleService(store, store.Availabilities(), store.Slots(), store.Visits(), service.DefaultSlotSettings(), 0, logger)
	schedule.SetClock(clock)
	booking := service.NewBookingService(store, store.Slots(), store.Visits(), nil, logger)
	booking.SetClock(clock)

	h := NewHandler(availability, booking, schedule, time.UTC, logger)
	h.now = clock

	f.e = NewServer(ServerConfig{JWT: testJWT}, h, pinger{}, logger)
	return f
}

func token(t *testing.T, subject, role string, studentID int64) string {
	t.Helper()
	tok, err := IssueToken(testJWT, subject, role, studentID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *apiFixture) do(t *testing.T, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}

	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAPI_MondayScenario(t *testing.T) {
	f := newAPI(t)
	doctor := token(t, "D", RoleDoctor, 0)
	admin := token(t, "root", RoleAdmin, 0)
	s1 := token(t, "1", RoleStudent, 1)
	s2 := token(t, "u-2", RoleStudent, 2)

	rec := f.do(t, http.MethodPost, "/api/v1/doctor/availabilities", doctor,
		`{"day_of_week":1,"start_time":"09:00","end_time":"10:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/generate", admin, `{"week_start":"2025-06-04"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	gen := decode[map[string]any](t, rec)
	assert.Equal(t, "2025-06-02", gen["week_start"])
	assert.EqualValues(t, 2, gen["created"])

	rec = f.do(t, http.MethodGet, "/api/v1/schedules/available?doctor_id=D&from=2025-06-02&to=2025-06-02", s1, "")
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[struct {
		Slots []model.ScheduleSlot `json:"slots"`
	}](t, rec)
	require.Len(t, avail.Slots, 2)
	first := avail.Slots[0]
	assert.Equal(t, model.NewClockTime(9, 0), first.StartTime)
	assert.Equal(t, 1, first.Capacity)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s1, fmt.Sprintf(`{"slot_id":%d}`, first.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	visit := decode[model.Visit](t, rec)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s2, fmt.Sprintf(`{"slot_id":%d}`, first.ID))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_full", decode[errorResponse](t, rec).Code)

	// Someone else's visit
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/student/visits/%d/cancel", visit.ID), s2, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/student/visits/%d/cancel", visit.ID), s1, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/student/visits/%d/cancel", visit.ID), s1, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s2, fmt.Sprintf(`{"slot_id":%d}`, first.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/student/me/schedules", s2, "")
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Visits []model.Visit `json:"visits"`
	}](t, rec)
	require.Len(t, mine.Visits, 1)
	assert.Equal(t, model.VisitStatusBooked, mine.Visits[0].Status)

	rec = f.do(t, http.MethodGet, "/api/v1/doctor/schedules?from=2025-06-02&to=2025-06-08", doctor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decode[struct {
		Slots []model.ScheduleSlot `json:"slots"`
	}](t, rec)
	require.Len(t, sched.Slots, 2)
	assert.Equal(t, 1, sched.Slots[0].BookedCount)
}

func TestAPI_Auth(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodGet, "/api/v1/schedules/available", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/schedules/available", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := IssueToken(JWTConfig{Secret: []byte("other"), Issuer: testJWT.Issuer}, "x", RoleStudent, 1, time.Hour)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/v1/schedules/available", other, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(testJWT, "x", RoleStudent, 1, -time.Minute)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/v1/schedules/available", expired, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	student := token(t, "1", RoleStudent, 1)
	rec = f.do(t, http.MethodGet, "/api/v1/doctor/availabilities", student, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/purge", token(t, "D", RoleDoctor, 0), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Pharmacists may browse but not book
	pharmacist := token(t, "p", RolePharmacist, 0)
	rec = f.do(t, http.MethodGet, "/api/v1/schedules/available", pharmacist, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", pharmacist, `{"slot_id":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Student ids fall back to a numeric subject
	rec = f.do(t, http.MethodGet, "/api/v1/student/me/schedules", token(t, "17", RoleStudent, 0), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/student/me/schedules", token(t, "abc", RoleStudent, 0), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_Validation(t *testing.T) {
	f := newAPI(t)
	doctor := token(t, "D", RoleDoctor, 0)
	student := token(t, "1", RoleStudent, 1)

	cases := []struct {
		name   string
		method string
		path   string
		tok    string
		body   string
		want   int
	}{
		{"bad day", http.MethodPost, "/api/v1/doctor/availabilities", doctor, `{"day_of_week":7,"start_time":"09:00","end_time":"10:00"}`, http.StatusBadRequest},
		{"bad time", http.MethodPost, "/api/v1/doctor/availabilities", doctor, `{"day_of_week":1,"start_time":"9am","end_time":"10:00"}`, http.StatusBadRequest},
		{"start after end", http.MethodPost, "/api/v1/doctor/availabilities", doctor, `{"day_of_week":1,"start_time":"11:00","end_time":"10:00"}`, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/api/v1/doctor/availabilities", doctor, `{"day_of_week":1}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/doctor/availabilities", doctor, `{"day_of_week":`, http.StatusBadRequest},
		{"bad id", http.MethodDelete, "/api/v1/doctor/availabilities/abc", doctor, "", http.StatusBadRequest},
		{"unknown availability", http.MethodDelete, "/api/v1/doctor/availabilities/99", doctor, "", http.StatusNotFound},
		{"missing slot", http.MethodPost, "/api/v1/student/schedules", student, `{}`, http.StatusBadRequest},
		{"unknown slot", http.MethodPost, "/api/v1/student/schedules", student, `{"slot_id":99}`, http.StatusNotFound},
		{"bad date", http.MethodGet, "/api/v1/schedules/available?from=06/02/2025", student, "", http.StatusBadRequest},
		{"reversed range", http.MethodGet, "/api/v1/schedules/available?from=2025-06-03&to=2025-06-02", student, "", http.StatusBadRequest},
		{"bad week", http.MethodPost, "/api/v1/admin/slots/generate", token(t, "root", RoleAdmin, 0), `{"week_start":"next week"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.tok, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_ExpiredSlotAndPurge(t *testing.T) {
	f := newAPI(t)
	doctor := token(t, "D", RoleDoctor, 0)
	admin := token(t, "root", RoleAdmin, 0)
	student := token(t, "1", RoleStudent, 1)

	rec := f.do(t, http.MethodPost, "/api/v1/doctor/availabilities", doctor,
		`{"day_of_week":1,"start_time":"09:00","end_time":"10:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/generate", admin, `{"week_start":"2025-06-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/doctor/schedules?from=2025-06-02", doctor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decode[struct {
		Slots []model.ScheduleSlot `json:"slots"`
	}](t, rec)
	require.Len(t, sched.Slots, 2)

	f.now = time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", student, fmt.Sprintf(`{"slot_id":%d}`, sched.Slots[0].ID))
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", student, fmt.Sprintf(`{"slot_id":%d}`, sched.Slots[1].ID))
	require.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/purge", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["deleted"])

	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/purge", admin, `{"now":"2025-06-02T11:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["deleted"])
}

func TestAPI_DoctorWeekImage(t *testing.T) {
	f := newAPI(t)
	doctor := token(t, "D", RoleDoctor, 0)
	admin := token(t, "root", RoleAdmin, 0)

	rec := f.do(t, http.MethodPost, "/api/v1/doctor/availabilities", doctor,
		`{"day_of_week":3,"start_time":"14:00","end_time":"15:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/admin/slots/generate", admin, `{"week_start":"2025-06-02"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/doctor/schedules/week.png?week=2025-06-04", doctor, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = f.do(t, http.MethodGet, "/api/v1/doctor/schedules/week.png?week=04.06.2025", doctor, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/doctor/schedules/week.png", token(t, "1", RoleStudent, 1), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_DoctorSlotManagement(t *testing.T) {
	f := newAPI(t)
	doctor := token(t, "D", RoleDoctor, 0)
	other := token(t, "E", RoleDoctor, 0)
	s1 := token(t, "1", RoleStudent, 1)

	rec := f.do(t, http.MethodPost, "/api/v1/doctor/availabilities", doctor,
		`{"day_of_week":1,"start_time":"09:00","end_time":"11:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[model.Availability](t, rec)

	rec = f.do(t, http.MethodPost, "/api/v1/doctor/schedules", doctor, fmt.Sprintf(
		`{"availability_id":%d,"date":"2025-06-02","start_time":"09:00","end_time":"09:40","capacity":2}`, a.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	slot := decode[model.ScheduleSlot](t, rec)
	assert.Equal(t, 2, slot.Capacity)
	assert.Equal(t, model.NewClockTime(9, 40), slot.EndTime)

	rec = f.do(t, http.MethodPost, "/api/v1/doctor/schedules", doctor, fmt.Sprintf(
		`{"availability_id":%d,"date":"2025-06-02","start_time":"09:20","end_time":"10:00"}`, a.ID))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_overlap", decode[errorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/doctor/schedules", doctor, fmt.Sprintf(
		`{"availability_id":%d,"date":"02.06.2025","start_time":"09:20","end_time":"10:00"}`, a.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/doctor/schedules", s1, fmt.Sprintf(
		`{"availability_id":%d,"date":"2025-06-02","start_time":"10:00","end_time":"10:30"}`, a.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/doctor/schedules/%d", slot.ID), doctor, `{"capacity":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[model.ScheduleSlot](t, rec).Capacity)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/doctor/schedules/%d", slot.ID), other, `{"capacity":4}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s1, fmt.Sprintf(`{"slot_id":%d}`, slot.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	visit := decode[model.Visit](t, rec)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/doctor/schedules/%d/cancel", slot.ID), doctor, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decode[struct {
		Slot            model.ScheduleSlot `json:"slot"`
		CancelledVisits []model.Visit      `json:"cancelled_visits"`
	}](t, rec)
	assert.NotNil(t, cancelled.Slot.CancelledAt)
	assert.Equal(t, 0, cancelled.Slot.BookedCount)
	require.Len(t, cancelled.CancelledVisits, 1)
	assert.Equal(t, visit.ID, cancelled.CancelledVisits[0].ID)
	assert.Equal(t, model.VisitStatusCancelled, cancelled.CancelledVisits[0].Status)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s1, fmt.Sprintf(`{"slot_id":%d}`, slot.ID))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[errorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/doctor/schedules/%d/cancel", slot.ID), doctor, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/doctor/schedules/%d/restore", slot.ID), doctor, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[model.ScheduleSlot](t, rec).CancelledAt)

	rec = f.do(t, http.MethodPost, "/api/v1/student/schedules", s1, fmt.Sprintf(`{"slot_id":%d}`, slot.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAPI_CORS(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, zap.NewNop())
	e := NewServer(ServerConfig{JWT: testJWT, CORSOrigins: []string{"https://clinic.example"}}, h, pinger{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://clinic.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://clinic.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestAPI_Health(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = f.do(t, http.MethodGet, "/health/db", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(ServerConfig{JWT: testJWT}, NewHandler(nil, nil, nil, nil, zap.NewNop()), pinger{err: errors.New("refused")}, zap.NewNop())
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", model.ErrSlotFull), http.StatusConflict},
		{model.ErrDuplicateBooking, http.StatusConflict},
		{model.ErrSlotOverlap, http.StatusConflict},
		{model.ErrSlotExpired, http.StatusGone},
		{model.ErrInvalidState, http.StatusConflict},
		{model.ErrValidation, http.StatusBadRequest},
		{model.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: timeout", model.ErrTransientStore), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		got, _ := statusOf(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
