package console

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolconsole/internal/apiclient"
	"schoolconsole/internal/audit"
	"schoolconsole/internal/export"
	"schoolconsole/internal/queue"
	"schoolconsole/internal/session"
	"schoolconsole/internal/timefmt"
)

// fakeSchool is an in-process stand-in for the school REST API.
type fakeSchool struct {
	mu           sync.Mutex
	statuses     map[int]string
	rosterCalls  int
	rosterFails  bool
	rosterBroken bool
	marks        []url.Values
	enrollFail   string
	enrollBodies [][]int
	unenrollAll  []int
	unenrollCls  []int
	removed      []url.Values
	reject       bool
}

func newFakeSchool() *fakeSchool {
	return &fakeSchool{statuses: map[int]string{7: "None"}}
}

func (f *fakeSchool) reply(w http.ResponseWriter, ok bool, data any, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"IsSuccess": ok, "Data": data, "Message": msg})
}

func (f *fakeSchool) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	switch r.URL.Path {
	case "/Class/GetStudentsForSession":
		f.rosterCalls++
		if f.rosterBroken {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if f.rosterFails {
			f.reply(w, false, nil, "No session")
			return
		}
		rows := []map[string]any{}
		for id, st := range f.statuses {
			rows = append(rows, map[string]any{"studentId": id, "studentName": "Student", "classId": 3, "attendanceStatus": st})
		}
		f.reply(w, true, rows, "")
	case "/Class/MarkAttendance":
		f.marks = append(f.marks, q)
		id, _ := strconv.Atoi(q.Get("studentId"))
		f.statuses[id] = q.Get("attendanceStatus")
		f.reply(w, true, nil, "")
	case "/Student/GetAll":
		f.reply(w, true, []map[string]any{
			{"id": 5, "firstName": "Ana", "surname": "Diaz"},
			{"id": 7, "firstName": "Ben", "surname": "Ode"},
			{"id": 9, "firstName": "Cy", "surname": "Fox"},
		}, "")
	case "/Class/EnrollStudentToClassInBulk":
		var ids []int
		_ = json.NewDecoder(r.Body).Decode(&ids)
		f.enrollBodies = append(f.enrollBodies, ids)
		if f.enrollFail != "" {
			f.reply(w, false, nil, f.enrollFail)
			return
		}
		f.reply(w, true, nil, "")
	case "/Class/UnenrollStudentFromAll":
		id, _ := strconv.Atoi(q.Get("studentId"))
		f.unenrollAll = append(f.unenrollAll, id)
		f.reply(w, true, nil, "")
	case "/Class/UnenrollStudentFromClass":
		id, _ := strconv.Atoi(q.Get("studentId"))
		f.unenrollCls = append(f.unenrollCls, id)
		f.reply(w, true, nil, "")
	case "/Class/RemoveStudentFromSession":
		f.removed = append(f.removed, q)
		f.reply(w, true, nil, "")
	case "/Student/Create":
		f.reply(w, true, 11, "")
	default:
		http.NotFound(w, r)
	}
}

// with runs fn under the fake's lock so tests can tweak or inspect it.
func (f *fakeSchool) with(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

type upstreamCalls struct {
	marks        []url.Values
	enrollBodies [][]int
	unenrollAll  []int
	unenrollCls  []int
	removed      []url.Values
}

func (f *fakeSchool) calls() upstreamCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return upstreamCalls{
		marks:        f.marks,
		enrollBodies: f.enrollBodies,
		unenrollAll:  f.unenrollAll,
		unenrollCls:  f.unenrollCls,
		removed:      f.removed,
	}
}

func (f *fakeSchool) counts() (roster int, marks int, enrolls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rosterCalls, len(f.marks), len(f.enrollBodies)
}

type harness struct {
	router *gin.Engine
	school *fakeSchool
	store  *session.MemoryStore
	queue  *queue.InMemory
	bearer string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	school := newFakeSchool()
	upstream := httptest.NewServer(school)
	t.Cleanup(upstream.Close)

	h := &harness{
		school: school,
		store:  session.NewMemoryStore(time.Hour),
		queue:  queue.NewInMemory(32),
	}
	srv := NewServer(Deps{
		School:         apiclient.New(upstream.URL, nil, time.Second, nil),
		Sessions:       h.store,
		Recorder:       audit.NewRecorder(h.queue, nil),
		JWTIssuer:      "console",
		JWTSigningKey:  "secret",
		AllowedOrigins: []string{"https://console.school.example"},
		Checks: map[string]func(context.Context) bool{
			"redis": func(context.Context) bool { return true },
		},
	})
	h.router = srv.Router()

	rec := h.do(http.MethodPost, "/v1/login", `{"token":"upstream-token","userInfo":{"userName":"kim"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
		Operator    string `json:"operator"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "kim", out.Operator)
	h.bearer = out.AccessToken
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+h.bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRequiresBearer(t *testing.T) {
	h := newHarness(t)
	h.bearer = ""
	rec := h.do(http.MethodGet, "/v1/sessions/42/roster", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["redis"])
}

func TestCORSAllowList(t *testing.T) {
	h := newHarness(t)
	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/v1/sessions/42/roster", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("https://console.school.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://console.school.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight("https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = h.do(http.MethodGet, "/healthz", "")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "no wildcard without an Origin")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRosterNotSuccessfulIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.school.with(func() { h.school.rosterFails = true })

	rec := h.do(http.MethodGet, "/v1/sessions/42/roster?date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, []any{}, out["entries"])
	assert.Equal(t, "2025-10-21", out["date"])
}

func TestRosterPagesByWeek(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/sessions/42/roster?date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "2025-10-14", out["previousDate"])
	assert.Equal(t, "2025-10-28", out["nextDate"])
}

func TestRosterDefaultsToNextWeekday(t *testing.T) {
	h := newHarness(t)
	want, err := timefmt.NextOccurrence(int(time.Wednesday), time.Now())
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/v1/sessions/42/roster?day=wed", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, want, decode(t, rec)["date"])

	rec = h.do(http.MethodGet, "/v1/sessions/42/roster?day=wed&date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-10-21", decode(t, rec)["date"], "an explicit date wins")

	rec = h.do(http.MethodGet, "/v1/sessions/42/roster/export?day=someday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	roster, _, _ := h.school.counts()
	assert.Equal(t, 2, roster)
}

func TestRosterRejectsBadDate(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/sessions/42/roster?date=21/10/2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	roster, _, _ := h.school.counts()
	assert.Zero(t, roster)
}

func TestMarkPresentThenRefetch(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/sessions/42/attendance",
		`{"classId":3,"studentId":7,"date":"2025-10-21","current":"None","status":"Present"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	roster, marks, _ := h.school.counts()
	assert.Equal(t, 1, marks)
	assert.Equal(t, 1, roster, "exactly one re-read after the write")

	q := h.school.calls().marks[0]
	assert.Equal(t, "Present", q.Get("attendanceStatus"))
	assert.Equal(t, "42", q.Get("scheduleId"))
	assert.Equal(t, "3", q.Get("classId"))
	assert.Equal(t, "2025-10-21", q.Get("date"))

	out := decode(t, rec)
	assert.Equal(t, "Present", out["applied"])
	entries := out["roster"].(map[string]any)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "Present", entries[0].(map[string]any)["attendanceStatus"])
	assert.Equal(t, 1, h.queue.Len(), "mark is audited")
}

func TestMarkSameStatusClears(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/sessions/42/attendance",
		`{"classId":3,"studentId":7,"date":"2025-10-21","current":"Late","status":"Late"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "None", h.school.calls().marks[0].Get("attendanceStatus"))
}

func TestMarkExcusedIsLocked(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/sessions/42/attendance",
		`{"classId":3,"studentId":7,"date":"2025-10-21","current":"Excused","status":"Present"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	_, marks, _ := h.school.counts()
	assert.Zero(t, marks)
	assert.Zero(t, h.queue.Len())
}

func TestMarkUnknownStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/sessions/42/attendance",
		`{"classId":3,"studentId":7,"date":"2025-10-21","status":"Sick"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnrollFailureKeepsSelection(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/v1/sessions/42/enrollment", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Len(t, out["allStudents"], 3)
	assert.Equal(t, []any{float64(7)}, out["alreadyEnrolled"])

	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment/toggle/7", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "enrolled students cannot be picked")

	for _, id := range []string{"5", "9"} {
		rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment/toggle/"+id, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decode(t, rec)["checked"])
	}

	h.school.with(func() { h.school.enrollFail = "Class is full" })
	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Class is full", decode(t, rec)["error"])

	h.school.with(func() { h.school.enrollFail = "" })
	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment?date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["submitted"])
	assert.Equal(t, [][]int{{5, 9}, {5, 9}}, h.school.calls().enrollBodies)
	assert.Equal(t, 1, h.queue.Len(), "only the successful enroll is audited")

	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "draft closes after submit")
}

func TestEmptySubmitSendsNothing(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/sessions/42/enrollment", "").Code)

	rec := h.do(http.MethodPost, "/v1/sessions/42/enrollment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["submitted"])
	_, _, enrolls := h.school.counts()
	assert.Zero(t, enrolls)
}

func TestCancelDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/sessions/42/enrollment", "").Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/sessions/42/enrollment/toggle/5", "").Code)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/v1/sessions/42/enrollment", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/sessions/42/enrollment", "").Code)
	_, _, enrolls := h.school.counts()
	assert.Zero(t, enrolls)
}

func TestAddStudentToDraft(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/sessions/42/enrollment", "").Code)

	rec := h.do(http.MethodPost, "/v1/sessions/42/enrollment/students", `{"firstName":"Dee"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "surname is required")

	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment/students", `{"firstName":"Dee","surname":"Park","photoData":"AAAA"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "no photo storage configured")

	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment/students", `{"firstName":"Dee","surname":"Park"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(11), decode(t, rec)["id"])

	rec = h.do(http.MethodPost, "/v1/sessions/42/enrollment/toggle/11", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{float64(11)}, decode(t, rec)["selected"])
}

func TestUnenrollFromAllRefetchesOnce(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/students/7/unenroll",
		`{"scope":"entireClass","classId":3,"scheduleId":42,"date":"2025-10-21"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	roster, _, _ := h.school.counts()
	assert.Equal(t, 1, roster)
	assert.Equal(t, []int{7}, h.school.calls().unenrollAll)
	assert.Empty(t, h.school.calls().unenrollCls)
	assert.Equal(t, 1, h.queue.Len())
}

func TestUnenrollReportsFailedRefetch(t *testing.T) {
	h := newHarness(t)
	h.school.with(func() { h.school.rosterBroken = true })

	rec := h.do(http.MethodPost, "/v1/students/7/unenroll",
		`{"scope":"entireClass","classId":3,"scheduleId":42,"date":"2025-10-21"}`)
	require.Equal(t, http.StatusOK, rec.Code, "the unenroll went through")
	out := decode(t, rec)
	assert.Equal(t, float64(7), out["unenrolled"])
	assert.NotEmpty(t, out["roster_error"])
	assert.NotContains(t, out, "roster")
	assert.Equal(t, []int{7}, h.school.calls().unenrollAll)
	assert.Equal(t, 1, h.queue.Len(), "the write is still audited")
}

func TestMarkReportsFailedRefetch(t *testing.T) {
	h := newHarness(t)
	h.school.with(func() { h.school.rosterBroken = true })

	rec := h.do(http.MethodPost, "/v1/sessions/42/attendance",
		`{"classId":3,"studentId":7,"date":"2025-10-21","current":"None","status":"Present"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "Present", out["applied"])
	assert.NotEmpty(t, out["roster_error"])
	assert.Equal(t, 1, h.queue.Len())
}

func TestUnenrollRequiresScope(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/students/7/unenroll", `{"classId":3,"scheduleId":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, h.school.calls().unenrollAll)
	assert.Empty(t, h.school.calls().unenrollCls)
}

func TestRemoveFromSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodDelete, "/v1/sessions/42/students/7?classId=3&date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, h.school.calls().removed, 1)
	assert.Equal(t, "42", h.school.calls().removed[0].Get("sessionId"))
	assert.Equal(t, "3", h.school.calls().removed[0].Get("classId"))

	rec = h.do(http.MethodDelete, "/v1/sessions/42/students/7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportRoster(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/v1/sessions/42/roster/export?date=2025-10-21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-42-2025-10-21.xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestUnauthorizedLogsOut(t *testing.T) {
	h := newHarness(t)
	h.school.with(func() { h.school.reject = true })

	rec := h.do(http.MethodGet, "/v1/sessions/42/roster", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["logout"])

	h.school.with(func() { h.school.reject = false })
	before, _, _ := h.school.counts()
	rec = h.do(http.MethodGet, "/v1/sessions/42/roster", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "credentials were cleared")
	after, _, _ := h.school.counts()
	assert.Equal(t, before, after, "no round trip without a token")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/v1/logout", "").Code)
	rec := h.do(http.MethodGet, "/v1/sessions/42/roster", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditWithoutJournal(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/v1/audit", "").Code)
}
