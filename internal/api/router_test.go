package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/medassist/internal/dashboard"
	"github.com/Skufu/medassist/internal/diagnosis"
	"github.com/Skufu/medassist/internal/imaging"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Ping(ctx context.Context) error {
	return f.err
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	log.Logger = zerolog.Nop()
	os.Exit(m.Run())
}

func newTestRouter(t *testing.T, delay time.Duration) (*gin.Engine, *dashboard.Controller) {
	t.Helper()
	pipeline := imaging.NewPipeline(imaging.WithDelay(delay), imaging.WithLogger(zerolog.Nop()))
	ctrl := dashboard.NewController(diagnosis.DefaultCatalog(), pipeline)
	t.Cleanup(ctrl.Close)
	return NewRouter(Options{Controller: ctrl, MaxUploadBytes: 1 << 10}), ctrl
}

func doJSON(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "scan.png")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/imaging", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRouterReadyz(t *testing.T) {
	pipeline := imaging.NewPipeline(imaging.WithLogger(zerolog.Nop()))
	ctrl := dashboard.NewController(diagnosis.DefaultCatalog(), pipeline)
	defer ctrl.Close()

	cases := []struct {
		name   string
		db     HealthChecker
		status int
		body   string
	}{
		{"disabled", nil, http.StatusOK, `"db":"disabled"`},
		{"healthy", fakeDB{}, http.StatusOK, `"db":"ok"`},
		{"unhealthy", fakeDB{err: errors.New("connection refused")}, http.StatusServiceUnavailable, `"status":"degraded"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(Options{Controller: ctrl, DB: tc.db})
			w := doJSON(router, http.MethodGet, "/readyz", "")
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestConditionsAndSuggestedSymptoms(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	var conditions struct {
		Conditions []diagnosis.Condition `json:"conditions"`
	}
	w := doJSON(router, http.MethodGet, "/api/conditions", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &conditions)
	assert.Len(t, conditions.Conditions, 3)

	var cond diagnosis.Condition
	w = doJSON(router, http.MethodGet, "/api/conditions/2", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &cond)
	assert.Equal(t, "Hypertension", cond.Name)
	assert.Equal(t, []string{"headache", "dizziness", "chest pain"}, cond.CanonicalSymptoms)

	var suggested struct {
		Symptoms []string `json:"symptoms"`
	}
	w = doJSON(router, http.MethodGet, "/api/symptoms/suggested", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &suggested)
	assert.Len(t, suggested.Symptoms, 12)
}

func TestSymptomLifecycleAndDiagnosis(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	for _, s := range []string{"fever", "cough", "fever"} {
		w := doJSON(router, http.MethodPost, "/api/patient/symptoms", `{"symptom":"`+s+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	var patient dashboard.Patient
	w := doJSON(router, http.MethodGet, "/api/patient", "")
	decode(t, w, &patient)
	assert.Equal(t, []string{"fever", "cough"}, patient.Symptoms.Values())

	var diag diagnosisResponse
	w = doJSON(router, http.MethodGet, "/api/diagnosis", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &diag)
	require.Len(t, diag.Predictions, 3)
	assert.Equal(t, "Pneumonia", diag.Predictions[0].Name)
	assert.InDelta(t, 0.95, diag.Predictions[0].AdjustedConfidence, 1e-9)
	assert.ElementsMatch(t, []string{"fever", "cough"}, diag.Predictions[0].MatchedSymptoms)

	assert.Equal(t, 95, diag.Predictions[0].Percent)
	assert.Contains(t, w.Body.String(), `"percent":95`)

	w = doJSON(router, http.MethodDelete, "/api/patient/symptoms?symptom=cough", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &patient)
	assert.Equal(t, []string{"fever"}, patient.Symptoms.Values())

	// Removing an absent symptom is a no-op.
	w = doJSON(router, http.MethodDelete, "/api/patient/symptoms?symptom="+url.QueryEscape("chest pain"), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConditionNotFound(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	for _, path := range []string{"/api/conditions/99", "/api/conditions/pneumonia"} {
		w := doJSON(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)

		var body errorResponse
		decode(t, w, &body)
		assert.Equal(t, "not_found", body.Error, path)
		assert.Contains(t, body.Message, "not found", path)
	}
}

func TestRemoveSymptomContainingSlash(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodPost, "/api/patient/symptoms", `{"symptom":"chest pain/pressure"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var patient dashboard.Patient
	decode(t, w, &patient)
	require.Equal(t, []string{"chest pain/pressure"}, patient.Symptoms.Values())

	w = doJSON(router, http.MethodDelete, "/api/patient/symptoms?symptom="+url.QueryEscape("chest pain/pressure"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &patient)
	assert.Empty(t, patient.Symptoms.Values())

	w = doJSON(router, http.MethodGet, "/api/patient", "")
	decode(t, w, &patient)
	assert.Empty(t, patient.Symptoms.Values())
}

func TestRemoveSymptomRequiresQuery(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodDelete, "/api/patient/symptoms", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "missing_symptom")
}

func TestAddSymptomValidation(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodPost, "/api/patient/symptoms", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/patient/symptoms", `{"symptom":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")

	w = doJSON(router, http.MethodPost, "/api/patient/symptoms", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_payload")
}

func TestScoreSymptomsIsStateless(t *testing.T) {
	router, ctrl := newTestRouter(t, time.Second)

	var diag diagnosisResponse
	w := doJSON(router, http.MethodPost, "/api/diagnosis/score", `{"symptoms":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &diag)
	require.Len(t, diag.Predictions, 3)
	assert.Equal(t, "Pneumonia", diag.Predictions[0].Name)
	assert.InDelta(t, 0.255, diag.Predictions[0].AdjustedConfidence, 1e-9)
	assert.Equal(t, "Hypertension", diag.Predictions[1].Name)
	assert.Equal(t, "Diabetes Type 2", diag.Predictions[2].Name)

	w = doJSON(router, http.MethodPost, "/api/diagnosis/score", `{"symptoms":["dizziness"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &diag)
	assert.Equal(t, "Hypertension", diag.Predictions[0].Name)

	assert.Equal(t, 0, ctrl.State().Patient.Symptoms.Len())
}

func TestUpdatePatient(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodPut, "/api/patient", `{
		"name": "Jane Roe",
		"age": 51,
		"gender": "Female",
		"bloodPressure": "118/76",
		"heartRate": 64,
		"temperature": 98.2
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var patient dashboard.Patient
	decode(t, w, &patient)
	assert.Equal(t, "Jane Roe", patient.Name)
	assert.Equal(t, 51, patient.Age)
}

func TestUpdatePatientValidation(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodPut, "/api/patient", `{
		"name": "",
		"bloodPressure": "0/0",
		"heartRate": 70,
		"temperature": 98.6
	}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := strings.ToLower(w.Body.String())
	assert.Contains(t, body, "validation_failed")
	assert.Contains(t, body, "blood pressure")
}

func TestVitalsAndDashboard(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	var vitals dashboard.VitalsSummary
	w := doJSON(router, http.MethodGet, "/api/vitals", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &vitals)
	assert.Equal(t, dashboard.StatusNormal, vitals.HeartRateStatus)
	assert.Equal(t, dashboard.StatusNormal, vitals.TemperatureStatus)
	assert.Len(t, vitals.Trend, 4)

	w = doJSON(router, http.MethodPut, "/api/dashboard/tab", `{"tab":"diagnosis"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var overview dashboard.Overview
	w = doJSON(router, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &overview)
	assert.Equal(t, dashboard.TabDiagnosis, overview.ActiveTab)
	assert.Len(t, overview.RiskFactors, 4)
	require.NotNil(t, overview.TopPrediction)
	assert.Equal(t, "Pneumonia", overview.TopPrediction.Name)
	assert.Equal(t, imaging.StateIdle, overview.Analysis)

	w = doJSON(router, http.MethodPut, "/api/dashboard/tab", `{"tab":"billing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_tab")
}

func TestImageUploadLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, 20*time.Millisecond)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", []byte("\x89PNG\r\n\x1a\nfake")))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var accepted struct {
		Handle imaging.HandleInfo `json:"handle"`
		State  imaging.State      `json:"state"`
	}
	decode(t, w, &accepted)
	assert.Equal(t, imaging.StateAnalyzing, accepted.State)
	assert.Equal(t, "image/png", accepted.Handle.MIMEType)
	assert.NotEmpty(t, accepted.Handle.ID)

	// A second upload while analyzing returns the in-flight handle.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", []byte("other")))
	require.Equal(t, http.StatusAccepted, w.Code)
	var again struct {
		Handle imaging.HandleInfo `json:"handle"`
	}
	decode(t, w, &again)
	assert.Equal(t, accepted.Handle.ID, again.Handle.ID)

	require.Eventually(t, func() bool {
		w := doJSON(router, http.MethodGet, "/api/imaging", "")
		var status imaging.Status
		_ = json.Unmarshal(w.Body.Bytes(), &status)
		return status.State == imaging.StateCompleted && status.Result != nil
	}, 2*time.Second, 10*time.Millisecond)

	var status imaging.Status
	w = doJSON(router, http.MethodGet, "/api/imaging", "")
	decode(t, w, &status)
	assert.Equal(t, imaging.StaticResult(), *status.Result)
	require.Len(t, status.Result.Findings, 3)
	assert.Equal(t, 92, status.Result.Findings[0].Percent)
	assert.Contains(t, w.Body.String(), `"percent":92`)
}

func TestImageUploadErrors(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_image")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "file", []byte("data")))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "missing_image")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", bytes.Repeat([]byte("x"), 4<<10)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCancelAnalysis(t *testing.T) {
	router, _ := newTestRouter(t, time.Second)

	w := doJSON(router, http.MethodDelete, "/api/imaging", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":false`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", []byte("scan")))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/imaging", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cancelled":true`)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestAnalysisEventsStream(t *testing.T) {
	router, ctrl := newTestRouter(t, 20*time.Millisecond)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/imaging/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data:") {
				return line
			}
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return ""
	}

	assert.Contains(t, nextData(), `"state":"idle"`)

	_, err = ctrl.SubmitImage([]byte("scan"))
	require.NoError(t, err)

	assert.Contains(t, nextData(), `"state":"analyzing"`)
	completed := nextData()
	assert.Contains(t, completed, `"state":"completed"`)
	assert.Contains(t, completed, "Chest X-Ray")
}

func TestStaticRootServedWhenIndexExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dashboard</html>"), 0o600))

	pipeline := imaging.NewPipeline(imaging.WithLogger(zerolog.Nop()))
	ctrl := dashboard.NewController(diagnosis.DefaultCatalog(), pipeline)
	defer ctrl.Close()
	router := NewRouter(Options{Controller: ctrl, StaticRoot: dir})

	w := doJSON(router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dashboard")
}

func TestLimitBodySize(t *testing.T) {
	router := gin.New()
	router.Use(limitBodySize(10))
	router.POST("/echo", func(c *gin.Context) {
		_, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too large"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("within limit", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/echo", "12345")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("over limit", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/echo", "01234567890")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
