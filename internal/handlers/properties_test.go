package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"device_tuner/internal/history"
	"device_tuner/internal/models"
	"device_tuner/internal/property"
	"device_tuner/internal/scan"
	"device_tuner/internal/service"

	"github.com/gin-gonic/gin"
)

func newTuningRouter(tun *mockTuning, mon *mockMonitoring) *gin.Engine {
	return newTestRouter(&service.Service{
		Authorization: &mockAuth{parseID: 7},
		Tuning:        tun,
		Monitoring:    mon,
	})
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testViews() []models.PropertyView {
	test := 72.5
	return []models.PropertyView{
		{Key: "F1:TARGET", Name: "target_temp_c", Design: 85, Test: &test, Effective: 72.5, Source: "TEST"},
		{Key: "F1:SOAK", Name: "soak_s", Design: 30, Effective: 30, Source: "DESIGN"},
	}
}

func TestPropertyHandlers_ListAndSelect(t *testing.T) {
	tun := &mockTuning{sequences: []string{"furnace-a", "furnace-b"}}
	mon := &mockMonitoring{sequence: "furnace-a", views: testViews()}
	r := newTuningRouter(tun, mon)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/properties", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/v1/properties", "")
	if w.Code != http.StatusOK {
		t.Fatalf("properties status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp PropertiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Sequence != "furnace-a" || len(resp.Sequences) != 2 || len(resp.Properties) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Properties[0].Test == nil || *resp.Properties[0].Test != 72.5 || resp.Properties[1].Test != nil {
		t.Fatalf("test values not carried: %+v", resp.Properties)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/sequence", `{"name":"furnace-b"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sequence status=%d, body=%s", w.Code, w.Body.String())
	}
	if tun.lastSequence != "furnace-b" || tun.lastOperator != 7 {
		t.Fatalf("SelectSequence got %q by %d", tun.lastSequence, tun.lastOperator)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/sequence", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d", w.Code)
	}
}

func TestPropertyHandlers_Edits(t *testing.T) {
	tun := &mockTuning{}
	r := newTuningRouter(tun, &mockMonitoring{views: testViews()})

	w := doJSON(r, http.MethodPut, "/api/v1/properties/F1:TARGET/test", `{"value":72.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set status=%d, body=%s", w.Code, w.Body.String())
	}
	if tun.lastKey != "F1:TARGET" || tun.lastValue != 72.5 {
		t.Fatalf("SetTestValue got %s=%v", tun.lastKey, tun.lastValue)
	}
	var view models.PropertyView
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if view.Key != "F1:TARGET" || view.Source != "TEST" {
		t.Fatalf("unexpected view: %+v", view)
	}

	w = doJSON(r, http.MethodPut, "/api/v1/properties/F1:TARGET/test", `{"value":0}`)
	if w.Code != http.StatusOK || tun.lastValue != 0 {
		t.Fatalf("zero must be a valid test value: %d %v", w.Code, tun.lastValue)
	}

	w = doJSON(r, http.MethodPut, "/api/v1/properties/F1:TARGET/test", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing value, got %d", w.Code)
	}

	w = doJSON(r, http.MethodDelete, "/api/v1/properties/F1:SOAK/test", "")
	if w.Code != http.StatusOK || tun.calls["ClearTestValue"] != 1 || tun.lastKey != "F1:SOAK" {
		t.Fatalf("clear status=%d calls=%v key=%s", w.Code, tun.calls, tun.lastKey)
	}

	w = doJSON(r, http.MethodPut, "/api/v1/properties/F1:SOAK/scan", `{"start":0,"end":60,"steps":4,"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status=%d, body=%s", w.Code, w.Body.String())
	}
	want := service.ScanParams{Start: 0, End: 60, Steps: 4, Enabled: true}
	if tun.lastScan != want {
		t.Fatalf("ConfigureScan got %+v, want %+v", tun.lastScan, want)
	}
}

func TestPropertyHandlers_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: F9:X", property.ErrUnknownProperty), http.StatusNotFound},
		{property.ErrNoSequence, http.StatusConflict},
		{history.ErrScanInProgress, http.StatusConflict},
		{fmt.Errorf("%w: steps must be >= 1", scan.ErrInvalidDimension), http.StatusBadRequest},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := newTuningRouter(&mockTuning{err: tc.err}, &mockMonitoring{})
			w := doJSON(r, http.MethodPut, "/api/v1/properties/F9:X/scan", `{"start":0,"end":1,"steps":0}`)
			if w.Code != tc.want {
				t.Fatalf("status=%d, want %d (body=%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusInternalServerError && w.Body.String() != `{"error":"`+errEditProperty+`"}` {
				t.Fatalf("internal error leaked: %s", w.Body.String())
			}
		})
	}
}
