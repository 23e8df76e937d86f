package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type fakeScanner struct {
	scanning   bool
	scanCount  int64
	totalCount int64
	lastScan   int64
	scanCalls  int
}

func (f *fakeScanner) ScanAll(ctx context.Context, incremental bool) error {
	f.scanCalls++
	return nil
}
func (f *fakeScanner) IsScanning() bool    { return f.scanning }
func (f *fakeScanner) ScanCount() int64    { return f.scanCount }
func (f *fakeScanner) TotalCount() int64   { return f.totalCount }
func (f *fakeScanner) LastScanTime() int64 { return f.lastScan }

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerAuthRejectsMissingAndWrongToken(t *testing.T) {
	r := NewRouter(&fakeScanner{}, "right-token")

	req := httptest.NewRequest(http.MethodGet, "/scan/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no Authorization header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/scan/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong token, got %d", rec.Code)
	}
}

func TestScanStatusReturnsScannerState(t *testing.T) {
	s := &fakeScanner{scanning: true, scanCount: 10, totalCount: 100, lastScan: 42}
	r := NewRouter(s, "right-token")

	req := httptest.NewRequest(http.MethodGet, "/scan/status", nil)
	req.Header.Set("Authorization", "Bearer right-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Scanning     bool  `json:"scanning"`
		ScannedCount int64 `json:"scanned_count"`
		TotalCount   int64 `json:"total_count"`
		LastScanUnix int64 `json:"last_scan_unix"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Scanning || body.ScannedCount != 10 || body.TotalCount != 100 || body.LastScanUnix != 42 {
		t.Fatalf("expected the fake scanner's state in the body, got %+v", body)
	}
}

func TestTriggerScanRejectsWhileScanning(t *testing.T) {
	s := &fakeScanner{scanning: true}
	r := NewRouter(s, "right-token")

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set("Authorization", "Bearer right-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a scan is already running, got %d", rec.Code)
	}
	if s.scanCalls != 0 {
		t.Fatalf("expected ScanAll not to be called while already scanning")
	}
}

func TestTriggerScanStartsWhenIdle(t *testing.T) {
	s := &fakeScanner{scanning: false}
	r := NewRouter(s, "right-token")

	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	req.Header.Set("Authorization", "Bearer right-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 when idle, got %d: %s", rec.Code, rec.Body.String())
	}
}
