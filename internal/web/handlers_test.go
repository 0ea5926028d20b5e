package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/domain"
	"github.com/rpattn/importflow/internal/executor"
	"github.com/rpattn/importflow/internal/hub"
	"github.com/rpattn/importflow/internal/mapper"
	"github.com/rpattn/importflow/internal/recovery"
	"github.com/rpattn/importflow/internal/repository"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/validation"
	"github.com/rpattn/importflow/internal/workflow"
)

func newTestServer(t *testing.T) (*Server, *repository.MemoryCatalog) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	eventHub := hub.New(log, 16)
	store := session.NewMemoryStore(eventHub, 0, log)
	engine := validation.NewEngine()
	catalog := repository.NewMemoryCatalog()
	suggester := mapper.NewAdapter(nil, 0, 0.8, log)
	recoverySvc := recovery.NewService(store, engine, 0.7, log)
	batch := executor.New(catalog, log)
	orchestrator := workflow.New(store, suggester, engine, batch, workflow.Config{
		AutoAdvanceMappingConfidence: 0.9,
	}, log)

	return NewServer(orchestrator, recoverySvc, store, eventHub, []string{"*"}, log), catalog
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("invalid response %q: %v", rec.Body.String(), err)
	}
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		SessionID string `json:"sessionId"`
	}
	decode(t, rec, &created)
	if created.SessionID == "" {
		t.Fatalf("missing session id in %s", rec.Body.String())
	}
	return created.SessionID
}

func uploadCSV(t *testing.T, s *Server, id, csv string) *httptest.ResponseRecorder {
	return uploadFile(t, s, id, "products.csv", csv)
}

func uploadFile(t *testing.T, s *Server, id, name, payload string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file failed: %v", err)
	}
	if _, err := part.Write([]byte(payload)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/analyze", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestImportLifecycleOverHTTP(t *testing.T) {
	s, catalog := newTestServer(t)
	id := createSession(t, s)

	rec := uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,9.99\nW-2,Gadget,19.99\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze returned %d: %s", rec.Code, rec.Body.String())
	}
	var analysis struct {
		State    string `json:"state"`
		Mappings []struct {
			TargetField string `json:"targetField"`
		} `json:"mappings"`
	}
	decode(t, rec, &analysis)
	// The heuristic cap keeps confidence below the auto-advance threshold.
	if analysis.State != string(domain.StateMapped) {
		t.Fatalf("expected mapped, got %s", analysis.State)
	}
	if len(analysis.Mappings) != 3 {
		t.Fatalf("expected 3 mappings, got %+v", analysis.Mappings)
	}

	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/confirm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/execute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute returned %d: %s", rec.Code, rec.Body.String())
	}
	var execResult struct {
		Success         bool `json:"success"`
		RecordsImported int  `json:"recordsImported"`
	}
	decode(t, rec, &execResult)
	if !execResult.Success || execResult.RecordsImported != 2 {
		t.Fatalf("unexpected execution result: %+v", execResult)
	}

	count, _ := catalog.CountProducts(context.Background(), "owner-1")
	if count != 2 {
		t.Fatalf("expected 2 products in catalog, got %d", count)
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/status", nil)
	var status struct {
		State    string `json:"state"`
		Revision int64  `json:"revision"`
	}
	decode(t, rec, &status)
	if status.State != string(domain.StateCompleted) {
		t.Fatalf("expected completed, got %+v", status)
	}
}

func TestRecoveryFlowOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	rec := uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,9.99\nW-1,,abc\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze returned %d: %s", rec.Code, rec.Body.String())
	}
	var analysis struct {
		State string `json:"state"`
	}
	decode(t, rec, &analysis)
	if analysis.State != string(domain.StateRecovering) {
		t.Fatalf("expected recovering, got %s", analysis.State)
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/suggestions", nil)
	var suggestions struct {
		Suggestions []struct {
			Type  string `json:"type"`
			Row   int    `json:"row"`
			Field string `json:"field"`
		} `json:"suggestions"`
	}
	decode(t, rec, &suggestions)
	if len(suggestions.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %+v", suggestions.Suggestions)
	}

	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/fix-bulk", map[string]any{
		"fixes": []map[string]any{
			{"recordIndex": 1, "field": "sku", "newValue": "W-2"},
			{"recordIndex": 1, "field": "name", "newValue": "Gadget"},
			{"recordIndex": 1, "field": "price", "newValue": "19.99"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fix-bulk returned %d: %s", rec.Code, rec.Body.String())
	}
	var bulk struct {
		Fixed []any `json:"fixedRecords"`
	}
	decode(t, rec, &bulk)
	if len(bulk.Fixed) != 3 {
		t.Fatalf("expected 3 fixes applied, got %s", rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/status", nil)
	var status struct {
		RemainingErrors []struct {
			Row   int    `json:"row"`
			Field string `json:"field"`
		} `json:"remainingErrors"`
		FixedCount int `json:"fixedCount"`
	}
	decode(t, rec, &status)
	if len(status.RemainingErrors) != 0 || status.FixedCount != 3 {
		t.Fatalf("unexpected status after fixes: %+v", status)
	}

	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/confirm", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFixSingleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)
	uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,abc\n")

	rec := doJSON(t, s, http.MethodPost, "/sessions/"+id+"/fix-single", map[string]any{
		"recordIndex": 0,
		"field":       "price",
		"newValue":    "19.99",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("fix-single returned %d: %s", rec.Code, rec.Body.String())
	}
	var fixed struct {
		Record map[string]string `json:"record"`
	}
	decode(t, rec, &fixed)
	if fixed.Record["price"] != "19.99" {
		t.Fatalf("expected updated record, got %+v", fixed.Record)
	}

	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/fix-single", map[string]any{
		"recordIndex": 42,
		"field":       "price",
		"newValue":    "1.00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad index, got %d: %s", rec.Code, rec.Body.String())
	}
	var failure errorResponse
	decode(t, rec, &failure)
	if failure.Code != "out_of_range" {
		t.Fatalf("expected out_of_range code, got %+v", failure)
	}
}

func TestApplyAutoFixesOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)
	uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,$10.00\n")

	rec := doJSON(t, s, http.MethodPost, "/sessions/"+id+"/apply-auto-fixes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply-auto-fixes returned %d: %s", rec.Code, rec.Body.String())
	}
	var applied struct {
		Applied int `json:"applied"`
	}
	decode(t, rec, &applied)
	if applied.Applied != 1 {
		t.Fatalf("expected 1 applied fix, got %s", rec.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/sessions/not-a-uuid/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/sessions/%s/status", "00000000-0000-0000-0000-000000000001"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	id := createSession(t, s)
	rec = doJSON(t, s, http.MethodPost, "/sessions/"+id+"/execute", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for premature execute, got %d: %s", rec.Code, rec.Body.String())
	}
	var failure errorResponse
	decode(t, rec, &failure)
	if failure.Code != "precondition_failed" {
		t.Fatalf("expected precondition_failed, got %+v", failure)
	}
}

func TestDeleteSessionOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+id+"/", nil)
	req.Header.Set("X-Owner-ID", "owner-1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestErrorReportDownload(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)
	uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,abc\n")

	rec := doJSON(t, s, http.MethodGet, "/sessions/"+id+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "price") {
		t.Fatalf("report missing error row: %s", rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/report?format=pdf", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rec.Code)
	}
}

func TestStatusListsRemainingErrors(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)
	uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,abc\n")

	rec := doJSON(t, s, http.MethodGet, "/sessions/"+id+"/status", nil)
	var status struct {
		RemainingErrors []struct {
			Row   int    `json:"row"`
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"remainingErrors"`
	}
	decode(t, rec, &status)
	if len(status.RemainingErrors) != 1 {
		t.Fatalf("expected one remaining error, got %s", rec.Body.String())
	}
	if e := status.RemainingErrors[0]; e.Row != 0 || e.Field != "price" || e.Rule != string(domain.RuleType) {
		t.Fatalf("unexpected remaining error: %+v", e)
	}
}

func TestAnalyzeUnsupportedFileIsRetryable(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	rec := uploadFile(t, s, id, "notes.txt", "not a spreadsheet")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported upload, got %d: %s", rec.Code, rec.Body.String())
	}
	var failure errorResponse
	decode(t, rec, &failure)
	if failure.Code != "bad_upload" {
		t.Fatalf("expected bad_upload code, got %+v", failure)
	}

	rec = doJSON(t, s, http.MethodGet, "/sessions/"+id+"/status", nil)
	var status struct {
		State string `json:"state"`
	}
	decode(t, rec, &status)
	if status.State != string(domain.StateInitialized) {
		t.Fatalf("bad upload must leave the session retryable, got %+v", status)
	}

	rec = uploadCSV(t, s, id, "sku,name,price\nW-1,Widget,9.99\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("retry after bad upload returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	s, _ := newTestServer(t)
	id := createSession(t, s)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	_ = writer.WriteField("note", "no file here")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/analyze", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file part, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "file required") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}
