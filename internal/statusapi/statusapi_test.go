package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rohitsakala/printcore/internal/printstats"
	"github.com/rohitsakala/printcore/internal/vsd"
)

type fakeExecutor struct{ st vsd.Status }

func (f fakeExecutor) Status() vsd.Status { return f.st }

type fakePause struct{ paused bool }

func (f fakePause) IsPaused() bool { return f.paused }

type fakeStats struct{ st printstats.Status }

func (f fakeStats) GetStatus(eventtime float64) printstats.Status { return f.st }

type fakeClock struct{}

func (fakeClock) Monotonic() float64 { return 42 }

type fakeCommandRunner struct{ lines []string }

func (f *fakeCommandRunner) Run(line string) error {
	f.lines = append(f.lines, line)
	return nil
}

func TestServer_CombinedStatus(t *testing.T) {
	exec := fakeExecutor{st: vsd.Status{FilePath: "a.gcode", IsActive: true}}
	pause := fakePause{paused: true}
	stats := fakeStats{st: printstats.Status{Filename: "a.gcode", State: printstats.StatePrinting}}
	s := New(exec, pause, stats, fakeClock{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/printer/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var combined Combined
	if err := json.Unmarshal(rec.Body.Bytes(), &combined); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if combined.Executor.FilePath != "a.gcode" || !combined.PauseState.IsPaused {
		t.Fatalf("unexpected combined status: %+v", combined)
	}
	if combined.PrintStats.State != printstats.StatePrinting {
		t.Fatalf("expected printing state, got %v", combined.PrintStats.State)
	}
}

func TestServer_StartRequiresFilename(t *testing.T) {
	cmd := &fakeCommandRunner{}
	s := New(fakeExecutor{}, fakePause{}, fakeStats{}, fakeClock{}, cmd)

	req := httptest.NewRequest(http.MethodPost, "/printer/print/start", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServer_StartDispatchesSDCardPrintFile(t *testing.T) {
	cmd := &fakeCommandRunner{}
	s := New(fakeExecutor{}, fakePause{}, fakeStats{}, fakeClock{}, cmd)

	req := httptest.NewRequest(http.MethodPost, "/printer/print/start?filename=part.gcode", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(cmd.lines) != 1 || cmd.lines[0] != "SDCARD_PRINT_FILE FILENAME=part.gcode" {
		t.Fatalf("unexpected dispatched lines: %v", cmd.lines)
	}
}

func TestServer_PauseResumeCancelDispatch(t *testing.T) {
	cmd := &fakeCommandRunner{}
	s := New(fakeExecutor{}, fakePause{}, fakeStats{}, fakeClock{}, cmd)

	for _, route := range []string{"/printer/print/pause", "/printer/print/resume", "/printer/print/cancel"} {
		req := httptest.NewRequest(http.MethodPost, route, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s: expected 202, got %d", route, rec.Code)
		}
	}
	if len(cmd.lines) != 3 {
		t.Fatalf("expected 3 dispatched commands, got %v", cmd.lines)
	}
}

func TestServer_ControlRoutesWithoutCommandRunnerReport503(t *testing.T) {
	s := New(fakeExecutor{}, fakePause{}, fakeStats{}, fakeClock{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/printer/print/pause", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServer_LogsReturnsRecordedLines(t *testing.T) {
	s := New(fakeExecutor{}, fakePause{}, fakeStats{}, fakeClock{}, nil)
	s.RecordLog("Done printing file")
	s.RecordLog("action:paused")

	req := httptest.NewRequest(http.MethodGet, "/printer/logs", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var lines []string
	if err := json.Unmarshal(rec.Body.Bytes(), &lines); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(lines) != 2 || lines[0] != "Done printing file" {
		t.Fatalf("unexpected logs: %v", lines)
	}
}
