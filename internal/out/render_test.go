package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/questd/internal/model"
)

func TestRenderJSONEnvelope(t *testing.T) {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    []map[string]any{{"quest_id": "q1", "ready": true}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now(), Command: "status"},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, "json"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if decoded["success"] != true {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	data := decoded["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["quest_id"] != "q1" {
		t.Fatalf("unexpected data: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data:    []map[string]any{{"quest_id": "q1", "count": 2}},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "count=2 quest_id=q1" {
		t.Fatalf("unexpected plain output: %q", buf.String())
	}
}

func TestRenderPlainError(t *testing.T) {
	env := model.Envelope{Error: &model.ErrorBody{Code: 2, Type: "usage_error", Message: "bad flag"}}
	var buf bytes.Buffer
	if err := Render(&buf, env, "plain"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "error=usage_error") || !strings.Contains(buf.String(), "code=2") {
		t.Fatalf("unexpected plain error: %q", buf.String())
	}
}

func sampleStats(now time.Time) *model.AccountStats {
	next := now.Add(90 * time.Minute)
	return &model.AccountStats{
		Index:       1,
		Wallet:      "0x1234567890abcdef1234567890abcdef12345678",
		IP:          "Direct",
		Status:      model.AccountCompleted,
		StartPoints: 10,
		EndPoints:   25,
		Balance:     "0.5",
		Social:      model.CategoryStats{Total: 3, Success: 2, Cooldown: 1},
		Routine:     map[string]model.RoutineStatus{"shield": {Count: 1, Target: 1}, "private_send": {Count: 0, Target: 1}},
		NextRun:     &next,
		Errors:      []string{"verify q9: boom"},
	}
}

func TestSummaryPlain(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	got := Summary(sampleStats(now), now)
	for _, want := range []string{
		"#1 0x1234...5678 [Direct] COMPLETED",
		"points   10 -> 25 (+15)  balance 0.5",
		"social   2/3 ok, 0 failed, 1 cooldown, 0 already done",
		"routine  private_send 0/1, shield 1/1",
		"next run in 1h30m0s",
		"error    verify q9: boom",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestReporterJSONLines(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	r := NewReporter(&buf, "json", func() time.Time { return now })
	r.Report(sampleStats(now))
	r.Report(nil)
	r.Report(sampleStats(now))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	var decoded model.AccountStats
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.EndPoints != 25 || decoded.Status != model.AccountCompleted {
		t.Fatalf("unexpected decoded stats %+v", decoded)
	}
}
