package questapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/httpx"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(httpx.New(time.Second).WithBearer("tok"), srv.URL, srv.URL)
}

func TestQuestsAcceptsWrappedAndBareLists(t *testing.T) {
	bodies := []string{
		`{"quests":[{"id":"q1","title":"Follow","category":"follow","completed":false,"cooldownRemaining":0}]}`,
		`[{"id":"q1","title":"Follow","category":"follow"}]`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/quests" {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Fatalf("missing bearer header")
			}
			_, _ = w.Write([]byte(body))
		}))
		quests, err := newTestClient(srv).Quests(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("Quests failed: %v", err)
		}
		if len(quests) != 1 || quests[0].ID != "q1" || quests[0].Category != "follow" {
			t.Fatalf("unexpected quests %+v", quests)
		}
	}
}

func TestUserSendsWalletQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("wallet") != "0xabc" {
			t.Fatalf("unexpected wallet %q", r.URL.Query().Get("wallet"))
		}
		_, _ = w.Write([]byte(`{"user":{"nickname":"n","points":42,"lastClaimAt":"2026-01-02T03:04:05Z"}}`))
	}))
	defer srv.Close()

	user, err := newTestClient(srv).User(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if user.Points != 42 || user.LastClaimAt == nil || user.LastClaimAt.Day() != 2 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestUserAcceptsEpochMillisLastClaim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"nickname":"n","points":7,"lastClaimAt":1767225600000}}`))
	}))
	defer srv.Close()

	user, err := newTestClient(srv).User(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("User failed: %v", err)
	}
	if user.Points != 7 || user.LastClaimAt == nil || user.LastClaimAt.UnixMilli() != 1767225600000 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestVerifyMergesPayloadAndCarriesRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["questId"] != "q1" || body["tweetUrl"] != "https://x" {
			t.Fatalf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"already completed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Verify(context.Background(), "q1", map[string]any{"tweetUrl": "https://x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if clierr.StatusOf(err) != 400 || clierr.RemoteMessage(err) != "already completed" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRecordActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/activities/record" || r.Header.Get("Origin") == "" {
			t.Fatalf("unexpected request %s origin=%q", r.URL.Path, r.Header.Get("Origin"))
		}
		var req ActivityRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Action == "create" && req.Amount != createActivityAmount {
			t.Fatalf("unexpected create %+v", req)
		}
		_, _ = w.Write([]byte(`{"activityId":77}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	id, err := c.RecordActivity(context.Background(), CreateActivity("shield", "0xabc"))
	if err != nil || id != 77 {
		t.Fatalf("RecordActivity = %d, %v", id, err)
	}
}

func TestRecordActivityBestEffortFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	id := newTestClient(srv).RecordActivityBestEffort(context.Background(), UpdateActivity("shield", "0xabc", 1, "0x1"))
	if id != FallbackActivityID {
		t.Fatalf("expected fallback id, got %d", id)
	}
}
