package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ggonzalez94/questd/internal/model"
)

// Reporter prints each account summary as it arrives. JSON mode emits one
// compact object per line so a long-running process stays streamable.
type Reporter struct {
	mu   sync.Mutex
	w    io.Writer
	mode string
	now  func() time.Time
}

func NewReporter(w io.Writer, mode string, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{w: w, mode: mode, now: now}
}

func (r *Reporter) Report(stats *model.AccountStats) {
	if stats == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == "json" {
		_ = json.NewEncoder(r.w).Encode(stats)
		return
	}
	_, _ = io.WriteString(r.w, Summary(stats, r.now()))
}

// Summary formats one account's pass for a terminal.
func Summary(s *model.AccountStats, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s] %s", s.Index, shortWallet(s.Wallet), s.IP, s.Status)
	if s.CycleID != "" {
		fmt.Fprintf(&b, " cycle=%s", s.CycleID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "  points   %d -> %d (%+d)", s.StartPoints, s.EndPoints, s.PointsDelta())
	if s.Balance != "" {
		fmt.Fprintf(&b, "  balance %s", s.Balance)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  social   %s\n", groupLine(s.Social))
	fmt.Fprintf(&b, "  onchain  %s\n", groupLine(s.OnChain))
	if s.Daily.Status != "" {
		fmt.Fprintf(&b, "  daily    %s", s.Daily.Status)
		if s.Daily.NextRun != nil {
			fmt.Fprintf(&b, " next %s", until(*s.Daily.NextRun, now))
		}
		b.WriteString("\n")
	}
	if len(s.Routine) > 0 {
		cats := make([]string, 0, len(s.Routine))
		for c := range s.Routine {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		parts := make([]string, 0, len(cats))
		for _, c := range cats {
			st := s.Routine[c]
			parts = append(parts, fmt.Sprintf("%s %d/%d", c, st.Count, st.Target))
		}
		fmt.Fprintf(&b, "  routine  %s\n", strings.Join(parts, ", "))
	}
	if s.TokenExpiry != nil {
		fmt.Fprintf(&b, "  token    expires %s\n", until(*s.TokenExpiry, now))
	}
	if s.NextRun != nil {
		fmt.Fprintf(&b, "  next run %s\n", until(*s.NextRun, now))
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  error    %s\n", e)
	}
	return b.String()
}

func groupLine(c model.CategoryStats) string {
	return fmt.Sprintf("%d/%d ok, %d failed, %d cooldown, %d already done",
		c.Success, c.Total, c.Failed, c.Cooldown, c.CompletedAlready)
}

func until(t, now time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "now"
	}
	return "in " + d.Round(time.Second).String()
}

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:6] + "..." + w[len(w)-4:]
}
