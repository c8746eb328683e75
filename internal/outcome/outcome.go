package outcome

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/questd/internal/errors"
)

type Kind int

const (
	Success Kind = iota
	AlreadyDone
	Cooldown
	TransientFailure
	TerminalFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case AlreadyDone:
		return "already_done"
	case Cooldown:
		return "cooldown"
	case TransientFailure:
		return "transient_failure"
	case TerminalFailure:
		return "terminal_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one action attempt.
type Outcome struct {
	Kind            Kind
	Message         string
	CooldownSeconds int64
}

// Done reports whether the attempt counts as completed for bookkeeping.
func (o Outcome) Done() bool {
	return o.Kind == Success || o.Kind == AlreadyDone
}

func (o Outcome) Failed() bool {
	return o.Kind == TransientFailure || o.Kind == TerminalFailure
}

// Rule maps message substrings or HTTP statuses to a Kind.
type Rule struct {
	Kind       Kind
	Substrings []string
	Statuses   []int
}

// Table is the ordered classification policy for remote rejections. Message
// rules are evaluated before status-only rules; within each pass the first
// matching rule wins.
type Table struct {
	rules []Rule
}

func NewTable(rules ...Rule) *Table {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		subs := make([]string, 0, len(r.Substrings))
		for _, s := range r.Substrings {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				subs = append(subs, s)
			}
		}
		r.Substrings = subs
		out = append(out, r)
	}
	return &Table{rules: out}
}

// DefaultTable mirrors the upstream service's observed vocabulary.
func DefaultTable() *Table {
	return Policy([]string{"already", "completed"}, []int{400}, []string{"limit", "tomorrow", "cooldown"})
}

// Policy builds the standard table from configurable vocabularies.
func Policy(already []string, alreadyStatuses []int, cooldown []string) *Table {
	return NewTable(
		Rule{Kind: AlreadyDone, Substrings: already},
		Rule{Kind: Cooldown, Substrings: cooldown},
		Rule{Kind: Cooldown, Statuses: []int{429}},
		Rule{Kind: AlreadyDone, Statuses: alreadyStatuses},
	)
}

// Match classifies a rejection by its status (0 when none) and message.
func (t *Table) Match(status int, message string) (Kind, bool) {
	msg := strings.ToLower(message)
	if msg != "" {
		for _, r := range t.rules {
			for _, s := range r.Substrings {
				if strings.Contains(msg, s) {
					return r.Kind, true
				}
			}
		}
	}
	if status != 0 {
		for _, r := range t.rules {
			for _, st := range r.Statuses {
				if st == status {
					return r.Kind, true
				}
			}
		}
	}
	return 0, false
}

// Classify turns an attempt error into an Outcome. Unmatched errors become
// transient when the remote looked unreachable and terminal otherwise.
func (t *Table) Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Success}
	}
	msg := clierr.RemoteMessage(err)
	status := clierr.StatusOf(err)
	if kind, ok := t.Match(status, msg); ok {
		return Outcome{Kind: kind, Message: msg}
	}
	if clierr.IsCode(err, clierr.CodeUnavailable) {
		return Outcome{Kind: TransientFailure, Message: msg}
	}
	return Outcome{Kind: TerminalFailure, Message: msg}
}

// ClassifyMessage classifies an error carried inside a 2xx body.
func (t *Table) ClassifyMessage(message string) Outcome {
	if kind, ok := t.Match(0, message); ok {
		return Outcome{Kind: kind, Message: message}
	}
	return Outcome{Kind: TerminalFailure, Message: message}
}
