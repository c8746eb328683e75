package store

// QuestState is the persisted view of one quest (or pseudo-quest such as the
// daily claim). NextRunTime is epoch milliseconds; 0 or past means ready.
type QuestState struct {
	Title       string `json:"title,omitempty"`
	Category    string `json:"category,omitempty"`
	NextRunTime int64  `json:"nextRunTime"`
}

type DailyCounter struct {
	Count      int   `json:"count"`
	LastTxTime int64 `json:"lastTxTime"`
}

// AccountRecord is keyed by wallet address in the persisted document.
type AccountRecord struct {
	Quests      map[string]QuestState   `json:"quests"`
	DailyCounts map[string]DailyCounter `json:"dailyCounts"`
}

func newAccountRecord() AccountRecord {
	return AccountRecord{
		Quests:      make(map[string]QuestState),
		DailyCounts: make(map[string]DailyCounter),
	}
}

func (r AccountRecord) normalized() AccountRecord {
	if r.Quests == nil {
		r.Quests = make(map[string]QuestState)
	}
	if r.DailyCounts == nil {
		r.DailyCounts = make(map[string]DailyCounter)
	}
	return r
}

func (r AccountRecord) clone() AccountRecord {
	out := newAccountRecord()
	for k, v := range r.Quests {
		out.Quests[k] = v
	}
	for k, v := range r.DailyCounts {
		out.DailyCounts[k] = v
	}
	return out
}

// QuestPatch is merged shallowly into a QuestState: nil fields keep the
// stored value.
type QuestPatch struct {
	Title       *string
	Category    *string
	NextRunTime *int64
}

// Describe sets the title and category of the patched quest.
func Describe(title, category string) QuestPatch {
	return QuestPatch{Title: &title, Category: &category}
}

// RunAt returns a patch that moves the next run to ms.
func RunAt(ms int64) QuestPatch {
	return QuestPatch{NextRunTime: &ms}
}

// Ready returns a patch that explicitly resets the quest to "ready now".
func Ready() QuestPatch {
	return RunAt(0)
}

// RunAt adds a next-run time to p.
func (p QuestPatch) RunAt(ms int64) QuestPatch {
	p.NextRunTime = &ms
	return p
}

func (p QuestPatch) apply(q QuestState) QuestState {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Category != nil {
		q.Category = *p.Category
	}
	if p.NextRunTime != nil {
		q.NextRunTime = *p.NextRunTime
	}
	return q
}
