// Package usage aggregates token usage per calendar day.
package usage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/loomchat/pkg/conversation"
	"github.com/go-go-golems/loomchat/pkg/store"
	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

type DailyUsage struct {
	Date           string `json:"date"`
	InputTokens    int    `json:"inputTokens"`
	OutputTokens   int    `json:"outputTokens"`
	ThinkingTokens int    `json:"thinkingTokens"`
	TotalTokens    int    `json:"totalTokens"`
}

// Ledger holds one DailyUsage per date, persisted under store.KeyTokenUsage.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
	days  map[string]*DailyUsage
}

func LoadLedger(ctx context.Context, st store.Store) (*Ledger, error) {
	l := &Ledger{store: st, days: map[string]*DailyUsage{}}
	b, ok, err := st.Get(ctx, store.KeyTokenUsage)
	if err != nil {
		return nil, errors.Wrap(err, "load token usage")
	}
	if !ok || len(b) == 0 {
		return l, nil
	}
	var history []DailyUsage
	if err := json.Unmarshal(b, &history); err != nil {
		return nil, errors.Wrap(err, "decode token usage")
	}
	for i := range history {
		d := history[i]
		l.days[d.Date] = &d
	}
	return l, nil
}

// Record adds u to the total of the day t falls on, in t's location, and persists.
func (l *Ledger) Record(ctx context.Context, t time.Time, u *conversation.TokenUsage) error {
	if u == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	date := t.Format(DateLayout)
	d, ok := l.days[date]
	if !ok {
		d = &DailyUsage{Date: date}
		l.days[date] = d
	}
	d.InputTokens += u.Input
	d.OutputTokens += u.Output
	d.ThinkingTokens += u.Thinking
	d.TotalTokens += u.Total

	b, err := json.Marshal(l.historyLocked())
	if err != nil {
		return err
	}
	return errors.Wrap(l.store.Set(ctx, store.KeyTokenUsage, b), "save token usage")
}

// History returns the days in ascending date order.
func (l *Ledger) History() []DailyUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.historyLocked()
}

func (l *Ledger) Day(date string) (DailyUsage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.days[date]
	if !ok {
		return DailyUsage{}, false
	}
	return *d, true
}

func (l *Ledger) historyLocked() []DailyUsage {
	ret := make([]DailyUsage, 0, len(l.days))
	for _, d := range l.days {
		ret = append(ret, *d)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Date < ret[j].Date })
	return ret
}
