package llm

import (
	"sync"
	"time"
)

// bucket is a non-blocking token bucket: callers that can't get a token
// reschedule with backoff rather than wait in-process, matching spec.md
// §4.7 ("exceeding any cap causes the current job to reschedule with
// backoff"). Same shape as mailsync's blocking limiter, kept separate
// because LLM cost gates must never block a worker goroutine.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	refillPS float64
	last     time.Time
	nowFn    func() time.Time
}

func newBucket(perMinute int, nowFn func() time.Time) *bucket {
	if perMinute <= 0 {
		perMinute = 1
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &bucket{tokens: float64(perMinute), max: float64(perMinute), refillPS: float64(perMinute) / 60.0, last: nowFn(), nowFn: nowFn}
}

func (b *bucket) tryTake() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFn()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.refillPS
	if b.tokens > b.max {
		b.tokens = b.max
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Budget enforces spec.md §4.7's LLM cost caps: a per-user calls/minute
// cap, a global calls/minute cap, and a per-user dollar/day cap. It is
// shared by C4's Stage 2 adjudicator and C7's LLM fallback tier, since both
// draw against the same user's budget.
type Budget struct {
	mu             sync.Mutex
	perUserPerMin  int
	globalPerMin   int
	dailyDollarCap float64
	global         *bucket
	perUser        map[string]*bucket
	dailySpend     map[string]*daySpend
	nowFn          func() time.Time
}

type daySpend struct {
	day    string
	dollars float64
}

// NewBudget builds a Budget. perUserPerMin/globalPerMin are LLM calls per
// minute; dailyDollarCap is the per-user spend ceiling in dollars.
func NewBudget(perUserPerMin, globalPerMin int, dailyDollarCap float64) *Budget {
	return &Budget{
		perUserPerMin:  perUserPerMin,
		globalPerMin:   globalPerMin,
		dailyDollarCap: dailyDollarCap,
		global:         newBucket(globalPerMin, time.Now),
		perUser:        make(map[string]*bucket),
		dailySpend:     make(map[string]*daySpend),
		nowFn:          time.Now,
	}
}

// AllowCall reports whether userID may make one more LLM call right now
// under the per-minute caps. It does not check the dollar cap — that is
// only knowable after the call's token usage is known, via RecordSpend.
func (b *Budget) AllowCall(userID string) bool {
	if !b.global.tryTake() {
		return false
	}
	b.mu.Lock()
	ub, ok := b.perUser[userID]
	if !ok {
		ub = newBucket(b.perUserPerMin, b.nowFn)
		b.perUser[userID] = ub
	}
	b.mu.Unlock()
	return ub.tryTake()
}

// UnderDailyCap reports whether userID's spend so far today is still under
// the daily dollar cap. A day rolls over at UTC midnight.
func (b *Budget) UnderDailyCap(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	today := b.nowFn().UTC().Format("2006-01-02")
	s, ok := b.dailySpend[userID]
	if !ok || s.day != today {
		return true
	}
	return s.dollars < b.dailyDollarCap
}

// RecordSpend adds dollars to userID's running daily total.
func (b *Budget) RecordSpend(userID string, dollars float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	today := b.nowFn().UTC().Format("2006-01-02")
	s, ok := b.dailySpend[userID]
	if !ok || s.day != today {
		s = &daySpend{day: today}
		b.dailySpend[userID] = s
	}
	s.dollars += dollars
}
