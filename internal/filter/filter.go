package filter

import (
	"strings"
	"sync"

	"github.com/five82/klaxon/internal/alarm"
)

// Resolver supplies the object-tree lookups a filter needs.
// *objects.Index implements it.
type Resolver interface {
	Name(id int64) string
	ZoneName(uin int64) string
	IsDescendant(id, root int64) bool
}

// Mask values with every state or severity enabled.
const (
	AllStates     uint = 1<<4 - 1
	AllSeverities uint = 1<<alarm.SeverityCount - 1
)

// StateBit returns the mask bit for s.
func StateBit(s alarm.State) uint { return 1 << uint(s) }

// SeverityBit returns the mask bit for s.
func SeverityBit(s alarm.Severity) uint { return 1 << uint(s) }

type settings struct {
	roots        []int64
	stateMask    uint
	severityMask uint
	query        Query
	text         string
}

// Filter decides which alarms are shown. Matches depends only on the alarm
// and the current settings; setters swap settings atomically.
type Filter struct {
	mu       sync.RWMutex
	cur      *settings
	resolver Resolver
}

// New returns a filter that accepts every alarm.
func New(resolver Resolver) *Filter {
	return &Filter{
		cur:      &settings{stateMask: AllStates, severityMask: AllSeverities},
		resolver: resolver,
	}
}

func (f *Filter) update(fn func(s *settings)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := *f.cur
	next.roots = append([]int64(nil), f.cur.roots...)
	fn(&next)
	f.cur = &next
}

// SetRootObjects restricts alarms to sources under any of ids. An empty list
// removes the restriction.
func (f *Filter) SetRootObjects(ids []int64) {
	f.update(func(s *settings) { s.roots = append([]int64(nil), ids...) })
}

// SetStateMask sets the accepted states as a bit mask of StateBit values.
func (f *Filter) SetStateMask(mask uint) {
	f.update(func(s *settings) { s.stateMask = mask })
}

// SetSeverityMask sets the accepted severities as a bit mask of SeverityBit values.
func (f *Filter) SetSeverityMask(mask uint) {
	f.update(func(s *settings) { s.severityMask = mask })
}

// SetQuery parses and installs a query string.
func (f *Filter) SetQuery(text string) {
	q := ParseQuery(text)
	f.update(func(s *settings) {
		s.query = q
		s.text = text
	})
}

// QueryText returns the query as last set.
func (f *Filter) QueryText() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cur.text
}

// Matches reports whether a passes every configured test.
func (f *Filter) Matches(a alarm.Alarm) bool {
	f.mu.RLock()
	s := f.cur
	f.mu.RUnlock()

	if s.stateMask&StateBit(a.State) == 0 {
		return false
	}
	if s.severityMask&SeverityBit(a.Severity) == 0 {
		return false
	}
	if len(s.roots) > 0 && !f.inScope(a.SourceObjectID, s.roots) {
		return false
	}
	for _, c := range s.query.Clauses {
		if f.clauseMatches(c, a) == c.Negate {
			return false
		}
	}
	if len(s.query.Words) > 0 {
		hay := f.haystack(a)
		for _, w := range s.query.Words {
			if strings.Contains(hay, w.Text) == w.Negate {
				return false
			}
		}
	}
	return true
}

func (f *Filter) inScope(source int64, roots []int64) bool {
	for _, r := range roots {
		if source == r {
			return true
		}
		if f.resolver != nil && f.resolver.IsDescendant(source, r) {
			return true
		}
	}
	return false
}

func (f *Filter) sourceName(a alarm.Alarm) string {
	if f.resolver == nil {
		return ""
	}
	return strings.ToLower(f.resolver.Name(a.SourceObjectID))
}

func (f *Filter) clauseMatches(c Clause, a alarm.Alarm) bool {
	switch c.Attr {
	case AttrSeverity:
		_, ok := c.severities[a.Severity]
		return ok
	case AttrState:
		_, ok := c.states[a.State]
		return ok
	case AttrHasComments:
		return (a.CommentsCount > 0) == c.hasComment
	case AttrRepeatCount:
		for _, r := range c.counts {
			if r.contains(a.RepeatCount) {
				return true
			}
		}
		return false
	case AttrSource:
		return containsAny(f.sourceName(a), c.Values)
	case AttrZone:
		if f.resolver == nil {
			return false
		}
		return containsAny(strings.ToLower(f.resolver.ZoneName(a.ZoneUIN)), c.Values)
	case AttrAcknowledgedBy:
		return containsAny(strings.ToLower(a.AckByUser), c.Values)
	case AttrResolvedBy:
		return containsAny(strings.ToLower(a.ResolvedByUser), c.Values)
	case AttrEvent:
		return containsAny(strings.ToLower(a.EventName), c.Values)
	}
	return false
}

func containsAny(s string, values []string) bool {
	if s == "" {
		return false
	}
	for _, v := range values {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

// haystack is the lower-cased text plain words are searched in.
func (f *Filter) haystack(a alarm.Alarm) string {
	parts := []string{strings.ToLower(a.Message), f.sourceName(a), strings.ToLower(a.EventName), strings.ToLower(a.HelpdeskRef)}
	return strings.Join(parts, "\x00")
}
