package filter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/objects"
)

func testIndex() *objects.Index {
	x := objects.NewIndex()
	x.Load([]objects.Object{
		{ID: 1, Name: "Entire Network"},
		{ID: 2, Name: "Infrastructure", Parents: []int64{1}},
		{ID: 10, Name: "core-sw", Parents: []int64{2}},
		{ID: 20, Name: "Branch Office", Parents: []int64{1}},
		{ID: 21, Name: "branch-rtr", Parents: []int64{20}},
	}, []objects.Zone{{UIN: 4, Name: "DMZ"}})
	return x
}

func TestFilter_DefaultAcceptsEverything(t *testing.T) {
	f := New(testIndex())
	for s := alarm.StateOutstanding; s <= alarm.StateTerminated; s++ {
		for sev := alarm.SeverityNormal; sev <= alarm.SeverityCritical; sev++ {
			assert.True(t, f.Matches(alarm.Alarm{ID: 1, State: s, Severity: sev}))
		}
	}
}

func TestFilter_Masks(t *testing.T) {
	f := New(testIndex())
	f.SetStateMask(StateBit(alarm.StateOutstanding) | StateBit(alarm.StateAcknowledged))
	f.SetSeverityMask(SeverityBit(alarm.SeverityMajor) | SeverityBit(alarm.SeverityCritical))

	assert.True(t, f.Matches(alarm.Alarm{State: alarm.StateOutstanding, Severity: alarm.SeverityMajor}))
	assert.False(t, f.Matches(alarm.Alarm{State: alarm.StateResolved, Severity: alarm.SeverityMajor}))
	assert.False(t, f.Matches(alarm.Alarm{State: alarm.StateAcknowledged, Severity: alarm.SeverityMinor}))
}

func TestFilter_RootScope(t *testing.T) {
	f := New(testIndex())
	f.SetRootObjects([]int64{2})

	assert.True(t, f.Matches(alarm.Alarm{SourceObjectID: 10}))
	assert.True(t, f.Matches(alarm.Alarm{SourceObjectID: 2}))
	assert.False(t, f.Matches(alarm.Alarm{SourceObjectID: 21}))

	f.SetRootObjects([]int64{2, 20})
	assert.True(t, f.Matches(alarm.Alarm{SourceObjectID: 21}))

	f.SetRootObjects(nil)
	assert.True(t, f.Matches(alarm.Alarm{SourceObjectID: 999}))
}

func TestFilter_QueryClauses(t *testing.T) {
	f := New(testIndex())
	major := alarm.Alarm{
		ID: 1, State: alarm.StateAcknowledged, Severity: alarm.SeverityMajor,
		SourceObjectID: 10, ZoneUIN: 4, Message: "Interface eth0 down",
		RepeatCount: 3, CommentsCount: 1, AckByUser: "alice", EventName: "SYS_IF_DOWN",
		HelpdeskRef: "HD-1042",
	}

	cases := []struct {
		query string
		want  bool
	}{
		{"Severity:Major", true},
		{"severity:minor,major", true},
		{"Severity:Critical", false},
		{"NOT Severity:Critical", true},
		{"State:Acknowledged", true},
		{"State:Outstanding", false},
		{"Source:core", true},
		{`Source:"core-sw"`, true},
		{"Source:branch", false},
		{"Zone:dmz", true},
		{"AcknowledgedBy:ALICE", true},
		{"ResolvedBy:alice", false},
		{"HasComments:yes", true},
		{"HasComments:no", false},
		{"RepeatCount:3", true},
		{"RepeatCount:>2", true},
		{"RepeatCount:<3", false},
		{"RepeatCount:1-5", true},
		{"RepeatCount:4-9", false},
		{"Event:if_down", true},
		{"Event: if_down", true},
		{"eth0", true},
		{"ETH0 down", true},
		{"eth1", false},
		{"NOT eth0", false},
		{"hd-1042", true},
		{`"interface eth0"`, true},
		{"Severity:Major eth0 NOT Zone:lan", true},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			f.SetQuery(tc.query)
			assert.Equal(t, tc.want, f.Matches(major))
		})
	}
}

func TestParseQuery_DegradesToText(t *testing.T) {
	q := ParseQuery("Colour:red Severity:bogus RepeatCount:x")
	assert.Empty(t, q.Clauses)
	require.Len(t, q.Words, 3)
	assert.Equal(t, "colour:red", q.Words[0].Text)
	assert.Equal(t, "severity:bogus", q.Words[1].Text)
	assert.Equal(t, "repeatcount:x", q.Words[2].Text)
}

func TestParseQuery_RejectedSeparateValueStaysText(t *testing.T) {
	q := ParseQuery("Severity: disk")
	assert.Empty(t, q.Clauses)
	require.Len(t, q.Words, 2)
	assert.Equal(t, "severity:", q.Words[0].Text)
	assert.Equal(t, "disk", q.Words[1].Text)

	f := New(testIndex())
	f.SetQuery("Severity: disk")
	assert.True(t, f.Matches(alarm.Alarm{Message: "Severity: disk full"}))
	assert.False(t, f.Matches(alarm.Alarm{Message: "Severity: fan fault"}))

	q = ParseQuery("Severity: Major disk")
	require.Len(t, q.Clauses, 1)
	require.Len(t, q.Words, 1)
	assert.Equal(t, "disk", q.Words[0].Text)
}

func TestParseQuery_Not(t *testing.T) {
	q := ParseQuery("NOT State:Resolved NOT")
	require.Len(t, q.Clauses, 1)
	assert.True(t, q.Clauses[0].Negate)
	require.Len(t, q.Words, 1)
	assert.Equal(t, "not", q.Words[0].Text)
	assert.False(t, q.Words[0].Negate)

	q = ParseQuery("not down")
	assert.Empty(t, q.Clauses)
	require.Len(t, q.Words, 2)
	assert.False(t, q.Words[1].Negate)

	assert.True(t, ParseQuery("   ").Empty())
}

func TestParseCount(t *testing.T) {
	r, ok := parseCount(">=4")
	require.True(t, ok)
	assert.True(t, r.contains(4))
	assert.False(t, r.contains(3))

	r, ok = parseCount("<=2")
	require.True(t, ok)
	assert.True(t, r.contains(2))

	_, ok = parseCount("<0")
	assert.False(t, ok)
	_, ok = parseCount("5-2")
	assert.False(t, ok)
	_, ok = parseCount("-3")
	assert.False(t, ok)
}

// Matches must depend only on the alarm and settings, so concurrent readers
// agree with a sequential pass.
func TestFilter_PureUnderConcurrency(t *testing.T) {
	f := New(testIndex())
	f.SetQuery("Severity:Major,Critical NOT down")
	f.SetRootObjects([]int64{2})

	alarms := []alarm.Alarm{
		{ID: 1, Severity: alarm.SeverityMajor, SourceObjectID: 10, Message: "cpu high"},
		{ID: 2, Severity: alarm.SeverityMajor, SourceObjectID: 10, Message: "link down"},
		{ID: 3, Severity: alarm.SeverityMinor, SourceObjectID: 10, Message: "cpu high"},
		{ID: 4, Severity: alarm.SeverityCritical, SourceObjectID: 21, Message: "cpu high"},
	}
	want := []bool{true, false, false, false}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				for i, a := range alarms {
					if f.Matches(a) != want[i] {
						t.Errorf("alarm %d: got %v", a.ID, !want[i])
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

// An alarm changed from Minor to Major under a Major-only filter must count
// as touching the filter so the view is refreshed.
func TestFilter_SeverityPromotionTouches(t *testing.T) {
	f := New(testIndex())
	f.SetSeverityMask(SeverityBit(alarm.SeverityMajor))

	old := alarm.Alarm{ID: 7, Severity: alarm.SeverityMinor}
	next := alarm.Alarm{ID: 7, Severity: alarm.SeverityMajor}
	assert.False(t, f.Matches(old))
	assert.True(t, f.Matches(next))
}
