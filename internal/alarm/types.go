package alarm

import (
	"strings"
	"time"
)

// State is the lifecycle state of an alarm.
type State int

const (
	StateOutstanding State = iota
	StateAcknowledged
	StateResolved
	StateTerminated
)

var stateNames = [...]string{"Outstanding", "Acknowledged", "Resolved", "Terminated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// ParseState resolves a state name case-insensitively.
func ParseState(value string) (State, bool) {
	v := strings.TrimSpace(value)
	for i, name := range stateNames {
		if strings.EqualFold(v, name) {
			return State(i), true
		}
	}
	return 0, false
}

// Severity is the alarm severity ordinal, 0 (normal) through 4 (critical).
type Severity int

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityMinor
	SeverityMajor
	SeverityCritical
)

// SeverityCount is the number of real severities.
const SeverityCount = 5

// ReminderTag is the sound tag used for outstanding-alarm reminders. It sits
// after the severity tags.
const ReminderTag = "REMINDER"

var severityTags = [...]string{"NORMAL", "WARNING", "MINOR", "MAJOR", "CRITICAL"}

// Tag returns the upper-case severity name used for sound configuration.
func (s Severity) Tag() string {
	if s < 0 || int(s) >= len(severityTags) {
		return "UNKNOWN"
	}
	return severityTags[s]
}

func (s Severity) String() string {
	tag := s.Tag()
	return tag[:1] + strings.ToLower(tag[1:])
}

// ParseSeverity resolves a severity name case-insensitively.
func ParseSeverity(value string) (Severity, bool) {
	v := strings.TrimSpace(value)
	for i, tag := range severityTags {
		if strings.EqualFold(v, tag) {
			return Severity(i), true
		}
	}
	return 0, false
}

// SoundTags lists every tag that can carry a sound: the severities followed by
// the reminder.
func SoundTags() []string {
	tags := make([]string, 0, len(severityTags)+1)
	tags = append(tags, severityTags[:]...)
	return append(tags, ReminderTag)
}

// HelpdeskState describes the link between an alarm and a helpdesk ticket.
type HelpdeskState int

const (
	HelpdeskIgnored HelpdeskState = iota
	HelpdeskOpen
	HelpdeskClosed
)

// Alarm is one version of a server alarm. Values are replaced wholesale on
// every update and never patched field by field.
type Alarm struct {
	ID             int64         `json:"id"`
	State          State         `json:"state"`
	Severity       Severity      `json:"severity"`
	SourceObjectID int64         `json:"sourceObjectId"`
	ZoneUIN        int64         `json:"zoneUin"`
	Message        string        `json:"message"`
	RepeatCount    int           `json:"repeatCount"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastChangeTime time.Time     `json:"lastChangeTime"`
	HelpdeskState  HelpdeskState `json:"helpdeskState"`
	HelpdeskRef    string        `json:"helpdeskRef"`
	CommentsCount  int           `json:"commentsCount"`
	EventCode      int           `json:"eventCode"`
	EventName      string        `json:"eventName"`
	AckByUser      string        `json:"ackByUser"`
	ResolvedByUser string        `json:"resolvedByUser"`
	Sticky         bool          `json:"sticky"`
	AckExpiresAt   time.Time     `json:"ackExpiresAt"`
}

// Resolved returns a copy of a moved to the resolved state by user at when.
func (a Alarm) Resolved(user string, when time.Time) Alarm {
	a.State = StateResolved
	a.ResolvedByUser = user
	if !when.IsZero() {
		a.LastChangeTime = when
	}
	return a
}

// IsOutstanding reports whether the alarm still awaits acknowledgement.
func (a Alarm) IsOutstanding() bool {
	return a.State == StateOutstanding
}
