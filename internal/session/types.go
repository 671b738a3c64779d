package session

import (
	"fmt"
	"time"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/objects"
)

// ServerInfo is the server policy relevant to the console.
type ServerInfo struct {
	AlarmListDisplayLimit    int   `json:"alarmListDisplayLimit"`
	MinViewRefreshIntervalMS int64 `json:"minViewRefreshInterval"`
	StrictAlarmStatusFlow    bool  `json:"strictAlarmStatusFlow"`
	ZoningEnabled            bool  `json:"zoningEnabled"`
	TimedAlarmAckEnabled     bool  `json:"timedAlarmAckEnabled"`
	HelpdeskLinkActive       bool  `json:"helpdeskLinkActive"`
}

// MinViewRefreshInterval returns the server's refresh floor as a duration.
func (s ServerInfo) MinViewRefreshInterval() time.Duration {
	if s.MinViewRefreshIntervalMS <= 0 {
		return 0
	}
	return time.Duration(s.MinViewRefreshIntervalMS) * time.Millisecond
}

// AlarmListResponse is the body of GET /api/alarms.
type AlarmListResponse struct {
	Alarms []alarm.Alarm `json:"alarms"`
}

// ObjectTreeResponse is the body of GET /api/objects.
type ObjectTreeResponse struct {
	Objects []objects.Object `json:"objects"`
	Zones   []objects.Zone   `json:"zones"`
}

type acknowledgeRequest struct {
	Sticky  bool  `json:"sticky"`
	Timeout int64 `json:"timeout"` // seconds, 0 = no expiry
}

type bulkRequest struct {
	IDs []int64 `json:"ids"`
}

// BulkResponse is the body returned by bulk resolve and terminate.
type BulkResponse struct {
	Failures map[int64]int `json:"failures"`
}

// Frame is one notification as sent over the push transports.
type Frame struct {
	Code  string                 `json:"code"`
	Alarm *alarm.Alarm           `json:"alarm,omitempty"`
	Bulk  *alarm.BulkStateChange `json:"bulk,omitempty"`
}

// Notification converts the frame to its domain form.
func (f Frame) Notification() (alarm.Notification, error) {
	kind, ok := alarm.ParseKind(f.Code)
	if !ok {
		return alarm.Notification{}, fmt.Errorf("unknown notification code %q", f.Code)
	}
	n := alarm.Notification{Kind: kind}
	switch kind {
	case alarm.KindBulkResolved, alarm.KindBulkTerminated:
		if f.Bulk == nil {
			return alarm.Notification{}, fmt.Errorf("%s frame without bulk payload", f.Code)
		}
		n.Bulk = *f.Bulk
	default:
		if f.Alarm == nil {
			return alarm.Notification{}, fmt.Errorf("%s frame without alarm payload", f.Code)
		}
		n.Alarm = *f.Alarm
	}
	return n, nil
}

// FrameFor builds the wire frame for n.
func FrameFor(n alarm.Notification) Frame {
	f := Frame{Code: n.Kind.String()}
	if n.Single() {
		a := n.Alarm
		f.Alarm = &a
	} else {
		b := n.Bulk
		f.Bulk = &b
	}
	return f
}
