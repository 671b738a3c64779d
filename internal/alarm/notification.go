package alarm

import "time"

// Kind identifies a push notification.
type Kind int

const (
	KindNewAlarm Kind = iota + 1
	KindAlarmChanged
	KindAlarmTerminated
	KindAlarmDeleted
	KindBulkResolved
	KindBulkTerminated
)

var kindNames = map[Kind]string{
	KindNewAlarm:        "new_alarm",
	KindAlarmChanged:    "alarm_changed",
	KindAlarmTerminated: "alarm_terminated",
	KindAlarmDeleted:    "alarm_deleted",
	KindBulkResolved:    "bulk_resolved",
	KindBulkTerminated:  "bulk_terminated",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire code back to a Kind.
func ParseKind(code string) (Kind, bool) {
	for k, name := range kindNames {
		if name == code {
			return k, true
		}
	}
	return 0, false
}

// BulkStateChange carries the payload of the bulk notifications.
type BulkStateChange struct {
	IDs        []int64   `json:"ids"`
	UserID     int64     `json:"userId"`
	UserName   string    `json:"userName"`
	ChangeTime time.Time `json:"changeTime"`
}

// Notification is a single server push event.
type Notification struct {
	Kind  Kind
	Alarm Alarm
	Bulk  BulkStateChange
}

// Single reports whether the notification carries one alarm rather than a
// bulk id list.
func (n Notification) Single() bool {
	switch n.Kind {
	case KindNewAlarm, KindAlarmChanged, KindAlarmTerminated, KindAlarmDeleted:
		return true
	}
	return false
}
