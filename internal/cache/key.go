package cache

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind names a family of cached reads that invalidate together.
type Kind string

const (
	KindHistory         Kind = "history"
	KindDetection       Kind = "detection"
	KindInsights        Kind = "insights"
	KindAdminStatistics Kind = "admin.statistics"
	KindAdminDetections Kind = "admin.detections"
	KindAdminTimeline   Kind = "admin.timeline"
	KindAdminUsers      Kind = "admin.users"
)

// AdminKinds are derived from every user's detections. User listings carry
// per-user detection counts, so they are among them.
var AdminKinds = []Kind{KindAdminStatistics, KindAdminDetections, KindAdminTimeline, KindAdminUsers}

// AdminUserKey and AdminDetectionKey name the admin detail views. They share
// the list kind so a list invalidation also covers the details.
func AdminUserKey(id int64) Key {
	return NewKey(KindAdminUsers, "detail", strconv.FormatInt(id, 10))
}

func AdminDetectionKey(id int64) Key {
	return NewKey(KindAdminDetections, "detail", strconv.FormatInt(id, 10))
}

type Key struct {
	Kind   Kind
	Params string
}

// NewKey joins params into a stable key, e.g. NewKey(KindInsights, "101").
func NewKey(kind Kind, params ...string) Key {
	return Key{Kind: kind, Params: strings.Join(params, "/")}
}

func (k Key) String() string {
	if k.Params == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Params
}

// Entry is one cached read. FetchedAt is when the fetch that produced Value
// started, so an invalidation racing the fetch leaves the entry stale.
type Entry struct {
	Key       Key             `json:"key"`
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale"`
}
