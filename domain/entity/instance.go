package entity

import "time"

// InstanceMarker is written last by the instance constructor. A reader that sees
// any other value has observed a partially built instance.
const InstanceMarker uint64 = 0xC0FFEE

// Instance is the shared value handed out by an initializer.
type Instance struct {
	Id        int64     `json:"id"`
	Seq       int64     `json:"seq"` // 1 for the first instance a factory builds
	CreatedAt time.Time `json:"created_at"`
	Marker    uint64    `json:"marker"`
}

// Complete reports whether every field the constructor sets is visible.
func (i *Instance) Complete() bool {
	return i != nil && i.Marker == InstanceMarker && i.Id != 0 && i.Seq > 0 && !i.CreatedAt.IsZero()
}
