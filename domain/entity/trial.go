package entity

const (
	FieldId        = "id"
	FieldPolicy    = "policy"
	FieldViolated  = "violated"
	FieldCreatedAt = "created_at"
)

// Trial is one race of Threads goroutines against a fresh initializer.
type Trial struct {
	Id             uint64  `json:"id" gorm:"primaryKey"`
	Policy         string  `json:"policy" gorm:"column:policy;index"`
	Threads        int     `json:"threads" gorm:"column:threads"`
	DelayMs        int64   `json:"delay_ms" gorm:"column:delay_ms"`
	Identities     []int64 `json:"identities" gorm:"column:identities;serializer:json"` // one per caller, in caller order
	Distinct       int     `json:"distinct" gorm:"column:distinct_count"`
	Incomplete     int64   `json:"incomplete" gorm:"column:incomplete"` // callers that saw a partially built instance
	Constructions  int64   `json:"constructions" gorm:"column:constructions"`
	ReadyBeforeGet bool    `json:"ready_before_get" gorm:"column:ready_before_get"`
	Violated       bool    `json:"violated" gorm:"column:violated"` // Distinct > 1 or Incomplete > 0
	Correct        bool    `json:"correct" gorm:"column:correct"`   // whether the policy promises a single instance
	CostMs         int64   `json:"cost_ms" gorm:"column:cost_ms"`
	NodeId         string  `json:"node_id" gorm:"column:node_id"`
	CreatedAt      int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"` // time milli
}

func (t *Trial) TableName() string {
	return "trial"
}

// Expected reports whether the outcome is what the policy promises: a single
// instance for correct policies, anything for the broken one.
func (t *Trial) Expected() bool {
	return !t.Correct || !t.Violated
}
