package types

// FlashStates tracks what a board slot is currently doing.
type FlashStates int

const (
	Idle FlashStates = iota + 1
	Flashing
	Verifying
	Resetting
	NoResponse
	Failed
)

// BoardStates is the per-slot status reported by the farm service.
type BoardStates struct {
	Board       string      `json:"board"`
	Slot        int         `json:"slot"`
	Port        string      `json:"port"`
	Status      FlashStates `json:"status"`
	Image       string      `json:"image"`
	ImageSHA256 string      `json:"sha256"`
	Profile     string      `json:"profile"`
	LastFlashed int64       `json:"lastflashed"`
	FlashCount  int32       `json:"flashcount"`
	FailCount   int32       `json:"failcount"`
	Throughput  [3]float64  `json:"throughput"`
}

type FarmStatus struct {
	Boards []*BoardStates `json:"boards"`
	FarmUp bool           `json:"farmUp"`
	Time   int64          `json:"time"`
}

type StatusReply struct {
	Status *FarmStatus `json:"status"`
}
