package entity

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SignalDirection is the traded side of a signal.
type SignalDirection string

const (
	DirectionLong    SignalDirection = "LONG"
	DirectionShort   SignalDirection = "SHORT"
	DirectionUnknown SignalDirection = "UNKNOWN"
)

// SignalStatus is the lifecycle status of a signal. Transitions beyond
// ACTIVE are owned by an external evaluator; this service only preserves
// the value across updates.
type SignalStatus string

const (
	StatusActive SignalStatus = "ACTIVE"
	StatusHitTP  SignalStatus = "HIT_TP"
	StatusHitSL  SignalStatus = "HIT_SL"
)

// PairUnknown is the sentinel pair for trusted sources whose message did not
// yield a resolvable symbol.
const PairUnknown = "UNKNOWN"

// EntryMarket is the sentinel entry for market-price signals.
const EntryMarket = "Market"

// Signal is a structured trade call extracted from a feed message.
type Signal struct {
	ID         string                      `gorm:"primaryKey" json:"id"`
	SourceID   int64                       `json:"source_id"`
	SourceName string                      `json:"source_name"`
	MessageID  int64                       `json:"message_id"`
	Pair       string                      `gorm:"index" json:"pair"`
	Direction  SignalDirection             `json:"direction"`
	Entry      string                      `json:"entry"`
	Targets    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"targets"`
	StopLoss   string                      `json:"stop_loss"`
	Leverage   string                      `json:"leverage"`
	RawText    string                      `json:"raw_text"`
	CreatedAt  time.Time                   `gorm:"index:idx_signals_created_at,sort:desc" json:"created_at"`
	IsTrusted  bool                        `json:"is_trusted"`
	Status     SignalStatus                `gorm:"index" json:"status"`
	HitTargets datatypes.JSONSlice[int64]  `gorm:"type:jsonb" json:"hit_targets"`
}

// TableName overrides the gorm table name.
func (Signal) TableName() string {
	return "signals"
}

// SignalID builds the deterministic record id for a message.
func SignalID(sourceID, messageID int64) string {
	return fmt.Sprintf("%d:%d", sourceID, messageID)
}

// StoreStats holds aggregate signal counts.
type StoreStats struct {
	Total   int64   `json:"total"`
	Active  int64   `json:"active"`
	HitTP   int64   `json:"hit_tp"`
	HitSL   int64   `json:"hit_sl"`
	WinRate float64 `json:"win_rate"`
}
