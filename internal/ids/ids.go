// Package ids generates locally-unique identifiers for client orders, grids,
// strategy workers and backtest jobs.
package ids

import "github.com/google/uuid"

// NewClientOrderID returns a locally-unique client order id.
func NewClientOrderID() string {
	return "co_" + uuid.NewString()
}

// NewGridID returns a locally-unique grid worker id.
func NewGridID() string {
	return "grid_" + uuid.NewString()
}

// NewStrategyID returns a locally-unique strategy worker id.
func NewStrategyID() string {
	return "strat_" + uuid.NewString()
}

// NewBacktestJobID returns a locally-unique backtest job id.
func NewBacktestJobID() string {
	return "bt_" + uuid.NewString()
}

// NewFillID returns a locally-unique synthetic fill id (used by the paper
// exchange, which has no upstream exchange assigning one).
func NewFillID() string {
	return "fill_" + uuid.NewString()
}

// NewAlertID returns a locally-unique alert id.
func NewAlertID() string {
	return "alert_" + uuid.NewString()
}
