package server

import (
	"fmt"
	"time"
)

// Transaction listing periods accepted by the transactions endpoint.
const (
	periodWeek  = "transactions_week"
	periodMonth = "transactions_month"
)

// periodStart maps a period tag to the inclusive lower bound of the window.
func periodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case periodWeek:
		return now.AddDate(0, 0, -7), nil
	case periodMonth:
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}
