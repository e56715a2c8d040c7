package flows

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	errBadAmount = errors.New("invalid amount")
	errBadDate   = errors.New("invalid date")
)

// ParseBudget parses a non-negative balance figure. Both '.' and ',' are
// accepted as decimal separator.
func ParseBudget(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, errBadAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) || v < 0 {
		return 0, errBadAmount
	}
	return v, nil
}

// ParseAmount parses a "amount + free-text description" line. The leading
// whitespace-separated token is the amount (both '.' and ',' decimal
// separators accepted), the remainder is the description. The amount must be
// strictly positive; the sign is applied later from the transaction type.
func ParseAmount(s string) (float64, string, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, "", errBadAmount
	}

	tok := strings.ReplaceAll(fields[0], ",", ".")
	tok = strings.TrimSuffix(tok, ".")
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || !isFinite(v) || v <= 0 {
		return 0, "", errBadAmount
	}

	desc := strings.TrimSpace(strings.Join(fields[1:], " "))
	desc = strings.TrimSpace(strings.TrimPrefix(desc, ","))
	return v, desc, nil
}

// isFinite rejects NaN and infinities, which ParseFloat accepts as spelled-out
// "NaN"/"Inf" input but which no money field may carry.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseDate parses a manual date entry in dd.mm.yyyy form and validates that
// day, month, and year compose a real calendar date.
func ParseDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return time.Time{}, errBadDate
	}

	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, errBadDate
	}
	if year < 1970 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, errBadDate
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// time.Date normalizes overflow (31.02 becomes 02.03); reject it.
	if d.Day() != day || d.Month() != time.Month(month) || d.Year() != year {
		return time.Time{}, errBadDate
	}
	return d, nil
}
