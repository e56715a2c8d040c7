package flows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBudget(t *testing.T) {
	for input, want := range map[string]float64{
		"1500":     1500,
		"0":        0,
		"100.50":   100.5,
		"100,50":   100.5,
		"  2500  ": 2500,
	} {
		got, err := ParseBudget(input)
		require.NoError(t, err, "input %q", input)
		assert.InDelta(t, want, got, 1e-9, "input %q", input)
	}

	for _, input := range []string{"", "abc", "-5", "10 000", "NaN", "Inf", "-Inf", "+Inf"} {
		_, err := ParseBudget(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input  string
		amount float64
		desc   string
	}{
		{"100", 100, ""},
		{"100.50", 100.5, ""},
		{"100,50", 100.5, ""},
		{"250,50 groceries", 250.5, "groceries"},
		{"300 обед в кафе", 300, "обед в кафе"},
		{"99, такси домой", 99, "такси домой"},
	}
	for _, tc := range cases {
		amount, desc, err := ParseAmount(tc.input)
		require.NoError(t, err, "input %q", tc.input)
		assert.InDelta(t, tc.amount, amount, 1e-9, "input %q", tc.input)
		assert.Equal(t, tc.desc, desc, "input %q", tc.input)
	}

	for _, input := range []string{"", "abc", "-5", "0", "-5 lunch", "NaN groceries", "Inf lunch", "+Inf"} {
		_, _, err := ParseAmount(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("29.02.2024")
	require.NoError(t, err, "leap year date must parse")
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.Local), d)

	d, err = ParseDate("01.12.2026")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Day())
	assert.Equal(t, time.December, d.Month())

	for _, input := range []string{
		"31.02.2024",
		"13.13.2024",
		"29.02.2023",
		"00.01.2024",
		"1.1",
		"сегодня",
		"",
	} {
		_, err := ParseDate(input)
		assert.Error(t, err, "input %q", input)
	}
}
