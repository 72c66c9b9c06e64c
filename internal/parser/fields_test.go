package parser

import (
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMachineCodes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"comma separated", "M1,M2,M3", []string{"M1", "M2", "M3"}},
		{"ideographic comma", "M1、M2", []string{"M1", "M2"}},
		{"semicolon and whitespace", "M1; M2  M3", []string{"M1", "M2", "M3"}},
		{"dedupe preserves order", "M2,M1,M2", []string{"M2", "M1"}},
		{"lowercase normalized", "m1,m2", []string{"M1", "M2"}},
		{"empty tokens rejected", "M1,,M2,", []string{"M1", "M2"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, splitMachineCodes(c.in))
		})
	}
}

func TestParseQuantity(t *testing.T) {
	q, err := parseQuantity("500")
	require.NoError(t, err)
	assert.Equal(t, 500, q)

	q, err = parseQuantity("1,234")
	require.NoError(t, err)
	assert.Equal(t, 1234, q)

	_, err = parseQuantity("abc")
	assert.Error(t, err)

	_, err = parseQuantity("")
	assert.Error(t, err)
}

func TestParseDateRangeFullYear(t *testing.T) {
	start, end, err := parseDateRange("2024/11/01 - 2024/11/02", dateRangeDefaults{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 11, 2, 23, 59, 59, 0, time.UTC), end)
}

func TestParseDateRangeMonthlyDefaultYear(t *testing.T) {
	start, end, err := parseDateRange("11.1 - 11.2", dateRangeDefaults{
		Cadence:  model.CadenceMonthly,
		PlanYear: 2024,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 11, 2, 23, 59, 59, 0, time.UTC), end)
}

func TestParseDateRangeRejectsInverted(t *testing.T) {
	_, _, err := parseDateRange("2024/11/05 - 2024/11/01", dateRangeDefaults{})
	assert.Error(t, err)
}

func TestNormalizeArticle(t *testing.T) {
	assert.Equal(t, "ABC 123", normalizeArticle("  abc   123  "))
}
