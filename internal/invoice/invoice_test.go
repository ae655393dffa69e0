package invoice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLatest_MaxIssueDate(t *testing.T) {
	records := []Record{
		{ID: "R100", IssueDate: day(2024, time.December, 31)},
		{ID: "R099", IssueDate: day(2025, time.January, 31)},
		{ID: "R098", IssueDate: day(2024, time.November, 30)},
	}

	got, ok := Latest(records)
	require.True(t, ok)
	assert.Equal(t, "R099", got.ID)
}

func TestLatest_TieBrokenByGreatestNumericID(t *testing.T) {
	d := day(2025, time.January, 31)
	records := []Record{
		{ID: "R9", IssueDate: d},
		{ID: "R10", IssueDate: d},
		{ID: "R2", IssueDate: d},
	}

	got, ok := Latest(records)
	require.True(t, ok)
	assert.Equal(t, "R10", got.ID, "numeric, not lexical, comparison")
}

func TestLatest_Empty(t *testing.T) {
	_, ok := Latest(nil)
	assert.False(t, ok)
}

func TestCompareIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"R10", "R9", 1},
		{"R0009", "R9", 0},
		{"100", "99", 1},
		{"abc", "R1", -1},
		{"abc", "abd", -1},
		{"12345678901234567890", "12345678901234567889", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareIDs(tt.a, tt.b))
		})
	}
}

func TestRecord_JSONUsesISODate(t *testing.T) {
	r := Record{ID: "R1", IssueDate: day(2025, time.January, 31), Total: 1184, Currency: "EUR", Status: StatusPaid}

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"issue_date":"2025-01-31"`)
	assert.Contains(t, string(b), `"total_minor":1184`)

	var back Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, r, back)
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, Page{Number: 1, PerPage: 50}, NewPage(1, 100))
	assert.Equal(t, Page{Number: 1, PerPage: DefaultPerPage}, NewPage(0, 0))
	assert.Equal(t, Page{Number: 3, PerPage: 10}, NewPage(3, 10))
}

func TestCredentials_NeverPrintSecrets(t *testing.T) {
	c := Credentials{Email: "ops@example.com", Password: "hunter2", TOTPSecret: "JBSWY3DPEHPK3PXP"}

	for _, s := range []string{c.String(), c.GoString(), c.LogValue().String()} {
		assert.NotContains(t, s, "hunter2")
		assert.NotContains(t, s, "JBSWY3DPEHPK3PXP")
		assert.NotContains(t, s, "example.com")
	}
	assert.True(t, c.HasSecondFactor())
	assert.True(t, c.Valid())
	assert.False(t, Credentials{Email: "x@y"}.Valid())
}

func TestDocumentSummary_JSONOmitsUnstatedFields(t *testing.T) {
	total := int64(1184)
	b, err := json.Marshal(DocumentSummary{InvoiceID: "R1", IssueDate: day(2025, 1, 31), Total: &total, Currency: "EUR"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "2025-01-31", got["issue_date"])
	assert.EqualValues(t, 1184, got["total_minor"])
	assert.NotContains(t, got, "net_minor")
	assert.NotContains(t, got, "vat_minor")

	b, err = json.Marshal(DocumentSummary{InvoiceID: "R1"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "issue_date")
}
