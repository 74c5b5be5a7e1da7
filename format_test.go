package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))

	thisYear := time.Date(time.Now().Year(), time.March, 5, 14, 7, 0, 0, time.UTC)
	assert.Equal(t, "Mar  5 14:07", formatTime(thisYear))

	old := time.Date(2019, time.November, 21, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "Nov 21  2019", formatTime(old))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0s", formatElapsed(200*time.Millisecond))
	assert.Equal(t, "2m5s", formatElapsed(2*time.Minute+4600*time.Millisecond))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))

	// Multi-byte runes are never split.
	assert.Equal(t, "ééé...", truncate("ééééééééé", 6))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "ID"}, [][]string{
		{"PII", "class-001"},
		{"Credit Card Number", "c2"},
	})

	want := "NAME                ID\n" +
		"PII                 class-001\n" +
		"Credit Card Number  c2\n"
	assert.Equal(t, want, buf.String())
}

func TestPrintTable_NoRows(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"A", "B"}, nil)
	assert.Equal(t, "A  B\n", buf.String())
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]int{"total": 3}))
	assert.Equal(t, "{\n  \"total\": 3\n}\n", buf.String())
}

func TestPrintJSON_EncodeError(t *testing.T) {
	err := printJSON(&bytes.Buffer{}, make(chan int))
	assert.ErrorContains(t, err, "encoding JSON output")
}

func TestStatusf_Quiet(t *testing.T) {
	var buf bytes.Buffer

	statusf(&buf, true, "hidden %d\n", 1)
	assert.Empty(t, buf.String())

	statusf(&buf, false, "shown %d\n", 2)
	assert.Equal(t, "shown 2\n", buf.String())
}
