package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aichat/internal/model"
)

func TestHistoryPageOfTrimsProbeRow(t *testing.T) {
	rows := []model.Message{
		{ID: "m-1"}, {ID: "m-2"}, {ID: "m-3"},
	}

	page := historyPageOf(rows, 2)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	// Rows are chronological; the oldest row was the probe.
	assert.Equal(t, "m-2", page.Messages[0].ID)
	assert.Equal(t, "m-3", page.Messages[1].ID)
}

func TestHistoryPageOfExactPage(t *testing.T) {
	rows := []model.Message{{ID: "m-1"}, {ID: "m-2"}}

	page := historyPageOf(rows, 2)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Messages, 2)
}

func TestHistoryPageOfEmpty(t *testing.T) {
	page := historyPageOf(nil, 50)
	assert.False(t, page.HasMore)
	assert.NotNil(t, page.Messages)
	assert.Empty(t, page.Messages)
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "hello", sanitizeTitle("  hello  "))
	assert.Equal(t, "", sanitizeTitle("   "))

	long := strings.Repeat("é", 250)
	assert.Equal(t, strings.Repeat("é", 200), sanitizeTitle(long))
}
