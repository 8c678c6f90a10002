package seed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCatalog(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	input := `[
		{"id": "p1", "name": "Espresso Machine", "price": {"retail": "10.00", "wholesale": 7.5}, "stock": 3, "category": "Kitchen"},
		{"id": "p2", "name": "Milk Frother", "price": {"retail": 4, "wholesale": 3}, "active": false, "created_at": "2023-01-01T00:00:00Z"}
	]`

	entries, err := ReadCatalog(strings.NewReader(input), now)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "p1", entries[0].ID)
	assert.True(t, entries[0].Active)
	assert.Equal(t, "7.5", entries[0].Price.Wholesale.String())
	assert.Equal(t, now, entries[0].CreatedAt)

	assert.False(t, entries[1].Active)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), entries[1].CreatedAt)
}

func TestReadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{"not json", `{`, "decode catalog"},
		{"missing id", `[{"name": "x"}]`, "entry 1: id is required"},
		{"duplicate id", `[{"id": "a"}, {"id": "a"}]`, `entry 2: duplicate id "a"`},
		{"negative price", `[{"id": "a", "price": {"retail": -1}}]`, `entry "a": price must not be negative`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCatalog(strings.NewReader(tt.input), time.Now())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}
