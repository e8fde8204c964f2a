package areas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ParsesEmbeddedTable(t *testing.T) {
	tbl := Default()
	require.NotNil(t, tbl)
	assert.True(t, tbl.Known("Al Barsha South"))
}

func TestCanonical_AliasLookup(t *testing.T) {
	tbl := Default()

	tests := []struct {
		raw  string
		want string
	}{
		{"al barsha south fourth", "Al Barsha South"},
		{"AL BARSHA SOUTH FOURTH", "Al Barsha South"},
		{"  jvc  ", "Jumeirah Village Circle"},
		{"Marsa Dubai", "Dubai Marina"},
		{"مرسى دبي", "Dubai Marina"},
		{"dubai world central", "Dubai South"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, tbl.Canonical(tt.raw))
		})
	}
}

func TestCanonical_IdentityForCanonicalNames(t *testing.T) {
	tbl := Default()
	assert.Equal(t, "Business Bay", tbl.Canonical("business bay"))
	assert.Equal(t, "Palm Jumeirah", tbl.Canonical("Palm Jumeirah"))
}

func TestCanonical_UnknownNameCleanedUp(t *testing.T) {
	tbl := Default()

	got := tbl.Canonical("  some   new district ")
	assert.Equal(t, "Some New District", got)
	assert.False(t, tbl.Known("some new district"))
}

func TestCanonical_Empty(t *testing.T) {
	tbl := Default()
	assert.Equal(t, "", tbl.Canonical("   "))
}

func TestNewTable_BadYAML(t *testing.T) {
	_, err := NewTable([]byte("areas: [not: {valid"))
	require.Error(t, err)
}
