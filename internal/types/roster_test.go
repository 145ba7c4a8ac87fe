package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "amonra st brown", NormalizeName("Amon-Ra St. Brown"))
	assert.Equal(t, "odell beckham", NormalizeName("Odell Beckham Jr."))
	assert.Equal(t, "patrick mahomes", NormalizeName("  Patrick  Mahomes II "))
	assert.Equal(t, "dj moore", NormalizeName("D.J. Moore"))
	assert.Equal(t, "", NormalizeName("   "))
	// 同一球员跨数据源的不同写法归一到同一键。
	assert.Equal(t, NormalizeName("Ken Walker III"), NormalizeName("ken walker"))
}

func TestRosterContains(t *testing.T) {
	snap := RosterSnapshot{Players: []PlayerRef{
		{Name: "Amon-Ra St. Brown", Position: "WR"},
		{Name: "Odell Beckham Jr.", Position: "WR"},
	}}
	assert.True(t, snap.Contains("AMON-RA ST BROWN"))
	assert.True(t, snap.Contains("Odell Beckham"))
	assert.False(t, snap.Contains("CeeDee Lamb"))
	assert.False(t, snap.Contains(""))
}
