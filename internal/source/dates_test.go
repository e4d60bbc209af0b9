package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate_ISO(t *testing.T) {
	got, err := NormalizeDate("2025-09-05")
	require.NoError(t, err)
	assert.Equal(t, "09/05/2025", got)
}

func TestNormalizeDate_ProviderForm(t *testing.T) {
	got, err := NormalizeDate("09/05/2025")
	require.NoError(t, err)
	assert.Equal(t, "09/05/2025", got)
}

func TestNormalizeDate_Idempotent(t *testing.T) {
	once, err := NormalizeDate("2025-08-24")
	require.NoError(t, err)
	twice, err := NormalizeDate(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeDate_Whitespace(t *testing.T) {
	got, err := NormalizeDate("  2025-08-24 ")
	require.NoError(t, err)
	assert.Equal(t, "08/24/2025", got)
}

func TestNormalizeDate_Invalid(t *testing.T) {
	for _, bad := range []string{"", "yesterday", "2025/09/05", "13/45/2025"} {
		_, err := NormalizeDate(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestCompactDate(t *testing.T) {
	got, err := compactDate("08/24/2025")
	require.NoError(t, err)
	assert.Equal(t, "082425", got)
}
