package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsChallengePage(t *testing.T) {
	assert.True(t, IsChallengePage(`<html><script src="/_Incapsula_Resource?x=1"></script></html>`))
	assert.True(t, IsChallengePage(`<div class="h-captcha" data-sitekey="abc"></div>`))
	assert.True(t, IsChallengePage("Access Denied - Imperva"))
	assert.False(t, IsChallengePage("<html><body>Race 1 entries</body></html>"))
}

func TestExtractSiteKey(t *testing.T) {
	body := `<div class="h-captcha" data-sitekey="10000000-ffff-ffff-ffff-000000000001"></div>`
	assert.Equal(t, "10000000-ffff-ffff-ffff-000000000001", ExtractSiteKey(body))
	assert.Empty(t, ExtractSiteKey("<html>no widget here</html>"))
}

func TestIsNoDataPage(t *testing.T) {
	assert.True(t, isNoDataPage("There are No Entries for this race."))
	assert.True(t, isNoDataPage("SmartPick is Not Available for this race"))
	assert.False(t, isNoDataPage("<html><body>picks</body></html>"))
}
