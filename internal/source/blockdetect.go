package source

import (
	"regexp"
	"strings"
)

var siteKeyRe = regexp.MustCompile(`data-sitekey="([^"]+)"`)

// challengeMarkers are substrings that identify an anti-bot interstitial
// rather than real page content.
var challengeMarkers = []string{
	"incapsula",
	"_incapsula_resource",
	"imperva",
	"hcaptcha",
	"h-captcha",
	"access denied",
}

// IsChallengePage reports whether the body is a bot-protection challenge
// instead of the requested content.
func IsChallengePage(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ExtractSiteKey pulls the captcha site key out of a challenge page.
// Returns "" when the page carries no solvable widget.
func ExtractSiteKey(body string) string {
	m := siteKeyRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// isNoDataPage reports whether an enrichment page indicates the race has
// already been run or has no published picks. Distinct from a challenge:
// this is a valid empty result.
func isNoDataPage(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "no entries") ||
		strings.Contains(lower, "not available") ||
		strings.Contains(lower, "requested content could not be located")
}
