package source

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const providerDateLayout = "01/02/2006"

// NormalizeDate converts a race date into the provider's MM/DD/YYYY form.
// It accepts ISO (YYYY-MM-DD) and provider (MM/DD/YYYY) input and is
// idempotent: normalizing an already-normalized date returns it unchanged.
func NormalizeDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", providerDateLayout} {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t.Format(providerDateLayout), nil
		}
	}
	return "", eris.Errorf("unrecognized race date %q, want YYYY-MM-DD or MM/DD/YYYY", s)
}

// compactDate renders a normalized MM/DD/YYYY date as MMDDYY for static
// entry page filenames.
func compactDate(normalized string) (string, error) {
	t, err := time.Parse(providerDateLayout, normalized)
	if err != nil {
		return "", eris.Wrapf(err, "compact date %q", normalized)
	}
	return t.Format("010206"), nil
}
