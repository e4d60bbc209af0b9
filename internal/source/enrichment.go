package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

var (
	comboWinRe    = regexp.MustCompile(`(?i)Jockey\s*/\s*Trainer\s*Win\s*%\s*(\d{1,3})%`)
	speedFigureRe = regexp.MustCompile(`(?i)Speed\s*Fig(?:ure)?s?\s*:?\s*(\d{1,3})`)
	earningsRe    = regexp.MustCompile(`(?i)\$([0-9,]+)\s+per\s+Start`)
	programAttrRe = regexp.MustCompile(`(?i)\bprogram\s*#?\s*(\d{1,2}[A-Z]?)`)
)

// enrichmentURL builds the per-race picks page address. The date must be
// normalized MM/DD/YYYY; it rides in the query string URL-encoded.
func (c *Client) enrichmentURL(track, date string, raceNo int) string {
	return fmt.Sprintf("%s/smartPick/smartPick.cfm/?trackId=%s&raceDate=%s&country=USA&dayEvening=D&raceNumber=%d",
		strings.TrimRight(c.base.String(), "/"), strings.ToUpper(track), url.QueryEscape(date), raceNo)
}

// FetchEnrichment retrieves the picks page for one race. A challenge page
// triggers a single solve-and-retry through the captcha gate; a second
// challenge is surfaced as ChallengeError for the breaker to count. A race
// that has already been run comes back as an empty slice and nil error.
func (c *Client) FetchEnrichment(ctx context.Context, track, date string, raceNo int) ([]model.EnrichmentEntry, error) {
	if err := c.Bootstrap(ctx); err != nil {
		return nil, err
	}

	pageURL := c.enrichmentURL(track, date, raceNo)
	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if IsChallengePage(body) {
		body, err = c.solveAndRetry(ctx, pageURL, body)
		if err != nil {
			return nil, err
		}
	}

	if isNoDataPage(body) {
		zap.L().Info("no enrichment data for race",
			zap.String("track", track), zap.Int("race", raceNo))
		return []model.EnrichmentEntry{}, nil
	}

	entries, err := c.parseEnrichment(body, raceNo)
	if err != nil {
		ref := c.saveSnapshot(fmt.Sprintf("enrichment_r%d", raceNo), body)
		return nil, &resilience.ParseError{PageURL: pageURL, SnapshotRef: ref, Err: err}
	}
	return entries, nil
}

// solveAndRetry runs the captcha gate once and re-requests the page with
// the solved token. Exactly one attempt: if the retried page is still a
// challenge, the caller gets ChallengeError.
func (c *Client) solveAndRetry(ctx context.Context, pageURL, challengeBody string) (string, error) {
	if c.gate == nil {
		return "", &resilience.ChallengeError{PageURL: pageURL}
	}
	siteKey := ExtractSiteKey(challengeBody)
	if siteKey == "" {
		return "", &resilience.ChallengeError{PageURL: pageURL}
	}

	token, err := c.gate.Solve(ctx, siteKey, pageURL)
	if err != nil {
		return "", eris.Wrap(err, "solve challenge")
	}
	zap.L().Info("challenge solved, retrying page", zap.String("url", pageURL))

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"h-captcha-response":   token,
			"g-recaptcha-response": token,
		}).
		Post(pageURL)
	if err != nil {
		return "", &resilience.TransientError{Err: eris.Wrapf(err, "retry %s", pageURL)}
	}
	if resp.IsError() {
		return "", c.statusError(resp.StatusCode(), pageURL)
	}

	body := string(resp.Body())
	if IsChallengePage(body) {
		return "", &resilience.ChallengeError{PageURL: pageURL}
	}
	return body, nil
}

// parseEnrichment extracts the per-horse picks. Each horse appears as a
// profile link; the combo win percentage, speed figure and earnings per
// start live in the surrounding markup, so the parser climbs a few
// ancestors to find them.
func (c *Client) parseEnrichment(body string, raceNo int) ([]model.EnrichmentEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse enrichment html")
	}

	byName := map[string]model.EnrichmentEntry{}
	var order []string

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "Results.cfm") || !strings.Contains(href, "type=Horse") {
			return
		}
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}

		entry := model.EnrichmentEntry{
			RaceNumber: raceNo,
			HorseName:  name,
			ProfileURL: RepairProfileURL(c.absoluteURL(href)),
		}

		node := a
		for depth := 0; depth < 3 && node.Length() > 0; depth++ {
			node = node.Parent()
			txt := node.Text()
			if entry.ComboWinPct == 0 {
				if m := comboWinRe.FindStringSubmatch(txt); m != nil {
					pct, _ := strconv.Atoi(m[1])
					entry.ComboWinPct = float64(pct)
				}
			}
			if entry.SpeedFigure == 0 {
				if m := speedFigureRe.FindStringSubmatch(txt); m != nil {
					fig, _ := strconv.Atoi(m[1])
					entry.SpeedFigure = float64(fig)
				}
			}
			if entry.EarningsPerStart == 0 {
				if m := earningsRe.FindStringSubmatch(txt); m != nil {
					dollars, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
					entry.EarningsPerStart = float64(dollars)
				}
			}
			if entry.Program == "" {
				if m := programAttrRe.FindStringSubmatch(txt); m != nil {
					entry.Program = m[1]
				}
			}
		}

		prev, seen := byName[name]
		if !seen {
			byName[name] = entry
			order = append(order, name)
			return
		}
		// Keep the richer duplicate.
		if prev.ComboWinPct == 0 && entry.ComboWinPct != 0 {
			byName[name] = entry
		}
	})

	if len(order) == 0 {
		return nil, eris.New("no horse entries found on picks page")
	}

	entries := make([]model.EnrichmentEntry, 0, len(order))
	for _, name := range order {
		entries = append(entries, byName[name])
	}
	return entries, nil
}
