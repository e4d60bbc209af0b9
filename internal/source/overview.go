package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

var (
	raceHeadingRe = regexp.MustCompile(`(?i)\bRace\s+(\d{1,2})\b`)
	entryLinkRe   = regexp.MustCompile(`[A-Z]{2,3}\d{6}[A-Z]{3}(\d{1,2})-EQB\.html`)
	programRe     = regexp.MustCompile(`^\d{1,2}[A-Z]?$`)

	postTimeRe = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*[AP]M)\b`)
	distanceRe = regexp.MustCompile(`(?i)\b((?:about\s+)?(?:one|\d+(?:\s+\d/\d+)?(?:\.\d+)?)\s*(?:furlongs?|miles?)(?:\s+and\s+\d+\s+yards)?)\b`)
	purseRe    = regexp.MustCompile(`(?i)purse:?\s*(\$[\d,]+)`)
	surfaceRe  = regexp.MustCompile(`(?i)\b(all weather|synthetic|turf|dirt)\b`)
)

// raceTypes in match order: compound names before their substrings.
var raceTypes = []string{
	"Maiden Special Weight",
	"Maiden Claiming",
	"Allowance Optional Claiming",
	"Starter Allowance",
	"Allowance",
	"Claiming",
	"Handicap",
	"Stakes",
	"Maiden",
	"Trial",
}

// overviewURL builds the all-races card page address, e.g.
// /static/entry/DMR082425USA-EQB.html?SAP=viewe2.
func (c *Client) overviewURL(track, date string) (string, error) {
	compact, err := compactDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/static/entry/%s%sUSA-EQB.html?SAP=viewe2",
		strings.TrimRight(c.base.String(), "/"), strings.ToUpper(track), compact), nil
}

// FetchOverview retrieves and parses the entry card for one track and date.
// The date must already be normalized to MM/DD/YYYY.
func (c *Client) FetchOverview(ctx context.Context, track, date string) (*model.RaceCard, error) {
	pageURL, err := c.overviewURL(track, date)
	if err != nil {
		return nil, err
	}

	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	card, err := c.parseOverview(body, track, date)
	if err != nil {
		ref := c.saveSnapshot("overview_"+strings.ToUpper(track), body)
		return nil, &resilience.ParseError{PageURL: pageURL, SnapshotRef: ref, Err: err}
	}
	return card, nil
}

// parseOverview walks the card page in document order, tracking the current
// "Race N" heading and attaching horse profile links beneath it. When the
// per-race entry links on the page outnumber the parsed races, the race
// count is re-derived from those links so no race silently disappears.
func (c *Client) parseOverview(body, track, date string) (*model.RaceCard, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse overview html")
	}

	races := map[int]*model.Race{}
	current := 0

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) != "a" {
			if m := raceHeadingRe.FindStringSubmatch(ownText(sel)); m != nil {
				n, _ := strconv.Atoi(m[1])
				current = ensureRace(races, n)
				applyRaceMeta(races[n], headingContext(sel))
			}
			return
		}

		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, "Results.cfm") || !strings.Contains(href, "type=Horse") {
			return
		}
		name := strings.TrimSpace(sel.Text())
		if name == "" || current == 0 {
			return
		}
		race := races[current]
		if hasHorse(race, name) {
			return
		}
		program := rowProgram(sel, len(race.Horses)+1)
		race.Horses = append(race.Horses, model.Horse{
			Name:         name,
			Program:      program,
			PostPosition: programPosition(program, len(race.Horses)+1),
			Jockey:       rowPersonLink(sel, "J"),
			Trainer:      rowPersonLink(sel, "T"),
			ProfileURL:   RepairProfileURL(c.absoluteURL(href)),
		})
	})

	if len(races) == 0 {
		return nil, eris.New("no races found on card page")
	}

	// One-shot re-derivation from the per-race entry links.
	if derived := deriveRaceCount(doc); derived > len(races) {
		zap.L().Info("re-derived race count from entry links",
			zap.Int("parsed", len(races)), zap.Int("derived", derived))
		for n := 1; n <= derived; n++ {
			ensureRace(races, n)
		}
	}

	numbers := make([]int, 0, len(races))
	for n := range races {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	card := &model.RaceCard{Track: strings.ToUpper(track), Date: date}
	for _, n := range numbers {
		card.Races = append(card.Races, *races[n])
	}
	return card, nil
}

// headingContext returns the text surrounding a race heading: the heading's
// own element, widened to its parent while the parent stays a single
// heading-sized block rather than the whole card.
func headingContext(sel *goquery.Selection) string {
	txt := collapseSpaces(sel.Text())
	node := sel
	for depth := 0; depth < 2; depth++ {
		node = node.Parent()
		if node.Length() == 0 {
			break
		}
		parentTxt := collapseSpaces(node.Text())
		if len(parentTxt) > 300 {
			break
		}
		txt = parentTxt
	}
	return txt
}

// applyRaceMeta fills the race's descriptive fields from the heading
// context. Fields already set are kept; headings repeat on some cards.
func applyRaceMeta(race *model.Race, txt string) {
	if txt == "" {
		return
	}
	if race.PostTime == "" {
		if m := postTimeRe.FindStringSubmatch(txt); m != nil {
			race.PostTime = strings.ToUpper(m[1])
		}
	}
	if race.Distance == "" {
		if m := distanceRe.FindStringSubmatch(txt); m != nil {
			race.Distance = strings.TrimSpace(m[1])
		}
	}
	if race.Surface == "" {
		if m := surfaceRe.FindStringSubmatch(txt); m != nil {
			switch strings.ToLower(m[1]) {
			case "turf":
				race.Surface = "Turf"
			case "dirt":
				race.Surface = "Dirt"
			case "all weather":
				race.Surface = "All Weather"
			case "synthetic":
				race.Surface = "Synthetic"
			}
		}
	}
	if race.Purse == "" {
		if m := purseRe.FindStringSubmatch(txt); m != nil {
			race.Purse = m[1]
		}
	}
	if race.RaceType == "" {
		lower := strings.ToLower(txt)
		for _, rt := range raceTypes {
			if strings.Contains(lower, strings.ToLower(rt)) {
				race.RaceType = rt
				break
			}
		}
	}
	if race.Conditions == "" && race.RaceType != "" {
		race.Conditions = txt
	}
}

// programPosition derives the post position from the program number's
// digits; coupled-entry letters (1A) share the digit.
func programPosition(program string, fallback int) int {
	digits := strings.TrimRight(program, "ABCX")
	if n, err := strconv.Atoi(digits); err == nil && n > 0 {
		return n
	}
	return fallback
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ensureRace(races map[int]*model.Race, n int) int {
	if _, ok := races[n]; !ok {
		races[n] = &model.Race{Number: n}
	}
	return n
}

func hasHorse(race *model.Race, name string) bool {
	for _, h := range race.Horses {
		if h.Name == name {
			return true
		}
	}
	return false
}

// rowProgram reads the program number from the first cell of the anchor's
// table row, falling back to the entry's position within the race.
func rowProgram(sel *goquery.Selection, fallback int) string {
	row := sel.Closest("tr")
	if row.Length() > 0 {
		first := strings.TrimSpace(row.Find("td").First().Text())
		if programRe.MatchString(first) {
			return first
		}
	}
	return strconv.Itoa(fallback)
}

// rowPersonLink pulls the jockey or trainer name from a People.cfm link in
// the same table row. kind is "J" or "T".
func rowPersonLink(sel *goquery.Selection, kind string) string {
	row := sel.Closest("tr")
	if row.Length() == 0 {
		return ""
	}
	var name string
	row.Find("a").Each(func(_ int, a *goquery.Selection) {
		if name != "" {
			return
		}
		href, _ := a.Attr("href")
		if !strings.Contains(href, "People.cfm") {
			return
		}
		if u, err := url.Parse(href); err == nil && u.Query().Get("rbt") == kind {
			name = strings.TrimSpace(a.Text())
		}
	})
	return name
}

// deriveRaceCount counts distinct race numbers among the per-race entry
// page links.
func deriveRaceCount(doc *goquery.Document) int {
	seen := map[int]bool{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if m := entryLinkRe.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				seen[n] = true
			}
		}
	})
	return len(seen)
}

// ownText returns the element's direct text without descending into child
// anchors, keeping race headings from matching horse rows.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
