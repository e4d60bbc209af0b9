package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

var (
	missingAmpRefnoRe    = regexp.MustCompile(`refno=(\d+)registry=`)
	missingAmpRegistryRe = regexp.MustCompile(`registry=([A-Za-z])rbt=`)
	refnoRegistryRe      = regexp.MustCompile(`refno=(\d+).*?registry=([A-Za-z])`)
	dateCellRe           = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`)
	digitsRe             = regexp.MustCompile(`[^0-9]`)
	numericRe            = regexp.MustCompile(`[^0-9.]`)
)

// RepairProfileURL fixes the provider's URL obfuscations: the registered
// sign substituted for "reg" in the registry parameter, and dropped
// ampersands between query parameters.
func RepairProfileURL(raw string) string {
	repaired := strings.ReplaceAll(raw, "®istry=", "registry=")
	repaired = strings.ReplaceAll(repaired, "Â®istry=", "registry=")
	repaired = missingAmpRefnoRe.ReplaceAllString(repaired, "refno=$1&registry=")
	repaired = missingAmpRegistryRe.ReplaceAllString(repaired, "registry=$1&rbt=")
	return repaired
}

// workoutsURL derives the workouts page address from a profile URL's refno
// and registry parameters. Returns "" when they are absent.
func (c *Client) workoutsURL(profileURL string) string {
	m := refnoRegistryRe.FindStringSubmatch(profileURL)
	if m == nil {
		return ""
	}
	return strings.TrimRight(c.base.String(), "/") +
		"/profiles/workouts.cfm?refno=" + m[1] + "&registry=" + m[2]
}

// FetchHorseProfile retrieves a horse's past performances and recent
// workouts. The per-page timeout bounds each request; a slow page surfaces
// as a transient timeout error rather than a hang.
func (c *Client) FetchHorseProfile(ctx context.Context, profileURL string) ([]model.PastPerformance, []model.Workout, error) {
	clean := RepairProfileURL(profileURL)

	body, err := c.fetch(ctx, clean)
	if err != nil {
		return nil, nil, err
	}
	if IsChallengePage(body) {
		return nil, nil, &resilience.ChallengeError{PageURL: clean}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		ref := c.saveSnapshot("profile", body)
		return nil, nil, &resilience.ParseError{PageURL: clean, SnapshotRef: ref, Err: err}
	}

	results := parseResultsTable(doc)

	workouts := parseWorkoutsTable(doc)
	if len(workouts) == 0 {
		if wuURL := c.workoutsURL(clean); wuURL != "" {
			workouts = c.fetchWorkouts(ctx, wuURL)
		}
	}

	if len(results) == 0 && len(workouts) == 0 {
		ref := c.saveSnapshot("profile", body)
		return nil, nil, &resilience.ParseError{
			PageURL:     clean,
			SnapshotRef: ref,
			Err:         eris.New("no results or workouts tables found"),
		}
	}
	return results, workouts, nil
}

// fetchWorkouts pulls the dedicated workouts page. Failure here is not
// fatal to the profile: workouts are one factor of several.
func (c *Client) fetchWorkouts(ctx context.Context, wuURL string) []model.Workout {
	body, err := c.fetch(ctx, wuURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	return parseWorkoutsTable(doc)
}

// parseResultsTable finds the past-performance table by its headers and
// extracts one PastPerformance per row.
func parseResultsTable(doc *goquery.Document) []model.PastPerformance {
	table := findTable(doc, []string{"FIN", "FINISH", "POS"}, nil)
	if table == nil {
		return nil
	}

	cols := headerIndex(table)
	dateI := colIndex(cols, 0, "DATE")
	trackI := colIndex(cols, 1, "TRACK")
	distI := colIndex(cols, 2, "DISTANCE", "DIST")
	surfI := colIndex(cols, 3, "SURFACE", "S")
	finI := colIndex(cols, 4, "FIN", "FINISH", "POS")
	timeI := colIndex(cols, 6, "FINAL TIME", "TIME")
	beatI := colIndex(cols, 7, "BEATEN", "MARGIN")
	speedI := colIndex(cols, 8, "E", "SPEED", "SPEED FIGURE", "FIG", "SPD")
	oddsI := colIndex(cols, 9, "ODDS")

	var out []model.PastPerformance
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		date := cellText(cells, dateI)
		if !dateCellRe.MatchString(date) {
			return
		}
		out = append(out, model.PastPerformance{
			Date:          date,
			Track:         cellText(cells, trackI),
			Distance:      cellText(cells, distI),
			Surface:       strings.ToLower(cellText(cells, surfI)),
			FinishPos:     cellInt(cells, finI),
			SpeedScore:    float64(cellInt(cells, speedI)),
			FinalTime:     cellText(cells, timeI),
			BeatenLengths: cellFloat(cells, beatI),
			Odds:          cellText(cells, oddsI),
		})
	})
	return out
}

// parseWorkoutsTable extracts workout lines from the first table whose
// headers mention workouts or times.
func parseWorkoutsTable(doc *goquery.Document) []model.Workout {
	// A results table also carries a TIME column, so any table with a
	// finish column is excluded here.
	table := findTable(doc, []string{"WORKOUT", "TIME"}, []string{"FIN", "FINISH"})
	if table == nil {
		return nil
	}

	cols := headerIndex(table)
	dateI := colIndex(cols, 0, "DATE")
	trackI := colIndex(cols, 1, "TRACK")
	distI := colIndex(cols, 2, "DISTANCE", "DIST")
	timeI := colIndex(cols, 3, "TIME", "FINAL TIME")
	condI := colIndex(cols, 4, "COND", "CONDITION", "TRACK CONDITION")
	typeI := colIndex(cols, 5, "TYPE", "WORKOUT TYPE")

	var out []model.Workout
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		date := cellText(cells, dateI)
		if !dateCellRe.MatchString(date) {
			return
		}
		out = append(out, model.Workout{
			Date:           date,
			Track:          cellText(cells, trackI),
			Distance:       cellText(cells, distI),
			Time:           cellText(cells, timeI),
			TrackCondition: cellText(cells, condI),
			WorkoutType:    cellText(cells, typeI),
		})
	})
	return out
}

// findTable returns the first table whose header row contains any of the
// wanted column names and none of the excluded ones.
func findTable(doc *goquery.Document, wanted, excluded []string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		cols := headerIndex(t)
		for _, e := range excluded {
			if _, ok := cols[e]; ok {
				return true
			}
		}
		for _, w := range wanted {
			if _, ok := cols[w]; ok {
				found = t
				return false
			}
		}
		return true
	})
	return found
}

// headerIndex maps upper-cased header names to column positions.
func headerIndex(table *goquery.Selection) map[string]int {
	cols := map[string]int{}
	table.Find("tr").First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		name := strings.ToUpper(strings.TrimSpace(cell.Text()))
		if name != "" {
			if _, ok := cols[name]; !ok {
				cols[name] = i
			}
		}
	})
	return cols
}

func colIndex(cols map[string]int, fallback int, names ...string) int {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i
		}
	}
	return fallback
}

func cellText(cells *goquery.Selection, i int) string {
	if i < 0 || i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}

func cellInt(cells *goquery.Selection, i int) int {
	n, _ := strconv.Atoi(digitsRe.ReplaceAllString(cellText(cells, i), ""))
	return n
}

func cellFloat(cells *goquery.Selection, i int) float64 {
	f, _ := strconv.ParseFloat(numericRe.ReplaceAllString(cellText(cells, i), ""), 64)
	return f
}
