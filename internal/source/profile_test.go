package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

const profileFixture = `<html><body>
<table class="results">
<tr><th>Date</th><th>Track</th><th>Distance</th><th>Surface</th><th>Fin</th><th>Jockey</th><th>Final Time</th><th>Beaten</th><th>E</th><th>Odds</th></tr>
<tr><td>08/10/2025</td><td>DMR</td><td>6f</td><td>Dirt</td><td>1</td><td>U R</td><td>1:09.80</td><td>0</td><td>92</td><td>5/2</td></tr>
<tr><td>07/20/2025</td><td>DMR</td><td>6.5f</td><td>Dirt</td><td>3</td><td>U R</td><td>1:16.40</td><td>2.5</td><td>85</td><td>3-1</td></tr>
</table>
<table class="workouts">
<tr><th>Date</th><th>Track</th><th>Distance</th><th>Time</th><th>Cond</th><th>Type</th></tr>
<tr><td>08/20/2025</td><td>DMR</td><td>4F</td><td>47.60</td><td>ft</td><td>B</td></tr>
</table>
</body></html>`

func TestRepairProfileURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://x.test/Results.cfm?refno=1®istry=T", "https://x.test/Results.cfm?refno=1&registry=T"},
		{"https://x.test/Results.cfm?refno=12registry=T", "https://x.test/Results.cfm?refno=12&registry=T"},
		{"https://x.test/Results.cfm?registry=Trbt=4", "https://x.test/Results.cfm?registry=T&rbt=4"},
		{"https://x.test/Results.cfm?refno=1&registry=T", "https://x.test/Results.cfm?refno=1&registry=T"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RepairProfileURL(tc.in), "input %q", tc.in)
	}
}

func TestFetchHorseProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(profileFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	results, workouts, err := c.FetchHorseProfile(context.Background(), srv.URL+"/profiles/Results.cfm?type=Horse&refno=111&registry=T")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "08/10/2025", results[0].Date)
	assert.Equal(t, 1, results[0].FinishPos)
	assert.InDelta(t, 92, results[0].SpeedScore, 0.01)
	assert.Equal(t, "dirt", results[0].Surface)
	assert.InDelta(t, 2.5, results[1].BeatenLengths, 0.01)

	require.Len(t, workouts, 1)
	assert.Equal(t, "4F", workouts[0].Distance)
	assert.Equal(t, "47.60", workouts[0].Time)
	assert.Equal(t, "B", workouts[0].WorkoutType)
}

func TestFetchHorseProfile_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(profileFixture))
	}))
	defer srv.Close()

	c, err := New(config.SourceConfig{
		BaseURL:        srv.URL,
		RequestsPerSec: 100,
	}, nil)
	require.NoError(t, err)
	c.http.SetTimeout(50 * time.Millisecond)

	_, _, err = c.FetchHorseProfile(context.Background(), srv.URL+"/profiles/Results.cfm?refno=1&registry=T")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestFetchHorseProfile_ChallengePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><script src="/_Incapsula_Resource?x=1"></script></html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.FetchHorseProfile(context.Background(), srv.URL+"/profiles/Results.cfm?refno=1&registry=T")
	assert.True(t, resilience.IsChallenge(err))
}

func TestFetchHorseProfile_NoTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.FetchHorseProfile(context.Background(), srv.URL+"/profiles/Results.cfm?refno=1&registry=T")

	var perr *resilience.ParseError
	assert.ErrorAs(t, err, &perr)
}
