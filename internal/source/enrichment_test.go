package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

const enrichmentFixture = `<html><body>
<div class="pick">
  <span>Program # 5</span>
  <a href="/profiles/Results.cfm?type=Horse&refno=444&registry=T">Fast Lane</a>
  <span>$12,450 per Start</span>
  <span>Jockey / Trainer Win % 22%</span>
  <span>Speed Figure 94</span>
</div>
<div class="pick">
  <a href="/profiles/Results.cfm?type=Horse&refno=555&registry=T">Sea Breeze</a>
  <span>Jockey / Trainer Win % 9%</span>
</div>
</body></html>`

const challengeFixture = `<html><head><script src="/_Incapsula_Resource?SWJIYLWA=1"></script></head>
<body><div class="h-captcha" data-sitekey="site-key-123"></div></body></html>`

type fakeGate struct {
	solves int32
	token  string
	err    error
}

func (g *fakeGate) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	atomic.AddInt32(&g.solves, 1)
	return g.token, g.err
}

func (g *fakeGate) Balance(ctx context.Context) (float64, error) { return 0, nil }

func TestFetchEnrichment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html>home</html>"))
			return
		}
		assert.Equal(t, "DMR", r.URL.Query().Get("trackId"))
		assert.Equal(t, "08/24/2025", r.URL.Query().Get("raceDate"))
		assert.Equal(t, "1", r.URL.Query().Get("raceNumber"))
		_, _ = w.Write([]byte(enrichmentFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	entries, err := c.FetchEnrichment(context.Background(), "DMR", "08/24/2025", 1)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "Fast Lane", entries[0].HorseName)
	assert.Equal(t, "5", entries[0].Program)
	assert.InDelta(t, 22, entries[0].ComboWinPct, 0.01)
	assert.InDelta(t, 94, entries[0].SpeedFigure, 0.01)
	assert.InDelta(t, 12450, entries[0].EarningsPerStart, 0.01)
	assert.Equal(t, 1, entries[0].RaceNumber)

	assert.Equal(t, "Sea Breeze", entries[1].HorseName)
	assert.InDelta(t, 9, entries[1].ComboWinPct, 0.01)
	assert.Zero(t, entries[1].SpeedFigure)
	assert.Zero(t, entries[1].EarningsPerStart)
}

func TestFetchEnrichment_NoDataRace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html>home</html>"))
			return
		}
		_, _ = w.Write([]byte("<html><body>There are No Entries for this race.</body></html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	entries, err := c.FetchEnrichment(context.Background(), "DMR", "08/24/2025", 9)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestFetchEnrichment_ChallengeSolvedOnce(t *testing.T) {
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html>home</html>"))
			return
		}
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
			_, _ = w.Write([]byte(challengeFixture))
			return
		}
		// Retried with the solved token.
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "tok-1", r.PostFormValue("h-captcha-response"))
		_, _ = w.Write([]byte(enrichmentFixture))
	}))
	defer srv.Close()

	gate := &fakeGate{token: "tok-1"}
	c := newTestClient(t, srv.URL)
	c.gate = gate

	entries, err := c.FetchEnrichment(context.Background(), "DMR", "08/24/2025", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&gate.solves))
	assert.EqualValues(t, 1, atomic.LoadInt32(&gets))
}

func TestFetchEnrichment_SecondChallengeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html>home</html>"))
			return
		}
		_, _ = w.Write([]byte(challengeFixture))
	}))
	defer srv.Close()

	gate := &fakeGate{token: "tok-1"}
	c := newTestClient(t, srv.URL)
	c.gate = gate

	_, err := c.FetchEnrichment(context.Background(), "DMR", "08/24/2025", 2)
	assert.True(t, resilience.IsChallenge(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&gate.solves))
}

func TestFetchEnrichment_ChallengeWithoutGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<html>home</html>"))
			return
		}
		_, _ = w.Write([]byte(challengeFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.FetchEnrichment(context.Background(), "DMR", "08/24/2025", 2)
	assert.True(t, resilience.IsChallenge(err))
}
