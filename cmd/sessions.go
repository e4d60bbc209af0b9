package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List analysis sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		track, _ := cmd.Flags().GetString("track")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.SessionFilter{
			Status: model.SessionStatus(status),
			Track:  track,
			Limit:  limit,
		}

		sessions, err := st.ListSessions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list sessions")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show full details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "session status")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, sessions []model.AnalysisSession) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTRACK\tDATE\tSTATUS\tHORSES\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t------\t------\t-------\t--------")

	for _, s := range sessions {
		end := s.UpdatedAt
		if s.CompletedAt != nil {
			end = *s.CompletedAt
		}
		dur := end.Sub(s.CreatedAt).Round(time.Second).String()

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(s.ID),
			s.Track,
			s.Date,
			s.Status,
			s.HorseCount,
			s.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}

	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	sessionsCmd.Flags().String("status", "", "filter by status")
	sessionsCmd.Flags().String("track", "", "filter by track code")
	sessionsCmd.Flags().Int("limit", 50, "max sessions to list")
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(statusCmd)
}
