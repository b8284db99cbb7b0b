package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/spf13/cobra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions, err := a.store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sessions)
			}
			for _, s := range sessions {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\n",
					s.ID, s.Host, len(s.Members), s.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <sessionId>",
		Short: "Show a session and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.store.GetSession(cmd.Context(), domain.SessionID(args[0]))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sess)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "session: %s\n", sess.ID)
			_, _ = fmt.Fprintf(out, "host: %s\n", sess.Host)
			_, _ = fmt.Fprintf(out, "created: %s\n", sess.CreatedAt.Format(time.RFC3339))
			_, _ = fmt.Fprintf(out, "members (%d): %s\n", len(sess.Members), strings.Join(clientIDs(sess.Members), ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <clientId>",
		Short: "Show which session a client belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.engine.GetMemberStatus(cmd.Context(), domain.ClientID(args[0]))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			role := "member"
			if m.IsHost {
				role = "host"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", m.ClientID, m.SessionID, role, m.ClientType)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newEndCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "end <sessionId>",
		Short: "End a session and detach all of its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid := domain.SessionID(args[0])
			if err := a.engine.Teardown(cmd.Context(), sid); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ended %s\n", sid)
			return nil
		},
	}
}

func clientIDs(ids []domain.ClientID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
