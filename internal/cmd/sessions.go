package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/noirtty/noirtty/internal/session"
	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://127.0.0.1:6369"

var sessionsJSON bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions [endpoint]",
	Short: "📋 List sessions on a server",
	Long: `# 📋 Sessions

**List the live sessions on a noirtty server.**

The endpoint defaults to ` + defaultEndpoint + `. WebSocket URLs are accepted too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(args)
		if err != nil {
			return err
		}
		infos, err := listSessions(base)
		if err != nil {
			return err
		}
		if sessionsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(infos)
		}
		printSessions(cmd.OutOrStdout(), infos, time.Now())
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <id> [endpoint]",
	Short: "🛑 Terminate a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := apiBase(args[1:])
		if err != nil {
			return err
		}
		if err := deleteSession(base, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s terminated\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsCmd.AddCommand(killCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// apiBase turns an endpoint argument into the server's HTTP base URL.
func apiBase(args []string) (string, error) {
	endpoint := defaultEndpoint
	if len(args) > 0 {
		endpoint = args[0]
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("sessions are listed over HTTP, not %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	return u.String(), nil
}

func listSessions(base string) ([]session.Info, error) {
	code, body, errs := fiber.Get(base + "/v1/sessions").Timeout(10 * time.Second).Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to reach %s: %w", base, errs[0])
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", code, strings.TrimSpace(string(body)))
	}
	var infos []session.Info
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, fmt.Errorf("failed to parse session list: %w", err)
	}
	return infos, nil
}

func deleteSession(base, id string) error {
	code, body, errs := fiber.Delete(base + "/v1/sessions/" + url.PathEscape(id)).Timeout(10 * time.Second).Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("failed to reach %s: %w", base, errs[0])
	}
	if code != fiber.StatusNoContent {
		return fmt.Errorf("server returned %d: %s", code, strings.TrimSpace(string(body)))
	}
	return nil
}

func printSessions(w io.Writer, infos []session.Info, now time.Time) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPID\tSIZE\tVIEWERS\tIDLE\tTITLE")
	for _, s := range infos {
		idle := now.Sub(s.LastActivity).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%d\t%dx%d\t%d\t%s\t%s\n", s.ID, s.Pid, s.Cols, s.Rows, s.Viewers, idle, s.Title)
	}
	_ = tw.Flush()
}
