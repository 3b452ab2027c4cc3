package cli

import (
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/casys-ai/mcpserver/internal/config"
	"github.com/casys-ai/mcpserver/internal/dashboard"
)

var statusFlags struct {
	URL      string
	Interval time.Duration
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Live operator dashboard for a running server",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.URL, "url", "", "base URL of the running server (default: derived from config)")
	statusCmd.Flags().DurationVar(&statusFlags.Interval, "interval", 2*time.Second, "poll interval")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	baseURL := statusFlags.URL
	if baseURL == "" {
		cfg, err := config.Load(config.Options{ConfigPath: globalFlags.ConfigPath})
		if err != nil {
			s := newStyles(os.Stdout, globalFlags.JSON)
			exitWith(ExitConfigInvalid, s.errPrefix()+" "+err.Error())
		}
		baseURL = baseURLFromListen(cfg.Server)
	}

	return dashboard.Run(dashboard.Options{
		BaseURL:  baseURL,
		Interval: statusFlags.Interval,
	})
}

// baseURLFromListen turns a "host:port" listen address into a URL the
// dashboard can poll, substituting a wildcard bind host with localhost
// and picking the right scheme for TLS-enabled servers.
func baseURLFromListen(srv config.Server) string {
	host, port, err := net.SplitHostPort(srv.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8443"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if srv.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}
