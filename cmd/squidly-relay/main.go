// Squidly-relay is the websocket relay that Squidly hosts and participants
// share a session through.
//
// Each session lives under /ws/{session}. Clients subscribe to paths of the
// session's data tree and write values with set or update frames; the relay
// keeps the latest value of each path and fans writes out to every other
// subscriber.
//
// Usage:
//
//	squidly-relay server [flags]
//
// See 'squidly-relay server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/squidly/internal/server"
	"github.com/muurk/squidly/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "squidly-relay",
	Short: "Squidly session relay",
	Long: `A standalone websocket relay for Squidly sessions.

The relay keeps the shared data tree of every open session and forwards
each write to the other participants. Sessions are created on first
connection and dropped when the last client leaves.

For the host and participant client, use the separate 'squidly' utility.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	certPath       string
	keyPath        string
	generateCert   bool
	host           string
	port           int
	logLevel       string
	analysisDir    string
	rateLimit      float64
	burst          int
	allowedOrigins []string
	advertise      string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the relay",
	Long: `Start the relay and accept session connections.

Without --cert/--key or --generate-cert the relay serves plain ws://.
--generate-cert serves wss:// with a self-signed certificate created at
startup; clients must trust it.

To capture relayed frames for debugging, use the --analysis-dir flag to
specify a directory where JSONL message logs will be written.`,
	Example: `  # Plain websocket relay on port 8080, advertised on the LAN
  squidly-relay server --advertise "Clinic relay"

  # TLS with your own certificate
  squidly-relay server --port 8443 --cert fullchain.pem --key privkey.pem

  # Self-signed TLS with debug logging
  squidly-relay server --generate-cert --log-level debug

  # Limit each connection to 20 writes per second
  squidly-relay server --rate-limit 20 --burst 40

  # Capture frames for analysis
  squidly-relay server --analysis-dir ./captures`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serverCmd.Flags().BoolVar(&generateCert, "generate-cert", false, "Serve TLS with a self-signed certificate generated at startup")
	serverCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	serverCmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serverCmd.Flags().StringVar(&analysisDir, "analysis-dir", "", "Directory to write message capture logs (disabled if not specified)")
	serverCmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Sustained writes per second per connection (0 = unlimited)")
	serverCmd.Flags().IntVar(&burst, "burst", 0, "Write burst per connection (default rate-limit+1)")
	serverCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "Allowed browser Origin host (repeatable, empty = any)")
	serverCmd.Flags().StringVar(&advertise, "advertise", "", "Advertise the relay over mDNS under this name")
}

func runServer(cmd *cobra.Command, args []string) error {
	if (certPath != "") != (keyPath != "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	if certPath != "" {
		if _, err := os.Stat(certPath); os.IsNotExist(err) {
			return fmt.Errorf("certificate file not found: %s", certPath)
		}
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", keyPath)
		}
	}

	if analysisDir != "" {
		info, err := os.Stat(analysisDir)
		if os.IsNotExist(err) {
			return fmt.Errorf("analysis directory does not exist: %s", analysisDir)
		}
		if err != nil {
			return fmt.Errorf("cannot access analysis directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("analysis path is not a directory: %s", analysisDir)
		}
	}

	config := &server.Config{
		Host:           host,
		Port:           port,
		CertPath:       certPath,
		KeyPath:        keyPath,
		GenerateCert:   generateCert,
		LogLevel:       logLevel,
		AnalysisDir:    analysisDir,
		RateLimit:      rateLimit,
		Burst:          burst,
		AllowedOrigins: allowedOrigins,
		Advertise:      advertise,
	}

	srv, err := server.New(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String("squidly-relay"))
	},
}
