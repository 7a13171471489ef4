// Command ploy runs the autonomous trading assistant: per-agent scan
// cycles, regime detection, capital allocation, and the read-only API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	polymarket "github.com/GoPolymarket/polymarket-go-sdk"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ploylabs/ploy/internal/app"
	"github.com/ploylabs/ploy/internal/config"
)

var version = "dev"

var (
	cfgPath string
	phase   string
)

func main() {
	root := &cobra.Command{
		Use:           "ploy",
		Short:         "Autonomous prediction market trading assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&phase, "phase", "", "rollout phase preset: paper|shadow|live")

	root.AddCommand(runCmd(), scanCmd(), policyCmd(), keysCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := config.ApplyRolloutPhase(&cfg, phase); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// buildApp wires the SDK clients and signer from config credentials.
// Without credentials the app runs on public market data only.
func buildApp(cfg config.Config, log zerolog.Logger) (*app.App, error) {
	sdkClient := polymarket.NewClient()
	clobClient := sdkClient.CLOB
	gammaClient := sdkClient.Gamma

	var signer auth.Signer
	if cfg.PrivateKey != "" && cfg.APIKey != "" {
		var err error
		signer, err = auth.NewPrivateKeySigner(strings.TrimSpace(cfg.PrivateKey), 137)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		clobClient = clobClient.WithAuth(signer, &auth.APIKey{
			Key:        strings.TrimSpace(cfg.APIKey),
			Secret:     strings.TrimSpace(cfg.APISecret),
			Passphrase: strings.TrimSpace(cfg.APIPassphrase),
		})
	} else {
		log.Info().Msg("no API credentials: public market data only, live dispatch disabled")
	}

	if !cfg.Policy.SimulationOnly && signer == nil {
		return nil, fmt.Errorf("live phase requires PLOY_PK and PLOY_API_KEY")
	}

	return app.New(cfg, clobClient, gammaClient, signer, log)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the control loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)
			log.Info().
				Str("version", version).
				Str("phase", strings.TrimSpace(phase)).
				Bool("simulation_only", cfg.Policy.SimulationOnly).
				Int("agents", len(cfg.Agents)).
				Msg("ploy starting")

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func scanCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle for an agent and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.API.Enabled = false
			log := newLogger(cfg.LogLevel)

			if agent == "" {
				agent = cfg.Agents[0].Agent
			}

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := a.ScanOnce(ctx, agent)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent to run (default: first configured)")
	return cmd
}

func policyCmd() *cobra.Command {
	policy := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the governance policy of a running instance",
	}
	policy.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current policy document",
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAPI(cmd, "/api/policy")
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "Print the committed policy history",
			RunE: func(cmd *cobra.Command, args []string) error {
				return fetchAPI(cmd, "/api/policy/history")
			},
		},
	)
	return policy
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Derive API credentials from the configured private key",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			pk := strings.TrimSpace(os.Getenv("PLOY_PK"))
			if pk == "" {
				return fmt.Errorf("PLOY_PK is not set")
			}

			signer, err := auth.NewPrivateKeySigner(pk, 137)
			if err != nil {
				return fmt.Errorf("signer: %w", err)
			}
			clobClient := polymarket.NewClient().CLOB.WithAuth(signer, nil)

			resp, err := clobClient.CreateOrDeriveAPIKey(cmd.Context())
			if err != nil {
				return fmt.Errorf("derive api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export PLOY_API_KEY=%q\n", resp.APIKey)
			fmt.Fprintf(out, "export PLOY_API_SECRET=%q\n", resp.Secret)
			fmt.Fprintf(out, "export PLOY_API_PASSPHRASE=%q\n", resp.Passphrase)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ploy", version)
		},
	}
}

// fetchAPI queries the running instance's read-only API and prints the
// response body re-indented.
func fetchAPI(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.API.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		return fmt.Errorf("is ploy running? %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
