// Command beacon is the tracking client: it fingerprints the host and
// sends events to a collector.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

const version = "1.0.0"

const usage = `Usage: beacon [flags] <command> [args]

Commands:
  fingerprint              print the host fingerprint as JSON
  track <type>             track one event and deliver it
  identify <user-id>       associate the device with a user
  retry                    resubmit events from the failure store

Flags:
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		if !errors.Is(err, errUsage) {
			logger.Error("beacon failed", map[string]any{"error": err.Error()})
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	projectID  string
	endpoint   string
	timeout    time.Duration
}

// run executes one command. probes replaces the host probes when set.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, probes *fingerprint.Probes) error {
	var g globalFlags
	flags := pflag.NewFlagSet("beacon", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.StringVarP(&g.configPath, "config", "c", "beacon.toml", "client configuration file")
	flags.StringVar(&g.envFile, "env-file", ".env", "environment file loaded before the configuration")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&g.projectID, "project", "p", "", "project id, overrides the configuration")
	flags.StringVar(&g.endpoint, "endpoint", "", "collector endpoint, overrides the configuration")
	flags.DurationVar(&g.timeout, "timeout", 10*time.Second, "how long to wait for pending deliveries on exit")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errUsage
	}

	if g.envFile != "" {
		_ = godotenv.Load(g.envFile)
	}

	cfg, err := config.ReadClient(g.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if g.projectID != "" {
		cfg.ProjectID = g.projectID
	}
	if g.endpoint != "" {
		cfg.Endpoint = g.endpoint
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel), stderr)
	if cfg.Debug {
		log.SetLevel(logger.DEBUG)
	}

	command, rest := flags.Arg(0), flags.Args()[1:]
	switch command {
	case "fingerprint", "track", "identify", "retry":
	default:
		flags.Usage()
		return errUsage
	}

	c, err := newClient(ctx, cfg, probes, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			log.Warn("Client shutdown incomplete", map[string]any{"error": err.Error()})
		}
	}()

	switch command {
	case "fingerprint":
		return printJSON(stdout, c.fingerprint.GetFingerprint(ctx))
	case "track":
		return runTrack(ctx, c, rest, stderr)
	case "identify":
		return runIdentify(ctx, c, rest, stderr)
	default:
		n := c.queue.RetryFailedEvents(ctx)
		return printJSON(stdout, map[string]int{"resubmitted": n})
	}
}

func runTrack(ctx context.Context, c *client, args []string, stderr io.Writer) error {
	flags := pflag.NewFlagSet("track", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	payload := flags.String("payload", "", "event payload as a JSON object")
	props := flags.String("props", "", "user properties as a JSON object")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stderr, "track requires exactly one event type")
		return errUsage
	}

	payloadMap, err := parseObject("payload", *payload)
	if err != nil {
		return err
	}
	propsMap, err := parseObject("props", *props)
	if err != nil {
		return err
	}

	c.tracker.Start(ctx)
	c.tracker.Track(ctx, flags.Arg(0), propsMap, payloadMap)
	return nil
}

func runIdentify(ctx context.Context, c *client, args []string, stderr io.Writer) error {
	flags := pflag.NewFlagSet("identify", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	traits := flags.String("traits", "", "user traits as a JSON object")
	if err := flags.Parse(args); err != nil {
		return errUsage
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stderr, "identify requires exactly one user id")
		return errUsage
	}

	traitsMap, err := parseObject("traits", *traits)
	if err != nil {
		return err
	}

	c.tracker.Start(ctx)
	c.tracker.Identify(ctx, flags.Arg(0), traitsMap)
	return nil
}

func parseObject(name, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", name, err)
	}
	return m, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
