package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"dashboard-service/indicator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the adapter until interrupted",
	RunE:  runService,
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Print the signal mapping table",
	Args:  cobra.NoArgs,
	RunE:  runSignals,
}

var statusWait time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the normalized vehicle status as JSON",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var setZone string

var setCmd = &cobra.Command{
	Use:   "set <property> <value>",
	Short: "Write a value through the vehicle host",
	Args:  cobra.ExactArgs(2),
	RunE:  runSet,
}

func init() {
	statusCmd.Flags().DurationVar(&statusWait, "wait", 500*time.Millisecond, "time to collect updates before printing")
	setCmd.Flags().StringVar(&setZone, "zone", "", "zone for signals without one, e.g. rear")

	rootCmd.AddCommand(runCmd, signalsCmd, statusCmd, setCmd)
}

func runService(cmd *cobra.Command, _ []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	log := NewLeveledLogger(ProjectName, opts.LogLevel)
	log.Infof("%s v%s", ProjectName, ProjectVersion)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewDashboardApp(log, opts)
	if err != nil {
		return fmt.Errorf("failed to create dashboard app: %w", err)
	}
	defer app.Destroy()

	<-ctx.Done()
	return nil
}

func runSignals(cmd *cobra.Command, _ []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL\tINTERFACE\tATTRIBUTE\tZONE\tPROPERTY\tCALLBACK")
	for _, m := range indicator.DefaultTable().Mappings() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.HostInterface(), m.Attribute, m.Zone, m.Property, m.CallbackName())
	}
	return w.Flush()
}

// session is a short-lived adapter for one-shot commands.
type session struct {
	redis     *redis.Client
	host      *vehicleHost
	indicator *indicator.CarIndicator
}

func openSession(cmd *cobra.Command) (*session, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	log := NewLeveledLogger(ProjectName, opts.LogLevel)

	client, err := connectRedis(cmd.Context(), log, opts)
	if err != nil {
		return nil, err
	}
	host, _, err := newVehicleHost(log, opts, client)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &session{
		redis: client,
		host:  host,
		indicator: indicator.New(host.vehicle, indicator.Config{
			Logger:       log.With("indicator"),
			FetchTimeout: opts.FetchTimeout(),
		}),
	}, nil
}

func (s *session) Close() {
	s.indicator.Close()
	s.host.close()
	s.redis.Close()
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	s.indicator.AddListener(indicator.HandleAll(indicator.Signals(),
		func(indicator.Signal, indicator.Value, indicator.Value) {}))

	select {
	case <-cmd.Context().Done():
	case <-time.After(statusWait):
	}

	out, err := json.MarshalIndent(s.indicator.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	property := args[0]
	if _, ok := indicator.DefaultTable().ByProperty(property); !ok {
		return fmt.Errorf("unknown property %q", property)
	}

	value, _, err := parseSetPayload([]byte(args[1]))
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	zone := indicator.ZoneNone
	if setZone != "" {
		if zone, err = indicator.ParseZone(setZone); err != nil {
			return err
		}
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	s.indicator.SetStatus(ctx, property, value, zone)
	return nil
}
