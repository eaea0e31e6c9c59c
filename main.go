package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	ProjectName    = "dashboard-service"
	ProjectVersion = "1.0.0"
)

var (
	cfgPath     string
	logLevel    int
	hostKind    string
	redisServer string
	redisPort   uint16
	canDevice   string
)

var rootCmd = &cobra.Command{
	Use:           ProjectName,
	Short:         "Vehicle signal adapter for the dashboard",
	Version:       ProjectVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runService,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	flags.IntVar(&logLevel, "log", int(LogLevelInfo), "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flags.StringVar(&hostKind, "host", HostRedis, "Vehicle host (redis or can)")
	flags.StringVar(&redisServer, "redis_server", "127.0.0.1", "Redis server address")
	flags.Uint16Var(&redisPort, "redis_port", 6379, "Redis server port")
	flags.StringVar(&canDevice, "can_device", "can0", "CAN device name")
}

// loadOptions merges the config file, environment and any flags set on cmd.
func loadOptions(cmd *cobra.Command) (*Options, error) {
	opts, err := LoadOptions(cfgPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log") {
		opts.LogLevel = LogLevel(logLevel)
	}
	if flags.Changed("host") {
		opts.Host = hostKind
	}
	if flags.Changed("redis_server") {
		opts.Redis.Addr = redisServer
	}
	if flags.Changed("redis_port") {
		opts.Redis.Port = redisPort
	}
	if flags.Changed("can_device") {
		opts.CANDevice = canDevice
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", ProjectName, err)
		os.Exit(1)
	}
}
