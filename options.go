package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"dashboard-service/ipc"
)

const (
	HostRedis = "redis"
	HostCAN   = "can"
)

type RedisOptions struct {
	Addr       string   `json:"addr"`
	Port       uint16   `json:"port"`
	Prefix     string   `json:"prefix"`
	StatusKey  string   `json:"status_key"`
	Interfaces []string `json:"interfaces"`
}

type MQTTOptions struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	Retain      bool   `json:"retain"`
}

type Options struct {
	LogLevel       LogLevel     `json:"log_level"`
	Host           string       `json:"host"`
	Redis          RedisOptions `json:"redis"`
	CANDevice      string       `json:"can_device"`
	MQTT           MQTTOptions  `json:"mqtt"`
	MetricsAddr    string       `json:"metrics_addr"`
	FetchTimeoutMS int          `json:"fetch_timeout_ms"`
}

func DefaultOptions() *Options {
	return &Options{
		LogLevel: LogLevelInfo,
		Host:     HostRedis,
		Redis: RedisOptions{
			Addr:      "127.0.0.1",
			Port:      6379,
			Prefix:    ipc.DefaultPrefix,
			StatusKey: ipc.DefaultStatusKey,
		},
		CANDevice: "can0",
		MQTT: MQTTOptions{
			ClientID:    ProjectName,
			TopicPrefix: "dashboard",
		},
		FetchTimeoutMS: 2000,
	}
}

// LoadOptions reads path (YAML or JSON, optional) over the defaults and
// applies K_ environment overrides, e.g. K_REDIS__PORT=6380.
func LoadOptions(path string) (*Options, error) {
	k := koanf.New(".")

	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	opts := DefaultOptions()
	if err := k.UnmarshalWithConf("", opts, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return opts, nil
}

func (o *Options) Validate() error {
	if o.LogLevel < LogLevelNone || o.LogLevel > LogLevelDebug {
		return fmt.Errorf("invalid log level %d", o.LogLevel)
	}
	switch o.Host {
	case HostRedis:
	case HostCAN:
		if o.CANDevice == "" {
			return errors.New("can_device is required for the can host")
		}
	default:
		return fmt.Errorf("invalid host %q (must be '%s' or '%s')", o.Host, HostRedis, HostCAN)
	}
	if o.Redis.Addr == "" || o.Redis.Port == 0 {
		return errors.New("redis address and port are required")
	}
	if o.MQTT.Broker != "" && o.MQTT.TopicPrefix == "" {
		return errors.New("mqtt topic_prefix is required when a broker is set")
	}
	if o.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", o.MQTT.QoS)
	}
	if o.FetchTimeoutMS < 0 {
		return fmt.Errorf("invalid fetch timeout %dms", o.FetchTimeoutMS)
	}
	return nil
}

func (o *Options) FetchTimeout() time.Duration {
	return time.Duration(o.FetchTimeoutMS) * time.Millisecond
}
