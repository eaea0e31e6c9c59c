package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"dashboard-service/canbus"
	"dashboard-service/indicator"
	"dashboard-service/ipc"
)

const (
	RedisHealthCheckInterval = 30 * time.Second
	StaleCheckInterval       = time.Second
)

// vehicleHost is a host backend plus its teardown.
type vehicleHost struct {
	vehicle indicator.Vehicle
	close   func()
}

type DashboardApp struct {
	log       *LeveledLogger
	opts      *Options
	redis     *redis.Client
	host      *vehicleHost
	canHost   *canbus.Host
	indicator *indicator.CarIndicator
	mirror    *ipc.StatusMirror
	mirrorID  indicator.ListenerID
	bridge    *MQTTBridge
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	healthCheckInterval time.Duration
}

func connectRedis(ctx context.Context, log *LeveledLogger, opts *Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Redis.Addr, opts.Redis.Port),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	log.Infof("Connecting to Redis at %s:%d...", opts.Redis.Addr, opts.Redis.Port)

	if err := client.Ping(connectCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Infof("Successfully connected to Redis")
	return client, nil
}

// newVehicleHost builds the host backend selected by opts.Host.
func newVehicleHost(log *LeveledLogger, opts *Options, client *redis.Client) (*vehicleHost, *canbus.Host, error) {
	switch opts.Host {
	case HostRedis:
		v := ipc.NewVehicle(log.With("ipc"), client, ipc.Config{
			Prefix:     opts.Redis.Prefix,
			Interfaces: opts.Redis.Interfaces,
		})
		return &vehicleHost{vehicle: v, close: v.Destroy}, nil, nil

	case HostCAN:
		bus, err := can.NewBusForInterfaceWithName(opts.CANDevice)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize CAN bus: %w", err)
		}
		h := canbus.NewHost(log.With("canbus"), bus)
		bus.Subscribe(h)

		go func() {
			if err := bus.ConnectAndPublish(); err != nil {
				log.Errorf("CAN bus publish error: %v", err)
			}
		}()

		closeBus := func() {
			if err := bus.Disconnect(); err != nil {
				log.Warnf("Error closing CAN bus: %v", err)
			}
		}
		return &vehicleHost{vehicle: h, close: closeBus}, h, nil
	}
	return nil, nil, fmt.Errorf("unknown host %q", opts.Host)
}

func NewDashboardApp(log *LeveledLogger, opts *Options) (*DashboardApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &DashboardApp{
		log:                 log,
		opts:                opts,
		ctx:                 ctx,
		cancel:              cancel,
		healthCheckInterval: RedisHealthCheckInterval,
	}

	var err error
	if app.redis, err = connectRedis(ctx, log, opts); err != nil {
		cancel()
		return nil, err
	}

	app.startHealthCheck()

	var metrics indicator.Metrics = indicator.NopMetrics{}
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		sink, err := NewPromSink(reg)
		if err != nil {
			app.Destroy()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		metrics = sink

		go func() {
			log.Infof("Serving metrics on %s", opts.MetricsAddr)
			if err := StartPromServer(ctx, log, opts.MetricsAddr, reg); err != nil {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	app.host, app.canHost, err = newVehicleHost(log, opts, app.redis)
	if err != nil {
		app.Destroy()
		return nil, err
	}
	log.Infof("Vehicle host initialized - selected host: %s", opts.Host)

	if app.canHost != nil {
		app.wg.Add(1)
		go app.staleDataCheck()
	}

	app.indicator = indicator.New(app.host.vehicle, indicator.Config{
		Logger:       log.With("indicator"),
		Metrics:      metrics,
		FetchTimeout: opts.FetchTimeout(),
	})

	app.mirror = ipc.NewStatusMirror(log.With("mirror"), app.redis, app.indicator.Table(), opts.Redis.StatusKey)
	if err := app.mirror.WriteDefaults(app.indicator.Status()); err != nil {
		log.Errorf("Failed to write default status: %v", err)
	}
	app.mirrorID = app.indicator.AddListener(app.mirror.Handlers())
	log.Infof("Status mirror initialized")

	if opts.MQTT.Broker != "" {
		app.bridge, err = NewMQTTBridge(log.With("mqtt"), opts.MQTT, app.indicator)
		if err != nil {
			app.Destroy()
			return nil, err
		}
		app.bridge.Start()
		log.Infof("MQTT bridge initialized")
	}

	return app, nil
}

// startHealthCheck pings the current client until the app is destroyed.
func (app *DashboardApp) startHealthCheck() {
	app.wg.Add(1)
	go app.redisHealthCheck(app.redis)
}

func (app *DashboardApp) redisHealthCheck(client *redis.Client) {
	defer app.wg.Done()

	ticker := time.NewTicker(app.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := client.Ping(ctx).Err(); err != nil {
				app.log.Errorf("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

// staleDataCheck logs when the CAN bus goes silent and when it recovers.
func (app *DashboardApp) staleDataCheck() {
	defer app.wg.Done()

	ticker := time.NewTicker(StaleCheckInterval)
	defer ticker.Stop()

	stale := false
	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			now := app.canHost.IsDataStale()
			if now == stale {
				continue
			}
			stale = now
			if stale {
				app.log.Warnf("No CAN frames received for %v", canbus.DataTimeout)
			} else {
				app.log.Infof("CAN frames received again")
			}
		}
	}
}

func (app *DashboardApp) Destroy() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Infof("Shutting down dashboard application...")

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	if app.bridge != nil {
		app.bridge.Close()
		app.bridge = nil
		app.log.Infof("MQTT bridge shutdown complete")
	}

	if app.indicator != nil {
		app.indicator.Close()
		app.indicator = nil
		app.log.Infof("Indicator shutdown complete")
	}

	if app.host != nil {
		app.host.close()
		app.host = nil
		app.log.Infof("Vehicle host shutdown complete")
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Errorf("Error closing Redis connection: %v", err)
		} else {
			app.log.Infof("Redis connection closed")
		}
		app.redis = nil
	}

	app.log.Infof("Dashboard application shutdown complete")
}
