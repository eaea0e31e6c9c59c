package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"dashboard-service/indicator"
)

const mqttSetTimeout = 2 * time.Second

// statusSource is the part of the CarIndicator the bridge needs.
type statusSource interface {
	Table() *indicator.Table
	AddListener(handlers indicator.Handlers) indicator.ListenerID
	RemoveListener(id indicator.ListenerID) error
	SetStatus(ctx context.Context, property string, value indicator.Value, zone indicator.Zone)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// ChangeMessage is published on <prefix>/<property> for every change.
type ChangeMessage struct {
	Value     indicator.Value `json:"value"`
	Old       indicator.Value `json:"old"`
	Timestamp int64           `json:"timestamp"`
}

// setRequest is accepted on <prefix>/<property>/set, either as this object
// or as a bare JSON value.
type setRequest struct {
	Value indicator.Value `json:"value"`
	Zone  string          `json:"zone"`
}

// MQTTBridge forwards normalized status changes to MQTT and turns set
// requests into host writes.
type MQTTBridge struct {
	log    *LeveledLogger
	cli    pahoClient
	source statusSource
	prefix string
	qos    byte
	retain bool
	now    func() time.Time

	mu         sync.Mutex
	listenerID indicator.ListenerID
	attached   bool
}

func NewMQTTBridge(log *LeveledLogger, opts MQTTOptions, source statusSource) (*MQTTBridge, error) {
	b := &MQTTBridge{
		log:    log,
		source: source,
		prefix: strings.TrimSuffix(opts.TopicPrefix, "/"),
		qos:    opts.QoS,
		retain: opts.Retain,
		now:    time.Now,
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetWill(b.prefix+"/online", "false", opts.QoS, true)

	clientOpts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", opts.Broker)
		b.subscribe()
		b.cli.Publish(b.prefix+"/online", b.qos, true, "true")
	}
	clientOpts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	}
	clientOpts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Warnf("Reconnecting to MQTT broker")
	}

	b.cli = newMQTTClient(clientOpts)
	if token := b.cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return b, nil
}

func (b *MQTTBridge) subscribe() {
	topic := b.prefix + "/+/set"
	if token := b.cli.Subscribe(topic, b.qos, b.onSet); token.Wait() && token.Error() != nil {
		b.log.Errorf("MQTT subscribe %s failed: %v", topic, token.Error())
	}
}

// Start registers the bridge as a listener for every mapped signal.
func (b *MQTTBridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return
	}
	var signals []indicator.Signal
	for _, m := range b.source.Table().Mappings() {
		signals = append(signals, m.Signal)
	}
	b.listenerID = b.source.AddListener(indicator.HandleAll(signals, b.onChange))
	b.attached = true
}

func (b *MQTTBridge) onChange(sig indicator.Signal, newValue, oldValue indicator.Value) {
	m, ok := b.source.Table().Lookup(sig)
	if !ok {
		return
	}

	payload, err := json.Marshal(ChangeMessage{Value: newValue, Old: oldValue, Timestamp: b.now().UnixMilli()})
	if err != nil {
		b.log.Errorf("Failed to encode %s: %v", m.Property, err)
		return
	}

	topic := b.prefix + "/" + m.Property
	token := b.cli.Publish(topic, b.qos, b.retain, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			b.log.Warnf("MQTT publish %s failed: %v", topic, token.Error())
		}
	}()
}

func (b *MQTTBridge) onSet(_ paho.Client, msg paho.Message) {
	property, ok := b.propertyFromTopic(msg.Topic())
	if !ok {
		b.log.Warnf("Ignoring set request on %s", msg.Topic())
		return
	}

	value, zoneName, err := parseSetPayload(msg.Payload())
	if err != nil {
		b.log.Warnf("Invalid set request for %s: %v", property, err)
		return
	}

	zone := indicator.ZoneNone
	if zoneName != "" {
		if zone, err = indicator.ParseZone(zoneName); err != nil {
			b.log.Warnf("Invalid zone in set request for %s: %v", property, err)
			return
		}
	}

	b.log.Debugf("MQTT set %s = %v (zone %s)", property, value, zone)
	ctx, cancel := context.WithTimeout(context.Background(), mqttSetTimeout)
	defer cancel()
	b.source.SetStatus(ctx, property, value, zone)
}

func (b *MQTTBridge) propertyFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	property, ok := strings.CutSuffix(rest, "/set")
	if !ok || property == "" || strings.Contains(property, "/") {
		return "", false
	}
	return property, true
}

// parseSetPayload accepts {"value": v, "zone": "front-left"}, a bare JSON
// value, or a plain string.
func parseSetPayload(payload []byte) (indicator.Value, string, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty payload")
	}

	if strings.HasPrefix(trimmed, "{") {
		var req setRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return nil, "", err
		}
		if req.Value == nil {
			return nil, "", fmt.Errorf("missing value")
		}
		return req.Value, req.Zone, nil
	}

	var v indicator.Value
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return trimmed, "", nil
	}
	return v, "", nil
}

// Close stops forwarding and disconnects from the broker.
func (b *MQTTBridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		if err := b.source.RemoveListener(b.listenerID); err != nil {
			b.log.Warnf("Failed to remove MQTT listener: %v", err)
		}
		b.attached = false
	}
	if b.cli.IsConnected() {
		b.cli.Publish(b.prefix+"/online", b.qos, true, "false").WaitTimeout(time.Second)
		b.cli.Disconnect(250)
	}
}
