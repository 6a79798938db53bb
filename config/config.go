package config

import (
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/vapourismo/knx-go/knx/cemi"

	"knx-ev-bridge/params"
)

type LogLevel string

const (
	ClientID          = "knx-ev-bridge"
	Trace    LogLevel = "trace"
	Debug    LogLevel = "debug"
	Info     LogLevel = "info"
	Warning  LogLevel = "warning"
)

func NewConfig(cfgFile string) (*Config, error) {
	var config Config
	if _, err := toml.DecodeFile(cfgFile, &config); err != nil {
		return nil, errors.Wrap(err, "decoding toml")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return &config, nil
}

type Config struct {
	// KNX holds the gateway connection settings and the two monitored
	// group addresses.
	KNX KNX `toml:"knx"`

	// Charger holds the config for the charge controller we send
	// start/stop commands to.
	Charger Charger `toml:"charger"`

	// Status holds the config for the optional MQTT status output.
	Status Status `toml:"status"`

	// LogFile is the path to the log on disk
	LogFile string `toml:"log_file"`

	// LogLevel sets the logging output to desired level.
	LogLevel LogLevel `toml:"log_level"`
}

func (c *Config) Validate() error {
	if err := c.KNX.Validate(); err != nil {
		return errors.Wrap(err, "validating knx settings")
	}

	if err := c.Charger.Validate(); err != nil {
		return errors.Wrap(err, "validating charger")
	}

	if c.Status.Enabled {
		if err := c.Status.Validate(); err != nil {
			return errors.Wrap(err, "validating status settings")
		}
	}
	return nil
}

type KNX struct {
	Enabled bool `toml:"enabled"`
	// GatewayIP is the IP address of the KNXnet/IP gateway.
	GatewayIP string `toml:"gateway_ip"`
	// GatewayPort is the UDP port the gateway tunnel listens on.
	GatewayPort int `toml:"gateway_port"`
	// ChargeNowRateAddress is the group address carrying the charge rate
	// in Amps. A write to this address starts or stops a charge.
	ChargeNowRateAddress string `toml:"charge_now_rate_address"`
	// ChargeNowDurationAddress is the group address carrying the session
	// length in seconds. Optional.
	ChargeNowDurationAddress string `toml:"charge_now_duration_address"`
	// ChargeNowDurationDefault is the session length used until the first
	// duration telegram arrives. Defaults to 0.
	ChargeNowDurationDefault uint16 `toml:"charge_now_duration_default"`
}

func (k *KNX) Validate() error {
	ip := net.ParseIP(k.GatewayIP)
	if ip == nil {
		return fmt.Errorf("invalid gateway IP address: %s", k.GatewayIP)
	}

	if k.GatewayPort <= 0 || k.GatewayPort >= 1<<16 {
		return fmt.Errorf("invalid gateway port: %d", k.GatewayPort)
	}

	if k.ChargeNowRateAddress == "" {
		return fmt.Errorf("missing required charge_now_rate_address")
	}

	if _, err := cemi.NewGroupAddrString(k.ChargeNowRateAddress); err != nil {
		return errors.Wrapf(err, "parsing charge_now_rate_address %q", k.ChargeNowRateAddress)
	}

	if k.ChargeNowDurationAddress != "" {
		if _, err := cemi.NewGroupAddrString(k.ChargeNowDurationAddress); err != nil {
			return errors.Wrapf(err, "parsing charge_now_duration_address %q", k.ChargeNowDurationAddress)
		}
	}
	return nil
}

// GatewayAddress returns the gateway endpoint in host:port form.
func (k *KNX) GatewayAddress() string {
	return fmt.Sprintf("%s:%d", k.GatewayIP, k.GatewayPort)
}

// AddressRoles returns the group address to role mapping, built once at
// startup and looked up for every incoming telegram.
func (k *KNX) AddressRoles() (map[cemi.GroupAddr]params.Role, error) {
	if err := k.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating knx settings")
	}

	roles := map[cemi.GroupAddr]params.Role{}

	rateAddr, err := cemi.NewGroupAddrString(k.ChargeNowRateAddress)
	if err != nil {
		return nil, errors.Wrap(err, "parsing rate address")
	}
	roles[rateAddr] = params.RoleRate

	if k.ChargeNowDurationAddress != "" {
		durationAddr, err := cemi.NewGroupAddrString(k.ChargeNowDurationAddress)
		if err != nil {
			return nil, errors.Wrap(err, "parsing duration address")
		}
		roles[durationAddr] = params.RoleDuration
	}
	return roles, nil
}

type Charger struct {
	// StationAddress is the host:port of the charge controller web API.
	StationAddress string `toml:"station_address"`
}

func (c *Charger) Validate() error {
	if c.StationAddress == "" {
		return fmt.Errorf("missing required station_address")
	}

	host, _, err := net.SplitHostPort(c.StationAddress)
	if err != nil {
		host = c.StationAddress
	}
	if host == "" {
		return fmt.Errorf("invalid station address: %s", c.StationAddress)
	}
	return nil
}

type Status struct {
	Enabled bool `toml:"enabled"`
	// TopicPrefix is prepended to every published status topic.
	TopicPrefix string `toml:"topic_prefix"`
	// MQTT represents the MQTT settings of the broker status updates
	// are published to.
	MQTT MQTTSettings `toml:"mqtt"`
}

func (s *Status) Validate() error {
	if s.TopicPrefix == "" {
		return fmt.Errorf("topic_prefix cannot be empty when status is enabled")
	}
	return s.MQTT.Validate()
}

type MQTTSettings struct {
	Broker   string `toml:"broker"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func (m *MQTTSettings) BrokerURI() (string, error) {
	if err := m.Validate(); err != nil {
		return "", errors.Wrap(err, "fetching broker URI")
	}

	uri := fmt.Sprintf("tcp://%s:%d", m.Broker, m.Port)
	return uri, nil
}

func (m *MQTTSettings) ClientOptions() (*mqtt.ClientOptions, error) {
	brokerURI, err := m.BrokerURI()
	if err != nil {
		return nil, errors.Wrap(err, "creating mqtt options")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURI)
	if m.Username != "" {
		opts.SetUsername(m.Username)
	}
	if m.Password != "" {
		opts.SetPassword(m.Password)
	}
	opts.SetClientID(ClientID)
	return opts, nil
}

func (m *MQTTSettings) Validate() error {
	if m.Broker == "" {
		return fmt.Errorf("broker cannot be empty when mqtt is used")
	}

	if m.Port == 0 {
		m.Port = 1883
	}
	return nil
}
