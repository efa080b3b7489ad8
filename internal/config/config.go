package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	envPrefix = "SIGFOX_"

	defaultHTTPAddr    = ":8001"
	defaultCORSOrigins = "*"

	defaultSourceURL     = ""
	defaultSourceTimeout = 10 * time.Second
	defaultRetries       = 3
	defaultBackoff       = 500 * time.Millisecond

	defaultCacheTTL = 30 * time.Second

	defaultEnablePoller = true
	defaultPollInterval = 30 * time.Second

	defaultClearInterval = 24 * time.Hour
	defaultRetention     = 7 * 24 * time.Hour

	defaultPushURL      = ""
	defaultPushInterval = 10 * time.Second

	defaultUDPPort   = ":12345"
	defaultEnableUDP = false

	defaultDevice       = "/dev/ttyACM0"
	defaultDeviceTag    = "sigfox"
	defaultEnableSerial = false
	defaultBaudRate     = 115200

	defaultEnableMQTT        = false
	defaultBroker            = "tcp://localhost:1883"
	defaultClientID          = "sigfox-decoder"
	defaultKeepAliveDuration = 30 * time.Second
	defaultPingTimeout       = 5 * time.Second
	defaultTopic             = "sigfox/uplink"

	defaultEnableSimulator = false
	defaultSimulatorAddr   = ":8002"
	defaultSimulatorSize   = 10
	simulatorPath          = "/callback"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ShowVersion bool
	Debug       bool

	HTTPServer HTTPServer
	Source     Source
	Cache      Cache
	Poller     Poller
	Stats      Stats
	Metrics    Metrics
	UDPServer  UDPServer
	Serial     Serial
	MQTT       MQTT
	Simulator  Simulator
}

type HTTPServer struct {
	Addr        string
	CORSOrigins string
}

// Origins splits the comma separated CORS origin list.
func (h HTTPServer) Origins() []string {
	var out []string

	for _, o := range strings.Split(h.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}

	return out
}

type Source struct {
	URL     string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

type Cache struct {
	TTL time.Duration
}

type Poller struct {
	Enable   bool
	Interval time.Duration
}

type Stats struct {
	ClearInterval time.Duration
	Retention     time.Duration
}

type Metrics struct {
	PushURL      string
	PushInterval time.Duration
}

type UDPServer struct {
	Enable bool
	Port   string
}

type Serial struct {
	Enable   bool
	PortName string
	BaudRate int
	Tag      string
}

type MQTT struct {
	Enable            bool
	KeepAliveDuration time.Duration
	Broker            string
	ClientID          string
	Username          string
	Password          string
	PingTimeout       time.Duration
	Topic             string
}

type Simulator struct {
	Enable bool
	Addr   string
	Size   int
}

// URL is where the simulator serves its callback records.
func (s Simulator) URL() string {
	host, port, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return "http://" + s.Addr + simulatorPath
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return "http://" + net.JoinHostPort(host, port) + simulatorPath
}

func register(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.ShowVersion, "app-version", false, "show version information")
	fs.BoolVar(&cfg.Debug, "app-debug", false, "enable debug mode")

	fs.StringVar(&cfg.HTTPServer.Addr, "http-addr", defaultHTTPAddr, "HTTP server address")
	fs.StringVar(&cfg.HTTPServer.CORSOrigins, "http-cors-origins", defaultCORSOrigins, "comma separated allowed CORS origins")

	fs.StringVar(&cfg.Source.URL, "source-url", defaultSourceURL, "Sigfox callback endpoint returning JSON records")
	fs.DurationVar(&cfg.Source.Timeout, "source-timeout", defaultSourceTimeout, "timeout of one fetch attempt")
	fs.IntVar(&cfg.Source.Retries, "source-retries", defaultRetries, "retries after a failed fetch")
	fs.DurationVar(&cfg.Source.Backoff, "source-backoff", defaultBackoff, "initial retry backoff, doubled on each retry")

	fs.DurationVar(&cfg.Cache.TTL, "cache-ttl", defaultCacheTTL, "how long fetched records are reused")

	fs.BoolVar(&cfg.Poller.Enable, "poll-enable", defaultEnablePoller, "poll the source and publish new readings")
	fs.DurationVar(&cfg.Poller.Interval, "poll-interval", defaultPollInterval, "poll interval")

	fs.DurationVar(&cfg.Stats.ClearInterval, "stats-clear-interval", defaultClearInterval, "how often old statistics are dropped")
	fs.DurationVar(&cfg.Stats.Retention, "stats-retention", defaultRetention, "how long statistics are kept")

	fs.StringVar(&cfg.Metrics.PushURL, "metrics-push-url", defaultPushURL, "push metrics to this Prometheus import URL")
	fs.DurationVar(&cfg.Metrics.PushInterval, "metrics-push-interval", defaultPushInterval, "metrics push interval")

	fs.BoolVar(&cfg.UDPServer.Enable, "udp-enable", defaultEnableUDP, "enable UDP server")
	fs.StringVar(&cfg.UDPServer.Port, "udp-port", defaultUDPPort, "UDP server port")

	fs.BoolVar(&cfg.Serial.Enable, "serial-enable", defaultEnableSerial, "enable serial client")
	fs.StringVar(&cfg.Serial.PortName, "serial-port", defaultDevice, "serial device path (e.g., /dev/ttyUSB0)")
	fs.IntVar(&cfg.Serial.BaudRate, "serial-baud", defaultBaudRate, "serial baud rate")
	fs.StringVar(&cfg.Serial.Tag, "serial-tag", defaultDeviceTag, "log tag preceding the hex payload")

	fs.BoolVar(&cfg.MQTT.Enable, "mqtt-enable", defaultEnableMQTT, "enable MQTT client")
	fs.StringVar(&cfg.MQTT.Broker, "mqtt-broker", defaultBroker, "MQTT broker URI")
	fs.StringVar(&cfg.MQTT.ClientID, "mqtt-client-id", defaultClientID, "MQTT client id")
	fs.DurationVar(&cfg.MQTT.KeepAliveDuration, "mqtt-keep-alive", defaultKeepAliveDuration, "MQTT keep alive duration")
	fs.DurationVar(&cfg.MQTT.PingTimeout, "mqtt-ping-timeout", defaultPingTimeout, "MQTT ping timeout")
	fs.StringVar(&cfg.MQTT.Username, "mqtt-username", "", "MQTT username")
	fs.StringVar(&cfg.MQTT.Password, "mqtt-password", "", "MQTT password")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", defaultTopic, "MQTT topic")

	fs.BoolVar(&cfg.Simulator.Enable, "sim-enable", defaultEnableSimulator, "serve a simulated Sigfox callback endpoint")
	fs.StringVar(&cfg.Simulator.Addr, "sim-addr", defaultSimulatorAddr, "simulator listen address")
	fs.IntVar(&cfg.Simulator.Size, "sim-size", defaultSimulatorSize, "number of uplinks per simulated response")
}

// EnvName maps a flag name to its environment variable, e.g.
// source-url -> SIGFOX_SOURCE_URL.
func EnvName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// Parse reads flags from args. Environment variables override defaults,
// command line flags override both.
func Parse(fs *flag.FlagSet, args []string, getenv func(string) string) (Config, error) {
	cfg := Config{}
	register(fs, &cfg)

	var envErr error

	fs.VisitAll(func(f *flag.Flag) {
		v := getenv(EnvName(f.Name))
		if v == "" || envErr != nil {
			return
		}

		if err := fs.Set(f.Name, v); err != nil {
			envErr = fmt.Errorf("%w: %s: %w", ErrInvalid, EnvName(f.Name), err)
		}
	})

	if envErr != nil {
		return Config{}, envErr
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	if cfg.Source.URL == "" && cfg.Simulator.Enable {
		cfg.Source.URL = cfg.Simulator.URL()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func FromFlags() (Config, error) {
	return Parse(flag.CommandLine, os.Args[1:], os.Getenv)
}

func (c Config) Validate() error {
	if c.ShowVersion {
		return nil
	}

	if c.Source.URL == "" {
		return fmt.Errorf("%w: source-url is required unless sim-enable is set", ErrInvalid)
	}

	if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: source-url %q is not an absolute URL", ErrInvalid, c.Source.URL)
	}

	if c.Source.Retries < 0 {
		return fmt.Errorf("%w: source-retries cannot be negative", ErrInvalid)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache-ttl cannot be negative", ErrInvalid)
	}

	if c.Poller.Enable && c.Poller.Interval <= 0 {
		return fmt.Errorf("%w: poll-interval must be positive", ErrInvalid)
	}

	if c.Stats.ClearInterval <= 0 || c.Stats.Retention <= 0 {
		return fmt.Errorf("%w: stats intervals must be positive", ErrInvalid)
	}

	if c.Simulator.Enable && c.Simulator.Size <= 0 {
		return fmt.Errorf("%w: sim-size must be positive", ErrInvalid)
	}

	return nil
}
