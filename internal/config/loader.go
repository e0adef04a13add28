// Package config loads MVRP server and client settings from command line
// flags, MVRP_* environment variables and an optional YAML or TOML file.
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sufield/mvrp/internal/adapters/logging"
	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
	"github.com/sufield/mvrp/internal/wire"
)

// EnvPrefix prefixes every environment variable, e.g. MVRP_ADDRESS or
// MVRP_LOG_LEVEL.
const EnvPrefix = "MVRP"

// DefaultShutdownGrace bounds how long in-flight connections may take once
// the server is told to stop.
const DefaultShutdownGrace = 10 * time.Second

// ServerConfig is everything `mvrp serve` needs.
type ServerConfig struct {
	Address  string `mapstructure:"address" validate:"required,hostport"`
	KeyFile  string `mapstructure:"key_file" validate:"required,file_exists"`
	CertFile string `mapstructure:"cert_file" validate:"required,file_exists"`
	// CAFile is optional for a server. Under client_auth require it is the
	// client anchor unless ClientCAFile is set.
	CAFile       string `mapstructure:"ca_file" validate:"omitempty,file_exists"`
	ClientAuth   string `mapstructure:"client_auth" validate:"omitempty,oneof=none require"`
	ClientCAFile string `mapstructure:"client_ca_file" validate:"omitempty,file_exists"`
	PeerID       string `mapstructure:"peer_id" validate:"omitempty,spiffe_id"`

	MaxMessageSize   int           `mapstructure:"max_message_size" validate:"gte=0"`
	BodyMode         wire.BodyMode `mapstructure:"body_mode"`
	MaxConnections   int           `mapstructure:"max_connections" validate:"gte=0"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gte=0"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace" validate:"gte=0"`

	// MetricsAddress enables the Prometheus endpoint when set.
	MetricsAddress string `mapstructure:"metrics_address" validate:"omitempty,hostport"`

	Log logging.Config `mapstructure:"log"`
}

// ClientConfig is everything `mvrp request` needs.
type ClientConfig struct {
	Address  string `mapstructure:"address" validate:"required,hostport"`
	KeyFile  string `mapstructure:"key_file" validate:"required,file_exists"`
	CertFile string `mapstructure:"cert_file" validate:"required,file_exists"`
	CAFile   string `mapstructure:"ca_file" validate:"required,file_exists"`
	// ServerName overrides the host part of Address as the expected server
	// identity.
	ServerName string `mapstructure:"server_name"`
	PeerID     string `mapstructure:"peer_id" validate:"omitempty,spiffe_id"`

	// MaxMessageSize bounds the single response read.
	MaxMessageSize int           `mapstructure:"max_message_size" validate:"gte=0"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" validate:"gte=0"`

	Log logging.Config `mapstructure:"log"`
}

// Framer returns the message framer the server runs with.
func (c *ServerConfig) Framer() wire.Framer {
	return wire.Framer{MaxMessageSize: c.MaxMessageSize, BodyMode: c.BodyMode}
}

// Framer returns the message framer the client reads responses with. Body
// modes only apply to parsing requests, so the client has none.
func (c *ClientConfig) Framer() wire.Framer {
	return wire.Framer{MaxMessageSize: c.MaxMessageSize}
}

// Loader layers flags over environment over config file over defaults.
type Loader struct {
	v         *viper.Viper
	validator *Validator
}

// NewLoader returns a loader reading MVRP_* environment variables.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, validator: NewValidator()}
}

// BindFlags makes every flag in fs a configuration source. Flags only
// override lower layers when set on the command line.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if bindErr := l.v.BindPFlag(FlagKey(f.Name), f); bindErr != nil {
			err = mvrperrors.Wrapf(mvrperrors.ErrConfig, bindErr, "bind flag --%s", f.Name)
		}
	})
	return err
}

var flagAliases = map[string]string{
	"key":       "key_file",
	"cert":      "cert_file",
	"ca":        "ca_file",
	"client-ca": "client_ca_file",
}

// FlagKey maps a dashed flag name to its configuration key, e.g.
// "max-message-size" to "max_message_size", "log-level" to "log.level" and
// "key" to "key_file".
func FlagKey(name string) string {
	if key, ok := flagAliases[name]; ok {
		return key
	}
	if rest, ok := strings.CutPrefix(name, "log-"); ok {
		return "log." + rest
	}
	return strings.ReplaceAll(name, "-", "_")
}

// ReadFile merges the config file at path. The format follows the
// extension. An empty path is a no-op.
func (l *Loader) ReadFile(path string) error {
	if path == "" {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "read config file %s", path)
	}
	return nil
}

// Set overrides key for this loader only.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// LoadServer decodes and validates the server configuration.
func (l *Loader) LoadServer() (*ServerConfig, error) {
	setCommonDefaults(l.v)
	l.v.SetDefault("ca_file", "")
	l.v.SetDefault("body_mode", wire.BodyLastLine.String())
	l.v.SetDefault("client_auth", "none")
	l.v.SetDefault("client_ca_file", "")
	l.v.SetDefault("max_connections", 0)
	l.v.SetDefault("handshake_timeout", time.Duration(0))
	l.v.SetDefault("shutdown_grace", DefaultShutdownGrace)
	l.v.SetDefault("metrics_address", "")

	var cfg ServerConfig
	if err := l.v.Unmarshal(&cfg, decodeHooks()); err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "decode server configuration")
	}
	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient decodes and validates the client configuration.
func (l *Loader) LoadClient() (*ClientConfig, error) {
	setCommonDefaults(l.v)
	l.v.SetDefault("ca_file", "")
	l.v.SetDefault("server_name", "")
	l.v.SetDefault("dial_timeout", time.Duration(0))

	var cfg ClientConfig
	if err := l.v.Unmarshal(&cfg, decodeHooks()); err != nil {
		return nil, mvrperrors.Wrapf(mvrperrors.ErrConfig, err, "decode client configuration")
	}
	if err := l.validator.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setCommonDefaults also registers every shared key so AutomaticEnv can
// supply it during Unmarshal. The address has no default; binding it to the
// environment is enough for MVRP_ADDRESS to be seen.
func setCommonDefaults(v *viper.Viper) {
	_ = v.BindEnv("address")
	v.SetDefault("key_file", "")
	v.SetDefault("cert_file", "")
	v.SetDefault("peer_id", "")
	v.SetDefault("max_message_size", wire.DefaultMaxMessageSize)
	v.SetDefault("read_timeout", time.Duration(0))
	v.SetDefault("write_timeout", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
}

func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.DecodeHookFuncType(bodyModeHook),
	))
}

var bodyModeType = reflect.TypeOf(wire.BodyMode(0))

func bodyModeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != bodyModeType {
		return data, nil
	}
	s, _ := data.(string)
	return wire.ParseBodyMode(s)
}
