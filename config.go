package mqtt

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape LoadOptions reads (a supplemented
// feature: embedded deployments configure a client from a provisioned
// file rather than composing Option values in code).
type fileConfig struct {
	ClientID     string `yaml:"clientId"`
	CleanSession bool   `yaml:"cleanSession"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`

	KeepAlive   string `yaml:"keepAlive"`
	IdleTimeout string `yaml:"idleTimeout"`
	MsgTimeout  string `yaml:"msgTimeout"`
	MaxMessage  int    `yaml:"maxMessage"`

	Will *struct {
		Topic   string `yaml:"topic"`
		Payload string `yaml:"payload"`
		QoS     uint8  `yaml:"qos"`
		Retain  bool   `yaml:"retain"`
	} `yaml:"will"`
}

// LoadOptions reads a YAML configuration file and returns the equivalent
// Option slice, letting callers combine file-provisioned settings with
// programmatic ones: mqtt.NewSession(append(fileOpts, mqtt.WithLogger(l))...).
func LoadOptions(path string) ([]Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(ErrBadArgs, err, "reading config %q", path)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, wrapErr(ErrBadArgs, err, "parsing config %q", path)
	}

	var opts []Option
	if cfg.ClientID != "" {
		opts = append(opts, WithClientID(cfg.ClientID))
	}
	opts = append(opts, WithCleanSession(cfg.CleanSession))
	if cfg.Username != "" {
		opts = append(opts, WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.KeepAlive != "" {
		d, err := time.ParseDuration(cfg.KeepAlive)
		if err != nil {
			return nil, newErr(ErrBadArgs, "invalid keepAlive %q: %v", cfg.KeepAlive, err)
		}
		opts = append(opts, WithKeepAlive(d))
	}
	if cfg.IdleTimeout != "" {
		d, err := time.ParseDuration(cfg.IdleTimeout)
		if err != nil {
			return nil, newErr(ErrBadArgs, "invalid idleTimeout %q: %v", cfg.IdleTimeout, err)
		}
		opts = append(opts, WithIdleTimeout(d))
	}
	if cfg.MsgTimeout != "" {
		d, err := time.ParseDuration(cfg.MsgTimeout)
		if err != nil {
			return nil, newErr(ErrBadArgs, "invalid msgTimeout %q: %v", cfg.MsgTimeout, err)
		}
		opts = append(opts, WithMsgTimeout(d))
	}
	if cfg.MaxMessage > 0 {
		opts = append(opts, WithMaxMessageSize(cfg.MaxMessage))
	}
	if cfg.Will != nil {
		opts = append(opts, WithWill(cfg.Will.Topic, []byte(cfg.Will.Payload), QoS(cfg.Will.QoS), cfg.Will.Retain))
	}
	return opts, nil
}
