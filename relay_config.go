package relay

import (
	"os"
	"time"

	"github.com/etcd-io/bbolt"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Configuration struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Store       StoreConfig       `yaml:"store"`
	Relay       RelayConfig       `yaml:"relay"`
	ProfileSync ProfileSyncConfig `yaml:"profile_sync"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
}

type HTTPConfig struct {
	Hostname string `yaml:"hostname"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

func (s *StoreConfig) BuildStore() (RelayStore, error) {
	db, err := bbolt.Open(s.Path, 0644, nil)

	if err != nil {
		return nil, err
	}

	return NewBoltRelayStore(db), nil
}

type RelayConfig struct {
	SessionTimeoutSeconds int `yaml:"session_timeout_seconds"`
	ReaperIntervalSeconds int `yaml:"reaper_interval_seconds"`
}

func (r *RelayConfig) SessionTimeout() time.Duration {
	if r.SessionTimeoutSeconds <= 0 {
		return DefaultSessionTimeout
	}

	return time.Duration(r.SessionTimeoutSeconds) * time.Second
}

func (r *RelayConfig) ReaperInterval() time.Duration {
	if r.ReaperIntervalSeconds <= 0 {
		return DefaultReaperInterval
	}

	return time.Duration(r.ReaperIntervalSeconds) * time.Second
}

type ProfileSyncConfig struct {
	URL string `yaml:"url"`
}

type MonitoringConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

func ReadConfig(location string) (conf *Configuration, err error) {
	f, err := os.Open(location)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&conf)

	if err != nil {
		return nil, err
	}

	if conf.HTTP.Hostname == "" {
		conf.HTTP.Hostname = "0.0.0.0:3000"
	}

	if conf.Store.Path == "" {
		conf.Store.Path = "relay.db"
	}

	logrus.Debugf("Read configuration from: %s", location)

	return conf, err
}
