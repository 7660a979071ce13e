package helpers

import (
	"gopkg.in/yaml.v2"
	"io/ioutil"
	"log"
)

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DBNum    int    `yaml:"dbNum"`
}

type StoreConfig struct {
	Backend      string `yaml:"backend"` //"redis" (default) or "postgres"
	PostgresUrl  string `yaml:"postgresUrl"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type KubernetesConfig struct {
	Namespace      string `yaml:"namespace"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxLogLines    int64  `yaml:"maxLogLines"`
	KubeConfig     string `yaml:"kubeConfig"`
	JobTemplate    string `yaml:"jobTemplate"`
	ProductLabel   string `yaml:"productLabel"`
}

type MonitorConfig struct {
	PollIntervalSeconds int `yaml:"pollIntervalSeconds"`
	MaxIntervalSeconds  int `yaml:"maxIntervalSeconds"`
	MaxAttempts         int `yaml:"maxAttempts"`
	TimeoutSeconds      int `yaml:"timeoutSeconds"`
}

type Config struct {
	Redis          RedisConfig      `yaml:"redis"`
	Store          StoreConfig      `yaml:"store"`
	Kubernetes     KubernetesConfig `yaml:"kubernetes"`
	Monitor        MonitorConfig    `yaml:"monitor"`
	ListenAddress  string           `yaml:"listenAddress"`
	MetricsAddress string           `yaml:"metricsAddress"`
}

/**
fill in anything that was not given in the config file with the stock values
*/
func (c *Config) ApplyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "redis"
	}
	if c.Store.MaxOpenConns <= 0 {
		c.Store.MaxOpenConns = 5
	}
	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Kubernetes.Namespace == "" {
		c.Kubernetes.Namespace = "default"
	}
	if c.Kubernetes.TimeoutSeconds <= 0 {
		c.Kubernetes.TimeoutSeconds = 300
	}
	if c.Kubernetes.MaxLogLines <= 0 {
		c.Kubernetes.MaxLogLines = 1000
	}
	if c.Kubernetes.ProductLabel == "" {
		c.Kubernetes.ProductLabel = "sparktest"
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		c.Monitor.PollIntervalSeconds = 2
	}
	if c.Monitor.MaxIntervalSeconds < c.Monitor.PollIntervalSeconds {
		c.Monitor.MaxIntervalSeconds = c.Monitor.PollIntervalSeconds
	}
	if c.Monitor.MaxAttempts <= 0 {
		c.Monitor.MaxAttempts = 30
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":3001"
	}
	if c.MetricsAddress == "" {
		c.MetricsAddress = ":9090"
	}
}

func ReadConfig(configFile string) (*Config, error) {
	configBytes, readErr := ioutil.ReadFile(configFile)
	if readErr != nil {
		log.Printf("Could not read config from '%s': %s\n", configFile, readErr)
		return nil, readErr
	}

	var conf Config

	err := yaml.Unmarshal(configBytes, &conf)
	if err != nil {
		log.Printf("Could not understand config from '%s': %s\n", configFile, err)
		return nil, err
	}
	conf.ApplyDefaults()
	return &conf, nil
}
