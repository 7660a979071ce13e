package jobrunner

import (
	"github.com/sparktest/orchestrator/common/helpers"
	"time"
)

const DEFAULT_SERVICE_ACCOUNT_DIR = "/var/run/secrets/kubernetes.io/serviceaccount"

type KubeOptions struct {
	Namespace         string
	Timeout           time.Duration //bounds every individual call to the api server
	MaxLogLines       int64
	KubeConfigPath    string //empty means $KUBECONFIG or ~/.kube/config
	ServiceAccountDir string
	JobTemplate       string //optional manifest to start jobs from
	ProductLabel      string
	TTLAfterFinished  int32
}

func DefaultKubeOptions() KubeOptions {
	return KubeOptions{
		Namespace:         "default",
		Timeout:           300 * time.Second,
		MaxLogLines:       1000,
		ServiceAccountDir: DEFAULT_SERVICE_ACCOUNT_DIR,
		ProductLabel:      "sparktest",
		TTLAfterFinished:  3600,
	}
}

func KubeOptionsFromConfig(config *helpers.Config) KubeOptions {
	opts := DefaultKubeOptions()
	if config.Kubernetes.Namespace != "" {
		opts.Namespace = config.Kubernetes.Namespace
	}
	if config.Kubernetes.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(config.Kubernetes.TimeoutSeconds) * time.Second
	}
	if config.Kubernetes.MaxLogLines > 0 {
		opts.MaxLogLines = config.Kubernetes.MaxLogLines
	}
	if config.Kubernetes.ProductLabel != "" {
		opts.ProductLabel = config.Kubernetes.ProductLabel
	}
	opts.KubeConfigPath = config.Kubernetes.KubeConfig
	opts.JobTemplate = config.Kubernetes.JobTemplate
	return opts
}

type MonitorConfig struct {
	PollInterval time.Duration
	MaxInterval  time.Duration //equal to PollInterval means a fixed interval
	MaxAttempts  int
	Timeout      time.Duration //zero means no overall deadline beyond MaxAttempts
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: 2 * time.Second,
		MaxInterval:  2 * time.Second,
		MaxAttempts:  30,
	}
}

func MonitorConfigFromConfig(config *helpers.Config) MonitorConfig {
	cfg := DefaultMonitorConfig()
	if config.Monitor.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(config.Monitor.PollIntervalSeconds) * time.Second
	}
	if config.Monitor.MaxIntervalSeconds > 0 {
		cfg.MaxInterval = time.Duration(config.Monitor.MaxIntervalSeconds) * time.Second
	}
	if cfg.MaxInterval < cfg.PollInterval {
		cfg.MaxInterval = cfg.PollInterval
	}
	if config.Monitor.MaxAttempts > 0 {
		cfg.MaxAttempts = config.Monitor.MaxAttempts
	}
	if config.Monitor.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(config.Monitor.TimeoutSeconds) * time.Second
	}
	return cfg
}
