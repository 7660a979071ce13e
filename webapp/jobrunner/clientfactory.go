package jobrunner

// see https://github.com/kubernetes/client-go/blob/master/examples/in-cluster-client-configuration/main.go

import (
	"errors"
	"fmt"
	"io/ioutil"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

/**
anything that can hand out a kubernetes client. The facade asks for one on every call, the factory below
builds it once and hands out the same clientset afterwards
*/
type ClientProvider interface {
	Client() (kubernetes.Interface, error)
}

type ConfigSource struct {
	Name string
	Load func() (*rest.Config, error)
}

type ClientFactory struct {
	opts         KubeOptions
	sources      []ConfigSource
	newClientset func(config *rest.Config) (kubernetes.Interface, error)

	mutex  sync.Mutex
	client kubernetes.Interface
}

func NewClientFactory(opts KubeOptions) *ClientFactory {
	return NewClientFactoryWithSources(opts, DefaultConfigSources(opts))
}

func NewClientFactoryWithSources(opts KubeOptions, sources []ConfigSource) *ClientFactory {
	return &ClientFactory{
		opts:    opts,
		sources: sources,
		newClientset: func(config *rest.Config) (kubernetes.Interface, error) {
			return kubernetes.NewForConfig(config)
		},
	}
}

/**
the credential sources we try, in order of preference:
- in-cluster service account
- a kubeconfig file
- the service account files again, read directly rather than through rest.InClusterConfig
- whatever client-go's default loading rules come up with, so the last error is the most useful one
*/
func DefaultConfigSources(opts KubeOptions) []ConfigSource {
	return []ConfigSource{
		{Name: "in-cluster", Load: rest.InClusterConfig},
		{Name: "kubeconfig", Load: func() (*rest.Config, error) { return KubeConfigFileConfig(opts.KubeConfigPath) }},
		{Name: "service-account", Load: func() (*rest.Config, error) { return ServiceAccountConfig(opts.ServiceAccountDir) }},
		{Name: "default", Load: DefaultLoadingRulesConfig},
	}
}

/**
returns the shared clientset, building it on first use. If every source fails the error is classified
ClientUnavailable and the next call will try again.
*/
func (f *ClientFactory) Client() (kubernetes.Interface, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	var lastErr error
	for _, source := range f.sources {
		config, loadErr := source.Load()
		if loadErr != nil {
			log.Printf("WARNING ClientFactory could not load %s configuration: %s", source.Name, loadErr)
			lastErr = loadErr
			continue
		}
		config.Timeout = f.opts.Timeout

		clientset, clientErr := f.newClientset(config)
		if clientErr != nil {
			log.Printf("WARNING ClientFactory could not build client from %s configuration: %s", source.Name, clientErr)
			lastErr = clientErr
			continue
		}

		log.Printf("INFO ClientFactory using %s Kubernetes authentication", source.Name)
		f.client = clientset
		return clientset, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no configuration sources")
	}
	log.Printf("ERROR ClientFactory exhausted all authentication methods: %s", lastErr)
	return nil, newError(ErrClientUnavailable, "ClientFactory.Client", "", lastErr)
}

/**
initialise a connection config from a kubeconfig file (e.g. for kubectl). If no path is given then
$KUBECONFIG is tried and then ~/.kube/config. The file must exist.
*/
func KubeConfigFileConfig(kubeConfigPath string) (*rest.Config, error) {
	path := kubeConfigPath
	if path == "" {
		for _, candidate := range filepath.SplitList(os.Getenv(clientcmd.RecommendedConfigPathEnvVar)) {
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		path = clientcmd.RecommendedHomeFile
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return nil, fmt.Errorf("kubeconfig %s not usable: %w", path, statErr)
	}
	return clientcmd.BuildConfigFromFlags("", path)
}

/**
build a config straight from the service account token and CA bundle, without going through
client-go's loaders. The api server address comes from the usual in-cluster environment variables.
*/
func ServiceAccountConfig(serviceAccountDir string) (*rest.Config, error) {
	host, port := os.Getenv("KUBERNETES_SERVICE_HOST"), os.Getenv("KUBERNETES_SERVICE_PORT")
	if host == "" || port == "" {
		return nil, errors.New("KUBERNETES_SERVICE_HOST and KUBERNETES_SERVICE_PORT must be set")
	}

	tokenFile := filepath.Join(serviceAccountDir, "token")
	caFile := filepath.Join(serviceAccountDir, "ca.crt")

	token, readErr := ioutil.ReadFile(tokenFile)
	if readErr != nil {
		return nil, readErr
	}
	if strings.TrimSpace(string(token)) == "" {
		return nil, fmt.Errorf("service account token %s is empty", tokenFile)
	}
	if _, statErr := os.Stat(caFile); statErr != nil {
		return nil, statErr
	}

	return &rest.Config{
		Host:            "https://" + net.JoinHostPort(host, port),
		BearerToken:     strings.TrimSpace(string(token)),
		BearerTokenFile: tokenFile,
		TLSClientConfig: rest.TLSClientConfig{CAFile: caFile},
	}, nil
}

func DefaultLoadingRulesConfig() (*rest.Config, error) {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{},
	).ClientConfig()
}

/**
hands out a client that was built elsewhere, e.g. a fake clientset in tests
*/
type StaticClientProvider struct {
	Clientset kubernetes.Interface
}

func (p StaticClientProvider) Client() (kubernetes.Interface, error) {
	if p.Clientset == nil {
		return nil, newError(ErrClientUnavailable, "StaticClientProvider.Client", "", errors.New("no client configured"))
	}
	return p.Clientset, nil
}
