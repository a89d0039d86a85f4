// Package config holds the settings of the bookexport command: transport
// options, the output directory, and the vendor session cookies exported from
// a logged-in browser.
package config

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/net/publicsuffix"
	"sigs.k8s.io/yaml"
)

// Environment variables read by Default.
const (
	EnvConfig = "BOOKEXPORT_CONFIG"
	EnvDebug  = "BOOKEXPORT_DEBUG"
)

const defaultTimeout = 60 * time.Second

// Cookie is one vendor session cookie.
type Cookie struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Path   string `json:"path,omitempty"`
}

// Config describes all of the command settings.
type Config struct {
	// UserAgent overrides the browser user agent sent to vendors.
	UserAgent string `json:"userAgent,omitempty"`
	// Timeout bounds each request, as a Go duration string.
	Timeout string `json:"timeout,omitempty"`
	// OutputDir is where exported archives are written.
	OutputDir string `json:"outputDir,omitempty"`
	// Debug enables verbose logging.
	Debug bool `json:"debug,omitempty"`
	// Cookies authenticate requests against the vendors.
	Cookies []Cookie `json:"cookies,omitempty"`
}

// Default returns the settings used when no file is loaded, with
// $BOOKEXPORT_DEBUG applied.
func Default() *Config {
	c := &Config{
		Timeout:   defaultTimeout.String(),
		OutputDir: ".",
	}
	c.Debug, _ = strconv.ParseBool(os.Getenv(EnvDebug))
	return c
}

// Path returns the configuration file named by $BOOKEXPORT_CONFIG, if any.
func Path() string {
	return os.Getenv(EnvConfig)
}

// Load reads a YAML configuration file. Fields absent from the file keep
// their Default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return nil, err
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the timeout and every cookie.
func (c *Config) Validate() error {
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	for i, ck := range c.Cookies {
		if ck.Domain == "" || ck.Name == "" {
			return fmt.Errorf("cookie %d: domain and name are required", i)
		}
	}
	return nil
}

// AddFlags binds flags to the given flagset.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "user agent sent to the vendor")
	fs.StringVar(&c.Timeout, "timeout", c.Timeout, "per-request timeout")
	fs.StringVarP(&c.OutputDir, "output-dir", "o", c.OutputDir, "directory to write exported books to")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable verbose output")
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: negative", c.Timeout)
	}
	return d, nil
}

// CookieJar returns a jar holding Cookies. A cookie whose domain starts with
// a dot is sent to every subdomain.
func (c *Config) CookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	for _, ck := range c.Cookies {
		host := strings.TrimPrefix(ck.Domain, ".")
		p := ck.Path
		if p == "" {
			p = "/"
		}
		cookie := &http.Cookie{Name: ck.Name, Value: ck.Value, Path: p}
		if strings.HasPrefix(ck.Domain, ".") {
			cookie.Domain = ck.Domain
		}
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: p}, []*http.Cookie{cookie})
	}
	return jar, nil
}
