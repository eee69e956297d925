package config

import (
	"strconv"

	"github.com/vango-dev/turboresource/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TURBO_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type override struct {
	name  string
	apply func(c *Config, v string) error
}

func str(set func(c *Config, v string)) func(*Config, string) error {
	return func(c *Config, v string) error {
		set(c, v)
		return nil
	}
}

func boolean(name string, set func(c *Config, v bool)) override {
	return override{name, func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("T007").WithSource(EnvPrefix + name + "=" + v).Wrap(err)
		}
		set(c, b)
		return nil
	}}
}

var overrides = []override{
	{"ADDR", str(func(c *Config, v string) { c.Server.Addr = v })},
	{"KEY", str(func(c *Config, v string) { c.Server.Key = v })},
	{"LOG_LEVEL", str(func(c *Config, v string) { c.Log.Level = v })},
	{"LOG_FORMAT", str(func(c *Config, v string) { c.Log.Format = v })},
	{"TTL", str(func(c *Config, v string) { c.Cache.TTL = v })},
	{"FOCUS_INTERVAL", str(func(c *Config, v string) { c.Binding.FocusInterval = v })},
	boolean("REFETCH_ON_FOCUS", func(c *Config, v bool) { c.Binding.RefetchOnFocus = v }),
	boolean("REFETCH_ON_CONNECT", func(c *Config, v bool) { c.Binding.RefetchOnConnect = v }),
	boolean("TRANSITION", func(c *Config, v bool) { c.Binding.Transition = v }),
	{"FETCHER", str(func(c *Config, v string) { c.Fetcher.Kind = v })},
	{"HTTP_BASE_URL", str(func(c *Config, v string) { c.Fetcher.HTTP.BaseURL = v })},
	{"HTTP_TIMEOUT", str(func(c *Config, v string) { c.Fetcher.HTTP.Timeout = v })},
	{"S3_BUCKET", str(func(c *Config, v string) { c.Fetcher.S3.Bucket = v })},
	{"S3_PREFIX", str(func(c *Config, v string) { c.Fetcher.S3.Prefix = v })},
	{"S3_REGION", str(func(c *Config, v string) { c.Fetcher.S3.Region = v })},
	{"S3_ENDPOINT", str(func(c *Config, v string) { c.Fetcher.S3.Endpoint = v })},
	boolean("S3_PATH_STYLE", func(c *Config, v bool) { c.Fetcher.S3.PathStyle = v }),
	{"METRICS_NAMESPACE", str(func(c *Config, v string) { c.Metrics.Namespace = v })},
}

// ApplyEnv overrides fields from TURBO_* variables found by lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, o := range overrides {
		v, ok := lookup(EnvPrefix + o.name)
		if !ok {
			continue
		}
		if err := o.apply(c, v); err != nil {
			return err
		}
	}
	return nil
}
