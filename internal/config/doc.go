// Package config loads settings for the turbo command.
//
// Settings live in turbo.json, turbo.yaml or turbo.yml. Any field can be
// overridden with a TURBO_* environment variable.
//
// # Configuration File Structure
//
//	{
//	  "server": {"addr": ":7070", "key": "users/1"},
//	  "log": {"level": "info", "format": "text"},
//	  "cache": {"ttl": "1m"},
//	  "binding": {
//	    "refetchOnFocus": true,
//	    "refetchOnConnect": true,
//	    "focusInterval": "5s",
//	    "transition": true
//	  },
//	  "fetcher": {
//	    "kind": "http",
//	    "http": {"baseURL": "https://api.example.com", "timeout": "10s"}
//	  },
//	  "metrics": {"namespace": "turbo"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
//	    log.Fatal(err)
//	}
package config
