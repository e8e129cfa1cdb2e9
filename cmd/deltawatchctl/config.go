// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DELTAWATCH_"

// Def names a builder and its parameters.
type Def struct {
	Builder string            `yaml:"builder"`
	Params  map[string]string `yaml:"builder_params"`
}

type WatchDef struct {
	Domain    string   `yaml:"domain"`
	Hostnames []string `yaml:"hostnames"`
}

type HTTPConfig struct {
	Listen  string `yaml:"listen"`
	Prefix  string `yaml:"prefix"`
	BaseURL string `yaml:"base_url"`
	WebURL  string `yaml:"web_url"`
}

type Config struct {
	HTTP         HTTPConfig    `yaml:"http"`
	Store        Def           `yaml:"store"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	Source       Def           `yaml:"source"`
	Watch        []WatchDef    `yaml:"watch"`
}

// Params collects repeatable key=value flags.
type Params map[string]string

func (p Params) String() string {
	var pairs []string
	for _, k := range slices.Sorted(maps.Keys(p)) {
		pairs = append(pairs, k+"="+p[k])
	}
	return strings.Join(pairs, ",")
}

// Set accepts key=value, or several of them separated by commas.
func (p Params) Set(s string) error {
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return fmt.Errorf("want key=value, got %q", pair)
		}
		p[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return nil
}

// LoadEnv reads .env files, then presets every flag from its DELTAWATCH_*
// variable. Command line arguments parsed afterwards still win.
func LoadEnv(fs *flag.FlagSet) error {
	if envFile := os.Getenv(EnvPrefix + "ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %v", envFile, err)
		}
	} else {
		for _, name := range []string{".env.local", ".env"} {
			if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %v", name, err)
			}
		}
	}

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		v, ok := os.LookupEnv(EnvName(f.Name))
		if !ok || err != nil {
			return
		}
		if setErr := fs.Set(f.Name, v); setErr != nil {
			err = fmt.Errorf("%s: %v", EnvName(f.Name), setErr)
		}
	})
	return err
}

// EnvName maps a flag name such as store-param to DELTAWATCH_STORE_PARAM.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// ResolveConfig layers explicitly set flags over the YAML file at path, and
// flag defaults under whatever the file leaves empty.
func ResolveConfig(path string, fs *flag.FlagSet) (*Config, error) {
	config := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %v", path, err)
		}
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	str := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && (set[name] || *dst == "") {
			*dst = f.Value.String()
		}
	}
	params := func(name string, dst *map[string]string) {
		f := fs.Lookup(name)
		if f == nil {
			return
		}
		if *dst == nil {
			*dst = map[string]string{}
		}
		maps.Copy(*dst, f.Value.(Params))
	}

	str("http-listen", &config.HTTP.Listen)
	str("http-prefix", &config.HTTP.Prefix)
	str("base-url", &config.HTTP.BaseURL)
	str("web-url", &config.HTTP.WebURL)
	str("store", &config.Store.Builder)
	str("source", &config.Source.Builder)
	params("store-param", &config.Store.Params)
	params("source-param", &config.Source.Params)

	if f := fs.Lookup("store-timeout"); f != nil && (set["store-timeout"] || config.StoreTimeout == 0) {
		config.StoreTimeout = f.Value.(flag.Getter).Get().(time.Duration)
	}

	if !strings.HasPrefix(config.HTTP.Prefix, "/") {
		config.HTTP.Prefix = "/" + config.HTTP.Prefix
	}
	if config.HTTP.BaseURL == "" {
		config.HTTP.BaseURL = "http://" + config.HTTP.Listen + strings.TrimSuffix(config.HTTP.Prefix, "/")
	}

	for _, w := range config.Watch {
		if _, err := core.Canonicalize(w.Domain); err != nil {
			return nil, fmt.Errorf("watch %q: %v", w.Domain, err)
		}
	}

	return config, nil
}
