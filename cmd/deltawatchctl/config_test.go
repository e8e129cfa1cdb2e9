// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("deltawatchctl", flag.ContinueOnError)
	fs.String("http-listen", "[::1]:8080", "")
	fs.String("http-prefix", "/", "")
	fs.String("base-url", "", "")
	fs.String("web-url", "", "")
	fs.String("store", "memory", "")
	fs.Var(Params{}, "store-param", "")
	fs.Duration("store-timeout", 5*time.Second, "")
	fs.String("source", "dns", "")
	fs.Var(Params{}, "source-param", "")
	return fs
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestParams(t *testing.T) {
	p := Params{}
	require.NoError(t, p.Set("addr=127.0.0.1:6379"))
	require.NoError(t, p.Set("db=2, prefix=dw:"))
	require.Equal(t, Params{"addr": "127.0.0.1:6379", "db": "2", "prefix": "dw:"}, p)
	require.Equal(t, "addr=127.0.0.1:6379,db=2,prefix=dw:", p.String())

	require.Error(t, p.Set("novalue"))
	require.Error(t, p.Set("=x"))
}

func TestEnvName(t *testing.T) {
	require.Equal(t, "DELTAWATCH_STORE_PARAM", EnvName("store-param"))
	require.Equal(t, "DELTAWATCH_HTTP_LISTEN", EnvName("http-listen"))
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DELTAWATCH_STORE", "redis")
	t.Setenv("DELTAWATCH_STORE_PARAM", "addr=redis:6379,db=1")

	envFile := writeFile(t, "deltawatch.env", "DELTAWATCH_BASE_URL=https://feeds.example.net\n")
	t.Setenv("DELTAWATCH_ENV_FILE", envFile)
	t.Cleanup(func() { os.Unsetenv("DELTAWATCH_BASE_URL") })

	fs := newFlagSet()
	require.NoError(t, LoadEnv(fs))
	require.NoError(t, fs.Parse([]string{"-store", "postgres"}))

	require.Equal(t, "postgres", fs.Lookup("store").Value.String())
	require.Equal(t, "https://feeds.example.net", fs.Lookup("base-url").Value.String())
	require.Equal(t, "addr=redis:6379,db=1", fs.Lookup("store-param").Value.String())
}

func TestLoadEnvBadValue(t *testing.T) {
	t.Setenv("DELTAWATCH_ENV_FILE", writeFile(t, "empty.env", ""))
	t.Setenv("DELTAWATCH_STORE_TIMEOUT", "soon")

	require.ErrorContains(t, LoadEnv(newFlagSet()), "DELTAWATCH_STORE_TIMEOUT")
}

func TestLoadEnvMissingFile(t *testing.T) {
	t.Setenv("DELTAWATCH_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	require.Error(t, LoadEnv(newFlagSet()))
}

func TestResolveConfigDefaults(t *testing.T) {
	fs := newFlagSet()
	require.NoError(t, fs.Parse(nil))

	config, err := ResolveConfig("", fs)
	require.NoError(t, err)
	require.Equal(t, "[::1]:8080", config.HTTP.Listen)
	require.Equal(t, "/", config.HTTP.Prefix)
	require.Equal(t, "http://[::1]:8080", config.HTTP.BaseURL)
	require.Equal(t, "memory", config.Store.Builder)
	require.Equal(t, map[string]string{}, config.Store.Params)
	require.Equal(t, 5*time.Second, config.StoreTimeout)
	require.Equal(t, "dns", config.Source.Builder)
	require.Empty(t, config.Watch)
}

func TestResolveConfigFile(t *testing.T) {
	path := writeFile(t, "deltawatch.yaml", `
http:
  listen: 0.0.0.0:9000
  prefix: feeds/
  web_url: https://dnstwister.example
store:
  builder: redis
  builder_params:
    addr: redis:6379
    db: "3"
store_timeout: 2s
source:
  builder: cloudflare
  builder_params:
    zone: example.com
watch:
  - domain: Example.COM.
    hostnames: [www.example.com, mail.example.com]
  - domain: bücher.example
`)

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-store-param", "db=4", "-source", "dns", "-http-listen", "[::]:8443"}))

	config, err := ResolveConfig(path, fs)
	require.NoError(t, err)

	// Explicit flags win over the file, the file wins over flag defaults.
	require.Equal(t, "[::]:8443", config.HTTP.Listen)
	require.Equal(t, "/feeds/", config.HTTP.Prefix)
	require.Equal(t, "http://[::]:8443/feeds", config.HTTP.BaseURL)
	require.Equal(t, "https://dnstwister.example", config.HTTP.WebURL)
	require.Equal(t, "redis", config.Store.Builder)
	require.Equal(t, map[string]string{"addr": "redis:6379", "db": "4"}, config.Store.Params)
	require.Equal(t, 2*time.Second, config.StoreTimeout)
	require.Equal(t, "dns", config.Source.Builder)
	require.Equal(t, map[string]string{"zone": "example.com"}, config.Source.Params)

	require.Len(t, config.Watch, 2)
	require.Equal(t, []string{"www.example.com", "mail.example.com"}, config.Watch[0].Hostnames)
}

func TestResolveConfigRejects(t *testing.T) {
	fs := newFlagSet()
	require.NoError(t, fs.Parse(nil))

	_, err := ResolveConfig(filepath.Join(t.TempDir(), "absent.yaml"), fs)
	require.Error(t, err)

	_, err = ResolveConfig(writeFile(t, "bad.yaml", "watch: {"), fs)
	require.ErrorContains(t, err, "parse")

	_, err = ResolveConfig(writeFile(t, "domain.yaml", "watch:\n  - domain: exa mple.com\n"), fs)
	require.ErrorContains(t, err, "exa mple.com")
}
