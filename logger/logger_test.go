// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		" WARN ":   zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"":         zerolog.InfoLevel,
		"nonsense": zerolog.InfoLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvPrefix+"LEVEL", "DEBUG")
	t.Setenv(EnvPrefix+"FORMAT", "json")

	opt := FromEnv()
	require.Equal(t, "debug", opt.Level)
	require.Equal(t, "json", opt.Format)
	require.Equal(t, "deltawatch", opt.Service)
}

func TestInitNamed(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Service: "svc", Writer: &buf})

	// Init is once-only; the second call must not replace the root.
	Init(Options{Level: "error", Writer: &bytes.Buffer{}})

	Named("feed").Debug().Str("domain", "example.com").Msg("Render")
	Get().Info().Msg("root")

	out := buf.String()
	require.Contains(t, out, `"component":"feed"`)
	require.Contains(t, out, `"service":"svc"`)
	require.Contains(t, out, `"domain":"example.com"`)
	require.Contains(t, out, `"message":"root"`)
}
