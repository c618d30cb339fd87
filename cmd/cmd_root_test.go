// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jcodagnone/postcodes/geocoding"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseURLFlag(t *testing.T, args ...string) (*pflag.FlagSet, *string) {
	t.Helper()

	var url string

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&url, "postcodes-io-url", geocoding.DefaultPostcodesIOURL, "")
	require.NoError(t, flags.Parse(args))

	return flags, &url
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadEnvFlagPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTCODES_IO_URL", "http://env.test")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"env fills the default", nil, "http://env.test"},
		{"flag wins over env", []string{"--postcodes-io-url", "http://flag.test"}, "http://flag.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, url := parseURLFlag(t, tt.args...)

			require.NoError(t, loadEnv(flags))
			assert.Equal(t, tt.want, *url)
		})
	}
}

func TestLoadEnvWithoutEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	unsetEnv(t, "POSTCODES_IO_URL")

	flags, url := parseURLFlag(t)

	require.NoError(t, loadEnv(flags))
	assert.Equal(t, geocoding.DefaultPostcodesIOURL, *url)
}

func TestLoadEnvDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("POSTCODES_IO_URL=http://dotenv.test\nNOMINATIM_URL=http://dotenv-nominatim.test\n"), 0o600))
	t.Chdir(dir)

	unsetEnv(t, "POSTCODES_IO_URL")
	t.Setenv("NOMINATIM_URL", "http://env-nominatim.test")

	var nominatim string

	flags, url := parseURLFlag(t)
	flags.StringVar(&nominatim, "nominatim-url", geocoding.DefaultNominatimURL, "")

	require.NoError(t, loadEnv(flags))
	assert.Equal(t, "http://dotenv.test", *url)
	assert.Equal(t, "http://env-nominatim.test", nominatim, "the environment wins over .env")

	flags, url = parseURLFlag(t, "--postcodes-io-url=http://flag.test")
	require.NoError(t, loadEnv(flags))
	assert.Equal(t, "http://flag.test", *url, "flags win over .env")
}

func TestEnvDefaultsMatchRootFlags(t *testing.T) {
	for flag := range envDefaults {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
