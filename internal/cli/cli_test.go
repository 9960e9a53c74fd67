//go:build unit

package cli

import (
	"bytes"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig(t *testing.T) {
	t.Run("accepts comments and trailing commas", func(t *testing.T) {
		// Prepare
		data := []byte(`{
			// table location
			"path": "/data",
			"name": "positions",
			"key_length": 24,
			"value_length": 18, /* packed info */
			"verbose": true,
		}`)

		// Execute
		cfg, err := ParseConfig(data)

		// Check
		assert.NoError(t, err, "parses")
		assert.Equal(t, Config{Path: "/data", Name: "positions", KeyLength: 24, ValueLength: 18, Verbose: true}, cfg, "config")
	})

	t.Run("rejects unknown fields and bad syntax", func(t *testing.T) {
		_, err := ParseConfig([]byte(`{"colour": "blue"}`))
		assert.ErrorIs(t, err, ErrConfigInvalid, "unknown field")

		_, err = ParseConfig([]byte(`{"path": `))
		assert.ErrorIs(t, err, ErrConfigInvalid, "truncated")
	})
}

func TestConfig_Parse(t *testing.T) {
	t.Run("flags on the command line win over the config file", func(t *testing.T) {
		// Prepare
		fileName := filepath.Join(t.TempDir(), "dht.jsonc")
		require.NoError(t, os.WriteFile(fileName, []byte(`{"path": "/from/file", "name": "file", "bucket_id_width": 2}`), 0644), "writes config")
		cfg := Config{BucketIDWidth: 3}
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		cfg.AddFlags(fs, "path", "name", "width")

		// Execute
		err := cfg.Parse(fs, []string{"--config", fileName, "--name", "flag"})

		// Check
		assert.NoError(t, err, "parses")
		assert.Equal(t, "/from/file", cfg.Path, "value from file")
		assert.Equal(t, "flag", cfg.Name, "value from flag")
		assert.Equal(t, 2, cfg.BucketIDWidth, "file overrides default")
	})

	t.Run("defaults stay without a config file", func(t *testing.T) {
		// Prepare
		cfg := Config{BucketIDWidth: 3, Workers: 4}
		fs := flag.NewFlagSet("verify", flag.ContinueOnError)
		cfg.AddFlags(fs, "width", "workers", "verbose")

		// Execute
		err := cfg.Parse(fs, []string{"-v", "--workers=8"})

		// Check
		assert.NoError(t, err, "parses")
		assert.Equal(t, Config{BucketIDWidth: 3, Workers: 8, Verbose: true}, cfg, "config")
	})
}

func TestWriteCounters(t *testing.T) {
	t.Run("writes matching counters sorted", func(t *testing.T) {
		// Prepare
		registry := prometheus.NewRegistry()
		counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "diskstore_test_total", Help: "test"}, []string{"outcome"})
		registry.MustRegister(counter)
		counter.WithLabelValues("b").Add(2)
		counter.WithLabelValues("a").Inc()
		other := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_total", Help: "other"})
		registry.MustRegister(other)
		other.Inc()
		var buf bytes.Buffer

		// Execute
		err := WriteCounters(&buf, registry, "diskstore_")

		// Check
		assert.NoError(t, err, "writes counters")
		assert.Equal(t, "diskstore_test_total{outcome=\"a\"} 1\ndiskstore_test_total{outcome=\"b\"} 2\n", buf.String(), "counters")
	})
}
