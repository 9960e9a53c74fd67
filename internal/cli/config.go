// Package cli holds what the maintenance tools share: a JSON with comments configuration file whose values act
// as flag defaults, logger construction and a plain text dump of the collected counters.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
	"os"
)

// ErrConfigInvalid - The configuration file could not be parsed
var ErrConfigInvalid = errors.New("invalid config file")

// Config - Settings of the maintenance tools. Every field can be given in the configuration file and by the flag
// of the same name, a flag given on the command line wins.
type Config struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	KeyLength     int64  `json:"key_length"`
	ValueLength   int64  `json:"value_length"`
	BucketIDWidth int    `json:"bucket_id_width"`
	Router        string `json:"router"`
	RecLen        int    `json:"rec_len"`
	MaxBlockSize  int64  `json:"max_block_size"`
	Workers       int    `json:"workers"`
	Verbose       bool   `json:"verbose"`
}

// flagUsage - Help text of every flag AddFlags knows about
var flagUsage = map[string]string{
	"path":         "directory holding the table or queue directory",
	"name":         "name of the table or queue",
	"key-length":   "table key length in bytes",
	"value-length": "table value length in bytes",
	"width":        "bucket id width in hexadecimal characters",
	"router":       "bucket router, md5 or xxhash",
	"rec-len":      "queue record length in bytes",
	"max-block":    "queue max block size in bytes",
	"workers":      "number of concurrent workers",
	"verbose":      "development logging at debug level",
}

// LoadConfig - Reads and parses a configuration file
func LoadConfig(fileName string) (cfg Config, err error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		err = fmt.Errorf("unable to read config file %s: %w", fileName, err)
		return
	}

	cfg, err = ParseConfig(data)
	if err != nil {
		err = fmt.Errorf("%s: %w", fileName, err)
	}

	return
}

// ParseConfig - Parses JSON with comments and trailing commas into a Config
func ParseConfig(data []byte) (cfg Config, err error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		return
	}

	decoder := json.NewDecoder(bytes.NewReader(standardized))
	decoder.DisallowUnknownFields()
	err = decoder.Decode(&cfg)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return
}

// Parse - Parses args with fs into C. A configuration file named by --config supplies the values of flags not
// given on the command line.
func (C *Config) Parse(fs *flag.FlagSet, args []string) (err error) {
	configFile := fs.String("config", "", "JSON with comments configuration file")

	err = fs.Parse(args)
	if err != nil || *configFile == "" {
		return
	}

	file, err := LoadConfig(*configFile)
	if err != nil {
		return
	}
	C.MergeFile(fs, file)

	return
}

// AddFlags - Registers the named flags on fs, bound to the fields of C with the current field values as defaults
func (C *Config) AddFlags(fs *flag.FlagSet, names ...string) {
	fields := C.fields()
	for _, name := range names {
		switch p := fields[name].(type) {
		case *string:
			fs.StringVar(p, name, *p, flagUsage[name])
		case *int64:
			fs.Int64Var(p, name, *p, flagUsage[name])
		case *int:
			fs.IntVar(p, name, *p, flagUsage[name])
		case *bool:
			fs.BoolVarP(p, name, "v", *p, flagUsage[name])
		default:
			panic(fmt.Sprintf("cli: unknown flag %q", name))
		}
	}
}

// MergeFile - Copies the non zero values of file into C for every flag of fs not given on the command line
func (C *Config) MergeFile(fs *flag.FlagSet, file Config) {
	dst := C.fields()
	src := file.fields()

	fs.VisitAll(func(f *flag.Flag) {
		if f.Changed {
			return
		}

		switch p := dst[f.Name].(type) {
		case *string:
			if v := *src[f.Name].(*string); v != "" {
				*p = v
			}
		case *int64:
			if v := *src[f.Name].(*int64); v != 0 {
				*p = v
			}
		case *int:
			if v := *src[f.Name].(*int); v != 0 {
				*p = v
			}
		case *bool:
			if v := *src[f.Name].(*bool); v {
				*p = v
			}
		}
	})
}

// fields - Maps flag names to the fields of C
func (C *Config) fields() map[string]any {
	return map[string]any{
		"path":         &C.Path,
		"name":         &C.Name,
		"key-length":   &C.KeyLength,
		"value-length": &C.ValueLength,
		"width":        &C.BucketIDWidth,
		"router":       &C.Router,
		"rec-len":      &C.RecLen,
		"max-block":    &C.MaxBlockSize,
		"workers":      &C.Workers,
		"verbose":      &C.Verbose,
	}
}
