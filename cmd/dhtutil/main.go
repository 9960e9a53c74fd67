// Command dhtutil verifies and exercises disk hash tables.
//
//	dhtutil verify --path P --name N --key-length K [--value-length V] [--width W]
//	dhtutil stat   --path P --name N --key-length K [--value-length V] [--width W]
//	dhtutil test   [--count C]
//
// Every command accepts --config with a JSON with comments file supplying flag values, --verbose for development
// logging and --metrics to dump the collected counters on exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/dht"
	"github.com/gostonefire/diskstore/hashfunc"
	"github.com/gostonefire/diskstore/internal/cli"
	"github.com/gostonefire/diskstore/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"io"
	"os"
	"runtime"
	"sync"
)

// errDuplicates - Returned by verify when the table holds duplicate keys
var errDuplicates = errors.New("duplicate keys found")

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage:")
	_, _ = fmt.Fprintln(w, "\tdhtutil verify --path <dir> --name <name> --key-length <n> [flags]")
	_, _ = fmt.Fprintln(w, "\tdhtutil stat --path <dir> --name <name> --key-length <n> [flags]")
	_, _ = fmt.Fprintln(w, "\tdhtutil test [--count <n>]")
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run - Executes the command in args and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}

	cmd := args[0]
	cfg := cli.Config{BucketIDWidth: 3, Router: "md5", Workers: runtime.NumCPU()}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	count := 0
	showMetrics := fs.Bool("metrics", false, "write the collected counters to stderr on exit")

	switch cmd {
	case "verify", "stat":
		cfg.AddFlags(fs, "path", "name", "key-length", "value-length", "width", "router", "workers", "verbose")
	case "test":
		cfg.AddFlags(fs, "verbose")
		fs.IntVar(&count, "count", 10000, "number of records to write and read back")
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return 1
	}

	err := cfg.Parse(fs, args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	logger, err := cli.NewLogger(cfg.Verbose)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	switch cmd {
	case "verify":
		err = commandVerify(ctx, cfg, logger, stdout)
	case "stat":
		err = commandStat(cfg, logger, stdout)
	case "test":
		err = commandTest(count, logger, stdout)
	}

	if *showMetrics {
		_ = cli.WriteCounters(stderr, prometheus.DefaultGatherer, "diskstore_")
	}

	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	return 0
}

// openExisting - Opens the table described by cfg, refusing to create a table that is not there
func openExisting(cfg cli.Config, logger *zap.Logger) (table *dht.Table, err error) {
	if cfg.Path == "" || cfg.Name == "" {
		err = fmt.Errorf("--path and --name are required")
		return
	}

	stat, err := os.Stat(cfg.Path)
	if err != nil {
		err = fmt.Errorf("%s does not exist: %w", cfg.Path, err)
		return
	}
	if !stat.IsDir() {
		err = fmt.Errorf("%s is not a directory", cfg.Path)
		return
	}

	dirStat, err := os.Stat(storage.GetTableDir(cfg.Path, cfg.Name))
	if err != nil || !dirStat.IsDir() {
		err = fmt.Errorf("table %s does not exist under %s", cfg.Name, cfg.Path)
		return
	}
	logger.Debug("opening table", zap.String("path", cfg.Path), zap.String("name", cfg.Name))

	router, err := newRouter(cfg.Router)
	if err != nil {
		return
	}

	return dht.Open(cfg.Path, cfg.Name, dht.Options{
		KeyLength:     cfg.KeyLength,
		ValueLength:   cfg.ValueLength,
		BucketIDWidth: cfg.BucketIDWidth,
		Router:        router,
		Logger:        logger,
	})
}

// newRouter - Maps a router name to a router
func newRouter(name string) (hashfunc.Router, error) {
	switch name {
	case "", "md5":
		return dht.NewMD5Router(), nil
	case "xxhash":
		return dht.NewXXHashRouter(), nil
	default:
		return nil, fmt.Errorf("unknown router %q, use md5 or xxhash", name)
	}
}

// report - Result of verifying a table
type report struct {
	Records    int64
	Unique     int64
	Duplicates int64
	Missing    int
	MinBucket  string
	MinRecords int64
	MaxBucket  string
	MaxRecords int64
}

// add - Folds the record count of one present bucket into the min and max, ties go to the lower bucket id
func (R *report) add(id string, records int64) {
	if R.MinBucket == "" || records < R.MinRecords || records == R.MinRecords && id < R.MinBucket {
		R.MinBucket, R.MinRecords = id, records
	}
	if R.MaxBucket == "" || records > R.MaxRecords || records == R.MaxRecords && id < R.MaxBucket {
		R.MaxBucket, R.MaxRecords = id, records
	}
}

// verifyTable - Scans every bucket of table concurrently and counts unique and duplicate keys across all buckets
func verifyTable(ctx context.Context, table *dht.Table, workers int, logger *zap.Logger) (rep report, err error) {
	ids, err := dht.BucketIDs(table.BucketIDWidth())
	if err != nil {
		return
	}

	var lock sync.Mutex
	seen := make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var keys []string
			exists, err := table.ScanBucket(id, func(recNo int64, key, val []byte) bool {
				keys = append(keys, string(key))
				return true
			})
			if err != nil {
				return fmt.Errorf("bucket %s: %w", id, err)
			}

			lock.Lock()
			defer lock.Unlock()

			if !exists {
				rep.Missing++
				logger.Debug("bucket file does not exist", zap.String("bucket", id))
				return nil
			}

			for _, key := range keys {
				if _, ok := seen[key]; ok {
					rep.Duplicates++
				} else {
					seen[key] = struct{}{}
				}
			}
			rep.Records += int64(len(keys))
			rep.add(id, int64(len(keys)))

			return nil
		})
	}

	err = g.Wait()
	rep.Unique = int64(len(seen))

	return
}

// commandVerify - Checks that every key of a table is unique, even across buckets
func commandVerify(ctx context.Context, cfg cli.Config, logger *zap.Logger, stdout io.Writer) (err error) {
	table, err := openExisting(cfg, logger)
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, table.Close()) }()

	rep, err := verifyTable(ctx, table, cfg.Workers, logger)
	if err != nil {
		return
	}

	_, _ = fmt.Fprintf(stdout, "records %d unique %d duplicates %d missing buckets %d\n",
		rep.Records, rep.Unique, rep.Duplicates, rep.Missing)
	_, _ = fmt.Fprintf(stdout, "smallest %s:%d largest %s:%d spread %d\n",
		rep.MinBucket, rep.MinRecords, rep.MaxBucket, rep.MaxRecords, rep.MaxRecords-rep.MinRecords)

	if rep.Duplicates > 0 {
		err = fmt.Errorf("%w: %d", errDuplicates, rep.Duplicates)
	}

	return
}

// commandStat - Prints the bucket file summary of a table
func commandStat(cfg cli.Config, logger *zap.Logger, stdout io.Writer) (err error) {
	table, err := openExisting(cfg, logger)
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, table.Close()) }()

	stat, err := table.Stat()
	if err != nil {
		return
	}

	_, _ = fmt.Fprintf(stdout, "records %d buckets %d of %d\n", stat.Records, stat.Buckets, 1<<(4*table.BucketIDWidth()))
	_, _ = fmt.Fprintf(stdout, "smallest %s:%d largest %s:%d\n", stat.MinBucket, stat.MinRecords, stat.MaxBucket, stat.MaxRecords)

	return
}

// position - Key type of the round trip test
type position struct {
	Info uint32
	Pop  uint64
	Lo   uint64
	Hi   uint64
}

// positionInfo - Value type of the round trip test
type positionInfo struct {
	ID       uint64
	Parent   uint64
	Move     uint16
	MoveCnt  int16
	Distance int16
	Reason   uint8
}

// commandTest - Appends count records to a temporary table, reading every record back, updating it and reading
// it back again
func commandTest(count int, logger *zap.Logger, stdout io.Writer) (err error) {
	dir, err := os.MkdirTemp("", "dhtutil-")
	if err != nil {
		err = fmt.Errorf("unable to create temporary directory: %w", err)
		return
	}
	defer func() { err = errors.Join(err, os.RemoveAll(dir)) }()

	table, err := dht.OpenTyped[position, positionInfo](dir, "temp", dht.Options{Logger: logger})
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, table.Close()) }()

	for i := 1; i <= count; i++ {
		key := position{Lo: uint64(i)}
		in := positionInfo{ID: uint64(i)}

		err = table.Append(key, in)
		if err != nil {
			return
		}
		err = expect(table, key, in)
		if err != nil {
			return
		}

		in.Distance = int16(2 * i)
		var found bool
		found, err = table.Update(key, in)
		if err != nil {
			return
		}
		if !found {
			err = fmt.Errorf("record %d not found for update", i)
			return
		}
		err = expect(table, key, in)
		if err != nil {
			return
		}
	}

	_, _ = fmt.Fprintf(stdout, "ok %d records\n", table.Size())

	return
}

// expect - Searches key and compares the value found with want
func expect(table *dht.TypedTable[position, positionInfo], key position, want positionInfo) error {
	got, found, err := table.Search(key)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("record %d not found", key.Lo)
	}
	if got != want {
		return fmt.Errorf("record %d holds %+v, want %+v", key.Lo, got, want)
	}

	return nil
}
