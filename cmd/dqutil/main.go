// Command dqutil manipulates and exercises disk queues.
//
//	dqutil push  --path P --name N --rec-len L <hex record>...
//	dqutil pop   --path P --name N --rec-len L [--count C]
//	dqutil size  --path P --name N --rec-len L
//	dqutil stats --path P --name N --rec-len L
//	dqutil drive --path P --name N [--rounds R]
//	dqutil bang  --path P --name N [--count C] [--workers W]
//
// Every command accepts --config with a JSON with comments file supplying flag values, --verbose for development
// logging and --metrics to dump the collected counters on exit.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/gostonefire/diskstore/dq"
	"github.com/gostonefire/diskstore/internal/cli"
	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"io"
	"os"
	"runtime"
	"sync/atomic"
)

// pair - Record type of the drive command
type pair struct {
	A int32
	B int32
}

// counters - Settings of the commands that write or read a number of records
type counters struct {
	count  int
	rounds int
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage:")
	_, _ = fmt.Fprintln(w, "\tdqutil push|pop|size|stats --path <dir> --name <name> --rec-len <n> [flags] [records]")
	_, _ = fmt.Fprintln(w, "\tdqutil drive --path <dir> --name <name> [--rounds <n>]")
	_, _ = fmt.Fprintln(w, "\tdqutil bang --path <dir> --name <name> [--count <n>] [--workers <n>]")
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
	cfg := cli.Config{Workers: runtime.NumCPU()}
	var c counters
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	showMetrics := fs.Bool("metrics", false, "write the collected counters to stderr on exit")

	switch cmd {
	case "push", "size", "stats":
		cfg.AddFlags(fs, "path", "name", "rec-len", "max-block", "verbose")
	case "pop":
		cfg.AddFlags(fs, "path", "name", "rec-len", "max-block", "verbose")
		fs.IntVar(&c.count, "count", 1, "number of records to pop")
	case "drive":
		cfg.AddFlags(fs, "path", "name", "max-block", "verbose")
		fs.IntVar(&c.rounds, "rounds", 1000, "number of push 20 pop 1 rounds")
	case "bang":
		cfg.AddFlags(fs, "path", "name", "max-block", "workers", "verbose")
		fs.IntVar(&c.count, "count", 100000, "number of records pushed by the producer")
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

	if cfg.Path == "" || cfg.Name == "" {
		_, _ = fmt.Fprintln(stderr, "error: --path and --name are required")
		return 1
	}
	if c.count < 0 || c.rounds < 0 {
		_, _ = fmt.Fprintln(stderr, "error: --count and --rounds must not be negative")
		return 1
	}

	logger, err := cli.NewLogger(cfg.Verbose)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	opts := dq.Options{MaxBlockSize: cfg.MaxBlockSize, Logger: logger}

	switch cmd {
	case "push":
		err = commandPush(cfg, opts, fs.Args(), stdout)
	case "pop":
		err = commandPop(cfg, opts, c.count, stdout)
	case "size", "stats":
		err = commandStats(cfg, opts, cmd == "stats", stdout)
	case "drive":
		err = commandDrive(cfg, opts, c.rounds, stdout)
	case "bang":
		err = commandBang(ctx, cfg, opts, c.count, logger, stdout)
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

// withQueue - Opens the queue described by cfg, calls fn and closes the queue again
func withQueue(cfg cli.Config, opts dq.Options, fn func(queue *dq.Queue) error) (err error) {
	queue, err := dq.Open(cfg.Path, cfg.Name, cfg.RecLen, opts)
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, queue.Close()) }()

	return fn(queue)
}

// commandPush - Pushes every hex encoded record in records
func commandPush(cfg cli.Config, opts dq.Options, records []string, stdout io.Writer) error {
	return withQueue(cfg, opts, func(queue *dq.Queue) error {
		for _, record := range records {
			data, err := hex.DecodeString(record)
			if err != nil {
				return fmt.Errorf("record %q is not hexadecimal: %w", record, err)
			}
			err = queue.Push(data)
			if err != nil {
				return err
			}
		}

		_, _ = fmt.Fprintf(stdout, "pushed %d size %d\n", len(records), queue.Size())

		return nil
	})
}

// commandPop - Pops up to count records and prints them hex encoded
func commandPop(cfg cli.Config, opts dq.Options, count int, stdout io.Writer) error {
	return withQueue(cfg, opts, func(queue *dq.Queue) error {
		data := make([]byte, queue.RecLen())
		for i := 0; i < count; i++ {
			found, err := queue.Pop(data)
			if err != nil {
				return err
			}
			if !found {
				_, _ = fmt.Fprintln(stdout, "empty")
				break
			}
			_, _ = fmt.Fprintln(stdout, hex.EncodeToString(data))
		}

		return nil
	})
}

// commandStats - Prints the size of the queue, and its bookkeeping when verbose is set
func commandStats(cfg cli.Config, opts dq.Options, verbose bool, stdout io.Writer) error {
	return withQueue(cfg, opts, func(queue *dq.Queue) error {
		if !verbose {
			_, _ = fmt.Fprintln(stdout, queue.Size())
			return nil
		}

		s := queue.Stats()
		_, _ = fmt.Fprintf(stdout, "records %d record length %d records per block %d block size %d\n",
			s.Records, s.RecLen, s.RecsPerBlock, s.BlockSize)
		_, _ = fmt.Fprintf(stdout, "blocks %d allocated %v free %v\n", s.Blocks, s.Allocated, s.Free)
		_, _ = fmt.Fprintf(stdout, "push %d:%d pop %d:%d\n", s.Push.BlockID, s.Push.Slot, s.Pop.BlockID, s.Pop.Slot)

		return nil
	})
}

// commandDrive - Pushes 20 records and pops one per round, then drains the queue checking the FIFO order
func commandDrive(cfg cli.Config, opts dq.Options, rounds int, stdout io.Writer) (err error) {
	queue, err := dq.OpenTyped[pair](cfg.Path, cfg.Name, opts)
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, queue.Close()) }()

	var next int32
	check := func(d pair) error {
		if d.A != next || d.B != 2*next {
			return fmt.Errorf("popped %d %d, want %d %d", d.A, d.B, next, 2*next)
		}
		next++
		return nil
	}

	if !queue.Empty() {
		return fmt.Errorf("queue %s is not empty, it holds %d records", cfg.Name, queue.Size())
	}

	var pushed int32
	for j := 0; j < rounds; j++ {
		for i := 0; i < 20; i++ {
			err = queue.Push(pair{A: pushed, B: 2 * pushed})
			if err != nil {
				return
			}
			pushed++
		}

		var d pair
		d, _, err = queue.Pop()
		if err != nil {
			return
		}
		err = check(d)
		if err != nil {
			return
		}
	}

	for {
		d, found, popErr := queue.Pop()
		if popErr != nil {
			err = popErr
			return
		}
		if !found {
			break
		}
		err = check(d)
		if err != nil {
			return
		}
	}

	_, _ = fmt.Fprintf(stdout, "ok pushed %d popped %d blocks %d\n", pushed, next, queue.Queue().Stats().Blocks)

	return
}

// commandBang - Runs one producer against workers consumers and checks that every consumer sees the records in
// push order and that every record is popped exactly once
func commandBang(ctx context.Context, cfg cli.Config, opts dq.Options, count int, logger *zap.Logger, stdout io.Writer) (err error) {
	queue, err := dq.OpenTyped[uint64](cfg.Path, cfg.Name, opts)
	if err != nil {
		return
	}
	defer func() { err = errors.Join(err, queue.Close()) }()

	if !queue.Empty() {
		return fmt.Errorf("queue %s is not empty, it holds %d records", cfg.Name, queue.Size())
	}

	workers := max(cfg.Workers, 1)
	seen := make([]atomic.Bool, count)
	var popped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := queue.Push(uint64(i)); err != nil {
				return err
			}
		}
		logger.Debug("producer done", zap.Int("pushed", count))
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			last := int64(-1)
			pulled := 0
			for popped.Load() < int64(count) {
				if err := ctx.Err(); err != nil {
					return err
				}
				v, found, err := queue.Pop()
				if err != nil {
					return err
				}
				if !found {
					runtime.Gosched()
					continue
				}
				if int64(v) <= last {
					return fmt.Errorf("consumer %d popped %d after %d", w, v, last)
				}
				if v >= uint64(count) || seen[v].Swap(true) {
					return fmt.Errorf("consumer %d popped %d twice or out of range", w, v)
				}
				last = int64(v)
				pulled++
				popped.Add(1)
			}
			logger.Debug("consumer leaving", zap.Int("consumer", w), zap.Int("pulled", pulled))
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return
	}

	_, _ = fmt.Fprintf(stdout, "ok %d records through %d consumers, queue %d\n", popped.Load(), workers, queue.Size())

	return
}
