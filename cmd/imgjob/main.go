// Command imgjob submits one image to the processing backend, follows the job
// until it finishes and optionally downloads the result.
//
//	imgjob -op resize -width 800 -height 600 -o out.jpg input.jpg
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kiranshivaraju/imgjobs/internal/cache"
	"github.com/kiranshivaraju/imgjobs/internal/config"
	"github.com/kiranshivaraju/imgjobs/internal/imageapi"
	"github.com/kiranshivaraju/imgjobs/internal/jobs"
	"github.com/kiranshivaraju/imgjobs/internal/poller"
	"github.com/kiranshivaraju/imgjobs/internal/session"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	op       string
	apiURL   string
	interval time.Duration
	timeout  time.Duration
	output   string
	verbose  bool
	fields   map[string]*string
	set      map[string]bool
	input    string
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("imgjob", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: imgjob -op <resize|crop|grayscale|sepia> [field flags] [-o file] <image>")
		fs.PrintDefaults()
	}

	o := &options{fields: make(map[string]*string), set: make(map[string]bool)}
	fs.StringVar(&o.op, "op", "", "operation to run: resize, crop, grayscale or sepia")
	fs.StringVar(&o.apiURL, "api", cfg.Backend.BaseURL, "backend base URL")
	fs.DurationVar(&o.interval, "interval", cfg.Backend.PollInterval, "delay between status polls")
	fs.DurationVar(&o.timeout, "timeout", cfg.Backend.Timeout, "per-request timeout")
	fs.StringVar(&o.output, "o", "", "write the result to this file")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")
	for _, name := range []string{"width", "height", "left", "top", "right", "bottom"} {
		o.fields[name] = fs.String(name, "", name+" in pixels")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, errors.New("exactly one input image is required")
	}
	o.input = fs.Arg(0)
	if o.op == "" {
		return nil, errors.New("-op is required")
	}
	if o.interval <= 0 {
		return nil, errors.New("-interval must be positive")
	}
	return o, nil
}

func (o *options) params() (models.Params, error) {
	op := models.Operation(o.op)
	names, err := models.FieldNames(op)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(names))
	for _, name := range names {
		if o.set[name] {
			values[name] = *o.fields[name]
		}
	}
	return models.ParseParams(op, values)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "imgjob: %v\n", err)
		return exitFailure
	}

	opts, err := parseFlags(args, cfg, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "imgjob: %v\n", err)
		}
		return exitUsage
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	params, err := opts.params()
	if err != nil {
		fmt.Fprintf(stderr, "imgjob: %v\n", err)
		return exitUsage
	}

	data, err := os.ReadFile(opts.input)
	if err != nil {
		fmt.Fprintf(stderr, "imgjob: %v\n", err)
		return exitFailure
	}
	file := &models.File{Name: filepath.Base(opts.input), Data: data}

	client := imageapi.NewHTTPClient(opts.apiURL, opts.timeout)
	svc := jobs.NewService(client, poller.New(client, opts.interval), session.New(), nil, cache.Nop{}, cfg.Console.StatusTTL)

	out, err := svc.Run(ctx, file, params, func(u poller.Update) {
		fmt.Fprintf(stdout, "job %s: %s\n", u.JobID, u.Status)
	})
	if err != nil {
		var jobErr *poller.JobError
		if errors.As(err, &jobErr) {
			fmt.Fprintf(stderr, "imgjob: job %s %s: %s\n", jobErr.JobID, jobErr.Status, jobErr.Detail)
		} else {
			fmt.Fprintf(stderr, "imgjob: %v\n", err)
		}
		return exitFailure
	}

	fmt.Fprintf(stdout, "result: %s\n", out.ResultURL)

	if opts.output != "" {
		if err := download(ctx, client, out.JobID, opts.output); err != nil {
			fmt.Fprintf(stderr, "imgjob: %v\n", err)
			return exitFailure
		}
		fmt.Fprintf(stdout, "saved: %s\n", opts.output)
	}
	return exitOK
}

func download(ctx context.Context, client imageapi.Client, jobID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	res, err := client.Download(ctx, jobID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("download result: %w", err)
	}
	slog.Debug("result downloaded", "job_id", jobID, "filename", res.Filename, "bytes", res.Bytes)
	return nil
}
