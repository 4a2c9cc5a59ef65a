// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/tvscan/db"
	"github.com/stockparfait/tvscan/message"
	"github.com/stockparfait/tvscan/overview"
	"github.com/stockparfait/tvscan/scanner"

	toml "github.com/pelletier/go-toml/v2"
)

type Flags struct {
	CacheDir    string // default: ~/.tvscan
	Request     string // scan request config file; default: built-in request
	LogLevel    logging.Level
	Refresh     bool // re-scan even when today's snapshot exists
	CSV         bool // dump CSV format; default: text overview.
	PreviewRows int
	NoSummaries bool
}

func parseFlags(args []string) (*Flags, error) {
	var flags Flags
	fs := flag.NewFlagSet("tvscan", flag.ExitOnError)
	fs.StringVar(&flags.CacheDir, "cache",
		filepath.Join(os.Getenv("HOME"), ".tvscan"),
		"path to daily snapshot databases")
	fs.StringVar(&flags.Request, "conf", "",
		"scan request config file (JSON); default: built-in US stock scan")
	flags.LogLevel = logging.Info
	fs.Var(&flags.LogLevel, "log-level", "Log level: debug, info, warning, error")
	fs.BoolVar(&flags.Refresh, "refresh", false,
		"scan again even when today's snapshot already exists")
	fs.BoolVar(&flags.CSV, "csv", false,
		"dump the snapshot in CSV format; default: text overview")
	fs.IntVar(&flags.PreviewRows, "preview", 1,
		"number of sample rows in the overview")
	fs.BoolVar(&flags.NoSummaries, "no-summaries", false,
		"skip statistics of numeric columns in the overview")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}
	return &flags, err
}

// Config is the optional TOML config in the cache directory overriding the
// HTTP identity of the scanner.
type Config struct {
	UserAgent string `toml:"user_agent"`
	Referer   string `toml:"referer"`
	URL       string `toml:"url"`
}

func parseConfig(cacheDir string) (*Config, error) {
	filePath := filepath.Join(cacheDir, "config.toml")
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.Annotate(err,
			"cannot check config file for existence: '%s'", filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to open config file %s", filePath)
	}
	defer f.Close()

	d := toml.NewDecoder(f)
	var c Config
	if err := d.Decode(&c); err != nil {
		return nil, errors.Annotate(err, "failed to read config file %s", filePath)
	}
	return &c, nil
}

// useTransport installs the scanner transport with the config overrides.
func (c *Config) useTransport(ctx context.Context) context.Context {
	t := scanner.DefaultTransport()
	if c.UserAgent != "" {
		t.UserAgent = c.UserAgent
	}
	if c.Referer != "" {
		t.Referer = c.Referer
	}
	if c.URL != "" {
		t.URL = c.URL
	}
	return scanner.UseTransport(ctx, t)
}

func printOverview(ctx context.Context, flags *Flags, w io.Writer) error {
	config, err := parseConfig(flags.CacheDir)
	if err != nil {
		return errors.Annotate(err, "failed to parse config")
	}
	ctx = config.useTransport(ctx)

	var request *scanner.Request
	if flags.Request != "" {
		request = &scanner.Request{}
		if err := message.FromFile(request, flags.Request); err != nil {
			return errors.Annotate(err, "failed to read request '%s'", flags.Request)
		}
	}
	cfg := &overview.Config{
		Store:       db.NewStore(flags.CacheDir),
		Request:     request,
		PreviewRows: flags.PreviewRows,
		Summaries:   !flags.NoSummaries,
		Refresh:     flags.Refresh,
	}
	if flags.CSV {
		if err := overview.WriteCSV(ctx, cfg, w); err != nil {
			return errors.Annotate(err, "failed to print CSV")
		}
		return nil
	}
	if err := overview.Run(ctx, cfg, w); err != nil {
		return errors.Annotate(err, "failed to print overview")
	}
	return nil
}

func main() {
	ctx := context.Background()
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		ctx = logging.Use(ctx, logging.DefaultGoLogger(logging.Info))
		logging.Errorf(ctx, "failed to parse flags: %s", err.Error())
		os.Exit(1)
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(flags.LogLevel))

	if err := printOverview(ctx, flags, os.Stdout); err != nil {
		logging.Errorf(ctx, err.Error())
		os.Exit(1)
	}
}
