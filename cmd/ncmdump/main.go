package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"ncmdump"
	"ncmdump/batch"
	"ncmdump/ncm"
	"ncmdump/tagging"
)

type Config struct {
	LogLevel   string `koanf:"log_level"`
	Threads    int    `koanf:"threads"`
	Input      string `koanf:"input"`
	Output     string `koanf:"output"`
	Scan       string `koanf:"scan"`
	EmbedCover bool   `koanf:"embed_cover"`
	EmitLists  bool   `koanf:"emit_lists"`
	ShowTime   bool   `koanf:"showtime"`
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("ncmdump", pflag.ExitOnError)
	flags.String("config", "config.yml", "path to the configuration file")
	flags.String("log_level", "info", "log level")
	flags.IntP("threads", "t", batch.DefaultWorkers(), "max count of unlock threads")
	flags.StringP("input", "i", "", "path to a text file listing the containers to unlock")
	flags.StringP("output", "o", "unlocked", "path to a text file listing the output stems, or the output directory when scanning")
	flags.String("scan", ".", "directory scanned for containers when no input list is given")
	flags.BoolP("showtime", "s", false, "show how long it took to unlock everything")
	flags.Bool("embed_cover", false, "embed the extracted cover image into the unlocked files")
	flags.Bool("emit_lists", false, "write the scanned tasks out as input and output lists")
	return flags
}

func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"log_level": "info",
		"threads":   batch.DefaultWorkers(),
		"output":    "unlocked",
		"scan":      ".",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed loading defaults: %w", err)
	}

	configPath, _ := flags.GetString("config")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed loading %s: %w", configPath, err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed unmarshalling configuration: %w", err)
	}

	return &cfg, nil
}

func convertTask(logger ncmdump.Logger, cfg *Config) batch.ConvertFunc {
	return func(task batch.Task) error {
		res, err := ncm.DumpFile(task.Input, task.Output)
		if err != nil {
			return err
		}

		if cfg.EmbedCover && res.CoverPath != "" {
			// a failed embed keeps the cover file next to the audio
			if err := tagging.EmbedCover(logger, res.AudioPath, res.CoverPath, res.Meta); err != nil {
				logger.WithError(err).Warnf("failed embedding cover for %s", res.AudioPath)
			}
		}

		return nil
	}
}

func main() {
	flags := newFlags()
	_ = flags.Parse(os.Args[1:])

	cfg, err := loadConfig(flags)
	if err != nil {
		log.WithError(err).Fatal("failed reading configuration")
	}

	// parse and set log level
	logLevel, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Fatalf("invalid log level: %s", cfg.LogLevel)
	} else {
		log.SetLevel(logLevel)
	}

	logger := LogrusAdapter{log.NewEntry(log.StandardLogger())}
	log.Infof("running %s with %d threads", ncmdump.VersionString(), cfg.Threads)

	var tasks []batch.Task
	if cfg.Input != "" {
		inputs, err := batch.ReadLines(cfg.Input)
		if err != nil {
			log.WithError(err).Fatalf("failed reading input list %s", cfg.Input)
		}

		outputs, err := batch.ReadLines(cfg.Output)
		if err != nil {
			log.WithError(err).Fatalf("failed reading output list %s", cfg.Output)
		}

		if tasks, err = batch.PairLists(inputs, outputs); err != nil {
			log.WithError(err).Fatal("failed pairing file lists")
		}
	} else {
		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			log.WithError(err).Fatalf("failed creating output directory %s", cfg.Output)
		}

		// keep concurrent runs from writing into the same directory
		lock := flock.New(filepath.Join(cfg.Output, ".ncmdump.lock"))
		if locked, err := lock.TryLock(); err != nil {
			log.WithError(err).Fatal("failed acquiring output lock")
		} else if !locked {
			log.Fatalf("another instance is already unlocking into %s", cfg.Output)
		}

		defer func() { _ = lock.Unlock() }()

		if tasks, err = batch.ScanTasks(cfg.Scan, cfg.Output); err != nil {
			log.WithError(err).Fatalf("failed scanning %s", cfg.Scan)
		}

		if cfg.EmitLists {
			if err := batch.WriteLists(tasks, "ncm_input.txt", "ncm_output.txt"); err != nil {
				log.WithError(err).Warn("failed writing task lists")
			}
		}
	}

	if len(tasks) == 0 {
		log.Warn("no containers to unlock")
		return
	}

	runner, err := batch.NewRunner(logger, cfg.Threads, convertTask(logger, cfg))
	if err != nil {
		log.WithError(err).Fatal("invalid worker configuration")
	}

	summary := runner.Run(tasks)
	log.Infof("processed %d files: %d converted, %d failed", summary.Completed, summary.Succeeded, summary.Failed)

	if cfg.ShowTime {
		log.Infof("total time elapsed: %.1fs", summary.Elapsed.Seconds())
	}
}
