package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mentionmod/mentionmod/automod/engine"
	"github.com/mentionmod/mentionmod/automod/flagstore"
	"github.com/mentionmod/mentionmod/misskey"
	"github.com/mentionmod/mentionmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "mentionmod",
		Usage:   "spam moderation bot for Misskey mentions",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "misskey-host",
			Usage:   "base URL of the Misskey instance, including scheme",
			EnvVars: []string{"MISSKEY_HOST"},
		},
		&cli.StringFlag{
			Name:    "misskey-token",
			Usage:   "API access token of the bot account",
			EnvVars: []string{"MISSKEY_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "small-model",
			Usage:   "first (cheap) judge, as provider:model",
			Value:   "gemini:gemini-2.5-flash",
			EnvVars: []string{"MENTIONMOD_SMALL_MODEL"},
		},
		&cli.StringFlag{
			Name:    "large-model",
			Usage:   "second (accurate) judge, as provider:model; empty to disable",
			Value:   "gemini:gemini-2.5-pro",
			EnvVars: []string{"MENTIONMOD_LARGE_MODEL"},
		},
		&cli.StringSliceFlag{
			Name:    "judge-models",
			Usage:   "ordered list of judge models; overrides small and large model",
			EnvVars: []string{"MENTIONMOD_JUDGE_MODELS"},
		},
		&cli.StringFlag{
			Name:    "categories",
			Usage:   "verdict category set: binary or ternary",
			Value:   "binary",
			EnvVars: []string{"MENTIONMOD_CATEGORIES"},
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			EnvVars: []string{"GEMINI_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "openai-base-url",
			Usage:   "OpenAI-compatible API base URL, eg http://localhost:11434/v1",
			EnvVars: []string{"OPENAI_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "openai-api-key",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.StringSliceFlag{
			Name:    "caption-models",
			Usage:   "image captioning models (at most two), as provider:model",
			EnvVars: []string{"MENTIONMOD_CAPTION_MODELS"},
		},
		&cli.StringFlag{
			Name:    "ocr-host",
			Usage:   "base URL of the OCR service",
			EnvVars: []string{"MENTIONMOD_OCR_HOST"},
		},
		&cli.StringFlag{
			Name:    "ocr-token",
			EnvVars: []string{"MENTIONMOD_OCR_TOKEN"},
		},
		&cli.BoolFlag{
			Name:    "image-public-only",
			Usage:   "only download attachments from public IP addresses on ports 80/443",
			Value:   true,
			EnvVars: []string{"MENTIONMOD_IMAGE_PUBLIC_ONLY"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for counters, flags and seen notes; in-memory if empty",
			EnvVars: []string{"MENTIONMOD_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "full URL of slack webhook",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.BoolFlag{
			Name:    "readonly",
			Usage:   "compute outcomes but never delete or suspend",
			EnvVars: []string{"MENTIONMOD_READONLY", "READONLY"},
		},
		&cli.BoolFlag{
			Name:    "suspend",
			Usage:   "suspend authors of spam (requires moderator permission)",
			Value:   true,
			EnvVars: []string{"MENTIONMOD_SUSPEND"},
		},
		&cli.IntFlag{
			Name:    "max-concurrent-mentions",
			Usage:   "mentions processed concurrently",
			Value:   engine.DefaultMaxConcurrent,
			EnvVars: []string{"MENTIONMOD_MAX_CONCURRENT_MENTIONS"},
		},
		&cli.Float64Flag{
			Name:    "llm-rate-limit",
			Usage:   "max requests per second to each language model; 0 for unlimited",
			Value:   2,
			EnvVars: []string{"MENTIONMOD_LLM_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"MENTIONMOD_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log format: text or json",
			EnvVars: []string{"MENTIONMOD_LOG_FMT", "LOG_FMT"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		scanCmd,
		processNoteCmd,
		whoamiCmd,
		flaggedCmd,
		unflagCmd,
	}

	return app.Run(args)
}

func configLogger(cctx *cli.Context) (*slog.Logger, error) {
	return cliutil.SetupSlog(cliutil.LogOptions{
		LogLevel:  cctx.String("log-level"),
		LogFormat: cctx.String("log-format"),
	})
}

func configFromCLI(cctx *cli.Context, logger *slog.Logger) Config {
	return Config{
		MisskeyHost:     cctx.String("misskey-host"),
		MisskeyToken:    cctx.String("misskey-token"),
		SmallModel:      cctx.String("small-model"),
		LargeModel:      cctx.String("large-model"),
		JudgeModels:     cctx.StringSlice("judge-models"),
		Categories:      cctx.String("categories"),
		GeminiAPIKey:    cctx.String("gemini-api-key"),
		OpenAIBaseURL:   cctx.String("openai-base-url"),
		OpenAIAPIKey:    cctx.String("openai-api-key"),
		CaptionModels:   cctx.StringSlice("caption-models"),
		OCRHost:         cctx.String("ocr-host"),
		OCRToken:        cctx.String("ocr-token"),
		ImagePublicOnly: cctx.Bool("image-public-only"),
		RedisURL:        cctx.String("redis-url"),
		SlackWebhookURL: cctx.String("slack-webhook-url"),
		ReadOnly:        cctx.Bool("readonly"),
		Suspend:         cctx.Bool("suspend"),
		MaxConcurrent:   cctx.Int("max-concurrent-mentions"),
		LLMRateLimit:    cctx.Float64("llm-rate-limit"),
		Logger:          logger,
	}
}

// Logger, tracing and server, shared by every command which runs the pipeline.
func setup(ctx context.Context, cctx *cli.Context) (*Server, func(), error) {
	logger, err := configLogger(cctx)
	if err != nil {
		return nil, nil, err
	}

	shutdownOTEL, err := configOTEL(ctx, "mentionmod", cctx.String("misskey-host"))
	if err != nil {
		return nil, nil, err
	}

	srv, err := NewServer(ctx, configFromCLI(cctx, logger))
	if err != nil {
		shutdownOTEL(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownOTEL(ctx)
		if err := srv.Close(); err != nil {
			logger.Warn("failed to close server", "err", err)
		}
	}
	return srv, cleanup, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service: process mentions from the streaming API",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"MENTIONMOD_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "backlog-on-start",
			Usage:   "scan recent mentions before subscribing to the stream",
			EnvVars: []string{"MENTIONMOD_BACKLOG_ON_START"},
		},
		&cli.IntFlag{
			Name:    "backlog-limit",
			Usage:   "number of recent mentions to scan (fetched in pages of 100)",
			Value:   100,
			EnvVars: []string{"MENTIONMOD_BACKLOG_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, cleanup, err := setup(ctx, cctx)
		if err != nil {
			return err
		}
		defer cleanup()

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if cctx.Bool("backlog-on-start") {
			// stream consumption starts regardless of the scan result
			if err := srv.RunBacklog(ctx, cctx.Int("backlog-limit")); err != nil {
				srv.logger.Error("startup backlog scan failed", "err", err)
			}
		}

		if err := srv.RunConsumer(ctx); err != nil {
			return fmt.Errorf("failed to run mention consumer: %w", err)
		}
		return nil
	},
}

var scanCmd = &cli.Command{
	Name:  "scan",
	Usage: "process the most recent mentions once, then exit",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "backlog-limit",
			Aliases: []string{"limit"},
			Usage:   "number of recent mentions to scan (fetched in pages of 100)",
			Value:   100,
			EnvVars: []string{"MENTIONMOD_BACKLOG_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, cleanup, err := setup(ctx, cctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return srv.RunBacklog(ctx, cctx.Int("backlog-limit"))
	},
}

var processNoteCmd = &cli.Command{
	Name:      "process-note",
	Usage:     "run the full pipeline against a single note, even if seen before",
	ArgsUsage: `<note-id>`,
	Action: func(cctx *cli.Context) error {
		noteID := cctx.Args().First()
		if noteID == "" {
			return fmt.Errorf("need to provide note ID as an argument")
		}
		ctx := context.Background()

		srv, cleanup, err := setup(ctx, cctx)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := srv.engine.ProcessNote(ctx, noteID)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

func printResult(res *engine.Result) {
	fmt.Printf("note:     %s\n", res.NoteID)
	fmt.Printf("duration: %s\n", res.Duration)
	if res.Skipped != "" {
		fmt.Printf("skipped:  %s\n", res.Skipped)
		return
	}
	fmt.Printf("outcome:  %s\n", res.Outcome())
	if res.Decision != nil {
		for _, jr := range res.Decision.Judges {
			if jr.Verdict == nil {
				fmt.Printf("judge %s: no verdict after %d attempts\n", jr.Judge, jr.Attempts)
				continue
			}
			fmt.Printf("judge %s: %s (%d attempts): %s\n", jr.Judge, jr.Verdict.Result, jr.Attempts, jr.Verdict.Reasoning)
		}
	}
	if res.Action != nil {
		fmt.Printf("deleted:  %v\n", res.Action.Deleted)
		fmt.Printf("suspended: %v\n", res.Action.Suspended)
		for action, reason := range res.Action.Suppressed {
			fmt.Printf("suppressed %s: %s\n", action, reason)
		}
		for _, err := range res.Action.Errors {
			fmt.Printf("action error: %s\n", err)
		}
	}
}

var whoamiCmd = &cli.Command{
	Name:  "whoami",
	Usage: "verify the bot credential and print the bot identity",
	Action: func(cctx *cli.Context) error {
		if _, err := configLogger(cctx); err != nil {
			return err
		}
		ctx := context.Background()

		api := &engine.MisskeyAPI{Client: &misskey.Client{
			Host:  cctx.String("misskey-host"),
			Token: cctx.String("misskey-token"),
		}}
		bot, err := api.Login(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(bot, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// review queue commands only need redis, not a misskey login
func openFlags(ctx context.Context, cctx *cli.Context) (flagstore.FlagStore, func(), error) {
	if _, err := configLogger(cctx); err != nil {
		return nil, nil, err
	}
	if cctx.String("redis-url") == "" {
		return nil, nil, fmt.Errorf("review flags are only persisted with --redis-url")
	}
	opt, err := redis.ParseURL(cctx.String("redis-url"))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	flags, err := flagstore.NewRedisFlagStore(ctx, rdb)
	if err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return flags, func() { rdb.Close() }, nil
}

var flaggedCmd = &cli.Command{
	Name:  "flagged",
	Usage: "list notes waiting for human review, with their flags",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		flags, cleanup, err := openFlags(ctx, cctx)
		if err != nil {
			return err
		}
		defer cleanup()

		notes, err := flags.List(ctx)
		if err != nil {
			return err
		}
		for _, noteID := range notes {
			l, err := flags.Get(ctx, noteID)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", noteID, strings.Join(l, ","))
		}
		return nil
	},
}

var unflagCmd = &cli.Command{
	Name:      "unflag",
	Usage:     "clear review flags from a note (all of them if none are named)",
	ArgsUsage: `<note-id> [<flag>...]`,
	Action: func(cctx *cli.Context) error {
		noteID := cctx.Args().First()
		if noteID == "" {
			return fmt.Errorf("need to provide note ID as an argument")
		}
		ctx := context.Background()
		flags, cleanup, err := openFlags(ctx, cctx)
		if err != nil {
			return err
		}
		defer cleanup()

		remove := cctx.Args().Tail()
		if len(remove) == 0 {
			remove, err = flags.Get(ctx, noteID)
			if err != nil {
				return err
			}
		}
		return flags.Remove(ctx, noteID, remove)
	},
}
