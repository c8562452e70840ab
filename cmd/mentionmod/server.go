package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mentionmod/mentionmod/automod/cachestore"
	"github.com/mentionmod/mentionmod/automod/consensus"
	"github.com/mentionmod/mentionmod/automod/countstore"
	"github.com/mentionmod/mentionmod/automod/engine"
	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/evidence"
	"github.com/mentionmod/mentionmod/automod/flagstore"
	"github.com/mentionmod/mentionmod/automod/judge"
	"github.com/mentionmod/mentionmod/automod/llm"
	"github.com/mentionmod/mentionmod/automod/visual"
	"github.com/mentionmod/mentionmod/misskey"
	"github.com/mentionmod/mentionmod/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// at most this many captioning models run against each image
const maxCaptioners = 2

type Server struct {
	logger *slog.Logger
	client *misskey.Client
	engine *engine.Engine
	rdb    *redis.Client
}

type Config struct {
	MisskeyHost     string
	MisskeyToken    string
	SmallModel      string
	LargeModel      string
	JudgeModels     []string
	Categories      string
	GeminiAPIKey    string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	CaptionModels   []string
	OCRHost         string
	OCRToken        string
	RedisURL        string
	SlackWebhookURL string
	ReadOnly        bool
	Suspend         bool
	MaxConcurrent   int
	LLMRateLimit    float64
	// refuse to download attachments from private networks
	ImagePublicOnly bool
	Logger          *slog.Logger
}

// Ordered judge model list: an explicit list wins, otherwise the small (cheap) model runs before the large (accurate) one. Repeats are dropped; asking the same model twice adds cost, not confidence.
func (c *Config) judgeModels() []string {
	in := c.JudgeModels
	if len(in) == 0 {
		in = []string{c.SmallModel, c.LargeModel}
	}
	var out []string
	for _, m := range in {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return util.DedupeStrings(out)
}

func (c *Config) needsGemini() bool {
	for _, m := range append(c.judgeModels(), c.CaptionModels...) {
		if p, _, err := llm.ParseModelID(m); err == nil && p == llm.ProviderGemini {
			return true
		}
	}
	return false
}

// Verifies the bot credential and wires the full pipeline. Fails if the instance can not be reached.
func NewServer(ctx context.Context, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if config.MisskeyHost == "" || config.MisskeyToken == "" {
		return nil, fmt.Errorf("misskey host and token are required")
	}
	if !strings.HasPrefix(config.MisskeyHost, "http://") && !strings.HasPrefix(config.MisskeyHost, "https://") {
		return nil, fmt.Errorf("misskey host must include the scheme (http:// or https://): %s", config.MisskeyHost)
	}
	client := &misskey.Client{
		Client: util.SingleAttemptHTTPClient(20 * time.Second),
		Host:   strings.TrimSuffix(config.MisskeyHost, "/"),
		Token:  config.MisskeyToken,
	}
	api := &engine.MisskeyAPI{Client: client}

	bot, err := api.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("misskey login failed: %w", err)
	}
	logger.Info("logged in", "botID", bot.ID, "username", bot.Username, "host", bot.Host)

	categories, err := judge.ParseCategorySet(config.Categories)
	if err != nil {
		return nil, err
	}

	var gemini *genai.Client
	if config.needsGemini() {
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini models configured but no Gemini API key")
		}
		gemini, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
	}
	factory := &llm.Factory{
		Gemini:            gemini,
		OpenAIBaseURL:     config.OpenAIBaseURL,
		OpenAIAPIKey:      config.OpenAIAPIKey,
		RequestsPerSecond: config.LLMRateLimit,
	}

	models := config.judgeModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no judge models configured")
	}
	judges := make([]consensus.Evaluator, 0, len(models))
	for _, id := range models {
		be, err := factory.New(id)
		if err != nil {
			return nil, fmt.Errorf("configuring judge: %w", err)
		}
		judges = append(judges, judge.New(be, categories, logger))
	}
	logger.Info("configured judges", "models", models, "categories", categories.String())

	extractors, err := newExtractors(config, factory)
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, config.RedisURL)
	if err != nil {
		return nil, err
	}

	actuator := engine.NewActuator(api, st.counters, st.flags, config.Suspend, logger)
	actuator.ReadOnly = config.ReadOnly
	if config.SlackWebhookURL != "" {
		actuator.Notifier = &engine.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			InstanceURL:     client.Host,
		}
	}

	eng := &engine.Engine{
		Logger:        logger,
		API:           api,
		Bot:           *bot,
		Collector:     evidence.NewCollector(api, extractors, *bot, logger),
		Consensus:     consensus.NewCoordinator(judges, logger),
		Actuator:      actuator,
		Cache:         st.cache,
		Flags:         st.flags,
		MaxConcurrent: config.MaxConcurrent,
	}

	s := &Server{
		logger: logger,
		client: client,
		engine: eng,
		rdb:    st.rdb,
	}
	return s, nil
}

type stores struct {
	counters countstore.CountStore
	cache    cachestore.CacheStore
	flags    flagstore.FlagStore
	// nil for in-process stores
	rdb *redis.Client
}

// Redis-backed stores when redisURL is set, otherwise in-process ones. On error the redis client is closed.
func openStores(ctx context.Context, redisURL string) (st *stores, err error) {
	if redisURL == "" {
		return &stores{
			counters: countstore.NewMemCountStore(),
			cache:    cachestore.NewMemCacheStore(50_000, engine.SeenNoteTTL),
			flags:    flagstore.NewMemFlagStore(),
		}, nil
	}

	// one client shared by all stores
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer func() {
		if err != nil {
			rdb.Close()
		}
	}()
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %v", err)
	}

	st = &stores{rdb: rdb}
	if st.counters, err = countstore.NewRedisCountStore(ctx, rdb); err != nil {
		return nil, fmt.Errorf("initializing redis countstore: %v", err)
	}
	if st.cache, err = cachestore.NewRedisCacheStore(ctx, rdb, engine.SeenNoteTTL); err != nil {
		return nil, fmt.Errorf("initializing redis cachestore: %v", err)
	}
	if st.flags, err = flagstore.NewRedisFlagStore(ctx, rdb); err != nil {
		return nil, fmt.Errorf("initializing redis flagstore: %v", err)
	}
	return st, nil
}

// Captioners in configured order, then OCR.
func newExtractors(config Config, factory *llm.Factory) ([]visual.Extractor, error) {
	if len(config.CaptionModels) > maxCaptioners {
		return nil, fmt.Errorf("at most %d caption models are supported, got %d", maxCaptioners, len(config.CaptionModels))
	}

	var fetchClient *http.Client
	if config.ImagePublicOnly {
		fetchClient = util.PublicOnlyHTTPClient(30 * time.Second)
	} else {
		fetchClient = util.RobustHTTPClientTimeout(30 * time.Second)
	}
	fetcher := visual.NewImageFetcher(fetchClient, visual.DefaultMaxImageBytes)

	var limiter *rate.Limiter
	if config.LLMRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.LLMRateLimit), 1)
	}

	var out []visual.Extractor
	for _, id := range config.CaptionModels {
		provider, model, err := llm.ParseModelID(id)
		if err != nil {
			return nil, fmt.Errorf("configuring captioner: %w", err)
		}
		switch provider {
		case llm.ProviderGemini:
			out = append(out, &visual.GeminiCaptioner{
				Client:  factory.Gemini,
				Model:   model,
				Fetcher: fetcher,
				Limiter: limiter,
			})
		case llm.ProviderOpenAI:
			if config.OpenAIBaseURL == "" {
				return nil, fmt.Errorf("caption model %q requires an OpenAI-compatible base URL", id)
			}
			out = append(out, &visual.ChatCaptioner{
				BaseURL: config.OpenAIBaseURL,
				APIKey:  config.OpenAIAPIKey,
				Model:   model,
				Fetcher: fetcher,
				Limiter: limiter,
			})
		}
	}
	if config.OCRHost != "" {
		out = append(out, visual.NewOCRClient(config.OCRHost, config.OCRToken, fetcher))
	}
	return out, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (s *Server) Bot() event.BotIdentity {
	return s.engine.Bot
}

func (s *Server) Close() error {
	if s.rdb != nil {
		return s.rdb.Close()
	}
	return nil
}
