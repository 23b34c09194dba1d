package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/ledgerfeed/internal/config"
	"github.com/elonfeng/ledgerfeed/internal/scheduler"
	"github.com/elonfeng/ledgerfeed/internal/store"
	"github.com/elonfeng/ledgerfeed/pkg/alert"
	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/ledger"
	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
	"github.com/elonfeng/ledgerfeed/pkg/server"
	"golang.org/x/sync/errgroup"
)

// app holds everything a command needs, wired from config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *store.SQLiteStore
	rpc      *ledger.Client
	social   *ledger.Social
	resolver *reputation.Resolver
	engine   *rank.Engine
	closers  []io.Closer
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, closers: []io.Closer{db}}

	a.rpc = ledger.NewClient(cfg.Ledger.RPCURL, ledger.NewHTTPClient(ledger.HTTPOptions{
		MaxRetries: cfg.Ledger.MaxRetries,
		Timeout:    cfg.Ledger.ParseTimeout(),
		Logger:     logger,
	}))
	socialAddr, _ := feed.ParseAddress(cfg.Ledger.SocialContract)
	repAddr, _ := feed.ParseAddress(cfg.Ledger.ReputationContract)
	a.social = ledger.NewSocial(a.rpc, socialAddr, cfg.Ledger.Concurrency, logger)

	repOpts := []reputation.Option{
		reputation.WithConcurrency(cfg.Reputation.Concurrency),
		reputation.WithLogger(logger),
	}
	cache, err := a.buildCache()
	if err != nil {
		a.Close()
		return nil, err
	}
	if cache != nil {
		repOpts = append(repOpts, reputation.WithCache(cache))
	}
	a.resolver = reputation.NewResolver(ledger.NewReputation(a.rpc, repAddr), repOpts...)

	a.engine, err = rank.NewEngine(a.resolver, cfg.Ranking.Weights,
		rank.WithTrendingWindow(cfg.Ranking.ParseTrendingWindow()),
		rank.WithTrendingLimit(cfg.Ranking.TrendingLimit),
		rank.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) buildCache() (reputation.Cache, error) {
	rc := a.cfg.Reputation
	switch rc.Cache {
	case "none":
		return nil, nil
	case "redis":
		client, err := reputation.ConnectRedis(rc.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		cache := reputation.NewRedisCache(client, "", rc.ParseCacheTTL())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cache.Ping(ctx); err != nil {
			return nil, err
		}
		return cache, nil
	}
	return reputation.NewMemoryCache(rc.CacheCapacity, rc.ParseCacheTTL()), nil
}

func (a *app) buildAlertManager() (*alert.Manager, error) {
	ac := a.cfg.Alerts
	var notifiers []alert.Notifier

	if ac.Slack.Enabled && ac.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(ac.Slack.WebhookURL))
	}
	if ac.Discord.Enabled && ac.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(ac.Discord.WebhookURL))
	}
	if ac.Webhook.Enabled && ac.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(ac.Webhook.URL, ac.Webhook.Secret))
	}
	if ac.Telegram.Enabled && ac.Telegram.BotToken != "" {
		tg, err := alert.NewTelegram(ac.Telegram.BotToken, ac.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	if ac.Kafka.Enabled {
		k, err := alert.NewKafka(ac.Kafka.Brokers, ac.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, k)
	}

	mgr := alert.NewManager(notifiers)
	a.closers = append(a.closers, mgr)
	return mgr, nil
}

func (a *app) newScheduler(alertMgr *alert.Manager) *scheduler.Scheduler {
	var feedURL string
	if base := strings.TrimSuffix(a.cfg.Server.PublicURL, "/"); base != "" {
		feedURL = base + "/api/v1/feeds/trending"
	}
	return scheduler.New(a.db, a.social, a.resolver, a.engine, alertMgr, scheduler.Options{
		SyncSpec:       a.cfg.Schedule.Sync,
		TrendingSpec:   a.cfg.Schedule.Trending,
		TrendingWindow: a.cfg.Ranking.ParseTrendingWindow(),
		RefreshRecent:  a.cfg.Schedule.RefreshRecent,
		FeedURL:        feedURL,
		Logger:         a.logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkLedger confirms the node answers before any work is scheduled.
func (a *app) checkLedger(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Ledger.ParseTimeout())
	defer cancel()
	id, err := a.rpc.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("ledger node %s: %w", a.cfg.Ledger.RPCURL, err)
	}
	a.logger.Info("connected to ledger", "chain_id", id)
	return nil
}

func runSync(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.checkLedger(ctx); err != nil {
		return err
	}

	run, err := a.newScheduler(nil).SyncPosts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "synced posts %d..%d: %d fetched, %d skipped\n", run.FromID, run.ToID, run.Fetched, run.Skipped)
	return nil
}

type feedOptions struct {
	variant    string
	viewer     string
	tier       string
	window     time.Duration
	limit      int
	jsonOutput bool
	explain    bool
}

func runFeed(ctx context.Context, opts feedOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	variant, err := rank.ParseVariant(opts.variant)
	if err != nil {
		return err
	}
	req := rank.Request{
		Variant:        variant,
		TrendingWindow: opts.window,
		WithBreakdown:  opts.explain,
	}
	if opts.viewer != "" {
		if req.ViewerAddress, err = feed.ParseAddress(opts.viewer); err != nil {
			return err
		}
	}
	if opts.tier != "" {
		tier, err := reputation.ParseTier(opts.tier)
		if err != nil {
			return err
		}
		req.Viewer = &tier
	}

	if req.Posts, err = a.db.ListPosts(ctx, store.ListOpts{}); err != nil {
		return fmt.Errorf("list posts: %w", err)
	}
	posts, err := a.engine.BuildVariant(ctx, req)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(posts) > opts.limit {
		posts = posts[:opts.limit]
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	}

	if len(posts) == 0 {
		fmt.Println("no posts found (try syncing first: ledgerfeed sync)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tTIER\tLIKES\tREPLIES\tAUTHOR\tCONTENT")
	for _, p := range posts {
		score, tier := "-", "-"
		if v, ok := variant.Score(p); ok {
			score = fmt.Sprintf("%.2f", v)
		}
		if variant.HasReputation() {
			tier = rank.AuthorTier(p).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
			p.ID, score, tier, p.Likes, p.Replies, p.Author, truncate(p.Content, 60))
	}
	return w.Flush()
}

func runExplain(ctx context.Context, rawID string, jsonOutput bool) error {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid post id %q", rawID)
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	post, err := a.db.GetPost(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		p, lerr := a.social.GetPost(ctx, id)
		if lerr != nil {
			return fmt.Errorf("post %d is not indexed and could not be read: %w", id, lerr)
		}
		post, err = &p, nil
	}
	if err != nil {
		return err
	}

	b, err := a.engine.Explain(ctx, *post, nil)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}

	fmt.Printf("post #%d by %s, %.1fh old\n\n", post.ID, post.Author, b.AgeHours)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPONENT\tRAW\tNORMALIZED\tWEIGHT\tWEIGHTED")
	for _, row := range []struct {
		name string
		c    rank.Component
	}{
		{"reputation", b.Reputation},
		{"recency", b.Recency},
		{"engagement", b.Engagement},
		{"safety", b.Safety},
	} {
		fmt.Fprintf(w, "%s\t%v\t%.4f\t%.2f\t%.4f\n", row.name, row.c.Raw, row.c.Normalized, row.c.Weight, row.c.Weighted)
	}
	fmt.Fprintf(w, "total\t\t\t\t%.4f\n", b.Total)
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nscore: %.2f\n", b.Score)
	return nil
}

func runWeights() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := cfg.Ranking.Weights
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "reputation\t%.2f\n", w.Reputation)
	fmt.Fprintf(tw, "recency\t%.2f\n", w.Recency)
	fmt.Fprintf(tw, "engagement\t%.2f\n", w.Engagement)
	fmt.Fprintf(tw, "safety\t%.2f\n", w.Safety)
	fmt.Fprintf(tw, "sum\t%.3f\n", w.Sum())
	return tw.Flush()
}

func runServe(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := server.New(a.db, a.engine, a.resolver, a.newScheduler(nil), port, a.logger)
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	alertMgr, err := a.buildAlertManager()
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	if alertMgr.HasNotifiers() {
		a.logger.Info("alerts enabled", "destinations", alertMgr.Names())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The scheduler retries on its own, so an unreachable node is not fatal here.
	if err := a.checkLedger(ctx); err != nil {
		a.logger.Warn("ledger check failed", "error", err)
	}

	sched := a.newScheduler(alertMgr)
	srv := server.New(a.db, a.engine, a.resolver, sched, port, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	err = g.Wait()
	a.logger.Info("shut down")
	return err
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
