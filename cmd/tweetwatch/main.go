package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tweetwatch/internal/cache"
	"tweetwatch/internal/cmdlog"
	"tweetwatch/internal/config"
	"tweetwatch/internal/dispatch"
	"tweetwatch/internal/gateway"
	"tweetwatch/internal/logging"
	"tweetwatch/internal/metrics"
	"tweetwatch/internal/reconcile"
	"tweetwatch/internal/store/watchstore"
	"tweetwatch/internal/theme"
	"tweetwatch/internal/watch"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "once":
		cmdOnce()
	case "add-account":
		cmdAddAccount()
	case "del-account":
		cmdDelAccount()
	case "add-tweet":
		cmdAddTweet()
	case "del-tweet":
		cmdDelTweet()
	case "list":
		cmdList()
	case "status":
		cmdStatus()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: tweetwatch <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init         Create a config file at ./tweetwatch.yaml")
	fmt.Println("  run          Poll watched accounts and tweets on an interval")
	fmt.Println("  once         Run a single reconciliation cycle")
	fmt.Println("  add-account  Start watching an account's mentions")
	fmt.Println("  del-account  Stop watching an account")
	fmt.Println("  add-tweet    Start watching a tweet's likes and retweets")
	fmt.Println("  del-tweet    Stop watching a tweet")
	fmt.Println("  list         List watched accounts and tweets")
	fmt.Println("  status       Probe the configured bearer token")
}

func mustLoadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no config at", path, "- run 'tweetwatch init' first")
		} else {
			fmt.Println("error:", err)
		}
		os.Exit(1)
	}
	if cfg.Credentials.BearerToken == "" {
		fmt.Println("warning: missing X_BEARER_TOKEN; remote calls will be skipped")
	}
	return cfg
}

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg    config.Config
	store  *watchstore.DB
	gw     gateway.Gateway
	tokens reconcile.TokenSource
	cache  *cache.AccountCache
}

func mustBuildApp(cfgPath string) *app {
	cfg := mustLoadConfig(cfgPath)
	store, err := watchstore.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	gw := gateway.NewHTTPClient(cfg.Polling.RequestTimeout)
	return &app{
		cfg:    cfg,
		store:  store,
		gw:     gw,
		tokens: reconcile.StaticToken(cfg.Credentials.BearerToken),
		cache:  cache.NewAccountCache(gw),
	}
}

func (a *app) close() { _ = a.store.Close() }

func (a *app) watchService() *watch.Service {
	return watch.NewService(a.store, a.gw, a.tokens, a.cache, nil)
}

func (a *app) runner() (*reconcile.Runner, *dispatch.Dispatcher) {
	d := dispatch.New(allowAllRules{}, handleIdentities{}, logBus{}, a.cfg.Dispatch.Workers, a.cfg.Dispatch.QueueSize)
	r := reconcile.NewRunner(a.store, a.gw, a.tokens, d, a.cache, a.cfg.Polling.Workers)
	return r, d
}

// allowAllRules enables every trigger kind. A real deployment plugs the
// platform's rule catalog in here.
type allowAllRules struct{}

func (allowAllRules) IsTriggerEnabledForAccount(context.Context, string, int64) bool { return true }

// handleIdentities treats the remote handle as the internal user id.
type handleIdentities struct{}

func (handleIdentities) ResolveInternalUser(_ context.Context, _, remoteHandle string) (string, error) {
	return remoteHandle, nil
}

// logBus emits broadcast events as log lines. A real deployment plugs the
// platform's event bus in here.
type logBus struct{}

func (logBus) Broadcast(_ context.Context, eventName string, payload map[string]string) error {
	fields := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields["event"] = eventName
	logging.Info("event_broadcast", fields)
	return nil
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./tweetwatch.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	_ = cmdlog.Run("run", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		metrics.StartServer(a.cfg.Metrics.Addr)
		runner, dispatcher := a.runner()
		dispatcher.Start()
		defer dispatcher.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logging.Info("poll_loop_start", map[string]any{"interval": a.cfg.Polling.Interval.String()})
		if err := runner.RunLoop(ctx, a.cfg.Polling.Interval); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
}

func cmdOnce() {
	fs := flag.NewFlagSet("once", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	refresh := fs.Bool("refresh", false, "drop cached account metadata first")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("once", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		runner, dispatcher := a.runner()
		if *refresh {
			runner.ForceRefreshAccountCache()
		}
		dispatcher.Start()
		defer dispatcher.Stop()
		return runner.RunCycle(context.Background())
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdAddAccount() {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	handle := fs.String("handle", "", "account handle, without @")
	by := fs.String("by", "cli", "who requested the watch")
	_ = fs.Parse(os.Args[2:])
	if *handle == "" {
		fmt.Println("error: -handle is required")
		os.Exit(1)
	}
	err := cmdlog.Run("add-account", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		acc, err := a.watchService().AddAccount(context.Background(), *handle, *by)
		if err != nil {
			return err
		}
		fmt.Printf("watching @%s (id=%d, cursor=%d)\n", acc.Identifier, acc.ID, acc.MentionCursor)
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdDelAccount() {
	fs := flag.NewFlagSet("del-account", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	id := fs.Int64("id", 0, "watched account id")
	_ = fs.Parse(os.Args[2:])
	if *id == 0 {
		fmt.Println("error: -id is required")
		os.Exit(1)
	}
	err := cmdlog.Run("del-account", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		return a.watchService().DeleteAccount(context.Background(), *id)
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdAddTweet() {
	fs := flag.NewFlagSet("add-tweet", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	link := fs.String("link", "", "tweet link, e.g. https://x.com/user/status/123")
	_ = fs.Parse(os.Args[2:])
	if *link == "" {
		fmt.Println("error: -link is required")
		os.Exit(1)
	}
	err := cmdlog.Run("add-tweet", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		tweet, err := a.watchService().AddTweet(context.Background(), *link)
		if err != nil {
			return err
		}
		fmt.Printf("watching tweet %d (likers=%d retweeters=%d)\n", tweet.TweetID(), len(tweet.Likers), len(tweet.Retweeters))
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdDelTweet() {
	fs := flag.NewFlagSet("del-tweet", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	id := fs.Int64("id", 0, "watched tweet id")
	_ = fs.Parse(os.Args[2:])
	if *id == 0 {
		fmt.Println("error: -id is required")
		os.Exit(1)
	}
	err := cmdlog.Run("del-tweet", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		return a.watchService().DeleteTweet(context.Background(), *id)
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	remote := fs.Bool("remote", false, "include live remote metadata per account")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("list", func() error {
		a := mustBuildApp(*cfgPath)
		defer a.close()
		ctx := context.Background()
		accounts, err := a.store.ListAccounts(ctx)
		if err != nil {
			return err
		}
		tweets, err := a.store.ListTweets(ctx)
		if err != nil {
			return err
		}
		svc := a.watchService()
		fmt.Printf("Accounts (%d/%d):\n", len(accounts), watch.MaxWatchedAccounts)
		for _, acc := range accounts {
			fmt.Printf("  %d  @%-20s cursor=%d watched_by=%s since=%s\n",
				acc.ID, acc.Identifier, acc.MentionCursor, acc.WatchedBy,
				acc.WatchedSince.Format(time.RFC3339))
			if *remote {
				if details, err := svc.RemoteDetails(ctx, acc.ID); err == nil {
					fmt.Printf("      %s: %s\n", details.Name, details.Description)
				} else {
					fmt.Printf("      remote lookup failed: %v\n", err)
				}
			}
		}
		fmt.Printf("Tweets (%d):\n", len(tweets))
		for _, t := range tweets {
			fmt.Printf("  %d  %s likers=%d retweeters=%d\n", t.ID, t.TweetLink, len(t.Likers), len(t.Retweeters))
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "./tweetwatch.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("status", func() error {
		cfg := mustLoadConfig(*cfgPath)
		if cfg.Credentials.BearerToken == "" {
			fmt.Println("token: not configured")
			return nil
		}
		gw := gateway.NewHTTPClient(cfg.Polling.RequestTimeout)
		st, err := gw.ProbeTokenStatus(context.Background(), cfg.Credentials.BearerToken)
		if err != nil {
			fmt.Println("token: indeterminate:", err)
			return nil
		}
		if !st.Valid {
			fmt.Println("token: invalid")
			return nil
		}
		fmt.Printf("token: valid, %d probe calls remaining, window resets %s\n",
			st.Remaining, st.ResetAt.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
