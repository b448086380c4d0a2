package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pricefeed/internal/alerting"
	"pricefeed/internal/api"
	"pricefeed/internal/config"
	"pricefeed/internal/fetcher"
	"pricefeed/internal/oracle"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/service"
	"pricefeed/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Stdout io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Stdout: os.Stdout,
	}
}

// runtime holds the collaborators of one service instance.
type runtime struct {
	feed    *storage.FeedStore
	blobs   storage.BlobStore
	svc     *service.Service
	closers []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) openFeed(ctx context.Context) (*storage.FeedStore, storage.BlobStore, func(), error) {
	blobs, closer, err := storage.Open(ctx, a.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	return storage.NewFeedStore(blobs, a.Config.Storage.Prefix, a.Logger), blobs, closer, nil
}

func (a *App) newChains() map[string]*fetcher.Chain {
	chains := make(map[string]*fetcher.Chain, len(a.Config.Chains))
	for name, cfg := range a.Config.Chains {
		chains[name] = fetcher.NewChain(fetcher.ChainOptions{
			Name:    name,
			RPCURL:  cfg.RPCURL,
			Timeout: cfg.RequestTimeout,
		}, a.Logger)
	}
	return chains
}

func (a *App) newCoinGecko() *fetcher.CoinGecko {
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:   a.Config.CoinGecko.BaseURL,
		APIKey:    a.Config.CoinGecko.APIKey,
		Timeout:   a.Config.CoinGecko.RequestTimeout,
		UserAgent: a.Config.CoinGecko.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	cfg := a.Config.Alerting.Telegram
	var notifier alerting.Notifier = alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	if a.Config.Alerting.Cooldown > 0 {
		notifier = alerting.NewThrottled(notifier, a.Config.Alerting.Cooldown)
	}
	return notifier
}

func (a *App) newPublisher() (storage.Publisher, func()) {
	if !a.Config.Redis.Enabled {
		return nil, func() {}
	}
	pub := storage.NewRedisPublisher(a.Config.Redis)
	return pub, func() {
		if err := pub.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close redis publisher")
		}
	}
}

// engineParams converts a token's configuration into engine parameters.
func engineParams(t config.TokenConfig) oracle.Params {
	return oracle.Params{
		Window:    int64(t.Window / time.Second),
		Retention: int64(t.Retention / time.Second),
		Decimals:  t.Precision(),
		Sigma:     t.Sigma,
	}
}

func venues(t config.TokenConfig) ([]fetcher.Venue, error) {
	out := make([]fetcher.Venue, 0, len(t.Venues))
	for _, v := range t.Venues {
		if !common.IsHexAddress(v.WeightToken) {
			return nil, fmt.Errorf("tokens.%s: venue %q weight_token is not an address", t.Symbol, v.Name)
		}
		venue := fetcher.Venue{
			Name:           v.Name,
			Chain:          v.Chain,
			WeightToken:    common.HexToAddress(v.WeightToken),
			WeightDecimals: v.WeightDecimals,
		}
		for _, leg := range v.Legs {
			if !common.IsHexAddress(leg.Pair) {
				return nil, fmt.Errorf("tokens.%s: venue %q pair %q is not an address", t.Symbol, v.Name, leg.Pair)
			}
			venue.Legs = append(venue.Legs, fetcher.Leg{
				Pair:      common.HexToAddress(leg.Pair),
				Decimals0: leg.Decimals0,
				Decimals1: leg.Decimals1,
				Invert:    leg.Invert,
			})
		}
		out = append(out, venue)
	}
	return out, nil
}

// buildTokens pairs every configured token with its engine and sample source.
func (a *App) buildTokens(readers map[string]fetcher.ReserveReader, spots fetcher.SpotFetcher) ([]service.Token, error) {
	tokens := make([]service.Token, 0, len(a.Config.Tokens))
	for _, t := range a.Config.Tokens {
		engine, err := oracle.NewEngine(engineParams(t))
		if err != nil {
			return nil, fmt.Errorf("tokens.%s: %w", t.Symbol, err)
		}

		var source oracle.SampleSource
		switch t.Source {
		case config.SourceCoinGecko:
			source = fetcher.SpotSource(spots, t.CoinGeckoID)
		default:
			vs, err := venues(t)
			if err != nil {
				return nil, err
			}
			vsrc, err := fetcher.NewVenueSource(t.Symbol, vs, readers, a.Logger)
			if err != nil {
				return nil, fmt.Errorf("tokens.%s: %w", t.Symbol, err)
			}
			source = vsrc.SampleSource()
		}
		tokens = append(tokens, service.Token{Symbol: t.Symbol, Engine: engine, Source: source})
	}
	return tokens, nil
}

func (a *App) newRuntime(ctx context.Context, sched *scheduler.Scheduler) (*runtime, error) {
	rt := &runtime{}
	feed, blobs, closeStore, err := a.openFeed(ctx)
	if err != nil {
		return nil, err
	}
	rt.feed, rt.blobs = feed, blobs
	rt.closers = append(rt.closers, closeStore)

	chains := a.newChains()
	readers := make(map[string]fetcher.ReserveReader, len(chains))
	for name, chain := range chains {
		readers[name] = chain
		rt.closers = append(rt.closers, chain.Close)
	}
	spots := a.newCoinGecko()

	tokens, err := a.buildTokens(readers, spots)
	if err != nil {
		rt.close()
		return nil, err
	}
	attest, err := a.attestations(chains)
	if err != nil {
		rt.close()
		return nil, err
	}
	for i := range tokens {
		tokens[i].Attest = attest[tokens[i].Symbol]
	}

	publisher, closePublisher := a.newPublisher()
	rt.closers = append(rt.closers, closePublisher)

	opts := service.Options{
		Scheduler: sched,
		Publisher: publisher,
		Notifier:  a.newNotifier(),
		LockKey:   a.Config.Scheduler.AdvisoryLockKey,
	}
	if locker, ok := blobs.(storage.AdvisoryLocker); ok {
		opts.Locker = locker
	}
	if a.Config.BondPrices.Enabled {
		opts.Bonds = service.NewBondTracker(spots, a.Config.BondPrices.IDs, a.Config.BondPrices.Key, feed)
	}

	rt.svc = service.New(tokens, feed, opts, a.Logger)
	return rt, nil
}

func (a *App) symbols() []string {
	out := make([]string, 0, len(a.Config.Tokens))
	for _, t := range a.Config.Tokens {
		out = append(out, t.Symbol)
	}
	return out
}

// Run executes the long-running price service and, when enabled, the feed API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	rt, err := a.newRuntime(ctx, sched)
	if err != nil {
		return err
	}
	defer rt.close()

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.API.Enabled {
		server := api.NewServer(rt.feed, a.symbols(), a.Logger)
		g.Go(func() error {
			return server.ListenAndServe(gctx, a.Config.API.Listen)
		})
	}
	g.Go(func() error {
		a.Logger.Info().Int("tokens", len(a.Config.Tokens)).Msg("starting price service")
		return rt.svc.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price service stopped")
	return nil
}

// ExportOptions hold parameters for exporting a token's history.
type ExportOptions struct {
	Token     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Token string
	Limit int
}

// TwapOptions configure the offline TWAP computation.
type TwapOptions struct {
	File     string
	Window   time.Duration
	Decimals int32
}

// SimulateOptions configure an alert drill.
type SimulateOptions struct {
	Token   string
	Message string
}
