package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pricefeed/internal/alerting"
	"pricefeed/internal/metrics"
	"pricefeed/internal/oracle"
	"pricefeed/internal/scheduler"
	"pricefeed/internal/signer"
	"pricefeed/internal/storage"
)

// FeedRepository persists token histories and feed values.
type FeedRepository interface {
	LoadHistory(ctx context.Context, symbol string) (oracle.History, error)
	LoadPrice(ctx context.Context, symbol string) (storage.PriceRecord, error)
	Save(ctx context.Context, snap storage.FeedSnapshot) error
	SaveJSON(ctx context.Context, key string, v any) error
}

// PriceSigner attests a persisted feed value.
type PriceSigner interface {
	Sign(ctx context.Context, rec storage.PriceRecord) (signer.Bundle, error)
}

// Attestation signs a token's feed value after every successful cycle and stores
// the bundle under Key.
type Attestation struct {
	Signer PriceSigner
	Key    string
}

// Token binds a symbol to its engine parameters and sample source.
type Token struct {
	Symbol string
	Engine *oracle.Engine
	Source oracle.SampleSource
	Attest *Attestation
}

// Outcome is the result of one token within a cycle.
type Outcome struct {
	Symbol     string
	Price      float64
	Normalized string
	Spot       float64
	Samples    int
	Outliers   int
	Err        error
}

// Options collect the optional collaborators of the service.
type Options struct {
	Scheduler *scheduler.Scheduler
	Publisher storage.Publisher
	Notifier  alerting.Notifier
	Bonds     *BondTracker
	Locker    storage.AdvisoryLocker
	LockKey   int64
}

// Service runs price cycles: fetch, engine, persist, publish, alert.
type Service struct {
	tokens    []Token
	feed      FeedRepository
	scheduler *scheduler.Scheduler
	publisher storage.Publisher
	notifier  alerting.Notifier
	bonds     *BondTracker
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// New constructs the price service.
func New(tokens []Token, feed FeedRepository, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		tokens:    tokens,
		feed:      feed,
		scheduler: opts.Scheduler,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		bonds:     opts.Bonds,
		locker:    opts.Locker,
		lockKey:   opts.LockKey,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs one cycle for every token.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	_, err := s.RunCycle(ctx, bucket)
	return err
}

// RunCycle runs one cycle and reports per-token outcomes. Tokens are independent: a
// failure in one does not stop or roll back the others.
func (s *Service) RunCycle(ctx context.Context, bucket time.Time) ([]Outcome, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil, nil
	}
	if unlock != nil {
		defer unlock()
	}

	outcomes := make([]Outcome, len(s.tokens))
	var g errgroup.Group
	for i, token := range s.tokens {
		i, token := i, token
		g.Go(func() error {
			outcomes[i] = s.processToken(ctx, bucket, token)
			return nil
		})
	}

	var bondErr error
	var wg sync.WaitGroup
	if s.bonds != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.bonds.Track(ctx); err != nil {
				bondErr = fmt.Errorf("bond prices: %w", err)
				s.logger.Error().Err(err).Time("bucket", bucket).Msg("bond price snapshot failed")
				s.alert(ctx, alerting.Notification{Bucket: bucket, Stage: "bond_prices", Err: err})
			}
		}()
	}
	_ = g.Wait()
	wg.Wait()

	errs := []error{bondErr}
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Symbol, o.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}

func (s *Service) processToken(ctx context.Context, bucket time.Time, token Token) Outcome {
	start := time.Now()
	outcome := Outcome{Symbol: token.Symbol}
	logger := s.logger.With().Str("token", token.Symbol).Time("bucket", bucket).Logger()

	stage, snap, res, err := s.computeToken(ctx, bucket, token)
	if err != nil {
		outcome.Err = err
		metrics.RecordCycle(token.Symbol, "error", time.Since(start))
		logger.Error().Err(err).Str("stage", stage).Msg("price cycle failed")
		note := alerting.Notification{Bucket: bucket, Token: token.Symbol, Stage: stage, Err: err}
		if last, lerr := s.feed.LoadPrice(ctx, token.Symbol); lerr == nil {
			note.LastPrice = last.PriceNormalized
		}
		s.alert(ctx, note)
		return outcome
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, token.Symbol, snap.Price); err != nil {
			logger.Error().Err(err).Msg("failed to publish price")
		}
	}

	outcome.Price = res.Price
	outcome.Normalized = res.Normalized
	outcome.Spot = res.Spot
	outcome.Samples = len(res.History)
	outcome.Outliers = res.Outliers

	status := "ok"
	if err := s.attest(ctx, token, snap.Price); err != nil {
		status = "error"
		outcome.Err = err
		logger.Error().Err(err).Str("stage", "sign").Msg("price signing failed")
		s.alert(ctx, alerting.Notification{
			Bucket: bucket, Token: token.Symbol, Stage: "sign", Err: err, LastPrice: snap.Price.PriceNormalized,
		})
	}

	metrics.RecordCycle(token.Symbol, status, time.Since(start))
	metrics.RecordPrice(token.Symbol, res.Spot, res.Price, res.Outliers, len(res.History))

	logger.Info().
		Float64("spot", res.Spot).
		Float64("price", res.Price).
		Str("normalized", res.Normalized).
		Int("samples", len(res.History)).
		Int("outliers", res.Outliers).
		Msg("price recorded")
	return outcome
}

// computeToken returns the failing stage alongside any error. Nothing is persisted
// unless the engine produced a complete result.
func (s *Service) computeToken(ctx context.Context, bucket time.Time, token Token) (string, storage.FeedSnapshot, oracle.Result, error) {
	history, err := s.feed.LoadHistory(ctx, token.Symbol)
	if err != nil {
		return "load", storage.FeedSnapshot{}, oracle.Result{}, err
	}

	res, err := token.Engine.Run(ctx, history, token.Source, bucket.Unix())
	if errors.Is(err, oracle.ErrSampleSource) {
		return "fetch", storage.FeedSnapshot{}, oracle.Result{}, err
	}
	if err != nil {
		return "compute", storage.FeedSnapshot{}, oracle.Result{}, err
	}

	snap := storage.FeedSnapshot{
		Symbol:  token.Symbol,
		History: res.History,
		Price: storage.PriceRecord{
			PriceFloat:      res.Price,
			PriceNormalized: res.Normalized,
			Timestamp:       bucket.Unix(),
		},
	}
	if err := s.feed.Save(ctx, snap); err != nil {
		return "persist", storage.FeedSnapshot{}, oracle.Result{}, err
	}
	return "", snap, res, nil
}

// attest signs a persisted value. The feed value itself stays published when
// signing fails.
func (s *Service) attest(ctx context.Context, token Token, rec storage.PriceRecord) error {
	if token.Attest == nil {
		return nil
	}
	bundle, err := token.Attest.Signer.Sign(ctx, rec)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := s.feed.SaveJSON(ctx, token.Attest.Key, bundle); err != nil {
		return fmt.Errorf("save %s: %w", token.Attest.Key, err)
	}
	return nil
}

func (s *Service) alert(ctx context.Context, note alerting.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("token", note.Token).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
