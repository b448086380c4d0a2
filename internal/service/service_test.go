package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricefeed/internal/alerting"
	"pricefeed/internal/oracle"
	"pricefeed/internal/signer"
	"pricefeed/internal/storage"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	records map[string]storage.PriceRecord
}

func (p *recordingPublisher) Publish(_ context.Context, symbol string, rec storage.PriceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.records == nil {
		p.records = make(map[string]storage.PriceRecord)
	}
	p.records[symbol] = rec
	return nil
}

type fakeLocker struct {
	acquired bool
	calls    int
	released int
}

func (l *fakeLocker) TryAdvisoryLock(_ context.Context, _ int64) (func(), bool, error) {
	l.calls++
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

type staticSpots map[string]float64

func (s staticSpots) FetchSpots(_ context.Context, ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newFeed(t *testing.T) *storage.FeedStore {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return storage.NewFeedStore(blobs, "output/", zerolog.Nop())
}

func newToken(t *testing.T, symbol string, source oracle.SampleSource) Token {
	t.Helper()
	engine, err := oracle.NewEngine(oracle.Params{Window: 3600, Decimals: 18})
	require.NoError(t, err)
	return Token{Symbol: symbol, Engine: engine, Source: source}
}

func constant(price float64) oracle.SampleSource {
	return func(context.Context) ([]oracle.PoolQuote, error) {
		return []oracle.PoolQuote{{Price: price, Weight: 1}}, nil
	}
}

func TestRunCycleRecordsEveryToken(t *testing.T) {
	feed := newFeed(t)
	pub := &recordingPublisher{}
	svc := New([]Token{
		newToken(t, "solace", constant(0.02)),
		newToken(t, "wnear", constant(3.5)),
	}, feed, Options{Publisher: pub}, zerolog.Nop())

	ctx := context.Background()
	bucket := time.Unix(1_700_000_000, 0).UTC()
	outcomes, err := svc.RunCycle(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	for _, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, 1, o.Samples)
	}
	assert.InDelta(t, 0.02, outcomes[0].Price, 1e-12)

	history, err := feed.LoadHistory(ctx, "wnear")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, bucket.Unix(), history[0].Timestamp)

	rec, err := feed.LoadPrice(ctx, "wnear")
	require.NoError(t, err)
	assert.Equal(t, "3500000000000000000", rec.PriceNormalized)
	assert.Equal(t, rec, pub.records["wnear"])
}

func TestRunCycleAccumulatesHistory(t *testing.T) {
	feed := newFeed(t)
	price := 1.0
	source := func(context.Context) ([]oracle.PoolQuote, error) {
		return []oracle.PoolQuote{{Price: price, Weight: 1}}, nil
	}
	svc := New([]Token{newToken(t, "solace", source)}, feed, Options{}, zerolog.Nop())

	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)
	_, err := svc.RunCycle(ctx, start)
	require.NoError(t, err)

	price = 3.0
	outcomes, err := svc.RunCycle(ctx, start.Add(10*time.Minute))
	require.NoError(t, err)

	// Left-weighted: the older price covers the whole elapsed span.
	assert.InDelta(t, 1.0, outcomes[0].Price, 1e-12)
	assert.InDelta(t, 3.0, outcomes[0].Spot, 1e-12)
	assert.Equal(t, 2, outcomes[0].Samples)
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	feed := newFeed(t)
	notifier := &recordingNotifier{}
	boom := errors.New("rpc unavailable")
	failing := func(context.Context) ([]oracle.PoolQuote, error) { return nil, boom }

	svc := New([]Token{
		newToken(t, "solace", failing),
		newToken(t, "wnear", constant(3.5)),
	}, feed, Options{Notifier: notifier}, zerolog.Nop())

	ctx := context.Background()
	outcomes, err := svc.RunCycle(ctx, time.Unix(1_700_000_000, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, outcomes[0].Err, boom)
	assert.ErrorIs(t, outcomes[0].Err, oracle.ErrSampleSource)
	assert.NoError(t, outcomes[1].Err)

	history, err := feed.LoadHistory(ctx, "solace")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = feed.LoadPrice(ctx, "solace")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "solace", notifier.notes[0].Token)
	assert.Equal(t, "fetch", notifier.notes[0].Stage)
}

func TestRunCycleDoesNotPersistOnComputeError(t *testing.T) {
	feed := newFeed(t)
	notifier := &recordingNotifier{}
	noLiquidity := func(context.Context) ([]oracle.PoolQuote, error) {
		return []oracle.PoolQuote{{Price: 1, Weight: 0}}, nil
	}
	svc := New([]Token{newToken(t, "solace", noLiquidity)}, feed, Options{Notifier: notifier}, zerolog.Nop())

	_, err := svc.RunCycle(context.Background(), time.Unix(1_700_000_000, 0))
	require.ErrorIs(t, err, oracle.ErrNoLiquidity)

	history, err := feed.LoadHistory(context.Background(), "solace")
	require.NoError(t, err)
	assert.Empty(t, history)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "compute", notifier.notes[0].Stage)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	feed := newFeed(t)
	locker := &fakeLocker{}
	svc := New([]Token{newToken(t, "solace", constant(1))}, feed, Options{Locker: locker, LockKey: 42}, zerolog.Nop())

	outcomes, err := svc.RunCycle(context.Background(), time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.Equal(t, 1, locker.calls)

	locker.acquired = true
	outcomes, err = svc.RunCycle(context.Background(), time.Unix(1_700_000_600, 0))
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, 1, locker.released)
}

func TestBondTrackerStoresNamedSnapshot(t *testing.T) {
	feed := newFeed(t)
	tracker := NewBondTracker(staticSpots{"usd-coin": 1.0, "wrapped-near": 3.5, "unmapped": 9},
		map[string]string{"usd-coin": "usdc", "wrapped-near": "wnear"}, "bondPrices.json", feed)

	svc := New(nil, feed, Options{Bonds: tracker}, zerolog.Nop())
	_, err := svc.RunCycle(context.Background(), time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	var snapshot map[string]float64
	require.NoError(t, feed.LoadJSON(context.Background(), "bondPrices.json", &snapshot))
	assert.Equal(t, map[string]float64{"usdc": 1.0, "wnear": 3.5}, snapshot)
}

func TestFailureAlertCarriesLastPublishedPrice(t *testing.T) {
	feed := newFeed(t)
	notifier := &recordingNotifier{}
	fail := false
	source := func(context.Context) ([]oracle.PoolQuote, error) {
		if fail {
			return nil, errors.New("pair reverted")
		}
		return []oracle.PoolQuote{{Price: 2, Weight: 1}}, nil
	}
	svc := New([]Token{newToken(t, "solace", source)}, feed, Options{Notifier: notifier}, zerolog.Nop())

	ctx := context.Background()
	_, err := svc.RunCycle(ctx, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	fail = true
	_, err = svc.RunCycle(ctx, time.Unix(1_700_000_600, 0))
	require.Error(t, err)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "2000000000000000000", notifier.notes[0].LastPrice)

	history, err := feed.LoadHistory(ctx, "solace")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

type failingSigner struct{ err error }

func (f failingSigner) Sign(context.Context, storage.PriceRecord) (signer.Bundle, error) {
	return signer.Bundle{}, f.err
}

func TestRunCycleStoresSignedBundle(t *testing.T) {
	feed := newFeed(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	priceSigner := signer.New(key, []signer.Contract{{
		ChainID:    1,
		Address:    common.HexToAddress("0x501AcE6C657A9b53B320780068Fd99894d5795Cb"),
		Token:      common.HexToAddress("0x501acE9c35E60f03A2af4d484f49F9B1EFde9f40"),
		TypeName:   "PriceData",
		DomainName: "Solace.fi-SolaceSigner",
		Version:    "1",
	}}, time.Hour)

	token := newToken(t, "solace", constant(0.02))
	token.Attest = &Attestation{Signer: priceSigner, Key: "solacePrice.json"}
	svc := New([]Token{token}, feed, Options{}, zerolog.Nop())

	ctx := context.Background()
	_, err = svc.RunCycle(ctx, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	var bundle signer.Bundle
	require.NoError(t, feed.LoadJSON(ctx, "solacePrice.json", &bundle))
	assert.Equal(t, "20000000000000000", bundle.PriceNormalized)
	assert.Equal(t, priceSigner.Address().Hex(), bundle.Signer)
	require.Contains(t, bundle.Signatures, "1")
	assert.Len(t, bundle.Signatures["1"], 1)
}

func TestRunCycleSigningFailureKeepsPrice(t *testing.T) {
	feed := newFeed(t)
	notifier := &recordingNotifier{}
	rejected := errors.New("signature rejected")

	token := newToken(t, "solace", constant(2))
	token.Attest = &Attestation{Signer: failingSigner{err: rejected}, Key: "solacePrice.json"}
	svc := New([]Token{token}, feed, Options{Notifier: notifier}, zerolog.Nop())

	ctx := context.Background()
	outcomes, err := svc.RunCycle(ctx, time.Unix(1_700_000_000, 0))
	require.ErrorIs(t, err, rejected)
	assert.Equal(t, "2000000000000000000", outcomes[0].Normalized)

	rec, err := feed.LoadPrice(ctx, "solace")
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", rec.PriceNormalized)

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "sign", notifier.notes[0].Stage)
	assert.Equal(t, "2000000000000000000", notifier.notes[0].LastPrice)
}
