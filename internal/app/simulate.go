package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricefeed/internal/oracle"
	"pricefeed/internal/service"
)

// SimulateAlert drives one failing cycle for a token through the real alert path.
// Nothing is persisted because the sample source fails before the engine runs.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	token, ok := a.Config.Token(opts.Token)
	if !ok {
		return fmt.Errorf("token %q not configured", opts.Token)
	}

	feed, _, closeStore, err := a.openFeed(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := oracle.NewEngine(engineParams(token))
	if err != nil {
		return err
	}

	message := opts.Message
	if message == "" {
		message = "simulated sample source failure"
	}
	simulated := errors.New(message)
	source := func(context.Context) ([]oracle.PoolQuote, error) { return nil, simulated }

	svc := service.New([]service.Token{{Symbol: token.Symbol, Engine: engine, Source: source}}, feed,
		service.Options{Notifier: notifier}, a.Logger)

	bucket := time.Now().UTC().Truncate(time.Second)
	if err := svc.ProcessBucket(ctx, bucket); err != nil && !errors.Is(err, simulated) {
		return err
	}
	a.Logger.Info().Str("token", token.Symbol).Msg("simulated alert dispatched")
	return nil
}
