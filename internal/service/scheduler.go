package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"microfinance/internal/clock"
	"microfinance/internal/domain"
	"microfinance/internal/errors"
)

// TariffScheduler charges the previous month's tariffs in the background. It
// checks on every tick; a month that already has a recorded run is left alone,
// so each month is charged once.
type TariffScheduler struct {
	tariffs  *TariffService
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewTariffScheduler(tariffs *TariffService, clk clock.Clock, interval time.Duration, logger *slog.Logger) *TariffScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TariffScheduler{
		tariffs:  tariffs,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a check immediately and then on every interval.
func (ts *TariffScheduler) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.ticker != nil {
		return
	}
	ts.ticker = time.NewTicker(ts.interval)
	ts.stop = make(chan struct{})
	ts.wg.Add(1)

	go ts.run(ts.ticker, ts.stop)

	ts.logger.Info("Tariff scheduler started", "interval", ts.interval)
}

// Stop waits for an in-flight run to finish.
func (ts *TariffScheduler) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.ticker == nil {
		return
	}
	ts.ticker.Stop()
	close(ts.stop)
	ts.wg.Wait()
	ts.ticker = nil

	ts.logger.Info("Tariff scheduler stopped")
}

func (ts *TariffScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ts.wg.Done()

	ts.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			ts.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce charges the month before the current one if it has not been
// charged yet.
func (ts *TariffScheduler) RunOnce(ctx context.Context) *domain.TariffRun {
	period := domain.PeriodOf(ts.clock.Now()).Previous()

	run, err := ts.tariffs.ChargeMonthlyTariffs(ctx, period)
	if err != nil {
		if errors.Is(err, errors.ErrTariffRunAlreadyCompleted) {
			ts.logger.Debug("Tariffs already charged", "period", period.String())
			return nil
		}
		ts.logger.Error("Scheduled tariff run failed", "period", period.String(), "error", err)
		return nil
	}
	return run
}
