package bootstrap

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rish231294/pipeshub-ai/adapter/in/worker"
	"github.com/rish231294/pipeshub-ai/config"
)

type Worker struct {
	deps                *Dependencies
	watchRenewScheduler *worker.WatchRenewScheduler
	ctx                 context.Context
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
	zlog                zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Logger
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())

	var watchRenewScheduler *worker.WatchRenewScheduler
	if cfg.WatchRenewalEnabled {
		watchRenewScheduler = worker.NewWatchRenewScheduler(deps.Orchestrator)
	}

	return &Worker{
		deps:                deps,
		watchRenewScheduler: watchRenewScheduler,
		ctx:                 ctx,
		cancel:              cancel,
		zlog:                zlog,
	}, cleanup, nil
}

func (w *Worker) Start() {
	// Mirror the tenant directory, bootstrap watches and park any run that
	// was interrupted mid-flight.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Str("org", w.deps.Config.OrgID).Msg("Initializing sync orchestrator")
		if err := w.deps.Orchestrator.Initialize(w.ctx, w.deps.Config.OrgID); err != nil {
			w.zlog.Error().Err(err).Msg("Orchestrator initialization failed")
			return
		}
		w.zlog.Info().Str("state", string(w.deps.Orchestrator.Lifecycle())).Msg("Orchestrator ready")
	}()

	if w.watchRenewScheduler != nil {
		w.watchRenewScheduler.Start()
		w.zlog.Info().Msg("Started Watch Renew Scheduler")
	}

	// Block until context is cancelled
	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()

	if w.watchRenewScheduler != nil {
		w.watchRenewScheduler.Stop()
	}

	w.wg.Wait()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
