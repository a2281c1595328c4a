package service

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satwatch/satwatch-service/cache"
	"github.com/satwatch/satwatch-service/client"
	"github.com/satwatch/satwatch-service/config"
	"github.com/satwatch/satwatch-service/health"
	"github.com/satwatch/satwatch-service/logger"
	"github.com/satwatch/satwatch-service/metrics"
	"github.com/satwatch/satwatch-service/middleware"
	"github.com/satwatch/satwatch-service/scheduler"
	"github.com/satwatch/satwatch-service/server"
	"github.com/satwatch/satwatch-service/tracker"
	"github.com/satwatch/satwatch-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Options carries what the hosting application supplies: the config path
// plus the two domain callbacks the service itself stays agnostic of.
// Predictor and Notifier may be nil; prediction endpoints then answer
// 501 and notification checks become no-ops.
type Options struct {
	ConfigPath string
	Predictor  types.Predictor
	Notifier   types.Notifier
}

// Service assembles every component and owns their combined lifecycle.
// Construction wires, Start ignites in dependency order, Stop unwinds in
// reverse.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	config      *types.ServiceConfig
	logger      types.Logger
	metrics     types.MetricsManager
	caches      *cache.Manager
	client      *client.HTTPClient
	tracker     *tracker.Tracker
	processor   *tracker.Processor
	checker     *tracker.NotificationChecker
	scheduler   *scheduler.Scheduler
	health      *health.Manager
	middlewares *middleware.Manager
	server      *server.FastHTTPServer

	state           atomic.Value
	done            chan struct{}
	shutdownTimeout time.Duration
}

func New(ctx context.Context, opts Options) (*Service, error) {
	if opts.ConfigPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	configManager, err := config.NewConfigurationManager(opts.ConfigPath)
	if err != nil {
		return nil, types.WrapError(err, "load configuration")
	}
	cfg := configManager.GetConfig()

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "build logger")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		config:          cfg,
		logger:          log,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}
	s.state.Store(StateStopped)

	if err := s.buildComponents(serviceCtx, opts); err != nil {
		cancel()
		return nil, err
	}

	return s, nil
}

func (s *Service) buildComponents(ctx context.Context, opts Options) error {
	cfg := s.config

	metricsManager, err := metrics.New(ctx, s.logger, cfg.Metrics)
	if err != nil {
		return types.WrapError(err, "build metrics")
	}
	s.metrics = metricsManager

	caches, err := cache.NewManager(ctx, s.logger, s.metrics, cfg.Caches)
	if err != nil {
		return types.WrapError(err, "build caches")
	}
	s.caches = caches

	tleCache, err := caches.Cache(types.CacheTLE)
	if err != nil {
		return err
	}
	predictionsCache, err := caches.Cache(types.CachePredictions)
	if err != nil {
		return err
	}
	processedCache, err := caches.Cache(types.CacheProcessed)
	if err != nil {
		return err
	}
	apiCache, err := caches.Cache(types.CacheAPI)
	if err != nil {
		return err
	}

	s.client = client.NewHTTPClient(s.logger, s.metrics, "celestrak", cfg.Client)

	s.tracker = tracker.NewTracker(tracker.Dependencies{
		Logger:      s.logger,
		Metrics:     s.metrics,
		Fetcher:     s.client,
		Predictor:   opts.Predictor,
		TLECache:    tleCache,
		Predictions: predictionsCache,
		DataSources: cfg.DataSources,
		Observer:    cfg.Observer,
	})
	s.processor = tracker.NewProcessor(s.logger, processedCache, cfg.Export)
	s.checker = tracker.NewNotificationChecker(s.logger, s.tracker, opts.Notifier, cfg.Notifications)

	if cfg.Schedule != nil && cfg.Schedule.Enabled {
		location := time.Local
		if cfg.Schedule.Timezone != "" {
			location, err = time.LoadLocation(cfg.Schedule.Timezone)
			if err != nil {
				return types.WrapError(err, "load schedule timezone")
			}
		}

		s.scheduler = scheduler.NewScheduler(s.logger, s.metrics, scheduler.Config{
			Tick:     cfg.Schedule.Tick,
			Location: location,
		})

		bindings := tracker.RegisterJobs(s.logger, s.tracker, s.checker, cfg.Schedule)
		if err := s.scheduler.Setup(bindings); err != nil {
			return types.WrapError(err, "setup scheduled jobs")
		}
	}

	s.health = health.NewManager(s.logger, types.ServiceInfo{
		Name:    cfg.Name,
		Version: cfg.Version,
	})
	s.health.RegisterChecker("caches", health.LifecycleChecker(s.caches))
	s.health.RegisterChecker("tle_cache", health.CacheChecker(s.caches, types.CacheTLE))
	if s.scheduler != nil {
		s.health.RegisterChecker("scheduler", health.SchedulerChecker(s.scheduler))
	}

	if cfg.Server != nil && cfg.Server.HTTP != nil && cfg.Server.HTTP.Enabled {
		middlewares, err := middleware.NewManager(s.logger, s.metrics, cfg.Middlewares, apiCache)
		if err != nil {
			return types.WrapError(err, "build middlewares")
		}
		s.middlewares = middlewares

		var schedulerManager types.SchedulerManager
		if s.scheduler != nil {
			schedulerManager = s.scheduler
		}

		router := server.NewRouter()
		handlers := server.NewHandlers(s.logger, s.tracker, s.processor, s.health, s.metrics, schedulerManager, s.caches, middlewares)
		handlers.RegisterRoutes(router)

		s.server = server.NewHTTPServer(s.logger, s.metrics, middlewares, router, cfg.Server.HTTP)
	}

	return nil
}

// Start brings the components up in dependency order. The first failure
// unwinds what already started.
func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	s.logger.Info("Starting service",
		zap.String("name", s.config.Name),
		zap.String("version", s.config.Version))

	started := make([]types.LifecycleManager, 0, 4)

	for _, component := range s.components() {
		if err := component.Start(); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(); stopErr != nil {
					s.logger.Error("Failed to unwind component", zap.Error(stopErr))
				}
			}
			s.setState(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "%v", err)
		}
		started = append(started, component)
	}

	s.setState(StateRunning)
	s.logger.Info("Service started successfully")

	return nil
}

// Run starts the service and blocks until a shutdown signal or Stop.
func (s *Service) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	case <-s.done:
	}

	return s.Stop()
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service")

	defer func() {
		s.setState(StateStopped)
		s.cancel()
		close(s.done)

		if syncer, ok := s.logger.(interface{ Sync() error }); ok {
			_ = syncer.Sync()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	components := s.components()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := len(components) - 1; i >= 0; i-- {
			if err := components[i].Stop(); err != nil {
				s.logger.Error("Component stop failed", zap.Error(err))
			}
		}
		s.client.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Warn("Service shutdown incomplete", zap.Error(err))
		return err
	}

	s.logger.Info("Service stopped gracefully")

	return nil
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// Tracker exposes the catalog to the hosting application.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Health exposes the health registry so hosts can add their own checkers
// before Start.
func (s *Service) Health() *health.Manager {
	return s.health
}

// components returns the lifecycle-managed components in start order.
// Stop walks the same slice backwards.
func (s *Service) components() []types.LifecycleManager {
	components := []types.LifecycleManager{s.caches, s.health}
	if s.scheduler != nil {
		components = append(components, s.scheduler)
	}
	if s.server != nil {
		components = append(components, s.middlewares, s.server)
	}
	return components
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(state State) {
	s.state.Store(state)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
