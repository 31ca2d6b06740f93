package payhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-payhooks/adapters/gocommand"
	"github.com/goliatone/go-payhooks/adapters/gojob"
	"github.com/goliatone/go-payhooks/adapters/gologger"
	payhookscommand "github.com/goliatone/go-payhooks/command"
	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/fulfillment"
	"github.com/goliatone/go-payhooks/providers/paystack"
	payhooksquery "github.com/goliatone/go-payhooks/query"
	redisstore "github.com/goliatone/go-payhooks/store/redis"
	sqlstore "github.com/goliatone/go-payhooks/store/sql"
	"github.com/goliatone/go-payhooks/webhooks"

	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

const commandQueueResolverKey = "payhooks.queue"

// Runtime is the assembled webhook pipeline: processor, dedup backend,
// dispatcher, retry worker and the command/query facade.
type Runtime struct {
	config      Config
	loggers     gologger.Loggers
	observer    core.Observer
	service     *core.Service
	facade      *Facade
	processor   *webhooks.Processor
	runner      *webhooks.BackgroundRunner
	dispatcher  *fulfillment.Dispatcher
	dedup       core.Deduplicator
	stores      *sqlstore.RepositoryFactory
	redis       *redis.Client
	retryQueue  *gojob.MemoryQueue
	retryWorker *gojob.RetryWorker
	commands    *gocommand.RegistryAdapter
	queue       *jobqueuecommand.Registry
	skipped     map[core.FulfillmentAction]string

	mu           sync.Mutex
	workerCancel context.CancelFunc
	workerDone   chan struct{}
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	configLoader   core.RawConfigLoader
	transport      core.TransportAdapter
	db             *bun.DB
	stores         *sqlstore.RepositoryFactory
	redisClient    redisstore.SetNXClient
	dedup          core.Deduplicator
	gateway        core.PaymentGateway
	notifier       core.OrderNotifier
	actions        []core.ActionHandler
	actionsSet     bool
	workerHooks    []worker.Hook
	syncDispatch   bool
	noRetries      bool
	now            func() time.Time
}

func WithRuntimeLogger(logger core.Logger) RuntimeOption {
	return func(o *runtimeOptions) { o.logger = logger }
}

func WithRuntimeLoggerProvider(provider core.LoggerProvider) RuntimeOption {
	return func(o *runtimeOptions) { o.loggerProvider = provider }
}

func WithRuntimeMetrics(recorder core.MetricsRecorder) RuntimeOption {
	return func(o *runtimeOptions) { o.metrics = recorder }
}

// WithConfigLoader layers raw config (env, files) between defaults and the
// config passed to New.
func WithConfigLoader(loader core.RawConfigLoader) RuntimeOption {
	return func(o *runtimeOptions) { o.configLoader = loader }
}

// WithTransport routes every outbound provider call through adapter.
func WithTransport(adapter core.TransportAdapter) RuntimeOption {
	return func(o *runtimeOptions) { o.transport = adapter }
}

// WithDB backs fulfillment, malformed and processed-event records with SQL.
func WithDB(db *bun.DB) RuntimeOption {
	return func(o *runtimeOptions) { o.db = db }
}

func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) RuntimeOption {
	return func(o *runtimeOptions) { o.stores = factory }
}

func WithRedisClient(client redisstore.SetNXClient) RuntimeOption {
	return func(o *runtimeOptions) { o.redisClient = client }
}

// WithDeduplicator overrides the configured dedup backend.
func WithDeduplicator(dedup core.Deduplicator) RuntimeOption {
	return func(o *runtimeOptions) { o.dedup = dedup }
}

func WithGateway(gateway core.PaymentGateway) RuntimeOption {
	return func(o *runtimeOptions) { o.gateway = gateway }
}

func WithNotifier(notifier core.OrderNotifier) RuntimeOption {
	return func(o *runtimeOptions) { o.notifier = notifier }
}

// WithActions replaces the config-built fulfillment actions.
func WithActions(actions ...core.ActionHandler) RuntimeOption {
	return func(o *runtimeOptions) {
		o.actions = append([]core.ActionHandler(nil), actions...)
		o.actionsSet = true
	}
}

func WithWorkerHooks(hooks ...worker.Hook) RuntimeOption {
	return func(o *runtimeOptions) { o.workerHooks = append(o.workerHooks, hooks...) }
}

// WithSyncDispatch runs fulfillment inside the webhook request. A false
// dispatch.async in the Config passed to New is indistinguishable from unset.
func WithSyncDispatch() RuntimeOption {
	return func(o *runtimeOptions) { o.syncDispatch = true }
}

func WithRetriesDisabled() RuntimeOption {
	return func(o *runtimeOptions) { o.noRetries = true }
}

func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOptions) { o.now = now }
}

func New(cfg Config, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	resolved, err := resolveConfig(cfg, options.configLoader)
	if err != nil {
		return nil, err
	}
	if options.syncDispatch {
		resolved.Dispatch.Async = false
	}
	if options.noRetries {
		resolved.Dispatch.RetryEnabled = false
	}
	loggers := gologger.Resolve(resolved.ServiceName, options.loggerProvider, options.logger)
	metrics := options.metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	rt := &Runtime{
		config:   resolved,
		loggers:  loggers,
		observer: core.NewObserver(loggers.Named("webhooks"), metrics),
	}

	stores, err := resolveStores(options)
	if err != nil {
		return nil, err
	}
	rt.stores = stores

	var fulfillments core.FulfillmentStore = core.NewMemoryFulfillmentStore()
	var malformed core.MalformedEventStore = core.NewMemoryMalformedEventStore()
	if stores != nil {
		fulfillments = stores.FulfillmentStore()
		malformed = stores.MalformedEventStore()
	}

	dedup, err := rt.buildDeduplicator(options)
	if err != nil {
		return nil, err
	}
	rt.dedup = dedup

	gateway := options.gateway
	if gateway == nil && strings.TrimSpace(resolved.Paystack.SecretKey) != "" {
		client, clientErr := PaystackGateway(resolved.Paystack, options.transport)
		if clientErr != nil {
			return nil, clientErr
		}
		gateway = client
	}

	actions := options.actions
	notifier := options.notifier
	rt.skipped = map[core.FulfillmentAction]string{}
	if !options.actionsSet {
		set, buildErr := BuildActions(resolved, options.transport)
		if buildErr != nil {
			return nil, buildErr
		}
		actions = set.Actions
		rt.skipped = set.Skipped
		if notifier == nil {
			notifier = set.Notifier
		}
	}
	for action, reason := range rt.skipped {
		rt.observer.Warn(context.Background(), "fulfillment action disabled", map[string]any{
			"action": string(action),
			"reason": reason,
		})
	}

	dispatcher := fulfillment.NewDispatcher(fulfillments, actions...)
	dispatcher.Malformed = malformed
	dispatcher.ActionTimeout = resolved.ActionTimeout()
	dispatcher.Observer = core.NewObserver(loggers.Named("fulfillment"), metrics)
	if options.now != nil {
		dispatcher.Now = options.now
	}
	rt.dispatcher = dispatcher

	if resolved.Dispatch.RetryEnabled {
		policy := gojob.DefaultRetryPolicy()
		if resolved.Dispatch.MaxAttempts > 0 {
			policy.MaxAttempts = resolved.Dispatch.MaxAttempts
		}
		rt.retryQueue = gojob.NewMemoryQueue()
		dispatcher.RetryScheduler = gojob.NewRetryEnqueuer(rt.retryQueue, policy)

		workerObserver := core.NewObserver(loggers.Named("retry"), metrics)
		rt.retryWorker = gojob.NewRetryWorker(rt.retryQueue, dispatcher, policy)
		rt.retryWorker.Observer = workerObserver
		rt.retryWorker.Hooks = append([]worker.Hook{gojob.NewObserverHook(workerObserver)}, options.workerHooks...)
	}

	template := paystack.NewWebhookTemplate(resolved.Paystack.SecretKey)
	processor := webhooks.NewProcessor(template, dedup, dispatcher)
	processor.Malformed = malformed
	processor.Observer = rt.observer
	if options.now != nil {
		processor.Now = options.now
	}
	if resolved.Dispatch.Async {
		rt.runner = webhooks.NewBackgroundRunner(rt.observer)
		processor.Runner = rt.runner
	}
	rt.processor = processor

	service, err := core.NewService(resolved,
		core.WithLoggerProvider(loggers.Provider),
		core.WithLogger(loggers.Logger),
		core.WithMetricsRecorder(metrics),
		core.WithConfigProvider(resolvedConfigProvider{config: resolved}),
		core.WithPaymentGateway(gateway),
		core.WithOrderNotifier(notifier),
		core.WithFulfillmentStore(fulfillments),
		core.WithMalformedEventStore(malformed),
		core.WithFulfillmentRetrier(dispatcher),
	)
	if err != nil {
		return nil, err
	}
	rt.service = service

	facade, err := NewFacade(service)
	if err != nil {
		return nil, err
	}
	rt.facade = facade

	if err := rt.registerCommands(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.config
}

func (r *Runtime) Service() *core.Service {
	if r == nil {
		return nil
	}
	return r.service
}

func (r *Runtime) Facade() *Facade {
	if r == nil {
		return nil
	}
	return r.facade
}

func (r *Runtime) Processor() *webhooks.Processor {
	if r == nil {
		return nil
	}
	return r.processor
}

func (r *Runtime) Dispatcher() *fulfillment.Dispatcher {
	if r == nil {
		return nil
	}
	return r.dispatcher
}

func (r *Runtime) Deduplicator() core.Deduplicator {
	if r == nil {
		return nil
	}
	return r.dedup
}

func (r *Runtime) Stores() *sqlstore.RepositoryFactory {
	if r == nil {
		return nil
	}
	return r.stores
}

func (r *Runtime) RetryQueue() *gojob.MemoryQueue {
	if r == nil {
		return nil
	}
	return r.retryQueue
}

func (r *Runtime) RetryWorker() *gojob.RetryWorker {
	if r == nil {
		return nil
	}
	return r.retryWorker
}

func (r *Runtime) Commands() *gocommand.RegistryAdapter {
	if r == nil {
		return nil
	}
	return r.commands
}

// QueueRegistry holds the commands mirrored for go-job queue execution.
func (r *Runtime) QueueRegistry() *jobqueuecommand.Registry {
	if r == nil {
		return nil
	}
	return r.queue
}

func (r *Runtime) Loggers() gologger.Loggers {
	if r == nil {
		return gologger.Loggers{}
	}
	return r.loggers
}

// SkippedActions lists enabled actions left out for missing credentials.
func (r *Runtime) SkippedActions() map[core.FulfillmentAction]string {
	out := map[core.FulfillmentAction]string{}
	if r == nil {
		return out
	}
	for action, reason := range r.skipped {
		out[action] = reason
	}
	return out
}

func (r *Runtime) HandleWebhook(ctx context.Context, req core.InboundRequest) (core.WebhookResult, error) {
	if r == nil || r.processor == nil {
		return core.WebhookResult{}, core.NewInternalError(nil, "payhooks: runtime is not configured")
	}
	return r.processor.Process(ctx, req)
}

// StartRetryWorker drains the retry queue in the background until Shutdown.
// It is a no-op when retries are disabled or the worker already runs.
func (r *Runtime) StartRetryWorker(ctx context.Context) {
	if r == nil || r.retryWorker == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workerCancel != nil {
		return
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.workerCancel = cancel
	r.workerDone = done
	go func() {
		defer close(done)
		if err := r.retryWorker.Run(workerCtx); err != nil {
			r.observer.Error(workerCtx, "fulfillment retry worker stopped", map[string]any{"error": err.Error()})
		}
	}()
}

// Shutdown stops accepting webhook dispatches, waits for in-flight ones,
// then stops the retry worker and releases command subscriptions.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.runner != nil {
		if err := r.runner.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	cancel, done := r.workerCancel, r.workerDone
	r.workerCancel, r.workerDone = nil, nil
	redisClient := r.redis
	r.redis = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("payhooks: waiting for retry worker: %w", ctx.Err()))
		}
	}

	if r.commands != nil {
		r.commands.Close()
	}
	// Only a client built from dedup.redis_url is owned here; one passed in
	// through options belongs to the caller.
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("payhooks: close redis client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) registerCommands() error {
	r.commands = gocommand.NewRegistryAdapter(nil)
	r.queue = jobqueuecommand.NewRegistry()
	if err := r.commands.AddQueueResolver(commandQueueResolverKey, r.queue); err != nil {
		return err
	}

	commands := r.facade.Commands()
	queries := r.facade.Queries()
	if _, err := gocommand.RegisterAndSubscribe[payhookscommand.InitializePaymentMessage](r.commands, commands.InitializePayment); err != nil {
		return err
	}
	if _, err := gocommand.RegisterAndSubscribe[payhookscommand.VerifyPaymentMessage](r.commands, commands.VerifyPayment); err != nil {
		return err
	}
	if _, err := gocommand.RegisterAndSubscribe[payhookscommand.RetryFulfillmentMessage](r.commands, commands.RetryFulfillment); err != nil {
		return err
	}
	if _, err := gocommand.RegisterAndSubscribeQuery[payhooksquery.ListFulfillmentsMessage, []core.FulfillmentRecord](r.commands, queries.ListFulfillments); err != nil {
		return err
	}
	if _, err := gocommand.RegisterAndSubscribeQuery[payhooksquery.ListMalformedEventsMessage, []core.MalformedEvent](r.commands, queries.ListMalformedEvents); err != nil {
		return err
	}
	if err := r.commands.Initialize(); err != nil {
		r.commands.Close()
		return fmt.Errorf("payhooks: initialize command registry: %w", err)
	}
	return nil
}

func (r *Runtime) buildDeduplicator(options runtimeOptions) (core.Deduplicator, error) {
	if options.dedup != nil {
		return options.dedup, nil
	}
	cfg := r.config
	switch strings.ToLower(strings.TrimSpace(cfg.Dedup.Backend)) {
	case core.DedupBackendRedis:
		client := options.redisClient
		if client == nil {
			redisClient, err := redisstore.NewClient(cfg.Dedup.RedisURL)
			if err != nil {
				return nil, err
			}
			r.redis = redisClient
			client = redisClient
		}
		return redisstore.NewDeduplicator(client, cfg.DedupTTL())
	case core.DedupBackendSQL:
		if r.stores == nil {
			r.observer.Warn(context.Background(), "sql dedup backend has no database; using memory", map[string]any{
				"backend": cfg.Dedup.Backend,
			})
			return core.NewMemoryDeduplicator(cfg.DedupTTL()), nil
		}
		base := r.stores.ProcessedEventStore()
		cacheTTL := cfg.DedupCacheTTL()
		if cacheTTL <= 0 {
			return base, nil
		}
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("payhooks: dedup cache: %w", err)
		}
		return sqlstore.NewCachedDeduplicator(base, cacheService)
	default:
		return core.NewMemoryDeduplicator(cfg.DedupTTL()), nil
	}
}

func resolveStores(options runtimeOptions) (*sqlstore.RepositoryFactory, error) {
	if options.stores != nil {
		if err := options.stores.BuildStores(options.db); err != nil {
			return nil, err
		}
		return options.stores, nil
	}
	if options.db == nil {
		return nil, nil
	}
	return sqlstore.NewRepositoryFactoryFromDB(options.db)
}

func resolveConfig(cfg Config, loader core.RawConfigLoader) (Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(loader).Load(context.Background(), defaults)
	if err != nil {
		return Config{}, core.MapError(err)
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, cfg)
	if err != nil {
		return Config{}, core.MapError(err)
	}
	return resolved, nil
}

// resolvedConfigProvider hands the service a config that was already layered.
type resolvedConfigProvider struct {
	config Config
}

func (p resolvedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.config, nil
}
