package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/action"
	"github.com/xraph/flowline/backoff"
	"github.com/xraph/flowline/breaker"
	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/executor"
	"github.com/xraph/flowline/ext"
	"github.com/xraph/flowline/id"
	mw "github.com/xraph/flowline/middleware"
	"github.com/xraph/flowline/observability"
	"github.com/xraph/flowline/store"
	"github.com/xraph/flowline/tenant"
	"github.com/xraph/flowline/workflow"
)

// Engine is the orchestration façade: workflow lifecycle, execution
// start/cancel, and the scheduler, all wired over one store.
type Engine struct {
	store      store.Store
	extensions *ext.Registry
	actions    *action.Registry
	breakers   *breaker.Registry
	exec       *executor.Executor
	scheduler  *cron.Scheduler
	quota      Quota
	logger     *slog.Logger
	cfg        flowline.Config
	instanceID string

	// Build-time collected options.
	pendingExts []ext.Extension
	mws         []mw.Middleware
	retry       *backoff.Policy
	breakerCfg  breaker.Config

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// wg tracks in-flight execution goroutines for graceful shutdown.
	wg sync.WaitGroup

	// running maps in-flight execution ids to the cancel funcs of their
	// run contexts, so CancelExecution reaches the walker.
	runningMu sync.Mutex
	running   map[string]context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithConfig overrides the engine defaults.
func WithConfig(cfg flowline.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithMiddleware appends middleware to the action invocation chain,
// after the built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithQuota sets the per-tenant limit source. Defaults to unlimited.
func WithQuota(q Quota) Option {
	return func(eng *Engine) { eng.quota = q }
}

// WithRetryPolicy sets the default retry policy for ACTION steps that
// declare none of their own.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(eng *Engine) { eng.retry = &p }
}

// WithBreakerConfig sets the circuit breaker configuration applied to
// every action type.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(eng *Engine) { eng.breakerCfg = cfg }
}

// WithTracerProvider sets a custom OTel TracerProvider. When unset, the
// global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for both the
// metrics middleware and the observability extension. When unset, the
// global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New builds an Engine over the given store.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, flowline.ErrNoStore
	}

	eng := &Engine{
		store:      s,
		actions:    action.NewRegistry(),
		quota:      StaticQuota{},
		logger:     slog.Default(),
		cfg:        flowline.DefaultConfig(),
		breakerCfg: breaker.DefaultConfig(),
		running:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(eng)
	}

	eng.extensions = ext.NewRegistry(eng.logger)
	eng.breakers = breaker.NewRegistry(eng.breakerCfg)

	// Register the observability metrics extension first so it observes
	// every event, then user extensions in registration order.
	if obs, err := eng.buildMetricsExtension(); err != nil {
		eng.logger.Warn("metrics extension disabled", slog.String("error", err.Error()))
	} else {
		eng.extensions.Register(obs)
	}
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	// Built-in handlers with no external collaborators. The rest
	// (HTTP, email, records, events) are registered by the application
	// with its own clients via Actions().
	if err := eng.actions.Register(action.NewLogMessage(eng.logger)); err != nil {
		return nil, err
	}
	if err := eng.actions.Register(action.NewSetVariable()); err != nil {
		return nil, err
	}

	// Default middleware stack: recover → tracing → metrics → logging →
	// tenant → timeout, then user middleware.
	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/xraph/flowline"))
	}
	metricsMw := mw.Metrics()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/xraph/flowline"))
	}
	chain := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Tenant(),
		mw.Timeout(eng.logger),
	}
	chain = append(chain, eng.mws...)

	execOpts := []executor.Option{
		executor.WithConfig(eng.cfg),
		executor.WithMiddleware(mw.Chain(chain...)),
	}
	if eng.retry != nil {
		execOpts = append(execOpts, executor.WithRetryPolicy(*eng.retry))
	}
	eng.exec = executor.New(eng.actions, eng.breakers, eng.extensions, eng.logger, execOpts...)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	eng.instanceID = hostname + ":" + id.NewEventID().String()

	eng.scheduler = cron.NewScheduler(s, eng.startScheduled, eng.instanceID, eng.logger,
		cron.WithTickInterval(eng.cfg.SchedulerTick),
		cron.WithLockTTL(eng.cfg.ScheduleLockTTL),
		cron.WithEmitter(eng.extensions),
	)

	return eng, nil
}

func (eng *Engine) buildMetricsExtension() (*observability.MetricsExtension, error) {
	if eng.meterProvider != nil {
		m, err := observability.NewOTelMetrics(eng.meterProvider.Meter("github.com/xraph/flowline/observability"))
		if err != nil {
			return nil, err
		}
		return observability.NewMetricsExtensionWith(m), nil
	}
	return observability.NewMetricsExtension()
}

// Start launches the scheduler.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.scheduler.Start(ctx)
}

// Stop shuts the engine down: stops the scheduler, waits for in-flight
// executions, and notifies extensions.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.scheduler.Stop(ctx); err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	eng.wg.Wait()
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// ──────────────────────────────────────────────────
// Workflow lifecycle
// ──────────────────────────────────────────────────

// CreateWorkflow validates and persists a new workflow as version 1 in
// DRAFT.
func (eng *Engine) CreateWorkflow(ctx context.Context, tenantID string, def *workflow.Definition) (*workflow.Definition, error) {
	def.Entity = flowline.NewEntity()
	def.ID = id.NewWorkflowID()
	def.VersionID = id.NewVersionID()
	def.Version = 1
	def.TenantID = tenantID
	def.Status = workflow.StatusDraft
	def.Counters = workflow.Counters{}

	if err := workflow.Validate(def); err != nil {
		return nil, err
	}

	if limit := eng.quota.MaxWorkflows(tenantID); limit > 0 {
		n, err := eng.store.CountDefinitions(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if n >= limit {
			return nil, fmt.Errorf("%w: tenant %s already owns %d workflows", flowline.ErrQuotaExceeded, tenantID, n)
		}
	}

	if err := eng.store.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	eng.extensions.EmitWorkflowCreated(ctx, def)
	eng.logger.Info("workflow created",
		slog.String("workflow_id", def.ID.String()),
		slog.String("tenant_id", tenantID),
		slog.String("name", def.Name),
	)
	return def, nil
}

// UpdateWorkflow replaces the mutable fields of a DRAFT version. The
// identity fields and status of the stored version are preserved.
func (eng *Engine) UpdateWorkflow(ctx context.Context, tenantID string, def *workflow.Definition) (*workflow.Definition, error) {
	current, err := eng.store.GetVersion(ctx, tenantID, def.VersionID)
	if err != nil {
		return nil, err
	}
	if current.Status != workflow.StatusDraft {
		return nil, fmt.Errorf("%w: version %s is %s, only DRAFT versions may be edited",
			flowline.ErrInvalidState, current.VersionID, current.Status)
	}

	current.Name = def.Name
	current.Description = def.Description
	current.Trigger = def.Trigger
	current.Steps = def.Steps
	current.OnError = def.OnError
	if err := workflow.Validate(current); err != nil {
		return nil, err
	}
	current.Touch()

	if err := eng.store.UpdateDefinition(ctx, current); err != nil {
		return nil, err
	}
	eng.extensions.EmitWorkflowUpdated(ctx, current)
	return current, nil
}

// PublishWorkflow moves a DRAFT version to PUBLISHED, making it
// executable and immutable. A SCHEDULE trigger is registered with the
// scheduler; re-publishing a workflow that already holds a schedule is
// idempotent.
func (eng *Engine) PublishWorkflow(ctx context.Context, tenantID string, versionID id.VersionID) (*workflow.Definition, error) {
	def, err := eng.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	if def.Status != workflow.StatusDraft {
		return nil, fmt.Errorf("%w: version %s is %s, only DRAFT versions publish",
			flowline.ErrInvalidState, def.VersionID, def.Status)
	}
	if err := workflow.ValidateForPublish(def); err != nil {
		return nil, err
	}

	def.Status = workflow.StatusPublished
	def.Touch()
	if err := eng.store.UpdateDefinition(ctx, def); err != nil {
		return nil, err
	}

	if def.Trigger.Type == workflow.TriggerSchedule {
		if err := eng.registerSchedule(ctx, def); err != nil {
			return nil, err
		}
	}

	eng.extensions.EmitWorkflowPublished(ctx, def)
	eng.logger.Info("workflow published",
		slog.String("workflow_id", def.ID.String()),
		slog.String("version_id", def.VersionID.String()),
		slog.Int("version", def.Version),
	)
	return def, nil
}

func (eng *Engine) registerSchedule(ctx context.Context, def *workflow.Definition) error {
	next, err := cron.Next(def.Trigger.Cron, def.Trigger.Timezone, time.Now().UTC())
	if err != nil {
		return err
	}

	job := &cron.Job{
		Entity:     flowline.NewEntity(),
		ID:         id.NewScheduleID(),
		WorkflowID: def.ID,
		TenantID:   def.TenantID,
		Expression: def.Trigger.Cron,
		Timezone:   def.Trigger.Timezone,
		NextRun:    next,
		Enabled:    true,
	}
	if err := eng.store.RegisterSchedule(ctx, job); err != nil {
		// Idempotent: publishing a new version of an already scheduled
		// workflow keeps the existing schedule.
		if errors.Is(err, flowline.ErrDuplicateSchedule) {
			return nil
		}
		return err
	}

	eng.logger.Info("schedule registered",
		slog.String("schedule_id", job.ID.String()),
		slog.String("workflow_id", def.ID.String()),
		slog.String("expression", job.Expression),
		slog.Time("next_run", next),
	)
	return nil
}

// CreateVersion forks the latest version of a workflow into a new DRAFT.
func (eng *Engine) CreateVersion(ctx context.Context, tenantID string, workflowID id.WorkflowID) (*workflow.Definition, error) {
	latest, err := eng.store.GetDefinition(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if limit := eng.quota.MaxVersionsPerWorkflow(tenantID); limit > 0 {
		n, err := eng.store.CountVersions(ctx, tenantID, workflowID)
		if err != nil {
			return nil, err
		}
		if n >= limit {
			return nil, fmt.Errorf("%w: workflow %s already has %d versions", flowline.ErrQuotaExceeded, workflowID, n)
		}
	}

	next := latest.Clone()
	if err := eng.store.CreateDefinition(ctx, next); err != nil {
		return nil, err
	}
	eng.extensions.EmitWorkflowCreated(ctx, next)
	return next, nil
}

// DeprecateWorkflow moves a PUBLISHED version to DEPRECATED and removes
// the workflow's schedule. Running executions are unaffected.
func (eng *Engine) DeprecateWorkflow(ctx context.Context, tenantID string, versionID id.VersionID) (*workflow.Definition, error) {
	def, err := eng.store.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return nil, err
	}
	if def.Status != workflow.StatusPublished {
		return nil, fmt.Errorf("%w: version %s is %s, only PUBLISHED versions deprecate",
			flowline.ErrInvalidState, def.VersionID, def.Status)
	}

	def.Status = workflow.StatusDeprecated
	def.Touch()
	if err := eng.store.UpdateDefinition(ctx, def); err != nil {
		return nil, err
	}

	if def.Trigger.Type == workflow.TriggerSchedule {
		if err := eng.store.DeleteByWorkflow(ctx, tenantID, def.ID); err != nil {
			eng.logger.Warn("schedule removal failed",
				slog.String("workflow_id", def.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	eng.extensions.EmitWorkflowDeprecated(ctx, def)
	return def, nil
}

// GetWorkflow returns the latest version of a workflow.
func (eng *Engine) GetWorkflow(ctx context.Context, tenantID string, workflowID id.WorkflowID) (*workflow.Definition, error) {
	return eng.store.GetDefinition(ctx, tenantID, workflowID)
}

// GetVersion returns one specific workflow version.
func (eng *Engine) GetVersion(ctx context.Context, tenantID string, versionID id.VersionID) (*workflow.Definition, error) {
	return eng.store.GetVersion(ctx, tenantID, versionID)
}

// ListWorkflows returns the latest version of each of a tenant's
// workflows.
func (eng *Engine) ListWorkflows(ctx context.Context, tenantID string, opts workflow.ListOpts) ([]*workflow.Definition, error) {
	return eng.store.ListDefinitions(ctx, tenantID, opts)
}

// ListVersions returns every version of one workflow, oldest first.
func (eng *Engine) ListVersions(ctx context.Context, tenantID string, workflowID id.WorkflowID) ([]*workflow.Definition, error) {
	return eng.store.ListVersions(ctx, tenantID, workflowID)
}

// ──────────────────────────────────────────────────
// Execution operations
// ──────────────────────────────────────────────────

// StartOption configures one execution start.
type StartOption func(*startOptions)

type startOptions struct {
	idempotencyKey string
	trigger        map[string]any
	secrets        map[string]string
}

// WithIdempotencyKey deduplicates start requests: a second start with
// the same key returns the original execution instead of a new one.
func WithIdempotencyKey(key string) StartOption {
	return func(o *startOptions) { o.idempotencyKey = key }
}

// WithTrigger attaches the trigger payload, resolvable under the
// "trigger" namespace.
func WithTrigger(payload map[string]any) StartOption {
	return func(o *startOptions) { o.trigger = payload }
}

// WithSecrets attaches secrets, resolvable under the "secrets"
// namespace.
func WithSecrets(secrets map[string]string) StartOption {
	return func(o *startOptions) { o.secrets = secrets }
}

// StartExecution starts an execution of the latest PUBLISHED version of
// a workflow. The run itself happens on a background goroutine; the
// returned execution is the persisted PENDING snapshot. Run failures
// are recorded on the execution, never returned here.
func (eng *Engine) StartExecution(ctx context.Context, tenantID string, workflowID id.WorkflowID, input map[string]any, opts ...StartOption) (*execution.Execution, error) {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.idempotencyKey != "" {
		prior, err := eng.store.FindByIdempotencyKey(ctx, tenantID, o.idempotencyKey)
		if err == nil {
			return prior, nil
		}
		if !errors.Is(err, flowline.ErrExecutionNotFound) {
			return nil, err
		}
	}

	def, err := eng.store.GetDefinition(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}
	if def.Status != workflow.StatusPublished {
		return nil, fmt.Errorf("%w: workflow %s latest version is %s, only PUBLISHED workflows execute",
			flowline.ErrInvalidState, workflowID, def.Status)
	}

	if err := eng.checkExecutionQuotas(ctx, tenantID); err != nil {
		return nil, err
	}

	bag := execution.NewContext(input)
	if o.trigger != nil {
		bag.Trigger = o.trigger
	}
	if o.secrets != nil {
		bag.Secrets = o.secrets
	}
	bag.Meta["workflowId"] = def.ID.String()
	bag.Meta["workflowVersion"] = def.Version

	e := execution.New(def, bag, o.idempotencyKey)
	if err := eng.store.CreateExecution(ctx, e); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(tenant.Restore(context.Background(), tenantID))
	eng.runningMu.Lock()
	eng.running[e.ID.String()] = cancel
	eng.runningMu.Unlock()

	eng.wg.Add(1)
	go eng.run(rctx, def, e)

	return eng.store.GetExecution(ctx, tenantID, e.ID)
}

func (eng *Engine) checkExecutionQuotas(ctx context.Context, tenantID string) error {
	if limit := eng.quota.MaxConcurrentExecutions(tenantID); limit > 0 {
		n, err := eng.store.CountActive(ctx, tenantID)
		if err != nil {
			return err
		}
		if n >= limit {
			return fmt.Errorf("%w: tenant %s has %d active executions", flowline.ErrQuotaExceeded, tenantID, n)
		}
	}
	if limit := eng.quota.MaxExecutionsPerHour(tenantID); limit > 0 {
		n, err := eng.store.CountStartedSince(ctx, tenantID, time.Now().Add(-time.Hour))
		if err != nil {
			return err
		}
		if n >= limit {
			return fmt.Errorf("%w: tenant %s started %d executions in the last hour", flowline.ErrQuotaExceeded, tenantID, n)
		}
	}
	return nil
}

// run drives one execution on a background goroutine and persists its
// settled state. Persistence uses a context detached from the run's so
// a cancelled walk can still write.
func (eng *Engine) run(ctx context.Context, def *workflow.Definition, e *execution.Execution) {
	defer eng.wg.Done()
	defer eng.releaseRun(e.ID)

	runErr := eng.exec.Run(ctx, def, e)

	pctx := context.WithoutCancel(ctx)
	if err := eng.store.UpdateExecution(pctx, e); err != nil {
		if errors.Is(err, flowline.ErrInvalidState) {
			// Lost the race with CancelExecution; the stored terminal
			// record wins.
			eng.logger.Info("execution already settled in store",
				slog.String("execution_id", e.ID.String()),
				slog.String("status", string(e.Status)),
			)
		} else {
			eng.logger.Error("persist execution error",
				slog.String("execution_id", e.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	var susp *executor.SuspendError
	if runErr != nil && errors.As(runErr, &susp) {
		return // Parked in WAITING; counters settle on resume.
	}

	def.Counters.Observe(e.Status == execution.StatusCompleted, e.Duration())
	if err := eng.store.UpdateDefinition(pctx, def); err != nil {
		eng.logger.Warn("persist workflow counters error",
			slog.String("workflow_id", def.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// releaseRun drops an execution from the in-flight set and releases its
// cancel func.
func (eng *Engine) releaseRun(executionID id.ExecutionID) {
	eng.runningMu.Lock()
	cancel, ok := eng.running[executionID.String()]
	delete(eng.running, executionID.String())
	eng.runningMu.Unlock()
	if ok {
		cancel()
	}
}

// cancelRun signals the walker of an in-flight execution, if any. A
// parked or settled execution has no entry and this is a no-op.
func (eng *Engine) cancelRun(executionID id.ExecutionID) {
	eng.runningMu.Lock()
	cancel, ok := eng.running[executionID.String()]
	eng.runningMu.Unlock()
	if ok {
		cancel()
	}
}

// startScheduled is the scheduler's trigger: it starts an execution of
// the scheduled workflow with a SCHEDULE trigger payload.
func (eng *Engine) startScheduled(ctx context.Context, job *cron.Job) error {
	payload := map[string]any{
		"type":       string(workflow.TriggerSchedule),
		"scheduleId": job.ID.String(),
		"firedAt":    time.Now().UTC().Format(time.RFC3339),
	}
	_, err := eng.StartExecution(tenant.Restore(ctx, job.TenantID), job.TenantID, job.WorkflowID, nil,
		WithTrigger(payload))
	return err
}

// CancelExecution marks a non-terminal execution CANCELLED and cancels
// the run context of an in-flight walk. The walker stops at the next
// step boundary; an action that ignores its context runs out in the
// background without changing the stored terminal state.
func (eng *Engine) CancelExecution(ctx context.Context, tenantID string, executionID id.ExecutionID, reason string) (*execution.Execution, error) {
	e, err := eng.store.GetExecution(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.TransitionTo(execution.StatusCancelled); err != nil {
		return nil, err
	}
	e.Error = &execution.Error{
		Code:      "CANCELLED",
		Message:   reason,
		Timestamp: time.Now(),
	}
	if err := eng.store.UpdateExecution(ctx, e); err != nil {
		return nil, err
	}
	eng.cancelRun(executionID)
	eng.extensions.EmitExecutionCancelled(ctx, e)
	eng.logger.Info("execution cancelled",
		slog.String("execution_id", e.ID.String()),
		slog.String("reason", reason),
	)
	return e, nil
}

// GetExecution returns one execution.
func (eng *Engine) GetExecution(ctx context.Context, tenantID string, executionID id.ExecutionID) (*execution.Execution, error) {
	return eng.store.GetExecution(ctx, tenantID, executionID)
}

// ListExecutions returns a workflow's executions, newest first.
func (eng *Engine) ListExecutions(ctx context.Context, tenantID string, workflowID id.WorkflowID, opts execution.ListOpts) ([]*execution.Execution, error) {
	return eng.store.ListExecutions(ctx, tenantID, workflowID, opts)
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Actions returns the action registry, for registering application
// handlers.
func (eng *Engine) Actions() *action.Registry { return eng.actions }

// Breakers returns the circuit breaker registry.
func (eng *Engine) Breakers() *breaker.Registry { return eng.breakers }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }

// Store returns the underlying store.
func (eng *Engine) Store() store.Store { return eng.store }
