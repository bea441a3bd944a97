package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/webpilot/internal/config"
	"github.com/harun/webpilot/internal/history"
	"github.com/harun/webpilot/internal/logger"
	"github.com/harun/webpilot/internal/observability"
	"github.com/harun/webpilot/internal/scheduler"
	"github.com/harun/webpilot/internal/tracing"
	"github.com/harun/webpilot/pkg/browser"
	"github.com/harun/webpilot/pkg/commandqueue"
	"github.com/harun/webpilot/pkg/gateway"
	"github.com/harun/webpilot/pkg/llm"
	"github.com/harun/webpilot/pkg/navigator"
)

// Daemon wires the browser registry, navigator, command queue, gateway,
// scheduler and history store into one long-running service. Every
// instruction, whatever its origin, flows through dispatchInstruction
// so per-session serialization and history recording happen in exactly
// one place.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	queue     *commandqueue.Queue
	sessions  *browser.Registry
	provider  llm.Provider
	navigator *navigator.Navigator
	history   *history.Store

	gatewayServer *gateway.Server
	scheduler     *scheduler.Scheduler
	configWatcher *config.Watcher
	lifecycle     *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startTime time.Time

	tracingEnabled bool
}

// New creates a daemon from a loaded configuration
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()
	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("webpilot-daemon"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		ctx:            ctx,
		cancel:         cancel,
		tracingEnabled: tracingEnabled,
	}

	if err := d.initialize(); err != nil {
		cancel()
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) initialize() error {
	d.queue = commandqueue.New()
	d.logger.Info().Msg("Command queue initialized")

	d.sessions = browser.NewRegistry(&browser.LaunchOptions{
		Headless:    d.config.Browser.Headless,
		NoSandbox:   d.config.Browser.NoSandbox,
		ChromePath:  d.config.Browser.ChromePath,
		UserDataDir: d.config.Browser.UserDataDir,
		CDPPort:     d.config.Browser.CDPPort,
	}, browser.SecurityConfig{
		AllowFileUrls:      d.config.Browser.Security.AllowFileUrls,
		AllowLocalhostUrls: d.config.Browser.Security.AllowLocalhostUrls,
		AllowedDomains:     d.config.Browser.Security.AllowedDomains,
		BlockedDomains:     d.config.Browser.Security.BlockedDomains,
	})
	d.logger.Info().Bool("headless", d.config.Browser.Headless).Msg("Browser registry initialized")

	provider, err := llm.SelectProvider(d.config.Providers)
	if err != nil {
		return fmt.Errorf("failed to select model provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().Str("provider", provider.Name()).Msg("Model provider initialized")

	nav, err := navigator.New(provider, navigator.Config{
		Model:     d.config.Defaults.Model,
		MaxTurns:  d.config.Defaults.MaxTurns,
		TimeoutMs: d.config.Defaults.TimeoutMs,
	}, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create navigator: %w", err)
	}
	d.navigator = nav
	d.logger.Info().Str("model", d.config.Defaults.Model).Msg("Navigator initialized")

	if d.config.History.Enabled {
		store, err := history.New(d.config.History.Path, d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		d.history = store
		d.logger.Info().Str("path", d.config.History.Path).Msg("History store initialized")
	}

	if d.config.Gateway.Enabled {
		var hist gateway.HistoryStore
		if d.history != nil {
			hist = d.history
		}
		server, err := gateway.NewServer(gateway.ServerConfig{
			Port:         d.config.Gateway.Port,
			Host:         d.config.Gateway.Host,
			SharedSecret: d.config.Gateway.SharedSecret,
			Dispatcher:   d.dispatchInstruction,
			Sessions:     &laneClearingRegistry{Registry: d.sessions, queue: d.queue},
			History:      hist,
			Logger:       d.logger.GetZerolog(),
		})
		if err != nil {
			return fmt.Errorf("failed to create gateway server: %w", err)
		}
		d.gatewayServer = server
		d.logger.Info().Int("port", d.config.Gateway.Port).Msg("Gateway server initialized")

		d.navigator.OnTurn(func(ctx context.Context, turn int, actions []string) {
			d.gatewayServer.BroadcastTyped(gateway.EventMessage{
				Event:   "instruction.turn",
				Stream:  gateway.StreamTypeInstruction,
				Phase:   "turn",
				TraceID: tracing.GetTraceID(ctx),
				RunID:   tracing.GetRunID(ctx),
				Session: tracing.GetSessionID(ctx),
				Data: map[string]interface{}{
					"turn":    turn,
					"actions": actions,
				},
			})
		})

		d.queue.On("enqueued", d.broadcastQueueEvent)
		d.queue.On("completed", d.broadcastQueueEvent)
	}

	if len(d.config.Schedules) > 0 {
		sched, err := scheduler.New(d.runScheduled, d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Apply(d.config.Schedules); err != nil {
			return fmt.Errorf("failed to apply schedules: %w", err)
		}
		d.scheduler = sched
		d.logger.Info().Int("schedules", len(d.config.Schedules)).Msg("Scheduler initialized")
	}

	return nil
}

// laneClearingRegistry is the session registry the gateway sees.
// Closing a session first rejects its queued instructions, so clients
// waiting behind a closed session fail fast instead of dispatching
// against a dead session.
type laneClearingRegistry struct {
	*browser.Registry
	queue *commandqueue.Queue
}

func (r *laneClearingRegistry) Close(id string) error {
	r.queue.ClearLane(commandqueue.SessionLane(id))
	return r.Registry.Close(id)
}

// broadcastQueueEvent forwards queue activity to gateway subscribers,
// stamped with the lane's current depth.
func (d *Daemon) broadcastQueueEvent(ev commandqueue.Event) {
	data := map[string]interface{}{
		"lane":    ev.Lane,
		"taskId":  ev.TaskID,
		"queued":  d.queue.GetQueueSize(ev.Lane),
		"running": d.queue.GetRunningCount(ev.Lane),
	}
	for k, v := range ev.Data {
		data[k] = v
	}

	d.gatewayServer.BroadcastTyped(gateway.EventMessage{
		Event:  "queue." + ev.Type,
		Stream: gateway.StreamTypeLifecycle,
		Phase:  ev.Type,
		Data:   data,
	})
}

// dispatchVia funnels a run through an outer lane before the session
// lane. Scheduled runs share LaneCron, bounding how many schedules
// execute at once; CLI one-shots serialize on LaneMain.
func (d *Daemon) dispatchVia(ctx context.Context, lane string, req gateway.RunRequest) (navigator.Result, error) {
	value, err := d.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		result, err := d.dispatchInstruction(tracing.MergeContext(taskCtx, ctx), req)
		if err != nil {
			return nil, err
		}
		return result, nil
	}, nil)
	if err != nil {
		return navigator.Result{}, err
	}
	return value.(navigator.Result), nil
}

// dispatchInstruction is the single entry point for instruction
// execution. The session lane has concurrency 1, which enforces at
// most one active instruction per session; everything else queues
// behind it.
func (d *Daemon) dispatchInstruction(ctx context.Context, req gateway.RunRequest) (navigator.Result, error) {
	session, err := d.sessions.Get(req.SessionID)
	if err != nil {
		return navigator.Result{}, err
	}

	lane := commandqueue.SessionLane(req.SessionID)
	value, err := d.queue.EnqueueIdempotent(ctx, lane, req.IdempotencyKey, func(taskCtx context.Context) (interface{}, error) {
		runCtx := tracing.MergeContext(taskCtx, ctx)
		start := time.Now()

		result, execErr := d.navigator.Execute(runCtx, session, req.Instruction, req.Config)
		if execErr != nil {
			return nil, execErr
		}

		status := "success"
		if !result.Success {
			status = "failure"
		}
		observability.RecordInstructionAudit(runCtx, req.RunID, status, map[string]interface{}{
			"session_id": req.SessionID,
			"turns":      result.Turns,
		})

		d.recordRun(req, result, time.Since(start))
		return result, nil
	})
	if err != nil {
		return navigator.Result{}, err
	}

	return value.(navigator.Result), nil
}

// recordRun persists the caller-visible result. The conversation built
// during the run is never stored.
func (d *Daemon) recordRun(req gateway.RunRequest, result navigator.Result, duration time.Duration) {
	if d.history == nil {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := d.history.Record(recordCtx, history.Run{
		ID:          req.RunID,
		SessionID:   req.SessionID,
		Instruction: req.Instruction,
		Success:     result.Success,
		Summary:     result.Summary,
		Turns:       result.Turns,
		DurationMs:  duration.Milliseconds(),
	}); err != nil {
		d.logger.Warn().Err(err).Str("run_id", req.RunID).Msg("Failed to record run history")
	}
}

// runScheduled executes one configured schedule: a fresh session,
// optionally pointed at a start URL, torn down when the run finishes.
func (d *Daemon) runScheduled(ctx context.Context, schedule config.ScheduleConfig) {
	ctx = tracing.NewRequestContext(ctx)
	ctx = tracing.WithRunID(ctx, tracing.NewRunID())
	log := tracing.LoggerFromContext(ctx, d.logger.GetZerolog()).With().
		Str("schedule", schedule.Name).
		Logger()

	session, err := d.sessions.Open(ctx, schedule.StartURL)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled run could not open a session")
		return
	}
	defer func() {
		if err := d.sessions.Close(session.ID); err != nil {
			log.Warn().Err(err).Msg("Failed to close scheduled session")
		}
	}()

	result, err := d.dispatchVia(tracing.WithSessionID(ctx, session.ID), commandqueue.LaneCron, gateway.RunRequest{
		RunID:       tracing.GetRunID(ctx),
		SessionID:   session.ID,
		Instruction: schedule.Instruction,
	})
	if err != nil {
		log.Error().Err(err).Msg("Scheduled run failed to dispatch")
		return
	}

	log.Info().
		Bool("success", result.Success).
		Int("turns", result.Turns).
		Str("summary", result.Summary).
		Msg("Scheduled run finished")
}

// RunOnce executes a single instruction against a fresh session and
// tears the session down afterwards. The CLI run command uses this.
func (d *Daemon) RunOnce(ctx context.Context, instruction, startURL string, overrides *navigator.Config) (navigator.Result, error) {
	if err := d.sessions.Start(ctx); err != nil {
		return navigator.Result{}, fmt.Errorf("failed to start browser: %w", err)
	}

	session, err := d.sessions.Open(ctx, startURL)
	if err != nil {
		return navigator.Result{}, err
	}
	defer func() {
		_ = d.sessions.Close(session.ID)
	}()

	ctx = tracing.NewInstructionContext(ctx, session.ID)
	ctx = tracing.WithRunID(ctx, tracing.NewRunID())

	return d.dispatchVia(ctx, commandqueue.LaneMain, gateway.RunRequest{
		RunID:       tracing.GetRunID(ctx),
		SessionID:   session.ID,
		Instruction: instruction,
		Config:      overrides,
	})
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Starting webpilot daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := observability.InitAuditLogger(filepath.Join(d.config.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Audit log unavailable, events go to stderr")
	}

	if err := d.sessions.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info().Msg("Browser started")

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Start(); err != nil {
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
		log.Info().Msg("Gateway server started")
	}

	if d.scheduler != nil {
		d.scheduler.Start()
		log.Info().Msg("Scheduler started")
	}

	watcher, err := config.NewWatcher(d.config.ConfigPath, d.handleConfigReload)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		d.configWatcher = watcher
		log.Info().Msg("Config watcher started")
	}

	log.Info().Msg("Daemon started")
	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Stopping webpilot daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.scheduler != nil {
		d.scheduler.Stop()
	}

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop gateway server")
		}
	}

	// Let in-flight instructions finish before the browser goes away.
	if !d.queue.WaitForActive(30 * time.Second) {
		log.Warn().Msg("Timed out waiting for active instructions to drain")
	}
	d.queue.Off("enqueued")
	d.queue.Off("completed")
	if err := d.queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close command queue")
	}

	if err := d.sessions.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to shut down browser")
	}

	if d.history != nil {
		if err := d.history.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close history store")
		}
	}

	d.cancel()

	if err := observability.GetAuditLogger().Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit log")
	}

	if err := d.lifecycle.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	log.Info().Msg("Daemon stopped")
	return nil
}

// handleConfigReload applies hot-reloadable settings from a changed
// config file. Only instruction defaults are applied live; transport
// and browser settings need a restart.
func (d *Daemon) handleConfigReload(cfg *config.Config) {
	d.mu.Lock()
	d.config.Defaults = cfg.Defaults
	d.config.Schedules = cfg.Schedules
	d.mu.Unlock()

	d.navigator.SetDefaults(navigator.Config{
		Model:     cfg.Defaults.Model,
		MaxTurns:  cfg.Defaults.MaxTurns,
		TimeoutMs: cfg.Defaults.TimeoutMs,
	})

	d.logger.Info().
		Str("model", cfg.Defaults.Model).
		Int("max_turns", cfg.Defaults.MaxTurns).
		Msg("Reloaded instruction defaults")

	if d.scheduler != nil {
		if err := d.scheduler.Apply(cfg.Schedules); err != nil {
			d.logger.Error().Err(err).Msg("Failed to apply reloaded schedules")
		}
	}
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running, Queue: d.queue.GetStats()}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	return status
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Queue     map[string]map[string]int
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.Queue {
	return d.queue
}

// GetSessions returns the browser session registry
func (d *Daemon) GetSessions() *browser.Registry {
	return d.sessions
}

// GetGatewayServer returns the gateway server
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
