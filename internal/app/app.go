package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"wfs-go/internal/compress"
	"wfs-go/internal/config"
	"wfs-go/internal/encryption"
	"wfs-go/internal/eventsws"
	"wfs-go/internal/jobs"
	"wfs-go/internal/kv"
	"wfs-go/internal/netwatch"
	"wfs-go/internal/remote"
	"wfs-go/internal/wfs"
)

// ErrNoProcessor is returned by operations that need a remote processor when
// none is configured.
var ErrNoProcessor = errors.New("no remote processor configured (set [remote] type in the config)")

// Options adjust how NewApp wires the engine. Zero values use the config.
type Options struct {
	// Passphrase is called once when encryption at rest is enabled.
	Passphrase func() (string, error)
	// Verbose enables debug logging.
	Verbose bool
	// Stderr receives a copy of every log line. Nil logs to the file only.
	Stderr io.Writer

	Clock        wfs.Clock
	IDs          wfs.IDGenerator
	Processor    wfs.Processor
	Connectivity wfs.Connectivity
}

// App is the application layer between the CLI and the engine. It builds
// every component from config, opens the stores once and releases the
// substrate on Close.
type App struct {
	cfg       *config.Config
	store     kv.Store
	bus       *wfs.Bus
	drafts    *wfs.DraftStore
	versions  *wfs.VersionStore
	queue     *wfs.SyncQueue
	reminders *wfs.ReminderScheduler
	processor wfs.Processor
	conn      wfs.Connectivity
	clock     wfs.Clock
	ids       wfs.IDGenerator
	logger    wfs.Logger
	logFile   *os.File
	session   *Session
}

// NewApp creates a fully wired App from cfg. command names the CLI command
// being run. The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*App, error) {
	a := &App{cfg: cfg, clock: opts.Clock, ids: opts.IDs}
	if a.clock == nil {
		a.clock = wfs.RealClock{}
	}
	if a.ids == nil {
		a.ids = wfs.UUIDGenerator{}
	}
	a.session = NewSession(command, a.clock)

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, a.session.ID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger = &slogAdapter{l: logger}
	a.logFile = logFile

	if err := a.open(ctx, opts); err != nil {
		a.Fail()
		a.Close()
		return nil, err
	}
	a.logger.Debug("session started", "command", command)
	return a, nil
}

func (a *App) open(ctx context.Context, opts Options) error {
	cfg := a.cfg
	backend, err := kv.NewStoreFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	a.store = backend

	codec, err := compress.New(cfg.Compression.Type)
	if err != nil {
		return fmt.Errorf("creating codec: %w", err)
	}
	layers := kv.Layers{Codec: codec}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil {
		if !enc.IsConfigured() {
			return fmt.Errorf("encryption is enabled but keys are missing: run 'wfs keys init'")
		}
		if opts.Passphrase == nil {
			return fmt.Errorf("encryption is enabled but no passphrase source was provided")
		}
		passphrase, err := opts.Passphrase()
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		dc, err := enc.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking storage: %w", err)
		}
		layers.Encryptor = enc
		layers.Decryption = dc
	}
	a.store = kv.Wrap(backend, layers)

	a.processor = opts.Processor
	if a.processor == nil {
		if a.processor, err = remote.NewFromConfig(cfg.Remote); err != nil {
			return fmt.Errorf("creating remote processor: %w", err)
		}
	}
	a.conn = opts.Connectivity
	if a.conn == nil {
		if a.conn, err = netwatch.NewFromConfig(cfg.Connectivity, a.logger); err != nil {
			return fmt.Errorf("creating connectivity source: %w", err)
		}
	}

	a.bus = wfs.NewBus(a.logger)

	a.drafts = wfs.NewDraftStore(a.store, a.clock, a.logger, wfs.DraftOptions{
		Retention: cfg.Drafts.Retention.Duration,
	})
	if err := a.drafts.Open(ctx); err != nil {
		return err
	}

	a.versions = wfs.NewVersionStore(a.store, a.clock, a.logger)

	a.queue = wfs.NewSyncQueue(a.store, a.processor, a.bus, a.clock, a.ids, a.logger, wfs.QueueOptions{
		BackoffBase: cfg.Sync.BackoffBase.Duration,
		BackoffCap:  cfg.Sync.BackoffCap.Duration,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err := a.queue.Open(ctx); err != nil {
		return fmt.Errorf("opening sync queue: %w", err)
	}

	a.reminders = wfs.NewReminderScheduler(a.store, a.bus, a.clock, a.ids, a.logger, wfs.ReminderOptions{
		Inactivity: cfg.Reminders.Inactivity.Duration,
		Escalation: cfg.Reminders.Escalation.Duration,
	})
	if err := a.reminders.Open(ctx); err != nil {
		return fmt.Errorf("opening reminders: %w", err)
	}
	return nil
}

func (a *App) Config() *config.Config            { return a.cfg }
func (a *App) Bus() *wfs.Bus                     { return a.bus }
func (a *App) Drafts() *wfs.DraftStore           { return a.drafts }
func (a *App) Versions() *wfs.VersionStore       { return a.versions }
func (a *App) Queue() *wfs.SyncQueue             { return a.queue }
func (a *App) Reminders() *wfs.ReminderScheduler { return a.reminders }
func (a *App) Logger() wfs.Logger                { return a.logger }
func (a *App) Session() *Session                 { return a.session }

// NewAutosaver creates an autosaver for one section that enqueues every save.
func (a *App) NewAutosaver(doc, section string) *wfs.Autosaver {
	return wfs.NewAutosaver(a.drafts, a.bus, a.clock, a.logger, wfs.AutosaveOptions{
		DocumentID: doc,
		SectionID:  section,
		Debounce:   a.cfg.Autosave.Debounce.Duration,
		Queue:      a.queue,
		JobKind:    a.cfg.Autosave.JobKind,
	})
}

// Drain runs one drain pass.
func (a *App) Drain(ctx context.Context) (wfs.DrainReport, error) {
	if a.processor == nil {
		return wfs.DrainReport{}, ErrNoProcessor
	}
	return a.queue.Drain(ctx)
}

// NewScheduler creates the background scheduler for the queue and drafts.
func (a *App) NewScheduler() *jobs.SyncScheduler {
	return jobs.NewSyncScheduler(a.queue, a.drafts, a.bus, a.conn, a.logger, jobs.SchedulerOptions{
		DrainInterval: a.cfg.Sync.DrainInterval.Duration,
		PurgeInterval: a.cfg.Drafts.PurgeInterval.Duration,
	})
}

// Serve runs the scheduler and, when events.listen is set, the websocket
// event stream until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.processor == nil {
		return ErrNoProcessor
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- a.NewScheduler().Run(ctx) }()

	if listen := a.cfg.Events.Listen; listen != "" {
		srv := &http.Server{
			Addr:              listen,
			Handler:           eventsws.NewServeMux(eventsws.NewHandler(a.bus, a.logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		running++
		go func() {
			a.logger.Info("event stream listening", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("serving events: %w", err)
				return
			}
			errs <- nil
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
	}

	var firstErr error
	for ; running > 0; running-- {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// Fail marks the session as failed so Close logs it as such.
func (a *App) Fail() {
	a.session.Fail()
}

// Close stops reminder timers and releases the substrate and the log file.
func (a *App) Close() error {
	var firstErr error

	if a.reminders != nil {
		a.reminders.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = fmt.Errorf("closing storage: %w", err)
		}
	}

	if a.logger != nil {
		a.logger.Debug("session finished",
			"command", a.session.Command,
			"status", a.session.Status,
			"elapsed", a.session.Elapsed(a.clock))
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
