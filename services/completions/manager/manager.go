// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
	"github.com/AleutianAI/AleutianComplete/services/completions/fallback"
	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
	"github.com/AleutianAI/AleutianComplete/services/completions/snippets"
	"github.com/AleutianAI/AleutianComplete/services/completions/transport"
	"github.com/AleutianAI/AleutianComplete/services/completions/watcher"
)

// defaultStartTimeout bounds background starts (restarts, config changes).
const defaultStartTimeout = 30 * time.Second

// Editor receives what the manager pushes for the documents it opened.
// Implementations must be comparable; Close matches editors with ==.
type Editor interface {
	HandleDiagnostics(provider string, params lsp.PublishDiagnosticsParams)
}

// Options configure a Manager.
type Options struct {
	// Config is the initial configuration. Default config.Default().
	Config *config.Config

	// Connect reaches language servers from in-process proxies. Setting it
	// keeps proxies in-process unless Config.Transport.Binary is set.
	// Default transport.Connect.
	Connect transport.ConnectFunc

	// Providers are registered next to the built-in ones.
	Providers []Provider

	// ApplyEdit answers workspace/applyEdit for every language client.
	ApplyEdit func(language string, edit lsp.WorkspaceEdit) bool

	Logger *slog.Logger
}

// restartState tracks crash restarts of one language.
type restartState struct {
	limiter *rate.Limiter
	count   int
}

// Manager routes editor traffic to the completion providers.
//
// Thread Safety:
//
//	Safe for concurrent use. Lifecycle events for all documents are
//	serialized so that every provider sees them in call order.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	cfg       *config.Config
	providers map[string]Provider
	languages map[string]*languageProvider
	restarts  map[string]*restartState
	folders   []string
	closed    bool
	cfgTimer  *time.Timer
	cfgGen    int
	watch     *watcher.Watcher

	// lifetime bounds background work; done closes on Shutdown.
	lifetime context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	// syncMu serializes lifecycle broadcasts; docsMu guards docs.
	syncMu sync.Mutex
	docsMu sync.Mutex
	docs   map[string]*docEntry

	ticketMu sync.Mutex
	inflight map[inflightKey]*ticket

	applyMu sync.Mutex
	starts  singleflight.Group

	fallback *fallbackProvider
	snippets *snippetsProvider
}

// New builds a manager and its providers. Nothing is started.
//
// Description:
//
//	One LSP provider is created per configured language whose server
//	settings validate; the others are logged and left out. The fallback
//	and snippets providers are created when enabled.
func New(opts Options) *Manager {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	lifetime, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:      opts,
		logger:    opts.Logger.With(slog.String("component", "manager")),
		cfg:       opts.Config,
		providers: make(map[string]Provider),
		languages: make(map[string]*languageProvider),
		restarts:  make(map[string]*restartState),
		lifetime:  lifetime,
		cancel:    cancel,
		done:      make(chan struct{}),
		docs:      make(map[string]*docEntry),
		inflight:  make(map[inflightKey]*ticket),
	}
	if opts.Config.Workspace != "" {
		m.folders = []string{opts.Config.Workspace}
	}

	cfg := opts.Config
	if cfg.Fallback.Enabled {
		m.fallback = &fallbackProvider{
			worker: fallback.NewWorker(fallback.Options{QueueSize: cfg.Fallback.QueueSize, Logger: opts.Logger}),
			ctx:    lifetime,
		}
		m.providers[fallbackName] = m.fallback
	}
	if cfg.Snippets.Enabled {
		m.snippets = &snippetsProvider{library: snippets.NewProvider(cfg.Snippets.Languages, opts.Logger)}
		m.providers[snippetsName] = m.snippets
	}
	for _, p := range opts.Providers {
		m.providers[p.Name()] = p
	}

	langs := make([]string, 0, len(cfg.Languages))
	for lang := range cfg.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if _, err := m.addLanguageLocked(cfg, lang); err != nil {
			m.logger.Warn("language disabled", slog.String("language", lang), slog.String("error", err.Error()))
		}
	}
	return m
}

// addLanguageLocked registers the provider of lang built from cfg.
func (m *Manager) addLanguageLocked(cfg *config.Config, lang string) (*languageProvider, error) {
	if err := cfg.Validate(lang); err != nil {
		return nil, err
	}
	lc := cfg.Languages[lang]

	spec := transport.ServerSpec{
		Host:          lc.Server.Host,
		Port:          lc.Server.Port,
		Stdio:         lc.Server.Stdio,
		External:      lc.Server.External,
		LogFile:       cfg.ServerLogFile(lang),
		Folder:        cfg.Workspace,
		Debug:         cfg.Transport.Debug,
		ProbeTimeout:  cfg.Transport.ProbeTimeout,
		ProbeInterval: cfg.Transport.ProbeInterval,
	}
	if lc.Server.Command != "" {
		spec.Command = append([]string{lc.Server.Command}, lc.Server.Args...)
	}
	logger := m.opts.Logger.With(slog.String("language", lang))
	binary := cfg.Transport.Binary
	if binary == "" && m.opts.Connect == nil {
		found, err := transport.ResolveBinary("")
		if err != nil {
			logger.Warn("lsp-transport not found, running the proxy in-process", slog.String("error", err.Error()))
		}
		binary = found
	}
	newTransport := func() lsp.Transport {
		if binary != "" {
			return transport.NewProcess(binary, spec, logger)
		}
		return transport.NewLocal(transport.ProxyConfig{ServerSpec: spec, Connect: m.opts.Connect, Logger: logger})
	}

	p := &languageProvider{language: lang, diagnostics: &diagnosticsRouter{m: m, provider: providerName(lang)}}
	p.client = lsp.NewClient(lsp.Options{
		Language:              lang,
		Folder:                cfg.Workspace,
		NewTransport:          newTransport,
		Settings:              lc.Settings.Configurations(lang),
		InitializationOptions: lc.Server.InitializationOptions,
		Hooks: lsp.Hooks{
			Stopped: func(_ string, err error) {
				if err != nil {
					go m.recover(p, err)
				}
			},
			InitializeFailed: func(language string, err error) {
				m.logger.Warn("initialize failed", slog.String("language", language), slog.String("error", err.Error()))
			},
			ShowMessage: func(language string, kind int, message string) {
				m.logger.Info("server message", slog.String("language", language), slog.Int("type", kind), slog.String("message", message))
			},
			LogMessage: func(language string, kind int, message string) {
				m.logger.Debug("server log", slog.String("language", language), slog.Int("type", kind), slog.String("message", message))
			},
			Progress: func(language string, token, value json.RawMessage) {
				m.logger.Debug("server progress", slog.String("language", language), slog.String("token", string(token)))
			},
			ApplyEdit: m.opts.ApplyEdit,
		},
		Logger: m.opts.Logger,
	})

	var extra []lsp.WorkspaceFolder
	for _, f := range m.folders {
		if f != cfg.Workspace {
			extra = append(extra, workspaceFolder(f))
		}
	}
	if len(extra) > 0 {
		_ = p.client.DidChangeWorkspaceFolders(extra, nil)
	}

	m.languages[lang] = p
	m.providers[p.Name()] = p
	m.restarts[lang] = &restartState{limiter: rate.NewLimiter(rate.Every(cfg.Restart.Interval), 1)}
	return p, nil
}

// Start starts every provider and, when enabled, the workspace watcher.
//
// Description:
//
//	Providers start concurrently. A provider that fails to start is logged
//	and stays stopped; the others keep serving.
//
// Errors:
//
//	ErrClosed - the manager was shut down
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	providers := m.sortedProvidersLocked()
	cfg := m.cfg
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			if err := m.startProvider(gctx, p); err != nil {
				m.logger.Warn("provider failed to start", slog.String("provider", p.Name()), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	if cfg.Watcher.Enabled && cfg.Workspace != "" {
		if err := m.startWatcher(cfg); err != nil {
			m.logger.Warn("workspace watcher disabled", slog.String("error", err.Error()))
		}
	}
	m.logger.Info("completion manager started", slog.Int("providers", len(providers)))
	return nil
}

func (m *Manager) startWatcher(cfg *config.Config) error {
	w, err := watcher.New(watcher.FromConfig(cfg.Workspace, cfg.Watcher, m.HandleWatcherEvents, m.opts.Logger))
	if err != nil {
		return err
	}
	if err := w.Start(m.lifetime); err != nil {
		return err
	}
	m.mu.Lock()
	m.watch = w
	m.mu.Unlock()
	return nil
}

// startProvider starts p once even when called concurrently, then replays
// the open documents it tracks.
func (m *Manager) startProvider(ctx context.Context, p Provider) error {
	_, err, _ := m.starts.Do(p.Name(), func() (any, error) {
		if p.Status() != StatusStopped {
			return nil, nil
		}
		if err := p.Start(ctx); err != nil {
			providerStarts.WithLabelValues(p.Name(), "error").Inc()
			return nil, err
		}
		providerStarts.WithLabelValues(p.Name(), "ok").Inc()
		m.replay(p)
		return nil, nil
	})
	return err
}

// replay announces every open document p tracks.
func (m *Manager) replay(p Provider) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()
	for _, d := range m.documentsOf(p) {
		if err := p.Sync(DocumentEvent{Kind: EventOpen, Document: d}); err != nil {
			m.logger.Debug("replay failed", slog.String("provider", p.Name()), slog.String("path", d.Path), slog.String("error", err.Error()))
		}
	}
}

// recover restarts a crashed language client within the restart budget.
// A failed attempt counts against the budget and queues the next one.
func (m *Manager) recover(p *languageProvider, cause error) {
	m.mu.Lock()
	if m.closed || m.languages[p.language] != p || !m.cfg.Restart.Enabled {
		m.mu.Unlock()
		return
	}
	rs := m.restarts[p.language]
	if rs.count >= m.cfg.Restart.MaxRestarts {
		m.mu.Unlock()
		m.logger.Error("language server keeps crashing, giving up",
			slog.String("language", p.language), slog.Int("restarts", rs.count), slog.String("error", cause.Error()))
		return
	}
	rs.count++
	attempt := rs.count
	limiter := rs.limiter
	m.mu.Unlock()

	m.logger.Warn("language server crashed, restarting",
		slog.String("language", p.language), slog.Int("attempt", attempt), slog.String("error", cause.Error()))
	if err := limiter.Wait(m.lifetime); err != nil {
		return
	}
	restartsTotal.WithLabelValues(p.language).Inc()

	ctx, cancel := context.WithTimeout(m.lifetime, defaultStartTimeout)
	defer cancel()
	if err := m.startProvider(ctx, p); err != nil {
		m.logger.Warn("restart failed", slog.String("language", p.language), slog.String("error", err.Error()))
		go m.recover(p, err)
	}
}

// Shutdown stops every provider and the watcher. Outstanding requests
// return ErrClosed. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	if m.cfgTimer != nil {
		m.cfgTimer.Stop()
		m.cfgTimer = nil
	}
	w := m.watch
	m.watch = nil
	providers := m.sortedProvidersLocked()
	m.mu.Unlock()

	if w != nil {
		w.Stop()
	}

	g, _ := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			if err := p.Stop(); err != nil {
				return fmt.Errorf("stop %s: %w", p.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.cancel()
	m.logger.Info("completion manager stopped")
	return err
}

// StopProvider stops one provider by name.
func (m *Manager) StopProvider(name string) error {
	p, err := m.provider(name)
	if err != nil {
		return err
	}
	return p.Stop()
}

// StartProvider starts one provider by name.
func (m *Manager) StartProvider(ctx context.Context, name string) error {
	p, err := m.provider(name)
	if err != nil {
		return err
	}
	return m.startProvider(ctx, p)
}

func (m *Manager) provider(name string) (Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers returns a snapshot of every provider in priority order.
func (m *Manager) Providers() []ProviderInfo {
	m.mu.Lock()
	providers := m.sortedProvidersLocked()
	restarts := make(map[string]int, len(m.restarts))
	for lang, rs := range m.restarts {
		restarts[providerName(lang)] = rs.count
	}
	m.mu.Unlock()

	out := make([]ProviderInfo, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderInfo{
			Name:     p.Name(),
			Priority: p.Priority(),
			Status:   p.Status().String(),
			Restarts: restarts[p.Name()],
		})
	}
	return out
}

// Client returns the LSP client of language, or nil.
func (m *Manager) Client(language string) *lsp.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.languages[language]; ok {
		return p.client
	}
	return nil
}

// Config returns the configuration last applied.
func (m *Manager) Config() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Done is closed when the manager shuts down.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) sortedProvidersLocked() []Provider {
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p)
	}
	sortProviders(out)
	return out
}

func sortProviders(ps []Provider) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority() != ps[j].Priority() {
			return ps[i].Priority() < ps[j].Priority()
		}
		return ps[i].Name() < ps[j].Name()
	})
}

// snapshot returns the providers in priority order.
func (m *Manager) snapshot() []Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedProvidersLocked()
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
