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
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianComplete/services/completions/config"
)

// UpdateConfig schedules next to be applied once the configuration has
// been quiet for ConfigDebounce. A newer call within the window replaces
// the pending one.
func (m *Manager) UpdateConfig(next *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.cfgTimer != nil {
		m.cfgTimer.Stop()
	}
	m.cfgGen++
	gen := m.cfgGen
	m.cfgTimer = time.AfterFunc(m.cfg.ConfigDebounce, func() {
		m.mu.Lock()
		if m.closed || gen != m.cfgGen {
			m.mu.Unlock()
			return
		}
		m.cfgTimer = nil
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.lifetime, defaultStartTimeout)
		defer cancel()
		m.ApplyConfig(ctx, next)
	})
}

// ApplyConfig switches to next immediately and returns what changed.
//
// Description:
//
//	Languages are diffed with config.Diff. Removed languages are stopped,
//	languages whose server settings changed are stopped and rebuilt,
//	added languages are started, and languages whose editor settings
//	changed receive workspace/didChangeConfiguration. The snippet library
//	is replaced. Failures are logged per language.
func (m *Manager) ApplyConfig(ctx context.Context, next *config.Config) config.Changes {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return config.Changes{}
	}
	prev := m.cfg
	m.cfg = next
	m.mu.Unlock()

	ch := config.Diff(prev, next)
	for _, lang := range ch.Removed {
		m.removeLanguage(lang)
	}
	for _, lang := range ch.Restart {
		m.removeLanguage(lang)
		m.addLanguage(ctx, next, lang)
	}
	for _, lang := range ch.Added {
		m.addLanguage(ctx, next, lang)
	}
	for _, lang := range ch.Reconfigure {
		client := m.Client(lang)
		if client == nil {
			// disabled until now by invalid server settings
			m.addLanguage(ctx, next, lang)
			continue
		}
		if err := client.SendConfiguration(next.Languages[lang].Settings.Configurations(lang)); err != nil {
			m.logger.Warn("configuration not sent", slog.String("language", lang), slog.String("error", err.Error()))
		}
	}
	if m.snippets != nil {
		m.snippets.library.Update(next.Snippets.Languages)
	}

	configChanges.WithLabelValues("added").Add(float64(len(ch.Added)))
	configChanges.WithLabelValues("removed").Add(float64(len(ch.Removed)))
	configChanges.WithLabelValues("restart").Add(float64(len(ch.Restart)))
	configChanges.WithLabelValues("reconfigure").Add(float64(len(ch.Reconfigure)))
	if !ch.Empty() {
		m.logger.Info("configuration applied",
			slog.Any("added", ch.Added), slog.Any("removed", ch.Removed),
			slog.Any("restart", ch.Restart), slog.Any("reconfigure", ch.Reconfigure))
	}
	return ch
}

func (m *Manager) removeLanguage(lang string) {
	m.mu.Lock()
	p, ok := m.languages[lang]
	if ok {
		delete(m.languages, lang)
		delete(m.providers, p.Name())
		delete(m.restarts, lang)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := p.Stop(); err != nil {
		m.logger.Warn("stop language client", slog.String("language", lang), slog.String("error", err.Error()))
	}
}

func (m *Manager) addLanguage(ctx context.Context, cfg *config.Config, lang string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	p, err := m.addLanguageLocked(cfg, lang)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("language disabled", slog.String("language", lang), slog.String("error", err.Error()))
		return
	}
	if err := m.startProvider(ctx, p); err != nil {
		m.logger.Warn("provider failed to start", slog.String("provider", p.Name()), slog.String("error", err.Error()))
	}
}
