// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/AleutianComplete/services/completions/lsp"
)

// MessageType selects what the worker does with a Message.
type MessageType int

const (
	// MsgUpdate patches the mirror of a file, creating it if needed.
	MsgUpdate MessageType = iota

	// MsgClose forgets a file.
	MsgClose

	// MsgRetrieve tokenizes a file and posts the result to the receiver.
	MsgRetrieve
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MsgUpdate:
		return "update"
	case MsgClose:
		return "close"
	case MsgRetrieve:
		return "retrieve"
	default:
		return "unknown"
	}
}

// TokenReceiver gets the tokens of a retrieve.
type TokenReceiver interface {
	ReceiveTextTokens(file string, tokens []lsp.CompletionItem)
}

// ReceiverFunc adapts a function to TokenReceiver.
type ReceiverFunc func(file string, tokens []lsp.CompletionItem)

// ReceiveTextTokens calls f.
func (f ReceiverFunc) ReceiveTextTokens(file string, tokens []lsp.CompletionItem) { f(file, tokens) }

// Message is one unit of work.
type Message struct {
	Type     MessageType
	File     string
	Language string

	// Patch is diff-match-patch text, see MakePatch.
	Patch string

	// Receiver gets the tokens of a MsgRetrieve.
	Receiver TokenReceiver
}

// Options configure a Worker.
type Options struct {
	// QueueSize bounds the input queue. Posting blocks when it is full.
	QueueSize int

	Logger *slog.Logger
}

type fileRecord struct {
	language string
	text     string
}

// Worker owns the file mirrors and answers token requests.
//
// Thread Safety:
//
//	Post and its helpers are safe for concurrent use. The mirrors are
//	only touched by the worker goroutine.
type Worker struct {
	logger *slog.Logger
	queue  chan Message

	// files is owned by run.
	files map[string]*fileRecord
	count atomic.Int64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker creates a stopped worker.
func NewWorker(opts Options) *Worker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{
		logger: opts.Logger.With(slog.String("component", "fallback")),
		queue:  make(chan Message, opts.QueueSize),
		files:  make(map[string]*fileRecord),
	}
}

// Start launches the worker goroutine. The worker stops when ctx ends or
// Stop is called. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(ctx, w.stop, w.done)
	w.logger.Debug("fallback worker started")
}

// Stop ends the worker and waits for it. Mirrors are kept so a restarted
// worker resumes where it left off.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()
	<-done
	w.logger.Debug("fallback worker stopped")
}

// Running reports whether the worker goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Files returns the number of mirrored files.
func (w *Worker) Files() int { return int(w.count.Load()) }

// Post enqueues msg, blocking while the queue is full.
//
// Errors:
//
//	ErrStopped - the worker is not running
func (w *Worker) Post(msg Message) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrStopped
	}
	stop := w.stop
	w.mu.Unlock()

	select {
	case w.queue <- msg:
		return nil
	case <-stop:
		return ErrStopped
	}
}

// Update posts a patch for file.
func (w *Worker) Update(file, language, patch string) error {
	return w.Post(Message{Type: MsgUpdate, File: file, Language: language, Patch: patch})
}

// Close posts the removal of file.
func (w *Worker) Close(file string) error {
	return w.Post(Message{Type: MsgClose, File: file})
}

// Retrieve posts a token request answered on r.
func (w *Worker) Retrieve(file string, r TokenReceiver) error {
	return w.Post(Message{Type: MsgRetrieve, File: file, Receiver: r})
}

// Tokens retrieves the tokens of file and waits for them.
func (w *Worker) Tokens(ctx context.Context, file string) ([]lsp.CompletionItem, error) {
	ch := make(chan []lsp.CompletionItem, 1)
	err := w.Retrieve(file, ReceiverFunc(func(_ string, tokens []lsp.CompletionItem) {
		ch <- tokens
	}))
	if err != nil {
		return nil, err
	}
	select {
	case tokens := <-ch:
		return tokens, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.stop == stop && w.running {
				w.running = false
				close(stop)
			}
			w.mu.Unlock()
			return
		case <-stop:
			return
		case msg := <-w.queue:
			w.handle(msg)
		}
	}
}

func (w *Worker) handle(msg Message) {
	messagesTotal.WithLabelValues(msg.Type.String()).Inc()

	switch msg.Type {
	case MsgUpdate:
		rec, ok := w.files[msg.File]
		if !ok {
			rec = &fileRecord{}
			w.files[msg.File] = rec
			w.count.Add(1)
			mirroredFiles.Inc()
		}
		if msg.Language != "" {
			rec.language = msg.Language
		}
		text, failed, err := ApplyPatch(rec.text, msg.Patch)
		if err != nil {
			w.logger.Warn("dropping update", slog.String("file", msg.File), slog.String("error", err.Error()))
			return
		}
		if failed > 0 {
			patchFailures.Add(float64(failed))
			w.logger.Warn("patch applied partially",
				slog.String("file", msg.File), slog.Int("failed_hunks", failed))
		}
		rec.text = text

	case MsgClose:
		if _, ok := w.files[msg.File]; ok {
			delete(w.files, msg.File)
			w.count.Add(-1)
			mirroredFiles.Dec()
		}

	case MsgRetrieve:
		var tokens []lsp.CompletionItem
		if rec, ok := w.files[msg.File]; ok {
			tokens = w.tokenize(msg.File, rec)
		}
		if tokens == nil {
			tokens = []lsp.CompletionItem{}
		}
		tokensReturned.Observe(float64(len(tokens)))
		if msg.Receiver != nil {
			msg.Receiver.ReceiveTextTokens(msg.File, tokens)
		}

	default:
		w.logger.Warn("unknown message type", slog.Int("type", int(msg.Type)))
	}
}

// tokenize never fails: a panic in a lexer yields no tokens.
func (w *Worker) tokenize(file string, rec *fileRecord) (tokens []lsp.CompletionItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("tokenizer failed", slog.String("file", file), slog.String("panic", fmt.Sprint(r)))
			tokens = nil
		}
	}()
	return Tokenize(rec.language, rec.text)
}
