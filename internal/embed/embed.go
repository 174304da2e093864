// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package embed runs the embedding model on a single dedicated OS thread,
// since most embedding runtimes (ONNX, llama.cpp bindings, etc.) hand back
// a handle that is only safe to call from the thread that created it. The
// rest of the process talks to that thread through a bounded request
// channel instead of calling into the model directly.
package embed

import (
	"context"
	"runtime"

	"github.com/cortexfs/cortexfs/internal/logger"
	"github.com/cortexfs/cortexfs/internal/semerr"
)

// Model produces fixed-length embedding vectors. An implementation is not
// required to be safe for concurrent use; Actor guarantees it is only
// ever called from the thread that constructed it. EmbedBatch is the
// primary entry point: a real runtime can fold many texts into one
// forward pass, and Embed is just EmbedBatch of one.
type Model interface {
	Embed(text string) ([]float32, error)
	EmbedBatch(texts []string) ([][]float32, error)
	Dim() int
}

// request is one unit of work handed to the dedicated thread. A single
// text is represented as a batch of one, so there is exactly one path
// through the actor regardless of caller.
type request struct {
	texts []string
	reply chan result
}

type result struct {
	vecs [][]float32
	err  error
}

// Actor owns a Model on a dedicated OS thread and serializes access to it
// through reqs. Spec §4.4/§9: the embedding model is treated as an actor,
// not a shared resource guarded by a mutex, because the underlying model
// handle is frequently not safe to call from an arbitrary goroutine.
type Actor struct {
	reqs chan request
	dim  int
}

// defaultQueueDepth backs the request channel when the caller doesn't
// supply a positive depth of its own.
const defaultQueueDepth = 100

// NewActor starts a dedicated OS thread, constructs the model on it, and
// blocks until construction finishes, so construction errors still surface
// synchronously to the caller. The thread then serves embedding requests
// until ctx is canceled. queueDepth bounds the request channel; a
// non-positive value falls back to defaultQueueDepth.
func NewActor(ctx context.Context, newModel func() (Model, error), queueDepth int) (*Actor, error) {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}

	a := &Actor{
		reqs: make(chan request, queueDepth),
	}

	ready := make(chan error, 1)
	go a.run(ctx, newModel, ready)
	if err := <-ready; err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Actor) run(ctx context.Context, newModel func() (Model, error), ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	model, err := newModel()
	if err != nil {
		ready <- semerr.Wrap(semerr.EmbeddingFailure, "NewActor: load model", err)
		return
	}
	a.dim = model.Dim()

	logger.Infof("embedding actor started on dedicated thread")
	close(ready)

	for {
		select {
		case <-ctx.Done():
			logger.Infof("embedding actor shutting down")
			return
		case req := <-a.reqs:
			vecs, err := model.EmbedBatch(req.texts)
			if err != nil {
				err = semerr.Wrap(semerr.EmbeddingFailure, "EmbedBatch", err)
			}
			req.reply <- result{vecs: vecs, err: err}
		}
	}
}

// Dim is the embedding dimension produced by the underlying model.
func (a *Actor) Dim() int {
	return a.dim
}

// Request submits a single text for embedding and blocks until the
// dedicated thread replies or ctx is canceled. Safe to call from any
// number of goroutines.
func (a *Actor) Request(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.RequestBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// RequestBatch submits the full set of texts as a single round trip
// through the dedicated thread, blocking until it replies or ctx is
// canceled. The reply preserves the input order.
func (a *Actor) RequestBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reply := make(chan result, 1)

	select {
	case a.reqs <- request{texts: texts, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.vecs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
