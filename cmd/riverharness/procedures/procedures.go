// Package procedures implements the reference handlers spec §6's harness
// scenarios exercise: a key/value store (kv.set, kv.watch), an echo
// service (repeat.echo) and an upload concatenator (upload.send). It is
// shared by riverharness's embedded server and the standalone riverserver
// binary so either can answer the same scenarios.
package procedures

import (
	"context"
	"sync"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/server"
)

// RegisterAll wires every reference procedure onto d.
func RegisterAll(d *server.Dispatcher) {
	kv := newKVStore()
	server.RegisterUnary(d, "kv", "set", kv.set)
	server.RegisterSubscription(d, "kv", "watch", kv.watch)
	server.RegisterStream(d, "repeat", "echo", echo)
	server.RegisterUpload(d, "upload", "send", upload)
}

type setReq struct {
	K string  `json:"k"`
	V float64 `json:"v"`
}

type watchReq struct {
	K string `json:"k"`
}

type kvStore struct {
	mu       sync.Mutex
	values   map[string]float64
	watchers map[string][]chan float64
}

func newKVStore() *kvStore {
	return &kvStore{
		values:   make(map[string]float64),
		watchers: make(map[string][]chan float64),
	}
}

func (s *kvStore) set(_ context.Context, req setReq) (float64, error) {
	s.mu.Lock()
	s.values[req.K] = req.V
	watchers := append([]chan float64(nil), s.watchers[req.K]...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- req.V:
		default:
		}
	}
	return req.V, nil
}

func (s *kvStore) watch(ctx context.Context, req watchReq, emit func(float64) error) error {
	s.mu.Lock()
	v, ok := s.values[req.K]
	if !ok {
		s.mu.Unlock()
		return &river.ProtoError{Code: "NOT_FOUND", Message: "no value set for key " + req.K}
	}
	updates := make(chan float64, 1024)
	s.watchers[req.K] = append(s.watchers[req.K], updates)
	s.mu.Unlock()

	defer s.unwatch(req.K, updates)

	if err := emit(v); err != nil {
		return err
	}
	for {
		select {
		case v := <-updates:
			if err := emit(v); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *kvStore) unwatch(k string, ch chan float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watchers[k]
	for i, c := range list {
		if c == ch {
			s.watchers[k] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// echo is the bidi handler: it sends back whatever it receives, in order.
func echo(ctx context.Context, recv <-chan string, send func(string) error) error {
	for v := range recv {
		if err := send(v); err != nil {
			return err
		}
	}
	return nil
}

type uploadChunk struct {
	Part string `json:"part"`
}

// upload concatenates every chunk's Part field, skipping any chunk whose
// Part is the harness's own "EOF" sentinel value (distinct from River's protocol-level CLOSE
// frame, which the client/server plumbing already strips before this
// handler ever sees a chunk).
func upload(_ context.Context, chunks <-chan uploadChunk) (string, error) {
	var out string
	for c := range chunks {
		if c.Part == "EOF" {
			continue
		}
		out += c.Part
	}
	return out, nil
}
