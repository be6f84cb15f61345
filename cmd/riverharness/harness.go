package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/riverrpc/river/client"
)

// action is one line of the harness's ndjson input, per spec §6.
type action struct {
	ID      string          `json:"id"`
	Proc    string          `json:"proc"`
	Init    json.RawMessage `json:"init,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type setReq struct {
	K string  `json:"k"`
	V float64 `json:"v"`
}

type watchReq struct {
	K string `json:"k"`
}

type uploadChunk struct {
	Part string `json:"part"`
}

// harness drives a client.Dispatcher from ndjson actions, tracking the
// in-flight streamed calls (repeat.echo, upload.send) that span more than
// one input line by action id.
type harness struct {
	d *client.Dispatcher

	outMu sync.Mutex
	out   *bufio.Writer

	mu      sync.Mutex
	echoes  map[string]*client.Stream[string, string]
	uploads map[string]*client.Upload[uploadChunk, string]
}

func newHarness(d *client.Dispatcher) *harness {
	return &harness{
		d:       d,
		echoes:  make(map[string]*client.Stream[string, string]),
		uploads: make(map[string]*client.Upload[uploadChunk, string]),
	}
}

func (h *harness) run(r io.Reader, w io.Writer) error {
	h.out = bufio.NewWriter(w)
	defer h.out.Flush()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var a action
		if err := json.Unmarshal(line, &a); err != nil {
			continue
		}
		h.dispatch(a)
	}
	return scanner.Err()
}

func (h *harness) dispatch(a action) {
	switch a.Proc {
	case "kv.set":
		go h.handleSet(a)
	case "kv.watch":
		go h.handleWatch(a)
	case "repeat.echo":
		h.handleEcho(a)
	case "upload.send":
		h.handleUpload(a)
	default:
		h.writeResult(a.ID, result{err: "NOT_IMPLEMENTED"})
	}
}

type result struct {
	ok  string
	err string
}

func (h *harness) writeResult(id string, r result) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	if r.err != "" {
		fmt.Fprintf(h.out, "%s -- err:%s\n", id, r.err)
	} else {
		fmt.Fprintf(h.out, "%s -- ok:%s\n", id, r.ok)
	}
	h.out.Flush()
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

func (h *harness) handleSet(a action) {
	var req setReq
	if err := json.Unmarshal(a.Payload, &req); err != nil {
		h.writeResult(a.ID, result{err: "PROTOCOL_VIOLATION"})
		return
	}
	res := client.Call[setReq, float64](context.Background(), h.d, "kv", "set", req)
	if !res.OK() {
		h.writeResult(a.ID, result{err: res.Err.Code})
		return
	}
	h.writeResult(a.ID, result{ok: formatNumber(res.Value)})
}

func (h *harness) handleWatch(a action) {
	var req watchReq
	if err := json.Unmarshal(a.Payload, &req); err != nil {
		h.writeResult(a.ID, result{err: "PROTOCOL_VIOLATION"})
		return
	}
	sub, err := client.Subscribe[watchReq, float64](h.d, "kv", "watch", req)
	if err != nil {
		h.writeResult(a.ID, result{err: "UNEXPECTED_DISCONNECT"})
		return
	}
	for item := range sub.Items() {
		if !item.OK() {
			h.writeResult(a.ID, result{err: item.Err.Code})
			return
		}
		h.writeResult(a.ID, result{ok: formatNumber(item.Value)})
	}
}

func (h *harness) handleEcho(a action) {
	h.mu.Lock()
	st, ok := h.echoes[a.ID]
	if !ok {
		var err error
		st, err = client.OpenStream[string, string](h.d, "repeat", "echo")
		if err != nil {
			h.mu.Unlock()
			h.writeResult(a.ID, result{err: "UNEXPECTED_DISCONNECT"})
			return
		}
		h.echoes[a.ID] = st
		go h.drainEcho(a.ID, st)
	}
	h.mu.Unlock()

	if len(a.Payload) == 0 {
		return
	}
	var v string
	if err := json.Unmarshal(a.Payload, &v); err != nil {
		return
	}
	_ = st.Send(v)
}

func (h *harness) drainEcho(id string, st *client.Stream[string, string]) {
	for {
		res, open := st.Recv()
		if !open {
			h.mu.Lock()
			delete(h.echoes, id)
			h.mu.Unlock()
			return
		}
		if !res.OK() {
			h.writeResult(id, result{err: res.Err.Code})
			continue
		}
		h.writeResult(id, result{ok: res.Value})
	}
}

func (h *harness) handleUpload(a action) {
	h.mu.Lock()
	up, ok := h.uploads[a.ID]
	if !ok {
		var err error
		up, err = client.StartUpload[uploadChunk, string](h.d, "upload", "send")
		if err != nil {
			h.mu.Unlock()
			h.writeResult(a.ID, result{err: "UNEXPECTED_DISCONNECT"})
			return
		}
		h.uploads[a.ID] = up
	}
	h.mu.Unlock()

	var chunk uploadChunk
	if err := json.Unmarshal(a.Payload, &chunk); err != nil {
		return
	}
	if chunk.Part == "EOF" {
		h.mu.Lock()
		delete(h.uploads, a.ID)
		h.mu.Unlock()

		res := up.Finish(context.Background())
		if !res.OK() {
			h.writeResult(a.ID, result{err: res.Err.Code})
			return
		}
		h.writeResult(a.ID, result{ok: res.Value})
		return
	}
	_ = up.Send(chunk)
}
