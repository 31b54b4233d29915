package loki

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	flushEvery     = 1 * time.Second
	flushAtEntries = 20
)

// Writer buffers log lines and sends them to Loki's push API. It satisfies
// zapcore.WriteSyncer so it can be tee'd into the service logger.
type Writer struct {
	url    string
	labels map[string]string
	client *http.Client
	mu     sync.Mutex
	buf    []entry
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

type entry struct {
	ts   string
	line string
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// NewWriter returns a Writer that sends logs to the given Loki base URL (e.g. http://loki:3100).
// job is the stream label. If url or job is empty, returns nil.
func NewWriter(url, job string, extraLabels map[string]string) *Writer {
	if url == "" || job == "" {
		return nil
	}
	labels := map[string]string{"job": job}
	for k, v := range extraLabels {
		labels[k] = v
	}
	w := &Writer{
		url:    strings.TrimSuffix(url, "/") + "/loki/api/v1/push",
		labels: labels,
		client: &http.Client{Timeout: 5 * time.Second},
		buf:    make([]entry, 0, 64),
		ticker: time.NewTicker(flushEvery),
		done:   make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

// Write implements io.Writer. Each line (newline-separated) is buffered and sent to Loki.
func (w *Writer) Write(p []byte) (n int, err error) {
	n = len(p)
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.mu.Lock()
		w.buf = append(w.buf, entry{
			ts:   strconv.FormatInt(time.Now().UnixNano(), 10),
			line: string(line),
		})
		needFlush := len(w.buf) >= flushAtEntries
		w.mu.Unlock()
		if needFlush {
			w.flush()
		}
	}
	return n, nil
}

// Sync pushes whatever is buffered.
func (w *Writer) Sync() error {
	return w.flush()
}

func (w *Writer) flushLoop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.ticker.C:
			_ = w.flush()
		}
	}
}

func (w *Writer) flush() error {
	w.mu.Lock()
	if len(w.buf) == 0 {
		w.mu.Unlock()
		return nil
	}
	entries := w.buf
	w.buf = make([]entry, 0, 64)
	w.mu.Unlock()

	values := make([][]string, len(entries))
	for i, e := range entries {
		values[i] = []string{e.ts, e.line}
	}
	raw, err := json.Marshal(pushRequest{Streams: []stream{{Stream: w.labels, Values: values}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Close flushes remaining buffer and stops the background flusher.
func (w *Writer) Close() error {
	var err error
	w.once.Do(func() {
		w.ticker.Stop()
		close(w.done)
		err = w.flush()
	})
	return err
}
