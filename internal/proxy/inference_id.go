package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HeaderInferenceID carries the upstream completion ID back to the client so
// usage can be reconciled without parsing the body.
const HeaderInferenceID = "Inference-Id"

const scanReadSize = 4096

// Extractor pulls the completion ID out of provider responses and surfaces it
// as a response header. For JSON responses the body is read and replayed; for
// SSE streams only a bounded prefix is scanned so the client still receives
// the stream live, byte for byte.
type Extractor struct {
	logger *zap.Logger

	// chunkLimit caps how many reads are scanned for an ID before giving up.
	chunkLimit int
	// readTimeout bounds each individual read from the provider stream.
	readTimeout time.Duration
}

func NewExtractor(logger *zap.Logger, chunkLimit int, readTimeout time.Duration) *Extractor {
	if chunkLimit <= 0 {
		chunkLimit = 5
	}
	return &Extractor{logger: logger, chunkLimit: chunkLimit, readTimeout: readTimeout}
}

// Augment inspects resp, sets Inference-Id when an ID is found, and replaces
// resp.Body with a reader that yields exactly the bytes the provider sent.
// Error responses pass through untouched. The returned response owns the body;
// closing it closes the provider stream exactly once.
func (e *Extractor) Augment(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		e.augmentStream(resp)
		return resp, nil
	}
	return resp, e.augmentJSON(resp)
}

// augmentJSON buffers the complete body, extracts the top-level "id", and
// replays the original bytes unchanged.
func (e *Extractor) augmentJSON(resp *http.Response) error {
	body, err := io.ReadAll(&timedBody{rc: resp.Body, timeout: e.readTimeout})
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("provider returned invalid JSON: %w", err)
	}
	if payload.ID == "" {
		e.logger.Warn("provider response has no completion id")
		return nil
	}
	resp.Header.Set(HeaderInferenceID, payload.ID)
	return nil
}

// augmentStream scans up to chunkLimit reads of the SSE stream for a data
// event carrying an "id", then hands the client a body that replays the
// scanned prefix before forwarding the rest of the live stream.
func (e *Extractor) augmentStream(resp *http.Response) {
	src := &timedBody{rc: resp.Body, timeout: e.readTimeout}

	var (
		scanned  []byte
		parsed   int // offset into scanned up to which events were consumed
		id       string
		scanErr  error
		buf      = make([]byte, scanReadSize)
		maxReads = e.chunkLimit
	)

	for read := 0; read < maxReads && id == ""; read++ {
		n, err := src.Read(buf)
		if n > 0 {
			scanned = append(scanned, buf[:n]...)
			id, parsed = scanEvents(scanned, parsed)
		}
		if err != nil {
			scanErr = err
			break
		}
	}

	if id != "" {
		resp.Header.Set(HeaderInferenceID, id)
	} else {
		e.logger.Warn("no completion id within scan window",
			zap.Int("bytes_scanned", len(scanned)),
			zap.Int("chunk_limit", maxReads),
		)
	}

	// Streams have no fixed length once we interpose a reader.
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Body = &replayBody{
		replay: bytes.NewReader(scanned),
		src:    src,
		srcErr: scanErr,
	}
}

// scanEvents parses complete SSE data lines in buf starting at offset and
// returns the first completion ID found plus the new offset. Lines are only
// inspected once their terminating newline has arrived, so a JSON payload
// split across reads is retried on the next call.
func scanEvents(buf []byte, offset int) (string, int) {
	for {
		idx := bytes.IndexByte(buf[offset:], '\n')
		if idx < 0 {
			return "", offset
		}
		line := string(bytes.TrimRight(buf[offset:offset+idx], "\r"))
		offset += idx + 1

		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var event struct {
			ID string `json:"id"`
		}
		// Unparsable events are skipped, not fatal; the stream itself is
		// forwarded regardless.
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if event.ID != "" {
			return event.ID, offset
		}
	}
}

// replayBody yields the scanned prefix first, then the rest of the live
// stream. An error observed during scanning (including EOF) is delivered to
// the client in order, after the replayed bytes.
type replayBody struct {
	replay *bytes.Reader
	src    io.ReadCloser
	srcErr error

	closeOnce sync.Once
	closeErr  error
}

func (b *replayBody) Read(p []byte) (int, error) {
	if b.replay.Len() > 0 {
		return b.replay.Read(p)
	}
	if b.srcErr != nil {
		return 0, b.srcErr
	}
	return b.src.Read(p)
}

func (b *replayBody) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.src.Close()
	})
	return b.closeErr
}

// timedBody enforces a per-read deadline by closing the underlying stream
// when a read stalls past the timeout.
type timedBody struct {
	rc      io.ReadCloser
	timeout time.Duration

	timedOut  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (t *timedBody) Read(p []byte) (int, error) {
	if t.timeout <= 0 {
		return t.rc.Read(p)
	}

	timer := time.AfterFunc(t.timeout, func() {
		t.timedOut.Store(true)
		t.Close()
	})
	n, err := t.rc.Read(p)
	timer.Stop()

	if err != nil && t.timedOut.Load() {
		return n, fmt.Errorf("stream read timed out after %s", t.timeout)
	}
	return n, err
}

func (t *timedBody) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.rc.Close()
	})
	return t.closeErr
}
