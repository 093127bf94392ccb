package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/log"
)

const batchesEndpoint = "/v1/ingest/batches"

// Supported body encodings.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// Metadata provides context for the send operation.
// This information is included in HTTP headers for server-side tracking.
type Metadata struct {
	// Hostname is the agent's hostname
	Hostname string

	// AuthKey is the API authentication key
	AuthKey string

	// ServiceURL is the base URL of the ingestion service
	ServiceURL string

	// Compression is one of none, gzip or zstd. Empty means none.
	Compression string
}

// Sink implements ports.Sink by POSTing JSON payloads.
type Sink struct {
	client   ports.HTTPClient
	metadata Metadata
	logger   log.Logger
	zstd     *zstd.Encoder
}

// NewSink creates a new HTTP sink.
func NewSink(client ports.HTTPClient, metadata Metadata, logger log.Logger) (*Sink, error) {
	s := &Sink{
		client:   client,
		metadata: metadata,
		logger:   logger,
	}
	switch metadata.Compression {
	case "", CompressionNone, CompressionGzip:
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.zstd = enc
	default:
		return nil, fmt.Errorf("unsupported compression %q", metadata.Compression)
	}
	return s, nil
}

func (s *Sink) Name() string { return "http" }

// Send transmits one payload to the remote service.
func (s *Sink) Send(ctx context.Context, p *domain.Payload) error {
	if p.EventCount() == 0 {
		return nil
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	body, encoding, err := s.encode(raw)
	if err != nil {
		return err
	}

	// Build request
	url := s.metadata.ServiceURL + batchesEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if s.metadata.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.metadata.AuthKey)
	}
	req.Header.Set("X-Agent-Hostname", s.metadata.Hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	req.Header.Set("X-Telship-Payload-Id", p.ID)

	// Send request
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Check response
	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug("payload sent",
		log.String("payload_id", p.ID),
		log.Int("events", p.EventCount()),
		log.Int("body_bytes", len(body)),
	)
	return nil
}

func (s *Sink) encode(raw []byte) ([]byte, string, error) {
	switch {
	case s.zstd != nil:
		return s.zstd.EncodeAll(raw, make([]byte, 0, len(raw)/2)), CompressionZstd, nil
	case s.metadata.Compression == CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, "", fmt.Errorf("gzip payload: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, "", fmt.Errorf("gzip payload: %w", err)
		}
		return buf.Bytes(), CompressionGzip, nil
	default:
		return raw, "", nil
	}
}

// Close releases the encoder. The HTTP client is owned by the caller.
func (s *Sink) Close() error {
	if s.zstd != nil {
		return s.zstd.Close()
	}
	return nil
}

var _ ports.Sink = (*Sink)(nil)
