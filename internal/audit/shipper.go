// shipper.go forwards activity records to destinations outside the database
// (a SIEM webhook, a JSON-lines file) through the Shipper interface. Shipping
// is a copy: the activity_logs table stays the record of truth.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sports-federation/federation-portal/internal/config"
	"github.com/sports-federation/federation-portal/internal/db/models"
)

// ShipEntry is the wire form of an activity record sent to shippers.
type ShipEntry struct {
	ID          string                 `json:"id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Action      string                 `json:"action"`
	ActorUserID string                 `json:"actor_user_id,omitempty"`
	EntityType  string                 `json:"entity_type"`
	EntityID    string                 `json:"entity_id,omitempty"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	Persisted   bool                   `json:"persisted"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func newShipEntry(log *models.ActivityLog, persisted bool) *ShipEntry {
	e := &ShipEntry{
		ID:         log.ID,
		Timestamp:  log.CreatedAt,
		Action:     log.Action,
		EntityType: log.EntityType,
		IPAddress:  log.IPAddress,
		UserAgent:  log.UserAgent,
		Persisted:  persisted,
		Metadata:   log.Metadata,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if log.ActorUserID != nil {
		e.ActorUserID = *log.ActorUserID
	}
	if log.EntityID != nil {
		e.EntityID = *log.EntityID
	}
	return e
}

// Shipper defines the interface for activity log shipping
type Shipper interface {
	// Ship sends an entry to the destination
	Ship(ctx context.Context, entry *ShipEntry) error
	// Close flushes and releases resources
	Close() error
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper creates a shipper for every enabled config entry.
// It returns (nil, nil) when none are enabled.
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil || cfg.Webhook.URL == "" {
				return nil, fmt.Errorf("webhook config with a url is required for webhook shipper")
			}
			shipper = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil || cfg.File.Path == "" {
				return nil, fmt.Errorf("file config with a path is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.shippers = append(ms.shippers, shipper)
	}

	if len(ms.shippers) == 0 {
		return nil, nil
	}
	return ms, nil
}

// Ship sends an entry to all configured shippers. One failing destination
// does not stop delivery to the others.
func (ms *MultiShipper) Ship(ctx context.Context, entry *ShipEntry) error {
	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	var errs []error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookShipper POSTs entries as JSON to a URL, optionally in batches.
type WebhookShipper struct {
	url       string
	headers   map[string]string
	batchSize int
	flush     time.Duration
	timeout   time.Duration
	client    *http.Client

	batchCh   chan *ShipEntry
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a new webhook shipper. When BatchSize > 0 a
// background loop collects entries and sends them as a JSON array.
func NewWebhookShipper(cfg *config.AuditWebhookConfig) *WebhookShipper {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = 5 * time.Second
	}

	ws := &WebhookShipper{
		url:       cfg.URL,
		headers:   cfg.Headers,
		batchSize: cfg.BatchSize,
		flush:     flush,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		batchCh:   make(chan *ShipEntry, 1000),
		closeCh:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	if ws.batchSize > 0 {
		go ws.processBatches()
	} else {
		close(ws.done)
	}
	return ws
}

func (ws *WebhookShipper) processBatches() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.flush)
	defer ticker.Stop()

	batch := make([]*ShipEntry, 0, ws.batchSize)
	send := func() {
		if len(batch) == 0 {
			return
		}
		if err := ws.post(batch); err != nil {
			slog.Error("audit webhook: failed to send batch", "size", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-ws.batchCh:
			batch = append(batch, entry)
			if len(batch) >= ws.batchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.batchCh:
					batch = append(batch, entry)
				default:
					send()
					return
				}
			}
		}
	}
}

// Ship queues the entry when batching, otherwise sends it immediately.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *ShipEntry) error {
	if ws.batchSize > 0 {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
			// Queue full, send directly
		}
	}
	return ws.postContext(ctx, entry)
}

func (ws *WebhookShipper) post(payload interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
	defer cancel()
	return ws.postContext(ctx, payload)
}

func (ws *WebhookShipper) postContext(ctx context.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close flushes any queued batch and stops the background loop.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	<-ws.done
	return nil
}

// FileShipper appends entries as JSON lines to a file, rotating it to
// <path>.1 when it grows past MaxSizeMB.
type FileShipper struct {
	path    string
	maxSize int64
	file    *os.File
	mu      sync.Mutex
}

// NewFileShipper creates a new file shipper
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{
		path:    cfg.Path,
		maxSize: int64(cfg.MaxSizeMB) * 1024 * 1024,
		file:    file,
	}, nil
}

// Ship writes an entry to the file
func (fs *FileShipper) Ship(_ context.Context, entry *ShipEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxSize > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size()+int64(len(data)) > fs.maxSize {
			if err := fs.rotate(); err != nil {
				slog.Error("audit file: rotation failed", "path", fs.path, "error", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(fs.path, fs.path+".1"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	file, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
