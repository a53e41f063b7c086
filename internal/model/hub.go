package model

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// ModelID is the pretrained extractive question-answering model the
	// terminal is built around.
	ModelID = "Xenova/distilbert-base-cased-distilled-squad"

	// DefaultHubURL is the asset host the model files are fetched from.
	DefaultHubURL = "https://huggingface.co"

	readChunk = 32 * 1024
)

// AssetError reports a non-200 response from the asset host.
type AssetError struct {
	File       string
	StatusCode int
	Message    string
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("fetch %s failed (status %d): %s", e.File, e.StatusCode, e.Message)
}

// ProgressStatus mirrors the lifecycle of one downloaded file.
type ProgressStatus string

const (
	StatusInitiate    ProgressStatus = "initiate"
	StatusDownloading ProgressStatus = "downloading"
	StatusDone        ProgressStatus = "done"
)

// ProgressEvent is reported while model files download. Total is zero when
// the host did not announce a content length.
type ProgressEvent struct {
	Status ProgressStatus
	File   string
	Loaded int64
	Total  int64
}

// Percent returns the rounded download percentage, or -1 when the total is
// unknown.
func (p ProgressEvent) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(float64(p.Loaded)/float64(p.Total)*100 + 0.5)
}

// ProgressFunc receives download progress. It is called from the loading
// goroutine.
type ProgressFunc func(ProgressEvent)

var (
	sharedHTTPClient *http.Client
	httpClientOnce   sync.Once
)

// getSharedHTTPClient returns the pooled client used for asset downloads.
func getSharedHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		sharedHTTPClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
			},
		}
	})
	return sharedHTTPClient
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Hub downloads model files from a Hugging Face style asset host.
type Hub struct {
	baseURL string
	client  Doer
	logger  *zap.Logger
}

// NewHub creates a hub client. An empty baseURL selects DefaultHubURL and a
// nil client selects the shared pooled client.
func NewHub(baseURL string, client Doer, logger *zap.Logger) *Hub {
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	if client == nil {
		client = getSharedHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// FileURL returns the download location of file within modelID. file may
// name a subdirectory such as onnx/model_quantized.onnx.
func (h *Hub) FileURL(modelID, file string) string {
	segments := strings.Split(file, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", h.baseURL, modelID, strings.Join(segments, "/"))
}

// Fetch downloads one file of modelID into memory, reporting byte progress
// as it reads.
func (h *Hub) Fetch(ctx context.Context, modelID, file string, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := h.copyTo(ctx, &buf, modelID, file, progress); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Download stores one file of modelID at dst. The body is written to a
// temporary sibling first so an interrupted download never leaves a
// truncated dst behind.
func (h *Hub) Download(ctx context.Context, modelID, file, dst string, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create cache dir for %s: %w", file, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", file, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := h.copyTo(ctx, tmp, modelID, file, progress); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("store %s: %w", file, err)
	}
	return nil
}

func (h *Hub) copyTo(ctx context.Context, w io.Writer, modelID, file string, progress ProgressFunc) (int64, error) {
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	fileURL := h.FileURL(modelID, file)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request for %s: %w", file, err)
	}

	h.logger.Info("fetching model file", zap.String("url", fileURL))
	progress(ProgressEvent{Status: StatusInitiate, File: file})

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &AssetError{File: file, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	buf := make([]byte, readChunk)
	var loaded int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return loaded, fmt.Errorf("write %s: %w", file, werr)
			}
			loaded += int64(n)
			progress(ProgressEvent{Status: StatusDownloading, File: file, Loaded: loaded, Total: total})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", file, err)
		}
	}

	progress(ProgressEvent{Status: StatusDone, File: file, Loaded: loaded, Total: total})
	h.logger.Info("fetched model file", zap.String("file", file), zap.Int64("bytes", loaded))
	return loaded, nil
}
