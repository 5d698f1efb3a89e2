// Package media pulls message attachments into the sandbox before a turn
// starts, so the agent's instructions can reference the uploaded paths.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/haasonsaas/gifsmith/internal/sandbox"
	"github.com/haasonsaas/gifsmith/pkg/models"
)

// dataDir is the fixed in-sandbox directory attachments are written to.
const dataDir = "/data"

// maxAttachmentBytes bounds a single attachment download.
const maxAttachmentBytes = 50 * 1024 * 1024

// imageTypes is the allow-list of Slack filetype tags accepted for
// ingestion. Everything else is skipped silently.
var imageTypes = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
}

// Ingestor downloads Slack attachments and writes them into sandboxes.
type Ingestor struct {
	httpClient *http.Client
	botToken   string
	logger     *slog.Logger
}

// NewIngestor builds an ingestor using the bot token for authenticated
// downloads. A nil httpClient falls back to http.DefaultClient.
func NewIngestor(botToken string, httpClient *http.Client, logger *slog.Logger) *Ingestor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		httpClient: httpClient,
		botToken:   botToken,
		logger:     logger.With("component", "media"),
	}
}

// Ingest filters attachments to supported image types, downloads each one
// with bearer auth, and writes it into the sandbox's private data directory
// under its declared name. Unsupported types and attachments without a URL
// are skipped, not failed; a download or sandbox write failure aborts the
// whole ingestion because the turn's prompt will reference the paths.
func (i *Ingestor) Ingest(ctx context.Context, env sandbox.Environment, attachments []models.Attachment) ([]string, error) {
	var uploaded []string
	for _, att := range attachments {
		filetype := strings.ToLower(strings.TrimSpace(att.Filetype))
		if !imageTypes[filetype] {
			i.logger.Debug("skipping unsupported attachment", "filetype", att.Filetype, "name", att.Name)
			continue
		}
		if strings.TrimSpace(att.URL) == "" {
			continue
		}

		data, err := i.download(ctx, att.URL)
		if err != nil {
			return nil, fmt.Errorf("media: download %s: %w", att.Name, err)
		}

		name := path.Base(strings.TrimSpace(att.Name))
		if name == "" || name == "." || name == "/" {
			name = "image." + filetype
		}
		dest := path.Join(dataDir, name)

		if err := env.WriteFile(ctx, dest, data); err != nil {
			return nil, fmt.Errorf("media: stage %s: %w", name, err)
		}
		uploaded = append(uploaded, dest)
	}
	return uploaded, nil
}

func (i *Ingestor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+i.botToken)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}
	return data, nil
}
