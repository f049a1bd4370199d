package dictionary

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// DefaultKanjidicURL is the EDRDG distribution of KANJIDIC2.
const DefaultKanjidicURL = "http://www.edrdg.org/kanjidic/kanjidic2.xml.gz"

// Downloader fetches a gzip-compressed dictionary when it is missing locally.
type Downloader struct {
	Client *http.Client
	Logger *zap.Logger
}

// EnsureDictionary downloads url to path unless path already exists.
// A ".gz" body is decompressed; anything else is written as-is.
func EnsureDictionary(ctx context.Context, path, url string) error {
	d := Downloader{}
	return d.Ensure(ctx, path, url)
}

// Ensure is EnsureDictionary with the downloader's client and logger.
func (d Downloader) Ensure(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		url = DefaultKanjidicURL
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("dictionary not found, downloading", zap.String("path", path), zap.String("url", url))
	return d.download(ctx, url, path)
}

func (d Downloader) download(ctx context.Context, url, destPath string) error {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "kanjisync-cli")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if isGzip(url, resp) {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create dictionary dir: %w", err)
	}
	// Write to a sibling temp file so a failed download never leaves a partial dictionary.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return os.Rename(tmp.Name(), destPath)
}

func isGzip(url string, resp *http.Response) bool {
	if filepath.Ext(url) == ".gz" {
		return true
	}
	switch resp.Header.Get("Content-Type") {
	case "application/gzip", "application/x-gzip":
		return true
	}
	return false
}
