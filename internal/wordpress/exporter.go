// Package wordpress downloads full WXR exports of WordPress channels that sit
// behind a CAS single sign-on.
package wordpress

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/xmlstats"
)

const (
	exportPath = "/wp-admin/export.php"
	// WXR documents open with an XML prolog and comments; the root element
	// must appear within this many bytes.
	sniffLimit = 64 * 1024
)

// Credentials are the CAS username and password
type Credentials struct {
	Username string
	Password string
}

// Options configures an Exporter
type Options struct {
	CASLoginURL string
	Timeout     time.Duration
	Logger      *slog.Logger
	// Transport overrides the HTTP transport, mainly for tests
	Transport http.RoundTripper
}

// Exporter logs in through CAS and downloads channel exports
type Exporter struct {
	opts   Options
	logger *slog.Logger
}

// NewExporter creates a new exporter
func NewExporter(opts Options) *Exporter {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: logger.With("component", "wordpress")}
}

// ExportURL returns the export endpoint of a channel
func ExportURL(channelURL string) string {
	return strings.TrimRight(channelURL, "/") + exportPath
}

// Export downloads the full export of channelURL to destPath and counts its
// markers. Nothing is written to destPath unless the download succeeded.
func (e *Exporter) Export(ctx context.Context, channelURL string, creds Credentials, destPath string) (domain.ContentStats, error) {
	var stats domain.ContentStats

	session, err := e.newSession()
	if err != nil {
		return stats, apperrors.NewExportError("cannot create http session", err)
	}

	target := ExportURL(channelURL)
	e.logger.Info("logging in to WordPress", "channel", channelURL)
	if err := e.login(ctx, session, target, creds); err != nil {
		return stats, err
	}

	e.logger.Info("exporting WordPress channel", "channel", channelURL)
	if err := e.download(ctx, session, target, destPath); err != nil {
		return stats, err
	}

	stats, err = xmlstats.CountFile(destPath)
	if err != nil {
		return stats, apperrors.NewExportError("cannot scan export", err)
	}
	e.logger.Info("export saved", "path", destPath,
		"itemsets", stats.ItemSets, "items", stats.Items, "media", stats.Media)
	return stats, nil
}

type session struct {
	follow   *http.Client
	noFollow *http.Client
}

func (e *Exporter) newSession() (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	transport := e.opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &session{
		follow: &http.Client{Jar: jar, Timeout: e.opts.Timeout, Transport: transport},
		noFollow: &http.Client{
			Jar:       jar,
			Timeout:   e.opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (e *Exporter) download(ctx context.Context, s *session, target, destPath string) error {
	u, err := url.Parse(target)
	if err != nil {
		return apperrors.NewExportError("invalid channel url", err)
	}
	u.RawQuery = url.Values{"download": {"true"}, "content": {"all"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return apperrors.NewExportError("cannot build export request", err)
	}
	resp, err := s.follow.Do(req)
	if err != nil {
		return apperrors.NewExportError("export request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewExportError(fmt.Sprintf("export returned status %d", resp.StatusCode), nil)
	}

	body := bufio.NewReaderSize(resp.Body, sniffLimit)
	head, err := body.Peek(sniffLimit)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return apperrors.NewExportError("cannot read export", err)
	}
	if !bytes.Contains(head, []byte("<rss")) {
		return apperrors.NewExportError("export is not a WXR document", nil)
	}

	if err := writeAtomic(destPath, body); err != nil {
		return apperrors.NewExportError(fmt.Sprintf("cannot save export to %s", destPath), err)
	}
	return nil
}

// writeAtomic streams r into a temporary file beside path and renames it
func writeAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
