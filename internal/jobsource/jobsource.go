// Package jobsource reads job descriptions from files, stdin or web pages.
package jobsource

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/utils"
)

const (
	// Stdin is the source name that reads from standard input.
	Stdin = "-"
	// MinLength is the length below which a description is reported as suspiciously short.
	MinLength = 50

	userAgent       = "job-agent (+https://github.com/spigell/job-agent)"
	contentEncoding = "gzip"
	maxBodySize     = 5 << 20
)

// Loader resolves a job description source into plain text.
type Loader struct {
	HTTPClient *http.Client
	UserAgent  string
	Stdin      io.Reader
	logger     *zap.Logger
}

// New creates a loader reading stdin from os.Stdin.
func New(l *zap.Logger) *Loader {
	return &Loader{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: userAgent,
		Stdin:     os.Stdin,
		logger:    logger.Component(l, "jobsource"),
	}
}

// Load reads src, which is a file path, "-" for stdin or an http(s) URL.
// HTML content is reduced to its visible text. A description shorter than
// MinLength is returned with a warning.
func (l *Loader) Load(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", errors.New("job source is empty")
	}

	var (
		text string
		err  error
	)
	switch {
	case src == Stdin:
		text, err = l.readStdin()
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		text, err = l.fetch(ctx, src)
	default:
		text, err = readFile(src)
	}
	if err != nil {
		return "", err
	}

	text = utils.CollapseBlankLines(text)
	if text == "" {
		return "", fmt.Errorf("job description from %s is empty", src)
	}
	if len([]rune(text)) < MinLength {
		l.logger.Warn("job description is very short", zap.String("source", src), zap.Int("chars", len([]rune(text))))
	}

	l.logger.Debug("job description loaded", zap.String("source", src), zap.Int("chars", len(text)))
	return text, nil
}

func (l *Loader) readStdin() (string, error) {
	if l.Stdin == nil {
		return "", errors.New("stdin is not available")
	}
	data, err := io.ReadAll(io.LimitReader(l.Stdin, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read job description: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return HTMLText(bytes.NewReader(data))
	}
	return string(data), nil
}

func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", l.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	l.logger.Debug("make request", zap.String("url", url))
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch job description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch job description: bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("fetch job description: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read job description: %w", err)
	}

	if isHTML(resp.Header.Get("Content-Type"), data) {
		return HTMLText(bytes.NewReader(data))
	}
	return string(data), nil
}

func isHTML(contentType string, data []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
		return strings.HasPrefix(contentType, "text/html")
	}
	return false
}

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "main": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// HTMLText returns the visible text of an HTML page with scripts, styles and
// navigation removed. Block elements end a line; list items become bullets.
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript, nav, template, svg").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	writeText(&b, root)
	return utils.CollapseBlankLines(b.String()), nil
}

func writeText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		switch name {
		case "#text":
			b.WriteString(node.Text())
			return
		case "#comment":
			return
		}

		block := blockTags[name]
		if block {
			b.WriteByte('\n')
		}
		if name == "li" {
			b.WriteString("• ")
		}
		writeText(b, node)
		if block {
			b.WriteByte('\n')
		}
	})
}
