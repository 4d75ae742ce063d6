/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/klauspost/compress/zstd"
)

// DefaultEndpoint is where SendData posts when given no endpoint.
const DefaultEndpoint = "/save_log"

var (
	ErrNoBaseURL  = errors.New("relative endpoint without base url")
	ErrSaveFailed = errors.New("server rejected log")
)

var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("session: zstd encoder initialization failed: " + err.Error())
	}
}

// SendData posts the data tree to endpoint. Failures are logged and
// returned; nothing is retried and the log is kept either way.
func (l *Logger) SendData(ctx context.Context, endpoint string) error {
	return l.PrepareSend(endpoint)(ctx)
}

// PrepareSend encodes the data tree now and returns a function that posts
// it. The returned function may run on any goroutine.
func (l *Logger) PrepareSend(endpoint string) func(ctx context.Context) error {
	body, encodeErr := l.Encode()
	return func(ctx context.Context) error {
		err := encodeErr
		if err == nil {
			err = l.post(ctx, endpoint, body)
		}
		if err != nil {
			l.logger.Error("error saving log data", "endpoint", endpoint, "err", err)
			return err
		}
		l.logger.Info("saved log data to the server", "endpoint", endpoint, "size", len(body))
		return nil
	}
}

func (l *Logger) post(ctx context.Context, endpoint string, body []byte) error {
	target, err := l.resolve(endpoint)
	if err != nil {
		return err
	}
	if l.compressed {
		body = zstdEncoder.EncodeAll(body, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	if l.compressed {
		req.Header.Set("Content-Encoding", "zstd")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("post log: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrSaveFailed, resp.Status)
	}
	return nil
}

func (l *Logger) resolve(endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if l.baseURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoBaseURL, endpoint)
	}
	base, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
