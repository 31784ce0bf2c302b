// Package client talks to the collection API: it fetches project settings and
// posts upload batches, classifying every failure as transient or permanent.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"pulse/internal/constants"
	"pulse/internal/logger"
	"pulse/pkg/circuitbreaker"
	"pulse/pkg/errors"
	"pulse/pkg/jsoncodec"
)

type Config struct {
	WriteKey string
	APIHost  string
	CDNHost  string
	Timeout  time.Duration
	// Breaker guards uploads; nil disables it.
	Breaker *circuitbreaker.Config
}

type Client struct {
	httpClient *http.Client
	writeKey   string
	apiHost    string
	cdnHost    string
	breaker    *circuitbreaker.Wrapper
	log        logger.Logger
}

func New(cfg Config, log logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		writeKey:   cfg.WriteKey,
		apiHost:    cfg.APIHost,
		cdnHost:    cfg.CDNHost,
		log:        log,
	}

	if cfg.Breaker != nil {
		cbConfig := *cfg.Breaker
		cbConfig.IsSuccessful = func(err error) bool {
			return err == nil || errors.IsPermanentDelivery(err)
		}
		c.breaker = circuitbreaker.NewWrapper(cbConfig)
	}
	return c
}

// endpoint accepts hosts with or without a scheme; bare hosts use https.
func endpoint(host, path string) string {
	host = strings.TrimSuffix(host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + path
}

// FetchSettings downloads the project settings document for the write key.
func (c *Client) FetchSettings(ctx context.Context) (map[string]interface{}, error) {
	url := endpoint(c.cdnHost, "/projects/"+c.writeKey+"/settings")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ErrTransientDelivery.WithCause(fmt.Errorf("settings request failed: %w", err))
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ErrTransientDelivery.WithCause(fmt.Errorf("failed to read settings: %w", err))
	}

	settings, err := jsoncodec.UnmarshalMap(body)
	if err != nil {
		return nil, errors.ErrPermanentDelivery.WithCause(fmt.Errorf("failed to decode settings: %w", err))
	}
	return settings, nil
}

// Upload posts one serialized batch. host overrides the configured API host when set.
func (c *Client) Upload(ctx context.Context, host string, batch []byte) error {
	if host == "" {
		host = c.apiHost
	}
	if c.breaker == nil {
		return c.upload(ctx, host, batch)
	}

	_, err := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.upload(ctx, host, batch)
	})
	c.breaker.RecordRequest(err == nil)

	switch {
	case err == nil:
		return nil
	case circuitbreaker.IsRejection(err):
		return errors.ErrTransientDelivery.WithCause(err).WithDetail("breaker", c.breaker.Name())
	case ctx.Err() != nil && !errors.IsTransientDelivery(err) && !errors.IsPermanentDelivery(err):
		return errors.ErrTransientDelivery.WithCause(err)
	}
	return err
}

func (c *Client) upload(ctx context.Context, host string, batch []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(host, "/import"), bytes.NewReader(batch))
	if err != nil {
		return errors.ErrPermanentDelivery.WithCause(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.writeKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ErrTransientDelivery.WithCause(fmt.Errorf("upload request failed: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp)
}

// BreakerState reports the upload breaker state; closed when no breaker is configured.
func (c *Client) BreakerState() gobreaker.State {
	if c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= constants.HTTPStatusOKMin && code < constants.HTTPStatusOKMax {
		return nil
	}

	msg := fmt.Sprintf("server returned status %d", code)
	if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
		return errors.ErrTransientDelivery.WithMessage(msg).WithDetail("status", code)
	}
	return errors.ErrPermanentDelivery.WithMessage(msg).WithDetail("status", code)
}
