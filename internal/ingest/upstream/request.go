package upstream

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// get executa um GET com rate limit e retry contra path com query,
// decodificando o body JSON em target; um body que não parseia vira
// UpstreamMalformed. Campos obrigatórios ausentes não falham o Unmarshal:
// são verificados depois, pelo Validate de cada item em validateAll.
func (c *Client) get(ctx context.Context, path string, query url.Values, target any) error {
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(body, target); err != nil {
		return newMalformed(err)
	}
	return nil
}

// doWithRetry retenta falhas transientes (erro de rede, timeout, 5xx, 429)
// com backoff exponencial limitado por maxBackoff. Respostas 429 ainda
// respeitam o Retry-After como piso da espera. Respostas 4xx que não sejam
// 429 falham imediatamente, sem retry.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryDelay
	var retryAfterFloor time.Duration

	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff+1)))
			if jitter < retryAfterFloor {
				jitter = retryAfterFloor
			}
			retryAfterFloor = 0
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		if err := c.governor.Acquire(ctx); err != nil {
			return nil, err
		}

		body, retryAfter, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var rejected *RejectedError
		if errors.As(err, &rejected) {
			if rejected.Status != http.StatusTooManyRequests {
				return nil, err
			}
			retryAfterFloor = retryAfter
			if retryAfter > backoff {
				backoff = retryAfter
			}
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			return nil, err
		}
		// erro de rede, timeout ou 5xx: retenta conforme a política.
	}

	return nil, errors.Wrapf(ErrUpstreamUnavailable, "exhausted %d retries: %v", c.retryAttempts, lastErr)
}

// doRequest executa um único GET HTTP com o deadline por requisição
// configurado, retornando o body da resposta, ou um *RejectedError para
// respostas 4xx, ou um erro transiente simples para falhas de rede e
// respostas 5xx que o chamador deve retentar.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	fullURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-apisports-key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("upstream request failed", zap.String("path", path), zap.Error(err))
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, 0, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), newRejected(resp.StatusCode, raw)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, 0, newRejected(resp.StatusCode, raw)
	}
	// 5xx: transiente, retentado pelo chamador sob a mesma política de um
	// erro de rede ou timeout.
	return nil, 0, errors.Newf("upstream: server error status=%d", resp.StatusCode)
}

// parseRetryAfter interpreta o header Retry-After como segundos inteiros,
// retornando zero se ausente ou não parseável.
func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
