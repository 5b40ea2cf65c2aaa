package upstream

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client é um wrapper fino sobre os endpoints HTTP do provedor upstream.
// Toda chamada passa pelo Governor compartilhado e é retentada conforme a
// política em doWithRetry.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	key            string
	logger         *zap.Logger
	governor       *Governor
	requestTimeout time.Duration
	retryAttempts  int
	retryDelay     time.Duration
	maxBackoff     time.Duration
}

// ClientOption configura um Client no momento da construção.
type ClientOption func(*Client)

// WithHTTPClient sobrescreve o http.Client default.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sobrescreve o logger default.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = log }
}

// WithRequestTimeout define o deadline por requisição.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.requestTimeout = d }
}

// WithRetry define o número de tentativas, o delay base e o teto de backoff.
func WithRetry(attempts int, baseDelay, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = baseDelay
		c.maxBackoff = maxBackoff
	}
}

// NewClient constrói um Client contra baseURL, autenticando com key via
// header de segredo compartilhado, passando toda chamada pelo governor.
func NewClient(baseURL, key string, governor *Governor, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        strings.TrimRight(baseURL, "/"),
		key:            key,
		logger:         zap.NewNop(),
		governor:       governor,
		requestTimeout: 30 * time.Second,
		retryAttempts:  3,
		retryDelay:     time.Second,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maskedKey retorna o valor do header de segredo compartilhado com todos os
// caracteres mascarados exceto os últimos quatro, para uso em campos de log.
func (c *Client) maskedKey() string {
	if len(c.key) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(c.key)-4) + c.key[len(c.key)-4:]
}
