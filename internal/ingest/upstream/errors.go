package upstream

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrRateStalled é retornado quando nenhum crédito do rate governor ficou
// disponível antes do timeout do chamador.
var ErrRateStalled = errors.New("upstream: rate stalled")

// ErrUpstreamUnavailable é retornado quando as tentativas sob a política de
// retry se esgotaram.
var ErrUpstreamUnavailable = errors.New("upstream: unavailable")

// RejectedError encapsula uma resposta 4xx não retentável.
type RejectedError struct {
	Status int
	Body   []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream: rejected status=%d body=%s", e.Status, abbreviate(e.Body))
}

// MalformedError encapsula um erro de parse ou de formato. Nunca é retentado.
type MalformedError struct {
	Cause error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("upstream: malformed payload: %v", e.Cause)
}

func (e *MalformedError) Unwrap() error { return e.Cause }

func abbreviate(body []byte) []byte {
	const max = 256
	if len(body) <= max {
		return body
	}
	return body[:max]
}

func newRejected(status int, body []byte) error {
	return errors.Wrapf(&RejectedError{Status: status, Body: body}, "request rejected")
}

func newMalformed(cause error) error {
	return errors.Wrapf(&MalformedError{Cause: cause}, "payload decode")
}
