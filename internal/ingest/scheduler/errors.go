package scheduler

import "github.com/cockroachdb/errors"

// ErrQueueFull é retornado por Dispatcher.Submit quando o pool da fila
// recusa a tarefa.
var ErrQueueFull = errors.New("scheduler: queue full")

// ErrTTLExpired marca uma mensagem descartada por ter ficado na fila além
// do seu per-message TTL; contada, nunca entregue ao worker pool.
var ErrTTLExpired = errors.New("scheduler: message ttl expired")

// ErrUnknownJob é retornado por Dispatcher.Submit para uma fila sem pool
// configurado.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// ErrJobDisabled é retornado quando um dispatch é tentado para um job cujo
// enabled flag está desligado; o chamador deve tratar como no-op, não como
// falha.
var ErrJobDisabled = errors.New("scheduler: job disabled")
