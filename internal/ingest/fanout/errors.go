package fanout

import "github.com/cockroachdb/errors"

// ErrSlowConsumer é retornado (e usado para fechar a conexão) quando o
// buffer de envio de um assinante fica cheio por T_slow seguidos.
var ErrSlowConsumer = errors.New("fanout: slow consumer disconnected")

// ErrCatchupUnavailable é retornado quando um pedido de catch-up não é
// coberto pelo ring buffer e não há fallback de storage para ele: sem Store
// configurado, para fixture_closed ou para tipos sem leitura via storage.
// Um pedido anterior ao horizonte não recebe este erro; o fallback devolve
// os ticks que estão dentro do horizonte.
var ErrCatchupUnavailable = errors.New("fanout: catchup unavailable")

// ErrUnknownFixture é retornado quando um pedido referencia um fixture_id
// sem nenhum tópico conhecido pela bridge.
var ErrUnknownFixture = errors.New("fanout: unknown fixture topic")
