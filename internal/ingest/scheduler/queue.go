package scheduler

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
)

// Envelope é a mensagem despachada a uma fila: qual job disparar, quando
// foi enfileirada e por quanto tempo a entrega ainda é válida. Uma
// mensagem cujo TTL expira antes do consumo é descartada e contada, nunca
// entregue ao worker pool.
type Envelope struct {
	JobName    string        `json:"job_name"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	TTL        time.Duration `json:"ttl"`
	Attempt    int           `json:"attempt"`
}

// Expired informa se o envelope já passou de seu TTL no instante now.
func (e Envelope) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.EnqueuedAt.Add(e.TTL))
}

// Queue é uma fila tipada por classe de carga, um par escritor/leitor
// kafka por queue, no mesmo estilo do NewWriter/NewReader/WriteJSON da
// camada internal/shared/kafka do teacher, com a checagem de TTL
// acrescentada no dequeue.
type Queue struct {
	Name   string
	Writer *kafka.Writer
	Reader *kafka.Reader

	// OnDropped é chamado para cada mensagem descartada por TTL expirado.
	OnDropped func(queue string, jobName string)
}

// NewQueue constrói uma Queue sobre um writer/reader kafka já apontados
// para o tópico da classe de carga correspondente.
func NewQueue(name string, w *kafka.Writer, r *kafka.Reader) *Queue {
	return &Queue{Name: name, Writer: w, Reader: r}
}

// Enqueue publica um envelope para o job dado, com o TTL informado.
func (q *Queue) Enqueue(ctx context.Context, jobName string, ttl time.Duration) error {
	env := Envelope{JobName: jobName, EnqueuedAt: time.Now(), TTL: ttl}
	body, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	return q.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(jobName), Value: body, Time: env.EnqueuedAt})
}

// Dequeue lê a próxima mensagem da fila; retorna ok=false (sem erro)
// quando a mensagem lida já expirou e foi descartada, para o chamador
// tentar a próxima sem tratar isso como falha.
func (q *Queue) Dequeue(ctx context.Context) (Envelope, bool, error) {
	m, err := q.Reader.ReadMessage(ctx)
	if err != nil {
		return Envelope{}, false, err
	}
	var env Envelope
	if err := sonic.Unmarshal(m.Value, &env); err != nil {
		return Envelope{}, false, err
	}
	if env.Expired(time.Now()) {
		if q.OnDropped != nil {
			q.OnDropped(q.Name, env.JobName)
		}
		return Envelope{}, false, nil
	}
	return env, true, nil
}
