package fanout

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BrokerChannel é o canal Redis Pub/Sub usado para relay entre processos,
// grounded em odds-service/ws.PubSubChannel, generalizado de um canal fixo
// por-serviço para um único canal compartilhado carregando o fixture_id no
// envelope (o hub local já filtra por assinatura ao fazer broadcast).
const BrokerChannel = "fanout:messages"

// busEnvelope embrulha Message com o id do processo que a publicou, para
// que o próprio processo ignore o eco da sua publicação ao receber de
// volta pelo Pub/Sub.
type busEnvelope struct {
	Origin  string  `json:"origin"`
	Message Message `json:"message"`
}

// Broker faz o relay de mensagens do Hub entre processos via Redis
// Pub/Sub, generalizando odds-service/ws.StartRedisSubscriber (que assina
// um canal fixo e só sabe fazer Broadcast) para publicar também, e para
// filtrar o próprio eco via Origin.
type Broker struct {
	Log    *zap.Logger
	client *redis.Client
	origin string
}

// NewBroker constrói um Broker com um id de origem próprio, único por
// processo, usado para descartar o eco das próprias publicações.
func NewBroker(client *redis.Client, log *zap.Logger) *Broker {
	return &Broker{
		Log:    log,
		client: client,
		origin: uuid.NewString(),
	}
}

// Publish envia msg para os demais processos via Redis Pub/Sub.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	body, err := sonic.Marshal(busEnvelope{Origin: b.origin, Message: msg})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, BrokerChannel, body).Err()
}

// Subscribe assina BrokerChannel e entrega cada mensagem recebida de outro
// processo a hub.deliverLocal, até ctx ser cancelado. Mensagens cuja Origin
// é a deste próprio processo são descartadas: o Hub já as entregou
// localmente em Publish antes do relay.
func (b *Broker) Subscribe(ctx context.Context, hub *Hub) {
	sub := b.client.Subscribe(ctx, BrokerChannel)
	ch := sub.Channel()
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env busEnvelope
				if err := sonic.Unmarshal([]byte(m.Payload), &env); err != nil {
					if b.Log != nil {
						b.Log.Warn("fanout broker unmarshal failed", zap.Error(err))
					}
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				hub.deliverLocal(env.Message)
			}
		}
	}()
}
