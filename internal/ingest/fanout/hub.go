// Package fanout implementa a bridge de fan-out: um hub WebSocket
// por-fixture com sequenciamento e catch-up, grounded no
// odds-service/ws/hub.go do teacher (conjunto de conexões por tópico) e no
// ConnectionManager do original_source, supplementado com o contrato de
// seq/catch-up/SlowConsumer que nenhum dos dois carrega.
package fanout

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// DefaultSendBuffer é a capacidade do canal de envio de cada assinante.
const DefaultSendBuffer = 64

// DefaultSlowConsumerGrace é quanto tempo o buffer de envio pode
// permanecer cheio antes de a conexão ser derrubada com ErrSlowConsumer.
const DefaultSlowConsumerGrace = 5 * time.Second

// CatchupStore é o subconjunto de leitura do tick store usado quando o
// ring buffer em memória não cobre o seq pedido; extraído como interface
// para permitir um fake nos testes sem Postgres.
type CatchupStore interface {
	OddsTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.OddsTick, error)
	EventTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.EventTick, error)
	StatTicksSince(ctx context.Context, fixtureID int64, since time.Time) ([]model.StatTick, error)
}

// Hub multicast mensagens de mudança para assinantes WebSocket, um tópico
// lógico por fixture, com um ring buffer por (fixture, type) para
// sequenciamento e catch-up recente.
type Hub struct {
	Log               *zap.Logger
	Store             CatchupStore
	Horizon           time.Duration
	SendBufferSize    int
	SlowConsumerGrace time.Duration
	RingSize          int
	// Broker, se definido, é usado para relay entre processos: toda
	// publicação local também é enviada ao broker, e mensagens recebidas
	// do broker (de outros processos) são entregues aos assinantes locais.
	Broker *Broker

	upgrader websocket.Upgrader

	mu            sync.RWMutex
	subsByFixture map[int64]map[*Subscriber]struct{}
	rings         map[topicKey]*ring
}

// NewHub constrói um Hub com a política de origem dada (CORS), no mesmo
// estilo de odds-service/ws.NewHub.
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader:      websocket.Upgrader{CheckOrigin: allowOrigin},
		subsByFixture: make(map[int64]map[*Subscriber]struct{}),
		rings:         make(map[topicKey]*ring),
	}
}

func (h *Hub) sendBuffer() int {
	if h.SendBufferSize > 0 {
		return h.SendBufferSize
	}
	return DefaultSendBuffer
}

func (h *Hub) slowGrace() time.Duration {
	if h.SlowConsumerGrace > 0 {
		return h.SlowConsumerGrace
	}
	return DefaultSlowConsumerGrace
}

func (h *Hub) horizon() time.Duration {
	if h.Horizon > 0 {
		return h.Horizon
	}
	return 2 * time.Minute
}

func (h *Hub) ringFor(key topicKey) *ring {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rings[key]
	if !ok {
		r = newRing(h.RingSize)
		h.rings[key] = r
	}
	return r
}

// Subscriber é uma conexão WebSocket inscrita em um ou mais fixtures. O
// canal send é consumido por uma goroutine de escrita dedicada: gorilla/
// websocket exige um único escritor por conexão.
type Subscriber struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}

	mu         sync.Mutex
	fullSince  time.Time
	disconnect chan error
}

func newSubscriber(id string, conn *websocket.Conn, bufSize int) *Subscriber {
	return &Subscriber{
		ID:         id,
		conn:       conn,
		send:       make(chan []byte, bufSize),
		closed:     make(chan struct{}),
		disconnect: make(chan error, 1),
	}
}

// enqueue tenta entregar b sem bloquear; se o buffer está cheio, registra
// desde quando, e se já excedeu grace, aciona o disconnect por
// SlowConsumer. Retorna false se a conexão já está (ou acaba de ficar)
// fechada.
func (s *Subscriber) enqueue(b []byte, grace time.Duration) bool {
	select {
	case s.send <- b:
		s.mu.Lock()
		s.fullSince = time.Time{}
		s.mu.Unlock()
		return true
	case <-s.closed:
		return false
	default:
	}

	s.mu.Lock()
	if s.fullSince.IsZero() {
		s.fullSince = time.Now()
	}
	full := s.fullSince
	s.mu.Unlock()

	if time.Since(full) >= grace {
		s.fail(ErrSlowConsumer)
		return false
	}
	return false
}

// fail marca a conexão para ser derrubada pela goroutine de leitura/escrita
// com a causa dada; close é idempotente.
func (s *Subscriber) fail(err error) {
	select {
	case s.disconnect <- err:
	default:
	}
	s.close()
}

// close fecha o sinal closed exatamente uma vez (o canal send não é
// fechado), fazendo writeLoop retornar e garantindo que nenhuma mensagem seja emitida em nome desta conexão após
// o dropping do handle (contrato de cancelamento em ≤1s).
func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// HandleWS gerencia o ciclo de vida completo de uma conexão: upgrade,
// subscribe/unsubscribe/catchup, e a goroutine de escrita que drena send.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := newSubscriber(uuid.NewString(), conn, h.sendBuffer())
	subscribed := make(map[int64]struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(sub)
	}()

readLoop:
	for {
		var req ClientRequest
		if err := conn.ReadJSON(&req); err != nil {
			break readLoop
		}
		switch req.Action {
		case ActionSubscribe:
			h.subscribe(sub, req.FixtureID)
			subscribed[req.FixtureID] = struct{}{}
		case ActionUnsubscribe:
			h.unsubscribe(sub, req.FixtureID)
			delete(subscribed, req.FixtureID)
		case ActionCatchup:
			h.serveCatchup(r.Context(), sub, req)
		}

		select {
		case <-sub.disconnect:
			break readLoop
		default:
		}
	}

	for fixtureID := range subscribed {
		h.unsubscribe(sub, fixtureID)
	}
	sub.close()
	_ = conn.Close()
	wg.Wait()
}

// writeLoop é a única goroutine permitida a chamar conn.WriteMessage para
// esta conexão, drenando sub.send até o handle ser fechado.
func (h *Hub) writeLoop(sub *Subscriber) {
	for {
		select {
		case <-sub.closed:
			return
		case b, ok := <-sub.send:
			if !ok {
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				sub.close()
				return
			}
		}
	}
}

func (h *Hub) subscribe(sub *Subscriber, fixtureID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subsByFixture[fixtureID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subsByFixture[fixtureID] = set
	}
	set[sub] = struct{}{}
}

// unsubscribe remove sub do tópico do fixture; dropar o handle (desconectar)
// tem o mesmo efeito para todos os fixtures inscritos, via o cleanup em
// HandleWS. Entrega futura para este sub para, no máximo, no próximo
// Publish em andamento.
func (h *Hub) unsubscribe(sub *Subscriber, fixtureID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subsByFixture[fixtureID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subsByFixture, fixtureID)
	}
}

// Publish carimba payload com o próximo seq de (fixtureID, msgType),
// grava no ring buffer correspondente, distribui aos assinantes locais e,
// se houver Broker configurado, relay para os demais processos.
func (h *Hub) Publish(fixtureID int64, msgType MessageType, payload any) Message {
	key := topicKey{fixtureID: fixtureID, msgType: msgType}
	r := h.ringFor(key)
	msg := Message{
		Type:      msgType,
		FixtureID: fixtureID,
		Seq:       r.nextSeq(),
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	r.push(msg)
	h.broadcast(msg)

	if h.Broker != nil {
		if err := h.Broker.Publish(context.Background(), msg); err != nil && h.Log != nil {
			h.Log.Warn("fanout broker publish failed", zap.Error(err))
		}
	}
	return msg
}

// deliverLocal entrega uma mensagem já sequenciada por outro processo
// (recebida via Broker) aos assinantes locais, sem reatribuir seq.
func (h *Hub) deliverLocal(msg Message) {
	key := topicKey{fixtureID: msg.FixtureID, msgType: msg.Type}
	h.ringFor(key).observe(msg)
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	set := h.subsByFixture[msg.FixtureID]
	subs := make([]*Subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	body, err := sonic.Marshal(msg)
	if err != nil {
		if h.Log != nil {
			h.Log.Warn("fanout marshal failed", zap.Error(err))
		}
		return
	}

	grace := h.slowGrace()
	for _, s := range subs {
		s.enqueue(body, grace)
	}
}

// serveCatchup atende um pedido de catch-up via Catchup (ring buffer em
// memória, com fallback para o storage dentro do horizonte configurado);
// um erro de Catchup, como ErrCatchupUnavailable, é enviado como mensagem
// catchup_error, já que o protocolo de push não tem um canal de erro
// separado.
func (h *Hub) serveCatchup(ctx context.Context, sub *Subscriber, req ClientRequest) {
	msgs, err := h.Catchup(ctx, req.FixtureID, req.Type, req.FromSeq)
	if err != nil {
		body, _ := sonic.Marshal(map[string]any{"type": "catchup_error", "fixture_id": req.FixtureID, "error": err.Error()})
		sub.enqueue(body, h.slowGrace())
		return
	}
	for _, m := range msgs {
		body, err := sonic.Marshal(m)
		if err != nil {
			continue
		}
		sub.enqueue(body, h.slowGrace())
	}
}

// Catchup retorna as mensagens de (fixtureID, msgType) com seq > fromSeq,
// servidas do ring buffer quando cobrem o pedido; caso contrário, para
// tipos com leitura via storage (odds/events/stats), reconstrói a partir
// do tick store os ticks dentro de Horizon, numerando sequencialmente a
// partir de fromSeq. fromSeq não é comparado ao horizonte: um pedido mais
// antigo que Horizon recebe, sem erro, apenas os ticks que estão dentro
// dele. Retorna ErrCatchupUnavailable quando não há Store configurado,
// para fixture_closed (que não é um tick) e para tipos sem leitura via
// storage.
func (h *Hub) Catchup(ctx context.Context, fixtureID int64, msgType MessageType, fromSeq uint64) ([]Message, error) {
	key := topicKey{fixtureID: fixtureID, msgType: msgType}
	r := h.ringFor(key)
	if msgs, ok := r.since(fromSeq); ok {
		return msgs, nil
	}

	if h.Store == nil || msgType == TypeFixtureClosed {
		return nil, ErrCatchupUnavailable
	}

	since := time.Now().Add(-h.horizon())
	var rows []any
	var err error
	switch msgType {
	case TypeOddsUpdate:
		ticks, e := h.Store.OddsTicksSince(ctx, fixtureID, since)
		err = e
		for _, t := range ticks {
			rows = append(rows, t)
		}
	case TypeEventUpdate:
		ticks, e := h.Store.EventTicksSince(ctx, fixtureID, since)
		err = e
		for _, t := range ticks {
			rows = append(rows, t)
		}
	case TypeStatsUpdate:
		ticks, e := h.Store.StatTicksSince(ctx, fixtureID, since)
		err = e
		for _, t := range ticks {
			rows = append(rows, t)
		}
	default:
		return nil, ErrCatchupUnavailable
	}
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(rows))
	seq := fromSeq
	for _, row := range rows {
		seq++
		out = append(out, Message{Type: msgType, FixtureID: fixtureID, Seq: seq, Timestamp: time.Now().UnixMilli(), Payload: row})
	}
	return out, nil
}
