package scheduler

import (
	"context"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Dispatcher mantém um ants.Pool dedicado por classe de carga, cada um
// com sua própria concorrência limitada e seu próprio cap de memória
// governado pelo tamanho do pool, no mesmo padrão de
// riskibarqy-fantasy-league/internal/usecase/resync_service.go's
// ants.NewPool(workerCount), generalizado de um pool único para um por
// fila.
type Dispatcher struct {
	Log   *zap.Logger
	pools map[string]*ants.Pool
}

// QueueConcurrency é a concorrência default de cada classe de carga,
// deliberadamente menor para filas de baixa prioridade (manutenção) e
// maior para as que alimentam C3/C4.
var QueueConcurrency = map[string]int{
	QueueLive:        5,
	QueueFixtures:    3,
	QueuePrematch:    3,
	QueueFrames:      2,
	QueueFinalizer:   2,
	QueueMaintenance: 1,
}

// NewDispatcher cria um pool por classe de carga conhecida.
func NewDispatcher(log *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{Log: log, pools: make(map[string]*ants.Pool, len(QueueConcurrency))}
	for queue, n := range QueueConcurrency {
		pool, err := ants.NewPool(n)
		if err != nil {
			d.Release()
			return nil, err
		}
		d.pools[queue] = pool
	}
	return d, nil
}

// Submit despacha fn no pool da fila dada. Os pools usam o modo bloqueante
// default do ants: com todos os workers ocupados, Submit espera um worker
// livre em vez de recusar ou descartar a tarefa. Retorna ErrUnknownJob para
// uma fila sem pool e ErrQueueFull quando o ants recusa a tarefa (por
// exemplo, com o pool já liberado).
func (d *Dispatcher) Submit(_ context.Context, queue string, fn func()) error {
	pool, ok := d.pools[queue]
	if !ok {
		return ErrUnknownJob
	}
	if err := pool.Submit(fn); err != nil {
		return ErrQueueFull
	}
	return nil
}

// Release libera todos os pools; chamado no shutdown gracioso.
func (d *Dispatcher) Release() {
	for _, pool := range d.pools {
		pool.Release()
	}
}

// QueueDepth é a profundidade observada de uma fila de despacho: quantas
// tarefas estão em execução frente à capacidade configurada do pool.
type QueueDepth struct {
	Running  int `json:"running"`
	Capacity int `json:"capacity"`
}

// Depths retorna a profundidade corrente de cada fila, usada pelo probe de
// saúde do operador.
func (d *Dispatcher) Depths() map[string]QueueDepth {
	depths := make(map[string]QueueDepth, len(d.pools))
	for queue, pool := range d.pools {
		depths[queue] = QueueDepth{Running: pool.Running(), Capacity: pool.Cap()}
	}
	return depths
}
