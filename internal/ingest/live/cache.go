// Package live implementa o loop de ingestão em tempo real: due-set,
// pull-plan por staleness, dispatch num pool limitado e o bookkeeping de
// cooldown por (fixture, kind) cacheado no Redis.
package live

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// Cache mantém last_pulled e o contador de falhas consecutivas por
// (fixture, kind) no Redis, com a mesma chave namespaced por ":" do cache
// de odds correntes do processador.
type Cache struct {
	Client *redis.Client
}

// NewCache cria um Cache sobre um cliente Redis já conectado.
func NewCache(c *redis.Client) *Cache {
	return &Cache{Client: c}
}

func lastPulledKey(fixtureID int64, kind model.TickKind) string {
	return "live:last_pulled:" + strconv.FormatInt(fixtureID, 10) + ":" + string(kind)
}

func failKey(fixtureID int64, kind model.TickKind) string {
	return "live:fail:" + strconv.FormatInt(fixtureID, 10) + ":" + string(kind)
}

func cooldownKey(fixtureID int64, kind model.TickKind) string {
	return "live:cooldown:" + strconv.FormatInt(fixtureID, 10) + ":" + string(kind)
}

// lastPulledTTL é generosa o bastante para sobreviver a um reinício do
// worker sem perder o estado de staleness; ausência da chave é tratada
// como "nunca puxado", que sempre entra no due set.
const lastPulledTTL = 2 * time.Hour

// LastPulled retorna o instante do último pull bem-sucedido de (fixture,
// kind), e false se nunca houve um.
func (c *Cache) LastPulled(ctx context.Context, fixtureID int64, kind model.TickKind) (time.Time, bool, error) {
	raw, err := c.Client.Get(ctx, lastPulledKey(fixtureID, kind)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unixNano, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, unixNano), true, nil
}

// MarkPulled grava o instante de um pull bem-sucedido de (fixture, kind).
func (c *Cache) MarkPulled(ctx context.Context, fixtureID int64, kind model.TickKind, at time.Time) error {
	return c.Client.Set(ctx, lastPulledKey(fixtureID, kind), strconv.FormatInt(at.UnixNano(), 10), lastPulledTTL).Err()
}

// OnCooldown informa se (fixture, kind) está em cooldown após atingir
// K_consec_fail falhas consecutivas.
func (c *Cache) OnCooldown(ctx context.Context, fixtureID int64, kind model.TickKind) (bool, error) {
	n, err := c.Client.Exists(ctx, cooldownKey(fixtureID, kind)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordFailure incrementa o contador de falhas consecutivas de (fixture,
// kind); ao atingir maxConsecFail, zera o contador e coloca o par em
// cooldown pela duração dada.
func (c *Cache) RecordFailure(ctx context.Context, fixtureID int64, kind model.TickKind, maxConsecFail int, cooldown time.Duration) error {
	key := failKey(fixtureID, kind)
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if err := c.Client.Expire(ctx, key, cooldown).Err(); err != nil {
		return err
	}
	if int(n) < maxConsecFail {
		return nil
	}
	if err := c.Client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return c.Client.Set(ctx, cooldownKey(fixtureID, kind), "1", cooldown).Err()
}

// RecordSuccess zera o contador de falhas consecutivas de (fixture, kind).
func (c *Cache) RecordSuccess(ctx context.Context, fixtureID int64, kind model.TickKind) error {
	return c.Client.Del(ctx, failKey(fixtureID, kind)).Err()
}
