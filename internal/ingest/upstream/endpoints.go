package upstream

import (
	"context"
	"net/url"
	"strconv"

	"github.com/radieske/live-odds-ingestion/internal/ingest/upstream/payload"
)

// FixturesByDate chama GET /fixtures?date=YYYY-MM-DD[&league=ID].
func (c *Client) FixturesByDate(ctx context.Context, date string, leagueID int64) ([]payload.FixtureItem, error) {
	q := url.Values{"date": {date}}
	if leagueID > 0 {
		q.Set("league", strconv.FormatInt(leagueID, 10))
	}
	var env payload.FixtureEnvelope
	if err := c.get(ctx, "/fixtures", q, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

// FixturesLive chama GET /fixtures/live.
func (c *Client) FixturesLive(ctx context.Context) ([]payload.FixtureItem, error) {
	var env payload.FixtureEnvelope
	if err := c.get(ctx, "/fixtures/live", nil, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

// OddsPrematch chama GET /odds?fixture=ID.
func (c *Client) OddsPrematch(ctx context.Context, fixtureID int64) ([]payload.OddsItem, error) {
	q := url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	var env payload.OddsEnvelope
	if err := c.get(ctx, "/odds", q, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

// OddsLive chama GET /odds/live?fixture=ID.
func (c *Client) OddsLive(ctx context.Context, fixtureID int64) ([]payload.OddsItem, error) {
	q := url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	var env payload.OddsEnvelope
	if err := c.get(ctx, "/odds/live", q, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

// FixtureEvents chama GET /fixtures/events?fixture=ID.
func (c *Client) FixtureEvents(ctx context.Context, fixtureID int64) ([]payload.EventItem, error) {
	q := url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	var env payload.EventEnvelope
	if err := c.get(ctx, "/fixtures/events", q, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

// FixtureStatistics chama GET /fixtures/statistics?fixture=ID.
func (c *Client) FixtureStatistics(ctx context.Context, fixtureID int64) ([]payload.TeamStatisticsItem, error) {
	q := url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	var env payload.StatisticsEnvelope
	if err := c.get(ctx, "/fixtures/statistics", q, &env); err != nil {
		return nil, err
	}
	return validateAll(env.Response)
}

type validator interface{ Validate() error }

// validateAll rejeita o payload inteiro com UpstreamMalformed se qualquer
// item falhar na validação de campos obrigatórios, conforme o contrato de
// normalização.
func validateAll[T validator](items []T) ([]T, error) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, newMalformed(err)
		}
	}
	return items, nil
}
