// Package scheduler é a fonte única de verdade de o que roda quando: o
// catálogo declarativo de jobs, as filas tipadas por classe de carga e a
// máquina de estados por execução.
package scheduler

import (
	"time"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

const (
	QueueLive        = "live"
	QueueFixtures    = "fixtures"
	QueuePrematch    = "prematch"
	QueueFrames      = "frames"
	QueueFinalizer   = "finalizer"
	QueueMaintenance = "maintenance"
)

// Nomes dos jobs do catálogo obrigatório, 1:1 com
// original_source/apps/api-server/tasks.py: fixture_poller,
// live_manager_trigger, prematch_snapshot, frame_maker, finalizer,
// weekly_refresh, cold_archive.
const (
	JobFixturePoll          = "fixture_poll"
	JobLiveTrigger          = "live_trigger"
	JobPrematchSnapshot     = "prematch_snapshot"
	JobFrameMaker           = "frame_maker"
	JobFinalizer            = "finalizer"
	JobWeeklyRefresh        = "weekly_refresh"
	JobRetentionMaintenance = "retention_maintenance"
)

// DefaultCatalog retorna o catálogo de jobs declarado com seus cadences
// default. A superfície de operação pode sobrescrever qualquer campo via
// UpsertJob; o dispatcher sempre lê o catálogo persistido, nunca esta
// função, fora do bootstrap inicial.
func DefaultCatalog() []model.Job {
	return []model.Job{
		{
			Name: JobFixturePoll, Kind: model.JobKindCron, Spec: "0 */6 * * *",
			Queue: QueueFixtures, Priority: 5, Enabled: true,
			SoftLimit: 5 * time.Minute, HardLimit: 10 * time.Minute, RetryCount: 3,
		},
		{
			Name: JobLiveTrigger, Kind: model.JobKindInterval, Spec: "30s",
			Queue: QueueLive, Priority: 9, Enabled: true,
			SoftLimit: 20 * time.Second, HardLimit: 28 * time.Second, RetryCount: 0,
		},
		{
			Name: JobPrematchSnapshot, Kind: model.JobKindCron, Spec: "0 */2 * * *",
			Queue: QueuePrematch, Priority: 4, Enabled: true,
			SoftLimit: 10 * time.Minute, HardLimit: 20 * time.Minute, RetryCount: 2,
		},
		{
			Name: JobFrameMaker, Kind: model.JobKindInterval, Spec: "60s",
			Queue: QueueFrames, Priority: 8, Enabled: true,
			SoftLimit: 45 * time.Second, HardLimit: 58 * time.Second, RetryCount: 0,
		},
		{
			Name: JobFinalizer, Kind: model.JobKindInterval, Spec: "5m",
			Queue: QueueFinalizer, Priority: 3, Enabled: true,
			SoftLimit: 3 * time.Minute, HardLimit: 4 * time.Minute, RetryCount: 3,
		},
		{
			Name: JobWeeklyRefresh, Kind: model.JobKindCron, Spec: "0 2 * * SUN",
			Queue: QueueMaintenance, Priority: 2, Enabled: true,
			SoftLimit: 20 * time.Minute, HardLimit: 40 * time.Minute, RetryCount: 1,
		},
		{
			Name: JobRetentionMaintenance, Kind: model.JobKindCron, Spec: "0 3 * * *",
			Queue: QueueMaintenance, Priority: 1, Enabled: true,
			SoftLimit: 30 * time.Minute, HardLimit: 1 * time.Hour, RetryCount: 1,
		},
	}
}
