package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/atlas-ingest/internal/data/aggregates"
	domainagg "github.com/yungbote/atlas-ingest/internal/domain/aggregates"
	"github.com/yungbote/atlas-ingest/internal/ingestion/sns"
	"github.com/yungbote/atlas-ingest/internal/observability"
	"github.com/yungbote/atlas-ingest/internal/platform/logger"
	"github.com/yungbote/atlas-ingest/internal/services"
	"github.com/yungbote/atlas-ingest/internal/temporalx"
)

type Services struct {
	Files         domainagg.FileIngestionAggregate
	Dispatcher    services.ValidationDispatcher
	Notifications services.NotificationService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	files := aggregates.NewFileIngestionAggregate(aggregates.FileIngestionAggregateDeps{
		Base: aggregates.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: aggregates.NewObservabilityHooks(metrics),
		},
		Concepts:         reposet.Concept,
		Atlases:          reposet.Atlas,
		Files:            reposet.File,
		ComponentAtlases: reposet.ComponentAtlas,
		SourceDatasets:   reposet.SourceDataset,
	})

	var submitter services.ValidationSubmitter
	if clients.Temporal != nil {
		submitter = temporalx.NewBatchValidator(log, clients.Temporal, temporalx.LoadConfig())
	} else {
		log.Warn("Batch validator unavailable; new files will be marked request_failed")
	}
	dispatcher := services.NewValidationDispatcher(services.ValidationDispatcherDeps{
		Log:       log,
		Files:     files,
		Submitter: submitter,
		Timeout:   cfg.DispatchTimeout,
	})

	var verifier sns.SignatureVerifier = sns.NopVerifier{}
	if cfg.VerifySignatures {
		v, err := sns.NewCertVerifier(log, nil, cfg.CertHostPattern)
		if err != nil {
			return Services{}, fmt.Errorf("init signature verifier: %w", err)
		}
		verifier = v
	} else {
		log.Warn("SNS signature verification disabled")
	}
	subscriptions, err := services.NewSubscriptionConfirmer(log, nil, cfg.CertHostPattern)
	if err != nil {
		return Services{}, fmt.Errorf("init subscription confirmer: %w", err)
	}

	notifications := services.NewNotificationService(services.NotificationServiceDeps{
		Log:           log,
		Verifier:      verifier,
		Files:         files,
		Dispatcher:    dispatcher,
		Subscriptions: subscriptions,
		Events:        services.NewIngestEventPublisher(log, clients.Events),
	})

	return Services{
		Files:         files,
		Dispatcher:    dispatcher,
		Notifications: notifications,
	}, nil
}
