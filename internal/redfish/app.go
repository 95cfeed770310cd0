package redfish

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/idracsim/internal/common"
	"github.com/G-Research/idracsim/internal/common/app"
	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/util"
	"github.com/G-Research/idracsim/internal/fleetemulator/backend"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/fleetapp"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/metrics"
	"github.com/G-Research/idracsim/internal/fleetemulator/publisher"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

// NewPublisher publishes the readings of the single server to the backend on the publish interval,
// using the same loop as the fleet.
func NewPublisher(
	config configuration.Configuration,
	entity *registry.Entity,
	client backend.Client,
	clock clock.Clock,
	m *metrics.Metrics,
) (*publisher.Scheduler, error) {
	standalone, err := registry.FromEntities(entity)
	if err != nil {
		return nil, err
	}
	return publisher.NewScheduler(
		fleetapp.SchedulerConfig(config),
		standalone,
		collector.New(metricmodel.StandaloneKinds, config.Publish.StaticTags, 1, m),
		client,
		clock,
		m,
	)
}

// Handler wraps the router with request logging and panic recovery.
func (s *Server) Handler(accessLog *log.Logger) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(accessLog),
		handlers.PrintRecoveryStack(true),
	)(handlers.CombinedLoggingHandler(accessLog.Writer(), s.Router()))
}

// Run serves the Redfish API until a SIGTERM is received
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown()
	g, ctx := emucontext.ErrGroup(ctx)

	entity := registry.NewStandaloneEntity(config.Redfish.ServerID, config.Fleet.Seed)
	server := NewServer(entity, config.Redfish.Credentials, config.Namespace, clock.RealClock{})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Redfish.Port),
		Handler:           server.Handler(log.StandardLogger()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if config.Redfish.Publish {
		publisherMetrics := metrics.New()
		if err := publisherMetrics.Register(prometheus.DefaultRegisterer); err != nil {
			return errors.WithStack(err)
		}
		publisherMetrics.SetFleetSize(1)

		client, err := backend.New(ctx, config.Backend)
		if err != nil {
			return err
		}
		defer util.CloseResource("backend", client)

		scheduler, err := NewPublisher(config, entity, client, clock.RealClock{}, publisherMetrics)
		if err != nil {
			return err
		}
		shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
		defer shutdownMetricServer()

		g.Go(func() error { return scheduler.Run(ctx) })
	}

	g.Go(func() error {
		ctx.Log.Infof("Serving Redfish API for %s on port %d", entity.Id(), config.Redfish.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.WithStack(err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := emucontext.WithTimeout(emucontext.Background(), 5*time.Second)
		defer cancel()
		ctx.Log.Info("Stopping Redfish API")
		return errors.WithStack(srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
