// Package fleetapp wires the fleet publisher together.
package fleetapp

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"

	"github.com/G-Research/idracsim/internal/common"
	"github.com/G-Research/idracsim/internal/common/app"
	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/health"
	"github.com/G-Research/idracsim/internal/common/util"
	"github.com/G-Research/idracsim/internal/fleetemulator/backend"
	"github.com/G-Research/idracsim/internal/fleetemulator/collector"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/metrics"
	"github.com/G-Research/idracsim/internal/fleetemulator/publisher"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

// Run sets up the fleet publisher and runs it until a SIGTERM is received
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown()
	g, ctx := emucontext.ErrGroup(ctx)

	if err := configuration.Validate(config); err != nil {
		return err
	}

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()

	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.Http.Port, mux)
	defer shutdownHttpServer()

	//////////////////////////////////////////////////////////////////////////
	// Fleet
	//////////////////////////////////////////////////////////////////////////
	fleetMetrics := metrics.New()
	if err := fleetMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		return errors.WithStack(err)
	}

	fleet, err := registry.New(config.Fleet, metricmodel.MustNewModel(metricmodel.FleetProfile))
	if err != nil {
		return err
	}
	fleetMetrics.SetFleetSize(fleet.Len())
	ctx.Log.Infof("Created fleet of %d servers with seed %d", fleet.Len(), fleet.Seed())

	//////////////////////////////////////////////////////////////////////////
	// Backend
	//////////////////////////////////////////////////////////////////////////
	client, err := backend.New(ctx, config.Backend)
	if err != nil {
		return err
	}
	defer util.CloseResource("backend", client)

	//////////////////////////////////////////////////////////////////////////
	// Publisher
	//////////////////////////////////////////////////////////////////////////
	scheduler, err := publisher.NewScheduler(
		SchedulerConfig(config),
		fleet,
		collector.New(metricmodel.FleetKinds, config.Publish.StaticTags, config.Fleet.Parallelism, fleetMetrics),
		client,
		clock.RealClock{},
		fleetMetrics,
	)
	if err != nil {
		return err
	}
	healthChecks.Add(scheduler.HealthChecker(MaxTickAge(config)))

	shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
	defer shutdownMetricServer()

	g.Go(func() error { return scheduler.Run(ctx) })

	// Mark startup as complete, will allow the health check to return healthy
	startupCompleteCheck.MarkComplete()

	return g.Wait()
}

// SchedulerConfig maps the publish settings onto the scheduler.
func SchedulerConfig(config configuration.Configuration) publisher.Config {
	return publisher.Config{
		Namespace:      config.Namespace,
		Interval:       config.Publish.Interval(),
		BatchSize:      config.Publish.BatchSize,
		Parallelism:    config.Publish.Parallelism,
		SubmitAttempts: config.Publish.SubmitAttempts,
		SubmitTimeout:  config.Publish.SubmitTimeout,
		RetryDelay:     config.Publish.RetryDelay,
		BackendName:    config.Backend.Type,
	}
}

// MaxTickAge is how long the publisher may go without completing a tick before it reports unhealthy.
func MaxTickAge(config configuration.Configuration) time.Duration {
	if config.Http.MaxTickAge > 0 {
		return config.Http.MaxTickAge
	}
	return 3*config.Publish.Interval() + config.Publish.SubmitTimeout
}
