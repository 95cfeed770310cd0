package snmp

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/idracsim/internal/common/app"
	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/task"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

const metricsPrefix = "idracsim_snmp_"

// StartRefresh loads the first snapshot and then keeps the table fresh in the background.
func StartRefresh(table *Table, interval time.Duration, taskManager *task.BackgroundTaskManager, clock clock.PassiveClock) error {
	if err := table.Refresh(clock.Now()); err != nil {
		return err
	}
	taskManager.Register(func() {
		if err := table.Refresh(clock.Now()); err != nil {
			log.WithError(err).Warn("Failed to refresh snmp table, serving previous values")
		}
	}, interval, "table_refresh")
	return nil
}

// Run serves the SNMP agent until a SIGTERM is received
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown()
	g, ctx := emucontext.ErrGroup(ctx)

	entity := registry.NewStandaloneEntity(config.Redfish.ServerID, config.Fleet.Seed)
	table := NewTable(entity)

	taskManager := task.NewBackgroundTaskManager(metricsPrefix, prometheus.DefaultRegisterer, clock.RealClock{})
	if err := StartRefresh(table, config.Snmp.RefreshInterval, taskManager, clock.RealClock{}); err != nil {
		return err
	}
	defer func() {
		if timedOut := taskManager.StopAll(5 * time.Second); timedOut {
			log.Warn("Timed out waiting for snmp background tasks to stop")
		}
	}()

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", config.Snmp.Port))
	if err != nil {
		return errors.WithStack(err)
	}
	agent := NewAgent(table, config.Snmp.ReadCommunity, config.Snmp.WriteCommunity)

	g.Go(func() error {
		ctx.Log.Infof("Serving SNMP for %s on udp port %d", entity.Id(), config.Snmp.Port)
		for _, object := range Objects {
			ctx.Log.Debugf("  %s %s", object.Oid, object.Name)
		}
		return agent.Serve(ctx, conn)
	})
	return g.Wait()
}
