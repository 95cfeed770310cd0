// Package collector turns one tick of fleet readings into backend data points.
package collector

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/idracsim/internal/common/emucontext"
	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/metrics"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

// CollectPhase names the collection phase of a tick in errors.
const CollectPhase = "collect"

// Collector reads every entity in a registry once per tick.
type Collector struct {
	kinds       []metricmodel.Kind
	staticTags  []Tag
	parallelism int
	metrics     *metrics.Metrics
}

// New returns a collector reading kinds from each entity. staticTags are appended to every point sorted by key.
// parallelism bounds the number of entities read concurrently; zero or less means unbounded.
func New(kinds []metricmodel.Kind, staticTags map[string]string, parallelism int, m *metrics.Metrics) *Collector {
	keys := maps.Keys(staticTags)
	slices.Sort(keys)
	tags := make([]Tag, 0, len(keys))
	for _, key := range keys {
		if key == ServerIdTag || key == MetricTypeTag {
			continue
		}
		tags = append(tags, Tag{Key: key, Value: staticTags[key]})
	}
	return &Collector{
		kinds:       slices.Clone(kinds),
		staticTags:  tags,
		parallelism: parallelism,
		metrics:     m,
	}
}

// Collect returns one data point per entity and kind, ordered by entity then kind. Every point is stamped with
// tickStart in UTC. A reading that fails to generate is logged and dropped; only cancellation of ctx fails the
// whole collection. A panic while reading an entity is returned as an *emuerrors.ErrTick.
func (c *Collector) Collect(ctx *emucontext.Context, r *registry.Registry, tickStart time.Time) ([]DataPoint, error) {
	timestamp := tickStart.UTC()
	entities := r.All()
	slots := make([][]DataPoint, len(entities))

	g, ctx := emucontext.ErrGroup(ctx)
	if c.parallelism > 0 {
		g.SetLimit(c.parallelism)
	}
	for i, entity := range entities {
		i, entity := i, entity
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = emuerrors.NewTickPanic(CollectPhase, r)
				}
			}()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slots[i] = c.collectEntity(ctx, entity, timestamp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, slot := range slots {
		total += len(slot)
	}
	points := make([]DataPoint, 0, total)
	for _, slot := range slots {
		points = append(points, slot...)
	}
	return points, nil
}

func (c *Collector) collectEntity(ctx *emucontext.Context, entity *registry.Entity, timestamp time.Time) []DataPoint {
	readings, errs := entity.ReadAll(c.kinds, timestamp)
	if len(errs) > 0 {
		ctx = emucontext.WithLogField(ctx, "server", entity.Id())
	}
	for _, err := range errs {
		ctx.Log.WithError(err).Error("Dropping invalid reading")
	}
	points := make([]DataPoint, 0, len(readings))
	for _, reading := range readings {
		points = append(points, c.toDataPoint(entity.Id(), reading))
	}
	if len(readings) < len(c.kinds) {
		c.reportDropped(readings)
	}
	return points
}

func (c *Collector) reportDropped(readings []metricmodel.Reading) {
	present := make(map[metricmodel.Kind]bool, len(readings))
	for _, reading := range readings {
		present[reading.Kind] = true
	}
	for _, kind := range c.kinds {
		if !present[kind] {
			c.metrics.ReportGenerationError(string(kind))
		}
	}
}

func (c *Collector) toDataPoint(serverId string, reading metricmodel.Reading) DataPoint {
	tags := make([]Tag, 0, 2+len(c.staticTags))
	tags = append(tags,
		Tag{Key: ServerIdTag, Value: serverId},
		Tag{Key: MetricTypeTag, Value: string(metricmodel.CategoryOf(reading.Kind))},
	)
	tags = append(tags, c.staticTags...)
	return DataPoint{
		MetricName: string(reading.Kind),
		Value:      reading.Value,
		Unit:       reading.Unit,
		Timestamp:  reading.Time,
		Tags:       tags,
	}
}
