// Package registry holds the fixed set of emulated servers that make up the fleet.
package registry

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/common/util"
	"github.com/G-Research/idracsim/internal/fleetemulator/configuration"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
)

// Entity is one emulated server. Its id and baseline never change after creation.
type Entity struct {
	id       string
	index    int
	baseline metricmodel.Baseline
	model    *metricmodel.Model
	// Threadsafe so that the entity can be read from the collector and the responders at the same time.
	rng *rand.Rand
}

// NewEntity creates a standalone entity that does not belong to a registry.
func NewEntity(id string, baseline metricmodel.Baseline, model *metricmodel.Model, seed int64) *Entity {
	return &Entity{
		id:       id,
		baseline: baseline,
		model:    model,
		rng:      util.NewThreadsafeRand(seed),
	}
}

// NewStandaloneEntity creates the single server reported on by the Redfish and SNMP responders.
func NewStandaloneEntity(id string, seed int64) *Entity {
	return NewEntity(id, metricmodel.StandaloneBaseline(), metricmodel.MustNewModel(metricmodel.StandaloneProfile), util.SeedOrNow(seed))
}

func (e *Entity) Id() string {
	return e.id
}

// Index is the one based position of the entity within its registry.
func (e *Entity) Index() int {
	return e.index
}

func (e *Entity) Baseline() metricmodel.Baseline {
	return e.baseline
}

// Read generates one reading of kind.
func (e *Entity) Read(kind metricmodel.Kind, at time.Time) (metricmodel.Reading, error) {
	value, err := e.model.Generate(kind, e.baseline, e.rng)
	if err != nil {
		return metricmodel.Reading{}, errors.WithMessagef(err, "reading %s of %s", kind, e.id)
	}
	return metricmodel.Reading{
		Kind:  kind,
		Value: value,
		Unit:  metricmodel.UnitOf(kind),
		Time:  at,
	}, nil
}

// ReadAll generates one reading per kind, in the order given. Kinds that fail to generate are skipped and their
// errors returned alongside the readings that succeeded.
func (e *Entity) ReadAll(kinds []metricmodel.Kind, at time.Time) ([]metricmodel.Reading, []error) {
	readings := make([]metricmodel.Reading, 0, len(kinds))
	var errs []error
	for _, kind := range kinds {
		reading, err := e.Read(kind, at)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, reading)
	}
	return readings, errs
}

// Registry is the ordered, immutable set of entities in the fleet.
type Registry struct {
	entities []*Entity
	byId     map[string]*Entity
	seed     int64
}

// New creates config.Size entities with ids <IdPrefix>-<index>, where the index starts at one and is zero padded
// to at least config.IdDigits. Every entity gets its own random stream derived from config.Seed, and its baseline
// is drawn from that stream.
func New(config configuration.FleetConfig, model *metricmodel.Model) (*Registry, error) {
	if config.Size <= 0 {
		return nil, errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "fleet.size",
			Value:   config.Size,
			Message: "fleet size must be a positive integer",
		})
	}
	if config.IdPrefix == "" {
		return nil, errors.WithStack(&emuerrors.ErrConfiguration{
			Field:   "fleet.idPrefix",
			Value:   config.IdPrefix,
			Message: "id prefix must not be empty",
		})
	}

	seed := util.SeedOrNow(config.Seed)
	format := fmt.Sprintf("%%s-%%0%dd", idWidth(config.IdDigits, config.Size))
	seeds := util.DeriveSeeds(seed, config.Size)

	r := &Registry{
		entities: make([]*Entity, config.Size),
		byId:     make(map[string]*Entity, config.Size),
		seed:     seed,
	}
	for i := 0; i < config.Size; i++ {
		rng := util.NewThreadsafeRand(seeds[i])
		entity := &Entity{
			id:       fmt.Sprintf(format, config.IdPrefix, i+1),
			index:    i + 1,
			baseline: metricmodel.RandomBaseline(rng),
			model:    model,
			rng:      rng,
		}
		r.entities[i] = entity
		r.byId[entity.id] = entity
	}
	return r, nil
}

// FromEntities builds a registry from entities created elsewhere, such as the standalone server. Entities are
// indexed from one in the order given and ids must be distinct.
func FromEntities(entities ...*Entity) (*Registry, error) {
	if len(entities) == 0 {
		return nil, errors.WithStack(&emuerrors.ErrInvalidArgument{
			Name:    "entities",
			Value:   0,
			Message: "a registry needs at least one entity",
		})
	}
	r := &Registry{
		entities: make([]*Entity, len(entities)),
		byId:     make(map[string]*Entity, len(entities)),
	}
	for i, entity := range entities {
		if entity == nil {
			return nil, errors.WithStack(&emuerrors.ErrInvalidArgument{
				Name:    "entities",
				Value:   i,
				Message: "entity must not be nil",
			})
		}
		if _, exists := r.byId[entity.id]; exists {
			return nil, errors.WithStack(&emuerrors.ErrInvalidArgument{
				Name:    "entities",
				Value:   entity.id,
				Message: "duplicate entity id",
			})
		}
		entity.index = i + 1
		r.entities[i] = entity
		r.byId[entity.id] = entity
	}
	return r, nil
}

func idWidth(digits int, size int) int {
	width := len(strconv.Itoa(size))
	if digits > width {
		return digits
	}
	return width
}

// All returns the entities in index order. The returned slice must not be modified.
func (r *Registry) All() []*Entity {
	return r.entities
}

func (r *Registry) Get(id string) (*Entity, bool) {
	entity, ok := r.byId[id]
	return entity, ok
}

func (r *Registry) Len() int {
	return len(r.entities)
}

// Seed is the master seed the entity streams were derived from. Logging it allows a run to be reproduced.
func (r *Registry) Seed() int64 {
	return r.seed
}
