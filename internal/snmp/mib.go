// Package snmp answers SNMP v1/v2c requests for the Dell enterprise subtree of a single emulated server.
package snmp

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/pkg/errors"

	"github.com/G-Research/idracsim/internal/common/emuerrors"
	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

const (
	EnterpriseOid = ".1.3.6.1.4.1.674"
	serverAdmin   = EnterpriseOid + ".10892.5"

	// StatusOK is the Dell MIB ObjectStatusEnum value for ok.
	StatusOK = 3
)

// Object is one scalar exposed by the agent. Objects without a metric kind report StatusOK.
type Object struct {
	Oid  string
	Name string
	Kind metricmodel.Kind
}

// Objects lists every scalar served, including the instance suffix.
// The system and chassis status share one OID in the Dell MIB so only one entry exists for both.
var Objects = []Object{
	{Oid: serverAdmin + ".4.700.20.1.6.1.1.0", Name: "cpuTemperature", Kind: metricmodel.CPU1Temp},
	{Oid: serverAdmin + ".4.700.20.1.6.1.2.0", Name: "inletTemperature", Kind: metricmodel.InletTemp},
	{Oid: serverAdmin + ".4.700.20.1.6.1.3.0", Name: "exhaustTemperature", Kind: metricmodel.ExhaustTemp},
	{Oid: serverAdmin + ".4.700.12.1.6.1.1.0", Name: "fan1Speed", Kind: metricmodel.Fan1Speed},
	{Oid: serverAdmin + ".4.700.12.1.6.1.2.0", Name: "fan2Speed", Kind: metricmodel.Fan2Speed},
	{Oid: serverAdmin + ".4.700.12.1.6.1.3.0", Name: "fan3Speed", Kind: metricmodel.Fan3Speed},
	{Oid: serverAdmin + ".4.600.30.1.6.1.3.0", Name: "powerConsumption", Kind: metricmodel.PowerConsumption},
	{Oid: serverAdmin + ".4.600.12.1.5.1.1.0", Name: "powerSupplyStatus"},
	{Oid: serverAdmin + ".4.200.10.1.4.1.0", Name: "systemStatus"},
	{Oid: serverAdmin + ".4.1100.50.1.5.1.1.0", Name: "memoryStatus"},
	{Oid: serverAdmin + ".5.1.20.130.4.1.4.0", Name: "diskStatus"},
}

type entry struct {
	oid  []uint32
	name string
	pdu  gosnmp.SnmpPDU
}

// Snapshot is an immutable set of values ordered by OID.
type Snapshot struct {
	entries []entry
	Time    time.Time
}

// NewSnapshot reads every object from entity. Any reading failure fails the whole snapshot.
func NewSnapshot(entity *registry.Entity, at time.Time) (*Snapshot, error) {
	entries := make([]entry, 0, len(Objects))
	for _, object := range Objects {
		oid, err := ParseOid(object.Oid)
		if err != nil {
			return nil, err
		}
		value := StatusOK
		if object.Kind != "" {
			reading, err := entity.Read(object.Kind, at)
			if err != nil {
				return nil, err
			}
			value = int(reading.Value + 0.5)
		}
		entries = append(entries, entry{
			oid:  oid,
			name: object.Name,
			pdu:  gosnmp.SnmpPDU{Name: object.Oid, Type: gosnmp.Integer, Value: value},
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return CompareOids(entries[i].oid, entries[j].oid) < 0
	})
	return &Snapshot{entries: entries, Time: at}, nil
}

// Get returns the variable stored at exactly oid.
func (s *Snapshot) Get(oid string) (gosnmp.SnmpPDU, bool) {
	parsed, err := ParseOid(oid)
	if err != nil {
		return gosnmp.SnmpPDU{}, false
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		return CompareOids(s.entries[i].oid, parsed) >= 0
	})
	if i < len(s.entries) && CompareOids(s.entries[i].oid, parsed) == 0 {
		return s.entries[i].pdu, true
	}
	return gosnmp.SnmpPDU{}, false
}

// Next returns the first variable whose OID sorts strictly after oid. An unparseable oid sorts before everything.
func (s *Snapshot) Next(oid string) (gosnmp.SnmpPDU, bool) {
	parsed, err := ParseOid(oid)
	if err != nil {
		parsed = nil
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		return CompareOids(s.entries[i].oid, parsed) > 0
	})
	if i < len(s.entries) {
		return s.entries[i].pdu, true
	}
	return gosnmp.SnmpPDU{}, false
}

// Walk returns every variable in OID order.
func (s *Snapshot) Walk() []gosnmp.SnmpPDU {
	pdus := make([]gosnmp.SnmpPDU, len(s.entries))
	for i, e := range s.entries {
		pdus[i] = e.pdu
	}
	return pdus
}

// Values returns the current value of each object keyed by object name.
func (s *Snapshot) Values() map[string]int {
	values := make(map[string]int, len(s.entries))
	for _, e := range s.entries {
		values[e.name] = e.pdu.Value.(int)
	}
	return values
}

// Table holds the snapshot currently served. Requests always see a whole snapshot.
type Table struct {
	entity   *registry.Entity
	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewTable(entity *registry.Entity) *Table {
	return &Table{entity: entity}
}

// Refresh replaces the served snapshot with fresh readings taken at the given time.
func (t *Table) Refresh(at time.Time) error {
	snapshot, err := NewSnapshot(t.entity, at)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot = snapshot
	return nil
}

// Snapshot returns the snapshot currently served, or nil before the first refresh.
func (t *Table) Snapshot() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// ParseOid parses a dotted OID. A leading dot is optional.
func ParseOid(oid string) ([]uint32, error) {
	trimmed := strings.TrimPrefix(oid, ".")
	if trimmed == "" {
		return []uint32{}, nil
	}
	parts := strings.Split(trimmed, ".")
	parsed := make([]uint32, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errors.WithStack(&emuerrors.ErrInvalidArgument{
				Name:    "oid",
				Value:   oid,
				Message: "not a dotted numeric object identifier",
			})
		}
		parsed[i] = uint32(n)
	}
	return parsed, nil
}

// CompareOids orders OIDs arc by arc; a prefix sorts before any longer OID.
func CompareOids(a, b []uint32) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
