// Package redfish serves a read only Redfish API for a single emulated server. Every request draws fresh readings.
package redfish

import (
	"crypto/subtle"
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/G-Research/idracsim/internal/fleetemulator/metricmodel"
	"github.com/G-Research/idracsim/internal/fleetemulator/registry"
)

const realm = `Basic realm="Authentication Required"`

type Server struct {
	entity      *registry.Entity
	credentials map[string]string
	namespace   string
	serviceUUID string
	clock       clock.PassiveClock
}

func NewServer(entity *registry.Entity, credentials map[string]string, namespace string, clock clock.PassiveClock) *Server {
	return &Server{
		entity:      entity,
		credentials: credentials,
		namespace:   namespace,
		serviceUUID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(entity.Id())).String(),
		clock:       clock,
	}
}

// Router returns the routes of the service. Everything under /redfish requires basic auth.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(statusPath, s.status).Methods(http.MethodGet)

	// Registered on the root router rather than a subrouter, which would answer a wrong method with 404.
	authenticated := func(path string, handler http.HandlerFunc) {
		r.Handle(path, s.basicAuth(handler)).Methods(http.MethodGet)
	}
	authenticated(rootPath, s.serviceRoot)
	authenticated(rootPath+"/", s.serviceRoot)
	authenticated(chassisPath, s.chassisCollection)
	authenticated(chassisPath+"/{chassisId}/Thermal", s.thermal)
	authenticated(chassisPath+"/{chassisId}/Power", s.power)
	authenticated(metricDefs, s.metricDefinitions)
	return r
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !s.authenticate(username, password) {
			w.Header().Set("WWW-Authenticate", realm)
			http.Error(w, "Unauthorized Access", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(username, password string) bool {
	expected, ok := s.credentials[username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1
}

func (s *Server) serviceRoot(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, ServiceRoot{
		odata: odata{
			Context: rootPath + "/$metadata#ServiceRoot.ServiceRoot",
			Id:      rootPath,
			Type:    "#ServiceRoot.v1_5_0.ServiceRoot",
		},
		ServiceId:        "RootService",
		Name:             "Root Service",
		RedfishVersion:   redfishVer,
		UUID:             s.serviceUUID,
		Chassis:          Link{Id: chassisPath},
		Systems:          Link{Id: systemsPath},
		TelemetryService: Link{Id: telemetry},
	})
}

func (s *Server) chassisCollection(w http.ResponseWriter, _ *http.Request) {
	members := []Link{{Id: chassisPath + "/" + chassisId}}
	writeJson(w, Collection{
		odata: odata{
			Context: rootPath + "/$metadata#ChassisCollection.ChassisCollection",
			Id:      chassisPath,
			Type:    "#ChassisCollection.ChassisCollection",
		},
		Name:        "Chassis Collection",
		Members:     members,
		MemberCount: len(members),
	})
}

func (s *Server) thermal(w http.ResponseWriter, r *http.Request) {
	if !knownChassis(w, r) {
		return
	}
	readings, err := s.read(
		metricmodel.CPU1Temp, metricmodel.CPU2Temp, metricmodel.InletTemp, metricmodel.ExhaustTemp,
		metricmodel.Fan1Speed, metricmodel.Fan2Speed, metricmodel.Fan3Speed,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, thermalDocument(readings))
}

func (s *Server) power(w http.ResponseWriter, r *http.Request) {
	if !knownChassis(w, r) {
		return
	}
	readings, err := s.read(metricmodel.PowerConsumption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, powerDocument(readings[metricmodel.PowerConsumption]))
}

func (s *Server) metricDefinitions(w http.ResponseWriter, _ *http.Request) {
	names := []string{"CPUTemp", "FanSpeed", "PowerConsumption", "CPUUsage", "MemoryUsage"}
	members := make([]Link, len(names))
	for i, name := range names {
		members[i] = Link{Id: metricDefs + "/" + name}
	}
	writeJson(w, Collection{
		odata: odata{
			Context: rootPath + "/$metadata#MetricDefinitionCollection.MetricDefinitionCollection",
			Id:      metricDefs,
			Type:    "#MetricDefinitionCollection.MetricDefinitionCollection",
		},
		Name:        "Metric Definition Collection",
		Members:     members,
		MemberCount: len(members),
	})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	readings, err := s.read(
		metricmodel.CPU1Temp, metricmodel.CPU2Temp, metricmodel.InletTemp,
		metricmodel.PowerConsumption, metricmodel.Fan1Speed,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	users := maps.Keys(s.credentials)
	slices.Sort(users)
	writeJson(w, StatusDocument{
		Status:    "running",
		ServerId:  s.entity.Id(),
		Namespace: s.namespace,
		Endpoints: map[string]string{
			"redfish_root": rootPath,
			"thermal":      thermalPath,
			"power":        powerPath,
			"metrics":      metricDefs,
		},
		Users: users,
		CurrentMetrics: map[string]float64{
			"cpu1_temp":   readings[metricmodel.CPU1Temp],
			"cpu2_temp":   readings[metricmodel.CPU2Temp],
			"inlet_temp":  readings[metricmodel.InletTemp],
			"power_watts": readings[metricmodel.PowerConsumption],
			"fan1_rpm":    readings[metricmodel.Fan1Speed],
		},
	})
}

func (s *Server) read(kinds ...metricmodel.Kind) (map[metricmodel.Kind]float64, error) {
	now := s.clock.Now()
	values := make(map[metricmodel.Kind]float64, len(kinds))
	for _, kind := range kinds {
		reading, err := s.entity.Read(kind, now)
		if err != nil {
			return nil, err
		}
		values[kind] = reading.Value
	}
	return values, nil
}

func thermalDocument(readings map[metricmodel.Kind]float64) Thermal {
	minTemp, maxTemp := 0.0, 100.0
	minFan, maxFan := 0, 10000
	temperature := func(i int, name string, kind metricmodel.Kind, nonCritical, critical, fatal float64) Temperature {
		return Temperature{
			Id:                        thermalPath + "#/Temperatures/" + strconv.Itoa(i),
			MemberId:                  strconv.Itoa(i),
			Name:                      name,
			SensorNumber:              i + 1,
			Status:                    enabledOK,
			ReadingCelsius:            readings[kind],
			UpperThresholdNonCritical: nonCritical,
			UpperThresholdCritical:    critical,
			UpperThresholdFatal:       fatal,
		}
	}
	fan := func(i int, name string, kind metricmodel.Kind) Fan {
		return Fan{
			Id:                        thermalPath + "#/Fans/" + strconv.Itoa(i),
			MemberId:                  strconv.Itoa(i),
			Name:                      name,
			Status:                    enabledOK,
			Reading:                   int(readings[kind]),
			ReadingUnits:              "RPM",
			LowerThresholdNonCritical: 2000,
			LowerThresholdCritical:    1500,
		}
	}

	temperatures := []Temperature{
		temperature(0, "CPU1 Temp", metricmodel.CPU1Temp, 75, 85, 95),
		temperature(1, "CPU2 Temp", metricmodel.CPU2Temp, 75, 85, 95),
		temperature(2, "System Board Inlet Temp", metricmodel.InletTemp, 35, 40, 45),
		temperature(3, "System Board Exhaust Temp", metricmodel.ExhaustTemp, 70, 75, 80),
	}
	temperatures[0].MinReadingRangeTemp = &minTemp
	temperatures[0].MaxReadingRangeTemp = &maxTemp

	fans := []Fan{
		fan(0, "System Board Fan1A", metricmodel.Fan1Speed),
		fan(1, "System Board Fan1B", metricmodel.Fan2Speed),
		fan(2, "System Board Fan2A", metricmodel.Fan3Speed),
	}
	fans[0].MinReadingRange = &minFan
	fans[0].MaxReadingRange = &maxFan

	return Thermal{
		odata: odata{
			Context: rootPath + "/$metadata#Thermal.Thermal",
			Id:      thermalPath,
			Type:    "#Thermal.v1_5_0.Thermal",
		},
		ThermalId:    "Thermal",
		Name:         "Thermal",
		Temperatures: temperatures,
		Fans:         fans,
	}
}

func powerDocument(consumed float64) Power {
	psuOutput := math.Round(consumed/2*100) / 100
	supply := func(i int) PowerSupply {
		return PowerSupply{
			Id:                   powerPath + "#/PowerSupplies/" + strconv.Itoa(i),
			MemberId:             strconv.Itoa(i),
			Name:                 "PS" + strconv.Itoa(i+1) + " Status",
			Status:               enabledOK,
			PowerSupplyType:      "AC",
			LineInputVoltageType: "ACHighLine",
			LineInputVoltage:     inputVoltage,
			PowerCapacityWatts:   psuCapacity,
			LastPowerOutputWatts: psuOutput,
			Model:                psuModel,
			Manufacturer:         "DELL",
			FirmwareVersion:      psuFirmware,
		}
	}
	return Power{
		odata: odata{
			Context: rootPath + "/$metadata#Power.Power",
			Id:      powerPath,
			Type:    "#Power.v1_5_0.Power",
		},
		PowerId: "Power",
		Name:    "Power",
		PowerControl: []PowerControl{{
			Id:                  powerPath + "#/PowerControl/0",
			MemberId:            "0",
			Name:                "System Power Control",
			PowerConsumedWatts:  consumed,
			PowerRequestedWatts: consumed + 50,
			PowerAvailableWatts: psuCapacity,
			PowerCapacityWatts:  psuCapacity,
			PowerAllocatedWatts: psuCapacity,
			PowerMetrics: PowerMetrics{
				IntervalInMin:        1,
				MinConsumedWatts:     200,
				MaxConsumedWatts:     600,
				AverageConsumedWatts: consumed,
			},
			Status: enabledOK,
		}},
		PowerSupplies: []PowerSupply{supply(0), supply(1)},
	}
}

func knownChassis(w http.ResponseWriter, r *http.Request) bool {
	if mux.Vars(r)["chassisId"] != chassisId {
		http.Error(w, "chassis not found", http.StatusNotFound)
		return false
	}
	return true
}

func writeJson(w http.ResponseWriter, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		log.WithError(errors.WithStack(err)).Warn("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("Failed to generate readings")
	http.Error(w, "failed to generate readings", http.StatusInternalServerError)
}
