package redfish

const (
	chassisId    = "System.Embedded.1"
	rootPath     = "/redfish/v1"
	chassisPath  = rootPath + "/Chassis"
	thermalPath  = chassisPath + "/" + chassisId + "/Thermal"
	powerPath    = chassisPath + "/" + chassisId + "/Power"
	telemetry    = rootPath + "/TelemetryService"
	metricDefs   = telemetry + "/MetricDefinitions"
	systemsPath  = rootPath + "/Systems"
	statusPath   = "/status"
	redfishVer   = "1.6.0"
	psuModel     = "PWR SPLY,750W,RDNT,ARTESYN"
	psuFirmware  = "00.1A.2B"
	psuCapacity  = 750
	inputVoltage = 230
)

type Link struct {
	Id string `json:"@odata.id"`
}

type Status struct {
	State  string `json:"State"`
	Health string `json:"Health"`
}

var enabledOK = Status{State: "Enabled", Health: "OK"}

type odata struct {
	Context string `json:"@odata.context"`
	Id      string `json:"@odata.id"`
	Type    string `json:"@odata.type"`
}

type ServiceRoot struct {
	odata
	ServiceId        string `json:"Id"`
	Name             string `json:"Name"`
	RedfishVersion   string `json:"RedfishVersion"`
	UUID             string `json:"UUID"`
	Chassis          Link   `json:"Chassis"`
	Systems          Link   `json:"Systems"`
	TelemetryService Link   `json:"TelemetryService"`
}

type Collection struct {
	odata
	Name        string `json:"Name"`
	Members     []Link `json:"Members"`
	MemberCount int    `json:"Members@odata.count"`
}

type Temperature struct {
	Id                        string   `json:"@odata.id"`
	MemberId                  string   `json:"MemberId"`
	Name                      string   `json:"Name"`
	SensorNumber              int      `json:"SensorNumber"`
	Status                    Status   `json:"Status"`
	ReadingCelsius            float64  `json:"ReadingCelsius"`
	UpperThresholdNonCritical float64  `json:"UpperThresholdNonCritical"`
	UpperThresholdCritical    float64  `json:"UpperThresholdCritical"`
	UpperThresholdFatal       float64  `json:"UpperThresholdFatal"`
	MinReadingRangeTemp       *float64 `json:"MinReadingRangeTemp,omitempty"`
	MaxReadingRangeTemp       *float64 `json:"MaxReadingRangeTemp,omitempty"`
}

type Fan struct {
	Id                        string `json:"@odata.id"`
	MemberId                  string `json:"MemberId"`
	Name                      string `json:"Name"`
	Status                    Status `json:"Status"`
	Reading                   int    `json:"Reading"`
	ReadingUnits              string `json:"ReadingUnits"`
	LowerThresholdNonCritical int    `json:"LowerThresholdNonCritical"`
	LowerThresholdCritical    int    `json:"LowerThresholdCritical"`
	MinReadingRange           *int   `json:"MinReadingRange,omitempty"`
	MaxReadingRange           *int   `json:"MaxReadingRange,omitempty"`
}

type Thermal struct {
	odata
	ThermalId    string        `json:"Id"`
	Name         string        `json:"Name"`
	Temperatures []Temperature `json:"Temperatures"`
	Fans         []Fan         `json:"Fans"`
}

type PowerMetrics struct {
	IntervalInMin        int     `json:"IntervalInMin"`
	MinConsumedWatts     float64 `json:"MinConsumedWatts"`
	MaxConsumedWatts     float64 `json:"MaxConsumedWatts"`
	AverageConsumedWatts float64 `json:"AverageConsumedWatts"`
}

type PowerControl struct {
	Id                  string       `json:"@odata.id"`
	MemberId            string       `json:"MemberId"`
	Name                string       `json:"Name"`
	PowerConsumedWatts  float64      `json:"PowerConsumedWatts"`
	PowerRequestedWatts float64      `json:"PowerRequestedWatts"`
	PowerAvailableWatts float64      `json:"PowerAvailableWatts"`
	PowerCapacityWatts  float64      `json:"PowerCapacityWatts"`
	PowerAllocatedWatts float64      `json:"PowerAllocatedWatts"`
	PowerMetrics        PowerMetrics `json:"PowerMetrics"`
	Status              Status       `json:"Status"`
}

type PowerSupply struct {
	Id                   string  `json:"@odata.id"`
	MemberId             string  `json:"MemberId"`
	Name                 string  `json:"Name"`
	Status               Status  `json:"Status"`
	PowerSupplyType      string  `json:"PowerSupplyType"`
	LineInputVoltageType string  `json:"LineInputVoltageType"`
	LineInputVoltage     float64 `json:"LineInputVoltage"`
	PowerCapacityWatts   float64 `json:"PowerCapacityWatts"`
	LastPowerOutputWatts float64 `json:"LastPowerOutputWatts"`
	Model                string  `json:"Model"`
	Manufacturer         string  `json:"Manufacturer"`
	FirmwareVersion      string  `json:"FirmwareVersion"`
}

type Power struct {
	odata
	PowerId       string         `json:"Id"`
	Name          string         `json:"Name"`
	PowerControl  []PowerControl `json:"PowerControl"`
	PowerSupplies []PowerSupply  `json:"PowerSupplies"`
}

type StatusDocument struct {
	Status         string             `json:"status"`
	ServerId       string             `json:"server_id"`
	Namespace      string             `json:"cloudwatch_namespace"`
	Endpoints      map[string]string  `json:"endpoints"`
	Users          []string           `json:"users"`
	CurrentMetrics map[string]float64 `json:"current_metrics"`
}
