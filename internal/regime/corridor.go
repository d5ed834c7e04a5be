package regime

import "time"

// CorridorState indicates whether the current session admits new entries
type CorridorState string

const (
	CorridorOpen    CorridorState = "OPEN"
	CorridorReduced CorridorState = "REDUCED"
	CorridorClosed  CorridorState = "CLOSED"
)

// Corridor holds the session multipliers applied to risk and target
// distances for the current time of day.
type Corridor struct {
	Session          string        `json:"session"`
	State            CorridorState `json:"state"`
	RiskMultiplier   float64       `json:"risk_multiplier"`
	TargetMultiplier float64       `json:"target_multiplier"`
}

// sessionWindow maps a UTC hour range to corridor parameters
type sessionWindow struct {
	name       string
	startHour  int // inclusive
	endHour    int // exclusive
	state      CorridorState
	riskMult   float64
	targetMult float64
}

// Session table in UTC. The overnight gap between the US close and the
// Asia open is treated as illiquid and closed to new entries.
var sessionTable = []sessionWindow{
	{"ASIA", 0, 7, CorridorReduced, 0.7, 0.8},
	{"EUROPE", 7, 13, CorridorOpen, 1.0, 1.0},
	{"US", 13, 21, CorridorOpen, 1.0, 1.1},
	{"OFF_HOURS", 21, 24, CorridorClosed, 0, 0},
}

// CurrentCorridor returns the corridor parameters for the given moment.
func CurrentCorridor(now time.Time) Corridor {
	hour := now.UTC().Hour()
	for _, w := range sessionTable {
		if hour >= w.startHour && hour < w.endHour {
			return Corridor{
				Session:          w.name,
				State:            w.state,
				RiskMultiplier:   w.riskMult,
				TargetMultiplier: w.targetMult,
			}
		}
	}
	// Unreachable with a full 24h table, but fail safe if it ever isn't.
	return Corridor{Session: "UNKNOWN", State: CorridorClosed}
}
