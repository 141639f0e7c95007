package nora

// LineTerminator ends every message on the topside serial link
const LineTerminator = '\n'

// State is the top-level operating mode of the instrument
type State int

const (
	StateCalibrate State = iota
	StateStandby
	StateRelease
	StateSoak
	StateRecover
	StateSample
	StateFlushSystem
	StateDry
	StateAlarm
	StateManual
	StateMotorControl
	StateSolenoidControl
	StateSettings
	StateSetInterval
	StateEnsureSampleStart
	StateSetStartTime
	StateSetClock
	StateSetDryTime
	StateSetSoakTime
	StateFilterStatus
)

func (s State) String() string {
	switch s {
	case StateCalibrate:
		return "Calibrate"
	case StateStandby:
		return "Standby"
	case StateRelease:
		return "Release"
	case StateSoak:
		return "Soak"
	case StateRecover:
		return "Recover"
	case StateSample:
		return "Sample"
	case StateFlushSystem:
		return "FlushSystem"
	case StateDry:
		return "Dry"
	case StateAlarm:
		return "Alarm"
	case StateManual:
		return "Manual"
	case StateMotorControl:
		return "MotorControl"
	case StateSolenoidControl:
		return "SolenoidControl"
	case StateSettings:
		return "Settings"
	case StateSetInterval:
		return "SetInterval"
	case StateEnsureSampleStart:
		return "EnsureSampleStart"
	case StateSetStartTime:
		return "SetStartTime"
	case StateSetClock:
		return "SetClock"
	case StateSetDryTime:
		return "SetDryTime"
	case StateSetSoakTime:
		return "SetSoakTime"
	case StateFilterStatus:
		return "FilterStatus"
	default:
		return "Unknown"
	}
}

// InCycle is true for the states that make up an automatic sampling cycle
func (s State) InCycle() bool {
	switch s {
	case StateRelease, StateSoak, StateRecover, StateSample, StateFlushSystem, StateDry:
		return true
	}
	return false
}

// InSettings is true for SETTINGS and each of its children
func (s State) InSettings() bool {
	switch s {
	case StateSettings, StateSetInterval, StateEnsureSampleStart, StateSetStartTime,
		StateSetClock, StateSetDryTime, StateSetSoakTime, StateFilterStatus:
		return true
	}
	return false
}

// AlarmFault is the value held by the process-wide fault register
type AlarmFault int

const (
	FaultNone AlarmFault = iota
	FaultMotor
	FaultTube
	FaultEStop
	FaultTopsideComms
	FaultSampleWaterNotDetected
	FaultFlushWaterTemp
)

func (f AlarmFault) String() string {
	switch f {
	case FaultNone:
		return "None"
	case FaultMotor:
		return "Motor"
	case FaultTube:
		return "Tube"
	case FaultEStop:
		return "EStop"
	case FaultTopsideComms:
		return "TopsideComms"
	case FaultSampleWaterNotDetected:
		return "SampleWaterNotDetected"
	case FaultFlushWaterTemp:
		return "FlushWaterTemp"
	default:
		return "Unknown"
	}
}

// ReportCode is the topside message that announces the fault. TopsideComms has
// no code because the link itself is what failed.
func (f AlarmFault) ReportCode() string {
	switch f {
	case FaultMotor:
		return ReportMotorErr
	case FaultTube:
		return ReportTubeErr
	case FaultEStop:
		return ReportEStopPressed
	case FaultSampleWaterNotDetected:
		return ReportSampleWaterNotDetectedErr
	case FaultFlushWaterTemp:
		return ReportFlushWaterTempErr
	default:
		return ""
	}
}

// RequiresRecalibration reports whether clearing the fault needs a successful
// CALIBRATE run after the operator acknowledges it
func (f AlarmFault) RequiresRecalibration() bool {
	return f == FaultMotor || f == FaultTube
}

// FlushStage is a step of the line and device flush procedure
type FlushStage int

const (
	FlushNull                  FlushStage = -1
	FlushDumpSample            FlushStage = 0
	FlushAirBubble             FlushStage = 1
	FlushFreshwaterLineFlush   FlushStage = 2
	FlushFreshwaterDeviceFlush FlushStage = 3
	FlushAirFlush              FlushStage = 4
	FlushHomeTube              FlushStage = 5
)

func (fs FlushStage) String() string {
	switch fs {
	case FlushNull:
		return "Null"
	case FlushDumpSample:
		return "DumpSample"
	case FlushAirBubble:
		return "AirBubble"
	case FlushFreshwaterLineFlush:
		return "FreshwaterLineFlush"
	case FlushFreshwaterDeviceFlush:
		return "FreshwaterDeviceFlush"
	case FlushAirFlush:
		return "AirFlush"
	case FlushHomeTube:
		return "HomeTube"
	default:
		return "Unknown"
	}
}

// Next returns the stage that follows. HomeTube is followed by Null, and Null
// stays Null since starting a flush is an explicit action.
func (fs FlushStage) Next() FlushStage {
	switch fs {
	case FlushDumpSample:
		return FlushAirBubble
	case FlushAirBubble:
		return FlushFreshwaterLineFlush
	case FlushFreshwaterLineFlush:
		return FlushFreshwaterDeviceFlush
	case FlushFreshwaterDeviceFlush:
		return FlushAirFlush
	case FlushAirFlush:
		return FlushHomeTube
	default:
		return FlushNull
	}
}

// RetrieveStage is a speed zone of the tube retrieval profile
type RetrieveStage int

const (
	RetrieveInitialSlowRise RetrieveStage = iota
	RetrieveNormalRise
	RetrieveStopAndWait
	RetrieveSlowRiseToNearHome
	RetrieveFinalSlowAlign
	RetrieveComplete
)

func (rs RetrieveStage) String() string {
	switch rs {
	case RetrieveInitialSlowRise:
		return "InitialSlowRise"
	case RetrieveNormalRise:
		return "NormalRise"
	case RetrieveStopAndWait:
		return "StopAndWait"
	case RetrieveSlowRiseToNearHome:
		return "SlowRiseToNearHome"
	case RetrieveFinalSlowAlign:
		return "FinalSlowAlign"
	case RetrieveComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Next returns the following stage. Complete is terminal.
func (rs RetrieveStage) Next() RetrieveStage {
	switch rs {
	case RetrieveInitialSlowRise:
		return RetrieveNormalRise
	case RetrieveNormalRise:
		return RetrieveStopAndWait
	case RetrieveStopAndWait:
		return RetrieveSlowRiseToNearHome
	case RetrieveSlowRiseToNearHome:
		return RetrieveFinalSlowAlign
	default:
		return RetrieveComplete
	}
}

// MotorDir is the direction of the reel. CW raises the tube (increasing
// position), CCW lowers it.
type MotorDir int

const (
	MotorCCW MotorDir = iota
	MotorCW
	MotorOff
)

func (d MotorDir) String() string {
	switch d {
	case MotorCCW:
		return "CCW"
	case MotorCW:
		return "CW"
	default:
		return "Off"
	}
}

// MotorCommand is a direction and speed for the reel. Speed is ignored when
// Dir is MotorOff.
type MotorCommand struct {
	Dir           MotorDir
	SpeedCMPerSec float64
}

// Valve is one of the relay-controlled solenoids on the fluid path
type Valve int

const (
	ValveAir Valve = iota
	ValveFreshwater
)

func (v Valve) String() string {
	switch v {
	case ValveAir:
		return "Air"
	case ValveFreshwater:
		return "Freshwater"
	default:
		return "Unknown"
	}
}

// Valves lists every solenoid so that safe-state code can close all of them
var Valves = []Valve{ValveAir, ValveFreshwater}

// TempSensor identifies an RTD channel
type TempSensor int

const (
	SampleTempSensor      TempSensor = 1
	FlushwaterTempSensor  TempSensor = 2
	InternalAirTempSensor TempSensor = 3
)

func (t TempSensor) String() string {
	switch t {
	case SampleTempSensor:
		return "Sample"
	case FlushwaterTempSensor:
		return "Flushwater"
	case InternalAirTempSensor:
		return "InternalAir"
	default:
		return "Unknown"
	}
}

// Key is a keypad button
type Key int

const (
	KeyNone Key = iota
	KeySelect
	KeyDown
	KeyUp
	KeyLeft
	KeyRight
)

func (k Key) String() string {
	switch k {
	case KeySelect:
		return "S"
	case KeyDown:
		return "D"
	case KeyUp:
		return "U"
	case KeyLeft:
		return "L"
	case KeyRight:
		return "R"
	default:
		return "-"
	}
}

// Messages sent to the topside host
const (
	StopPump        = "F"
	StartPump       = "P"
	BeginSample     = "S"
	RequestTime     = "C"
	RequestTideData = "T"

	ReportMotorErr                  = "EM"
	ReportTubeErr                   = "ET"
	ReportSampleWaterNotDetectedErr = "EW"
	ReportEStopPressed              = "EE"
	ReportFlushWaterTempErr         = "EH"
	ReportSampleBegin               = "ES"
	ReportSampleEnd                 = "EC"
)
