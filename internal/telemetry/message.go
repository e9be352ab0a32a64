package telemetry

import "time"

// MessageKind classifies decoded messages.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindFileID
	KindSession
	KindLap
	KindRecord
	KindEvent
)

func (k MessageKind) String() string {
	switch k {
	case KindFileID:
		return "file_id"
	case KindSession:
		return "session"
	case KindLap:
		return "lap"
	case KindRecord:
		return "record"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Global message numbers recognized by the decoder.
const (
	MsgFileID  uint16 = 0
	MsgSession uint16 = 18
	MsgLap     uint16 = 19
	MsgRecord  uint16 = 20
	MsgEvent   uint16 = 21
)

// Field numbers for record (per-sample) messages.
const (
	RecPositionLat         uint8 = 0
	RecPositionLong        uint8 = 1
	RecAltitude            uint8 = 2
	RecHeartRate           uint8 = 3
	RecCadence             uint8 = 4
	RecDistance            uint8 = 5
	RecSpeed               uint8 = 6
	RecPower               uint8 = 7
	RecGrade               uint8 = 9
	RecTemperature         uint8 = 13
	RecLeftRightBalance    uint8 = 30
	RecVerticalOscillation uint8 = 39
	RecStanceTime          uint8 = 41
)

// Field numbers for lap messages.
const (
	LapStartTime        uint8 = 2
	LapTotalElapsedTime uint8 = 7
	LapTotalTimerTime   uint8 = 8
	LapTotalDistance    uint8 = 9
	LapAvgSpeed         uint8 = 13
	LapAvgHeartRate     uint8 = 15
	LapAvgCadence       uint8 = 17
	LapAvgPower         uint8 = 19
	LapTotalAscent      uint8 = 21
	LapIntensity        uint8 = 23
	LapLeftRightBalance uint8 = 34
)

// Field numbers for session messages.
const (
	SessionStartTime        uint8 = 2
	SessionSport            uint8 = 5
	SessionTotalElapsedTime uint8 = 7
	SessionTotalTimerTime   uint8 = 8
	SessionTotalDistance    uint8 = 9
	SessionTotalCalories    uint8 = 11
	SessionAvgSpeed         uint8 = 14
	SessionAvgHeartRate     uint8 = 16
	SessionAvgCadence       uint8 = 18
	SessionAvgPower         uint8 = 20
	SessionTotalAscent      uint8 = 22
)

// Field numbers for file id messages.
const (
	FileIDType         uint8 = 0
	FileIDManufacturer uint8 = 1
	FileIDProduct      uint8 = 2
	FileIDSerial       uint8 = 3
	FileIDTimeCreated  uint8 = 4
)

// FieldTimestamp is the shared absolute-timestamp field number.
const FieldTimestamp uint8 = 253

// fitEpoch is the container format's time zero.
var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

// TimestampToUTC converts a raw container timestamp to wall time.
func TimestampToUTC(raw uint32) time.Time {
	return fitEpoch.Add(time.Duration(raw) * time.Second)
}

type fieldValue struct {
	invalid  bool
	isString bool
	num      float64
	raw      uint64
	str      string
}

// Message is one decoded message. Field values are raw wire values; unit
// scaling belongs to the normalizer.
type Message struct {
	Kind      MessageKind
	GlobalNum uint16
	fields    map[uint8]fieldValue
}

// Has reports whether the field is present and holds a valid value.
func (m *Message) Has(field uint8) bool {
	v, ok := m.fields[field]
	return ok && !v.invalid
}

// Value returns the field's numeric value. ok is false when the field is
// absent, invalid or a string.
func (m *Message) Value(field uint8) (float64, bool) {
	v, ok := m.fields[field]
	if !ok || v.invalid || v.isString {
		return 0, false
	}
	return v.num, true
}

// Uint returns the field's raw unsigned value.
func (m *Message) Uint(field uint8) (uint64, bool) {
	v, ok := m.fields[field]
	if !ok || v.invalid || v.isString {
		return 0, false
	}
	return v.raw, true
}

// String returns the field's string value.
func (m *Message) String(field uint8) (string, bool) {
	v, ok := m.fields[field]
	if !ok || v.invalid || !v.isString {
		return "", false
	}
	return v.str, true
}

// Timestamp decodes the field as a container timestamp.
func (m *Message) Timestamp(field uint8) (time.Time, bool) {
	raw, ok := m.Uint(field)
	if !ok {
		return time.Time{}, false
	}
	return TimestampToUTC(uint32(raw)), true
}

func kindForGlobal(global uint16) MessageKind {
	switch global {
	case MsgFileID:
		return KindFileID
	case MsgSession:
		return KindSession
	case MsgLap:
		return KindLap
	case MsgRecord:
		return KindRecord
	case MsgEvent:
		return KindEvent
	default:
		return KindUnknown
	}
}
