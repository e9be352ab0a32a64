// Package telemetrytest builds syntactically valid activity containers for
// tests. Values are given in physical units and encoded with the same
// scale factors real devices use.
package telemetrytest

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/tormoder/fit/dyncrc16"
)

// Sport enum values used in session messages.
const (
	SportGeneric uint8 = 0
	SportRunning uint8 = 1
	SportCycling uint8 = 2
)

// Lap intensity enum values.
const (
	IntensityActive   uint8 = 0
	IntensityRest     uint8 = 1
	IntensityWarmup   uint8 = 2
	IntensityCooldown uint8 = 3
)

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

// FitTime converts wall time to the container's epoch seconds.
func FitTime(t time.Time) uint32 {
	return uint32(t.UTC().Sub(fitEpoch) / time.Second)
}

// F is a shorthand for optional physical values.
func F(v float64) *float64 { return &v }

// FieldDef describes one field in a definition record.
type FieldDef struct {
	Num  uint8
	Size uint8
	Base uint8
}

// Builder assembles the data section record by record. Bytes() frames it
// with a checksummed header and trailer.
type Builder struct {
	data bytes.Buffer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Definition appends a definition record for the local message type.
func (b *Builder) Definition(local uint8, global uint16, fields ...FieldDef) {
	b.data.WriteByte(0x40 | (local & 0x0F))
	b.data.WriteByte(0) // reserved
	b.data.WriteByte(0) // little endian
	var g [2]byte
	binary.LittleEndian.PutUint16(g[:], global)
	b.data.Write(g[:])
	b.data.WriteByte(uint8(len(fields)))
	for _, f := range fields {
		b.data.Write([]byte{f.Num, f.Size, f.Base})
	}
}

// Data appends a data record for the local message type. The payload must
// match the field sizes of the matching definition.
func (b *Builder) Data(local uint8, payload []byte) {
	b.data.WriteByte(local & 0x0F)
	b.data.Write(payload)
}

// Bytes frames the accumulated records into a complete container with a
// 14-byte header, valid header checksum and trailing file checksum.
func (b *Builder) Bytes() []byte {
	header := make([]byte, 14)
	header[0] = 14
	header[1] = 0x20 // protocol version
	binary.LittleEndian.PutUint16(header[2:4], 2140)
	binary.LittleEndian.PutUint32(header[4:8], uint32(b.data.Len()))
	copy(header[8:12], ".FIT")
	binary.LittleEndian.PutUint16(header[12:14], dyncrc16.Checksum(header[:12]))

	out := append(header, b.data.Bytes()...)
	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], dyncrc16.Checksum(out))
	return append(out, crc[:]...)
}

// Record holds the per-sample channels supported by the builder; nil means
// the channel is written as the invalid sentinel.
type Record struct {
	Time         time.Time
	Power        *float64
	HeartRate    *float64
	Cadence      *float64
	SpeedMPS     *float64
	DistanceM    *float64
	AltitudeM    *float64
	GradePct     *float64
	TemperatureC *float64
}

// Lap describes one lap boundary message.
type Lap struct {
	Start      time.Time
	DurationS  float64
	DistanceM  float64
	AvgSpeed   float64
	AvgHR      float64
	AvgCadence float64
	AvgPower   float64
	AscentM    float64
	Intensity  uint8
}

// Session describes the session summary message.
type Session struct {
	Start      time.Time
	Sport      uint8
	DurationS  float64
	DistanceM  float64
	Calories   float64
	AvgSpeed   float64
	AvgHR      float64
	AvgCadence float64
	AvgPower   float64
	AscentM    float64
}

// Local message type assignments used by ActivityFile.
const (
	localFileID  uint8 = 0
	localRecord  uint8 = 1
	localLap     uint8 = 2
	localSession uint8 = 3
	localOther   uint8 = 4
)

// ActivityFile composes a realistic activity: a file id message, then
// records, laps and a session, in the order methods are called.
type ActivityFile struct {
	b              *Builder
	recordDefined  bool
	lapDefined     bool
	sessionDefined bool
}

// NewActivityFile starts a file with a file_id message of type activity.
func NewActivityFile(created time.Time) *ActivityFile {
	f := &ActivityFile{b: NewBuilder()}
	f.b.Definition(localFileID, 0,
		FieldDef{Num: 0, Size: 1, Base: 0x00},   // type
		FieldDef{Num: 1, Size: 2, Base: 0x84},   // manufacturer
		FieldDef{Num: 4, Size: 4, Base: 0x86},   // time_created
	)
	payload := make([]byte, 0, 7)
	payload = append(payload, 4) // activity
	payload = appendU16(payload, 255)
	payload = appendU32(payload, FitTime(created))
	f.b.Data(localFileID, payload)
	return f
}

// AddRecord appends one per-sample record message.
func (f *ActivityFile) AddRecord(r Record) {
	if !f.recordDefined {
		f.b.Definition(localRecord, 20,
			FieldDef{Num: 253, Size: 4, Base: 0x86}, // timestamp
			FieldDef{Num: 7, Size: 2, Base: 0x84},   // power
			FieldDef{Num: 3, Size: 1, Base: 0x02},   // heart_rate
			FieldDef{Num: 4, Size: 1, Base: 0x02},   // cadence
			FieldDef{Num: 6, Size: 2, Base: 0x84},   // speed
			FieldDef{Num: 5, Size: 4, Base: 0x86},   // distance
			FieldDef{Num: 2, Size: 2, Base: 0x84},   // altitude
			FieldDef{Num: 9, Size: 2, Base: 0x83},   // grade
			FieldDef{Num: 13, Size: 1, Base: 0x01},  // temperature
		)
		f.recordDefined = true
	}
	payload := make([]byte, 0, 19)
	payload = appendU32(payload, FitTime(r.Time))
	payload = appendOptU16(payload, r.Power, 1)
	payload = appendOptU8(payload, r.HeartRate, 1)
	payload = appendOptU8(payload, r.Cadence, 1)
	payload = appendOptU16(payload, r.SpeedMPS, 1000)
	payload = appendOptU32(payload, r.DistanceM, 100)
	payload = appendOptAltitude(payload, r.AltitudeM)
	payload = appendOptS16(payload, r.GradePct, 100)
	payload = appendOptS8(payload, r.TemperatureC)
	f.b.Data(localRecord, payload)
}

// AddLap appends one lap message.
func (f *ActivityFile) AddLap(l Lap) {
	if !f.lapDefined {
		f.b.Definition(localLap, 19,
			FieldDef{Num: 253, Size: 4, Base: 0x86}, // timestamp
			FieldDef{Num: 2, Size: 4, Base: 0x86},   // start_time
			FieldDef{Num: 7, Size: 4, Base: 0x86},   // total_elapsed_time
			FieldDef{Num: 9, Size: 4, Base: 0x86},   // total_distance
			FieldDef{Num: 13, Size: 2, Base: 0x84},  // avg_speed
			FieldDef{Num: 15, Size: 1, Base: 0x02},  // avg_heart_rate
			FieldDef{Num: 17, Size: 1, Base: 0x02},  // avg_cadence
			FieldDef{Num: 19, Size: 2, Base: 0x84},  // avg_power
			FieldDef{Num: 21, Size: 2, Base: 0x84},  // total_ascent
			FieldDef{Num: 23, Size: 1, Base: 0x00},  // intensity
		)
		f.lapDefined = true
	}
	end := l.Start.Add(time.Duration(l.DurationS * float64(time.Second)))
	payload := make([]byte, 0, 25)
	payload = appendU32(payload, FitTime(end))
	payload = appendU32(payload, FitTime(l.Start))
	payload = appendU32(payload, uint32(l.DurationS*1000))
	payload = appendU32(payload, uint32(l.DistanceM*100))
	payload = appendU16(payload, uint16(l.AvgSpeed*1000))
	payload = append(payload, uint8(l.AvgHR))
	payload = append(payload, uint8(l.AvgCadence))
	payload = appendU16(payload, uint16(l.AvgPower))
	payload = appendU16(payload, uint16(l.AscentM))
	payload = append(payload, l.Intensity)
	f.b.Data(localLap, payload)
}

// AddSession appends the session summary message.
func (f *ActivityFile) AddSession(s Session) {
	if !f.sessionDefined {
		f.b.Definition(localSession, 18,
			FieldDef{Num: 253, Size: 4, Base: 0x86}, // timestamp
			FieldDef{Num: 2, Size: 4, Base: 0x86},   // start_time
			FieldDef{Num: 5, Size: 1, Base: 0x00},   // sport
			FieldDef{Num: 7, Size: 4, Base: 0x86},   // total_elapsed_time
			FieldDef{Num: 9, Size: 4, Base: 0x86},   // total_distance
			FieldDef{Num: 11, Size: 2, Base: 0x84},  // total_calories
			FieldDef{Num: 14, Size: 2, Base: 0x84},  // avg_speed
			FieldDef{Num: 16, Size: 1, Base: 0x02},  // avg_heart_rate
			FieldDef{Num: 18, Size: 1, Base: 0x02},  // avg_cadence
			FieldDef{Num: 20, Size: 2, Base: 0x84},  // avg_power
			FieldDef{Num: 22, Size: 2, Base: 0x84},  // total_ascent
		)
		f.sessionDefined = true
	}
	end := s.Start.Add(time.Duration(s.DurationS * float64(time.Second)))
	payload := make([]byte, 0, 27)
	payload = appendU32(payload, FitTime(end))
	payload = appendU32(payload, FitTime(s.Start))
	payload = append(payload, s.Sport)
	payload = appendU32(payload, uint32(s.DurationS*1000))
	payload = appendU32(payload, uint32(s.DistanceM*100))
	payload = appendU16(payload, uint16(s.Calories))
	payload = appendU16(payload, uint16(s.AvgSpeed*1000))
	payload = append(payload, uint8(s.AvgHR))
	payload = append(payload, uint8(s.AvgCadence))
	payload = appendU16(payload, uint16(s.AvgPower))
	payload = appendU16(payload, uint16(s.AscentM))
	f.b.Data(localSession, payload)
}

// AddUnknownMessage appends a message with an unrecognized global number so
// tests can exercise skip-and-continue decoding.
func (f *ActivityFile) AddUnknownMessage(global uint16) {
	f.b.Definition(localOther, global,
		FieldDef{Num: 0, Size: 2, Base: 0x84},
		FieldDef{Num: 1, Size: 4, Base: 0x86},
	)
	payload := make([]byte, 0, 6)
	payload = appendU16(payload, 7)
	payload = appendU32(payload, 42)
	f.b.Data(localOther, payload)
}

// Bytes returns the complete framed file.
func (f *ActivityFile) Bytes() []byte { return f.b.Bytes() }

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendOptU8(b []byte, v *float64, scale float64) []byte {
	if v == nil {
		return append(b, 0xFF)
	}
	return append(b, uint8(*v*scale))
}

func appendOptS8(b []byte, v *float64) []byte {
	if v == nil {
		return append(b, 0x7F)
	}
	return append(b, byte(int8(*v)))
}

func appendOptU16(b []byte, v *float64, scale float64) []byte {
	if v == nil {
		return appendU16(b, 0xFFFF)
	}
	return appendU16(b, uint16(*v*scale))
}

func appendOptS16(b []byte, v *float64, scale float64) []byte {
	if v == nil {
		return appendU16(b, 0x7FFF)
	}
	return appendU16(b, uint16(int16(*v*scale)))
}

func appendOptU32(b []byte, v *float64, scale float64) []byte {
	if v == nil {
		return appendU32(b, 0xFFFFFFFF)
	}
	return appendU32(b, uint32(*v*scale))
}

func appendOptAltitude(b []byte, v *float64) []byte {
	if v == nil {
		return appendU16(b, 0xFFFF)
	}
	return appendU16(b, uint16((*v+500)*5))
}
