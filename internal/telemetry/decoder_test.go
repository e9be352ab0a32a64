package telemetry_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/kinetic/internal/telemetry"
	"example.com/kinetic/internal/telemetry/telemetrytest"
)

func TestDecoderRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	file := telemetrytest.NewActivityFile(start)
	for i := 0; i < 3; i++ {
		file.AddRecord(telemetrytest.Record{
			Time:      start.Add(time.Duration(i) * time.Second),
			Power:     telemetrytest.F(210),
			HeartRate: telemetrytest.F(140),
			Cadence:   telemetrytest.F(88),
			SpeedMPS:  telemetrytest.F(5.0),
			DistanceM: telemetrytest.F(float64(i) * 5.0),
			AltitudeM: telemetrytest.F(120),
		})
	}
	file.AddLap(telemetrytest.Lap{
		Start:     start,
		DurationS: 3,
		DistanceM: 15,
		AvgSpeed:  5.0,
		AvgHR:     140,
		AvgPower:  210,
		Intensity: telemetrytest.IntensityActive,
	})
	file.AddSession(telemetrytest.Session{
		Start:     start,
		Sport:     telemetrytest.SportCycling,
		DurationS: 3,
		DistanceM: 15,
		AvgSpeed:  5.0,
		AvgHR:     140,
		AvgPower:  210,
	})

	dec := telemetry.NewDecoder(bytes.NewReader(file.Bytes()))

	var kinds []telemetry.MessageKind
	var records []*telemetry.Message
	for {
		msg, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, msg.Kind)
		if msg.Kind == telemetry.KindRecord {
			records = append(records, msg)
		}
	}

	require.Equal(t, []telemetry.MessageKind{
		telemetry.KindFileID,
		telemetry.KindRecord, telemetry.KindRecord, telemetry.KindRecord,
		telemetry.KindLap,
		telemetry.KindSession,
	}, kinds)

	first := records[0]
	power, ok := first.Value(telemetry.RecPower)
	require.True(t, ok)
	require.Equal(t, 210.0, power)

	// Raw wire values: the decoder must not apply unit scaling.
	speed, ok := first.Value(telemetry.RecSpeed)
	require.True(t, ok)
	require.Equal(t, 5000.0, speed)

	ts, ok := first.Timestamp(telemetry.FieldTimestamp)
	require.True(t, ok)
	require.Equal(t, start, ts)
}

func TestDecoderReportsInvalidSentinelsAsAbsent(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	file.AddRecord(telemetrytest.Record{
		Time:      start,
		HeartRate: telemetrytest.F(150),
		// Power deliberately absent: written as the 0xFFFF sentinel.
	})

	dec := telemetry.NewDecoder(bytes.NewReader(file.Bytes()))

	_, err := dec.Next() // file_id
	require.NoError(t, err)
	msg, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, telemetry.KindRecord, msg.Kind)

	_, ok := msg.Value(telemetry.RecPower)
	require.False(t, ok)
	hr, ok := msg.Value(telemetry.RecHeartRate)
	require.True(t, ok)
	require.Equal(t, 150.0, hr)
}

func TestDecoderSkipsUnknownMessageKinds(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	file.AddUnknownMessage(147) // vendor extension
	file.AddRecord(telemetrytest.Record{Time: start, Power: telemetrytest.F(200)})

	dec := telemetry.NewDecoder(bytes.NewReader(file.Bytes()))

	_, err := dec.Next() // file_id
	require.NoError(t, err)

	msg, err := dec.Next()
	require.ErrorIs(t, err, telemetry.ErrUnsupportedMessage)
	require.NotNil(t, msg)
	require.Equal(t, telemetry.KindUnknown, msg.Kind)
	require.Equal(t, uint16(147), msg.GlobalNum)

	// Decoding continues past the unsupported message.
	msg, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, telemetry.KindRecord, msg.Kind)

	_, err = dec.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderRejectsBadMagic(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	data := file.Bytes()
	data[8] = 'X'

	dec := telemetry.NewDecoder(bytes.NewReader(data))
	_, err := dec.Next()
	require.ErrorIs(t, err, telemetry.ErrMalformedContainer)
}

func TestDecoderRejectsInvalidHeaderSize(t *testing.T) {
	data := []byte{13, 0, 0, 0}
	dec := telemetry.NewDecoder(bytes.NewReader(data))
	_, err := dec.Next()
	require.ErrorIs(t, err, telemetry.ErrMalformedContainer)
}

func TestDecoderRejectsChecksumMismatch(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	file.AddRecord(telemetrytest.Record{Time: start, Power: telemetrytest.F(200)})
	data := file.Bytes()
	data[len(data)-1] ^= 0xFF // corrupt the trailing checksum

	dec := telemetry.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Next()
		if err == nil {
			continue
		}
		require.ErrorIs(t, err, telemetry.ErrMalformedContainer)
		return
	}
}

func TestDecoderRejectsTruncatedFile(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	file := telemetrytest.NewActivityFile(start)
	file.AddRecord(telemetrytest.Record{Time: start, Power: telemetrytest.F(200)})
	data := file.Bytes()
	data = data[:len(data)-10]

	dec := telemetry.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Next()
		if err == nil {
			continue
		}
		require.ErrorIs(t, err, telemetry.ErrMalformedContainer)
		return
	}
}
