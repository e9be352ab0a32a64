// Package export writes per-user parquet datasets consumed by the offline
// model-training process. It is not part of the serving path.
package export

import (
	"context"
	"fmt"
	"math"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"example.com/kinetic/internal/domain"
)

const writerParallelism = 4

type powerCurveRow struct {
	UserID     string  `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Sport      string  `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DurationS  int64   `parquet:"name=duration_s, type=INT64"`
	Watts      float64 `parquet:"name=watts, type=DOUBLE"`
	ComputedAt string  `parquet:"name=computed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type activitySummaryRow struct {
	ActivityID        string  `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserID            string  `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Sport             string  `parquet:"name=sport, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	StartDate         string  `parquet:"name=start_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationS         float64 `parquet:"name=duration_s, type=DOUBLE"`
	DistanceM         float64 `parquet:"name=distance_m, type=DOUBLE"`
	ElevationGainM    float64 `parquet:"name=elevation_gain_m, type=DOUBLE"`
	AvgSpeedMPS       float64 `parquet:"name=avg_speed_mps, type=DOUBLE"`
	AvgHRBPM          float64 `parquet:"name=avg_hr_bpm, type=DOUBLE"`
	AvgPowerW         float64 `parquet:"name=avg_power_w, type=DOUBLE"`
	NormalizedPowerW  float64 `parquet:"name=normalized_power_w, type=DOUBLE"`
	TrainingLoad      float64 `parquet:"name=training_load, type=DOUBLE"`
	DecouplingPct     float64 `parquet:"name=decoupling_pct, type=DOUBLE"`
	PolarizationIndex float64 `parquet:"name=polarization_index, type=DOUBLE"`
	AvgGAPMPS         float64 `parquet:"name=avg_gap_mps, type=DOUBLE"`
}

// Reader is the read slice the exporter needs; both the query service and a
// bare store satisfy it.
type Reader interface {
	ListActivities(ctx context.Context, filter domain.ActivityFilter) ([]domain.Activity, error)
	GetPowerCurve(ctx context.Context, userID, sport string) ([]domain.PowerCurvePoint, error)
}

// Exporter reads activity history and serializes training datasets.
type Exporter struct {
	reader Reader
}

// NewExporter constructs an Exporter over reader.
func NewExporter(reader Reader) *Exporter {
	return &Exporter{reader: reader}
}

// PowerCurveDataset serializes the user's power curve for one sport as a
// SNAPPY-compressed parquet file.
func (e *Exporter) PowerCurveDataset(ctx context.Context, userID, sport string) ([]byte, error) {
	points, err := e.reader.GetPowerCurve(ctx, userID, sport)
	if err != nil {
		return nil, fmt.Errorf("load power curve for user %s: %w", userID, err)
	}

	rows := make([]powerCurveRow, len(points))
	for i, p := range points {
		rows[i] = powerCurveRow{
			UserID:     userID,
			Sport:      sport,
			DurationS:  int64(p.DurationS),
			Watts:      p.Watts,
			ComputedAt: p.ComputedAt.UTC().Format(time.RFC3339),
		}
	}
	return marshalParquet(new(powerCurveRow), rows)
}

// ActivitySummaryDataset serializes summary rows for every activity of the
// user inside the given window. Zero window bounds mean unbounded.
func (e *Exporter) ActivitySummaryDataset(ctx context.Context, userID string, start, end time.Time) ([]byte, error) {
	var rows []activitySummaryRow
	filter := domain.ActivityFilter{UserID: userID, Start: start, End: end, Limit: exportPageSize}

	for {
		activities, err := e.reader.ListActivities(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list activities for user %s: %w", userID, err)
		}
		for _, act := range activities {
			rows = append(rows, summaryRow(act))
		}
		if len(activities) < exportPageSize {
			break
		}
		filter.Offset += exportPageSize
	}
	return marshalParquet(new(activitySummaryRow), rows)
}

const exportPageSize = 200

func summaryRow(act domain.Activity) activitySummaryRow {
	return activitySummaryRow{
		ActivityID:        act.ID,
		UserID:            act.UserID,
		Sport:             act.SportType,
		StartDate:         act.StartDate.UTC().Format(time.RFC3339),
		DurationS:         act.DurationS,
		DistanceM:         act.DistanceM,
		ElevationGainM:    act.ElevationGainM,
		AvgSpeedMPS:       finiteOrZero(act.AverageSpeed),
		AvgHRBPM:          finiteOrZero(act.AverageHeartRate),
		AvgPowerW:         finiteOrZero(act.AveragePower),
		NormalizedPowerW:  finiteOrZero(act.NormalizedPower),
		TrainingLoad:      finiteOrZero(act.TrainingLoad),
		DecouplingPct:     finiteOrZero(act.Decoupling),
		PolarizationIndex: finiteOrZero(act.PolarizationIndex),
		AvgGAPMPS:         finiteOrZero(act.AverageGAP),
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func marshalParquet[T any](schema *T, rows []T) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, schema, writerParallelism)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
