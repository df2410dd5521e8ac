// Package telemetry forwards audit records to time-series storage.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"

	"fswatcher/internal/mirror"
)

const (
	DefaultDatabase = "sdc_aws_logs"
	DefaultTable    = "sdc_aws_s3_bucket_log_table"

	notApplicable = "N/A"
)

// ErrNoBucket means an audit record named neither a source nor a destination bucket.
var ErrNoBucket = errors.New("a source or destination bucket is required")

// RecordWriter is the subset of the Timestream write client used here.
type RecordWriter interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

// TimestreamRecorder writes one Timestream record per audit record.
type TimestreamRecorder struct {
	client   RecordWriter
	database string
	table    string
}

var _ mirror.AuditRecorder = (*TimestreamRecorder)(nil)

// NewTimestreamRecorder creates a recorder. Empty names select the defaults.
func NewTimestreamRecorder(client RecordWriter, database, table string) *TimestreamRecorder {
	if database == "" {
		database = DefaultDatabase
	}
	if table == "" {
		table = DefaultTable
	}
	return &TimestreamRecorder{client: client, database: database, table: table}
}

// NewTimestreamRecorderFromConfig builds the client from a loaded AWS config.
func NewTimestreamRecorderFromConfig(cfg aws.Config, database, table string) *TimestreamRecorder {
	return NewTimestreamRecorder(timestreamwrite.NewFromConfig(cfg), database, table)
}

func (r *TimestreamRecorder) RecordAudit(ctx context.Context, rec *mirror.AuditRecord) error {
	record, err := buildRecord(rec)
	if err != nil {
		return err
	}
	_, err = r.client.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
		DatabaseName: aws.String(r.database),
		TableName:    aws.String(r.table),
		Records:      []types.Record{record},
	})
	if err != nil {
		return fmt.Errorf("writing to timestream %s.%s: %w", r.database, r.table, err)
	}
	return nil
}

func buildRecord(rec *mirror.AuditRecord) (types.Record, error) {
	if rec.SourceBucket == "" && rec.DestBucket == "" {
		return types.Record{}, ErrNoBucket
	}
	ms := rec.Timestamp.UnixMilli()
	seconds := float64(rec.Timestamp.UnixNano()) / 1e9

	return types.Record{
		Time:     aws.String(strconv.FormatInt(ms, 10)),
		TimeUnit: types.TimeUnitMilliseconds,
		Dimensions: []types.Dimension{
			dimension("action_type", rec.Action),
			dimension("source_bucket", orNA(rec.SourceBucket)),
			dimension("destination_bucket", orNA(rec.DestBucket)),
			dimension("file_key", rec.SourceKey),
			dimension("new_file_key", orNA(rec.DestKey)),
			dimension("current file count", notApplicable),
		},
		MeasureName:      aws.String("timestamp"),
		MeasureValue:     aws.String(strconv.FormatFloat(seconds, 'f', -1, 64)),
		MeasureValueType: types.MeasureValueTypeDouble,
	}, nil
}

func dimension(name, value string) types.Dimension {
	return types.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func orNA(s string) string {
	if s == "" {
		return notApplicable
	}
	return s
}
