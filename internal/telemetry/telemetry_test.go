package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"

	"fswatcher/internal/mirror"
)

type fakeWriter struct {
	inputs []*timestreamwrite.WriteRecordsInput
	err    error
}

func (f *fakeWriter) WriteRecords(_ context.Context, in *timestreamwrite.WriteRecordsInput, _ ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &timestreamwrite.WriteRecordsOutput{}, nil
}

func dimensions(rec types.Record) map[string]string {
	out := make(map[string]string)
	for _, d := range rec.Dimensions {
		out[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return out
}

func TestTimestreamRecorder(t *testing.T) {
	w := &fakeWriter{}
	r := NewTimestreamRecorder(w, "", "")
	ts := time.Unix(1700000000, 250_000_000)

	err := r.RecordAudit(context.Background(), &mirror.AuditRecord{
		Action:       "CREATE",
		SourceKey:    "/watch/x/y.fits",
		DestKey:      "data/x/y.fits",
		SourceBucket: mirror.SourceBucketExternal,
		DestBucket:   "bucket",
		Timestamp:    ts,
	})
	if err != nil {
		t.Fatalf("RecordAudit() error = %v", err)
	}
	if len(w.inputs) != 1 {
		t.Fatalf("WriteRecords calls = %d, want 1", len(w.inputs))
	}
	in := w.inputs[0]
	if aws.ToString(in.DatabaseName) != DefaultDatabase || aws.ToString(in.TableName) != DefaultTable {
		t.Errorf("target = %s.%s", aws.ToString(in.DatabaseName), aws.ToString(in.TableName))
	}

	rec := in.Records[0]
	if aws.ToString(rec.Time) != "1700000000250" || rec.TimeUnit != types.TimeUnitMilliseconds {
		t.Errorf("time = %s %s", aws.ToString(rec.Time), rec.TimeUnit)
	}
	if aws.ToString(rec.MeasureName) != "timestamp" || rec.MeasureValueType != types.MeasureValueTypeDouble {
		t.Errorf("measure = %s %s", aws.ToString(rec.MeasureName), rec.MeasureValueType)
	}
	want := map[string]string{
		"action_type":        "CREATE",
		"source_bucket":      "External Server",
		"destination_bucket": "bucket",
		"file_key":           "/watch/x/y.fits",
		"new_file_key":       "data/x/y.fits",
		"current file count": "N/A",
	}
	got := dimensions(rec)
	for k, v := range want {
		if got[k] != v {
			t.Errorf("dimension %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestTimestreamRecorder_DeleteHasNoDestination(t *testing.T) {
	w := &fakeWriter{}
	r := NewTimestreamRecorder(w, "db", "table")
	err := r.RecordAudit(context.Background(), &mirror.AuditRecord{
		Action:       "DELETE",
		SourceKey:    "/watch/a",
		DestKey:      "a",
		SourceBucket: mirror.SourceBucketExternal,
		Timestamp:    time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("RecordAudit() error = %v", err)
	}
	if got := dimensions(w.inputs[0].Records[0])["destination_bucket"]; got != "N/A" {
		t.Errorf("destination_bucket = %q, want N/A", got)
	}
	if aws.ToString(w.inputs[0].DatabaseName) != "db" {
		t.Errorf("database = %s", aws.ToString(w.inputs[0].DatabaseName))
	}
}

func TestTimestreamRecorder_Errors(t *testing.T) {
	w := &fakeWriter{}
	r := NewTimestreamRecorder(w, "", "")
	if err := r.RecordAudit(context.Background(), &mirror.AuditRecord{Action: "CREATE"}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("RecordAudit() error = %v, want ErrNoBucket", err)
	}
	if len(w.inputs) != 0 {
		t.Error("invalid record was written")
	}

	w.err = errors.New("throttled")
	err := r.RecordAudit(context.Background(), &mirror.AuditRecord{Action: "CREATE", SourceBucket: "s"})
	if !errors.Is(err, w.err) {
		t.Errorf("RecordAudit() error = %v, want wrapped client error", err)
	}
}

type countingRecorder struct {
	calls int
	err   error
}

func (c *countingRecorder) RecordAudit(context.Context, *mirror.AuditRecord) error {
	c.calls++
	return c.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a := &countingRecorder{err: boom}
	b := &countingRecorder{}
	m := Multi{a, b}

	err := m.RecordAudit(context.Background(), &mirror.AuditRecord{Action: "CREATE"})
	if !errors.Is(err, boom) {
		t.Errorf("RecordAudit() error = %v, want boom", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", a.calls, b.calls)
	}
	if err := (Multi{b}).RecordAudit(context.Background(), &mirror.AuditRecord{}); err != nil {
		t.Errorf("RecordAudit() error = %v", err)
	}
}
