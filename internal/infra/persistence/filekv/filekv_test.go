package filekv

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/pricestage/internal/app/ingest"
	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/snapshot"
)

func TestBackendRoundTrip(t *testing.T) {
	backend, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := backend.Get(ctx, "zppa:staging")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, backend.Put(ctx, "zppa:staging", []byte(`{"data":[]}`)))
	raw, found, err := backend.Get(ctx, "zppa:staging")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"data":[]}`, string(raw))
	require.FileExists(t, filepath.Join(backend.Dir(), "zppa.staging.json"))

	require.NoError(t, backend.Delete(ctx, "zppa:staging"))
	require.NoError(t, backend.Delete(ctx, "zppa:staging"))
	_, found, err = backend.Get(ctx, "zppa:staging")
	require.NoError(t, err)
	require.False(t, found)

	entries, err := os.ReadDir(backend.Dir())
	require.NoError(t, err)
	require.Empty(t, entries, "temporary files must not linger")
}

func TestBackendRejectsUnsafeKeys(t *testing.T) {
	backend, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	for _, key := range []string{"", "../etc/passwd", "a/b", ":hidden"} {
		require.Error(t, backend.Put(ctx, key, []byte("x")), key)
	}
}

func TestOpenRequiresDirectory(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestMalformedFileDegradesToEmptySnapshot(t *testing.T) {
	backend, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(backend.Dir(), "merchant.production.json"), []byte("{broken"), 0o600))

	var buf bytes.Buffer
	slots := snapshot.NewKVSlots[pricing.MerchantRecord](backend, pricing.DatasetMerchant, log.New(&buf, "", 0))
	_, ok, err := slots.Production.Read(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, buf.String(), "malformed")
}

func TestPipelineSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	quiet := log.New(io.Discard, "", 0)

	open := func() *ingest.BenchmarkService {
		backend, err := Open(dir)
		require.NoError(t, err)
		svc, err := ingest.NewBenchmarkPipeline(snapshot.NewKVSlots[pricing.BenchmarkRecord](backend, pricing.DatasetBenchmark, quiet), ingest.WithLogger(quiet))
		require.NoError(t, err)
		return svc
	}

	svc := open()
	res, err := svc.StageCSV(ctx, "Item Name,Category,Average Price,Source Label,Last Updated\nCement 50kg,Building Materials,180.00,ZPPA 2025 Q1,2025-03-31", "u1")
	require.NoError(t, err)
	require.True(t, res.Success)

	staged, ok, err := open().GetStaging(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, staged.Data[0].AveragePrice.Equal(decimal.NewFromInt(180)))
	require.Equal(t, res.Snapshot.Version, staged.Version)
}

func TestAuditLogAppendAndList(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logFile, err := NewAuditLog(dir, log.New(&buf, "", 0))
	require.NoError(t, err)
	ctx := context.Background()

	empty, err := logFile.List(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, empty)

	base := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, logFile.Record(ctx, audit.NewEvent("zppa", audit.ActionStage, "u1", base, audit.RowCount(2))))
	require.NoError(t, logFile.Record(ctx, audit.NewEvent("merchant", audit.ActionStage, "m1", base.Add(time.Minute), audit.RowCount(1))))

	f, err := os.OpenFile(filepath.Join(dir, auditLogName), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, logFile.Record(ctx, audit.NewEvent("zppa", audit.ActionRollback, "u2", base.Add(2*time.Minute), audit.RowCount(2))))

	events, err := logFile.List(ctx, "zppa", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, audit.ActionRollback, events[0].Action)
	require.Equal(t, audit.ActionStage, events[1].Action)
	rows, ok := events[1].Rows()
	require.True(t, ok)
	require.Equal(t, 2, rows)
	require.Contains(t, buf.String(), "malformed line 3")

	limited, err := logFile.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "u2", limited[0].ActorID)
}
