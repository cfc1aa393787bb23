package postgres_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/pricestage/internal/app/ingest"
	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/infra/persistence/migrations"
	pgstore "github.com/coachpo/pricestage/internal/infra/persistence/postgres"
	"github.com/coachpo/pricestage/internal/snapshot"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
)

func TestMain(m *testing.M) {
	if os.Getenv("PRICESTAGE_CONTAINER_TESTS") != "1" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "pricestage"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	exitCode := 0
	if err := initialiseDatabase(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres contract tests skipped: %v\n", err)
	} else {
		exitCode = m.Run()
	}

	if testPool != nil {
		testPool.Close()
	}
	_ = pgContainer.Terminate(ctx)
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/pricestage?sslmode=disable", host, port.Port())

	if err := migrations.Apply(ctx, dsn, ""); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgx pool: %w", err)
	}
	testPool = pool
	return nil
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skip("set PRICESTAGE_CONTAINER_TESTS=1 to run postgres contract tests")
	}
	return testPool
}

func TestKVStoreContract(t *testing.T) {
	pool := requirePool(t)
	store := pgstore.NewKVStore(pool)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "contract:missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Put(ctx, "contract:key", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "contract:key", []byte(`{"a":2}`)))
	raw, found, err := store.Get(ctx, "contract:key")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"a":2}`, string(raw))

	require.NoError(t, store.Delete(ctx, "contract:key"))
	require.NoError(t, store.Delete(ctx, "contract:key"))
	_, found, err = store.Get(ctx, "contract:key")
	require.NoError(t, err)
	require.False(t, found)
}

func TestKVStoreSequenceContract(t *testing.T) {
	pool := requirePool(t)
	store := pgstore.NewKVStore(pool)
	ctx := context.Background()
	key := fmt.Sprintf("contract-%d:staging:seq", time.Now().UnixNano())

	first, err := store.NextSequence(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)

	second, err := store.NextSequence(ctx, key, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), second)

	jumped, err := store.NextSequence(ctx, key, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(11), jumped)
}

func TestAuditStoreContract(t *testing.T) {
	pool := requirePool(t)
	store := pgstore.NewAuditStore(pool)
	ctx := context.Background()
	base := time.Date(2025, 3, 31, 8, 0, 0, 0, time.UTC)

	first := audit.NewEvent("contract-zppa", audit.ActionStage, "u1", base, audit.RowCount(4))
	second := audit.NewEvent("contract-zppa", audit.ActionRollback, "u2", base.Add(time.Minute), nil)
	other := audit.NewEvent("contract-merchant", audit.ActionPromote, "u3", base.Add(2*time.Minute), audit.RowCount(1))
	for _, evt := range []audit.Event{first, second, other} {
		require.NoError(t, store.Record(ctx, evt))
	}
	require.NoError(t, store.Record(ctx, first))

	events, err := store.List(ctx, "contract-zppa", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, second.ID, events[0].ID)
	_, hasRows := events[0].Rows()
	require.False(t, hasRows)
	rows, hasRows := events[1].Rows()
	require.True(t, hasRows)
	require.Equal(t, 4, rows)
	require.True(t, first.Timestamp.Equal(events[1].Timestamp))
}

func TestMerchantPipelineOverPostgres(t *testing.T) {
	pool := requirePool(t)
	store := pgstore.New(pool)
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	namespace := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	slots := snapshot.NewKVSlots[pricing.MerchantRecord](store.Snapshots(), namespace, logger)
	svc, err := ingest.NewMerchantPipeline(slots, ingest.WithAuditHook(store.Audit()), ingest.WithLogger(logger))
	require.NoError(t, err)

	res, err := svc.StageCSV(ctx, "SKU,Item Name,Unit,Category,Price\n1001,Cement,bag,Building,180", "m1")
	require.NoError(t, err)
	require.True(t, res.Success)
	_, err = svc.Promote(ctx, "m1")
	require.NoError(t, err)

	restarted, err := ingest.NewMerchantPipeline(snapshot.NewKVSlots[pricing.MerchantRecord](store.Snapshots(), namespace, logger), ingest.WithLogger(logger))
	require.NoError(t, err)
	prod, ok, err := restarted.GetProduction(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, prod.Data[0].Price.Equal(decimal.NewFromInt(180)))

	restaged, err := restarted.StageCSV(ctx, "SKU,Item Name,Unit,Category,Price\n1001,Cement,bag,Building,185", "m2")
	require.NoError(t, err)
	require.Greater(t, restaged.Snapshot.Version, res.Snapshot.Version)
	_, err = restarted.Promote(ctx, "m1", ingest.WithExpectedStaging(res.Snapshot.Version))
	require.Error(t, err)

	history, err := store.Audit().List(ctx, pricing.DatasetMerchant, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)
}
