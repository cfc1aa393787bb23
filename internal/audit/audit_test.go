package audit

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	at := time.Date(2025, 3, 31, 12, 0, 0, 0, time.FixedZone("CAT", 2*3600))
	evt := NewEvent("zppa", ActionStage, "u1", at, RowCount(3))
	require.NotEmpty(t, evt.ID)
	require.Equal(t, time.UTC, evt.Timestamp.Location())
	rows, ok := evt.Rows()
	require.True(t, ok)
	require.Equal(t, 3, rows)

	_, ok = NewEvent("zppa", ActionRollback, "u1", at, nil).Rows()
	require.False(t, ok)
}

func TestEventJSONShape(t *testing.T) {
	evt := NewEvent("merchant", ActionPromote, "u2", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), RowCount(0))
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"action":"promote"`)
	require.Contains(t, string(raw), `"details":{"rows":0}`)

	raw, err = json.Marshal(NewEvent("merchant", ActionRollback, "u2", time.Now(), nil))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "details")
}

func TestEmitIsolatesErrorsAndPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	ctx := context.Background()
	evt := NewEvent("zppa", ActionStage, "u1", time.Now(), nil)

	Emit(ctx, HookFunc(func(context.Context, Event) error { return errors.New("sink down") }), evt, logger)
	require.Contains(t, buf.String(), "sink down")

	require.NotPanics(t, func() {
		Emit(ctx, HookFunc(func(context.Context, Event) error { panic("kaboom") }), evt, logger)
	})
	require.Contains(t, buf.String(), "kaboom")

	require.NotPanics(t, func() { Emit(ctx, nil, evt, nil) })
}

func TestMultiDeliversToEveryHook(t *testing.T) {
	first := NewRecorder()
	second := NewRecorder()
	broken := HookFunc(func(context.Context, Event) error { panic("broken") })

	hook := Multi(nil, first, broken, nil, second)
	require.NoError(t, hook.Record(context.Background(), NewEvent("zppa", ActionPromote, "u", time.Now(), nil)))
	require.Len(t, first.Events(), 1)
	require.Len(t, second.Events(), 1)
}

func TestLogHook(t *testing.T) {
	var buf bytes.Buffer
	hook := LogHook(log.New(&buf, "", 0))
	ctx := context.Background()
	require.NoError(t, hook.Record(ctx, NewEvent("zppa", ActionStage, "u1", time.Now(), RowCount(2))))
	require.NoError(t, hook.Record(ctx, NewEvent("zppa", ActionRollback, "u1", time.Now(), nil)))
	require.Contains(t, buf.String(), "action=stage actor=u1 rows=2")
	require.Contains(t, buf.String(), "action=rollback actor=u1\n")

	require.NoError(t, LogHook(nil).Record(ctx, Event{}))
}

func TestRecorderListNewestFirst(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, dataset := range []string{"zppa", "merchant", "zppa", "zppa"} {
		require.NoError(t, rec.Record(ctx, NewEvent(dataset, ActionStage, "u", base.Add(time.Duration(i)*time.Minute), nil)))
	}

	all, err := rec.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.True(t, all[0].Timestamp.After(all[3].Timestamp))

	zppa, err := rec.List(ctx, "zppa", 2)
	require.NoError(t, err)
	require.Len(t, zppa, 2)
	require.Equal(t, base.Add(3*time.Minute), zppa[0].Timestamp)
	require.Equal(t, base.Add(2*time.Minute), zppa[1].Timestamp)
}
