package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pricestage/errs"
	"github.com/coachpo/pricestage/internal/app/ingest"
	"github.com/coachpo/pricestage/internal/audit"
	"github.com/coachpo/pricestage/internal/domain/diff"
	"github.com/coachpo/pricestage/internal/domain/pricing"
	"github.com/coachpo/pricestage/internal/domain/validate"
	"github.com/coachpo/pricestage/internal/snapshot"
)

// errStageRejected is returned after a stage whose file failed validation.
var errStageRejected = errors.New("stage rejected")

type summary struct {
	Dataset          string    `json:"dataset"`
	Version          uint64    `json:"version"`
	Rows             int       `json:"rows"`
	ActorID          string    `json:"actorId"`
	StagedAt         time.Time `json:"stagedAt"`
	RequiresOverride bool      `json:"requiresOverride,omitempty"`
}

func summarise[R any](dataset string, snap snapshot.Snapshot[R]) summary {
	return summary{
		Dataset:          dataset,
		Version:          snap.Version,
		Rows:             len(snap.Data),
		ActorID:          snap.ActorID,
		StagedAt:         snap.StagedAt,
		RequiresOverride: snap.RequiresOverride,
	}
}

type stageOutput struct {
	Dataset          string                  `json:"dataset"`
	Success          bool                    `json:"success"`
	Issues           []validate.Issue        `json:"issues,omitempty"`
	Staged           *summary                `json:"staged,omitempty"`
	Added            int                     `json:"added"`
	Removed          int                     `json:"removed"`
	Updated          int                     `json:"updated"`
	PriceAlerts      []pricing.PriceVariance `json:"priceAlerts,omitempty"`
	RequiresOverride bool                    `json:"requiresOverride,omitempty"`
}

type diffOutput[R any] struct {
	Dataset     string                  `json:"dataset"`
	Diff        diff.Result[R]          `json:"diff"`
	PriceAlerts []pricing.PriceVariance `json:"priceAlerts"`
}

type showOutput[R any] struct {
	Dataset  string                `json:"dataset"`
	Slot     snapshot.Slot         `json:"slot"`
	Present  bool                  `json:"present"`
	Snapshot *snapshot.Snapshot[R] `json:"snapshot,omitempty"`
}

type historyOutput struct {
	Events []audit.Event `json:"events"`
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runStage(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("stage")
	dataset := fs.String("dataset", "", "Dataset to stage into")
	actor := fs.String("actor", "", "Actor performing the upload")
	file := fs.String("file", "", "CSV file to stage (- reads stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*actor) == "" {
		return errors.New("stage: -actor is required")
	}
	content, err := readInput(*file)
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}

	switch *dataset {
	case rt.benchmark.Dataset():
		return stage(ctx, rt, rt.benchmark, content, *actor, out)
	case rt.merchant.Dataset():
		return stage(ctx, rt, rt.merchant, content, *actor, out)
	}
	return unknownDataset(rt, *dataset)
}

func stage[R any](ctx context.Context, rt *runtime, svc *ingest.Service[R], content, actor string, out io.Writer) error {
	res, err := svc.StageCSV(ctx, content, actor)
	if err != nil {
		return err
	}
	view := stageOutput{
		Dataset:          svc.Dataset(),
		Success:          res.Success,
		Issues:           res.Issues,
		PriceAlerts:      res.PriceAlerts,
		RequiresOverride: res.RequiresOverride,
	}
	if res.Success {
		staged := summarise(svc.Dataset(), res.Snapshot)
		view.Staged = &staged
		view.Added = len(res.Diff.Added)
		view.Removed = len(res.Diff.Removed)
		view.Updated = len(res.Diff.Updated)
	}
	if err := writeJSON(out, view); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: %d issue(s)", errStageRejected, len(res.Issues))
	}
	if res.RequiresOverride {
		rt.logger.Printf("%s: %d price alert(s) exceed the guard threshold", svc.Dataset(), len(res.PriceAlerts))
	}
	return nil
}

func runDiff(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("diff")
	dataset := fs.String("dataset", "", "Dataset to compare")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch *dataset {
	case rt.benchmark.Dataset():
		return showDiff(ctx, rt.benchmark, out)
	case rt.merchant.Dataset():
		return showDiff(ctx, rt.merchant, out)
	}
	return unknownDataset(rt, *dataset)
}

func showDiff[R any](ctx context.Context, svc *ingest.Service[R], out io.Writer) error {
	staged, ok, err := svc.GetStaging(ctx)
	if err != nil {
		return err
	}
	next := []R{}
	if ok && staged.Data != nil {
		next = staged.Data
	}
	result, err := svc.DiffWithProduction(ctx, next)
	if err != nil {
		return err
	}
	alerts, err := svc.EvaluatePriceGuards(ctx, next)
	if err != nil {
		return err
	}
	return writeJSON(out, diffOutput[R]{Dataset: svc.Dataset(), Diff: result, PriceAlerts: alerts})
}

func runPromote(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("promote")
	dataset := fs.String("dataset", "", "Dataset to promote")
	actor := fs.String("actor", "", "Actor performing the promotion")
	ack := fs.Bool("ack", false, "Acknowledge price alerts on the staged data")
	expect := fs.Uint64("expect-version", 0, "Promote only if staging still holds this version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*actor) == "" {
		return errors.New("promote: -actor is required")
	}
	var opts []ingest.PromoteOption
	if *ack {
		opts = append(opts, ingest.WithOverrideAcknowledged())
	}
	if *expect > 0 {
		opts = append(opts, ingest.WithExpectedStaging(*expect))
	}

	switch *dataset {
	case rt.benchmark.Dataset():
		return promote(ctx, rt.benchmark, *actor, opts, out)
	case rt.merchant.Dataset():
		return promote(ctx, rt.merchant, *actor, opts, out)
	}
	return unknownDataset(rt, *dataset)
}

func promote[R any](ctx context.Context, svc *ingest.Service[R], actor string, opts []ingest.PromoteOption, out io.Writer) error {
	snap, err := svc.Promote(ctx, actor, opts...)
	if err != nil {
		return err
	}
	return writeJSON(out, summarise(svc.Dataset(), snap))
}

func runRollback(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("rollback")
	dataset := fs.String("dataset", "", "Dataset to roll back")
	actor := fs.String("actor", "", "Actor performing the rollback")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*actor) == "" {
		return errors.New("rollback: -actor is required")
	}
	switch *dataset {
	case rt.benchmark.Dataset():
		return rollback(ctx, rt.benchmark, *actor, out)
	case rt.merchant.Dataset():
		return rollback(ctx, rt.merchant, *actor, out)
	}
	return unknownDataset(rt, *dataset)
}

func rollback[R any](ctx context.Context, svc *ingest.Service[R], actor string, out io.Writer) error {
	snap, err := svc.Rollback(ctx, actor)
	if err != nil {
		return err
	}
	return writeJSON(out, summarise(svc.Dataset(), snap))
}

func runShow(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("show")
	dataset := fs.String("dataset", "", "Dataset to read")
	slotName := fs.String("slot", string(snapshot.SlotProduction), "Slot to read (staging, production, backup)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	slot, err := snapshot.ParseSlot(*slotName)
	if err != nil {
		return err
	}
	switch *dataset {
	case rt.benchmark.Dataset():
		return show(ctx, rt.benchmark, slot, out)
	case rt.merchant.Dataset():
		return show(ctx, rt.merchant, slot, out)
	}
	return unknownDataset(rt, *dataset)
}

func show[R any](ctx context.Context, svc *ingest.Service[R], slot snapshot.Slot, out io.Writer) error {
	snap, ok, err := svc.Get(ctx, slot)
	if err != nil {
		return err
	}
	view := showOutput[R]{Dataset: svc.Dataset(), Slot: slot, Present: ok}
	if ok {
		view.Snapshot = &snap
	}
	return writeJSON(out, view)
}

func runHistory(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := newFlagSet("history")
	dataset := fs.String("dataset", "", "Only list events of this dataset")
	limit := fs.Int("limit", audit.DefaultHistoryLimit, "Maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset != "" && *dataset != rt.benchmark.Dataset() && *dataset != rt.merchant.Dataset() {
		return unknownDataset(rt, *dataset)
	}
	events, err := rt.history.List(ctx, *dataset, *limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return writeJSON(out, historyOutput{Events: events})
}

func unknownDataset(rt *runtime, name string) error {
	if name == "" {
		return errs.New("pricestage/dataset", errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("-dataset is required (%s or %s)", rt.benchmark.Dataset(), rt.merchant.Dataset())))
	}
	return errs.New("pricestage/dataset", errs.CodeNotFound,
		errs.WithDataset(name),
		errs.WithMessage(fmt.Sprintf("unknown dataset %q (expected %s or %s)", name, rt.benchmark.Dataset(), rt.merchant.Dataset())))
}

func readInput(path string) (string, error) {
	switch strings.TrimSpace(path) {
	case "":
		return "", errors.New("-file is required")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path.
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
