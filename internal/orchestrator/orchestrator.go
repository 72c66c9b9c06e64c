// Package orchestrator runs one task: the full scheduling pipeline over a
// set of persisted import batches, from loaded plan rows through emitted
// work orders. The cancellation-registry and stage-progress idioms are
// grounded on the teacher's BulkOperationWorker (jobContexts map guarded
// by a RWMutex, NATS broadcast cancellation, periodic progress publish).
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pinggolf/aps-scheduler/internal/db"
	"github.com/pinggolf/aps-scheduler/internal/idgen"
	"github.com/pinggolf/aps-scheduler/internal/mes"
	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/emit"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/merge"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/parallelsync"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/split"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/timecorrect"
	"github.com/pinggolf/aps-scheduler/internal/pipeline/workerpool"
	"github.com/pinggolf/aps-scheduler/internal/queue"
	"github.com/pinggolf/aps-scheduler/internal/refdata"
)

// Stage-weighted progress fractions (§4.7): the persisted-row load/convert
// step stands in for spec.md's "parser" weight since the workbook itself
// was already parsed at upload time.
const (
	progressLoad         = 0.15
	progressMerge        = 0.10
	progressSplit        = 0.10
	progressCorrection   = 0.30
	progressParallelSync = 0.25
	progressEmit         = 0.10
)

// Options toggles individual pipeline stages; a disabled stage passes its
// input straight through. All default true.
type Options struct {
	EnableMerge        bool
	EnableSplit        bool
	EnableCorrection   bool
	EnableParallelSync bool

	MaxShiftHours           float64
	FeederChangeoverMinutes int
}

// DefaultOptions returns every stage enabled with the spec's defaults.
func DefaultOptions() Options {
	return Options{
		EnableMerge:        true,
		EnableSplit:        true,
		EnableCorrection:   true,
		EnableParallelSync: true,
		MaxShiftHours:      9,
	}
}

// Counts summarizes a finished task's output.
type Counts struct {
	PlanRows     int `json:"planRows"`
	MakerOrders  int `json:"makerOrders"`
	FeederOrders int `json:"feederOrders"`
	Diagnostics  int `json:"diagnostics"`
}

// Status is the external view of a task.
type Status struct {
	ID         string
	State      string
	StageName  string
	Progress   float64
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
	Counts     Counts
}

// Orchestrator runs tasks in-process, one goroutine per task, and
// publishes progress/completion over NATS for observers on any replica.
type Orchestrator struct {
	db        *db.Queries
	refdata   *refdata.Service
	nats      *queue.Manager
	mesClient *mes.Client

	idBatchSize int
	poolSize    int

	jobMu       sync.RWMutex
	jobContexts map[string]context.CancelFunc
}

func New(queries *db.Queries, refdataSvc *refdata.Service, natsManager *queue.Manager, idBatchSize int) *Orchestrator {
	if idBatchSize <= 0 {
		idBatchSize = 100
	}
	return &Orchestrator{
		db:          queries,
		refdata:     refdataSvc,
		nats:        natsManager,
		idBatchSize: idBatchSize,
		poolSize:    4,
		jobContexts: make(map[string]context.CancelFunc),
	}
}

// WithMESClient attaches an MES dispatch client; dispatch is skipped
// entirely when none is configured.
func (o *Orchestrator) WithMESClient(client *mes.Client) *Orchestrator {
	o.mesClient = client
	return o
}

// WithWorkerPoolSize bounds concurrent MES dispatch calls.
func (o *Orchestrator) WithWorkerPoolSize(size int) *Orchestrator {
	if size > 0 {
		o.poolSize = size
	}
	return o
}

// Start subscribes to this task's cancellation subject and launches the
// pipeline in a background goroutine, returning the new task id
// immediately (async, matching the teacher's coordinator-job pattern).
func (o *Orchestrator) Start(ctx context.Context, batchIDs []string, opts Options) (string, error) {
	taskID := idgen.Task()
	if err := o.db.CreateTask(ctx, taskID, batchIDs, opts); err != nil {
		return "", fmt.Errorf("start task: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.registerJobContext(taskID, cancel)

	sub, err := o.nats.Subscribe(queue.GetTaskCancelSubject(taskID), func(msg *nats.Msg) {
		o.cancelLocal(taskID)
	})
	if err != nil {
		cancel()
		o.unregisterJobContext(taskID)
		return "", fmt.Errorf("subscribe task cancellation: %w", err)
	}

	go func() {
		defer sub.Unsubscribe()
		defer cancel()
		defer o.unregisterJobContext(taskID)
		o.run(runCtx, taskID, batchIDs, opts)
	}()

	return taskID, nil
}

// Status loads the current persisted view of a task.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (Status, error) {
	row, err := o.db.GetTask(ctx, taskID)
	if err != nil {
		return Status{}, fmt.Errorf("get task status: %w", err)
	}
	if row == nil {
		return Status{}, fmt.Errorf("task %s not found", taskID)
	}

	st := Status{
		ID:       row.ID,
		State:    row.State,
		Progress: row.Progress,
	}
	if row.StageName.Valid {
		st.StageName = row.StageName.String
	}
	if row.StartedAt.Valid {
		t := row.StartedAt.Time
		st.StartedAt = &t
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		st.FinishedAt = &t
	}
	if row.Error.Valid {
		st.Error = row.Error.String
	}

	if len(row.Counts) > 0 {
		if err := json.Unmarshal(row.Counts, &st.Counts); err != nil {
			log.Printf("unmarshal task counts for %s: %v", taskID, err)
		}
	}
	return st, nil
}

// Cancel requests cooperative cancellation of a running task: the
// database flag lets any replica observe it at the next stage boundary,
// and the broadcast subject wakes the replica actually running it
// immediately.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	if err := o.db.RequestTaskCancel(ctx, taskID); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	data, _ := json.Marshal(struct{}{})
	if err := o.nats.Publish(queue.GetTaskCancelSubject(taskID), data); err != nil {
		log.Printf("publish cancellation for task %s: %v", taskID, err)
	}
	o.cancelLocal(taskID)
	return nil
}

func (o *Orchestrator) cancelLocal(taskID string) {
	o.jobMu.RLock()
	cancel, ok := o.jobContexts[taskID]
	o.jobMu.RUnlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) registerJobContext(taskID string, cancel context.CancelFunc) {
	o.jobMu.Lock()
	defer o.jobMu.Unlock()
	o.jobContexts[taskID] = cancel
}

func (o *Orchestrator) unregisterJobContext(taskID string) {
	o.jobMu.Lock()
	defer o.jobMu.Unlock()
	delete(o.jobContexts, taskID)
}

// run executes the full pipeline for one task, persisting progress after
// each stage and stopping at the next stage boundary if cancellation was
// requested.
func (o *Orchestrator) run(ctx context.Context, taskID string, batchIDs []string, opts Options) {
	if err := o.db.MarkTaskRunning(ctx, taskID); err != nil {
		o.fail(ctx, taskID, fmt.Errorf("mark running: %w", err))
		return
	}

	drafts, rowCount, err := o.loadDrafts(ctx, batchIDs)
	if err != nil {
		o.fail(ctx, taskID, fmt.Errorf("load plan rows: %w", err))
		return
	}
	o.publishProgress(ctx, taskID, "load", progressLoad)
	if o.cancelledMidway(ctx, taskID) {
		return
	}

	var allDiags []model.Diagnostic

	if opts.EnableMerge {
		merged, diags := merge.Run(drafts, merge.SequentialIDAllocator())
		drafts = merged
		allDiags = append(allDiags, diags...)
	}
	o.publishProgress(ctx, taskID, "merge", progressLoad+progressMerge)
	if o.cancelledMidway(ctx, taskID) {
		return
	}

	if opts.EnableSplit {
		maxShift := opts.MaxShiftHours
		if maxShift <= 0 {
			maxShift = 9
		}
		splitDrafts, diags := split.Run(drafts, o.capacityFn(), maxShift)
		drafts = splitDrafts
		allDiags = append(allDiags, diags...)
	}
	o.publishProgress(ctx, taskID, "split", progressLoad+progressMerge+progressSplit)
	if o.cancelledMidway(ctx, taskID) {
		return
	}

	if opts.EnableCorrection {
		corrected, diags := timecorrect.Run(drafts, refdata.NewMaintenanceService(o.refdata), refdata.NewCalendarService(o.refdata), refdata.NewSpeedService(o.refdata))
		drafts = corrected
		allDiags = append(allDiags, diags...)
	}
	o.publishProgress(ctx, taskID, "timecorrect", progressLoad+progressMerge+progressSplit+progressCorrection)
	if o.cancelledMidway(ctx, taskID) {
		return
	}

	if opts.EnableParallelSync {
		changeover := time.Duration(opts.FeederChangeoverMinutes) * time.Minute
		synced, diags := parallelsync.Run(drafts, refdata.NewMaintenanceService(o.refdata), refdata.NewSpeedService(o.refdata), changeover)
		drafts = synced
		allDiags = append(allDiags, diags...)
	}
	o.publishProgress(ctx, taskID, "parallelsync", progressLoad+progressMerge+progressSplit+progressCorrection+progressParallelSync)
	if o.cancelledMidway(ctx, taskID) {
		return
	}

	result, err := emit.Run(ctx, drafts, o.allocatorFactory())
	if err != nil {
		o.fail(ctx, taskID, fmt.Errorf("emit: %w", err))
		return
	}

	if err := o.persist(ctx, taskID, result); err != nil {
		o.fail(ctx, taskID, fmt.Errorf("persist work orders: %w", err))
		return
	}

	o.publishProgress(ctx, taskID, "emit", 1.0)

	if o.mesClient != nil {
		o.dispatchToMES(ctx, taskID, result)
	}

	counts := Counts{
		PlanRows:     rowCount,
		MakerOrders:  len(result.Makers),
		FeederOrders: len(result.Feeders),
		Diagnostics:  len(allDiags),
	}
	if err := o.db.FinishTaskWithResult(ctx, taskID, counts); err != nil {
		log.Printf("finish task %s: %v", taskID, err)
	}
	o.publishComplete(taskID, counts)
}

// cancelledMidway checks both the task's persisted state (another replica
// may have flipped it to "cancelling") and the run context, finishing the
// task as cancelled if either fired.
func (o *Orchestrator) cancelledMidway(ctx context.Context, taskID string) bool {
	select {
	case <-ctx.Done():
		o.finishCancelled(taskID)
		return true
	default:
	}

	row, err := o.db.GetTask(ctx, taskID)
	if err != nil || row == nil {
		return false
	}
	if row.State == "cancelling" {
		o.finishCancelled(taskID)
		return true
	}
	return false
}

func (o *Orchestrator) finishCancelled(taskID string) {
	bg := context.Background()
	if err := o.db.FinishTask(bg, taskID, "cancelled", ""); err != nil {
		log.Printf("finish cancelled task %s: %v", taskID, err)
	}
	data, _ := json.Marshal(struct{ State string }{"cancelled"})
	o.nats.Publish(queue.GetTaskCompleteSubject(taskID), data)
}

func (o *Orchestrator) fail(ctx context.Context, taskID string, err error) {
	log.Printf("task %s failed: %v", taskID, err)
	if dbErr := o.db.FinishTask(context.Background(), taskID, "failed", err.Error()); dbErr != nil {
		log.Printf("finish failed task %s: %v", taskID, dbErr)
	}
	data, _ := json.Marshal(struct{ Error string }{err.Error()})
	o.nats.Publish(queue.GetTaskFailedSubject(taskID), data)
}

func (o *Orchestrator) publishProgress(ctx context.Context, taskID, stage string, progress float64) {
	if err := o.db.UpdateTaskProgress(ctx, taskID, stage, progress, ""); err != nil {
		log.Printf("update task progress %s: %v", taskID, err)
	}
	data, _ := json.Marshal(struct {
		Stage    string  `json:"stage"`
		Progress float64 `json:"progress"`
	}{stage, progress})
	o.nats.Publish(queue.GetTaskProgressSubject(taskID), data)
}

func (o *Orchestrator) publishComplete(taskID string, counts Counts) {
	data, _ := json.Marshal(struct {
		State  string `json:"state"`
		Counts Counts `json:"counts"`
	}{"completed", counts})
	o.nats.Publish(queue.GetTaskCompleteSubject(taskID), data)
}

// loadDrafts reads every plan row for the given batches and converts each
// non-error row into a WorkOrderDraft seed.
func (o *Orchestrator) loadDrafts(ctx context.Context, batchIDs []string) ([]model.WorkOrderDraft, int, error) {
	var drafts []model.WorkOrderDraft
	rowCount := 0

	for _, batchID := range batchIDs {
		rows, err := o.db.ListPlanRows(ctx, batchID)
		if err != nil {
			return nil, 0, err
		}
		for _, r := range rows {
			rowCount++
			if r.Status == string(model.StatusError) {
				continue
			}
			drafts = append(drafts, rowToDraft(batchID, r))
		}
	}

	sort.Slice(drafts, func(i, j int) bool { return drafts[i].RowIndex < drafts[j].RowIndex })
	return drafts, rowCount, nil
}

func rowToDraft(batchID string, r db.PlanRowRow) model.WorkOrderDraft {
	id := r.WorkOrderID
	if id == "" {
		id = fmt.Sprintf("%s-%d", batchID, r.RowIndex)
	}
	d := model.WorkOrderDraft{
		ID:          id,
		OriginBatch: batchID,
		Lineage:     []string{id},
		PlanRow: model.PlanRow{
			RowIndex:       r.RowIndex,
			WorkOrderID:    r.WorkOrderID,
			ArticleCode:    r.ArticleCode,
			PackageType:    r.PackageType,
			Specification:  r.Specification,
			ProductionUnit: r.ProductionUnit,
			FeederCodes:    append([]string(nil), r.FeederCodes...),
			MakerCodes:     append([]string(nil), r.MakerCodes...),
			InputQuantity:  r.InputQuantity,
			FinalQuantity:  r.FinalQuantity,
			RawDateRange:   r.RawDateRange,
			Status:         model.ValidationStatus(r.Status),
		},
		Priority: 5,
	}
	if r.PlannedStart.Valid {
		d.PlannedStart = r.PlannedStart.Time
	}
	if r.PlannedEnd.Valid {
		d.PlannedEnd = r.PlannedEnd.Time
	}
	if len(d.MakerCodes) == 1 {
		d.Maker = d.MakerCodes[0]
	}
	if len(d.FeederCodes) >= 1 {
		d.Feeder = d.FeederCodes[0]
	}
	return d
}

// capacityFn computes single-machine daily capacity from the current
// speed snapshot, used by the split stage's trigger rule.
func (o *Orchestrator) capacityFn() split.CapacityFn {
	speed := refdata.NewSpeedService(o.refdata)
	return func(maker, article string, start, end time.Time) int {
		rate, eff, _ := speed.Rate(maker, article, start)
		hours := end.Sub(start).Hours()
		if hours <= 0 {
			return 0
		}
		return int(rate * eff * hours)
	}
}

// allocatorFactory wires the emission stage's id-sequence abstraction to
// the row-locked database counters, caching one allocator per (prefix,
// date) for the lifetime of a single run.
func (o *Orchestrator) allocatorFactory() emit.AllocatorFactory {
	cache := map[string]*db.SequenceAllocator{}
	var mu sync.Mutex
	return func(prefix idgen.WorkOrderPrefix, dateKey string) emit.SequenceAllocator {
		mu.Lock()
		defer mu.Unlock()
		key := string(prefix) + dateKey
		if cache[key] == nil {
			cache[key] = db.NewSequenceAllocator(o.db, string(prefix), dateKey, o.idBatchSize)
		}
		return cache[key]
	}
}

func (o *Orchestrator) persist(ctx context.Context, taskID string, result emit.Result) error {
	makerRows := make([]db.MakerOrderRow, 0, len(result.Makers))
	for _, m := range result.Makers {
		makerRows = append(makerRows, db.MakerOrderRow{
			ID:                m.ID,
			TaskID:            taskID,
			Maker:             m.Maker,
			Article:           m.Article,
			Unit:              m.Unit,
			PlanDate:          m.PlanDate,
			InputQuantity:     m.InputQuantity,
			FinalQuantity:     m.FinalQuantity,
			StartTime:         m.Start,
			EndTime:           m.End,
			SequenceWithinDay: m.SequenceWithinDay,
			FeederOrderID:     nullIfEmpty(m.FeederOrderID),
			IsBackup:          m.IsBackup,
			BackupReason:      nullIfEmpty(m.BackupReason),
			SplitFrom:         nullIfEmpty(m.SplitFrom),
			SplitIndex:        m.SplitIndex,
			MergedFrom:        m.MergedFrom,
			ManualReview:      m.ManualReview,
			ReviewReasons:     m.ReviewReasons,
		})
	}
	if err := o.db.InsertMakerOrders(ctx, makerRows); err != nil {
		return err
	}

	feederRows := make([]db.FeederOrderRow, 0, len(result.Feeders))
	var relatedRows []db.FeederRelatedMakerRow
	for _, f := range result.Feeders {
		feederRows = append(feederRows, db.FeederOrderRow{
			ID:                f.ID,
			TaskID:            taskID,
			Feeder:            f.Feeder,
			Article:           f.Article,
			Quantity:          f.Quantity,
			StartTime:         f.Start,
			EndTime:           f.End,
			SequenceWithinDay: f.SequenceWithinDay,
			ManualReview:      f.ManualReview,
			ReviewReasons:     f.ReviewReasons,
		})
		for _, rel := range f.RelatedMakers {
			relatedRows = append(relatedRows, db.FeederRelatedMakerRow{
				FeederOrderID: f.ID,
				MakerOrderID:  rel.MakerOrderID,
				Quantity:      rel.Quantity,
			})
		}
	}
	if len(feederRows) > 0 {
		if err := o.db.InsertFeederOrders(ctx, feederRows, relatedRows); err != nil {
			return err
		}
	}
	return nil
}

// dispatchToMES best-effort pushes every non-backup maker and feeder order
// to the MES, bounded by the orchestrator's worker pool. A failed dispatch
// is logged, not fatal: MES delivery is outside the pipeline's own
// correctness invariants, and a retry can be triggered by re-running
// dispatch against the undispatched rows later.
func (o *Orchestrator) dispatchToMES(ctx context.Context, taskID string, result emit.Result) {
	var mu sync.Mutex

	live := make([]model.MakerOrder, 0, len(result.Makers))
	for _, m := range result.Makers {
		if !m.IsBackup {
			live = append(live, m)
		}
	}

	var dispatchedMakers []string
	if err := workerpool.Run(ctx, o.poolSize, live, func(ctx context.Context, m model.MakerOrder) error {
		if _, err := o.mesClient.Dispatch(ctx, mes.MakerRecord(m, m.ID)); err != nil {
			log.Printf("mes dispatch maker order %s: %v", m.ID, err)
			return nil
		}
		mu.Lock()
		dispatchedMakers = append(dispatchedMakers, m.ID)
		mu.Unlock()
		return nil
	}); err != nil {
		log.Printf("maker dispatch pool for task %s: %v", taskID, err)
	}
	if len(dispatchedMakers) > 0 {
		if err := o.db.MarkMakerOrdersDispatched(ctx, dispatchedMakers); err != nil {
			log.Printf("mark maker orders dispatched for task %s: %v", taskID, err)
		}
	}

	var dispatchedFeeders []string
	if err := workerpool.Run(ctx, o.poolSize, result.Feeders, func(ctx context.Context, f model.FeederOrder) error {
		if _, err := o.mesClient.Dispatch(ctx, mes.FeederRecord(f, f.ID, nil)); err != nil {
			log.Printf("mes dispatch feeder order %s: %v", f.ID, err)
			return nil
		}
		mu.Lock()
		dispatchedFeeders = append(dispatchedFeeders, f.ID)
		mu.Unlock()
		return nil
	}); err != nil {
		log.Printf("feeder dispatch pool for task %s: %v", taskID, err)
	}
	if len(dispatchedFeeders) > 0 {
		if err := o.db.MarkFeederOrdersDispatched(ctx, dispatchedFeeders); err != nil {
			log.Printf("mark feeder orders dispatched for task %s: %v", taskID, err)
		}
	}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
