package run

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gyeh/payrun/internal/backup"
	"github.com/gyeh/payrun/internal/calc"
	"github.com/gyeh/payrun/internal/claims"
	"github.com/gyeh/payrun/internal/lock"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/notify"
	"github.com/gyeh/payrun/internal/parallel"
	"github.com/gyeh/payrun/internal/paycenter"
	"github.com/gyeh/payrun/internal/payerr"
	"github.com/gyeh/payrun/internal/store"
	"github.com/gyeh/payrun/internal/validation"
)

// DefaultBatchSize is the claim and service-line batch size when none is set.
const DefaultBatchSize = 1000

// Options control a single run.
type Options struct {
	PaymentEventID string
	Mode           model.RunMode
	// PCType overrides the event's PaymentCenter type when set.
	PCType       model.PaymentCenterType
	Workers      int
	BatchSize    int
	Resume       bool
	ValidateOnly bool
	// AdjustmentFactor is used when the event carries no adjustment_factor
	// setting. Zero leaves the calculator default.
	AdjustmentFactor float64
	// BackupCollections limits final-run snapshots; empty means all.
	BackupCollections []string
	// SequenceChunk is the payment number allocation size; zero uses BatchSize.
	SequenceChunk int
	// NoDryRunStats keeps a dry run from saving its stats document, leaving
	// the run with no writes at all.
	NoDryRunStats bool
}

func (o Options) saveStats() bool {
	return o.Mode == model.RunModeFinal || !o.NoDryRunStats
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return parallel.DefaultWorkers()
	}
	return o.Workers
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

func (o Options) backs(collection string) bool {
	return len(o.BackupCollections) == 0 || slices.Contains(o.BackupCollections, collection)
}

// Deps are the collaborators of a Processor. Backup, Notifier and Stats may be
// nil.
type Deps struct {
	Config    ConfigSource
	Claims    claims.Source
	Centers   CenterStore
	Payments  PaymentStore
	OverUnder OverUnderStore
	Stats     StatsStore
	Locker    lock.Locker
	Backup    Snapshotter
	Notifier  notify.Publisher
	Calc      *calc.Calculator
	Now       func() time.Time
}

// Processor runs payment events. It holds no per-run state and may be reused.
type Processor struct {
	deps Deps
	log  zerolog.Logger
}

// NewProcessor creates a Processor. A nil Locker serializes runs in-process and
// a nil Calc uses the wall clock.
func NewProcessor(deps Deps, log zerolog.Logger) *Processor {
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Calc == nil {
		deps.Calc = calc.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Processor{deps: deps, log: log}
}

// runState carries what one run accumulates between phases.
type runState struct {
	opts      Options
	runID     uuid.UUID
	stats     *model.PaymentEventStats
	event     *model.PaymentEvent
	pcType    model.PaymentCenterType
	claims    []model.Claim
	keys      map[string]struct{}
	validator *validation.Validator
	manager   *paycenter.Manager
	cache     model.PaymentCenterCache
	centers   []model.PaymentCenterClaims
	results   []calc.CenterResult
	extra     []model.Finding
	log       zerolog.Logger
}

// Run executes one run. A run blocked by validation returns its stats and a
// nil error; only fatal failures return an error, wrapped in PhaseError.
func (p *Processor) Run(ctx context.Context, opts Options) (*model.PaymentEventStats, error) {
	totalStart := time.Now()
	if _, err := model.ParseRunMode(string(opts.Mode)); err != nil {
		return nil, &PhaseError{Phase: PhaseConfig, Err: payerr.Wrap(payerr.KindConfiguration, "run.Run", err)}
	}
	log := p.log.With().
		Str("payment_event_id", opts.PaymentEventID).
		Str("mode", string(opts.Mode)).
		Logger()

	release, err := p.deps.Locker.TryLock(ctx, opts.PaymentEventID)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseLock, Err: err}
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("run lock release failed")
		}
	}()

	st := &runState{
		opts:  opts,
		stats: InitializeStats(opts.PaymentEventID, p.deps.Now()),
	}
	st.runID = uuid.MustParse(st.stats.RunID)
	st.log = log.With().Str("run_id", st.stats.RunID).Logger()
	st.log.Info().Msg("run started")

	if err := p.loadConfig(ctx, st); err != nil {
		return nil, &PhaseError{Phase: PhaseConfig, Err: err}
	}
	if err := p.fetchClaims(ctx, st); err != nil {
		return nil, &PhaseError{Phase: PhaseClaims, Err: err}
	}
	if opts.Mode == model.RunModeFinal {
		p.backupAll(ctx, st)
	}

	report, err := p.validate(ctx, st)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseValidate, Err: err}
	}
	if report.Blocked {
		st.log.Warn().Err(validation.RaiseIfBlocking(report, opts.Mode)).Msg("run blocked by validation")
		return p.finalize(ctx, st, report, totalStart)
	}
	if opts.ValidateOnly {
		st.log.Info().Msg("validate-only run, skipping payments")
		return p.finalize(ctx, st, report, totalStart)
	}

	if err := p.resolveCenters(ctx, st); err != nil {
		return nil, &PhaseError{Phase: PhaseCenters, Err: err}
	}
	if err := p.transform(ctx, st); err != nil {
		return nil, &PhaseError{Phase: PhaseTransform, Err: err}
	}
	if err := p.price(ctx, st); err != nil {
		return nil, &PhaseError{Phase: PhasePrice, Err: err}
	}
	if opts.Mode == model.RunModeFinal {
		if err := p.persist(ctx, st); err != nil {
			return nil, &PhaseError{Phase: PhasePersist, Err: err}
		}
	}
	ApplyMetrics(st.stats, st.results)

	return p.finalize(ctx, st, st.validator.Aggregate(st.extra...), totalStart)
}

func (p *Processor) loadConfig(ctx context.Context, st *runState) error {
	start := time.Now()
	event, err := p.deps.Config.Load(ctx, st.opts.PaymentEventID)
	if err != nil {
		return err
	}
	if st.opts.Mode == model.RunModeDryRun {
		event = event.Clone()
	}
	event.RunMode = st.opts.Mode
	st.event = event
	st.stats.Stage = event.Stage

	st.pcType = st.opts.PCType
	if st.pcType == "" {
		st.pcType = event.PaymentCenterType()
	}
	st.log.Info().
		Str("stage", event.Stage).
		Str("pc_type", string(st.pcType)).
		Int("allowed_plans", len(event.AllowedPlans)).
		Bool("interest", event.InterestRules != nil).
		Dur("duration", time.Since(start)).
		Msg("configuration loaded")
	return nil
}

func (p *Processor) fetchClaims(ctx context.Context, st *runState) error {
	t := claims.NewTransformer(p.deps.Claims, st.log)
	raw, err := t.FetchClaims(ctx, st.opts.Mode.Source(), st.event)
	if err != nil {
		return err
	}
	normalized, err := parallel.RunClaimBatches(ctx, st.opts.workers(), st.opts.batchSize(), raw, claims.NormalizeBatch)
	if err != nil {
		return err
	}
	st.claims = normalized
	st.stats.TotalClaims = len(normalized)
	return nil
}

// backupAll snapshots claims, claim payments and PaymentCenters. Failures are
// logged and never abort the run.
func (p *Processor) backupAll(ctx context.Context, st *runState) {
	if p.deps.Backup == nil {
		return
	}
	eventID := st.event.PaymentEventID
	steps := []struct {
		collection string
		rows       func() ([]backup.Row, error)
	}{
		{backup.CollectionClaims, func() ([]backup.Row, error) {
			return backup.ClaimRows(eventID, st.claims)
		}},
		{backup.CollectionClaimPayments, func() ([]backup.Row, error) {
			payments, err := p.deps.Payments.ListByEvent(ctx, eventID)
			if err != nil {
				return nil, err
			}
			return backup.ClaimPaymentRows(eventID, payments)
		}},
		{backup.CollectionPaymentCenters, func() ([]backup.Row, error) {
			centers, err := p.deps.Centers.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			return backup.PaymentCenterRows(eventID, centers)
		}},
	}
	for _, s := range steps {
		if !st.opts.backs(s.collection) {
			continue
		}
		rows, err := s.rows()
		if err == nil {
			var ref string
			if ref, err = p.deps.Backup.Snapshot(ctx, eventID, s.collection, rows); err == nil {
				st.stats.Backups = append(st.stats.Backups, ref)
				continue
			}
		}
		st.log.Warn().Err(err).Str("collection", s.collection).Msg("backup failed (non-fatal)")
	}
}

func (p *Processor) validate(ctx context.Context, st *runState) (model.ValidationReport, error) {
	start := time.Now()
	cache, err := p.deps.Centers.LoadCache(ctx, "")
	if err != nil {
		return model.ValidationReport{}, err
	}
	st.manager = paycenter.NewManagerFrom(cache)
	st.keys = st.manager.DeriveUniqueKeys(st.claims, st.pcType)

	v := validation.New(st.pcType, st.event.AllowedPlans)
	v.EventScope(st.event, st.opts.Mode)
	v.ClaimChecks(st.claims)
	v.UnknownIdentifiers(st.keys)
	st.validator = v

	report := v.Aggregate()
	st.log.Info().
		Int("findings", len(report.Findings)).
		Int("critical", len(report.Critical())).
		Bool("blocked", report.Blocked).
		Dur("duration", time.Since(start)).
		Msg("validation complete")
	return report, nil
}

// resolveCenters makes every derived key resolvable. Final runs create missing
// centers in production; dry runs assign provisional ids on a clone that is
// never persisted.
func (p *Processor) resolveCenters(ctx context.Context, st *runState) error {
	start := time.Now()
	summary := st.manager.SyncToWS(st.keys)
	provisional := st.opts.Mode == model.RunModeDryRun

	mgr := st.manager
	if provisional {
		mgr = st.manager.Clone()
	}
	created := mgr.CreateMissingInProd(summary)
	if !provisional && len(created) > 0 {
		centers := paycenter.Centers(created, st.claims, st.pcType)
		stored, err := p.deps.Centers.CreateCenters(ctx, centers)
		if err != nil {
			return err
		}
		if len(stored) != len(created) {
			return payerr.New(payerr.KindDataIntegrity, "run.resolveCenters",
				"stored %d of %d PaymentCenters", len(stored), len(created))
		}
		mgr.Adopt(summary, stored)
		created = stored
	}

	resolved := resolvedSummary(mgr, summary)
	st.cache = mgr.BuildCache(resolved)
	st.extra = append(st.extra,
		st.validator.PaymentCenters(resolved, provisional),
		st.validator.AllowedCenters(st.cache, st.event.AllowedPaymentCenters),
	)
	st.log.Info().
		Int("existing", len(summary.ExistingIDs)).
		Int("created", len(created)).
		Bool("provisional", provisional).
		Dur("duration", time.Since(start)).
		Msg("payment centers resolved")
	return nil
}

// resolvedSummary recomputes the missing keys of summary against mgr.
func resolvedSummary(mgr *paycenter.Manager, summary *model.PaymentCenterSummary) *model.PaymentCenterSummary {
	out := &model.PaymentCenterSummary{
		ExistingIDs:    slices.Clone(summary.ExistingIDs),
		MissingKeys:    []string{},
		CreatedWSIDs:   slices.Clone(summary.CreatedWSIDs),
		CreatedProdIDs: slices.Clone(summary.CreatedProdIDs),
	}
	for _, k := range summary.MissingKeys {
		if _, ok := mgr.Lookup(k); !ok {
			out.MissingKeys = append(out.MissingKeys, k)
		}
	}
	return out
}

func (p *Processor) transform(ctx context.Context, st *runState) error {
	start := time.Now()
	ids := slices.Sorted(maps.Values(st.cache))
	ids = slices.Compact(ids)
	overUnder, err := p.deps.OverUnder.Load(ctx, ids)
	if err != nil {
		return err
	}

	t := claims.NewTransformer(p.deps.Claims, st.log)
	centers, err := t.ToPaymentCenterClaims(st.claims, st.cache, st.pcType, overUnder)
	if err != nil {
		return err
	}

	if st.opts.Mode == model.RunModeFinal {
		if centers, err = p.skipPersisted(ctx, st, centers); err != nil {
			return err
		}
	}
	st.centers = centers
	st.log.Info().
		Int("payment_centers", len(centers)).
		Dur("duration", time.Since(start)).
		Msg("claims transformed")
	return nil
}

// skipPersisted refuses to re-run an event that already has payments unless
// resuming, in which case parents already paid are dropped.
func (p *Processor) skipPersisted(ctx context.Context, st *runState, centers []model.PaymentCenterClaims) ([]model.PaymentCenterClaims, error) {
	done, err := p.deps.Payments.PersistedClaimIDs(ctx, st.event.PaymentEventID)
	if err != nil {
		return nil, err
	}
	if len(done) == 0 {
		return centers, nil
	}
	if !st.opts.Resume {
		return nil, payerr.New(payerr.KindProcessingState, "run.skipPersisted",
			"payment event %s already has %d claim payments; use --resume", st.event.PaymentEventID, len(done)).
			With("persisted", len(done))
	}
	skipped := 0
	out := centers[:0]
	for _, pc := range centers {
		groups := pc.Groups[:0:0]
		for _, g := range pc.Groups {
			if _, ok := done[g.ParentID]; ok {
				skipped++
				continue
			}
			groups = append(groups, g)
		}
		if len(groups) == 0 {
			continue
		}
		pc.Groups = groups
		out = append(out, pc)
	}
	st.log.Info().Int("skipped_parents", skipped).Msg("resuming run")
	return out, nil
}

func (p *Processor) price(ctx context.Context, st *runState) error {
	start := time.Now()
	settings := maps.Clone(st.event.Settings)
	if settings == nil {
		settings = map[string]float64{}
	}
	if _, ok := settings[calc.SettingAdjustmentFactor]; !ok && st.opts.AdjustmentFactor > 0 {
		settings[calc.SettingAdjustmentFactor] = st.opts.AdjustmentFactor
	}

	tasks := make([]calc.CenterTask, len(st.centers))
	for i, pc := range st.centers {
		tasks[i] = calc.CenterTask{Event: st.event, Center: pc, Settings: settings}
	}
	results, err := parallel.RunCenterLevel(ctx, st.opts.workers(), p.deps.Calc, tasks)
	if err != nil {
		return err
	}
	st.results = results

	var lines int
	for _, r := range results {
		lines += r.ServiceLines
	}
	st.log.Info().
		Int("payment_centers", len(results)).
		Int("service_lines", lines).
		Dur("duration", time.Since(start)).
		Msg("payments computed")
	return nil
}

// persist writes claim aggregates, service lines and over/under movements in
// one store transaction, then checks that the store holds what the run
// produced.
func (p *Processor) persist(ctx context.Context, st *runState) error {
	start := time.Now()
	var payments []model.ClaimPayment
	records := make(map[int64][]model.OverUnderRecord)
	for _, r := range st.results {
		payments = append(payments, r.ClaimPayments...)
		if len(r.OURecords) > 0 {
			records[r.PaymentCenterID] = r.OURecords
		}
	}

	chunk := st.opts.SequenceChunk
	if chunk <= 0 {
		chunk = st.opts.batchSize()
	}
	nums, err := parallel.AllocateSequenceChunks(ctx, p.deps.Payments.AllocatePaymentNumbers, len(payments), chunk)
	if err != nil {
		return err
	}
	for i := range payments {
		payments[i].PaymentNumber = nums[i]
	}

	res, err := p.deps.Payments.PersistRun(ctx, store.RunWrite{
		RunID:          st.runID,
		PaymentEventID: st.event.PaymentEventID,
		Payments:       payments,
		Records:        records,
		BatchSize:      st.opts.batchSize(),
	})
	if err != nil {
		return err
	}

	claimCount, lineCount, err := p.deps.Payments.CountWritten(ctx, st.event.PaymentEventID, st.runID)
	if err != nil {
		return err
	}
	st.extra = append(st.extra, st.validator.Sequences(model.SequenceReport{
		Expected: map[string]int{"claim_payments": len(payments), "service_lines": countLines(payments)},
		Actual:   map[string]int{"claim_payments": claimCount, "service_lines": lineCount},
	}))

	st.log.Info().
		Int("claim_payments", len(payments)).
		Int64("service_lines", res.ServiceLines).
		Int("ou_records", res.OURecords).
		Dur("duration", time.Since(start)).
		Msg("payments persisted")
	return nil
}

func countLines(payments []model.ClaimPayment) int {
	n := 0
	for _, cp := range payments {
		n += len(cp.ServiceLinePayments)
	}
	return n
}

func (p *Processor) finalize(ctx context.Context, st *runState, report model.ValidationReport, totalStart time.Time) (*model.PaymentEventStats, error) {
	stats := FinalizeStats(st.stats, report, p.deps.Now())
	if p.deps.Stats != nil && st.opts.saveStats() {
		if err := p.deps.Stats.Save(ctx, stats); err != nil {
			return nil, &PhaseError{Phase: PhaseFinalize, Err: err}
		}
	}
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.PublishStats(ctx, st.opts.Mode, stats); err != nil {
			st.log.Warn().Err(err).Msg("stats notification failed (non-fatal)")
		}
	}
	st.log.Info().
		Int("total_claims", stats.TotalClaims).
		Float64("overall", stats.Totals.Overall).
		Int("payment_centers", len(stats.Totals.ByPaymentCenter)).
		Bool("blocked", stats.Findings.Blocked).
		Str("total_duration", time.Since(totalStart).String()).
		Msg("run complete")
	return stats, nil
}
