// Package pipeline orchestrates one cost computation run: resolve raw
// purchase names to canonical products, build per-product windows, compute
// weighted costs, and persist the results.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brasserie-group/cost-cli/internal/convert"
	"github.com/brasserie-group/cost-cli/internal/costing"
	"github.com/brasserie-group/cost-cli/internal/model"
	"github.com/brasserie-group/cost-cli/internal/resolve"
	"github.com/brasserie-group/cost-cli/internal/store"
	"github.com/brasserie-group/cost-cli/internal/window"
)

// DefaultWorkers bounds per-product computation concurrency.
const DefaultWorkers = 8

// Options configures one run.
type Options struct {
	AsOf         time.Time
	LookbackDays int    // default window.DefaultLookbackDays
	Workers      int    // default DefaultWorkers
	RecipeUnit   string   // unit hint for auto-created products, e.g. "g"
	DryRun       bool     // compute but do not persist cost entries
	ProductIDs   []string // restrict the run to these products; empty means all
}

// Pipeline wires the run stages together over one store.
type Pipeline struct {
	store      store.Store
	converter  *convert.Service
	calculator *costing.Calculator
}

// New creates a Pipeline on the given store.
func New(st store.Store) *Pipeline {
	return &Pipeline{
		store:      st,
		converter:  convert.NewService(st),
		calculator: costing.NewCalculator(st),
	}
}

// Run executes a full cost computation. Per-product failures are recorded
// in the summary and never abort the rest of the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunSummary, error) {
	if opts.AsOf.IsZero() {
		opts.AsOf = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = window.DefaultLookbackDays
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	started := time.Now()
	log := zap.L().With(
		zap.Time("as_of", opts.AsOf),
		zap.Int("lookback_days", opts.LookbackDays),
	)
	log.Info("pipeline: starting cost run")

	groups, failures, err := p.resolveRecords(ctx, opts)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{
		AsOf:         opts.AsOf,
		LookbackDays: opts.LookbackDays,
		Products:     len(groups),
		StartedAt:    started.UTC(),
		Outcomes:     failures,
		Failed:       len(failures),
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	aggregator := window.NewAggregator(p.converter)
	var totalRecords int
	for _, grp := range groups {
		totalRecords += len(grp.records)
	}

	for _, grp := range groups {
		g.Go(func() error {
			outcome := p.computeProduct(gCtx, aggregator, grp, opts)

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, outcome)
			summary.RecordsSkipped += outcome.Skipped
			if outcome.Error != "" {
				summary.Failed++
			} else {
				summary.Computed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "pipeline: run")
	}

	sort.Slice(summary.Outcomes, func(i, j int) bool {
		return summary.Outcomes[i].ProductName < summary.Outcomes[j].ProductName
	})
	if totalRecords > 0 {
		summary.SkipRatio = float64(summary.RecordsSkipped) / float64(totalRecords)
	}
	summary.DurationSeconds = time.Since(started).Seconds()

	log.Info("pipeline: cost run complete",
		zap.Int("products", summary.Products),
		zap.Int("computed", summary.Computed),
		zap.Int("failed", summary.Failed),
		zap.Int("records_skipped", summary.RecordsSkipped),
		zap.Float64("duration_s", summary.DurationSeconds),
	)
	return summary, nil
}

// productGroup is one product's share of the run's raw records.
type productGroup struct {
	product model.CanonicalProduct
	records []model.RawPurchaseRecord
}

// resolveRecords loads the window's raw records and groups them by resolved
// canonical product. Resolution is sequential: the resolver's first-seen
// cache is what makes auto-creation idempotent within the run. Ambiguous
// consolidation rules come back as failed outcomes so the operator sees
// them in the summary; they need a rule-file correction, not a retry.
func (p *Pipeline) resolveRecords(ctx context.Context, opts Options) ([]productGroup, []model.ProductOutcome, error) {
	from := opts.AsOf.AddDate(0, 0, -opts.LookbackDays)
	records, err := p.store.ListRawPurchases(ctx, from, opts.AsOf)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load raw purchases")
	}

	resolver := resolve.New(p.store, p.store)
	hint := resolve.Hint{RecipeUnit: opts.RecipeUnit}

	grouped := make(map[string]*productGroup)
	var failures []model.ProductOutcome
	ambiguous := make(map[string]bool)
	for _, rec := range records {
		res, err := resolver.Resolve(ctx, rec.RawName, rec.SourceBatchID, hint)
		if err != nil {
			var amb *resolve.AmbiguousIdentityError
			if errors.As(err, &amb) {
				key := resolve.NormalizeName(rec.RawName)
				if !ambiguous[key] {
					ambiguous[key] = true
					failures = append(failures, model.ProductOutcome{
						ProductName: rec.RawName,
						Error:       err.Error(),
					})
				}
				zap.L().Error("pipeline: ambiguous product identity, fix the consolidation rules",
					zap.String("raw_name", rec.RawName),
					zap.Strings("product_ids", amb.ProductIDs),
				)
				continue
			}
			// Other resolution errors are data problems on the record,
			// not the run.
			zap.L().Warn("pipeline: unresolvable record",
				zap.String("raw_name", rec.RawName),
				zap.Error(err),
			)
			continue
		}

		grp, ok := grouped[res.Product.ID]
		if !ok {
			grp = &productGroup{product: res.Product}
			grouped[res.Product.ID] = grp
		}
		grp.records = append(grp.records, rec)
	}

	// Products with no purchases this window still get a fallback entry.
	all, err := p.store.ListProducts(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: list products")
	}
	for _, product := range all {
		if _, ok := grouped[product.ID]; !ok {
			grouped[product.ID] = &productGroup{product: product}
		}
	}

	var filter map[string]bool
	if len(opts.ProductIDs) > 0 {
		filter = make(map[string]bool, len(opts.ProductIDs))
		for _, id := range opts.ProductIDs {
			filter[id] = true
		}
	}

	groups := make([]productGroup, 0, len(grouped))
	for id, grp := range grouped {
		if filter != nil && !filter[id] {
			continue
		}
		groups = append(groups, *grp)
	}
	return groups, failures, nil
}

// computeProduct runs window building, cost computation, and persistence for
// one product. Failures are folded into the outcome.
func (p *Pipeline) computeProduct(ctx context.Context, aggregator *window.Aggregator, grp productGroup, opts Options) model.ProductOutcome {
	outcome := model.ProductOutcome{
		ProductID:   grp.product.ID,
		ProductName: grp.product.Name,
	}

	w, err := aggregator.Build(ctx, grp.product, grp.records, opts.AsOf, opts.LookbackDays)
	outcome.Skipped = w.Skipped
	if err != nil {
		outcome.Error = err.Error()
		zap.L().Error("pipeline: window build failed",
			zap.String("product", grp.product.Name),
			zap.Error(err),
		)
		return outcome
	}

	result, err := p.calculator.Compute(ctx, grp.product, w)
	if err != nil {
		outcome.Error = err.Error()
		zap.L().Error("pipeline: cost computation failed",
			zap.String("product", grp.product.Name),
			zap.Error(err),
		)
		return outcome
	}

	outcome.UnitCost = result.UnitCost
	outcome.Strategy = result.Strategy
	outcome.Confidence = result.Confidence

	if opts.DryRun {
		return outcome
	}

	entry := model.CostHistoryEntry{
		ProductID:     grp.product.ID,
		AsOfDate:      opts.AsOf,
		UnitCost:      result.UnitCost,
		Strategy:      result.Strategy,
		Weights:       result.Weights,
		Confidence:    result.Confidence,
		PurchaseCount: result.PurchaseCount,
		ComputedAt:    time.Now().UTC(),
	}
	if err := p.store.UpsertCostEntry(ctx, entry); err != nil {
		outcome.Error = err.Error()
		zap.L().Error("pipeline: persist cost entry failed",
			zap.String("product", grp.product.Name),
			zap.Error(err),
		)
	}
	return outcome
}
