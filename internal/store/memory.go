package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brasserie-group/cost-cli/internal/model"
	"github.com/brasserie-group/cost-cli/internal/resolve"
)

// MemoryStore is an in-memory Store for tests and one-shot runs.
type MemoryStore struct {
	mu          sync.RWMutex
	products    map[string]model.CanonicalProduct
	consRules   map[string][]model.ConsolidationRule // normalized raw name -> rules
	convRules   []model.UnitConversionRule
	purchases   []model.RawPurchaseRecord
	costEntries map[string]model.CostHistoryEntry // productID|dateKey -> entry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		products:    make(map[string]model.CanonicalProduct),
		consRules:   make(map[string][]model.ConsolidationRule),
		costEntries: make(map[string]model.CostHistoryEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateProduct(_ context.Context, p model.CanonicalProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (*model.CanonicalProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *MemoryStore) FindProductByNormalizedName(_ context.Context, normalizedName string) (*model.CanonicalProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if resolve.NormalizeName(p.Name) == normalizedName {
			match := p
			return &match, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListProducts(context.Context) ([]model.CanonicalProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	products := make([]model.CanonicalProduct, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *MemoryStore) UpsertConsolidationRule(_ context.Context, rule model.ConsolidationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resolve.NormalizeName(rule.RawName)
	rules := s.consRules[key]
	for i, existing := range rules {
		if existing.ID == rule.ID {
			rules[i] = rule
			return nil
		}
	}
	s.consRules[key] = append(rules, rule)
	return nil
}

func (s *MemoryStore) LookupConsolidation(_ context.Context, normalizedRawName string) ([]model.ConsolidationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ConsolidationRule(nil), s.consRules[normalizedRawName]...), nil
}

func (s *MemoryStore) UpsertConversionRule(_ context.Context, rule model.UnitConversionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.convRules {
		if strings.EqualFold(existing.FromUnit, rule.FromUnit) &&
			strings.EqualFold(existing.ToUnit, rule.ToUnit) &&
			existing.ProductID == rule.ProductID {
			s.convRules[i] = rule
			return nil
		}
	}
	s.convRules = append(s.convRules, rule)
	return nil
}

func (s *MemoryStore) LookupConversion(_ context.Context, fromUnit, toUnit, productID string) (*model.UnitConversionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.convRules {
		r := s.convRules[i]
		if strings.EqualFold(r.FromUnit, fromUnit) &&
			strings.EqualFold(r.ToUnit, toUnit) &&
			r.ProductID == productID {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) InsertRawPurchases(_ context.Context, records []model.RawPurchaseRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases = append(s.purchases, records...)
	return int64(len(records)), nil
}

func (s *MemoryStore) ListRawPurchases(_ context.Context, from, to time.Time) ([]model.RawPurchaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RawPurchaseRecord
	for _, r := range s.purchases {
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) UpsertCostEntry(_ context.Context, entry model.CostHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.ProductID + "|" + dateKey(entry.AsOfDate)
	if existing, ok := s.costEntries[key]; ok {
		entry.ID = existing.ID // key identity survives overwrites
	}
	s.costEntries[key] = entry
	return nil
}

func (s *MemoryStore) LatestCostEntry(_ context.Context, productID string, before time.Time) (*model.CostHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestEntry(productID, func(e model.CostHistoryEntry) bool {
		return dateKey(e.AsOfDate) < dateKey(before)
	}), nil
}

func (s *MemoryStore) GetCostAsOf(_ context.Context, productID string, asOf time.Time) (*model.CostHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestEntry(productID, func(e model.CostHistoryEntry) bool {
		return dateKey(e.AsOfDate) <= dateKey(asOf)
	}), nil
}

func (s *MemoryStore) newestEntry(productID string, keep func(model.CostHistoryEntry) bool) *model.CostHistoryEntry {
	var newest *model.CostHistoryEntry
	for _, e := range s.costEntries {
		if e.ProductID != productID || !keep(e) {
			continue
		}
		if newest == nil || e.AsOfDate.After(newest.AsOfDate) {
			match := e
			newest = &match
		}
	}
	return newest
}

func (s *MemoryStore) ListCostHistory(_ context.Context, productID string, from, to time.Time) ([]model.CostHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CostHistoryEntry
	for _, e := range s.costEntries {
		if e.ProductID != productID {
			continue
		}
		if dateKey(e.AsOfDate) < dateKey(from) || dateKey(e.AsOfDate) > dateKey(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsOfDate.Before(out[j].AsOfDate) })
	return out, nil
}

func (s *MemoryStore) CategoryAverageCost(ctx context.Context, category string, asOf time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	var count int
	for _, p := range s.products {
		if p.Category != category {
			continue
		}
		if latest := s.newestEntry(p.ID, func(e model.CostHistoryEntry) bool {
			return dateKey(e.AsOfDate) <= dateKey(asOf)
		}); latest != nil && latest.UnitCost > 0 {
			total += latest.UnitCost
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}
