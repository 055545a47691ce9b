// Package rules loads administratively maintained consolidation and unit
// conversion rules from a YAML file and applies them to the store.
package rules

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/brasserie-group/cost-cli/internal/model"
	"github.com/brasserie-group/cost-cli/internal/resolve"
)

// File is the on-disk rules document.
//
//	consolidations:
//	  - raw_name: "Tomates grappe 5kg"
//	    product: "Tomate"
//	    reason: "pack size variant"
//	conversions:
//	  - from: caisse
//	    to: kg
//	    factor: 10
//	  - from: sac
//	    to: kg
//	    product: "Farine T55"
//	    factor: 25
type File struct {
	Consolidations []ConsolidationEntry `yaml:"consolidations"`
	Conversions    []ConversionEntry    `yaml:"conversions"`
}

// ConsolidationEntry maps a raw name variant to a canonical product,
// referenced by display name.
type ConsolidationEntry struct {
	RawName string `yaml:"raw_name"`
	Product string `yaml:"product"`
	Reason  string `yaml:"reason"`
}

// ConversionEntry declares a unit conversion factor. Product is optional;
// when set, the rule applies only to that product.
type ConversionEntry struct {
	From    string  `yaml:"from"`
	To      string  `yaml:"to"`
	Product string  `yaml:"product"`
	Factor  float64 `yaml:"factor"`
}

// Store is the subset of the persistence layer the loader writes to.
type Store interface {
	FindProductByNormalizedName(ctx context.Context, normalizedName string) (*model.CanonicalProduct, error)
	UpsertConsolidationRule(ctx context.Context, rule model.ConsolidationRule) error
	UpsertConversionRule(ctx context.Context, rule model.UnitConversionRule) error
}

// Parse reads and validates a rules document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rules: parse yaml")
	}

	for i, c := range f.Consolidations {
		if strings.TrimSpace(c.RawName) == "" || strings.TrimSpace(c.Product) == "" {
			return nil, eris.Errorf("rules: consolidation %d: raw_name and product are required", i+1)
		}
	}
	for i, c := range f.Conversions {
		if strings.TrimSpace(c.From) == "" || strings.TrimSpace(c.To) == "" {
			return nil, eris.Errorf("rules: conversion %d: from and to are required", i+1)
		}
		if c.Factor <= 0 {
			return nil, eris.Errorf("rules: conversion %d (%s->%s): factor must be positive", i+1, c.From, c.To)
		}
	}
	return &f, nil
}

// LoadFile parses the rules document at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data)
}

// Apply upserts every rule in the document. Consolidation targets are
// looked up by product display name; an unknown product fails the apply.
func Apply(ctx context.Context, st Store, f *File) error {
	for _, c := range f.Consolidations {
		product, err := st.FindProductByNormalizedName(ctx, resolve.NormalizeName(c.Product))
		if err != nil {
			return eris.Wrapf(err, "rules: look up product %q", c.Product)
		}
		if product == nil {
			return eris.Errorf("rules: consolidation target %q: no such product", c.Product)
		}
		if err := st.UpsertConsolidationRule(ctx, model.ConsolidationRule{
			ID:        uuid.New().String(),
			RawName:   c.RawName,
			ProductID: product.ID,
			Reason:    c.Reason,
		}); err != nil {
			return err
		}
	}

	for _, c := range f.Conversions {
		productID := ""
		if c.Product != "" {
			product, err := st.FindProductByNormalizedName(ctx, resolve.NormalizeName(c.Product))
			if err != nil {
				return eris.Wrapf(err, "rules: look up product %q", c.Product)
			}
			if product == nil {
				return eris.Errorf("rules: conversion target %q: no such product", c.Product)
			}
			productID = product.ID
		}
		if err := st.UpsertConversionRule(ctx, model.UnitConversionRule{
			FromUnit:  strings.ToLower(strings.TrimSpace(c.From)),
			ToUnit:    strings.ToLower(strings.TrimSpace(c.To)),
			ProductID: productID,
			Factor:    c.Factor,
		}); err != nil {
			return err
		}
	}

	zap.L().Info("rules: applied",
		zap.Int("consolidations", len(f.Consolidations)),
		zap.Int("conversions", len(f.Conversions)),
	)
	return nil
}
