/*
Package factory provides JSON/YAML to Go plan conversion.

PURPOSE:
  Converts plan catalog definitions into validated core.Plan values, so
  the gym can edit its price list without a code change.

JSON SCHEMA:
  {
    "id": "monthly",
    "name": "Monthly",
    "price": "450.00",
    "duration_days": 30,
    "category": "subscription",     // or "visit_pack"
    "credits": 0,                   // visits granted by a visit pack
    "active": true
  }

  A catalog is either a list of plans or {"plans": [...]}, in JSON or YAML.

LEGACY DEFINITIONS:
  Older catalogs have no category. The factory then infers it from the
  plan name ("visit", "visita", "pack", "paquete") and reads the credit
  count from the first number in the name ("10 visitas" -> 10). Such
  plans are flagged Legacy in the result so an admin can fix the source.
  The engines never look at plan names.

USAGE:
  f := factory.NewPlanFactory()
  res, err := f.ParsePlan(jsonString)
  results, err := f.ParseCatalog(data, factory.FormatYAML)

SEE ALSO:
  - core/types.go: Plan
  - membership/visits.go: how category and credits are used
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// PlanJSON is the wire representation of a plan.
type PlanJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	Category     string          `json:"category,omitempty"`
	Credits      *int            `json:"credits,omitempty"`
	Active       *bool           `json:"active,omitempty"`
}

type catalogJSON struct {
	Plans []json.RawMessage `json:"plans"`
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// Result is one parsed plan.
type Result struct {
	Plan   core.Plan
	Legacy bool
	Notes  []string
}

// =============================================================================
// PLAN FACTORY
// =============================================================================

// PlanFactory converts plan definitions to core.Plan.
type PlanFactory struct {
	// NewID assigns ids to plans that have none.
	NewID func() string
}

// NewPlanFactory creates a new plan factory.
func NewPlanFactory() *PlanFactory {
	return &PlanFactory{NewID: core.NewID}
}

var (
	packKeywords = []string{"visit", "visita", "pack", "paquete"}
	firstNumber  = regexp.MustCompile(`\d+`)
)

// ParsePlan parses a single JSON plan.
func (f *PlanFactory) ParsePlan(data string) (Result, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(data), &pj); err != nil {
		return Result{}, fmt.Errorf("invalid plan JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// ParseCatalog parses a list of plans. Every invalid entry is reported.
func (f *PlanFactory) ParseCatalog(data []byte, format Format) ([]Result, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped catalogJSON
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("invalid plan catalog: %w", err)
		}
		raw = wrapped.Plans
	}

	results := make([]Result, 0, len(raw))
	var errs []error
	for i, entry := range raw {
		res, err := f.ParsePlan(string(entry))
		if err != nil {
			errs = append(errs, fmt.Errorf("plan %d: %w", i, err))
			continue
		}
		results = append(results, res)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

// FromJSON validates pj and applies defaults and legacy inference.
func (f *PlanFactory) FromJSON(pj PlanJSON) (Result, error) {
	name := strings.TrimSpace(pj.Name)
	if name == "" {
		return Result{}, core.Invalid("name", "plan name is required")
	}
	if pj.Price.IsNegative() {
		return Result{}, core.Invalid("price", "must not be negative")
	}
	if !core.WholeCents(pj.Price) {
		return Result{}, core.Invalid("price", "use at most two decimal places")
	}
	if pj.DurationDays <= 0 {
		return Result{}, core.Invalid("duration_days", "must be positive")
	}

	res := Result{Plan: core.Plan{
		ID:           core.PlanID(strings.TrimSpace(pj.ID)),
		Name:         name,
		Price:        pj.Price,
		DurationDays: pj.DurationDays,
		Active:       pj.Active == nil || *pj.Active,
	}}
	if res.Plan.ID == "" {
		res.Plan.ID = core.PlanID(f.NewID())
	}

	switch core.PlanCategory(pj.Category) {
	case core.CategorySubscription:
		res.Plan.Category = core.CategorySubscription
	case core.CategoryVisitPack:
		res.Plan.Category = core.CategoryVisitPack
	case "":
		res.Legacy = true
		res.Plan.Category = inferCategory(name)
		res.Notes = append(res.Notes, fmt.Sprintf("category inferred from name: %s", res.Plan.Category))
	default:
		return Result{}, core.Invalid("category", fmt.Sprintf("unknown category %q", pj.Category))
	}

	if res.Plan.Category == core.CategoryVisitPack {
		switch {
		case pj.Credits != nil && *pj.Credits > 0:
			res.Plan.CreditsGranted = *pj.Credits
		case pj.Credits != nil:
			return Result{}, core.Invalid("credits", "a visit pack must grant at least one visit")
		default:
			res.Plan.CreditsGranted = inferCredits(name)
			res.Legacy = true
			res.Notes = append(res.Notes, fmt.Sprintf("credits inferred from name: %d", res.Plan.CreditsGranted))
		}
	}
	return res, nil
}

func inferCategory(name string) core.PlanCategory {
	lower := strings.ToLower(name)
	for _, kw := range packKeywords {
		if strings.Contains(lower, kw) {
			return core.CategoryVisitPack
		}
	}
	return core.CategorySubscription
}

func inferCredits(name string) int {
	m := firstNumber.FindString(name)
	if m == "" {
		return 1
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid plan YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert plan YAML: %w", err)
	}
	return out, nil
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultCatalogJSON is the starter price list loaded by seed-plans when no
// catalog file is configured.
const DefaultCatalogJSON = `[
  {"id": "day-pass", "name": "Day pass", "price": "60.00", "duration_days": 1, "category": "visit_pack", "credits": 1},
  {"id": "pack-10", "name": "10-visit pack", "price": "450.00", "duration_days": 60, "category": "visit_pack", "credits": 10},
  {"id": "weekly", "name": "Weekly", "price": "180.00", "duration_days": 7, "category": "subscription"},
  {"id": "monthly", "name": "Monthly", "price": "500.00", "duration_days": 30, "category": "subscription"},
  {"id": "quarterly", "name": "Quarterly", "price": "1350.00", "duration_days": 90, "category": "subscription"},
  {"id": "annual", "name": "Annual", "price": "4800.00", "duration_days": 365, "category": "subscription"}
]`
