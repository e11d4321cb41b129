package factory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
)

func TestParsePlan_Explicit(t *testing.T) {
	f := NewPlanFactory()

	res, err := f.ParsePlan(`{"id":"pack-10","name":"Ten pack","price":450,"duration_days":60,"category":"visit_pack","credits":10}`)

	require.NoError(t, err)
	assert.False(t, res.Legacy)
	assert.Equal(t, core.CategoryVisitPack, res.Plan.Category)
	assert.Equal(t, 10, res.Plan.CreditsGranted)
	assert.True(t, res.Plan.Price.Equal(decimal.NewFromInt(450)))
	assert.True(t, res.Plan.Active)
}

func TestParsePlan_LegacyInference(t *testing.T) {
	f := NewPlanFactory()
	f.NewID = func() string { return "generated" }

	tests := []struct {
		name     string
		json     string
		category core.PlanCategory
		credits  int
	}{
		{"single visit", `{"name":"Visita","price":"50","duration_days":1}`, core.CategoryVisitPack, 1},
		{"numbered pack", `{"name":"10 visitas","price":"400","duration_days":60}`, core.CategoryVisitPack, 10},
		{"english pack", `{"name":"5-visit pack","price":"220","duration_days":30}`, core.CategoryVisitPack, 5},
		{"monthly", `{"name":"Mensualidad","price":"500","duration_days":30}`, core.CategorySubscription, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.ParsePlan(tt.json)
			require.NoError(t, err)
			assert.True(t, res.Legacy)
			assert.NotEmpty(t, res.Notes)
			assert.Equal(t, tt.category, res.Plan.Category)
			assert.Equal(t, tt.credits, res.Plan.CreditsGranted)
			assert.Equal(t, core.PlanID("generated"), res.Plan.ID)
		})
	}
}

func TestParsePlan_Invalid(t *testing.T) {
	f := NewPlanFactory()

	for _, data := range []string{
		`{"name":"","price":"1","duration_days":1}`,
		`{"name":"X","price":"-1","duration_days":1}`,
		`{"name":"X","price":"1.001","duration_days":1}`,
		`{"name":"X","price":"1","duration_days":0}`,
		`{"name":"X","price":"1","duration_days":1,"category":"gold"}`,
		`{"name":"X","price":"1","duration_days":1,"category":"visit_pack","credits":0}`,
	} {
		_, err := f.ParsePlan(data)
		assert.ErrorIs(t, err, core.ErrInvalidInput, data)
	}

	_, err := f.ParsePlan(`{not json`)
	assert.Error(t, err)
}

func TestParseCatalog_YAML(t *testing.T) {
	data := []byte(`
plans:
  - id: monthly
    name: Monthly
    price: "500.00"
    duration_days: 30
    category: subscription
  - id: day
    name: Day pass
    price: 60
    duration_days: 1
    category: visit_pack
    credits: 1
    active: false
`)

	results, err := NewPlanFactory().ParseCatalog(data, FormatYAML)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.PlanID("monthly"), results[0].Plan.ID)
	assert.False(t, results[1].Plan.Active)
	assert.True(t, results[1].Plan.Price.Equal(decimal.NewFromInt(60)))
}

func TestParseCatalog_DefaultCatalog(t *testing.T) {
	results, err := NewPlanFactory().ParseCatalog([]byte(DefaultCatalogJSON), FormatJSON)

	require.NoError(t, err)
	assert.Len(t, results, 6)
	for _, r := range results {
		assert.False(t, r.Legacy, r.Plan.Name)
	}
}

func TestParseCatalog_ReportsEveryBadEntry(t *testing.T) {
	_, err := NewPlanFactory().ParseCatalog([]byte(`[
		{"name":"","price":"1","duration_days":1},
		{"name":"ok","price":"1","duration_days":1,"category":"subscription"},
		{"name":"bad","price":"1","duration_days":-3}
	]`), FormatJSON)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan 0")
	assert.Contains(t, err.Error(), "plan 2")
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("plans.YML"))
	assert.Equal(t, FormatYAML, FormatFromPath("/etc/gym/plans.yaml"))
	assert.Equal(t, FormatJSON, FormatFromPath("plans.json"))
}
