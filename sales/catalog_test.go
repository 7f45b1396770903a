package sales_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/reservation-engine/money"
	"github.com/warp/reservation-engine/sales"
)

func TestCreateUnit_DuplicateLocation(t *testing.T) {
	env := newTestEnv(t)
	env.newUnit(t, "1201", "500000", "")

	_, err := env.catalog.CreateUnit(context.Background(), &sales.Unit{
		Project: "Marina Heights", Block: "A", Floor: 3, UnitNumber: "1201", CashPrice: dec("1"),
	})

	var verr *sales.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_number", verr.Field)
}

func TestCreateUnit_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.catalog.CreateUnit(ctx, &sales.Unit{Project: "P", UnitNumber: "1", CashPrice: decimal.Zero})
	assert.True(t, errors.Is(err, sales.ErrValidation))

	_, err = env.catalog.CreateUnit(ctx, &sales.Unit{Project: "P", UnitNumber: "1", CashPrice: dec("10"), Status: sales.UnitSold})
	assert.True(t, errors.Is(err, sales.ErrValidation))
}

func TestSetUnitStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("free unit can be deactivated and reactivated", func(t *testing.T) {
		unit := env.newUnit(t, "1301", "500000", "")

		u, err := env.catalog.SetUnitStatus(ctx, unit.ID, sales.UnitInactive, agent)
		require.NoError(t, err)
		assert.Equal(t, sales.UnitInactive, u.Status)

		// Inactive units cannot be reserved
		_, err = env.res.CreateReservation(ctx, cashRequest(unit.ID, "500000"), agent)
		assert.True(t, errors.Is(err, sales.ErrConflict))

		_, err = env.catalog.SetUnitStatus(ctx, unit.ID, sales.UnitAvailable, agent)
		require.NoError(t, err)
		assert.Equal(t, sales.UnitAvailable, env.unitStatus(t, unit.ID))
	})

	t.Run("reserved unit is guarded", func(t *testing.T) {
		unit := env.newUnit(t, "1302", "500000", "")
		_, err := env.res.CreateReservation(ctx, cashRequest(unit.ID, "500000"), agent)
		require.NoError(t, err)

		_, err = env.catalog.SetUnitStatus(ctx, unit.ID, sales.UnitAvailable, agent)

		assert.True(t, errors.Is(err, sales.ErrGuardViolation))
		assert.Equal(t, sales.UnitReserved, env.unitStatus(t, unit.ID))
	})

	t.Run("reserved and sold cannot be set directly", func(t *testing.T) {
		unit := env.newUnit(t, "1303", "500000", "")

		_, err := env.catalog.SetUnitStatus(ctx, unit.ID, sales.UnitSold, agent)

		assert.True(t, errors.Is(err, sales.ErrValidation))
	})
}

func TestCreatePlanTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// GIVEN: A unit without an installment price
	unit := env.newUnit(t, "1401", "800000", "")

	// WHEN: Creating an installment template
	tmpl, err := env.catalog.CreatePlanTemplate(ctx, unit.ID, sales.PlanTemplateSpec{
		Type:  money.PlanInstallment,
		Terms: &sales.InstallmentTerms{DownPaymentPercent: dec("25"), InstallmentCount: 10, InterestRate: dec("5")},
	})
	require.NoError(t, err)

	// THEN: Priced from the cash price and named from its terms
	d, ok := tmpl.Details.(money.InstallmentDetails)
	require.True(t, ok)
	assert.Equal(t, "800000.00", d.InstallmentPrice.StringFixed(2))
	assert.Equal(t, "200000.00", d.DownPaymentAmount.StringFixed(2))
	assert.Equal(t, "63000.00", d.MonthlyInstallment.StringFixed(2))
	assert.Equal(t, "Installment, 25% down, 10 months", tmpl.Name)

	// AND: The stored template round-trips through the JSON column
	templates, err := env.catalog.ListPlanTemplates(ctx, unit.ID)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, money.PlanInstallment, templates[0].PlanType())
	assert.Equal(t, d.Total().StringFixed(2), templates[0].Details.Total().StringFixed(2))
}

func TestCreatePlanTemplate_Invalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1402", "800000", "")

	_, err := env.catalog.CreatePlanTemplate(ctx, unit.ID, sales.PlanTemplateSpec{Type: money.PlanInstallment})
	assert.True(t, errors.Is(err, sales.ErrValidation))

	_, err = env.catalog.CreatePlanTemplate(ctx, unit.ID, sales.PlanTemplateSpec{Type: "lease"})
	assert.True(t, errors.Is(err, sales.ErrValidation))

	_, err = env.catalog.CreatePlanTemplate(ctx, 999, sales.PlanTemplateSpec{Type: money.PlanCash})
	assert.True(t, sales.IsNotFound(err))
}

func TestQuotePlan_DoesNotPersist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unit := env.newUnit(t, "1403", "900000", "1000000")

	d, err := env.catalog.QuotePlan(ctx, unit.ID, sales.InstallmentTerms{DownPaymentPercent: dec("25"), InstallmentCount: 12, InterestRate: dec("10")})
	require.NoError(t, err)

	assert.Equal(t, "68750.00", d.MonthlyInstallment.StringFixed(2))
	templates, err := env.catalog.ListPlanTemplates(ctx, unit.ID)
	require.NoError(t, err)
	assert.Empty(t, templates)
}
