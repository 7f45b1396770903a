/*
catalog.go - Unit and plan template administration

PURPOSE:
  The administrative edges of the engine: seeding units, direct status
  edits, and creating or quoting plan templates. Reservation-driven unit
  status changes never come through here; they go through the
  StatusObserver.

ADMIN STATUS EDITS:
  Only available and inactive may be set directly. The edit takes the
  unit lock and is refused with a *GuardError while an active or
  converted reservation references the unit, so it can never contradict
  a reservation.

SEE ALSO:
  - plan.go: Template resolution during reservation creation
*/
package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/warp/reservation-engine/money"
	"go.opentelemetry.io/otel/attribute"
)

type CatalogService struct {
	store TxStore
	locks *LockManager
	log   logrus.FieldLogger
}

func NewCatalogService(opts Options) *CatalogService {
	opts = opts.withDefaults()
	return &CatalogService{
		store: opts.Store,
		locks: NewLockManager(opts.Logger),
		log:   opts.Logger.WithField("component", "catalog"),
	}
}

// =============================================================================
// UNITS
// =============================================================================

// CreateUnit validates and inserts a unit. Status defaults to available.
func (c *CatalogService) CreateUnit(ctx context.Context, u *Unit) (*Unit, error) {
	u.Project = strings.TrimSpace(u.Project)
	u.UnitNumber = strings.TrimSpace(u.UnitNumber)
	switch {
	case u.Project == "":
		return nil, &ValidationError{Field: "project", Message: "is required"}
	case u.UnitNumber == "":
		return nil, &ValidationError{Field: "unit_number", Message: "is required"}
	case !u.CashPrice.IsPositive():
		return nil, &ValidationError{Field: "cash_price", Message: "must be greater than zero"}
	case u.InstallmentPrice.Valid && !u.InstallmentPrice.Decimal.IsPositive():
		return nil, &ValidationError{Field: "installment_price", Message: "must be greater than zero"}
	}
	if u.Status == "" {
		u.Status = UnitAvailable
	}
	if u.Status != UnitAvailable && u.Status != UnitInactive {
		return nil, &ValidationError{Field: "status", Message: "new units must be available or inactive"}
	}

	if err := c.store.CreateUnit(ctx, u); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"unit_id": u.ID, "project": u.Project, "unit_number": u.UnitNumber}).Info("unit created")
	return u, nil
}

func (c *CatalogService) GetUnit(ctx context.Context, id UnitID) (*Unit, error) {
	return c.store.GetUnit(ctx, id)
}

// ListUnits returns all units, or those in status when it is non-empty.
func (c *CatalogService) ListUnits(ctx context.Context, status UnitStatus) ([]Unit, error) {
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown unit status " + string(status)}
	}
	return c.store.ListUnits(ctx, status)
}

// SetUnitStatus is the administrative status edit.
func (c *CatalogService) SetUnitStatus(ctx context.Context, id UnitID, status UnitStatus, actor UserID) (_ *Unit, err error) {
	ctx, span := startSpan(ctx, "CatalogService.SetUnitStatus", attribute.Int64("unit.id", int64(id)), attribute.String("unit.status", string(status)))
	defer func() { finishSpan(span, err) }()

	if status != UnitAvailable && status != UnitInactive {
		return nil, &ValidationError{Field: "status", Message: "only available or inactive can be set directly"}
	}

	var updated *Unit
	err = c.store.WithTx(ctx, func(tx Store) error {
		unit, err := c.locks.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		n, err := tx.CountReservations(ctx, id, ReservationActive, ReservationConverted)
		if err != nil {
			return err
		}
		if n > 0 {
			return &GuardError{UnitID: id, Reason: "unit is referenced by an active or converted reservation"}
		}
		if unit.Status != status {
			if err := tx.UpdateUnitStatus(ctx, id, status); err != nil {
				return err
			}
			unit.Status = status
		}
		updated = unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"unit_id": id, "status": status, "actor_id": actor}).Info("unit status set")
	return updated, nil
}

// =============================================================================
// PLAN TEMPLATES
// =============================================================================

// PlanTemplateSpec describes a template to create. Terms is required for
// installment templates and ignored for cash.
type PlanTemplateSpec struct {
	Name  string
	Type  money.PlanType
	Terms *InstallmentTerms
}

func (c *CatalogService) ListPlanTemplates(ctx context.Context, unitID UnitID) ([]PlanTemplate, error) {
	if _, err := c.store.GetUnit(ctx, unitID); err != nil {
		return nil, err
	}
	return c.store.ListPlanTemplates(ctx, unitID)
}

// CreatePlanTemplate prices a new template from the unit's current prices.
func (c *CatalogService) CreatePlanTemplate(ctx context.Context, unitID UnitID, spec PlanTemplateSpec) (*PlanTemplate, error) {
	unit, err := c.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}

	tmpl := &PlanTemplate{UnitID: unit.ID, Name: strings.TrimSpace(spec.Name), Active: true}
	switch spec.Type {
	case money.PlanCash:
		tmpl.Details = money.CashDetails{CashPrice: unit.CashPrice}
	case money.PlanInstallment:
		if spec.Terms == nil {
			return nil, &ValidationError{Field: "installment_count", Message: "is required for installment plans"}
		}
		d, err := computeInstallment(unit.InstallmentBasePrice(), *spec.Terms)
		if err != nil {
			return nil, err
		}
		tmpl.Details = d
	default:
		return nil, &ValidationError{Field: "plan_type", Message: "must be cash or installment"}
	}
	if tmpl.Name == "" {
		tmpl.Name = defaultTemplateName(tmpl.Details)
	}

	if err := c.store.CreatePlanTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{"unit_id": unitID, "plan_id": tmpl.ID, "plan_type": spec.Type}).Info("plan template created")
	return tmpl, nil
}

// QuotePlan computes installment details for a unit without persisting.
func (c *CatalogService) QuotePlan(ctx context.Context, unitID UnitID, terms InstallmentTerms) (money.InstallmentDetails, error) {
	unit, err := c.store.GetUnit(ctx, unitID)
	if err != nil {
		return money.InstallmentDetails{}, err
	}
	return computeInstallment(unit.InstallmentBasePrice(), terms)
}

func defaultTemplateName(d money.PlanDetails) string {
	if i, ok := d.(money.InstallmentDetails); ok {
		return fmt.Sprintf("Installment, %s%% down, %d months", i.DownPaymentPercent.String(), i.InstallmentCount)
	}
	return "Cash"
}
