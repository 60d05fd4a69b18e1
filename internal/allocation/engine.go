package allocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Outcome describes what AllocateFromReference did with a row
type Outcome int

const (
	OutcomeSkipped   Outcome = iota // zero amount
	OutcomeCreated                  // new position
	OutcomeMerged                   // amount added to an existing position
	OutcomeUnchanged                // existing position already held the same amount
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCreated:
		return "created"
	case OutcomeMerged:
		return "merged"
	case OutcomeUnchanged:
		return "unchanged"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// IDStrategy selects how reference-path positions get their id
type IDStrategy string

const (
	IDMaxPlusOne IDStrategy = "max_plus_one" // max(id)+1, sequence resynchronized
	IDAuto       IDStrategy = "auto"         // database sequence
)

// ParseIDStrategy parses a configured strategy name, case-insensitively
func ParseIDStrategy(s string) (IDStrategy, error) {
	switch strategy := IDStrategy(strings.ToLower(strings.TrimSpace(s))); strategy {
	case IDMaxPlusOne, IDAuto:
		return strategy, nil
	}
	return "", fmt.Errorf("unknown id strategy %q, expected %q or %q", s, IDMaxPlusOne, IDAuto)
}

// Engine fans position amounts out across template rules and writes them to the ledger
type Engine struct {
	store      Store
	log        zerolog.Logger
	idStrategy IDStrategy
}

// Option configures an Engine
type Option func(*Engine)

// WithIDStrategy selects the reference-path id strategy. IDMaxPlusOne is the default.
func WithIDStrategy(strategy IDStrategy) Option {
	return func(e *Engine) {
		e.idStrategy = strategy
	}
}

// NewEngine creates an allocation engine
func NewEngine(store Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		log:        log.With().Str("component", "allocation").Logger(),
		idStrategy: IDMaxPlusOne,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.idStrategy != IDMaxPlusOne && e.idStrategy != IDAuto {
		e.log.Warn().Str("id_strategy", string(e.idStrategy)).Msg("Unknown id strategy, using max_plus_one")
		e.idStrategy = IDMaxPlusOne
	}
	return e
}

// Share returns round(amount * percentage / 100, 2), rounding halves away from zero
func Share(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(hundred).Round(2)
}

// cents rounds an incoming amount to the precision positions are stored at
func cents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Reallocate replaces every position of the asset on the date with a freshly allocated one
func (e *Engine) Reallocate(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal) (*models.AssetPosition, error) {
	amount = cents(amount)
	var position *models.AssetPosition
	err := e.store.WithTx(ctx, func(l Ledger) error {
		ids, err := l.PositionIDsForAssetDate(ctx, assetID, asOf)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := l.DeleteDecompositions(ctx, ids); err != nil {
				return err
			}
			if err := l.DeletePositions(ctx, ids); err != nil {
				return err
			}
			e.log.Info().
				Int("asset_id", assetID).
				Str("as_of_date", asOf.Format(models.DateLayout)).
				Ints("replaced", ids).
				Msg("Replaced prior allocation")
		}

		position, err = e.allocate(ctx, l, assetID, asOf, amount)
		return err
	})
	if err != nil {
		return nil, classify("reallocate", err)
	}
	return position, nil
}

// Allocate inserts a new position and one decomposition row per template rule.
// An asset without rules still gets its position.
func (e *Engine) Allocate(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal) (*models.AssetPosition, error) {
	amount = cents(amount)
	var position *models.AssetPosition
	err := e.store.WithTx(ctx, func(l Ledger) error {
		var err error
		position, err = e.allocate(ctx, l, assetID, asOf, amount)
		return err
	})
	if err != nil {
		return nil, classify("allocate", err)
	}
	return position, nil
}

func (e *Engine) allocate(ctx context.Context, l Ledger, assetID int, asOf time.Time, amount decimal.Decimal) (*models.AssetPosition, error) {
	p := &models.AssetPosition{AssetID: assetID, AsOfDate: asOf, Amount: amount}
	if err := l.InsertPosition(ctx, p); err != nil {
		return nil, err
	}

	rules, err := l.TemplateDetailsForAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		e.log.Warn().Int("asset_id", assetID).Msg("Asset has no template rules, position left undecomposed")
	}

	for _, rule := range rules {
		d := decomposition(p.ID, rule, amount)
		if err := l.InsertDecomposition(ctx, &d); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AllocateFromReference accumulates a reference-sheet amount into the position keyed by
// (asset, date, held_at) in its own transaction. Use Batch to share one transaction across rows.
// Amounts are rounded to cents first, so sub-cent amounts are skipped.
func (e *Engine) AllocateFromReference(ctx context.Context, assetID int, asOf time.Time, amount decimal.Decimal, heldAt string) (Outcome, error) {
	amount = cents(amount)
	if amount.IsZero() {
		return OutcomeSkipped, nil
	}

	var outcome Outcome
	err := e.store.WithTx(ctx, func(l Ledger) error {
		var err error
		outcome, err = e.allocateFromReference(ctx, l, assetID, asOf, amount, heldAt)
		return err
	})
	if err != nil {
		return OutcomeSkipped, classify("allocate from reference", err)
	}
	return outcome, nil
}

func (e *Engine) allocateFromReference(ctx context.Context, l Ledger, assetID int, asOf time.Time, amount decimal.Decimal, heldAt string) (Outcome, error) {
	outcome := OutcomeCreated
	existing, err := l.FindPositionByKey(ctx, assetID, asOf, heldAt)
	switch {
	case err == nil:
		outcome = OutcomeMerged
		if existing.Amount.Equal(amount) {
			outcome = OutcomeUnchanged
		}
	case errors.Is(err, database.ErrNotFound):
		existing = &models.AssetPosition{AssetID: assetID, AsOfDate: asOf, Amount: amount, HeldAt: heldAt}
		if e.idStrategy == IDAuto {
			err = l.InsertPosition(ctx, existing)
		} else {
			err = l.InsertPositionNextID(ctx, existing)
		}
		if err != nil {
			return OutcomeSkipped, err
		}
	default:
		return OutcomeSkipped, err
	}

	rules, err := l.TemplateDetailsForAsset(ctx, assetID)
	if err != nil {
		return OutcomeSkipped, err
	}
	if len(rules) == 0 {
		return OutcomeSkipped, &ConfigurationError{AssetID: assetID}
	}

	switch outcome {
	case OutcomeUnchanged:
		return outcome, nil
	case OutcomeCreated:
		for _, rule := range rules {
			d := decomposition(existing.ID, rule, amount)
			if err := l.InsertDecomposition(ctx, &d); err != nil {
				return OutcomeSkipped, err
			}
		}
		return outcome, nil
	}

	if err := l.AddToPositionAmount(ctx, existing.ID, amount); err != nil {
		return OutcomeSkipped, err
	}
	for _, rule := range rules {
		d := decomposition(existing.ID, rule, amount)
		found, err := l.AddToDecomposition(ctx, &d)
		if err != nil {
			return OutcomeSkipped, err
		}
		if found {
			continue
		}
		e.log.Warn().
			Int("asset_id", assetID).
			Int("position_id", existing.ID).
			Str("rule", rule.Kind.String()+":"+d.Code1).
			Msg("No decomposition row for rule on merge, inserting")
		if err := l.InsertDecomposition(ctx, &d); err != nil {
			return OutcomeSkipped, err
		}
	}

	e.log.Debug().
		Int("asset_id", assetID).
		Str("held_at", heldAt).
		Str("added", amount.StringFixed(2)).
		Msg("Merged into existing position")
	return outcome, nil
}

func decomposition(positionID int, rule models.TemplateDetail, amount decimal.Decimal) models.Decomposition {
	code1, code2 := rule.Codes()
	if rule.Kind != models.KindSectorIndustry {
		code2 = ""
	}
	return models.Decomposition{
		PositionID: positionID,
		Kind:       rule.Kind,
		Code1:      code1,
		Code2:      code2,
		Amount:     Share(amount, rule.Percentage),
	}
}
