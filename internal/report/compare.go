// Package report compares ledger snapshots between dates and renders reports as markdown.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ErrNoData means a requested date has no ledger positions
var ErrNoData = errors.New("no ledger data")

// SnapshotSource reads position snapshots. *database.DB implements it.
type SnapshotSource interface {
	HasPositionsOn(ctx context.Context, asOf time.Time) (bool, error)
	PositionSnapshot(ctx context.Context, asOf time.Time) (map[string]decimal.Decimal, error)
}

// Comparison is the period-over-period change of every account_ticker key
type Comparison struct {
	From         time.Time            `json:"from"`
	To           time.Time            `json:"to"`
	EarlierTotal decimal.Decimal      `json:"earlier_total"`
	LaterTotal   decimal.Decimal      `json:"later_total"`
	Deltas       []models.PeriodDelta `json:"deltas"`
}

// Compare diffs two snapshots. Keys only in later are NEW (+100%), keys only in earlier are
// CLOSED (-100%), and the rest change by (later - earlier) / |earlier| * 100. Sorted by key.
func Compare(earlier, later map[string]decimal.Decimal) []models.PeriodDelta {
	keys := make(map[string]bool, len(earlier)+len(later))
	for k := range earlier {
		keys[k] = true
	}
	for k := range later {
		keys[k] = true
	}

	deltas := make([]models.PeriodDelta, 0, len(keys))
	for k := range keys {
		e, inEarlier := earlier[k]
		l, inLater := later[k]
		d := models.PeriodDelta{Key: k, Earlier: e, Later: l, Change: l.Sub(e)}

		switch {
		case !inEarlier || (e.IsZero() && !l.IsZero()):
			d.Status = models.DeltaNew
			d.ChangePct = hundred
		case !inLater:
			d.Status = models.DeltaClosed
			d.ChangePct = hundred.Neg()
		case e.Equal(l):
			d.Status = models.DeltaUnchanged
			d.ChangePct = decimal.Zero
		default:
			d.Status = models.DeltaChanged
			d.ChangePct = d.Change.Div(e.Abs()).Mul(hundred).Round(2)
		}
		deltas = append(deltas, d)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Key < deltas[j].Key })
	return deltas
}

// ComparePeriods loads both snapshots and compares them. Each date must hold ledger data.
func ComparePeriods(ctx context.Context, src SnapshotSource, from, to time.Time) (*Comparison, error) {
	for _, d := range []time.Time{from, to} {
		ok, err := src.HasPositionsOn(ctx, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoData, d.Format(models.DateLayout))
		}
	}

	earlier, err := src.PositionSnapshot(ctx, from)
	if err != nil {
		return nil, err
	}
	later, err := src.PositionSnapshot(ctx, to)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		From:         from,
		To:           to,
		EarlierTotal: sum(earlier),
		LaterTotal:   sum(later),
		Deltas:       Compare(earlier, later),
	}, nil
}

func sum(snapshot map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range snapshot {
		total = total.Add(v)
	}
	return total
}
