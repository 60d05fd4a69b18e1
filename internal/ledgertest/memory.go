// Package ledgertest provides an in-memory ledger with transaction and savepoint
// semantics matching database.Tx, for tests of the packages that write the ledger.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
)

type state struct {
	assets         map[int]*models.Asset
	rules          map[int][]models.TemplateDetail // by template id
	positions      map[int]*models.AssetPosition
	decompositions []models.Decomposition
	gains          []models.GainHistory
	nextAssetID    int
	nextPositionID int
}

func newState() *state {
	return &state{
		assets:    make(map[int]*models.Asset),
		rules:     make(map[int][]models.TemplateDetail),
		positions: make(map[int]*models.AssetPosition),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.assets {
		cp := *a
		c.assets[id] = &cp
	}
	for id, r := range s.rules {
		c.rules[id] = append([]models.TemplateDetail(nil), r...)
	}
	for id, p := range s.positions {
		cp := *p
		c.positions[id] = &cp
	}
	c.decompositions = append([]models.Decomposition(nil), s.decompositions...)
	c.gains = append([]models.GainHistory(nil), s.gains...)
	c.nextAssetID = s.nextAssetID
	c.nextPositionID = s.nextPositionID
	return c
}

type failure struct {
	after int
	calls int
	err   error
}

// Memory is an in-memory ledger. Writes only become visible when the WithTx callback returns nil.
type Memory struct {
	mu       sync.Mutex
	state    *state
	failures map[string]*failure
	commits  int
	rollback int
}

// New returns an empty ledger
func New() *Memory {
	return &Memory{state: newState(), failures: make(map[string]*failure)}
}

// Fail makes the named Tx method return err once it has been called more than `after` times
func (m *Memory) Fail(method string, after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = &failure{after: after, err: err}
}

// AddAsset registers an asset whose template holds the given rules
func (m *Memory) AddAsset(ticker string, rules ...models.TemplateDetail) *models.Asset {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextAssetID++
	id := m.state.nextAssetID
	for i := range rules {
		rules[i].ID = i + 1
		rules[i].TemplateID = id
	}
	a := &models.Asset{ID: id, Ticker: ticker, DisplayName: ticker, TemplateID: id, CreatedAt: time.Now()}
	m.state.assets[id] = a
	m.state.rules[id] = append([]models.TemplateDetail(nil), rules...)
	cp := *a
	return &cp
}

// SetRules replaces the rules of an asset's template
func (m *Memory) SetRules(assetID int, rules ...models.TemplateDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state.assets[assetID]
	if !ok {
		return
	}
	for i := range rules {
		rules[i].ID = i + 1
		rules[i].TemplateID = a.TemplateID
	}
	m.state.rules[a.TemplateID] = append([]models.TemplateDetail(nil), rules...)
}

// GetAssetByTicker resolves a ticker or display name
func (m *Memory) GetAssetByTicker(ctx context.Context, ticker string) (*models.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.state.assets {
		if a.Ticker == ticker || a.DisplayName == ticker {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("asset for ticker %s: %w", ticker, database.ErrNotFound)
}

// AddGain stores a committed gain row
func (m *Memory) AddGain(ticker string, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.gains = append(m.state.gains, models.GainHistory{Ticker: ticker, GainDate: date})
}

// Gains returns the committed gain rows
func (m *Memory) Gains() []models.GainHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.GainHistory(nil), m.state.gains...)
}

// Positions returns the committed positions of an as-of date ordered by id
func (m *Memory) Positions(asOf time.Time) []models.AssetPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AssetPosition
	for _, p := range m.state.positions {
		if p.AsOfDate.Equal(asOf) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Decompositions returns the committed decomposition rows of a position
func (m *Memory) Decompositions(positionID int) []models.Decomposition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Decomposition
	for _, d := range m.state.decompositions {
		if d.PositionID == positionID {
			out = append(out, d)
		}
	}
	return out
}

// AllDecompositions returns every committed decomposition row
func (m *Memory) AllDecompositions() []models.Decomposition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Decomposition(nil), m.state.decompositions...)
}

// Commits counts committed transactions
func (m *Memory) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Rollbacks counts rolled back transactions
func (m *Memory) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollback
}

// WithTx runs fn against a private copy of the ledger and publishes it when fn returns nil
func (m *Memory) WithTx(ctx context.Context, fn func(*Tx) error) error {
	m.mu.Lock()
	working := m.state.clone()
	m.mu.Unlock()

	tx := &Tx{mem: m, state: working, savepoints: make(map[string]*state)}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		m.rollback++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.state = working
	m.commits++
	m.mu.Unlock()
	return nil
}

// Tx is an open in-memory transaction
type Tx struct {
	mem        *Memory
	state      *state
	savepoints map[string]*state
}

func (t *Tx) check(method string) error {
	t.mem.mu.Lock()
	defer t.mem.mu.Unlock()

	f, ok := t.mem.failures[method]
	if !ok {
		return nil
	}
	f.calls++
	if f.calls > f.after {
		return f.err
	}
	return nil
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if err := t.check("Savepoint"); err != nil {
		return err
	}
	t.savepoints[name] = t.state.clone()
	return nil
}

func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	if err := t.check("RollbackTo"); err != nil {
		return err
	}
	saved, ok := t.savepoints[name]
	if !ok {
		return fmt.Errorf("savepoint %s does not exist", name)
	}
	*t.state = *saved.clone()
	return nil
}

func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	if err := t.check("ReleaseSavepoint"); err != nil {
		return err
	}
	delete(t.savepoints, name)
	return nil
}

func (t *Tx) TemplateDetailsForAsset(ctx context.Context, assetID int) ([]models.TemplateDetail, error) {
	if err := t.check("TemplateDetailsForAsset"); err != nil {
		return nil, err
	}
	a, ok := t.state.assets[assetID]
	if !ok || a.TemplateID == 0 {
		return nil, nil
	}
	return append([]models.TemplateDetail(nil), t.state.rules[a.TemplateID]...), nil
}

func (t *Tx) PositionIDsForAssetDate(ctx context.Context, assetID int, asOf time.Time) ([]int, error) {
	if err := t.check("PositionIDsForAssetDate"); err != nil {
		return nil, err
	}
	var ids []int
	for id, p := range t.state.positions {
		if p.AssetID == assetID && p.AsOfDate.Equal(asOf) {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	return ids, nil
}

func (t *Tx) PositionIDsForDate(ctx context.Context, asOf time.Time) ([]int, error) {
	if err := t.check("PositionIDsForDate"); err != nil {
		return nil, err
	}
	var ids []int
	for id, p := range t.state.positions {
		if p.AsOfDate.Equal(asOf) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (t *Tx) FindPositionByKey(ctx context.Context, assetID int, asOf time.Time, heldAt string) (*models.AssetPosition, error) {
	if err := t.check("FindPositionByKey"); err != nil {
		return nil, err
	}
	for _, p := range t.state.positions {
		if p.AssetID == assetID && p.AsOfDate.Equal(asOf) && p.HeldAt == heldAt && heldAt != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("position for asset %d at %s: %w", assetID, heldAt, database.ErrNotFound)
}

func (t *Tx) InsertPosition(ctx context.Context, p *models.AssetPosition) error {
	if err := t.check("InsertPosition"); err != nil {
		return err
	}
	t.state.nextPositionID++
	return t.insert(p, t.state.nextPositionID)
}

func (t *Tx) InsertPositionNextID(ctx context.Context, p *models.AssetPosition) error {
	if err := t.check("InsertPositionNextID"); err != nil {
		return err
	}
	next := 0
	for id := range t.state.positions {
		if id > next {
			next = id
		}
	}
	next++
	if next > t.state.nextPositionID {
		t.state.nextPositionID = next
	}
	return t.insert(p, next)
}

func (t *Tx) insert(p *models.AssetPosition, id int) error {
	if p.HeldAt != "" {
		for _, existing := range t.state.positions {
			if existing.AssetID == p.AssetID && existing.AsOfDate.Equal(p.AsOfDate) && existing.HeldAt == p.HeldAt {
				return fmt.Errorf("duplicate key value violates unique constraint uq_asset_inv_reference_key")
			}
		}
	}
	p.ID = id
	p.Amount = p.Amount.Round(2)
	p.CreatedAt = time.Now()
	cp := *p
	t.state.positions[id] = &cp
	return nil
}

func (t *Tx) AddToPositionAmount(ctx context.Context, id int, delta decimal.Decimal) error {
	if err := t.check("AddToPositionAmount"); err != nil {
		return err
	}
	p, ok := t.state.positions[id]
	if !ok {
		return fmt.Errorf("position %d: %w", id, database.ErrNotFound)
	}
	p.Amount = p.Amount.Add(delta).Round(2)
	return nil
}

func (t *Tx) DeleteDecompositions(ctx context.Context, positionIDs []int) error {
	if err := t.check("DeleteDecompositions"); err != nil {
		return err
	}
	drop := make(map[int]bool, len(positionIDs))
	for _, id := range positionIDs {
		drop[id] = true
	}
	kept := t.state.decompositions[:0:0]
	for _, d := range t.state.decompositions {
		if !drop[d.PositionID] {
			kept = append(kept, d)
		}
	}
	t.state.decompositions = kept
	return nil
}

func (t *Tx) DeletePositions(ctx context.Context, ids []int) error {
	if err := t.check("DeletePositions"); err != nil {
		return err
	}
	for _, id := range ids {
		for _, d := range t.state.decompositions {
			if d.PositionID == id {
				return fmt.Errorf("position %d still has decompositions", id)
			}
		}
		delete(t.state.positions, id)
	}
	return nil
}

func (t *Tx) InsertDecomposition(ctx context.Context, d *models.Decomposition) error {
	if err := t.check("InsertDecomposition"); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return models.ErrUnknownRuleKind
	}
	if _, ok := t.state.positions[d.PositionID]; !ok {
		return fmt.Errorf("position %d does not exist", d.PositionID)
	}
	row := *d
	row.Amount = row.Amount.Round(2)
	t.state.decompositions = append(t.state.decompositions, row)
	return nil
}

func (t *Tx) AddToDecomposition(ctx context.Context, d *models.Decomposition) (bool, error) {
	if err := t.check("AddToDecomposition"); err != nil {
		return false, err
	}
	found := false
	for i := range t.state.decompositions {
		row := &t.state.decompositions[i]
		if row.PositionID == d.PositionID && row.Kind == d.Kind && row.Code1 == d.Code1 &&
			(d.Kind != models.KindSectorIndustry || row.Code2 == d.Code2) {
			row.Amount = row.Amount.Add(d.Amount).Round(2)
			found = true
		}
	}
	return found, nil
}

func (t *Tx) DeleteGainsOn(ctx context.Context, date time.Time) (int64, error) {
	if err := t.check("DeleteGainsOn"); err != nil {
		return 0, err
	}
	return t.dropGains(func(g models.GainHistory) bool { return g.GainDate.Equal(date) }), nil
}

func (t *Tx) DeleteGainsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := t.check("DeleteGainsBefore"); err != nil {
		return 0, err
	}
	return t.dropGains(func(g models.GainHistory) bool { return g.GainDate.Before(cutoff) }), nil
}

func (t *Tx) dropGains(match func(models.GainHistory) bool) int64 {
	var n int64
	kept := t.state.gains[:0:0]
	for _, g := range t.state.gains {
		if match(g) {
			n++
			continue
		}
		kept = append(kept, g)
	}
	t.state.gains = kept
	return n
}

// Key formats a decomposition as kind:code1[:code2] for assertions
func Key(d models.Decomposition) string {
	parts := []string{d.Kind.Code(), d.Code1}
	if d.Kind == models.KindSectorIndustry {
		parts = append(parts, d.Code2)
	}
	return strings.Join(parts, ":")
}
