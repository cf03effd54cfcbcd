package strategy

import (
	"math/big"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/yolodolo42/chatdefi/internal/chain"
)

// MockDecimals is the asset precision assumed for strategies with no vault.
const MockDecimals = 6

// Position is an account's stake in one strategy, in base units.
type Position struct {
	StrategyID  string
	UserDeposit *big.Int
	Available   *big.Int
	Decimals    uint8
	ChainID     *big.Int // nil until reconciled from a vault
}

// Deposited formats UserDeposit with digit grouping.
func (p Position) Deposited() string {
	return groupUnits(p.UserDeposit, p.Decimals)
}

// AvailableLabel formats Available with digit grouping.
func (p Position) AvailableLabel() string {
	return groupUnits(p.Available, p.Decimals)
}

func (p Position) clone() Position {
	out := Position{
		StrategyID:  p.StrategyID,
		UserDeposit: new(big.Int).Set(p.UserDeposit),
		Available:   new(big.Int).Set(p.Available),
		Decimals:    p.Decimals,
	}
	if p.ChainID != nil {
		out.ChainID = new(big.Int).Set(p.ChainID)
	}
	return out
}

// Positions tracks one Position per strategy for the session account.
type Positions struct {
	mu    sync.Mutex
	items map[string]*Position
}

// NewPositions starts every strategy in the catalog at zero.
func NewPositions(c *Catalog) *Positions {
	p := &Positions{items: make(map[string]*Position)}
	for _, s := range c.List() {
		p.items[s.ID] = &Position{
			StrategyID:  s.ID,
			UserDeposit: new(big.Int),
			Available:   new(big.Int),
			Decimals:    MockDecimals,
		}
	}
	return p
}

// Get returns a copy of the position for id.
func (p *Positions) Get(id string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.items[id]
	if !ok {
		return Position{}, false
	}
	return pos.clone(), true
}

// MockDeposit moves one whole unit from Available to UserDeposit. Available
// does not go below zero.
func (p *Positions) MockDeposit(id string) (Position, bool) {
	return p.mutate(id, func(pos *Position) {
		unit := mockUnit(pos.Decimals)
		pos.UserDeposit.Add(pos.UserDeposit, unit)
		pos.Available.Sub(pos.Available, unit)
		if pos.Available.Sign() < 0 {
			pos.Available.SetInt64(0)
		}
	})
}

// MockWithdraw returns the whole UserDeposit to Available.
func (p *Positions) MockWithdraw(id string) (Position, bool) {
	return p.mutate(id, func(pos *Position) {
		pos.Available.Add(pos.Available, pos.UserDeposit)
		pos.UserDeposit.SetInt64(0)
	})
}

// Reconcile replaces the position with on-chain figures.
func (p *Positions) Reconcile(id string, chainID *big.Int, decimals uint8, deposited, available *big.Int) (Position, bool) {
	return p.mutate(id, func(pos *Position) {
		pos.UserDeposit.Set(deposited)
		pos.Available.Set(available)
		pos.Decimals = decimals
		pos.ChainID = new(big.Int).Set(chainID)
	})
}

func (p *Positions) mutate(id string, fn func(*Position)) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.items[id]
	if !ok {
		return Position{}, false
	}
	fn(pos)
	return pos.clone(), true
}

func mockUnit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// groupUnits renders v at decimals with thousands separators in the whole part.
func groupUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		v = new(big.Int)
	}
	scale := mockUnit(decimals)
	whole, frac := new(big.Int).QuoRem(v, scale, new(big.Int))
	s := chain.FormatUnits(frac, decimals) // "0.xxx"
	return humanize.BigComma(whole) + s[1:]
}
