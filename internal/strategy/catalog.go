// Package strategy holds the strategy catalog shown on the dashboard and the
// desk that runs deposit and withdraw actions against it.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrUnsupportedStrategy = errors.New("only ID:1 vault is currently supported")
)

// VaultStrategyID is the only strategy backed by a deployed vault.
const VaultStrategyID = "1"

// Strategy is one row of the catalog. Every figure except the vault-backed
// strategy's position is mocked.
type Strategy struct {
	ID            string
	Name          string
	Description   string
	Network       string
	Icon          string
	APY           float64 // percent
	HistoricalAPY float64 // percent
	RiskLevel     int     // 1 (low) to 5
	Holdings      float64 // millions of USD
}

// VaultBacked reports whether actions on s reach the chain.
func (s Strategy) VaultBacked() bool {
	return s.ID == VaultStrategyID
}

// RiskBar renders the risk level as a five slot bar.
func (s Strategy) RiskBar() string {
	n := min(max(s.RiskLevel, 0), 5)
	return strings.Repeat("■", n) + strings.Repeat("□", 5-n)
}

// HoldingsLabel formats holdings the way the dashboard does, e.g. "$11.13M".
func (s Strategy) HoldingsLabel() string {
	return "$" + humanize.CommafWithDigits(s.Holdings, 2) + "M"
}

// APYLabel formats a percentage.
func APYLabel(v float64) string {
	return humanize.FormatFloat("#,###.##", v) + "%"
}

var defaultStrategies = []Strategy{
	{ID: "1", Name: "Sky USDS Compo...", Description: "USDS Stablecoin", Network: "Ethereum", Icon: "$",
		APY: 6.03, HistoricalAPY: 8.9, RiskLevel: 2, Holdings: 11.13},
	{ID: "2", Name: "USDS", Description: "USDS Stablecoin", Network: "Ethereum", Icon: "$",
		APY: 6.44, HistoricalAPY: 6.63, RiskLevel: 2, Holdings: 9.19},
	{ID: "3", Name: "USDC", Description: "USD Coin", Network: "Ethereum", Icon: "$",
		APY: 4.45, HistoricalAPY: 4.35, RiskLevel: 1, Holdings: 6.91},
	{ID: "4", Name: "USDT", Description: "Tether USD", Network: "Ethereum", Icon: "$",
		APY: 3.27, HistoricalAPY: 5.32, RiskLevel: 2, Holdings: 5.43},
	{ID: "5", Name: "DAI-2", Description: "Dai Stablecoin", Network: "Ethereum", Icon: "$",
		APY: 6.2, HistoricalAPY: 14.01, RiskLevel: 3, Holdings: 1.22},
}

// Catalog is an ordered, read-only set of strategies.
type Catalog struct {
	items []Strategy
	byID  map[string]int
}

// NewCatalog builds a catalog; later duplicates of an id replace earlier ones.
func NewCatalog(items ...Strategy) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(items))}
	for _, s := range items {
		if i, ok := c.byID[s.ID]; ok {
			c.items[i] = s
			continue
		}
		c.byID[s.ID] = len(c.items)
		c.items = append(c.items, s)
	}
	return c
}

// DefaultCatalog returns the dashboard's strategy list.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultStrategies...)
}

// List returns the strategies in display order.
func (c *Catalog) List() []Strategy {
	return append([]Strategy(nil), c.items...)
}

// Get returns the strategy with id.
func (c *Catalog) Get(id string) (Strategy, error) {
	i, ok := c.byID[id]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
	}
	return c.items[i], nil
}
