package paper

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Config struct {
	InitialBalanceUSD float64 `yaml:"initial_balance_usd"`
	FeeBps            float64 `yaml:"fee_bps"`
	SlippageBps       float64 `yaml:"slippage_bps"`
}

// Quote is the top of book for a token at fill time.
type Quote struct {
	BestBid float64
	BestAsk float64
}

type FillResult struct {
	OrderID   string
	TradeID   string
	TokenID   string
	Side      string
	Status    string
	Filled    bool
	Price     float64
	Shares    float64
	CostUSD   float64
	FeeUSD    float64
	Timestamp time.Time
}

type Snapshot struct {
	InitialBalanceUSD float64 `json:"initial_balance_usd"`
	BalanceUSD        float64 `json:"balance_usd"`
	FeesPaidUSD       float64 `json:"fees_paid_usd"`
	TotalVolumeUSD    float64 `json:"total_volume_usd"`
	TotalTrades       int     `json:"total_trades"`
}

// Simulator fills simulated orders against supplied quotes with configurable
// fees and slippage, tracking a paper balance and share inventory.
type Simulator struct {
	mu sync.Mutex

	cfg Config

	sequence       int64
	balanceUSD     float64
	feesPaidUSD    float64
	totalVolumeUSD float64
	totalTrades    int
	inventory      map[string]float64 // tokenID -> shares held
}

func NewSimulator(cfg Config) *Simulator {
	initial := cfg.InitialBalanceUSD
	if initial <= 0 {
		initial = 1000
	}
	return &Simulator{
		cfg: Config{
			InitialBalanceUSD: initial,
			FeeBps:            cfg.FeeBps,
			SlippageBps:       cfg.SlippageBps,
		},
		balanceUSD: initial,
		inventory:  make(map[string]float64),
	}
}

func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		InitialBalanceUSD: s.cfg.InitialBalanceUSD,
		BalanceUSD:        s.balanceUSD,
		FeesPaidUSD:       s.feesPaidUSD,
		TotalVolumeUSD:    s.totalVolumeUSD,
		TotalTrades:       s.totalTrades,
	}
}

// Inventory returns the simulated share holding for a token.
func (s *Simulator) Inventory(tokenID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventory[tokenID]
}

// ExecuteLimit fills a limit order against the quote when the price crosses;
// otherwise the order rests unfilled.
func (s *Simulator) ExecuteLimit(tokenID, side string, limitPrice, shares float64, quote Quote) (FillResult, error) {
	if quote.BestBid <= 0 || quote.BestAsk <= 0 {
		return FillResult{}, fmt.Errorf("missing top-of-book quote for %s", tokenID)
	}
	side = strings.ToUpper(strings.TrimSpace(side))

	fillable := false
	execPrice := limitPrice
	switch side {
	case "BUY":
		if quote.BestAsk <= limitPrice {
			fillable = true
			execPrice = quote.BestAsk
		}
	case "SELL":
		if quote.BestBid >= limitPrice {
			fillable = true
			execPrice = quote.BestBid
		}
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", side)
	}

	if !fillable {
		return s.openOrder(tokenID, side, limitPrice, shares), nil
	}
	execPrice = applySlippage(execPrice, side, s.cfg.SlippageBps)
	return s.fill(tokenID, side, shares, execPrice)
}

func (s *Simulator) openOrder(tokenID, side string, price, shares float64) FillResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return FillResult{
		OrderID:   fmt.Sprintf("paper-order-%06d", s.sequence),
		TokenID:   tokenID,
		Side:      side,
		Status:    "LIVE",
		Filled:    false,
		Price:     price,
		Shares:    shares,
		CostUSD:   price * shares,
		Timestamp: time.Now().UTC(),
	}
}

func (s *Simulator) fill(tokenID, side string, shares, price float64) (FillResult, error) {
	if shares <= 0 {
		return FillResult{}, fmt.Errorf("shares must be positive")
	}
	if price <= 0 {
		return FillResult{}, fmt.Errorf("invalid execution price")
	}

	cost := shares * price
	fee := cost * s.cfg.FeeBps / 10000

	s.mu.Lock()
	defer s.mu.Unlock()

	switch side {
	case "BUY":
		if cost+fee > s.balanceUSD {
			return FillResult{}, fmt.Errorf("insufficient paper balance: need %.4f have %.4f", cost+fee, s.balanceUSD)
		}
	case "SELL":
		if held := s.inventory[tokenID]; held+1e-9 < shares {
			return FillResult{}, fmt.Errorf("insufficient paper inventory: need %.4f have %.4f", shares, held)
		}
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", side)
	}

	s.sequence++
	orderID := fmt.Sprintf("paper-order-%06d", s.sequence)
	s.sequence++
	tradeID := fmt.Sprintf("paper-trade-%06d", s.sequence)

	if side == "BUY" {
		s.balanceUSD -= cost + fee
		s.inventory[tokenID] += shares
	} else {
		s.balanceUSD += cost - fee
		s.inventory[tokenID] -= shares
		if s.inventory[tokenID] > -1e-9 && s.inventory[tokenID] < 1e-9 {
			delete(s.inventory, tokenID)
		}
	}
	s.feesPaidUSD += fee
	s.totalVolumeUSD += cost
	s.totalTrades++

	return FillResult{
		OrderID:   orderID,
		TradeID:   tradeID,
		TokenID:   tokenID,
		Side:      side,
		Status:    "MATCHED",
		Filled:    true,
		Price:     price,
		Shares:    shares,
		CostUSD:   cost,
		FeeUSD:    fee,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ExecuteMarket crosses the spread immediately at the far side of the quote.
func (s *Simulator) ExecuteMarket(tokenID, side string, shares float64, quote Quote) (FillResult, error) {
	if quote.BestBid <= 0 || quote.BestAsk <= 0 {
		return FillResult{}, fmt.Errorf("missing top-of-book quote for %s", tokenID)
	}
	side = strings.ToUpper(strings.TrimSpace(side))

	var price float64
	switch side {
	case "BUY":
		price = quote.BestAsk
	case "SELL":
		price = quote.BestBid
	default:
		return FillResult{}, fmt.Errorf("unsupported side: %s", side)
	}
	price = applySlippage(price, side, s.cfg.SlippageBps)
	return s.fill(tokenID, side, shares, price)
}

func applySlippage(price float64, side string, slippageBps float64) float64 {
	if slippageBps <= 0 {
		return price
	}
	adj := price * slippageBps / 10000
	if side == "BUY" {
		price += adj
	} else {
		price -= adj
	}
	if price > 1 {
		price = 1
	}
	if price < 0.001 {
		price = 0.001
	}
	return price
}
