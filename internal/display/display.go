// Package display renders watch-lists, holdings and journal records as
// terminal tables.
package display

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"github.com/dyike/BreakoutGo/internal/journal"
	"github.com/dyike/BreakoutGo/internal/strategy"
	"github.com/dyike/BreakoutGo/internal/trading"
)

var (
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	gainStyle   = numberStyle.Foreground(lipgloss.Color("#10B981"))
	lossStyle   = numberStyle.Foreground(lipgloss.Color("#EF4444"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginTop(1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// WatchlistTable lists candidates in rank order with their breakout target and,
// when known, the current price and distance to target.
func WatchlistTable(wl trading.Watchlist, prices map[string]decimal.Decimal) string {
	if wl.Empty() {
		return mutedStyle.Render("watch-list is empty")
	}
	rows := make([][]string, 0, len(wl.Tickers))
	for i, ticker := range wl.Tickers {
		target, hasTarget := wl.Target(ticker)
		price, hasPrice := prices[ticker]
		row := []string{fmt.Sprintf("%d", i+1), ticker, "-", "-", "-"}
		if hasTarget {
			row[2] = FormatPrice(target)
		}
		if hasPrice {
			row[3] = FormatPrice(price)
		}
		if hasTarget && hasPrice && target.IsPositive() {
			row[4] = FormatPercent(strategy.Rate(target, price))
		}
		rows = append(rows, row)
	}

	t := newTable("#", "TICKER", "TARGET", "PRICE", "VS TARGET").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4:
				return signStyle(rows[row][col])
			case col == 1:
				return cellStyle
			default:
				return numberStyle
			}
		})
	title := fmt.Sprintf("📋 Watch-list (built %s)", wl.BuiltAt.Format("2006-01-02 15:04:05"))
	return titleStyle.Render(title) + "\n" + t.String()
}

// HoldingsTable shows the positions and cash seen by the last tick.
func HoldingsTable(st trading.State, quote string) string {
	holdings := append([]strategy.Holding(nil), st.Holdings...)
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })

	rows := make([][]string, 0, len(holdings))
	for _, h := range holdings {
		row := []string{h.Ticker, h.Quantity.String(), FormatPrice(h.AvgBuyPrice), "-", "-"}
		if price, ok := st.Prices[h.Ticker]; ok && h.AvgBuyPrice.IsPositive() {
			row[3] = FormatPrice(price)
			row[4] = FormatPercent(strategy.Rate(h.AvgBuyPrice, price))
		}
		rows = append(rows, row)
	}

	t := newTable("TICKER", "QTY", "AVG", "PRICE", "P/L").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4:
				return signStyle(rows[row][col])
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})
	title := fmt.Sprintf("💼 Holdings (%d) | cash %s %s", len(holdings), FormatPrice(st.Cash), quote)
	return titleStyle.Render(title) + "\n" + t.String()
}

// TradesTable renders journal records, oldest first, with times in loc.
func TradesTable(recs []journal.TradeRecord, loc *time.Location) string {
	if len(recs) == 0 {
		return mutedStyle.Render("no trades recorded")
	}
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Time.In(loc).Format("01-02 15:04:05"),
			string(r.Side),
			r.Ticker,
			FormatPrice(r.Price),
			FormatPrice(r.Amount),
			r.Reason,
			r.Mode,
		})
	}
	t := newTable("TIME", "SIDE", "TICKER", "PRICE", "AMOUNT", "REASON", "MODE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1 && rows[row][col] == string(journal.SideBuy):
				return cellStyle.Foreground(lipgloss.Color("#10B981"))
			case col == 1:
				return cellStyle.Foreground(lipgloss.Color("#EF4444"))
			case col == 3 || col == 4:
				return numberStyle
			default:
				return cellStyle
			}
		})
	return titleStyle.Render(fmt.Sprintf("🧾 Trades (%d)", len(recs))) + "\n" + t.String()
}

// FormatPrice prints prices of 100 and above without decimals, smaller ones
// with up to 8 significant decimals.
func FormatPrice(p decimal.Decimal) string {
	if p.Abs().GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return p.StringFixed(0)
	}
	return p.Round(8).String()
}

func FormatPercent(rate decimal.Decimal) string {
	pct := rate.Mul(decimal.NewFromInt(100)).StringFixed(2)
	if rate.IsPositive() {
		pct = "+" + pct
	}
	return pct + "%"
}

func signStyle(s string) lipgloss.Style {
	switch {
	case len(s) > 0 && s[0] == '+':
		return gainStyle
	case len(s) > 0 && s[0] == '-' && s != "-":
		return lossStyle
	}
	return numberStyle
}

// DisplayWarning prints a non-fatal problem the user should know about.
func DisplayWarning(message string) {
	fmt.Printf("⚠️  Warning: %s\n", message)
}
