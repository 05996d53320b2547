package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/BreakoutGo/config"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2).
			Width(80)

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	paperStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// DisplayRunHeader shows what the bot is about to trade with.
func DisplayRunHeader(cfg config.Config) {
	mode := paperStyle.Render("PAPER")
	if cfg.Mode == config.ModeLive {
		mode = liveStyle.Render("LIVE")
	}
	s := cfg.Strategy
	tp := "off"
	if s.TakeProfitMode != "off" {
		tp = s.TakeProfit.String()
	}
	header := fmt.Sprintf("🤖 BreakoutGo %s | source %s | K %s | SL %s | TP %s\n📦 max %d holdings × %s %s | reset %02d:00 %s",
		mode, cfg.MarketSource, s.BreakoutK, s.StopLoss, tp,
		s.MaxHoldings, s.MaxBuyAmount, cfg.QuoteCurrency,
		cfg.Schedule.ResetHour, cfg.Schedule.Timezone,
	)
	fmt.Println(titleStyle.Render("📈 Volatility Breakout"))
	fmt.Println(headerStyle.Render(header))
}

// DisplayError shows an error message
func DisplayError(err error) {
	errorMsg := fmt.Sprintf("❌ Error: %s", err.Error())
	fmt.Println(errorStyle.Render(errorMsg))
}

// DisplayInfo shows an info message
func DisplayInfo(message string) {
	infoMsg := fmt.Sprintf("ℹ️  %s", message)
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Render(infoMsg))
}

// DisplaySuccess shows a success message
func DisplaySuccess(message string) {
	successMsg := fmt.Sprintf("✅ %s", message)
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Render(successMsg))
}
