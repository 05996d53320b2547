package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/BreakoutGo/config"
)

// PromptForLiveConfirmation asks before real orders are sent.
func PromptForLiveConfirmation(cfg config.Config) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Trade real %s on Upbit with up to %s per order and %d positions?",
			cfg.QuoteCurrency, cfg.Strategy.MaxBuyAmount.String(), cfg.Strategy.MaxHoldings),
		Default: false,
	}

	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}

// PromptForOverwrite asks before replacing an existing config file.
func PromptForOverwrite(path string) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Overwrite %s with defaults?", path),
		Default: false,
	}

	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}
