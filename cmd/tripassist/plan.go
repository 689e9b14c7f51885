package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/tripassist/internal/client"
	"github.com/fentz26/tripassist/internal/models"
)

var (
	planFile          string
	planPrefs         models.Preferences
	planFollow        string
	planTUI           bool
	planJSON          bool
	planSubmitTimeout time.Duration
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Request an itinerary",
	Long: `Submits travel preferences and waits for the itinerary.

Preferences come from flags, from a JSON file (--file, "-" for stdin), or both;
flags override the file.`,
	Example: `  tripassist plan --destination Lisbon --from 2025-06-01 --to 2025-06-03 \
    --people 2 --age-groups 25-34 --interests food,history --budget 800 \
    --currency EUR --transport walking`,
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVarP(&planFile, "file", "f", "", "Read preferences from a JSON file")
	f.StringVar(&planPrefs.Destination, "destination", "", "Destination")
	f.StringVar(&planPrefs.Dates.From, "from", "", "Start date (YYYY-MM-DD)")
	f.StringVar(&planPrefs.Dates.To, "to", "", "End date (YYYY-MM-DD)")
	f.IntVar(&planPrefs.NumPeople, "people", 1, "Number of travellers")
	f.StringSliceVar(&planPrefs.AgeGroups, "age-groups", nil, "Age groups of the travellers")
	f.StringSliceVar(&planPrefs.Interests, "interests", nil, "Interests")
	f.StringVar(&planPrefs.OtherInterests, "other-interests", "", "Free-text interests")
	f.Float64Var(&planPrefs.Budget.Amount, "budget", 0, "Budget per person")
	f.StringVar(&planPrefs.Budget.Currency, "currency", "USD", "Budget currency, or OTHER with --other-currency")
	f.StringVar(&planPrefs.Budget.OtherCurrency, "other-currency", "", "Currency name when --currency=OTHER")
	f.StringSliceVar(&planPrefs.Transport, "transport", nil, "Preferred transport")
	f.StringVar(&planPrefs.OtherTransport, "other-transport", "", "Free-text transport preference")
	f.StringSliceVar(&planPrefs.FoodPreferences, "food", nil, "Food preferences")
	f.StringVar(&planPrefs.OtherFoodPreferences, "other-food", "", "Free-text food preference")

	f.StringVar(&planFollow, "follow", followStream, "How to wait for the result: stream, poll or none")
	f.BoolVar(&planTUI, "tui", false, "Wait in the interactive terminal UI")
	f.BoolVar(&planJSON, "json", false, "Print JSON")
	f.DurationVar(&planSubmitTimeout, "submit-timeout", 3*time.Minute, "How long a submission may take (sync servers answer with the itinerary)")
}

// preferencesFromFlags overlays explicitly set flags on the file's preferences.
func preferencesFromFlags(cmd *cobra.Command, stdin io.Reader) (*models.Preferences, error) {
	prefs := planPrefs
	if planFile == "" {
		return &prefs, nil
	}

	var data []byte
	var err error
	if planFile == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(planFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	var base models.Preferences
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}

	f := cmd.Flags()
	overlay := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	overlay("destination", func() { base.Destination = prefs.Destination })
	overlay("from", func() { base.Dates.From = prefs.Dates.From })
	overlay("to", func() { base.Dates.To = prefs.Dates.To })
	overlay("people", func() { base.NumPeople = prefs.NumPeople })
	overlay("age-groups", func() { base.AgeGroups = prefs.AgeGroups })
	overlay("interests", func() { base.Interests = prefs.Interests })
	overlay("other-interests", func() { base.OtherInterests = prefs.OtherInterests })
	overlay("budget", func() { base.Budget.Amount = prefs.Budget.Amount })
	overlay("currency", func() { base.Budget.Currency = prefs.Budget.Currency })
	overlay("other-currency", func() { base.Budget.OtherCurrency = prefs.Budget.OtherCurrency })
	overlay("transport", func() { base.Transport = prefs.Transport })
	overlay("other-transport", func() { base.OtherTransport = prefs.OtherTransport })
	overlay("food", func() { base.FoodPreferences = prefs.FoodPreferences })
	overlay("other-food", func() { base.OtherFoodPreferences = prefs.OtherFoodPreferences })
	return &base, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	prefs, err := preferencesFromFlags(cmd, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := prefs.Validate(); err != nil {
		return describe(err)
	}

	out := cmd.OutOrStdout()
	c := client.New(apiAddr)
	sub, err := c.WithSubmitTimeout(planSubmitTimeout).Submit(cmd.Context(), prefs)
	if err != nil {
		return describe(err)
	}

	if sub.Mode == models.SubmissionSync {
		return printResult(out, models.CompletedResult(sub.Itinerary), planJSON)
	}

	if planFollow == followNone {
		if planJSON {
			return printJSON(out, sub)
		}
		fmt.Fprintf(out, "✓ Submitted. Session: %s\n", sub.SessionID)
		fmt.Fprintf(out, "  Follow with: tripassist watch %s\n", sub.SessionID)
		return nil
	}
	if !planJSON && !planTUI {
		fmt.Fprintf(out, "✓ Submitted. Session: %s\n", sub.SessionID)
	}
	return follow(cmd.Context(), out, c, sub.SessionID, planFollow, planTUI, planJSON)
}
