package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/tripassist/internal/apperr"
)

// Preferences is the traveller's request, forwarded to the engine as-is.
type Preferences struct {
	Destination          string    `json:"destination"`
	Dates                DateRange `json:"dates"`
	NumPeople            int       `json:"numPeople"`
	AgeGroups            []string  `json:"ageGroups"`
	Interests            []string  `json:"interests"`
	OtherInterests       string    `json:"otherInterests,omitempty"`
	Budget               Budget    `json:"budget"`
	Transport            []string  `json:"transport"`
	OtherTransport       string    `json:"otherTransport,omitempty"`
	FoodPreferences      []string  `json:"foodPreferences,omitempty"`
	OtherFoodPreferences string    `json:"otherFoodPreferences,omitempty"`
}

// DateRange is the requested travel window.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Budget is the per-person spend.
type Budget struct {
	Currency      string  `json:"currency"`
	Amount        float64 `json:"amount"`
	OtherCurrency string  `json:"otherCurrency,omitempty"`
}

// OtherCurrencyCode is the currency value that requires OtherCurrency to be set.
const OtherCurrencyCode = "OTHER"

// Validate checks the request and returns an INVALID_INPUT error listing every
// failing field, or nil.
func (p *Preferences) Validate() error {
	problems := map[string]string{}

	if len(strings.TrimSpace(p.Destination)) < 3 {
		problems["destination"] = "Destination must be at least 3 characters long."
	}

	from, fromErr := ParseDate(p.Dates.From)
	to, toErr := ParseDate(p.Dates.To)
	if fromErr != nil {
		problems["dates.from"] = "Start date is required."
	}
	if toErr != nil {
		problems["dates.to"] = "End date is required."
	}
	if fromErr == nil && toErr == nil && to.Before(from) {
		problems["dates.to"] = "End date must not be before the start date."
	}

	if p.NumPeople < 1 {
		problems["numPeople"] = "At least one person must be travelling."
	}
	if !anyNonEmpty(p.AgeGroups) {
		problems["ageGroups"] = "You have to select at least one age group."
	}
	if !anyNonEmpty(p.Interests) {
		problems["interests"] = "You have to select at least one area of interest."
	}
	if strings.TrimSpace(p.Budget.Currency) == "" {
		problems["budget.currency"] = "Please select a currency."
	}
	if p.Budget.Amount < 1 {
		problems["budget.amount"] = "Budget must be at least 1."
	}
	if p.Budget.Currency == OtherCurrencyCode && strings.TrimSpace(p.Budget.OtherCurrency) == "" {
		problems["budget.otherCurrency"] = "Please specify the currency code."
	}
	if !anyNonEmpty(p.Transport) {
		problems["transport"] = "You have to select at least one transport preference."
	}

	if len(problems) == 0 {
		return nil
	}

	err := apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("invalid travel preferences (%d field(s))", len(problems)))
	for field, msg := range problems {
		err.WithDetail(field, msg)
	}
	return err
}

// ParseDate accepts RFC 3339 timestamps and plain yyyy-mm-dd dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func anyNonEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
