package models

import (
	"encoding/json"
	"testing"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPreferences() Preferences {
	return Preferences{
		Destination: "Rome",
		Dates:       DateRange{From: "2025-06-01", To: "2025-06-03"},
		NumPeople:   2,
		AgeGroups:   []string{"adults"},
		Interests:   []string{"historical_sites"},
		Budget:      Budget{Currency: "EUR", Amount: 1500},
		Transport:   []string{"train"},
	}
}

func TestPreferencesValidate_OK(t *testing.T) {
	p := validPreferences()
	assert.NoError(t, p.Validate())

	p.Dates = DateRange{From: "2025-06-01T00:00:00Z", To: "2025-06-03T00:00:00Z"}
	assert.NoError(t, p.Validate())
}

func TestPreferencesValidate_ReportsEveryField(t *testing.T) {
	p := Preferences{
		Destination: "Ro",
		Dates:       DateRange{From: "2025-06-05", To: "2025-06-01"},
		Budget:      Budget{Currency: OtherCurrencyCode, Amount: 0},
	}

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))

	var coded *apperr.Error
	require.ErrorAs(t, err, &coded)
	for _, field := range []string{
		"destination", "dates.to", "numPeople", "ageGroups", "interests",
		"budget.amount", "budget.otherCurrency", "transport",
	} {
		assert.Contains(t, coded.Details, field)
	}
	assert.NotContains(t, coded.Details, "budget.currency")
}

func TestPreferencesValidate_MissingDates(t *testing.T) {
	p := validPreferences()
	p.Dates = DateRange{}

	var coded *apperr.Error
	require.ErrorAs(t, p.Validate(), &coded)
	assert.Contains(t, coded.Details, "dates.from")
	assert.Contains(t, coded.Details, "dates.to")
}

func TestAmountAcceptsStringsAndNumbers(t *testing.T) {
	var a struct {
		Cost  Amount `json:"cost"`
		Total Amount `json:"total"`
		None  Amount `json:"none"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"cost": 42.5, "total": "Varies", "none": null}`), &a))
	assert.Equal(t, Amount("42.5"), a.Cost)
	assert.Equal(t, Amount("Varies"), a.Total)
	assert.Equal(t, Amount(""), a.None)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cost": 42.5, "total": "Varies", "none": ""}`, string(out))
}

func TestDayAllActivitiesFallsBackToTemplate(t *testing.T) {
	day := ItineraryDay{
		Day: 1,
		Template: &DayTemplate{
			Breakfast:         &Activity{Time: "8:00", Description: "Cornetto"},
			MorningActivities: []Activity{{Time: "9:00", Description: "Colosseum"}},
			Dinner:            &Activity{Time: "20:00", Description: "Trastevere"},
		},
	}

	acts := day.AllActivities()
	require.Len(t, acts, 3)
	assert.Equal(t, "Cornetto", acts[0].Description)
	assert.Equal(t, "Trastevere", acts[2].Description)

	day.Activities = []Activity{{Time: "10:00", Description: "Flat"}}
	assert.Len(t, day.AllActivities(), 1)
}

func TestSessionResult(t *testing.T) {
	s := Session{ID: "abc", Status: SessionStatusFailed, Error: "No flights found", Code: FailureEngine}
	r := s.Result()
	assert.Equal(t, SessionStatusFailed, r.Status)
	assert.Equal(t, "No flights found", r.Error)
	assert.True(t, r.Status.Terminal())
	assert.False(t, SessionStatusPending.Terminal())
	assert.False(t, SessionStatusNotFound.Terminal())
}
