package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Itinerary is the typed view of a generated travel plan. The delivery core
// passes itineraries around as raw JSON; this type is used where fields are read.
type Itinerary struct {
	ID            string         `json:"id,omitempty"`
	Destination   string         `json:"destination"`
	StartDate     string         `json:"startDate"`
	EndDate       string         `json:"endDate"`
	Days          []ItineraryDay `json:"days"`
	Accommodation *Accommodation `json:"accommodation,omitempty"`
	CostBreakdown *CostBreakdown `json:"costBreakdown,omitempty"`
}

// ItineraryDay is one day of the plan.
type ItineraryDay struct {
	Day        int          `json:"day"`
	Date       string       `json:"date"`
	Activities []Activity   `json:"activities,omitempty"`
	Template   *DayTemplate `json:"template,omitempty"`
}

// DayTemplate is the structured breakdown some engines send instead of a flat list.
type DayTemplate struct {
	StartOfDay          *Activity  `json:"startOfDay,omitempty"`
	Breakfast           *Activity  `json:"breakfast,omitempty"`
	MorningActivities   []Activity `json:"morningActivities,omitempty"`
	MiddayActivities    []Activity `json:"middayActivities,omitempty"`
	Lunch               *Activity  `json:"lunch,omitempty"`
	EveningActivities   []Activity `json:"eveningActivities,omitempty"`
	Dinner              *Activity  `json:"dinner,omitempty"`
	NightlifeActivities []Activity `json:"nightlifeActivities,omitempty"`
	EndOfDay            *Activity  `json:"endOfDay,omitempty"`
}

// Flatten returns the template's activities in chronological slot order.
func (t *DayTemplate) Flatten() []Activity {
	if t == nil {
		return nil
	}
	var out []Activity
	add := func(a *Activity) {
		if a != nil {
			out = append(out, *a)
		}
	}
	add(t.StartOfDay)
	add(t.Breakfast)
	out = append(out, t.MorningActivities...)
	out = append(out, t.MiddayActivities...)
	add(t.Lunch)
	out = append(out, t.EveningActivities...)
	add(t.Dinner)
	out = append(out, t.NightlifeActivities...)
	add(t.EndOfDay)
	return out
}

// AllActivities returns the flat list when present, otherwise the flattened template.
func (d ItineraryDay) AllActivities() []Activity {
	if len(d.Activities) > 0 {
		return d.Activities
	}
	return d.Template.Flatten()
}

// Activity is a single entry in a day.
type Activity struct {
	Time        string `json:"time"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Location    string `json:"location,omitempty"`
	Cost        Amount `json:"cost,omitempty"`
	Transport   string `json:"transport,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Accommodation describes where the party stays.
type Accommodation struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Location     string   `json:"location"`
	CostPerNight Amount   `json:"costPerNight"`
	TotalCost    Amount   `json:"totalCost"`
	Amenities    []string `json:"amenities,omitempty"`
}

// CostBreakdown summarizes the expected spend.
type CostBreakdown struct {
	Accommodation Amount `json:"accommodation,omitempty"`
	Transport     Amount `json:"transport,omitempty"`
	Meals         Amount `json:"meals,omitempty"`
	Activities    Amount `json:"activities,omitempty"`
	Nightlife     Amount `json:"nightlife,omitempty"`
	Total         Amount `json:"total"`
	Notes         string `json:"notes,omitempty"`
}

// Amount is a cost that engines send either as a number or as free text ("Varies").
type Amount string

// UnmarshalJSON accepts a JSON string or number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// MarshalJSON writes numeric amounts as numbers and everything else as strings.
func (a Amount) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(a), 64); err == nil && json.Valid([]byte(a)) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}
