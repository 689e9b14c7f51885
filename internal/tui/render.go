package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fentz26/tripassist/internal/models"
)

// RenderResult renders a delivered result: the itinerary when completed, the
// failure otherwise.
func RenderResult(r models.Result) string {
	switch r.Status {
	case models.SessionStatusCompleted:
		out, err := RenderItinerary(r.Itinerary)
		if err != nil {
			return errorStyle.Render("Could not display itinerary: " + err.Error())
		}
		return out
	case models.SessionStatusPending:
		return labelStyle.Render("Still waiting for the itinerary.")
	}

	msg := r.Error
	if msg == "" {
		msg = "no itinerary was produced"
	}
	if r.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, r.Code)
	}
	return errorStyle.Render("✗ " + msg)
}

// RenderItinerary formats an itinerary day by day.
func RenderItinerary(raw json.RawMessage) (string, error) {
	var it models.Itinerary
	if err := json.Unmarshal(raw, &it); err != nil {
		return "", fmt.Errorf("decode itinerary: %w", err)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("✈ " + it.Destination))
	b.WriteString("  " + labelStyle.Render(fmt.Sprintf("%s → %s", it.StartDate, it.EndDate)))
	b.WriteString("\n")

	for _, day := range it.Days {
		heading := fmt.Sprintf("Day %d", day.Day)
		if day.Date != "" {
			heading += " · " + day.Date
		}
		b.WriteString(dayStyle.Render(heading))
		b.WriteString("\n")

		activities := day.AllActivities()
		if len(activities) == 0 {
			b.WriteString("  " + labelStyle.Render("Free day") + "\n")
		}
		for _, a := range activities {
			b.WriteString("  " + renderActivity(a) + "\n")
		}
	}

	if acc := it.Accommodation; acc != nil {
		b.WriteString(sectionStyle.Render("Accommodation"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s (%s), %s\n", acc.Name, acc.Type, acc.Location)
		fmt.Fprintf(&b, "  %s %s  %s %s\n",
			labelStyle.Render("per night"), acc.CostPerNight,
			labelStyle.Render("total"), acc.TotalCost)
		if len(acc.Amenities) > 0 {
			b.WriteString("  " + labelStyle.Render(strings.Join(acc.Amenities, ", ")) + "\n")
		}
	}

	if costs := it.CostBreakdown; costs != nil {
		b.WriteString(sectionStyle.Render("Estimated costs"))
		b.WriteString("\n")
		for _, line := range []struct {
			label  string
			amount models.Amount
		}{
			{"Accommodation", costs.Accommodation},
			{"Transport", costs.Transport},
			{"Meals", costs.Meals},
			{"Activities", costs.Activities},
			{"Nightlife", costs.Nightlife},
		} {
			if line.amount != "" {
				fmt.Fprintf(&b, "  %-14s %s\n", line.label, line.amount)
			}
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "Total", successStyle.Render(string(costs.Total)))
		if costs.Notes != "" {
			b.WriteString("  " + helpStyle.Render(costs.Notes) + "\n")
		}
	}

	return b.String(), nil
}

func renderActivity(a models.Activity) string {
	text := a.Description
	if a.Name != "" {
		text = a.Name + ": " + a.Description
	}
	line := timeStyle.Render(a.Time) + text
	if a.Location != "" {
		line += labelStyle.Render(" @ " + a.Location)
	}
	if a.Cost != "" {
		line += labelStyle.Render(" [" + string(a.Cost) + "]")
	}
	return line
}
