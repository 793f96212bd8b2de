package main

import (
	"sort"

	"github.com/pterm/pterm"

	"skirmish/internal/sim"
)

// renderState draws the whole replicated state: one box per player plus a
// match summary line.
func renderState(s sim.State, selfID string) {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var panels []pterm.Panel
	for _, id := range ids {
		panels = append(panels, pterm.Panel{Data: playerBox(s.Players[id], id == selfID)})
	}
	if len(panels) == 0 {
		panels = append(panels, pterm.Panel{Data: pterm.Gray("No players joined yet.")})
	}
	match := pterm.Panel{Data: matchBox(s)}

	pterm.DefaultPanel.WithPanels([][]pterm.Panel{
		panels,
		{match},
	}).Render()
}

func playerBox(p *sim.PlayerState, self bool) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	title := p.Name
	if self {
		title += " (you)"
	}

	var status string
	if p.Alive {
		status = pterm.LightGreen("Alive")
	} else {
		status = pterm.LightRed("Down")
	}

	return pbox.WithTitle(title).WithTitleTopLeft().Sprintf(
		"%s\nHealth: %s\nPosition: %.0f, %.0f",
		status,
		healthMeter(p.Health),
		sim.Dequantize(p.Position.X), sim.Dequantize(p.Position.Y),
	)
}

func healthMeter(health int) string {
	if health < 0 {
		health = 0
	}
	if health > sim.MaxHealth {
		health = sim.MaxHealth
	}
	meter := ""
	for i := 0; i < sim.MaxHealth; i++ {
		if i < health {
			meter += "#"
		} else {
			meter += "-"
		}
	}
	colored := pterm.LightGreen
	switch {
	case health <= sim.MaxHealth/3:
		colored = pterm.LightRed
	case health <= 2*sim.MaxHealth/3:
		colored = pterm.LightYellow
	}
	return colored(meter) + pterm.Sprintf(" %d/%d", health, sim.MaxHealth)
}

func matchBox(s sim.State) string {
	pbox := pterm.DefaultBox.WithHorizontalPadding(4).WithTopPadding(1).WithBottomPadding(1)
	return pbox.WithTitle(pterm.LightYellow("|MATCH|")).WithTitleTopCenter().Sprintf(
		"Phase: %s\nFrame: %d\nClock: %.1fs\nShots in flight: %d",
		string(s.Phase), s.Frame, float64(s.Clock)/1e9, len(s.Projectiles),
	)
}

// printOutcome announces the end of the match from this peer's point of view.
func printOutcome(s sim.State, selfID string) {
	switch {
	case s.WinnerID == "":
		pterm.Info.Println("The match ended in a draw.")
	case s.WinnerID == selfID:
		pterm.Success.Println("You are the last one standing, congratulations!")
	default:
		name := s.WinnerID
		if winner, ok := s.Players[s.WinnerID]; ok && winner.Name != "" {
			name = winner.Name
		}
		pterm.Error.Printfln("You were eliminated. %s takes the match.", pterm.LightCyan(name))
	}
}
