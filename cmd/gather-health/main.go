/*
Copyright 2025, 2026 the gather authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// gather-health is an interactive dashboard over the delivery queue: it
// aggregates delivery outcomes per peer domain, worst domains first.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gatherfed/gather/fed"
	_ "github.com/mattn/go-sqlite3"
)

var (
	dbPath = flag.String("db", "gather.sqlite3", "database path")
	window = flag.Duration("window", time.Hour*24*7, "aggregation window")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("8"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			MarginTop(1)
)

const refreshInterval = time.Second * 30

type model struct {
	db      *sql.DB
	since   time.Duration
	domains []fed.DomainHealth
	err     error
}

type healthMsg struct {
	domains []fed.DomainHealth
	err     error
}

type tickMsg time.Time

func (m model) load() tea.Cmd {
	return func() tea.Msg {
		domains, err := fed.Health(context.Background(), m.db, time.Now().Add(-m.since))
		return healthMsg{domains: domains, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.load()
		}

	case healthMsg:
		m.domains = msg.domains
		m.err = msg.err

	case tickMsg:
		return m, tea.Batch(m.load(), tick())
	}

	return m, nil
}

func (m model) View() string {
	s := titleStyle.Render(fmt.Sprintf("Delivery health, last %s", m.since)) + "\n"

	if m.err != nil {
		return s + failStyle.Render(m.err.Error()) + "\n"
	}

	if len(m.domains) == 0 {
		return s + emptyStyle.Render("No deliveries in this window") + "\n" + helpStyle.Render("r: refresh, q: quit") + "\n"
	}

	s += headerStyle.Render(fmt.Sprintf("%-40s %-12s %10s %10s %10s %8s", "host", "software", "delivered", "failed", "retrying", "rate")) + "\n"

	for _, d := range m.domains {
		line := fmt.Sprintf("%-40s %-12s %10d %10d %10d %7.0f%%", d.Host, d.Software, d.Delivered, d.Failed, d.Retrying, d.FailureRate()*100)
		if d.Failed > 0 {
			s += failStyle.Render(line) + "\n"
		} else {
			s += okStyle.Render(line) + "\n"
		}
	}

	return s + helpStyle.Render("r: refresh, q: quit") + "\n"
}

func main() {
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath+"?mode=ro")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := tea.NewProgram(model{db: db, since: *window}).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}
