package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	brcfg "botarena/internal/config"
	"botarena/internal/presets"
	"botarena/internal/strategy"
)

type StartupSummary struct {
	Engine  EngineSummary
	Events  EventsSummary
	Market  string
	AI      string
	Store   string
	HTTP    string
	Presets map[strategy.Kind]string

	out io.Writer
}

type EngineSummary struct {
	TickInterval    string
	HistoryCapacity int
	MinHistory      int
	Session         string
	PositionSizePct float64
	CapitalPerBot   float64
}

type EventsSummary struct {
	Topic      string
	GlobalRate float64
	SourceRate float64
	QueueSize  int
}

func newStartupSummary(cfg *brcfg.Config, snap presets.Snapshot) *StartupSummary {
	s := &StartupSummary{
		Engine: EngineSummary{
			TickInterval:    cfg.Engine.TickInterval().String(),
			HistoryCapacity: cfg.Engine.HistoryCapacity,
			MinHistory:      cfg.Engine.MinHistory,
			Session:         fmt.Sprintf("%s-%s %s", cfg.Engine.SessionOpen, cfg.Engine.SessionClose, cfg.Engine.Location()),
			PositionSizePct: cfg.Engine.PositionSizePct,
			CapitalPerBot:   cfg.Engine.InitialCapital,
		},
		Events: EventsSummary{
			Topic:      cfg.Events.Topic,
			GlobalRate: cfg.Events.GlobalRatePerMinute,
			SourceRate: cfg.Events.PerSourceRatePerMinute,
			QueueSize:  cfg.Events.QueueSize,
		},
		Market:  cfg.Market.Source,
		AI:      cfg.AI.Mode,
		Store:   cfg.Store.Driver,
		HTTP:    cfg.App.HTTPAddr,
		Presets: make(map[strategy.Kind]string, len(snap.Presets)),
		out:     os.Stdout,
	}
	for kind, p := range snap.Presets {
		s.Presets[kind] = formatParams(p.Params)
	}
	return s
}

func (s *StartupSummary) Print() {
	w := s.out
	if w == nil {
		w = os.Stdout
	}
	title := "STARTUP SUMMARY"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[ENGINE]")
	fmt.Fprintf(w, "  Tick interval:   %s\n", s.Engine.TickInterval)
	fmt.Fprintf(w, "  History:         capacity=%d min=%d\n", s.Engine.HistoryCapacity, s.Engine.MinHistory)
	fmt.Fprintf(w, "  Session:         %s\n", s.Engine.Session)
	fmt.Fprintf(w, "  Position size:   %.0f%% of cash\n", s.Engine.PositionSizePct*100)
	fmt.Fprintf(w, "  Capital per bot: %.2f\n", s.Engine.CapitalPerBot)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[EVENTS]")
	fmt.Fprintf(w, "  Topic: %s  global=%.0f/min  per source=%.0f/min  queue=%d\n",
		s.Events.Topic, s.Events.GlobalRate, s.Events.SourceRate, s.Events.QueueSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[COLLABORATORS]")
	fmt.Fprintf(w, "  Market: %s  AI: %s  Store: %s  HTTP: %s\n", s.Market, s.AI, s.Store, s.HTTP)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[STRATEGY PRESETS]")
	if len(s.Presets) == 0 {
		fmt.Fprintln(w, "  (built-in defaults only)")
	} else {
		kinds := make([]string, 0, len(s.Presets))
		for k := range s.Presets {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  > %s: %s\n", k, s.Presets[strategy.Kind(k)])
		}
	}
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ", ")
}
