// Command simulate plays all-bot games in process and prints a scoreboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/example/power-grid/internal/agent"
	"github.com/example/power-grid/internal/config"
	"github.com/example/power-grid/internal/game"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			Padding(0, 1)

	winnerStyle = rowStyle.
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			Padding(0, 1)
)

func main() {
	cfg := config.Default()
	var (
		games    = flag.Int("games", 1, "Number of games to play")
		players  = flag.Int("players", 4, "Bots per game")
		seed     = flag.Int64("seed", 0, "Seed of the first game (0: random)")
		parallel = flag.Int("parallel", 4, "Games run at once")
		verbose  = flag.Bool("v", false, "Log every journal entry")
	)
	fs := flag.CommandLine
	fs.StringVar(&cfg.RulesFile, "rules", "", "YAML rule tables (default: built-in)")
	fs.StringVar(&cfg.MapFile, "map", "", "YAML map (default: built-in USA)")
	fs.IntVar(&cfg.MaxRounds, "max-rounds", cfg.MaxRounds, "Round limit per game")
	flag.Parse()
	if err := cfg.Prepare(); err != nil {
		log.Fatalf("config: %v", err)
	}

	results := make([]*game.Result, *games)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*parallel)
	for i := 0; i < *games; i++ {
		g.Go(func() error {
			res, err := play(ctx, cfg, *players, *seed, i, *verbose)
			if err != nil {
				return fmt.Errorf("game %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	wins := map[game.PlayerID]int{}
	for i, res := range results {
		fmt.Println(render(i+1, res))
		for _, w := range res.Winners {
			wins[w]++
		}
	}
	if *games > 1 {
		fmt.Println(titleStyle.Render("Wins"))
		for _, s := range results[0].Standings {
			fmt.Printf("  %-6s %d\n", s.Player, wins[s.Player])
		}
	}
}

func play(ctx context.Context, cfg *config.Config, players int, seed int64, n int, verbose bool) (*game.Result, error) {
	opts, err := cfg.GameOptions()
	if err != nil {
		return nil, err
	}
	if seed != 0 {
		opts.Seed = seed + int64(n)
	}
	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	opts.Logger = log.New(out, fmt.Sprintf("[sim %d] ", n+1), 0)

	seats := make([]game.Seat, players)
	for i := range seats {
		seats[i] = game.Seat{
			ID:       game.PlayerID(fmt.Sprintf("bot%d", i+1)),
			Name:     fmt.Sprintf("Bot %d", i+1),
			Strategy: agent.NewGreedy(),
		}
	}
	gm, err := game.New(opts, seats)
	if err != nil {
		return nil, err
	}
	return gm.Run(ctx)
}

func render(n int, res *game.Result) string {
	winners := map[game.PlayerID]bool{}
	for _, w := range res.Winners {
		winners[w] = true
	}
	cols := []string{"player", "capacity", "cities", "elektro"}
	widths := []int{8, 10, 8, 9}
	var b strings.Builder
	for i, c := range cols {
		b.WriteString(headerStyle.Width(widths[i]).Render(c))
	}
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Game %d: %d rounds, %s", n, res.Rounds, res.Reason)),
		b.String(),
	}
	for _, s := range res.Standings {
		style := rowStyle
		if winners[s.Player] {
			style = winnerStyle
		}
		cells := []string{
			string(s.Player),
			fmt.Sprint(s.Capacity),
			fmt.Sprint(s.Locations),
			fmt.Sprint(s.Elektro),
		}
		var row strings.Builder
		for i, c := range cells {
			row.WriteString(style.Width(widths[i]).Render(c))
		}
		lines = append(lines, row.String())
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
