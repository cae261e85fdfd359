// Command agent plays one seat of a remote game with the greedy bot.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/power-grid/internal/agent"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	var (
		serverURL = flag.String("server", envOr("POWERGRID_SERVER", "http://localhost:8080"), "Server base URL")
		token     = flag.String("token", os.Getenv("POWERGRID_SEAT_TOKEN"), "Seat token from game creation")
		reserve   = flag.Int("reserve", 15, "Elektro held back from optional auctions")
	)
	flag.Parse()
	if *token == "" {
		log.Fatal("a seat token is required (-token or POWERGRID_SEAT_TOKEN)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bot := agent.NewGreedy()
	bot.Reserve = *reserve
	bot.Log = log.Default()

	log.Printf("joining %s", *serverURL)
	if err := agent.Play(ctx, *serverURL, *token, bot); err != nil {
		log.Fatalf("agent stopped: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
