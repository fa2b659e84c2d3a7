// Package main provides the remote control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/trackbox/internal/api/connect"
)

var (
	app    = kingpin.New("trackboxctl", "trackbox remote control")
	server = app.Flag("server", "Server address").Default("http://localhost:8090").String()
	token  = app.Flag("token", "Control token (or set TRACKBOX_CONTROL_TOKEN env)").Envar("TRACKBOX_CONTROL_TOKEN").String()

	// modules command
	modulesCmd = app.Command("modules", "List catalog modules").Alias("ls")
	reloadFlag = modulesCmd.Flag("reload", "Fetch the catalog again first").Bool()

	// status command
	statusCmd = app.Command("status", "Get player state")

	// watch command
	watchCmd = app.Command("watch", "Stream player state changes")

	// open command
	openCmd    = app.Command("open", "Open the player on a track")
	openModule = openCmd.Arg("module-id", "Module ID").Required().String()
	openTrack  = openCmd.Arg("track-id", "Track ID").Required().String()

	// close command
	closeCmd = app.Command("close", "Close the full player")

	// toggle command
	toggleCmd = app.Command("toggle", "Toggle play/pause")

	// seek command
	seekCmd      = app.Command("seek", "Seek the active track")
	seekPosition = seekCmd.Arg("position", "Position (e.g. 1m30s)").Required().Duration()

	// next / prev commands
	nextCmd = app.Command("next", "Skip to the next track")
	prevCmd = app.Command("prev", "Go to the previous track")

	// shuffle command
	shuffleCmd = app.Command("shuffle", "Toggle shuffle in the full player")

	// loop command
	loopCmd  = app.Command("loop", "Set looping")
	loopFlag = loopCmd.Arg("on", "Loop on or off").Required().Bool()

	// swipe command
	swipeCmd    = app.Command("swipe", "Swipe the mini-player")
	swipeOffset = swipeCmd.Arg("offset", "Horizontal offset in points").Required().Float64()

	// billing commands
	offeringsCmd = app.Command("offerings", "List purchasable packages")
	purchaseCmd  = app.Command("purchase", "Purchase a package")
	purchasePkg  = purchaseCmd.Arg("package-id", "Package ID").Required().String()
	restoreCmd   = app.Command("restore", "Restore purchases")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	ctx := context.Background()

	var err error
	switch command {
	case modulesCmd.FullCommand():
		err = listModules(ctx, client, *reloadFlag)
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case watchCmd.FullCommand():
		err = watch(client)
	case openCmd.FullCommand():
		err = open(ctx, client, *openModule, *openTrack)
	case closeCmd.FullCommand():
		err = client.ClosePlayer(ctx)
		report(err, "Player closed")
	case toggleCmd.FullCommand():
		err = transport(client.TogglePlayPause(ctx))
	case seekCmd.FullCommand():
		err = transport(client.Seek(ctx, seekPosition.Milliseconds()))
	case nextCmd.FullCommand():
		err = skip(client.Next(ctx))
	case prevCmd.FullCommand():
		err = skip(client.Previous(ctx))
	case shuffleCmd.FullCommand():
		var random bool
		random, err = client.ToggleShuffle(ctx)
		report(err, fmt.Sprintf("Shuffle: %v", random))
	case loopCmd.FullCommand():
		err = transport(client.SetLooping(ctx, *loopFlag))
	case swipeCmd.FullCommand():
		var dismissed bool
		dismissed, err = client.SwipeMiniPlayer(ctx, *swipeOffset)
		report(err, fmt.Sprintf("Dismissed: %v", dismissed))
	case offeringsCmd.FullCommand():
		err = offerings(ctx, client)
	case purchaseCmd.FullCommand():
		var premium bool
		premium, err = client.Purchase(ctx, *purchasePkg)
		report(err, fmt.Sprintf("Premium: %v", premium))
	case restoreCmd.FullCommand():
		var premium bool
		premium, err = client.Restore(ctx)
		report(err, fmt.Sprintf("Premium: %v", premium))
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func report(err error, message string) {
	if err == nil {
		fmt.Println(message)
	}
}

func listModules(ctx context.Context, client *apiconnect.Client, reload bool) error {
	call := client.ListModules
	if reload {
		call = client.ReloadCatalog
	}
	resp, err := call(ctx)
	if err != nil {
		return err
	}

	if resp.CatalogFailed {
		fmt.Printf("Catalog unavailable: %s\n", resp.Error)
		return nil
	}

	fmt.Printf("Modules (%d):\n", len(resp.Modules))
	for _, m := range resp.Modules {
		name := m.Name
		if m.Premium {
			name = "[PREMIUM] " + name
		}
		fmt.Printf("  %s: %s\n", m.ID, name)
		for _, t := range m.Tracks {
			media := ""
			if !t.HasMedia {
				media = " (no media)"
			}
			fmt.Printf("    %s: %s [%s]%s\n", t.ID, t.Name, formatMs(t.DurationMs), media)
		}
	}
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	st, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	printState(st)
	return nil
}

func watch(client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var last string
	return client.WatchState(ctx, func(st *apiconnect.PlayerState) bool {
		line := stateLine(st)
		if line != last {
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), line)
			last = line
		}
		return true
	})
}

func open(ctx context.Context, client *apiconnect.Client, moduleID, trackID string) error {
	resp, err := client.Open(ctx, moduleID, trackID)
	if err != nil {
		return err
	}
	if resp.Success {
		fmt.Println("Player opened")
	} else {
		fmt.Printf("Failed: %s (%s)\n", resp.Message, resp.Code)
	}
	return nil
}

func transport(st *apiconnect.PlayerState, err error) error {
	if err != nil {
		return err
	}
	fmt.Println(stateLine(st))
	return nil
}

func skip(moved bool, err error) error {
	if err != nil {
		return err
	}
	if moved {
		fmt.Println("Skipped")
	} else {
		fmt.Println("No track in that direction")
	}
	return nil
}

func offerings(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.GetOfferings(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Offering: %s\n", resp.CurrentID)
	for _, p := range resp.Packages {
		fmt.Printf("  %s: %s %s %s\n", p.ID, p.Type, p.ProductID, p.PriceString)
	}
	return nil
}

func printState(st *apiconnect.PlayerState) {
	fmt.Println("\n=== PLAYER STATE ===")
	fmt.Printf("Route: %s\n", st.Route)
	fmt.Printf("Player Open: %v\n", st.PlayerOpen)
	fmt.Printf("Mini-Player Visible: %v\n", st.MiniVisible)
	if st.CatalogFailed {
		fmt.Println("Catalog: unavailable")
	}

	if st.Track != nil {
		fmt.Printf("\nActive Track:\n")
		fmt.Printf("  Module: %s\n", st.Track.ModuleID)
		fmt.Printf("  Track: %s (%s)\n", st.Track.Name, st.Track.ID)
		fmt.Printf("  State: %s\n", st.State)
		fmt.Printf("  Position: %s / %s\n", formatMs(st.PositionMs), formatMs(st.DurationMs))
		fmt.Printf("  Buffer: %.0f%%\n", st.BufferProgress)
		fmt.Printf("  Looping: %v\n", st.IsLooping)
	} else {
		fmt.Println("\nNo active track")
	}

	if st.PlayerOpen {
		fmt.Printf("\nQueue: %d/%d shuffle=%v next=%v previous=%v\n",
			st.QueueIndex+1, st.QueueLen, st.IsRandom, st.HasNext, st.HasPrevious)
		if st.PlayerError != "" {
			fmt.Printf("Error: %s\n", st.PlayerError)
		}
	}
	fmt.Println()
}

func stateLine(st *apiconnect.PlayerState) string {
	if st.Track == nil {
		return fmt.Sprintf("[%s] %s", st.Route, st.State)
	}
	return fmt.Sprintf("[%s] %s %s/%s %s/%s buffer=%.0f%%",
		st.Route, st.State, st.Track.ModuleID, st.Track.ID,
		formatMs(st.PositionMs), formatMs(st.DurationMs), st.BufferProgress)
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
