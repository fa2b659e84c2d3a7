// Package main provides the local interactive player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackbox/internal/app/catalog"
	"github.com/osa030/trackbox/internal/app/coordinator"
	"github.com/osa030/trackbox/internal/app/playback"
	"github.com/osa030/trackbox/internal/infra/config"
	"github.com/osa030/trackbox/internal/infra/logger"
	"github.com/osa030/trackbox/internal/infra/media"
	"github.com/osa030/trackbox/internal/infra/settings"
)

var (
	app        = kingpin.New("trackbox-player", "trackbox local terminal player")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file").Default("trackbox-player.log").String()
	language   = app.Flag("language", "Persist the UI language before starting").String()
	region     = app.Flag("region", "Persist the region before starting").String()
)

const help = `Commands:
  ls                       list modules
  open <module> <track>    open the player on a track
  p                        toggle play/pause
  n | b                    next / previous track
  seek <duration>          seek (e.g. 1m30s)
  tap <x>                  tap the seek bar at x points
  shuffle                  toggle shuffle
  loop                     toggle looping
  close                    close the full player
  swipe <offset>           swipe the mini-player
  s                        show state
  q                        quit`

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// The terminal is the UI, logs go to a file
	loggerConfig := logger.Config{Output: "file", Level: cfg.Logging.Level, File: *logfile}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open settings store")
	}
	defer store.Close()

	if *language != "" {
		if err := store.SetLanguage(ctx, *language); err != nil {
			return errors.Wrap(err, "failed to save language")
		}
	}
	if *region != "" {
		if err := store.SetRegion(ctx, *region); err != nil {
			return errors.Wrap(err, "failed to save region")
		}
	}

	source, err := catalog.NewChainFromConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog sources")
	}
	defer source.Close()

	resolver, err := media.NewResolver(cfg.Media)
	if err != nil {
		return errors.Wrap(err, "failed to create media resolver")
	}

	session, err := coordinator.NewManager(cfg, coordinator.Options{
		Engine:     media.NewEngine(resolver),
		Source:     source,
		Prefetcher: resolver,
		Settings:   store,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer session.Close()

	unsubscribe := session.Playback().Subscribe(func(e playback.Event) {
		switch e.Type {
		case playback.EventLoadFailed, playback.EventTransportError:
			fmt.Printf("\n! %s: %v\n> ", e.Type, e.Err)
		}
	})
	defer unsubscribe()

	if err := session.Start(ctx); err != nil {
		return err
	}
	if st := session.Status(); st.CatalogFailed {
		fmt.Printf("Catalog unavailable: %s\n", st.CatalogErr)
	}

	fmt.Println(help)
	r := &repl{session: session}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := r.exec(ctx, strings.Fields(scanner.Text())); quit {
			return nil
		}
	}
}

type repl struct {
	session *coordinator.Manager
}

// exec runs one command line and reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return false
	}

	var err error
	switch args[0] {
	case "q", "quit", "exit":
		return true
	case "h", "help":
		fmt.Println(help)
	case "ls":
		r.listModules()
	case "open":
		if len(args) != 3 {
			fmt.Println("usage: open <module> <track>")
			return false
		}
		err = r.session.Open(ctx, args[1], args[2])
	case "p":
		if screen, ok := r.session.Player(); ok {
			screen.TogglePlayPause(ctx)
		} else {
			r.session.Playback().TogglePlayPause(ctx)
		}
	case "n", "b":
		err = r.skip(ctx, args[0] == "n")
	case "seek":
		err = r.seek(ctx, args[1:])
	case "tap":
		err = r.tap(ctx, args[1:])
	case "shuffle":
		if screen, ok := r.session.Player(); ok {
			fmt.Printf("shuffle: %v\n", screen.ToggleShuffle())
		} else {
			err = coordinator.ErrPlayerClosed
		}
	case "loop":
		if screen, ok := r.session.Player(); ok {
			fmt.Printf("loop: %v\n", screen.ToggleLoop(ctx))
		} else {
			snap := r.session.Playback().Snapshot()
			r.session.Playback().SetLooping(ctx, !snap.IsLooping)
		}
	case "close":
		err = r.session.ClosePlayer()
	case "swipe":
		err = r.swipe(ctx, args[1:])
	case "s", "status":
	default:
		fmt.Printf("unknown command: %s\n", args[0])
		return false
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
		return false
	}
	r.printState()
	return false
}

func (r *repl) skip(ctx context.Context, forward bool) error {
	if screen, ok := r.session.Player(); ok {
		if forward {
			screen.Next()
		} else {
			screen.Previous()
		}
		return nil
	}
	mini := r.session.MiniPlayer()
	if forward {
		_, err := mini.Next(ctx)
		return err
	}
	_, err := mini.Previous(ctx)
	return err
}

func (r *repl) seek(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <duration>")
	}
	pos, err := time.ParseDuration(args[0])
	if err != nil {
		return errors.Wrap(err, "invalid duration")
	}
	r.session.Playback().Seek(ctx, pos)
	return nil
}

func (r *repl) tap(ctx context.Context, args []string) error {
	screen, ok := r.session.Player()
	if !ok {
		return coordinator.ErrPlayerClosed
	}
	if len(args) != 1 {
		return errors.New("usage: tap <x>")
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return errors.Wrap(err, "invalid position")
	}
	screen.Tap(ctx, x)
	return nil
}

func (r *repl) swipe(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: swipe <offset>")
	}
	offset, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return errors.Wrap(err, "invalid offset")
	}
	mini := r.session.MiniPlayer()
	if !mini.Visible() {
		return errors.New("mini-player is not visible")
	}
	mini.Move(offset)
	if mini.Release(ctx, offset) {
		fmt.Println("mini-player dismissed")
	}
	return nil
}

func (r *repl) listModules() {
	for _, m := range r.session.Catalog().Modules {
		premium := ""
		if m.Premium {
			premium = " [premium]"
		}
		fmt.Printf("%s: %s%s\n", m.ID, m.Name, premium)
		for _, t := range m.Tracks {
			fmt.Printf("  %s: %s (%s)\n", t.ID, t.Name, t.Duration.Round(time.Second))
		}
	}
}

func (r *repl) printState() {
	st := r.session.Status()
	snap := st.Playback

	if screen, ok := r.session.Player(); ok {
		v := screen.View()
		title := "-"
		if v.Track != nil {
			title = v.Track.Name
		}
		fmt.Printf("[player] %s / %s  %d/%d  %s  %s/%s  buffer=%.0f%% shuffle=%v loop=%v\n",
			v.ModuleName, title, v.Index+1, v.Len, st.State,
			v.Position.Round(time.Second), v.Duration.Round(time.Second),
			v.BufferProgress, v.IsRandom, v.IsLooping)
		if v.Err != nil {
			fmt.Printf("         %v (retry=%v back=%v)\n", v.Err, v.CanRetry, v.CanGoBack)
		}
		return
	}

	if mini := r.session.MiniPlayer().View(); mini.Visible && mini.Track != nil {
		fmt.Printf("[mini] %s  %s  %.0f%%\n", mini.Track.Name, st.State, mini.Progress*100)
		return
	}
	fmt.Printf("[%s] %s\n", st.Route.Name, snap.State())
}
