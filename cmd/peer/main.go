package main

import (
	"context"
	"flag"
	"math"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"

	"skirmish/internal/app"
	"skirmish/internal/config"
	"skirmish/internal/proto"
	"skirmish/internal/sim"
	"skirmish/internal/telemetry"
)

const (
	actionStart = "Start match"
	actionMove  = "Move"
	actionShoot = "Shoot"
	actionState = "Show state"
	actionQuit  = "Quit"
)

func main() {
	configPath := flag.String("config", "", "path to a peer config file (optional)")
	nameFlag := flag.String("name", "", "display name (overrides config)")
	relayFlag := flag.String("relay", "", "relay websocket URL (overrides config)")
	keysFlag := flag.String("keys", "", "keys directory (overrides config)")
	verbose := flag.Bool("verbose", false, "print debug output")
	flag.Parse()

	if *verbose {
		pterm.EnableDebugMessages()
	}

	cfg, err := config.LoadPeer(*configPath, nil)
	if err != nil {
		pterm.Error.Printfln("%v", err)
		return
	}
	if *nameFlag != "" {
		cfg.Name = *nameFlag
		cfg.KeyName = *nameFlag
	}
	if *relayFlag != "" {
		cfg.RelayURL = *relayFlag
	}
	if *keysFlag != "" {
		cfg.KeysDir = *keysFlag
	}

	pterm.Print("\n")
	title, err := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("SKIR", pterm.FgRed.ToStyle()),
		putils.LettersFromStringWithStyle("MISH", pterm.FgDarkGray.ToStyle()),
	).Srender()
	if err == nil {
		pterm.Print(title)
	}

	if *nameFlag == "" && *configPath == "" {
		name, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Enter your name").
			WithDefaultValue(cfg.Name).Show()
		if name != "" {
			cfg.Name = name
			cfg.KeyName = name
		}
	}
	pterm.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := telemetry.LoggerFunc(func(format string, args ...any) {
		pterm.Debug.Printfln(format, args...)
	})

	spinner, _ := pterm.DefaultSpinner.Start("Connecting to ", cfg.RelayURL, " ...")
	peer, err := app.StartPeer(ctx, cfg, logger)
	if err != nil {
		spinner.Fail()
		pterm.Error.Printfln("%v", err)
		return
	}
	spinner.Success()
	defer peer.Close()

	pterm.Info.Printfln("Playing as %s (%s)", cfg.Name, peer.ID())
	if err := peer.Join(); err != nil {
		pterm.Error.Printfln("join failed: %v", err)
		return
	}

	for {
		snapshot := peer.Snapshot()
		renderState(snapshot, peer.ID())
		if snapshot.Phase == sim.PhaseGameOver {
			printOutcome(snapshot, peer.ID())
			break
		}

		selected, _ := pterm.DefaultInteractiveSelect.
			WithDefaultText("Select your next action").
			WithOptions([]string{actionStart, actionMove, actionShoot, actionState, actionQuit}).
			Show()

		switch selected {
		case actionStart:
			if err := peer.Start(); err != nil {
				pterm.Error.Printfln("start failed: %v", err)
			}
		case actionMove:
			dir := promptDirection()
			if err := peer.Move(dir); err != nil {
				pterm.Error.Printfln("move failed: %v", err)
			}
		case actionShoot:
			angle, ok := promptAngle()
			if !ok {
				continue
			}
			if err := peer.Shoot(angle); err != nil {
				pterm.Error.Printfln("shoot failed: %v", err)
			}
		case actionState:
			// Loop re-renders on its next pass.
		case actionQuit:
			if confirm, _ := pterm.DefaultInteractiveConfirm.
				WithDefaultText("Leave the match?").
				WithDefaultValue(true).Show(); confirm {
				pterm.Println("Thanks for playing.")
				return
			}
		}
	}
}

func promptDirection() string {
	selected, _ := pterm.DefaultInteractiveSelect.
		WithDefaultText("Direction").
		WithOptions([]string{"up", "left", "down", "right", "stop"}).
		Show()
	switch selected {
	case "up":
		return proto.DirUp
	case "left":
		return proto.DirLeft
	case "down":
		return proto.DirDown
	case "right":
		return proto.DirRight
	default:
		return proto.DirStop
	}
}

func promptAngle() (float64, bool) {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText("Angle in degrees (0 = east, 90 = south)").
		WithDefaultValue("0").Show()
	degrees, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		pterm.Error.Printfln("not a number: %s", raw)
		return 0, false
	}
	return degrees * math.Pi / 180, true
}
