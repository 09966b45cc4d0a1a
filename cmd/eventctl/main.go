// Command eventctl drives the event form from a terminal: it submits events
// to the REST API or the legacy spreadsheet, runs AI extraction on flyers
// and announcements, and edits stored events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

const usage = `usage: eventctl <command> [flags]

commands:
  submit       submit an event JSON file to the API or the spreadsheet
  extract      extract an event draft from text or a flyer image
  edit         load a stored event, change fields and save it
  sheets-test  check the spreadsheet webhook with a test row
  health       query the API health check

run "eventctl <command> -h" for the flags of a command.`

func main() {
	_ = godotenv.Load() // a missing .env is normal

	logger := log.New("eventctl")
	logger.SetHeader("${level} ${prefix}")
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Out: os.Stdout, In: os.Stdin, Logger: logger}
	var err error
	switch os.Args[1] {
	case "submit":
		err = app.Submit(ctx, os.Args[2:])
	case "extract":
		err = app.Extract(ctx, os.Args[2:])
	case "edit":
		err = app.Edit(ctx, os.Args[2:])
	case "sheets-test":
		err = app.SheetsTest(ctx, os.Args[2:])
	case "health":
		err = app.Health(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
