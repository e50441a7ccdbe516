package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/aegisdns/syncd/internal/app"
	"github.com/aegisdns/syncd/internal/cli"
	"github.com/aegisdns/syncd/internal/config"
	"github.com/aegisdns/syncd/internal/flagx"
)

func main() {

	restore, restoreID := parseRestoreFlag()

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	if restore {
		runRestore(ctx, a, restoreID)
		return
	}

	a.Run(ctx)

}

// parseRestoreFlag reports whether one-shot restore mode was requested, plus
// the account ID if it was given on the command line.
func parseRestoreFlag() (bool, string) {
	var restore bool

	args := flagx.FilterArgs(os.Args[1:], []string{"-restore"})

	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.BoolVar(&restore, "restore", false, "restore an account ID and exit")
	_ = fs.Parse(args)

	return restore, fs.Arg(0)
}

func runRestore(ctx context.Context, a *app.App, id string) {
	if id == "" {
		var err error
		id, err = cli.GetAccountID(os.Stdout)
		if err != nil {
			log.Printf("%v", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.Restore(ctx, id); err != nil {
		log.Printf("restore failed: %v", err)
		os.Exit(1)
	}
	log.Println("account restored")
}
