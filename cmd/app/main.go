package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"CandlePull/internal/di"
	"CandlePull/internal/domain/models"
	"CandlePull/internal/usecase"
	"CandlePull/pkg/config"
	xutil "CandlePull/pkg/util"
)

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

// updateAction runs one update pass in the foreground and prints its summary.
func updateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := usecase.ValidateRange(cmd.String("from"), cmd.String("to")); err != nil {
		return err
	}

	in, cleanup, err := di.InitializeIngest(cfg)
	if err != nil {
		return fmt.Errorf("ingest initialization failed: %w", err)
	}
	defer cleanup()

	summary, err := in.Ingest.UpdateCandles(ctx, cmd.String("from"), cmd.String("to"))
	if summary != nil {
		if cmd.Bool("json") {
			writeJSON(summary)
		} else {
			printSummary(summary)
		}
	}
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return cli.Exit(fmt.Sprintf("%d instrument(s) failed", len(summary.Failures())), 2)
	}
	return nil
}

func printSummary(s *models.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "run %s period %s (%s)\n", s.RunID, s.Period, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintln(w, "INSTRUMENT\tFROM\tTO\tBATCHES\tROWS\tINSERTED\tSTATUS")
	for _, r := range s.Results {
		status := "ok"
		switch {
		case r.Failed():
			status = r.Error
		case r.Skipped:
			status = "skipped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", r.Instrument, r.From, r.To, r.Batches, r.Rows, r.Inserted, status)
	}
	_ = w.Flush()
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run(ctx)
}

func instrumentsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	in, cleanup, err := di.InitializeIngest(cfg)
	if err != nil {
		return fmt.Errorf("ingest initialization failed: %w", err)
	}
	defer cleanup()

	list, err := in.Ingest.Instruments(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		writeJSON(list)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINDEX\tDIGITS\tRESUME\tERROR")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", s.Name, s.Index, s.Digits, s.Resume, s.Error)
	}
	return w.Flush()
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	from, err := xutil.ParseTime(cmd.String("from"))
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to := cmd.String("to")
	params := usecase.GetCandlesParams{
		Instrument: cmd.String("instrument"),
		Period:     cmd.String("period"),
		From:       from,
		Limit:      int(cmd.Int("limit")),
	}
	if to != "" {
		if params.To, err = xutil.ParseTime(to); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	in, cleanup, err := di.InitializeIngest(cfg)
	if err != nil {
		return fmt.Errorf("ingest initialization failed: %w", err)
	}
	defer cleanup()

	res, err := in.Candles.GetCandles(ctx, params)
	if err != nil {
		return err
	}
	writeJSON(res)
	return nil
}

func writeJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode output: %v", err)
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"}
}

func main() {
	cmd := &cli.Command{
		Name:  "candlepull",
		Usage: "Ingest historical candles from a trading terminal into SQL storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config `FILE`; defaults are used when empty",
				Sources: cli.EnvVars("CANDLEPULL_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "update",
				Usage: "Fetch candles for every instrument and write them to storage",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "from",
						Usage: "Range start: `last`, a timestamp, or a bar ordinal",
						Value: usecase.FromLast,
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "Range end: `now`, a timestamp, or a bar ordinal",
						Value: usecase.ToNow,
					},
					jsonFlag(),
				},
				Action: updateAction,
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, the job queue and the update schedule",
				Action: serveAction,
			},
			{
				Name:   "instruments",
				Usage:  "List instruments with their resume points",
				Flags:  []cli.Flag{jsonFlag()},
				Action: instrumentsAction,
			},
			{
				Name:  "history",
				Usage: "Print stored candles for one instrument",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "instrument", Aliases: []string{"i"}, Required: true},
					&cli.StringFlag{Name: "period", Aliases: []string{"p"}, Usage: "Output period, a multiple of the stored one"},
					&cli.StringFlag{Name: "from", Usage: "Start `TIME`, a UTC timestamp or unix seconds", Required: true},
					&cli.StringFlag{Name: "to", Usage: "End `TIME`, defaults to now"},
					&cli.IntFlag{Name: "limit", Value: usecase.DefaultHistoryLimit},
				},
				Action: historyAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
