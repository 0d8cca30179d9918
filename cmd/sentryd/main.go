// sentryd is the wallet security analysis daemon: it schedules periodic
// scans for registered wallets, drives the analysis workers, funnels all
// explorer and AI traffic through the rate-limited request gateway, and
// serves the operator API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chainsentry/chainsentry/analysis"
	"github.com/chainsentry/chainsentry/api"
	"github.com/chainsentry/chainsentry/chain"
	"github.com/chainsentry/chainsentry/config"
	"github.com/chainsentry/chainsentry/gateway"
	"github.com/chainsentry/chainsentry/labels"
	"github.com/chainsentry/chainsentry/notify"
	"github.com/chainsentry/chainsentry/params"
	"github.com/chainsentry/chainsentry/store"
	"github.com/chainsentry/chainsentry/types"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotating file instead of stderr",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection",
	}
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Operator API port (overrides API_PORT)",
	}
)

func main() {
	app := &cli.App{
		Name:    "sentryd",
		Usage:   "wallet security analysis daemon",
		Version: params.Version,
		Flags:   []cli.Flag{configFlag, verbosityFlag, logFileFlag, metricsFlag, portFlag},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the daemon",
				Action: runDaemon,
				Flags:  []cli.Flag{configFlag, verbosityFlag, logFileFlag, metricsFlag, portFlag},
			},
			{
				Name:   "status",
				Usage:  "Print queue status of a running daemon",
				Action: runStatus,
				Flags:  []cli.Flag{portFlag},
			},
		},
		Action: runDaemon,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) {
	var output io.Writer = os.Stderr
	usecolor := isatty.IsTerminal(os.Stderr.Fd())
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{Filename: file, MaxSize: 100, MaxBackups: 5, Compress: true}
		usecolor = false
	}
	handler := log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), usecolor)
	log.SetDefault(log.NewLogger(handler))
}

func runDaemon(cliCtx *cli.Context) error {
	setupLogging(cliCtx)
	if cliCtx.Bool(metricsFlag.Name) {
		gethmetrics.Enable()
	}

	cfg, err := config.Load(cliCtx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if cliCtx.IsSet(portFlag.Name) {
		cfg.APIPort = cliCtx.Int(portFlag.Name)
	}
	log.Info("Starting sentryd", "version", params.Version, "datadir", cfg.DataDir,
		"chains", params.SupportedChains(), "scan_interval", cfg.ScanInterval)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	gw := gateway.New(cfg, st)
	adapter := chain.New(cfg, gw)
	labelSvc := labels.New(st, adapter)
	notifier := notify.New(notify.NewTelegram(cfg.TelegramToken, st), types.Severity(cfg.NotifyThreshold))
	env := analysis.NewEnv(cfg, st, adapter, labelSvc, notifier)
	runner := analysis.NewRunner(env)
	server := api.New(cfg.APIPort, st, gw)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw.Start()
	defer gw.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		return server.Stop()
	})

	err = g.Wait()
	log.Info("sentryd stopped")
	return err
}
