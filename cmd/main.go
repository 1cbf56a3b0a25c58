package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeassist/cmd/executor"
	"tradeassist/cmd/ohlcv"
	"tradeassist/src/database"
	"tradeassist/src/marketdata"
	"tradeassist/src/screener"
	"tradeassist/src/server"
)

var Version string

func main() {
	// Env files are optional, real deployments inject the environment.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "TradeAssist CMD"
	app.Usage = "The TradeAssist command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		executorCMD,
		screenerCMD,
		ohlcvCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading API server`,
	}
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading loops: screener, entry, retry, fill monitor and stop-loss`,
	}
	screenerCMD = cli.Command{
		Name:        "screener",
		Usage:       "run Screener once",
		Action:      screenerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Evaluate the watched symbols once and persist the signals`,
	}
	ohlcvCMD = cli.Command{
		Name:        "ohlcv",
		Usage:       "run OHLCV backfill",
		Action:      ohlcvAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill daily NSE candles for the configured symbols`,
	}
)

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	server.StartServer(os.Getenv("SERVER_PORT"))

	return nil
}

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")
	logrus.WithField("cmd", "executor")

	exec := &executor.Executor{}
	err := exec.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func screenerAction(_ *cli.Context) error {

	logrus.Info("Starting screener CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	scr := screener.NewScreener(
		marketdata.NewRESTProvider(marketdata.GetConfig()),
		screener.GetConfig(),
	)
	scr.Run(context.Background())

	return nil
}

// ohlcvAction backfills daily candle history for the watched symbols
func ohlcvAction(_ *cli.Context) error {

	logrus.Info("Starting OHLCV CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	backfill := &ohlcv.Backfill{
		Log: logrus.WithField("cmd", "ohlcv"),
		DB:  database.MainDB,
	}

	err := backfill.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}
