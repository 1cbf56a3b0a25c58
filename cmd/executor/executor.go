package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"tradeassist/src/database"
	"tradeassist/src/executors"
)

type Executor struct {
}

func (t *Executor) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	runtime, err := executors.NewRuntime(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to assemble executor runtime")
		return err
	}

	logrus.WithField("username", runtime.User.Username).Info("Starting trading loops")

	if err := executors.StartAll(ctx, runtime); err != nil {
		logrus.WithError(err).Error("Executor loops stopped with error")
		return err
	}

	return nil
}
