package executors

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tradeassist/src/controller"
	"tradeassist/src/marketdata"
	"tradeassist/src/model"
	"tradeassist/src/notification"
	"tradeassist/src/repository"
	"tradeassist/src/security"
)

// Runtime carries the dependencies shared by the executor loops. The
// broker and lifecycle are built once so every loop sees the same
// circuit breaker state.
type Runtime struct {
	User      *model.User
	Lifecycle *controller.OrderLifecycle
	Prices    marketdata.Provider
	Config    Config
}

// NewRuntime resolves the executor user, decrypts the stored broker
// credentials and assembles the order lifecycle.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	config := GetConfig()

	if config.Username == "" {
		return nil, errors.New("executor username not set")
	}

	userRep := repository.NewUserRepository()
	user, err := userRep.GetUserByUserName(ctx, config.Username)
	if err != nil {
		logger.
			WithField("username", config.Username).
			Error("Failed to GetUserByUserName")
		return nil, err
	}
	if user == nil {
		return nil, errors.New("executor user not found")
	}

	if user.BrokerAPIKeyHash == "" || user.BrokerAPISecretHash == "" {
		return nil, errors.New("no broker credentials set for executor user")
	}

	apiKey, err := security.DecryptString(user.BrokerAPIKeyHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt broker API key")
		return nil, err
	}
	accessToken, err := security.DecryptString(user.BrokerAPISecretHash)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt broker access token")
		return nil, err
	}

	broker := buildBroker(apiKey, accessToken)
	notifier := notification.NewService(notification.NewSenderFromConfig(notification.GetConfig()))

	return &Runtime{
		User:      user,
		Lifecycle: controller.NewOrderLifecycle(broker, notifier, controller.GetConfig()),
		Prices:    marketdata.NewRESTProvider(marketdata.GetConfig()),
		Config:    config,
	}, nil
}

// StartAll runs the screener, entry, retry, monitor and exit loops until
// the context is cancelled or one of them fails.
func StartAll(ctx context.Context, rt *Runtime) error {
	controllerCfg := controller.GetConfig()

	dispatcher := NewRetryDispatcher(rt.Lifecycle, controllerCfg.MaxOrderRetries, rt.Config.RetryBatchSize)
	fills := NewFillMonitor(rt.Lifecycle, rt.Lifecycle.Broker(), rt.Config.MonitorBatchSize)
	stops := NewStopLossMonitor(rt.Lifecycle, rt.Prices, rt.User, rt.Config)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return StartScreenerLoop(ctx) })
	group.Go(func() error { return StartEntryLoop(ctx, rt) })
	group.Go(func() error { return StartRetryLoop(ctx, dispatcher) })
	group.Go(func() error { return StartMonitorLoop(ctx, fills) })
	group.Go(func() error { return StartExitLoop(ctx, stops) })

	return group.Wait()
}
