package executors

import (
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/connectors"
	"tradeassist/src/marketdata"
	"tradeassist/src/resilience"
)

// buildBroker assembles the broker for the executor loops from the
// connector configuration. Paper mode quotes off the market data API so
// simulated fills track real prices. Either way the connector is wrapped
// with the circuit breaker and retry layer before it touches the order
// path.
func buildBroker(apiKey, accessToken string) connectors.Broker {
	cfg := connectors.GetConfig()

	var inner connectors.Broker
	if cfg.BrokerMode == "live" {
		inner = connectors.NewKiteConnector(apiKey, accessToken, cfg.BrokerBaseURL)
	} else {
		inner = connectors.NewPaperConnector(marketdata.NewRESTProvider(marketdata.GetConfig()))
	}

	logger.WithFields(map[string]interface{}{
		"component": "executors",
		"mode":      cfg.BrokerMode,
	}).Info("broker connector initialized")

	return connectors.NewResilientBroker(inner, resilience.GetConfig())
}
