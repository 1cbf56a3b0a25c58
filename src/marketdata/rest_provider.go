package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeassist/src/model"
)

type quoteEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RESTProvider fetches candles and last prices from the quote API. It is
// a plain read-side client; order placement never goes through here.
type RESTProvider struct {
	apiKey      string
	accessToken string
	http        *resty.Client
}

func NewRESTProvider(cfg Config) *RESTProvider {
	httpClient := resty.New().
		SetBaseURL(cfg.QuoteBaseURL).
		SetTimeout(15 * time.Second).
		SetHeader("X-Kite-Version", "3")

	return &RESTProvider{
		apiKey:      cfg.QuoteAPIKey,
		accessToken: cfg.QuoteToken,
		http:        httpClient,
	}
}

func (p *RESTProvider) doRequest(ctx context.Context, path string, params map[string]string) (*quoteEnvelope, error) {
	resp, err := p.http.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", p.apiKey, p.accessToken)).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("quote api request failed: %w", err)
	}

	var env quoteEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("malformed quote api response: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("quote api error: %s", env.Message)
	}

	return &env, nil
}

// FetchOHLCV loads daily candles for the symbol over [from, to]. The API
// returns candles as positional arrays [timestamp, o, h, l, c, volume].
func (p *RESTProvider) FetchOHLCV(ctx context.Context, symbol string, from, to time.Time) ([]model.OHLCVDaily, error) {
	env, err := p.doRequest(ctx, "/instruments/historical/"+symbol+"/day", map[string]string{
		"from": from.Format("2006-01-02"),
		"to":   to.Format("2006-01-02"),
	})
	if err != nil {
		return nil, err
	}

	// Candle rows are positional and mixed-typed: the timestamp comes as
	// a string, prices and volume as numbers.
	var data struct {
		Candles [][]interface{} `json:"candles"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed candle payload: %w", err)
	}

	candles := make([]model.OHLCVDaily, 0, len(data.Candles))
	for _, raw := range data.Candles {
		if len(raw) < 6 {
			continue
		}

		ts, err := parseCandleTime(asString(raw[0]))
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"provider": "rest",
				"symbol":   symbol,
				"value":    raw[0],
			}).WithError(err).Warn("skipping candle with unparseable timestamp")
			continue
		}

		open, err1 := asDecimal(raw[1])
		high, err2 := asDecimal(raw[2])
		low, err3 := asDecimal(raw[3])
		closeP, err4 := asDecimal(raw[4])
		volume, err5 := asInt64(raw[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}

		candles = append(candles, model.OHLCVDaily{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    volume,
		})
	}

	logger.WithFields(map[string]interface{}{
		"provider": "rest",
		"symbol":   symbol,
		"candles":  len(candles),
	}).Debug("fetched daily candles")

	return candles, nil
}

// LastPrice fetches the last traded price for the symbol.
func (p *RESTProvider) LastPrice(ctx context.Context, symbol string) (float64, error) {
	instrument := "NSE:" + symbol

	env, err := p.doRequest(ctx, "/quote/ltp", map[string]string{"i": instrument})
	if err != nil {
		return 0, err
	}

	var data map[string]struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("malformed ltp payload: %w", err)
	}

	quote, ok := data[instrument]
	if !ok {
		return 0, fmt.Errorf("no quote returned for %s", symbol)
	}

	return quote.LastPrice, nil
}

func parseCandleTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asDecimal(v interface{}) (decimal.Decimal, error) {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value), nil
	case string:
		return decimal.NewFromString(value)
	default:
		return decimal.Zero, fmt.Errorf("unexpected price type %T", v)
	}
}

func asInt64(v interface{}) (int64, error) {
	switch value := v.(type) {
	case float64:
		return int64(value), nil
	default:
		return 0, fmt.Errorf("unexpected volume type %T", v)
	}
}
