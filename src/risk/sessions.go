package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// ----- session labels -----

type Session string

const (
	SessionWeekendHoliday Session = "weekend_holiday"
	SessionPreOpen        Session = "pre_open"
	SessionOpening        Session = "opening_session"
	SessionMidday         Session = "midday_session"
	SessionClosing        Session = "closing_session"
	SessionDefault        Session = "default"
	SessionNoTrade        Session = "no_trade"
)

// ----- config for multipliers -----

type SessionSizeConfig struct {
	PreOpenMultiplier decimal.Decimal
	OpeningMultiplier decimal.Decimal
	MiddayMultiplier  decimal.Decimal
	ClosingMultiplier decimal.Decimal
	DefaultMultiplier decimal.Decimal

	EnableNoTradeWindow bool
}

// DefaultSessionSizeConfig reasonable defaults, tweak as you like
func DefaultSessionSizeConfig() SessionSizeConfig {
	return SessionSizeConfig{
		PreOpenMultiplier: decimal.Zero,
		OpeningMultiplier: decimal.NewFromFloat(0.75),
		MiddayMultiplier:  decimal.NewFromFloat(1.0),
		ClosingMultiplier: decimal.NewFromFloat(0.5),
		DefaultMultiplier: decimal.NewFromFloat(0.25),

		EnableNoTradeWindow: true,
	}
}

// ----- public API -----

// CalculateSizeByNSESession scales a nominal order size by the detected
// NSE session. baseSize is the quantity the caller wants to trade, now is
// the current time (converted to IST internally). Returns the final size
// (zero in the no-trade window) and the detected session.
func CalculateSizeByNSESession(
	baseSize decimal.Decimal,
	now time.Time,
	cfg SessionSizeConfig,
) (decimal.Decimal, Session) {
	if baseSize.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, SessionDefault
	}

	ist := getIndianTime(now)

	if cfg.EnableNoTradeWindow && isNoTradeWindow(ist) {
		return decimal.Zero, SessionNoTrade
	}

	sess := detectSession(ist)
	mult := sizeMultiplierForSession(sess, cfg)

	return baseSize.Mul(mult), sess
}

// ----- helpers -----

func getIndianTime(t time.Time) time.Time {
	istLocation, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// IST has no DST, a fixed offset is an exact fallback.
		return t.In(time.FixedZone("IST", 5*3600+1800))
	}
	return t.In(istLocation)
}

// isNoTradeWindow blocks weekends, NSE holidays and everything outside
// the 09:00-15:30 IST window (pre-open included so AMO placement still
// counts as tradeable time).
func isNoTradeWindow(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return true
	}
	if isNSEHoliday(t) {
		return true
	}

	minutes := t.Hour()*60 + t.Minute()
	return minutes < 9*60 || minutes >= 15*60+30
}

// detectSession splits the NSE trading day. Pre-open 09:00-09:15, opening
// 09:15-10:30, midday 10:30-14:30, closing 14:30-15:30.
func detectSession(t time.Time) Session {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday || isNSEHoliday(t) {
		return SessionWeekendHoliday
	}

	minutes := t.Hour()*60 + t.Minute()

	switch {
	case minutes >= 9*60 && minutes < 9*60+15:
		return SessionPreOpen
	case minutes >= 9*60+15 && minutes < 10*60+30:
		return SessionOpening
	case minutes >= 10*60+30 && minutes < 14*60+30:
		return SessionMidday
	case minutes >= 14*60+30 && minutes < 15*60+30:
		return SessionClosing
	default:
		return SessionDefault
	}
}

// sizeMultiplierForSession just maps session to configured multiplier.
func sizeMultiplierForSession(s Session, cfg SessionSizeConfig) decimal.Decimal {
	switch s {
	case SessionPreOpen:
		return cfg.PreOpenMultiplier
	case SessionOpening:
		return cfg.OpeningMultiplier
	case SessionMidday:
		return cfg.MiddayMultiplier
	case SessionClosing:
		return cfg.ClosingMultiplier
	default:
		return cfg.DefaultMultiplier
	}
}

// isNSEHoliday covers the fixed-date NSE trading holidays. Lunar-calendar
// holidays (Diwali, Holi, Eid) move every year and come from the exchange
// calendar download instead; keeping them out avoids a wrong hardcoded
// guess.
func isNSEHoliday(t time.Time) bool {
	year := t.Year()

	holidays := []time.Time{
		time.Date(year, time.January, 26, 0, 0, 0, 0, time.UTC),  // Republic Day
		time.Date(year, time.April, 14, 0, 0, 0, 0, time.UTC),    // Ambedkar Jayanti
		time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC),       // Maharashtra Day
		time.Date(year, time.August, 15, 0, 0, 0, 0, time.UTC),   // Independence Day
		time.Date(year, time.October, 2, 0, 0, 0, 0, time.UTC),   // Gandhi Jayanti
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC), // Christmas
	}
	return isDateAmong(t, holidays)
}

// isDateAmong checks if the given date matches any date in the list.
func isDateAmong(t time.Time, dates []time.Time) bool {
	for _, d := range dates {
		if t.Format("2006-01-02") == d.Format("2006-01-02") {
			return true
		}
	}
	return false
}
