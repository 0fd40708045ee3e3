// Package market reports trading session status for the exchanges the
// portfolio universe spans.
package market

import (
	"time"

	"github.com/rs/zerolog"
)

// TradingWindow is a single trading period within a day.
type TradingWindow struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// ExchangeCalendar defines trading hours and holidays for an exchange.
type ExchangeCalendar struct {
	Code        string
	Name        string
	TimezoneStr string
	Timezone    *time.Location
	Windows     []TradingWindow
	Holidays    []time.Time
}

// Status is the session state of one exchange.
type Status struct {
	Exchange  string `json:"exchange"`
	IsOpen    bool   `json:"is_open"`
	Timezone  string `json:"timezone"`
	LocalTime string `json:"local_time"`
}

// Service answers whether the covered exchanges are in session.
type Service struct {
	calendars map[string]*ExchangeCalendar
	order     []string
	log       zerolog.Logger
}

// NewService creates a market status service covering NYSE and NSE,
// the two venues the default ticker universe trades on.
func NewService(log zerolog.Logger) *Service {
	s := &Service{
		calendars: make(map[string]*ExchangeCalendar),
		log:       log.With().Str("module", "market").Logger(),
	}
	s.initializeCalendars()
	return s
}

func (s *Service) initializeCalendars() {
	nyLoc, _ := time.LoadLocation("America/New_York")
	s.calendars["NYSE"] = &ExchangeCalendar{
		Code:        "XNYS",
		Name:        "NYSE",
		TimezoneStr: "America/New_York",
		Timezone:    nyLoc,
		Windows: []TradingWindow{
			{OpenHour: 9, OpenMinute: 30, CloseHour: 16, CloseMinute: 0},
		},
		Holidays: []time.Time{
			time.Date(2026, 1, 1, 0, 0, 0, 0, nyLoc),   // New Year's Day
			time.Date(2026, 1, 19, 0, 0, 0, 0, nyLoc),  // MLK Day
			time.Date(2026, 2, 16, 0, 0, 0, 0, nyLoc),  // Presidents Day
			time.Date(2026, 4, 3, 0, 0, 0, 0, nyLoc),   // Good Friday
			time.Date(2026, 5, 25, 0, 0, 0, 0, nyLoc),  // Memorial Day
			time.Date(2026, 7, 3, 0, 0, 0, 0, nyLoc),   // Independence Day (observed)
			time.Date(2026, 9, 7, 0, 0, 0, 0, nyLoc),   // Labor Day
			time.Date(2026, 11, 26, 0, 0, 0, 0, nyLoc), // Thanksgiving
			time.Date(2026, 12, 25, 0, 0, 0, 0, nyLoc), // Christmas
		},
	}

	mumbaiLoc, _ := time.LoadLocation("Asia/Kolkata")
	s.calendars["NSE"] = &ExchangeCalendar{
		Code:        "XNSE",
		Name:        "NSE",
		TimezoneStr: "Asia/Kolkata",
		Timezone:    mumbaiLoc,
		Windows: []TradingWindow{
			{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30},
		},
		Holidays: []time.Time{
			time.Date(2026, 1, 26, 0, 0, 0, 0, mumbaiLoc),  // Republic Day
			time.Date(2026, 3, 4, 0, 0, 0, 0, mumbaiLoc),   // Holi
			time.Date(2026, 4, 3, 0, 0, 0, 0, mumbaiLoc),   // Good Friday
			time.Date(2026, 4, 14, 0, 0, 0, 0, mumbaiLoc),  // Ambedkar Jayanti
			time.Date(2026, 5, 1, 0, 0, 0, 0, mumbaiLoc),   // Maharashtra Day
			time.Date(2026, 8, 15, 0, 0, 0, 0, mumbaiLoc),  // Independence Day
			time.Date(2026, 10, 2, 0, 0, 0, 0, mumbaiLoc),  // Gandhi Jayanti
			time.Date(2026, 11, 10, 0, 0, 0, 0, mumbaiLoc), // Diwali
			time.Date(2026, 12, 25, 0, 0, 0, 0, mumbaiLoc), // Christmas
		},
	}

	s.order = []string{"NYSE", "NSE"}
	s.log.Info().Int("calendars", len(s.calendars)).Msg("Market calendars initialized")
}

// IsOpenAt reports whether the exchange is in session at the given
// instant. Unknown exchanges are treated as closed.
func (s *Service) IsOpenAt(exchange string, at time.Time) bool {
	cal, ok := s.calendars[exchange]
	if !ok {
		s.log.Warn().Str("exchange", exchange).Msg("Unknown exchange")
		return false
	}

	local := at.In(cal.Timezone)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, cal.Timezone)
	for _, holiday := range cal.Holidays {
		if holiday.Equal(day) {
			return false
		}
	}

	minutes := local.Hour()*60 + local.Minute()
	for _, w := range cal.Windows {
		open := w.OpenHour*60 + w.OpenMinute
		close := w.CloseHour*60 + w.CloseMinute
		if minutes >= open && minutes < close {
			return true
		}
	}

	return false
}

// IsOpen reports current session state.
func (s *Service) IsOpen(exchange string) bool {
	return s.IsOpenAt(exchange, time.Now())
}

// Statuses returns the session state of every covered exchange, in a
// stable order.
func (s *Service) Statuses() []Status {
	now := time.Now()
	statuses := make([]Status, 0, len(s.order))
	for _, name := range s.order {
		cal := s.calendars[name]
		statuses = append(statuses, Status{
			Exchange:  name,
			IsOpen:    s.IsOpenAt(name, now),
			Timezone:  cal.TimezoneStr,
			LocalTime: now.In(cal.Timezone).Format("2006-01-02 15:04:05"),
		})
	}
	return statuses
}
