package services

import (
	"math"
	"time"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/utils"
)

// LabelLayout formats chart labels, e.g. "Mon 03 Mar".
const LabelLayout = "Mon 02 Jan"

// Dashboard is the aggregated view shown on the home page.
type Dashboard struct {
	Entries  []models.Entry `json:"entries"`
	Labels   []string       `json:"labels"`
	Weights  []*float64     `json:"weights"`
	Waters   []*int         `json:"waters"`
	Energies []*int         `json:"energies"`
	Start    time.Time      `json:"start"`
	TodayNum int            `json:"today_num"`
	DoneDays int            `json:"done_days"`
	Progress int            `json:"progress"`
}

// DayNumberFrom is the 1-based day of d counted from start.
func DayNumberFrom(start, d time.Time) int {
	days := models.DateOnly(d).Sub(models.DateOnly(start)).Hours() / 24
	return int(math.Round(days)) + 1
}

// FastStartDate is the configured override when usable, else the earliest entry date, else today.
func (s *DiaryService) FastStartDate() (time.Time, error) {
	if d, ok := s.cfg.FastStart(); ok {
		return d, nil
	}
	first, ok, err := s.EarliestEntryDate()
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return first, nil
	}
	return s.Today(), nil
}

// ComputeDayNumber returns the day number of d relative to the current start date.
func (s *DiaryService) ComputeDayNumber(d time.Time) (int, error) {
	start, err := s.FastStartDate()
	if err != nil {
		return 0, err
	}
	return DayNumberFrom(start, d), nil
}

// Dashboard aggregates every entry for the charts and the first-week progress bar.
func (s *DiaryService) Dashboard() (*Dashboard, error) {
	entries, err := s.ListEntries(true)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	start, ok := s.cfg.FastStart()
	switch {
	case ok:
	case len(entries) > 0:
		start = models.DateOnly(entries[0].When)
	default:
		start = today
	}

	d := &Dashboard{
		Entries:  entries,
		Labels:   make([]string, 0, len(entries)),
		Weights:  make([]*float64, 0, len(entries)),
		Waters:   make([]*int, 0, len(entries)),
		Energies: make([]*int, 0, len(entries)),
		Start:    start,
		TodayNum: DayNumberFrom(start, today),
	}
	for _, e := range entries {
		d.Labels = append(d.Labels, e.When.Format(LabelLayout))
		d.Weights = append(d.Weights, e.Weight)
		d.Waters = append(d.Waters, e.WaterML)
		d.Energies = append(d.Energies, e.Energy)
		if n := DayNumberFrom(start, e.When); n >= 1 && n <= 7 {
			d.DoneDays++
		}
	}
	d.Progress = progressPercent(d.DoneDays)
	return d, nil
}

// CachedDashboard serves the dashboard from redis when a fresh copy exists for today.
func (s *DiaryService) CachedDashboard() (*Dashboard, error) {
	key := dashboardCachePrefix + s.Today().Format(config.DateLayout)
	var cached Dashboard
	if utils.CacheGetJSON(key, &cached) {
		return &cached, nil
	}
	d, err := s.Dashboard()
	if err != nil {
		return nil, err
	}
	utils.CacheSetJSON(key, d, s.cfg.CacheTTL())
	return d, nil
}

func progressPercent(doneDays int) int {
	p := int(math.Round(float64(doneDays) / 7 * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
