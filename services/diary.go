package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/models"
	"github.com/fastdiary/fastdiary/utils"
)

const dashboardCachePrefix = "cache:dashboard:"

// DiaryService reads and writes diary entries and their photos.
type DiaryService struct {
	db  *gorm.DB
	cfg config.AppConfig
	// Now is the clock used for "today". Tests replace it.
	Now func() time.Time
}

// NewDiaryService returns a DiaryService using the wall clock.
func NewDiaryService(db *gorm.DB, cfg config.AppConfig) *DiaryService {
	return &DiaryService{db: db, cfg: cfg, Now: time.Now}
}

// Today is the current local calendar date.
func (s *DiaryService) Today() time.Time {
	return models.DateOnly(s.Now())
}

func byWhen(desc bool) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: "when"}, Desc: desc}
}

func photosInOrder(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// ListEntries returns every entry with its photos ordered by date.
func (s *DiaryService) ListEntries(ascending bool) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.Preload("Photos", photosInOrder).
		Order(byWhen(!ascending)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: !ascending}).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// GetEntry loads one entry with its photos.
func (s *DiaryService) GetEntry(id uint) (*models.Entry, error) {
	var e models.Entry
	if err := s.db.Preload("Photos", photosInOrder).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return &e, nil
}

// SaveEntry creates a new entry, or overwrites existing when it is not nil. The day number is
// computed against the start date in effect at save time.
func (s *DiaryService) SaveEntry(in EntryInput, existing *models.Entry) (*models.Entry, error) {
	start, err := s.startDateForSave(in.When, existing)
	if err != nil {
		return nil, err
	}
	day := DayNumberFrom(start, in.When)

	e := existing
	if e == nil {
		e = &models.Entry{}
	}
	e.When = in.When
	e.Weight = in.Weight
	e.Energy = in.Energy
	e.WaterML = in.WaterML
	e.Mood = in.Mood
	e.Feelings = in.Feelings
	e.DayNumber = &day

	// Omit associations so stale Photos on existing never get re-inserted.
	if err := s.db.Omit(clause.Associations).Save(e).Error; err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	utils.InvalidateByPrefix(dashboardCachePrefix)
	return e, nil
}

// AddPhotos records stored files as photos of an entry.
func (s *DiaryService) AddPhotos(entryID uint, names []string) ([]models.Photo, error) {
	if len(names) == 0 {
		return nil, nil
	}
	photos := make([]models.Photo, 0, len(names))
	for _, n := range names {
		photos = append(photos, models.Photo{Filename: n, EntryID: entryID})
	}
	if err := s.db.Create(&photos).Error; err != nil {
		return nil, fmt.Errorf("add photos to entry %d: %w", entryID, err)
	}
	utils.InvalidateByPrefix(dashboardCachePrefix)
	return photos, nil
}

// DeleteEntry removes an entry and all of its photo rows in one transaction and returns the
// file names that were attached, so the caller can remove them from disk.
func (s *DiaryService) DeleteEntry(id uint) ([]string, error) {
	var names []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var e models.Entry
		if err := tx.Preload("Photos").First(&e, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		for _, p := range e.Photos {
			names = append(names, p.Filename)
		}
		if err := tx.Where("entry_id = ?", e.ID).Delete(&models.Photo{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Entry{}, e.ID).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete entry %d: %w", id, err)
	}
	utils.InvalidateByPrefix(dashboardCachePrefix)
	return names, nil
}

// GetPhoto loads one photo.
func (s *DiaryService) GetPhoto(id uint) (*models.Photo, error) {
	var p models.Photo
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get photo %d: %w", id, err)
	}
	return &p, nil
}

// DeletePhoto removes a photo row and returns it.
func (s *DiaryService) DeletePhoto(id uint) (*models.Photo, error) {
	p, err := s.GetPhoto(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Delete(&models.Photo{}, p.ID).Error; err != nil {
		return nil, fmt.Errorf("delete photo %d: %w", id, err)
	}
	utils.InvalidateByPrefix(dashboardCachePrefix)
	return p, nil
}

// startDateForSave is the start date as it will be once the entry is written. An edited entry
// counts with its new date, so moving the earliest entry moves the start with it.
func (s *DiaryService) startDateForSave(when time.Time, existing *models.Entry) (time.Time, error) {
	if existing == nil {
		return s.FastStartDate()
	}
	if d, ok := s.cfg.FastStart(); ok {
		return d, nil
	}
	when = models.DateOnly(when)
	first, ok, err := s.earliestEntryDate(existing.ID)
	if err != nil {
		return time.Time{}, err
	}
	if ok && first.Before(when) {
		return first, nil
	}
	return when, nil
}

// EarliestEntryDate returns the smallest entry date. ok is false when the diary is empty.
func (s *DiaryService) EarliestEntryDate() (time.Time, bool, error) {
	return s.earliestEntryDate(0)
}

// earliestEntryDate ignores the entry with id exclude when it is not zero.
func (s *DiaryService) earliestEntryDate(exclude uint) (time.Time, bool, error) {
	var e models.Entry
	q := s.db.Order(byWhen(false)).Order("id ASC").Limit(1)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	err := q.Find(&e).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("earliest entry: %w", err)
	}
	if e.ID == 0 {
		return time.Time{}, false, nil
	}
	return models.DateOnly(e.When), true, nil
}
