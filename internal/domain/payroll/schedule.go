package payroll

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed schedules/*.yaml
var builtinSchedules embed.FS

type Schedule struct {
	Name             string          `json:"name"`
	ContributionRate decimal.Decimal `json:"contributionRate"`
	Table            BracketTable    `json:"-"`
}

func (s Schedule) Config() Config {
	return Config{ContributionRate: s.ContributionRate, Table: s.Table}
}

// WithContributionRate returns s with its contribution rate replaced by raw.
// A blank raw leaves s unchanged.
func (s Schedule) WithContributionRate(raw string) (Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return Schedule{}, fmt.Errorf("%w: contribution rate %q must be between 0 and 1", ErrInvalidInput, raw)
	}
	s.ContributionRate = rate
	return s, nil
}

type scheduleFile struct {
	Name             string          `yaml:"name"`
	ContributionRate string          `yaml:"contributionRate"`
	TaxFree          string          `yaml:"taxFree"`
	Bands            []bandSpec      `yaml:"bands"`
	Thresholds       []thresholdSpec `yaml:"thresholds"`
}

type bandSpec struct {
	Width string `yaml:"width"`
	Rate  string `yaml:"rate"`
}

type thresholdSpec struct {
	UpTo string `yaml:"upTo"`
	Rate string `yaml:"rate"`
}

// BuiltinSchedules lists the names accepted by LoadSchedule without a file.
func BuiltinSchedules() []string {
	entries, err := fs.ReadDir(builtinSchedules, "schedules")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// LoadSchedule resolves a built-in schedule name or reads a YAML file.
func LoadSchedule(nameOrPath string) (Schedule, error) {
	nameOrPath = strings.TrimSpace(nameOrPath)
	if nameOrPath == "" {
		nameOrPath = ScheduleGhana2024
	}
	data, err := builtinSchedules.ReadFile(path.Join("schedules", nameOrPath+".yaml"))
	if err != nil {
		data, err = os.ReadFile(nameOrPath)
		if errors.Is(err, fs.ErrNotExist) {
			return Schedule{}, fmt.Errorf("%w: %s", ErrUnknownSchedule, nameOrPath)
		}
		if err != nil {
			return Schedule{}, err
		}
	}
	schedule, err := ParseSchedule(data)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule %s: %w", nameOrPath, err)
	}
	if schedule.Name == "" {
		schedule.Name = strings.TrimSuffix(path.Base(nameOrPath), path.Ext(nameOrPath))
	}
	return schedule, nil
}

// ParseSchedule reads either the band-width or the threshold form and returns
// the canonical table.
func ParseSchedule(data []byte) (Schedule, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidBands, err)
	}
	hasBands := len(file.Bands) > 0
	hasThresholds := len(file.Thresholds) > 0 || strings.TrimSpace(file.TaxFree) != ""
	if hasBands == hasThresholds {
		return Schedule{}, fmt.Errorf("%w: exactly one of bands or thresholds is required", ErrInvalidBands)
	}

	rate := DefaultContributionRate
	if strings.TrimSpace(file.ContributionRate) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(file.ContributionRate))
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: contributionRate: %v", ErrInvalidBands, err)
		}
		rate = parsed
	}

	var table BracketTable
	var err error
	if hasBands {
		table, err = parseBands(file.Bands)
	} else {
		table, err = parseThresholds(file.TaxFree, file.Thresholds)
	}
	if err != nil {
		return Schedule{}, err
	}
	schedule := Schedule{Name: file.Name, ContributionRate: rate, Table: table}
	if err := schedule.Config().Validate(); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}

func parseBands(specs []bandSpec) (BracketTable, error) {
	bands := make([]TaxBand, 0, len(specs))
	for i, spec := range specs {
		rate, err := parseScheduleNumber(spec.Rate, i, "rate")
		if err != nil {
			return BracketTable{}, err
		}
		band := TaxBand{Rate: rate}
		if strings.TrimSpace(spec.Width) == "" {
			band.Unbounded = true
		} else if band.Width, err = parseScheduleNumber(spec.Width, i, "width"); err != nil {
			return BracketTable{}, err
		}
		bands = append(bands, band)
	}
	return NewBracketTable(bands)
}

func parseThresholds(taxFree string, specs []thresholdSpec) (BracketTable, error) {
	floor := decimal.Zero
	if strings.TrimSpace(taxFree) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(taxFree))
		if err != nil {
			return BracketTable{}, fmt.Errorf("%w: taxFree: %v", ErrInvalidBands, err)
		}
		floor = parsed
	}
	thresholds := make([]Threshold, 0, len(specs))
	for i, spec := range specs {
		rate, err := parseScheduleNumber(spec.Rate, i, "rate")
		if err != nil {
			return BracketTable{}, err
		}
		t := Threshold{Rate: rate}
		if strings.TrimSpace(spec.UpTo) == "" {
			t.Unbounded = true
		} else if t.UpTo, err = parseScheduleNumber(spec.UpTo, i, "upTo"); err != nil {
			return BracketTable{}, err
		}
		thresholds = append(thresholds, t)
	}
	return FromThresholds(floor, thresholds)
}

func parseScheduleNumber(raw string, index int, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: entry %d: %s is required", ErrInvalidBands, index+1, field)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: entry %d: %s: %v", ErrInvalidBands, index+1, field, err)
	}
	return value, nil
}
