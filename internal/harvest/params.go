package harvest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/papersources/pubmed"
)

const (
	// MinParallel and MaxParallel bound the per-group concurrency.
	MinParallel = 3
	MaxParallel = 10
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Params are the caller-supplied parameters of one run.
type Params struct {
	Query       string `json:"query" validate:"required"`
	StartYear   string `json:"start_year,omitempty" validate:"omitempty,year"`
	EndYear     string `json:"end_year,omitempty" validate:"omitempty,year"`
	MaxParallel int    `json:"max_parallel" validate:"min=3,max=10"`
}

// SearchParams converts p into discovery parameters.
func (p Params) SearchParams() pubmed.SearchParams {
	return pubmed.SearchParams{
		Query:     strings.TrimSpace(p.Query),
		StartYear: strings.TrimSpace(p.StartYear),
		EndYear:   strings.TrimSpace(p.EndYear),
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramsValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("year", func(fl validator.FieldLevel) bool {
			return yearPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks p against now and returns a *domain.ConfigError describing
// the first violated rule. No network activity happens before validation.
func (p Params) Validate(now time.Time) error {
	p.Query = strings.TrimSpace(p.Query)
	p.StartYear = strings.TrimSpace(p.StartYear)
	p.EndYear = strings.TrimSpace(p.EndYear)

	if err := paramsValidator().Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate params: %w", err)
		}
		return configErrorFor(fieldErrs)
	}

	hasStart, hasEnd := p.StartYear != "", p.EndYear != ""
	start, _ := strconv.Atoi(p.StartYear)
	end, _ := strconv.Atoi(p.EndYear)

	currentYear := now.Year()
	switch {
	case hasStart && start < pubmed.EarliestYear:
		return domain.NewConfigError("start_year", fmt.Sprintf("Start year must be %d or later.", pubmed.EarliestYear))
	case hasStart && start > currentYear:
		return domain.NewConfigError("start_year", fmt.Sprintf("Start year cannot be in the future (%d).", currentYear))
	case hasEnd && end > currentYear:
		return domain.NewConfigError("end_year", fmt.Sprintf("End year cannot be in the future (%d).", currentYear))
	case hasEnd && end < pubmed.EarliestYear:
		return domain.NewConfigError("end_year", fmt.Sprintf("End year must be %d or later.", pubmed.EarliestYear))
	case hasStart && hasEnd && end < start:
		return domain.NewConfigError("end_year", "End year cannot be earlier than start year.")
	}

	return nil
}

// configErrorFor reports violations in the order the checks are documented:
// parallelism, query, start year, end year.
func configErrorFor(errs validator.ValidationErrors) *domain.ConfigError {
	byField := make(map[string]validator.FieldError, len(errs))
	for _, fe := range errs {
		byField[fe.Field()] = fe
	}

	if _, ok := byField["max_parallel"]; ok {
		return domain.NewConfigError("max_parallel",
			fmt.Sprintf("Number of parallel requests must be between %d and %d.", MinParallel, MaxParallel))
	}
	if _, ok := byField["query"]; ok {
		return domain.NewConfigError("query", "Please enter a search query.")
	}
	if _, ok := byField["start_year"]; ok {
		return domain.NewConfigError("start_year", "Invalid start year format. Please use YYYY.")
	}
	if _, ok := byField["end_year"]; ok {
		return domain.NewConfigError("end_year", "Invalid end year format. Please use YYYY.")
	}

	fe := errs[0]
	return domain.NewConfigError(fe.Field(), fmt.Sprintf("failed %q validation", fe.Tag()))
}
