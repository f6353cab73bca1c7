package analytics

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
)

// timeframePattern accepts an integer count followed by a unit: h, d or w
var timeframePattern = regexp.MustCompile(`^(\d+)([hdw])$`)

// Quality score tuning. Score starts at 1.0, loses 0.1 per error and 0.05
// per warning, gains a volume bonus for datasets over 50 rows, and is
// clamped to [0, 1.1].
const (
	qualityBase         = 1.0
	qualityErrorPenalty = 0.1
	qualityWarnPenalty  = 0.05
	qualityBonusMax     = 0.1
	qualityBonusFloor   = 50
	qualityBonusScale   = 500
	qualityScoreCeil    = 1.1
)

// Validator is the pre-execution validation stage: request shape, raw data
// quality, and result structure. It is composed directly into the pipeline
// rather than layered as wrappers.
type Validator struct {
	validate *validator.Validate
	cfg      config.AnalysisConfig
}

// NewValidator creates a validator with the struct-tag engine registered
func NewValidator(cfg config.AnalysisConfig) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Timeframe fields must look like "24h", "7d" or "4w"
	_ = v.RegisterValidation("timeframe", func(fl validator.FieldLevel) bool {
		return timeframePattern.MatchString(fl.Field().String())
	})

	return &Validator{validate: v, cfg: cfg}
}

// ParseTimeframe converts a "<n><h|d|w>" timeframe into a duration
func ParseTimeframe(tf string) (time.Duration, error) {
	m := timeframePattern.FindStringSubmatch(tf)
	if m == nil {
		return 0, fmt.Errorf("invalid timeframe %q: expected <integer><h|d|w>", tf)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q: count must be a positive integer", tf)
	}

	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
}

// ValidateRequest checks request shape: a known operation kind, a
// well-formed timeframe, and (when supplied) metrics present in the
// declared catalog.
func (v *Validator) ValidateRequest(req *telemetry.AnalysisRequest, catalog []string) (bool, []string) {
	var errs []string

	if req == nil {
		return false, []string{"request cannot be nil"}
	}

	if !req.Kind.IsValid() {
		errs = append(errs, fmt.Sprintf("unknown analysis kind %q", req.Kind))
	}

	if err := v.validate.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				switch fe.Tag() {
				case "timeframe":
					errs = append(errs, fmt.Sprintf("invalid timeframe %q: expected <integer><h|d|w>", req.Timeframe))
				default:
					errs = append(errs, fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()))
				}
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if len(req.Metrics) > 0 && len(catalog) > 0 {
		known := make(map[string]struct{}, len(catalog))
		for _, m := range catalog {
			known[m] = struct{}{}
		}
		for _, m := range req.Metrics {
			if _, ok := known[m]; !ok {
				errs = append(errs, fmt.Sprintf("metric %q is not in the metric catalog", m))
			}
		}
	}

	return len(errs) == 0, errs
}

// ValidateRawData inspects fetched rows and produces a quality report.
// Structural problems are errors; low volume and unverifiable spans are
// warnings. The report never causes a panic regardless of row contents.
func (v *Validator) ValidateRawData(rows []olap.Row, metrics []string) *telemetry.QualityReport {
	report := &telemetry.QualityReport{
		DataPoints: len(rows),
		Errors:     []string{},
		Warnings:   []string{},
	}

	minPoints := v.cfg.MinDataPoints
	if minPoints <= 0 {
		minPoints = 10
	}
	if len(rows) < minPoints {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("dataset has %d rows, fewer than the %d recommended", len(rows), minPoints))
	}

	if len(rows) > 0 {
		v.checkTimestamps(rows, report)
		v.checkNullRatios(rows, report)
		v.checkMetricValues(rows, metrics, report)
	}

	report.QualityScore = v.scoreQuality(len(rows), len(report.Errors), len(report.Warnings))
	return report
}

func (v *Validator) checkTimestamps(rows []olap.Row, report *telemetry.QualityReport) {
	var timestamps []time.Time
	missing := 0

	for _, row := range rows {
		raw, ok := row["timestamp"]
		if !ok || raw == nil {
			missing++
			continue
		}
		if ts, ok := asTime(raw); ok {
			timestamps = append(timestamps, ts)
		} else {
			missing++
		}
	}

	if missing > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d rows are missing the required timestamp field", missing))
	}

	if len(timestamps) < 2 {
		report.Warnings = append(report.Warnings, "time span too short to validate")
		return
	}

	earliest, latest := timestamps[0], timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.Before(earliest) {
			earliest = ts
		}
		if ts.After(latest) {
			latest = ts
		}
	}

	minSpan := v.cfg.MinTimeSpanHours
	if minSpan <= 0 {
		minSpan = 1.0
	}
	if latest.Sub(earliest).Hours() < minSpan {
		report.Errors = append(report.Errors,
			fmt.Sprintf("time span %.2fh is below the %.2fh minimum", latest.Sub(earliest).Hours(), minSpan))
	}
}

func (v *Validator) checkNullRatios(rows []olap.Row, report *telemetry.QualityReport) {
	nullCounts := make(map[string]int)
	for _, row := range rows {
		for field, value := range row {
			if value == nil {
				nullCounts[field]++
			}
		}
	}

	maxNull := v.cfg.MaxNullPercentage
	if maxNull <= 0 {
		maxNull = 20.0
	}
	for field, count := range nullCounts {
		ratio := float64(count) / float64(len(rows)) * 100
		if ratio > maxNull {
			report.Errors = append(report.Errors,
				fmt.Sprintf("field %q is null in %.1f%% of rows (limit %.1f%%)", field, ratio, maxNull))
		}
	}
}

func (v *Validator) checkMetricValues(rows []olap.Row, metrics []string, report *telemetry.QualityReport) {
	wanted := make(map[string]struct{}, len(metrics))
	for _, m := range metrics {
		wanted[m] = struct{}{}
	}

	badValues := 0
	for _, row := range rows {
		if len(wanted) > 0 {
			if name, ok := row["metric"].(string); ok {
				if _, want := wanted[name]; !want {
					continue
				}
			}
		}

		raw, ok := row["value"]
		if !ok || raw == nil {
			continue // counted by the null check
		}
		f, ok := asFloat(raw)
		if !ok || !isFiniteValue(f) {
			badValues++
		}
	}

	if badValues > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d rows carry out-of-range or non-numeric metric values", badValues))
	}
}

func (v *Validator) scoreQuality(rows, errCount, warnCount int) float64 {
	score := qualityBase -
		qualityErrorPenalty*float64(errCount) -
		qualityWarnPenalty*float64(warnCount)

	if rows > qualityBonusFloor {
		bonus := float64(rows-qualityBonusFloor) / qualityBonusScale
		if bonus > qualityBonusMax {
			bonus = qualityBonusMax
		}
		score += bonus
	}

	if score < 0 {
		return 0
	}
	if score > qualityScoreCeil {
		return qualityScoreCeil
	}
	return score
}

// ValidateResult verifies a result carries the structural fields every
// response must have, and a cost-savings percentage inside [0,100] when
// one is present.
func (v *Validator) ValidateResult(result *telemetry.AnalysisResult) (bool, []string) {
	var errs []string

	if result == nil {
		return false, []string{"result cannot be nil"}
	}

	if result.Findings == nil {
		errs = append(errs, "result is missing its findings list")
	}
	if result.Recommendations == nil {
		errs = append(errs, "result is missing its recommendations list")
	}

	if result.Cost != nil && result.Cost.Projection != nil {
		pct := result.Cost.Projection.SavingsPercent
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Sprintf("cost savings percentage %.2f is outside [0,100]", pct))
		}
	}

	return len(errs) == 0, errs
}
