package services

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/metrics"
	"github.com/lochel/genealogy/repository"
)

// Scanner is the part of the relative store the validator reads from.
type Scanner interface {
	Scan() (*repository.ScanResult, error)
}

// Report is the result of a whole-store consistency check.
type Report struct {
	Relatives int                  `json:"relatives" yaml:"relatives"`
	Failures  int                  `json:"failures" yaml:"failures"`
	Warnings  []repository.Warning `json:"warnings" yaml:"warnings"`
}

// OK reports whether the check found nothing to complain about.
func (r *Report) OK() bool { return len(r.Warnings) == 0 }

// Validate scans the whole store and reports broken invariants. It never
// modifies anything. Warnings are ordered by scan order, one record at a time.
func Validate(store Scanner) (*Report, error) {
	scan, err := store.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan relatives: %w", err)
	}

	report := &Report{
		Relatives: len(scan.Entries),
		Failures:  len(scan.Failures),
		Warnings:  []repository.Warning{},
	}
	warn := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, repository.Warning(fmt.Sprintf(format, args...)))
	}

	for _, f := range scan.Failures {
		warn("Failed to read %s", f.Path)
	}

	all := scan.Relatives()
	seen := make(map[string]bool, len(scan.Entries))
	for _, e := range scan.Entries {
		rel := e.Relative

		stem := strings.TrimSuffix(filepath.Base(e.Path), repository.RecordExtension)
		if stem != rel.ID {
			warn("Wrong filename %s", e.Path)
		}
		if seen[rel.ID] {
			warn("Duplicate id %s in %s", rel.ID, e.Path)
		}
		seen[rel.ID] = true

		if rel.Father != "" {
			if _, ok := repository.Lookup(all, rel.Father); !ok {
				warn("%s has an invalid cross-reference to their father %s", rel.ID, rel.Father)
			}
		}
		if rel.Mother != "" {
			if _, ok := repository.Lookup(all, rel.Mother); !ok {
				warn("%s has an invalid cross-reference to their mother %s", rel.ID, rel.Mother)
			}
		}
		for _, sp := range rel.Spouse {
			if sp == "" {
				warn("%s contains an empty spouse entry", rel.ID)
				continue
			}
			spouse, ok := repository.Lookup(all, sp)
			if !ok {
				warn("%s has an invalid cross-reference to their spouse %s", rel.ID, sp)
				continue
			}
			if !spouse.HasSpouse(rel.ID) {
				warn("%s is missing a cross-reference to their spouse %s", sp, rel.ID)
			}
		}
	}

	metrics.ValidationWarnings.Set(float64(len(report.Warnings)))
	logging.L().Infof("consistency: checked %d relatives, %d warnings", report.Relatives, len(report.Warnings))
	return report, nil
}
