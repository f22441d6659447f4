// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"net/url"
)

// CoveredCount is a covered/total pair for one kind of coverage.
type CoveredCount struct {
	Covered int `json:"covered"`
	Total   int `json:"total"`
}

// Percent returns the covered fraction in [0, 1]. An empty count is fully
// covered.
func (c CoveredCount) Percent() float64 {
	if c.Total == 0 {
		return 1
	}
	return float64(c.Covered) / float64(c.Total)
}

// Add returns the sum of c and other.
func (c CoveredCount) Add(other CoveredCount) CoveredCount {
	return CoveredCount{Covered: c.Covered + other.Covered, Total: c.Total + other.Total}
}

// FileCoverage summarises coverage of one file.
type FileCoverage struct {
	URI         *url.URL      `json:"-"`
	Statement   CoveredCount  `json:"statement"`
	Branch      *CoveredCount `json:"branch,omitempty"`
	Declaration *CoveredCount `json:"declaration,omitempty"`
}

// Total folds every available count into one.
func (f FileCoverage) Total() CoveredCount {
	out := f.Statement
	if f.Branch != nil {
		out = out.Add(*f.Branch)
	}
	if f.Declaration != nil {
		out = out.Add(*f.Declaration)
	}
	return out
}

// Percent returns the overall covered fraction of the file.
func (f FileCoverage) Percent() float64 {
	return f.Total().Percent()
}

// SumCoverage totals a set of files.
func SumCoverage(files []FileCoverage) CoveredCount {
	var out CoveredCount
	for _, f := range files {
		out = out.Add(f.Total())
	}
	return out
}
