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

import "errors"

// Sentinel errors for result runs.
var (
	// ErrRunSealed is returned when mutating a sealed run.
	ErrRunSealed = errors.New("test run is sealed")

	// ErrUnknownTest is returned for tests not added to the run.
	ErrUnknownTest = errors.New("unknown test in run")

	// ErrUnknownTask is returned for tasks not started in the run.
	ErrUnknownTask = errors.New("unknown task in run")

	// ErrInvalidState is returned for states outside the enum.
	ErrInvalidState = errors.New("invalid test result state")
)
