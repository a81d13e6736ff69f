// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package timer provides the hierarchical timer wheel the reactor uses for
// connection timeouts. Time is measured in abstract ticks; the wheel never
// reads a clock itself.
package timer
