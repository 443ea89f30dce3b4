package domain

import "errors"

var (
	ErrAnchorNotFound  = errors.New("anchor not found")
	ErrAnchorTracked   = errors.New("anchor already tracked")
	ErrContextNotFound = errors.New("context not found")

	// Probe transport taxonomy. Timeout and malformed results are
	// transient and absorbed by the extraction retry loop; a missing
	// surface is fatal for the current request.
	ErrProbeTimeout   = errors.New("probe timed out")
	ErrProbeMalformed = errors.New("probe returned malformed result")
	ErrNoSurface      = errors.New("no reachable chat surface")

	ErrInjectionFailed = errors.New("injection failed")

	// Single-flight and serialization guards.
	ErrMonitorActive = errors.New("monitor already active for anchor")
	ErrMonitorLimit  = errors.New("too many active monitors")
	ErrSurfaceBusy   = errors.New("surface busy with another response")

	ErrEmptyMessage = errors.New("message empty after cleaning")
)
