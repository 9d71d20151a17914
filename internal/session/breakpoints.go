package session

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	godap "github.com/google/go-dap"
)

// ErrInvalidLocation is returned when a breakpoint location string cannot be
// parsed as file:line or a function name.
var ErrInvalidLocation = errors.New("invalid breakpoint location")

// Location is a parsed breakpoint target: either a source line or a function.
type Location struct {
	// File and Line are set for source locations.
	File string
	Line int

	// Function is set for function breakpoints.
	Function string
}

// IsFunction reports whether the location targets a function rather than a
// source line.
func (l Location) IsFunction() bool {
	return l.Function != ""
}

func (l Location) String() string {
	if l.IsFunction() {
		return l.Function
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ParseLocation parses "file:line" or a bare function name. Only the LAST
// colon is considered a line separator, and only when digits follow it, so
// Windows paths like C:\src\main.c:42 parse correctly. A trailing colon with
// no line number is an error rather than a silent fallback.
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, fmt.Errorf("%w: empty string", ErrInvalidLocation)
	}

	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Location{Function: s}, nil
	}

	file, lineStr := s[:idx], s[idx+1:]
	if lineStr == "" {
		return Location{}, fmt.Errorf("%w: %q has no line number after the colon", ErrInvalidLocation, s)
	}

	line, parseErr := strconv.Atoi(lineStr)
	if parseErr != nil {
		// "C:\src\main.c" — the last colon belongs to the path, so the whole
		// string would have to be a function name, but function names do not
		// contain path separators.
		if !strings.ContainsAny(s, `/\`) {
			return Location{Function: s}, nil
		}
		return Location{}, fmt.Errorf("%w: %q is neither file:line nor a function name", ErrInvalidLocation, s)
	}
	if line <= 0 {
		return Location{}, fmt.Errorf("%w: line %d is not positive", ErrInvalidLocation, line)
	}
	if file == "" {
		return Location{}, fmt.Errorf("%w: %q has no file before the colon", ErrInvalidLocation, s)
	}

	return Location{File: file, Line: line}, nil
}

// Breakpoint is the session's record of one user breakpoint. The requested
// fields are what the user asked for; the verified fields are the adapter's
// authoritative reply.
type Breakpoint struct {
	// ID is the session-local breakpoint id, stable across resubmissions.
	ID int `json:"id"`

	// Location is the requested target.
	Location Location `json:"location"`

	// Condition is an adapter-evaluated boolean expression; the session
	// passes it through verbatim.
	Condition string `json:"condition,omitempty"`

	// HitCondition is an adapter-evaluated hit-count expression, passed
	// through verbatim.
	HitCondition string `json:"hitCondition,omitempty"`

	// Enabled breakpoints are submitted to the adapter; disabled ones are
	// kept locally and omitted from the per-file set.
	Enabled bool `json:"enabled"`

	// Verified is the adapter's confirmation that the breakpoint maps to
	// reachable code.
	Verified bool `json:"verified"`

	// VerifiedLine is the adapter's chosen line, which may differ from the
	// requested one.
	VerifiedLine int `json:"verifiedLine,omitempty"`

	// AdapterID is the adapter's id for the breakpoint, when it assigns one.
	AdapterID int `json:"adapterId,omitempty"`

	// Message is the adapter's explanation for an unverified breakpoint.
	Message string `json:"message,omitempty"`
}

// breakpointStore holds all user breakpoints keyed by source file, plus
// function breakpoints. It is not safe for concurrent use; the owning session
// serializes access.
type breakpointStore struct {
	byFile    map[string][]*Breakpoint
	functions []*Breakpoint
	nextID    int
}

func newBreakpointStore() *breakpointStore {
	return &breakpointStore{
		byFile: make(map[string][]*Breakpoint),
		nextID: 1,
	}
}

// Add records a new breakpoint and returns it. The breakpoint starts enabled
// and unverified.
func (s *breakpointStore) Add(loc Location, condition, hitCondition string) *Breakpoint {
	bp := &Breakpoint{
		ID:           s.nextID,
		Location:     loc,
		Condition:    condition,
		HitCondition: hitCondition,
		Enabled:      true,
	}
	s.nextID++

	if loc.IsFunction() {
		s.functions = append(s.functions, bp)
	} else {
		s.byFile[loc.File] = append(s.byFile[loc.File], bp)
	}
	return bp
}

// Get returns the breakpoint with the given id, or nil.
func (s *breakpointStore) Get(id int) *Breakpoint {
	for _, bp := range s.All() {
		if bp.ID == id {
			return bp
		}
	}
	return nil
}

// Remove deletes the breakpoint with the given id and returns it, or nil if
// no such breakpoint exists.
func (s *breakpointStore) Remove(id int) *Breakpoint {
	for file, bps := range s.byFile {
		for i, bp := range bps {
			if bp.ID == id {
				s.byFile[file] = append(bps[:i], bps[i+1:]...)
				if len(s.byFile[file]) == 0 {
					delete(s.byFile, file)
				}
				return bp
			}
		}
	}
	for i, bp := range s.functions {
		if bp.ID == id {
			s.functions = append(s.functions[:i], s.functions[i+1:]...)
			return bp
		}
	}
	return nil
}

// FileSet returns the enabled breakpoints for one file in insertion order,
// shaped for a setBreakpoints request. The set-breakpoints operation is
// file-scoped and replaces the whole set, so every submission must carry all
// of the file's enabled breakpoints.
func (s *breakpointStore) FileSet(file string) []godap.SourceBreakpoint {
	var out []godap.SourceBreakpoint
	for _, bp := range s.byFile[file] {
		if !bp.Enabled {
			continue
		}
		out = append(out, godap.SourceBreakpoint{
			Line:         bp.Location.Line,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
		})
	}
	return out
}

// FunctionSet returns the enabled function breakpoints shaped for a
// setFunctionBreakpoints request.
func (s *breakpointStore) FunctionSet() []godap.FunctionBreakpoint {
	var out []godap.FunctionBreakpoint
	for _, bp := range s.functions {
		if !bp.Enabled {
			continue
		}
		out = append(out, godap.FunctionBreakpoint{
			Name:         bp.Location.Function,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
		})
	}
	return out
}

// ApplyFileResults overwrites the tentative records for a file with the
// adapter's authoritative reply. Results arrive in submission order, so they
// are matched positionally against the enabled breakpoints.
func (s *breakpointStore) ApplyFileResults(file string, results []godap.Breakpoint) {
	i := 0
	for _, bp := range s.byFile[file] {
		if !bp.Enabled {
			continue
		}
		if i >= len(results) {
			break
		}
		applyResult(bp, results[i])
		i++
	}
}

// ApplyFunctionResults is ApplyFileResults for the function breakpoint set.
func (s *breakpointStore) ApplyFunctionResults(results []godap.Breakpoint) {
	i := 0
	for _, bp := range s.functions {
		if !bp.Enabled {
			continue
		}
		if i >= len(results) {
			break
		}
		applyResult(bp, results[i])
		i++
	}
}

func applyResult(bp *Breakpoint, result godap.Breakpoint) {
	bp.Verified = result.Verified
	bp.AdapterID = result.Id
	bp.Message = result.Message
	if result.Line > 0 {
		bp.VerifiedLine = result.Line
	}
}

// Files returns the source files that currently have breakpoints, sorted for
// deterministic submission order.
func (s *breakpointStore) Files() []string {
	files := make([]string, 0, len(s.byFile))
	for file := range s.byFile {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// HasFunctions reports whether any function breakpoints exist.
func (s *breakpointStore) HasFunctions() bool {
	return len(s.functions) > 0
}

// All returns every breakpoint, source breakpoints first (by file, then
// insertion order), then function breakpoints.
func (s *breakpointStore) All() []*Breakpoint {
	var out []*Breakpoint
	for _, file := range s.Files() {
		out = append(out, s.byFile[file]...)
	}
	out = append(out, s.functions...)
	return out
}

// ClearVerification drops all adapter-confirmed data, e.g. after a restart
// when the sets must be resubmitted.
func (s *breakpointStore) ClearVerification() {
	for _, bp := range s.All() {
		bp.Verified = false
		bp.VerifiedLine = 0
		bp.AdapterID = 0
		bp.Message = ""
	}
}
