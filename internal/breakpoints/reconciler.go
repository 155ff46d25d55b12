// Package breakpoints keeps source breakpoints in step with gdb.
//
// Breakpoints are declared locally (Pending), flushed with one -break-insert each
// (Sent), and become Verified once gdb reports a resolved location, either in the
// insert's own result or in a later =breakpoint-modified notification. Rejected
// inserts are dropped. gdb numbers breakpoints with flat ids, so clearing a file
// lists gdb's table and deletes the matching numbers one by one.
package breakpoints

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/gdb"
	"github.com/ctagard/gdb-bridge/internal/mi"
	"github.com/ctagard/gdb-bridge/pkg/types"
)

const pendingAddr = "<PENDING>"

// Session is the part of gdb.Client the reconciler needs
type Session interface {
	Send(ctx context.Context, command string) (*gdb.Response, error)
}

// Publisher receives a breakpoint whenever it is verified, re-resolved or rejected
type Publisher interface {
	BreakpointChanged(bp types.Breakpoint)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(bp types.Breakpoint)

// BreakpointChanged calls f(bp)
func (f PublisherFunc) BreakpointChanged(bp types.Breakpoint) {
	f(bp)
}

// Reconciler owns the breakpoint table of one debug session
type Reconciler struct {
	session   Session
	publisher Publisher

	mu          sync.Mutex
	breakpoints map[int]*types.Breakpoint
	byPath      map[string][]*types.Breakpoint
	byNumber    map[string]*types.Breakpoint
	nextID      int
}

// NewReconciler creates an empty reconciler. publisher may be nil.
func NewReconciler(session Session, publisher Publisher) *Reconciler {
	return &Reconciler{
		session:     session,
		publisher:   publisher,
		breakpoints: make(map[int]*types.Breakpoint),
		byPath:      make(map[string][]*types.Breakpoint),
		byNumber:    make(map[string]*types.Breakpoint),
		nextID:      1,
	}
}

// SetBreakPoint declares a breakpoint at path:line (1-based). Nothing is sent
// until CreateBreakpoints.
func (r *Reconciler) SetBreakPoint(path string, line int) types.Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp := &types.Breakpoint{
		ID:            r.nextID,
		Path:          path,
		RequestedLine: line,
		Line:          line,
		State:         types.BreakpointPending,
	}
	r.nextID++

	r.breakpoints[bp.ID] = bp
	key := pathKey(path)
	r.byPath[key] = append(r.byPath[key], bp)
	return *bp
}

// CreateBreakpoints sends every Pending breakpoint for path, or for all paths when
// path is empty. Rejections are published and dropped; only transport failures are
// returned.
func (r *Reconciler) CreateBreakpoints(ctx context.Context, path string) error {
	for _, bp := range r.takePending(path) {
		location := fmt.Sprintf("%s:%d", bp.Path, bp.RequestedLine)
		resp, err := r.session.Send(ctx, "-break-insert "+mi.Quote(location))
		if err != nil {
			r.revert(bp.ID)
			return err
		}

		if resp.IsError() {
			r.reject(bp.ID, resp.Record.ErrorMessage())
			continue
		}
		r.confirm(bp.ID, resp.Record.Payload.Get("bkpt"))
	}
	return nil
}

// takePending marks the pending entries Sent and returns them in id order
func (r *Reconciler) takePending(path string) []types.Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Breakpoint
	for _, bp := range r.breakpoints {
		if bp.State != types.BreakpointPending {
			continue
		}
		if path != "" && pathKey(bp.Path) != pathKey(path) {
			continue
		}
		bp.State = types.BreakpointSent
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// revert returns an entry to Pending after a transport failure
func (r *Reconciler) revert(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bp, ok := r.breakpoints[id]; ok && bp.State == types.BreakpointSent {
		bp.State = types.BreakpointPending
	}
}

func (r *Reconciler) reject(id int, reason string) {
	r.mu.Lock()
	bp, ok := r.breakpoints[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(bp)
	bp.State = types.BreakpointRejected
	bp.Message = reason
	snapshot := *bp
	r.mu.Unlock()

	log.Printf("Warning: %v", errors.BreakpointRejected(snapshot.Path, snapshot.RequestedLine, reason))
	r.emit(snapshot)
}

// confirm applies the bkpt tuple of an insert result to the entry it was sent for
func (r *Reconciler) confirm(id int, bkpt mi.Value) {
	r.mu.Lock()
	bp, ok := r.breakpoints[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	changed := r.applyLocked(bp, bkpt)
	snapshot := *bp
	r.mu.Unlock()

	if changed {
		r.emit(snapshot)
	}
}

// HandleNotification applies =breakpoint-created, =breakpoint-modified and
// =breakpoint-deleted. It reports whether the record matched a local breakpoint.
func (r *Reconciler) HandleNotification(rec mi.Record) bool {
	if rec.Kind != mi.RecordAsync {
		return false
	}

	switch rec.Class {
	case mi.ClassBreakpointCreated, mi.ClassBreakpointModified:
		bkpt := rec.Payload.Get("bkpt")

		r.mu.Lock()
		bp := r.matchLocked(bkpt)
		if bp == nil {
			r.mu.Unlock()
			return false
		}
		changed := r.applyLocked(bp, bkpt)
		snapshot := *bp
		r.mu.Unlock()

		if changed {
			r.emit(snapshot)
		}
		return true

	case mi.ClassBreakpointDeleted:
		number := rec.Payload.Get("id").String()

		r.mu.Lock()
		defer r.mu.Unlock()
		bp, ok := r.byNumber[number]
		if !ok {
			return false
		}
		r.removeLocked(bp)
		return true
	}
	return false
}

// matchLocked finds the local entry a bkpt tuple refers to: by gdb number once
// learned, then by original location, then by (path, requested line). Insert order
// is never used.
func (r *Reconciler) matchLocked(bkpt mi.Value) *types.Breakpoint {
	if number := bkpt.Get("number").String(); number != "" {
		if bp, ok := r.byNumber[number]; ok {
			return bp
		}
	}

	unbound := func(match func(bp *types.Breakpoint) bool) *types.Breakpoint {
		var found *types.Breakpoint
		for _, bp := range r.breakpoints {
			if bp.Number != "" || bp.State == types.BreakpointPending {
				continue
			}
			if match(bp) && (found == nil || bp.ID < found.ID) {
				found = bp
			}
		}
		return found
	}

	if file, line, ok := parseLocation(bkpt.Get("original-location").String()); ok {
		if bp := unbound(func(bp *types.Breakpoint) bool {
			return bp.RequestedLine == line && pathsMatch(bp.Path, file)
		}); bp != nil {
			return bp
		}
	}

	line := resolvedLine(bkpt)
	return unbound(func(bp *types.Breakpoint) bool {
		return bp.RequestedLine == line && (pathsMatch(bp.Path, bkpt.Get("fullname").String()) ||
			pathsMatch(bp.Path, bkpt.Get("file").String()))
	})
}

// applyLocked records gdb's view of bp and reports whether the caller should be told
func (r *Reconciler) applyLocked(bp *types.Breakpoint, bkpt mi.Value) bool {
	if number := bkpt.Get("number").String(); number != "" && number != bp.Number {
		if bp.Number != "" {
			delete(r.byNumber, bp.Number)
		}
		bp.Number = number
		r.byNumber[number] = bp
	}

	line := resolvedLine(bkpt)
	if line <= 0 || bkpt.Get("addr").String() == pendingAddr {
		if bp.Message == "" && !bp.Verified {
			bp.Message = "pending: location not yet resolved"
		}
		return false
	}

	wasVerified, oldLine := bp.Verified, bp.Line
	bp.Verified = true
	bp.State = types.BreakpointVerified
	bp.Line = line
	bp.Message = ""
	return !wasVerified || oldLine != line
}

func (r *Reconciler) removeLocked(bp *types.Breakpoint) {
	delete(r.breakpoints, bp.ID)
	if bp.Number != "" && r.byNumber[bp.Number] == bp {
		delete(r.byNumber, bp.Number)
	}

	key := pathKey(bp.Path)
	list := r.byPath[key]
	for i, other := range list {
		if other == bp {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byPath, key)
	} else {
		r.byPath[key] = list
	}
}

func (r *Reconciler) emit(bp types.Breakpoint) {
	if r.publisher != nil {
		r.publisher.BreakpointChanged(bp)
	}
}

// ClearBreakpoints deletes every gdb breakpoint whose resolved path is path and
// drops the local entries for it. It returns the number of deletes issued. An empty
// path issues no commands.
func (r *Reconciler) ClearBreakpoints(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	resp, err := r.session.Send(ctx, "-break-list")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, errors.CommandFailed("-break-list", resp.Record.ErrorMessage())
	}

	numbers := matchingNumbers(resp.Record.Payload.Path("BreakpointTable", "body"), path)

	deleted := 0
	for _, number := range numbers {
		resp, err := r.session.Send(ctx, "-break-delete "+number)
		if err != nil {
			return deleted, err
		}
		deleted++
		if resp.IsError() {
			log.Printf("Warning: -break-delete %s failed: %s", number, resp.Record.ErrorMessage())
		}
	}

	r.mu.Lock()
	for _, bp := range append([]*types.Breakpoint(nil), r.byPath[pathKey(path)]...) {
		r.removeLocked(bp)
	}
	for _, number := range numbers {
		if bp, ok := r.byNumber[number]; ok {
			r.removeLocked(bp)
		}
	}
	r.mu.Unlock()

	return deleted, nil
}

// matchingNumbers returns the distinct top-level breakpoint numbers in a
// -break-list body located in path
func matchingNumbers(body mi.Value, path string) []string {
	var numbers []string
	seen := make(map[string]bool)
	for _, row := range body.Values() {
		number := row.Get("number").String()
		// older gdb lists each location of a multi-location breakpoint as "N.M"
		if number == "" || strings.Contains(number, ".") || seen[number] {
			continue
		}
		if !rowInPath(row, path) {
			continue
		}
		seen[number] = true
		numbers = append(numbers, number)
	}
	return numbers
}

func rowInPath(row mi.Value, path string) bool {
	if pathsMatch(path, row.Get("fullname").String()) || pathsMatch(path, row.Get("file").String()) {
		return true
	}
	for _, loc := range row.Get("locations").Values() {
		if pathsMatch(path, loc.Get("fullname").String()) || pathsMatch(path, loc.Get("file").String()) {
			return true
		}
	}
	return false
}

// Breakpoints returns the breakpoints for path, or all of them when path is empty,
// in id order
func (r *Reconciler) Breakpoints(path string) []types.Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []types.Breakpoint
	for _, bp := range r.breakpoints {
		if path != "" && pathKey(bp.Path) != pathKey(path) {
			continue
		}
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// resolvedLine is the bkpt line, or the first location's line for multi-location breakpoints
func resolvedLine(bkpt mi.Value) int {
	if line := bkpt.Get("line").IntOr(0); line > 0 {
		return line
	}
	for _, loc := range bkpt.Get("locations").Values() {
		if line := loc.Get("line").IntOr(0); line > 0 {
			return line
		}
	}
	return 0
}

// parseLocation splits an original-location in either linespec ("/src/a.c:10")
// or explicit ("-source /src/a.c -line 10") form
func parseLocation(loc string) (string, int, bool) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", 0, false
	}

	if strings.HasPrefix(loc, "-") {
		var file string
		line := 0
		fields := strings.Fields(loc)
		for i := 0; i+1 < len(fields); i++ {
			switch fields[i] {
			case "-source":
				file = fields[i+1]
			case "-line":
				line, _ = strconv.Atoi(fields[i+1])
			}
		}
		return file, line, file != "" && line > 0
	}

	i := strings.LastIndexByte(loc, ':')
	if i <= 0 {
		return "", 0, false
	}
	line, err := strconv.Atoi(loc[i+1:])
	if err != nil {
		return "", 0, false
	}
	return loc[:i], line, true
}

func pathKey(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

// pathsMatch compares source paths, allowing either side to be a relative suffix
// of the other (gdb reports "file" relative to the compilation directory)
func pathsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = pathKey(a), pathKey(b)
	return a == b || strings.HasSuffix(a, "/"+b) || strings.HasSuffix(b, "/"+a)
}
