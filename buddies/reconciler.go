// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buddies keeps the client's view of buddy relationships: the
// recommended, all, and connected buddy collections and the pending
// incoming requests, plus the transitions a user can start from them.
//
// Every peer has exactly one effective [schema.ConnectionStatus] no
// matter how many collections it appears in. Statuses are tracked per
// peer id, each stamped with a version drawn from one counter: a
// collection fetch takes its version when issued, a local write when
// it happens. A status is only overwritten by a newer version, so a
// fetch issued before a connect completed cannot revert the peer to
// connectable. Snapshots paint every collection from that one table.
//
// The two kinds of transition are deliberately handled differently.
// Connect touches one relationship from our side only, so it is
// applied optimistically and rolled back on failure. Accept and
// decline change both users' collections, so they are sent first and
// followed by a full refresh of the connected and pending collections
// instead of a local patch.
package buddies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/studybuddy/api"
	"github.com/bureau-foundation/studybuddy/lib/clock"
	"github.com/bureau-foundation/studybuddy/lib/schema"
)

// Gateway is the subset of *api.Client the Reconciler uses.
type Gateway interface {
	RecommendedBuddies(ctx context.Context) ([]schema.Buddy, error)
	AllBuddies(ctx context.Context) ([]schema.Buddy, error)
	ConnectedBuddies(ctx context.Context) ([]schema.Buddy, error)
	ConnectionRequests(ctx context.Context) ([]schema.ConnectionRequest, error)
	Connect(ctx context.Context, buddyID int64) (string, error)
	AcceptRequest(ctx context.Context, requestID int64) (string, error)
	DeclineRequest(ctx context.Context, requestID int64) (string, error)
}

// Collection names one of the four server-derived collections.
type Collection int

const (
	Recommended Collection = iota
	All
	Connected
	Requests

	collectionCount
)

var collectionNames = [...]string{"recommended", "all", "connected", "requests"}

func (c Collection) String() string {
	if c >= 0 && c < collectionCount {
		return collectionNames[c]
	}
	return fmt.Sprintf("Collection(%d)", int(c))
}

// Collections lists every collection in display order.
func Collections() []Collection {
	return []Collection{Recommended, All, Connected, Requests}
}

var (
	// ErrNotConnectable means the peer already has a pending request
	// in either direction or is already connected.
	ErrNotConnectable = errors.New("buddies: buddy is not connectable")

	// ErrRequestInFlight means a decision on the same request is
	// already being sent.
	ErrRequestInFlight = errors.New("buddies: request decision already in progress")
)

// Error is a failed transition. Error returns the server's message.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// LoadState is the fetch state of one collection.
type LoadState struct {
	// Loading reports a fetch in flight.
	Loading bool

	// Loaded reports that at least one fetch succeeded.
	Loaded bool

	// Err is the most recent fetch failure, cleared by the next
	// success.
	Err error

	UpdatedAt time.Time
}

// Snapshot is a consistent copy of every collection. The same peer id
// carries the same ConnectionStatus in every collection.
type Snapshot struct {
	Recommended []schema.Buddy
	All         []schema.Buddy
	Connected   []schema.Buddy
	Requests    []schema.ConnectionRequest

	Loads map[Collection]LoadState
}

// Config holds the parameters for New.
type Config struct {
	Gateway Gateway

	// Clock stamps LoadState.UpdatedAt. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type statusEntry struct {
	status  schema.ConnectionStatus
	version uint64
}

// Reconciler owns the buddy collections. Safe for concurrent use.
type Reconciler struct {
	gateway Gateway
	clock   clock.Clock
	logger  *slog.Logger

	mu sync.Mutex

	// version orders fetch issues and local writes.
	version uint64

	buddies  [collectionCount][]schema.Buddy
	requests []schema.ConnectionRequest
	applied  [collectionCount]uint64
	inFlight [collectionCount]int
	loads    [collectionCount]LoadState

	status     map[int64]statusEntry
	optimistic map[int64]schema.ConnectionStatus
	deciding   map[int64]bool

	listeners    map[uint64]func(Snapshot)
	nextListener uint64
}

// New creates an empty Reconciler.
func New(config Config) (*Reconciler, error) {
	if config.Gateway == nil {
		return nil, fmt.Errorf("buddies: Gateway is required")
	}
	reconcilerClock := config.Clock
	if reconcilerClock == nil {
		reconcilerClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		gateway:   config.Gateway,
		clock:     reconcilerClock,
		logger:    logger,
		listeners: make(map[uint64]func(Snapshot)),
	}
	r.resetLocked()
	return r, nil
}

// OnChange registers listener for every change and returns a function
// that removes it. Listeners run after the lock is released.
func (r *Reconciler) OnChange(listener func(Snapshot)) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextListener
	r.nextListener++
	r.listeners[id] = listener
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Reset drops every collection and status, as on logout. Fetches
// still in flight are ignored when they return.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.resetLocked()
	r.unlockAndPublish()
}

func (r *Reconciler) resetLocked() {
	r.version++
	floor := r.version
	for index := range r.buddies {
		r.buddies[index] = nil
		r.applied[index] = floor
		r.inFlight[index] = 0
		r.loads[index] = LoadState{}
	}
	r.requests = nil
	r.status = make(map[int64]statusEntry)
	r.optimistic = make(map[int64]schema.ConnectionStatus)
	r.deciding = make(map[int64]bool)
}

// Snapshot returns a consistent copy of every collection.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Status returns the effective status of a peer.
func (r *Reconciler) Status(buddyID int64) schema.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.effectiveLocked(buddyID, schema.StatusNotConnected)
}

// Connectable reports whether Connect would send a request to the
// peer. Peers that already sent us a request must be accepted instead.
func (r *Reconciler) Connectable(buddyID int64) bool {
	return r.Status(buddyID) == schema.StatusNotConnected
}

// Refresh fetches all four collections concurrently. A failure in one
// does not stop the others; each is recorded in its LoadState. A failed
// recommended fetch degrades to an empty collection and is not
// reported. The returned error joins the remaining failures.
func (r *Reconciler) Refresh(ctx context.Context) error {
	return r.RefreshCollections(ctx, Collections()...)
}

// RefreshCollections fetches the named collections concurrently.
func (r *Reconciler) RefreshCollections(ctx context.Context, collections ...Collection) error {
	r.mu.Lock()
	floor := r.version + 1
	r.mu.Unlock()

	errs := make([]error, len(collections))
	var wg sync.WaitGroup
	for index, which := range collections {
		index, which := index, which
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[index] = r.refreshOne(ctx, which, floor)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// refreshOne fetches one collection. floor is the first version of the
// refresh round it belongs to: statuses asserted by a sibling fetch of
// the same round are never reverted by this one.
func (r *Reconciler) refreshOne(ctx context.Context, which Collection, floor uint64) error {
	r.mu.Lock()
	r.version++
	version := r.version
	r.inFlight[which]++
	r.loads[which].Loading = true
	r.unlockAndPublish()

	var buddies []schema.Buddy
	var requests []schema.ConnectionRequest
	var err error
	switch which {
	case Recommended:
		buddies, err = r.gateway.RecommendedBuddies(ctx)
	case All:
		buddies, err = r.gateway.AllBuddies(ctx)
	case Connected:
		buddies, err = r.gateway.ConnectedBuddies(ctx)
	case Requests:
		requests, err = r.gateway.ConnectionRequests(ctx)
	default:
		err = fmt.Errorf("buddies: unknown collection %v", which)
	}

	r.mu.Lock()
	r.inFlight[which]--
	r.loads[which].Loading = r.inFlight[which] > 0
	if version <= r.applied[which] {
		// A newer fetch already landed, or Reset ran.
		r.unlockAndPublish()
		return nil
	}

	if errors.Is(err, context.Canceled) {
		// The caller gave up on this fetch; its result belongs to nobody.
		r.unlockAndPublish()
		return fmt.Errorf("buddies: fetching %s: %w", which, err)
	}
	if err != nil {
		r.loads[which].Err = err
		r.logger.Debug("buddy collection fetch failed", "collection", which.String(), "error", err)
		if which == Recommended {
			r.applied[which] = version
			r.buddies[Recommended] = nil
			err = nil
		}
		r.unlockAndPublish()
		if err != nil {
			return fmt.Errorf("buddies: fetching %s: %w", which, err)
		}
		return nil
	}

	r.applied[which] = version
	r.loads[which].Err = nil
	r.loads[which].Loaded = true
	r.loads[which].UpdatedAt = r.clock.Now()
	if which == Requests {
		r.applyRequestsLocked(version, floor, requests)
	} else {
		r.applyBuddiesLocked(which, version, floor, buddies)
	}
	r.unlockAndPublish()
	return nil
}

func (r *Reconciler) applyBuddiesLocked(which Collection, version, floor uint64, buddies []schema.Buddy) {
	present := make(map[int64]bool, len(buddies))
	for index := range buddies {
		buddy := &buddies[index]
		if buddy.ID == 0 && buddy.UserID != 0 {
			buddy.ID = buddy.UserID
		}
		present[buddy.ID] = true
		status := buddy.ConnectionStatus.Normalize()
		if which == Connected {
			status = schema.StatusConnected
		}
		r.setStatusLocked(buddy.ID, status, version)
	}
	if which == Connected {
		for id, entry := range r.status {
			if entry.status == schema.StatusConnected && !present[id] {
				r.revertLocked(id, floor)
			}
		}
	}
	r.buddies[which] = buddies
}

func (r *Reconciler) applyRequestsLocked(version, floor uint64, requests []schema.ConnectionRequest) {
	pending := make([]schema.ConnectionRequest, 0, len(requests))
	senders := make(map[int64]bool, len(requests))
	for _, request := range requests {
		if !request.IsPending() {
			continue
		}
		pending = append(pending, request)
		senders[request.FromUserID] = true
		if r.status[request.FromUserID].status != schema.StatusConnected {
			r.setStatusLocked(request.FromUserID, schema.StatusRequestReceived, version)
		}
	}
	for id, entry := range r.status {
		if entry.status == schema.StatusRequestReceived && !senders[id] {
			r.revertLocked(id, floor)
		}
	}
	r.requests = pending
}

// setStatusLocked records status unless a newer version already set
// one.
func (r *Reconciler) setStatusLocked(id int64, status schema.ConnectionStatus, version uint64) {
	if current, ok := r.status[id]; ok && current.version > version {
		return
	}
	r.status[id] = statusEntry{status: status, version: version}
}

// revertLocked clears a status that a fetch no longer lists, unless it
// was set at or after floor: by a sibling fetch of the same round or by
// a later local write. The entry keeps its old version so that a
// sibling fetch can still assert the replacement status.
func (r *Reconciler) revertLocked(id int64, floor uint64) {
	entry := r.status[id]
	if entry.version >= floor {
		return
	}
	r.status[id] = statusEntry{status: schema.StatusNotConnected, version: entry.version}
}

func (r *Reconciler) effectiveLocked(id int64, fallback schema.ConnectionStatus) schema.ConnectionStatus {
	if status, ok := r.optimistic[id]; ok {
		return status
	}
	if entry, ok := r.status[id]; ok {
		return entry.status
	}
	return fallback.Normalize()
}

// Connect sends a connection request to buddyID. The peer is marked
// request_sent in every collection before the call is made, so a
// second Connect for the same peer fails with ErrNotConnectable rather
// than sending a duplicate. On failure the mark is removed and the
// server's message returned.
func (r *Reconciler) Connect(ctx context.Context, buddyID int64) error {
	r.mu.Lock()
	if status := r.effectiveLocked(buddyID, schema.StatusNotConnected); status != schema.StatusNotConnected {
		r.mu.Unlock()
		return fmt.Errorf("%w: status is %s", ErrNotConnectable, status)
	}
	r.optimistic[buddyID] = schema.StatusRequestSent
	r.unlockAndPublish()

	message, err := r.gateway.Connect(ctx, buddyID)

	r.mu.Lock()
	delete(r.optimistic, buddyID)
	if err != nil {
		r.unlockAndPublish()
		r.logger.Info("connect failed", "buddy_id", buddyID, "status", api.StatusOf(err), "error", err)
		return &Error{Op: "connect", Message: api.Message(err), Err: err}
	}
	r.version++
	r.setStatusLocked(buddyID, schema.StatusRequestSent, r.version)
	r.unlockAndPublish()
	r.logger.Debug("connection request sent", "buddy_id", buddyID, "message", message)
	return nil
}

// AcceptRequest accepts an incoming request, then refreshes the
// connected and pending collections from the server.
func (r *Reconciler) AcceptRequest(ctx context.Context, requestID int64) error {
	return r.decide(ctx, "accept", requestID, r.gateway.AcceptRequest)
}

// DeclineRequest declines an incoming request, then refreshes the
// connected and pending collections from the server.
func (r *Reconciler) DeclineRequest(ctx context.Context, requestID int64) error {
	return r.decide(ctx, "decline", requestID, r.gateway.DeclineRequest)
}

func (r *Reconciler) decide(ctx context.Context, op string, requestID int64, call func(context.Context, int64) (string, error)) error {
	r.mu.Lock()
	if r.deciding[requestID] {
		r.mu.Unlock()
		return ErrRequestInFlight
	}
	r.deciding[requestID] = true
	r.mu.Unlock()

	_, err := call(ctx, requestID)

	r.mu.Lock()
	delete(r.deciding, requestID)
	r.mu.Unlock()
	if err != nil {
		r.logger.Info("request decision failed", "op", op, "request_id", requestID, "error", err)
		return &Error{Op: op, Message: api.Message(err), Err: err}
	}

	if err := r.RefreshCollections(ctx, Connected, Requests); err != nil {
		r.logger.Warn("refresh after request decision failed", "op", op, "request_id", requestID, "error", err)
	}
	return nil
}

// Deciding reports whether a decision on requestID is in flight.
func (r *Reconciler) Deciding(requestID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deciding[requestID]
}

func (r *Reconciler) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Recommended: r.paintLocked(r.buddies[Recommended]),
		All:         r.paintLocked(r.buddies[All]),
		Connected:   r.paintLocked(r.buddies[Connected]),
		Requests:    append([]schema.ConnectionRequest(nil), r.requests...),
		Loads:       make(map[Collection]LoadState, collectionCount),
	}
	for _, which := range Collections() {
		snapshot.Loads[which] = r.loads[which]
	}
	return snapshot
}

func (r *Reconciler) paintLocked(buddies []schema.Buddy) []schema.Buddy {
	painted := make([]schema.Buddy, len(buddies))
	for index, buddy := range buddies {
		buddy.Interests = append(schema.StringList(nil), buddy.Interests...)
		buddy.ConnectionStatus = r.effectiveLocked(buddy.ID, buddy.ConnectionStatus)
		painted[index] = buddy
	}
	return painted
}

func (r *Reconciler) unlockAndPublish() {
	if len(r.listeners) == 0 {
		r.mu.Unlock()
		return
	}
	snapshot := r.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(r.listeners))
	for _, listener := range r.listeners {
		listeners = append(listeners, listener)
	}
	r.mu.Unlock()
	for _, listener := range listeners {
		listener(snapshot)
	}
}
