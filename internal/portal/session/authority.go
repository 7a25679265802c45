// Package session keeps the contractor portal credential. It logs in,
// refreshes the credential shortly before it expires, expires it on time,
// and logs out after a period without user activity. The credential has a
// single writer: only Login, Refresh, Logout and the expiry paths change it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/schedule"
	"propdesk/internal/pkg/safelog"

	"github.com/jonboulle/clockwork"
)

// LoginPath is where an ended session sends the user.
const LoginPath = "/login"

const (
	DefaultRefreshLead = 5 * time.Minute
	DefaultLifetime    = 24 * time.Hour
	DefaultIdleLimit   = 10 * time.Minute
	DefaultIdleCheck   = time.Minute

	minRefreshDelay = 5 * time.Second
)

const (
	ReasonExpired       = "Your session has expired. Please log in again."
	ReasonRefreshFailed = "We couldn't renew your session. Please log in again."
	ReasonRejected      = "Your session is no longer valid. Please log in again."
	ReasonIdle          = "You were logged out after a period of inactivity."
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session authority closed")
	// ErrSessionEnded is returned for a refresh whose session ended while
	// the call was in flight.
	ErrSessionEnded = errors.New("session ended")
)

// Authenticator is the part of the portal API the authority needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)
	Refresh(ctx context.Context, credential string) (*domain.RefreshResult, error)
	Logout(ctx context.Context, credential string) error
}

// ActivityKind is a class of user interaction that counts as activity.
type ActivityKind string

const (
	ActivityPointer  ActivityKind = "pointer"
	ActivityKeyboard ActivityKind = "keyboard"
	ActivityScroll   ActivityKind = "scroll"
	ActivityTouch    ActivityKind = "touch"
)

func (k ActivityKind) valid() bool {
	switch k {
	case ActivityPointer, ActivityKeyboard, ActivityScroll, ActivityTouch:
		return true
	}
	return false
}

// EventKind names a session transition.
type EventKind string

const (
	EventLoggedIn  EventKind = "logged_in"
	EventRefreshed EventKind = "refreshed"
	EventLoggedOut EventKind = "logged_out"
	EventExpired   EventKind = "expired"
)

// Event is published to subscribers after every transition. Redirect is
// set when the session ended.
type Event struct {
	Kind     EventKind
	Redirect string
	Reason   string
	At       time.Time
}

// Options tunes an Authority. Zero values use the defaults.
type Options struct {
	Store           Store
	Clock           clockwork.Clock
	RefreshLead     time.Duration
	DefaultLifetime time.Duration
	IdleLimit       time.Duration
	IdleCheck       time.Duration
}

// Authority owns one portal session at a time.
type Authority struct {
	auth  Authenticator
	store Store
	clock clockwork.Clock

	refreshLead time.Duration
	lifetime    time.Duration
	idleLimit   time.Duration
	idleCheck   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	credential   string
	issuedAt     time.Time
	expiresAt    time.Time
	lastActivity time.Time
	identity     Identity
	generation   uint64
	timers       *schedule.Group
	refreshTask  *schedule.Task
	expiryTask   *schedule.Task
	subscribers  map[int]func(Event)
	nextSub      int
	closed       bool
}

// New creates an authority with no session.
func New(auth Authenticator, opts Options) *Authority {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = DefaultRefreshLead
	}
	if opts.DefaultLifetime <= 0 {
		opts.DefaultLifetime = DefaultLifetime
	}
	if opts.IdleLimit <= 0 {
		opts.IdleLimit = DefaultIdleLimit
	}
	if opts.IdleCheck <= 0 {
		opts.IdleCheck = DefaultIdleCheck
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Authority{
		auth:        auth,
		store:       opts.Store,
		clock:       opts.Clock,
		refreshLead: opts.RefreshLead,
		lifetime:    opts.DefaultLifetime,
		idleLimit:   opts.IdleLimit,
		idleCheck:   opts.IdleCheck,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]func(Event)),
	}
}

// Login exchanges credentials for a session and starts its timers.
func (a *Authority) Login(ctx context.Context, email, password string) (Identity, error) {
	if a.isClosed() {
		return Identity{}, ErrClosed
	}

	res, err := a.auth.Login(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return Identity{}, ErrClosed
	}
	now := a.clock.Now()
	a.endLocked()
	a.credential = res.AccessToken
	a.issuedAt = now
	a.expiresAt = a.expiry(now, res.ExpiresAt, res.ExpiresIn)
	a.lastActivity = now
	a.identity = Sanitize(res.Account)
	a.persistLocked()
	a.startLocked()
	identity := a.identity
	a.mu.Unlock()

	log.Printf("✅ Portal session started for %s", safelog.MaskEmail(identity.Email))
	a.publish(Event{Kind: EventLoggedIn, At: now})
	return identity, nil
}

// Logout ends the session locally and revokes it on the server. The local
// session is gone even when the server call fails.
func (a *Authority) Logout(ctx context.Context) error {
	a.mu.Lock()
	credential := a.credential
	if credential == "" {
		a.mu.Unlock()
		return nil
	}
	a.endLocked()
	a.mu.Unlock()

	err := a.auth.Logout(ctx, credential)
	if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		log.Printf("⚠️ Portal logout not confirmed by server: %v", err)
	} else {
		err = nil
	}

	a.publish(Event{Kind: EventLoggedOut, Redirect: LoginPath, At: a.clock.Now()})
	return err
}

// Refresh rotates the credential. Any failure, including having no
// credential, expires the session.
func (a *Authority) Refresh(ctx context.Context) error {
	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()
	return a.refresh(ctx, gen)
}

// IsAuthenticated reports whether a credential is held and not past expiry.
func (a *Authority) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validLocked()
}

// GetToken returns the current credential, or "" without a valid session.
func (a *Authority) GetToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validLocked() {
		return ""
	}
	return a.credential
}

// Identity returns the sanitized identity of the session.
func (a *Authority) Identity() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.credential == "" {
		return Identity{}, false
	}
	return a.identity, true
}

// ExpiresAt returns the expiry of the current credential.
func (a *Authority) ExpiresAt() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiresAt, a.credential != ""
}

// RecordActivity notes a user interaction. Other kinds are ignored.
func (a *Authority) RecordActivity(kind ActivityKind) {
	if !kind.valid() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.credential == "" {
		return
	}
	a.lastActivity = a.clock.Now()
	a.store.Set(KeyLastActivity, formatTime(a.lastActivity))
}

// HandleUnauthorized expires the session after the server rejected its
// credential. It is meant to be wired as the API client's 401 hook.
func (a *Authority) HandleUnauthorized() {
	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()
	a.expire(gen, EventExpired, ReasonRejected)
}

// Subscribe registers fn for session events and returns its cancel func.
func (a *Authority) Subscribe(fn func(Event)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSub
	a.nextSub++
	a.subscribers[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subscribers, id)
	}
}

// Restore resumes a session kept in the store. A stored session that has
// already expired is cleared.
func (a *Authority) Restore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.credential != "" {
		return a.credential != ""
	}

	credential, ok := a.store.Get(KeyCredential)
	if !ok || credential == "" {
		return false
	}
	expiresAt, err := parseStoredTime(a.store, KeyExpiresAt)
	if err != nil || !a.clock.Now().Before(expiresAt) {
		a.clearStoreLocked()
		return false
	}

	var identity Identity
	if raw, ok := a.store.Get(KeyIdentity); ok {
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			log.Printf("⚠️ Discarding unreadable stored identity: %v", err)
		}
	}
	lastActivity, err := parseStoredTime(a.store, KeyLastActivity)
	if err != nil {
		lastActivity = a.clock.Now()
	}
	issuedAt, err := parseStoredTime(a.store, KeyIssuedAt)
	if err != nil {
		issuedAt = expiresAt.Add(-a.lifetime)
	}

	a.credential = credential
	a.issuedAt = issuedAt
	a.expiresAt = expiresAt
	a.lastActivity = lastActivity
	a.identity = identity
	a.generation++
	a.startLocked()
	return true
}

// Close stops every timer and cancels in-flight refreshes. The stored
// session is kept so a later authority can Restore it.
func (a *Authority) Close() {
	a.mu.Lock()
	a.closed = true
	a.stopTimersLocked()
	a.generation++
	a.mu.Unlock()
	a.cancel()
}

func (a *Authority) refresh(ctx context.Context, gen uint64) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if gen != a.generation {
		a.mu.Unlock()
		return ErrSessionEnded
	}
	credential := a.credential
	a.mu.Unlock()

	if credential == "" {
		a.expire(gen, EventExpired, ReasonRefreshFailed)
		return domain.ErrUnauthorized
	}

	res, err := a.auth.Refresh(ctx, credential)

	a.mu.Lock()
	if a.closed || gen != a.generation {
		a.mu.Unlock()
		return ErrSessionEnded
	}
	if err != nil {
		a.mu.Unlock()
		log.Printf("⚠️ Portal credential refresh failed: %v", err)
		a.expire(gen, EventExpired, ReasonRefreshFailed)
		return err
	}

	now := a.clock.Now()
	a.credential = res.AccessToken
	a.issuedAt = now
	a.expiresAt = a.expiry(now, res.ExpiresAt, res.ExpiresIn)
	a.persistLocked()
	a.scheduleExpiryLocked()
	a.mu.Unlock()

	a.publish(Event{Kind: EventRefreshed, At: now})
	return nil
}

// expire ends session gen and tells subscribers where to go.
func (a *Authority) expire(gen uint64, kind EventKind, reason string) {
	a.mu.Lock()
	if gen != a.generation || a.credential == "" {
		a.mu.Unlock()
		return
	}
	a.endLocked()
	a.mu.Unlock()

	log.Printf("⚠️ Portal session ended: %s", reason)
	a.publish(Event{Kind: kind, Redirect: LoginPath, Reason: reason, At: a.clock.Now()})
}

// logoutIdle ends an idle session and revokes it on the server.
func (a *Authority) logoutIdle(gen uint64) {
	a.mu.Lock()
	if gen != a.generation || a.credential == "" {
		a.mu.Unlock()
		return
	}
	if a.clock.Since(a.lastActivity) <= a.idleLimit {
		a.mu.Unlock()
		return
	}
	credential := a.credential
	a.endLocked()
	a.mu.Unlock()

	if err := a.auth.Logout(a.ctx, credential); err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		log.Printf("⚠️ Idle logout not confirmed by server: %v", err)
	}
	log.Printf("⚠️ Portal session ended: %s", ReasonIdle)
	a.publish(Event{Kind: EventLoggedOut, Redirect: LoginPath, Reason: ReasonIdle, At: a.clock.Now()})
}

// startLocked creates the timer group of the current generation. The
// inactivity check runs independently of the expiry timers.
func (a *Authority) startLocked() {
	a.stopTimersLocked()
	a.timers = schedule.NewGroup(a.clock)
	gen := a.generation
	a.timers.Every(a.idleCheck, func() { a.logoutIdle(gen) })
	a.scheduleExpiryLocked()
}

// scheduleExpiryLocked (re)arms the refresh and hard-expiry timers for
// the current expiresAt.
func (a *Authority) scheduleExpiryLocked() {
	if a.timers == nil {
		return
	}
	a.refreshTask.Stop()
	a.expiryTask.Stop()

	gen := a.generation
	now := a.clock.Now()
	if refreshIn, ok := refreshDelay(a.expiresAt.Sub(now), a.refreshLead); ok {
		a.refreshTask = a.timers.AfterFunc(refreshIn, func() {
			if err := a.refresh(a.ctx, gen); err != nil && !errors.Is(err, ErrSessionEnded) && !errors.Is(err, ErrClosed) {
				log.Printf("⚠️ Scheduled refresh did not complete: %v", err)
			}
		})
	} else {
		a.refreshTask = nil
	}

	expiresAt := a.expiresAt
	a.expiryTask = a.timers.AfterFunc(expiresAt.Sub(now), func() {
		a.mu.Lock()
		current := a.generation == gen && a.expiresAt.Equal(expiresAt)
		a.mu.Unlock()
		if current {
			a.expire(gen, EventExpired, ReasonExpired)
		}
	})
}

// refreshDelay is how long to wait before a proactive refresh. A lifetime
// shorter than the lead is refreshed at its midpoint; below minRefreshDelay
// the hard expiry is left to end the session.
func refreshDelay(remaining, lead time.Duration) (time.Duration, bool) {
	if remaining > lead {
		return remaining - lead, true
	}
	if half := remaining / 2; half >= minRefreshDelay {
		return half, true
	}
	return 0, false
}

// endLocked clears the session in memory and in the store, stops its
// timers and invalidates callbacks of the old generation.
func (a *Authority) endLocked() {
	a.stopTimersLocked()
	a.generation++
	a.credential = ""
	a.issuedAt = time.Time{}
	a.expiresAt = time.Time{}
	a.lastActivity = time.Time{}
	a.identity = Identity{}
	a.clearStoreLocked()
}

func (a *Authority) stopTimersLocked() {
	if a.timers != nil {
		a.timers.Close()
		a.timers = nil
	}
	a.refreshTask = nil
	a.expiryTask = nil
}

func (a *Authority) persistLocked() {
	a.store.Set(KeyCredential, a.credential)
	a.store.Set(KeyIssuedAt, formatTime(a.issuedAt))
	a.store.Set(KeyExpiresAt, formatTime(a.expiresAt))
	a.store.Set(KeyLastActivity, formatTime(a.lastActivity))
	if raw, err := json.Marshal(a.identity); err == nil {
		a.store.Set(KeyIdentity, string(raw))
	}
}

func (a *Authority) clearStoreLocked() {
	for _, key := range allKeys {
		a.store.Delete(key)
	}
}

func (a *Authority) validLocked() bool {
	return a.credential != "" && a.clock.Now().Before(a.expiresAt)
}

// expiry picks the server's expiry when given, else its lifetime, else
// the default lifetime.
func (a *Authority) expiry(now, expiresAt time.Time, expiresIn int) time.Time {
	switch {
	case !expiresAt.IsZero():
		return expiresAt
	case expiresIn > 0:
		return now.Add(time.Duration(expiresIn) * time.Second)
	default:
		return now.Add(a.lifetime)
	}
}

func (a *Authority) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Authority) publish(ev Event) {
	a.mu.Lock()
	subs := make([]func(Event), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStoredTime(store Store, key string) (time.Time, error) {
	raw, ok := store.Get(key)
	if !ok {
		return time.Time{}, errors.New("missing " + key)
	}
	return time.Parse(time.RFC3339Nano, raw)
}
