// Package memstore is an in-memory implementation of the service
// repositories. Transactions are serialized and roll back on error, and
// the unique constraints of the SQL schema are enforced, which makes it
// suitable for tests and local experiments.
package memstore

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/types"
)

type state struct {
	users      map[int64]types.User
	challenges map[int64]types.Challenge
	solutions  map[int64]types.Solution
	teams      map[int64]types.Team
	members    map[int64][]types.Membership
	entries    map[int64]types.LeaderboardEntry
	// credits maps a (user, challenge) pair to the solution that credited it.
	credits map[creditKey]int64

	nextUserID      int64
	nextChallengeID int64
	nextSolutionID  int64
	nextTeamID      int64
}

func newState() *state {
	return &state{
		users:      map[int64]types.User{},
		challenges: map[int64]types.Challenge{},
		solutions:  map[int64]types.Solution{},
		teams:      map[int64]types.Team{},
		members:    map[int64][]types.Membership{},
		entries:    map[int64]types.LeaderboardEntry{},
		credits:    map[creditKey]int64{},
	}
}

type creditKey struct {
	userID      int64
	challengeID int64
}

func (st *state) clone() *state {
	c := *st
	c.users = maps.Clone(st.users)
	c.challenges = maps.Clone(st.challenges)
	c.solutions = maps.Clone(st.solutions)
	c.teams = maps.Clone(st.teams)
	c.credits = maps.Clone(st.credits)
	c.members = make(map[int64][]types.Membership, len(st.members))
	for id, list := range st.members {
		c.members[id] = append([]types.Membership(nil), list...)
	}
	c.entries = make(map[int64]types.LeaderboardEntry, len(st.entries))
	for id, entry := range st.entries {
		c.entries[id] = copyEntry(entry)
	}
	return &c
}

// Store holds all data in memory behind a single lock.
type Store struct {
	mu       sync.Mutex
	data     *state
	failures map[string]error
}

func New() *Store {
	return &Store{data: newState(), failures: map[string]error{}}
}

// FailNext makes the next call of op return err. Ops are named
// "<repository>.<method>", e.g. "leaderboard.save".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// Repositories returns repositories that lock the store per call.
func (s *Store) Repositories() services.Repositories {
	return s.repositories(false)
}

// WithTx runs fn with exclusive access to the store. Changes made by fn are
// discarded when it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(repos services.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.repositories(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) repositories(inTx bool) services.Repositories {
	v := view{store: s, inTx: inTx}
	return services.Repositories{
		Users:       userRepo{v},
		Challenges:  challengeRepo{v},
		Solutions:   solutionRepo{v},
		Teams:       teamRepo{v},
		Leaderboard: leaderboardRepo{v},
	}
}

// view runs repository calls against the store, taking the lock unless the
// call is part of a transaction that already holds it.
type view struct {
	store *Store
	inTx  bool
}

func (v view) read(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	return fn(v.store.data)
}

func (v view) write(op string, fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	if err := v.store.takeFailure(op); err != nil {
		return err
	}
	return fn(v.store.data)
}

func copyEntry(entry types.LeaderboardEntry) types.LeaderboardEntry {
	entry.CategoryScores = maps.Clone(entry.CategoryScores)
	if entry.CategoryScores == nil {
		entry.CategoryScores = map[string]int{}
	}
	return entry
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
