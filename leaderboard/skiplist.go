package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"

	"loyaltykit/core"
)

// A simple skip list keyed by (xp desc, subject asc) to achieve O(log n) updates.

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
}

type SkipList struct {
	mu        sync.RWMutex
	head      *node
	lvl       int
	bySubject map[string]*node
	rng       *rand.Rand
}

func NewSkipList() *SkipList {
	// Use crypto/rand to generate a secure seed for PCG
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// Fallback to zero seed if crypto/rand fails (extremely unlikely)
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		head:      &node{},
		lvl:       1,
		bySubject: map[string]*node{},
		rng:       rand.New(rand.NewSource(int64(seed1 ^ seed2))),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b Entry) bool {
	if a.XP == b.XP {
		return a.key() < b.key()
	}
	return a.XP > b.XP // higher XP first
}

// Update inserts or moves the customer to a new XP total.
func (s *SkipList) Update(customer core.CustomerID, center core.CenterID, xp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.SubjectKey(customer, center)
	if old, ok := s.bySubject[key]; ok {
		// remove old node
		s.removeLocked(key, old.e)
	}
	e := Entry{Customer: customer, Center: center, XP: xp}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.bySubject[key] = n
}

func (s *SkipList) removeLocked(key string, e Entry) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.key() != key {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.bySubject, key)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) Remove(customer core.CustomerID, center core.CenterID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := core.SubjectKey(customer, center)
	if n, ok := s.bySubject[key]; ok {
		s.removeLocked(key, n.e)
	}
}

func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out
}

func (s *SkipList) Get(customer core.CustomerID, center core.CenterID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.bySubject[core.SubjectKey(customer, center)]; ok {
		return n.e, true
	}
	return Entry{}, false
}

var _ Board = (*SkipList)(nil)
