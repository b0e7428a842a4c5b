package kvs

import "github.com/meridiandb/meridian/pkg/kvstore"

// savedEntry is the value a key held (and whether it existed at all)
// the first time that key was touched after a savepoint was opened.
type savedEntry struct {
	value   kvstore.Value
	existed bool
}

type savepointFrame map[string]savedEntry

// savepointStack is a LIFO stack of frames: NewSavePoint pushes a frame,
// capture records the pre-image of a key the first (and only the
// first) time it is written while that frame is on top, RollbackSavePoint
// pops and restores its frame, and ReleaseSavePoint pops and folds its
// frame into the parent so an outer rollback still sees the original
// pre-image. Grounded on the reference implementation's SavePoints
// stack in kvs/savepoint.rs.
type savepointStack struct {
	frames []savepointFrame
}

func (s *savepointStack) active() bool { return len(s.frames) > 0 }

func (s *savepointStack) push() {
	s.frames = append(s.frames, savepointFrame{})
}

func (s *savepointStack) capture(key kvstore.Key, v kvstore.Value, existed bool) {
	if len(s.frames) == 0 {
		return
	}
	top := s.frames[len(s.frames)-1]
	ks := string(key)
	if _, ok := top[ks]; ok {
		return
	}
	top[ks] = savedEntry{value: v, existed: existed}
}

func (s *savepointStack) pop() (savepointFrame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top, true
}

// mergeDown folds frame into the new top frame, keeping the parent's
// own pre-images where they already exist (the parent's capture is
// older and therefore the true pre-image for an outer rollback).
func (s *savepointStack) mergeDown(frame savepointFrame) {
	if len(s.frames) == 0 {
		return
	}
	parent := s.frames[len(s.frames)-1]
	for k, e := range frame {
		if _, ok := parent[k]; !ok {
			parent[k] = e
		}
	}
}

// ErrNoSavePoint is returned by RollbackSavePoint/ReleaseSavePoint when
// no savepoint is open.
var ErrNoSavePoint = Error.New("no active savepoint")

// NewSavePoint opens a nested savepoint. Savepoints nest arbitrarily
// deep and must be popped in LIFO order.
func (tx *Transaction) NewSavePoint() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.savepoints.push()
}

// RollbackSavePoint undoes every write made since the innermost open
// savepoint, restoring each touched key to the value (or absence) it
// held when the savepoint was opened, then closes that savepoint.
func (tx *Transaction) RollbackSavePoint() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	frame, ok := tx.savepoints.pop()
	if !ok {
		return ErrNoSavePoint
	}
	for ks, e := range frame {
		key := kvstore.Key(ks)
		if e.existed {
			tx.writes[ks] = &pendingWrite{value: e.value}
		} else {
			tx.writes[ks] = &pendingWrite{deleted: true}
		}
		tx.cache.clear(key)
	}
	return nil
}

// ReleaseSavePoint accepts every write made since the innermost open
// savepoint, folding its captured pre-images into the next-outer
// savepoint (if any) so that savepoint can still roll back to the
// state before this one was opened.
func (tx *Transaction) ReleaseSavePoint() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	frame, ok := tx.savepoints.pop()
	if !ok {
		return ErrNoSavePoint
	}
	tx.savepoints.mergeDown(frame)
	return nil
}
