package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/schedule"
)

// AddStatus is the outcome of AddTransaction.
type AddStatus int

const (
	// Inserted means the transaction was prepended to the list.
	Inserted AddStatus = iota
	// NeedsConfirmation means a manual entry matches an existing one on
	// (date, amount, category). Nothing was inserted; call
	// ConfirmTransaction with the candidate to insert it anyway.
	NeedsConfirmation
)

// String returns a human-readable representation of the status.
func (st AddStatus) String() string {
	switch st {
	case Inserted:
		return "inserted"
	case NeedsConfirmation:
		return "needs_confirmation"
	default:
		return "unknown"
	}
}

// AddResult reports what AddTransaction did.
type AddResult struct {
	Status AddStatus
	// Transaction is the inserted entry, or the candidate awaiting
	// confirmation. Its ID is always set.
	Transaction domain.Transaction
	// Existing is the entry the candidate collided with.
	Existing *domain.Transaction
}

// Undo restores a deleted transaction. It reports false when the deletion
// can no longer be undone.
type Undo func() bool

type undoSlot struct {
	seq   uint64
	tx    domain.Transaction
	index int
	timer schedule.Timer
}

// AddTransaction inserts tx at the head of the list. A manual entry that
// matches an existing (date, amount, category) is returned for
// confirmation instead of being inserted. Automatic entries skip the check.
// Field formats are not checked here; callers taking user input run
// Transaction.Validate first.
func (s *Store) AddTransaction(tx domain.Transaction) (AddResult, error) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	result := AddResult{Status: Inserted, Transaction: tx}
	err := s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		if indexOf(doc.Transactions, tx.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		if !tx.Auto {
			for i := range doc.Transactions {
				if doc.Transactions[i].SameEntry(tx) {
					existing := doc.Transactions[i]
					result.Status = NeedsConfirmation
					result.Existing = &existing
					return nil, nil
				}
			}
		}
		doc.Transactions = prepend(doc.Transactions, tx)
		return []domain.Field{domain.FieldTransactions}, nil
	})
	if err != nil {
		return AddResult{}, err
	}
	return result, nil
}

// ConfirmTransaction inserts a candidate returned with NeedsConfirmation,
// without repeating the duplicate check.
func (s *Store) ConfirmTransaction(tx domain.Transaction) (domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	err := s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		if indexOf(doc.Transactions, tx.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, tx.ID)
		}
		doc.Transactions = prepend(doc.Transactions, tx)
		return []domain.Field{domain.FieldTransactions}, nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

// DeleteTransaction removes the entry with the given id and keeps it in the
// single undo slot, replacing whatever deletion was held there before.
// The returned Undo works only while the slot still holds this deletion.
func (s *Store) DeleteTransaction(id string) (Undo, bool) {
	var seq uint64
	found := false

	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		i := indexOf(doc.Transactions, id)
		if i < 0 {
			return nil, nil
		}
		found = true
		removed := doc.Transactions[i]
		doc.Transactions = append(doc.Transactions[:i:i], doc.Transactions[i+1:]...)

		s.clearUndoLocked()
		s.undoSeq++
		seq = s.undoSeq
		slot := &undoSlot{seq: seq, tx: removed, index: i}
		if s.undoWindow > 0 && s.sched != nil {
			slot.timer = s.sched.AfterFunc(s.undoWindow, func() { s.expireUndo(seq) })
		}
		s.undo = slot
		return []domain.Field{domain.FieldTransactions}, nil
	})
	if !found {
		return func() bool { return false }, false
	}

	s.log.Debug().Str("tx_id", id).Msg("Deleted transaction")
	return func() bool { return s.restore(seq) }, true
}

// UndoDelete restores the transaction held in the undo slot, if any.
func (s *Store) UndoDelete() bool {
	s.mu.Lock()
	if s.undo == nil {
		s.mu.Unlock()
		return false
	}
	seq := s.undo.seq
	s.mu.Unlock()
	return s.restore(seq)
}

// PendingUndo returns the transaction currently held in the undo slot.
func (s *Store) PendingUndo() (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.undo == nil {
		return domain.Transaction{}, false
	}
	return s.undo.tx, true
}

// UpdateTransaction shallow-merges patch into the entry with the given id.
// It is a no-op returning false when the id is unknown.
func (s *Store) UpdateTransaction(id string, patch domain.TransactionPatch) bool {
	found := false
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		i := indexOf(doc.Transactions, id)
		if i < 0 {
			return nil, nil
		}
		found = true
		doc.Transactions[i] = patch.Apply(doc.Transactions[i])
		return []domain.Field{domain.FieldTransactions}, nil
	})
	return found
}

// Transaction looks up one entry by id.
func (s *Store) Transaction(id string) (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.doc.Transactions, id); i >= 0 {
		return s.doc.Transactions[i], true
	}
	return domain.Transaction{}, false
}

func (s *Store) restore(seq uint64) bool {
	restored := false
	_ = s.mutate(SourceLocal, func(doc *domain.Document) ([]domain.Field, error) {
		if s.undo == nil || s.undo.seq != seq {
			return nil, nil
		}
		slot := s.undo
		s.clearUndoLocked()
		if indexOf(doc.Transactions, slot.tx.ID) >= 0 {
			return nil, nil
		}

		i := slot.index
		if i > len(doc.Transactions) {
			i = len(doc.Transactions)
		}
		list := make([]domain.Transaction, 0, len(doc.Transactions)+1)
		list = append(list, doc.Transactions[:i]...)
		list = append(list, slot.tx)
		list = append(list, doc.Transactions[i:]...)
		doc.Transactions = list
		restored = true
		return []domain.Field{domain.FieldTransactions}, nil
	})
	return restored
}

func (s *Store) expireUndo(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.undo != nil && s.undo.seq == seq {
		s.undo = nil
	}
}

// clearUndoLocked drops the undo slot. Must be called with s.mu held.
func (s *Store) clearUndoLocked() {
	if s.undo == nil {
		return
	}
	if s.undo.timer != nil {
		s.undo.timer.Stop()
	}
	s.undo = nil
}

func prepend(list []domain.Transaction, tx domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(list)+1)
	out = append(out, tx)
	return append(out, list...)
}

func indexOf(list []domain.Transaction, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
