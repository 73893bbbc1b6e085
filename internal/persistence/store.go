package persistence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Store wraps BadgerDB as the append-only move log. It is a narrow
// interface: callers never see the underlying
// key layout, only Game/Moves/AppendMove/Takeback.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the BadgerDB database under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func gameKey(id uint64) []byte {
	return []byte(fmt.Sprintf("game:%020d", id))
}

func moveKey(gameID, seq uint64) []byte {
	return []byte(fmt.Sprintf("move:%020d:%020d", gameID, seq))
}

func movePrefix(gameID uint64) []byte {
	return []byte(fmt.Sprintf("move:%020d:", gameID))
}

func movesCountKey(gameID uint64) []byte {
	return []byte(fmt.Sprintf("movecount:%020d", gameID))
}

const keyNextGameID = "meta:next_game_id"

// NewGame allocates a game id and writes the initial row. It returns the
// assigned id.
func (s *Store) NewGame(g Game) (uint64, error) {
	var id uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		var next uint64
		item, err := txn.Get([]byte(keyNextGameID))
		switch {
		case err == badger.ErrKeyNotFound:
			next = 1
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				next = binary.BigEndian.Uint64(val) + 1
				return nil
			}); err != nil {
				return err
			}
		}

		id = next
		g.ID = id
		if g.CreatedAt.IsZero() {
			g.CreatedAt = time.Now()
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		if err := txn.Set([]byte(keyNextGameID), buf); err != nil {
			return err
		}

		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		if err := txn.Set(gameKey(id), data); err != nil {
			return err
		}
		return txn.Set(movesCountKey(id), make([]byte, 8))
	})
	return id, err
}

// Game returns the game row for id.
func (s *Store) Game(id uint64) (Game, error) {
	var g Game
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	return g, err
}

// SetResult updates the result and termination reason of a game, e.g. on
// checkmate, resignation, or a flag fall.
func (s *Store) SetResult(gameID uint64, result, termination string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(gameKey(gameID))
		if err != nil {
			return err
		}
		var g Game
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		}); err != nil {
			return err
		}
		g.Result = result
		g.Termination = termination
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return txn.Set(gameKey(gameID), data)
	})
}

func (s *Store) moveCount(txn *badger.Txn, gameID uint64) (uint64, error) {
	item, err := txn.Get(movesCountKey(gameID))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(val []byte) error {
		count = binary.BigEndian.Uint64(val)
		return nil
	})
	return count, err
}

func (s *Store) setMoveCount(txn *badger.Txn, gameID, count uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, count)
	return txn.Set(movesCountKey(gameID), buf)
}

// AppendMove writes the next move row for a game. It
// assigns the sequence number itself; callers never pick it.
func (s *Store) AppendMove(gameID uint64, rec MoveRecord) (uint64, error) {
	var seq uint64
	err := s.db.Update(func(txn *badger.Txn) error {
		count, err := s.moveCount(txn, gameID)
		if err != nil {
			return err
		}
		seq = count
		rec.GameID = gameID
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := txn.Set(moveKey(gameID, seq), data); err != nil {
			return err
		}
		return s.setMoveCount(txn, gameID, count+1)
	})
	return seq, err
}

// Takeback deletes the most recent moves row for the current game. It is a no-op, returning
// ErrNoMoves, if the game has no recorded moves.
var ErrNoMoves = fmt.Errorf("persistence: no moves to take back")

func (s *Store) Takeback(gameID uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		count, err := s.moveCount(txn, gameID)
		if err != nil {
			return err
		}
		if count == 0 {
			return ErrNoMoves
		}
		last := count - 1
		if err := txn.Delete(moveKey(gameID, last)); err != nil {
			return err
		}
		return s.setMoveCount(txn, gameID, last)
	})
}

// Moves returns all recorded moves for a game in play order.
func (s *Store) Moves(gameID uint64) ([]MoveRecord, error) {
	var moves []MoveRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = movePrefix(gameID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec MoveRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			moves = append(moves, rec)
		}
		return nil
	})
	return moves, err
}
