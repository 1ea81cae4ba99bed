// Package devstore is a plain record store serving the backend HTTP surface
// the clients sync against. It applies no conflict policy: every write is
// stored as sent and the last write wins.
package devstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Collection string

const (
	Accounts      Collection = "accounts"
	Users         Collection = "users"
	Appointments  Collection = "appointments"
	Messages      Collection = "messages"
	Prescriptions Collection = "prescriptions"
	Medications   Collection = "medications"
	Vitals        Collection = "vitals"
	Alerts        Collection = "alerts"
)

// Collections lists every collection in table order.
var Collections = []Collection{Accounts, Users, Appointments, Messages, Prescriptions, Medications, Vitals, Alerts}

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// RecordStore keeps JSON documents per collection in insertion order.
type RecordStore interface {
	List(ctx context.Context, c Collection) ([]json.RawMessage, error)
	Get(ctx context.Context, c Collection, id string) (json.RawMessage, error)
	// Insert fails with ErrDuplicate when id is taken.
	Insert(ctx context.Context, c Collection, id string, doc json.RawMessage) error
	// Update applies fn to the stored document atomically and returns the
	// new version.
	Update(ctx context.Context, c Collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error)
	Ping(ctx context.Context) error
	Close()
}

// -- typed helpers --

func listAs[T any](ctx context.Context, s RecordStore, c Collection) ([]T, error) {
	docs, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d, &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", c, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func getAs[T any](ctx context.Context, s RecordStore, c Collection, id string) (T, error) {
	var v T
	doc, err := s.Get(ctx, c, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(doc, &v); err != nil {
		return v, fmt.Errorf("decode %s record: %w", c, err)
	}
	return v, nil
}

func insertAs[T any](ctx context.Context, s RecordStore, c Collection, id string, v T) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c, err)
	}
	return s.Insert(ctx, c, id, doc)
}

func updateAs[T any](ctx context.Context, s RecordStore, c Collection, id string, fn func(*T) error) (T, error) {
	var out T
	doc, err := s.Update(ctx, c, id, func(old json.RawMessage) (json.RawMessage, error) {
		var v T
		if err := json.Unmarshal(old, &v); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", c, err)
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(doc, &out); err != nil {
		return out, fmt.Errorf("decode %s record: %w", c, err)
	}
	return out, nil
}
