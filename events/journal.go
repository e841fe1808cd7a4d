package events

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/energywebfoundation/worker-contract-sub000/hash"
)

// Store is the transactional view the journal appends through.
type Store interface {
	Get(key []byte, v any) error
	Put(key []byte, v any) error
	Has(key []byte) (bool, error)
}

// Scanner reads records in key order starting at from (inclusive).
type Scanner interface {
	Iterate(prefix, from []byte, fn func(key []byte, decode func(v any) error) error) error
}

// Record is a journaled event.
type Record struct {
	Seq     uint64
	Name    string
	Time    int64
	Payload []byte
}

type recordJSON struct {
	Seq     uint64          `json:"seq"`
	Name    string          `json:"name"`
	Time    int64           `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON embeds the payload as JSON rather than base64.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Seq: r.Seq, Name: r.Name, Time: r.Time, Payload: r.Payload})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	// payloads are kept compact whatever spacing the sender used
	var payload bytes.Buffer
	if len(v.Payload) > 0 {
		if err := json.Compact(&payload, v.Payload); err != nil {
			return err
		}
	}
	*r = Record{Seq: v.Seq, Name: v.Name, Time: v.Time}
	if payload.Len() > 0 {
		r.Payload = payload.Bytes()
	}
	return nil
}

var (
	headKey      = []byte("journal/head")
	recordPrefix = []byte("journal/r/")
	errStop      = errors.New("stop")
)

func recordKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}

// Append journals evs in order and returns their records.
func Append(s Store, now time.Time, evs []Event) ([]Record, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	var head uint64
	ok, err := s.Has(headKey)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := s.Get(headKey, &head); err != nil {
			return nil, fmt.Errorf("reading journal head: %w", err)
		}
	}

	records := make([]Record, 0, len(evs))
	for _, ev := range evs {
		payload, err := hash.MarshalJSON(ev)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", ev.EventName(), err)
		}
		head++
		record := Record{Seq: head, Name: ev.EventName(), Time: now.Unix(), Payload: payload}
		if err := s.Put(recordKey(head), record); err != nil {
			return nil, fmt.Errorf("journaling %s: %w", record.Name, err)
		}
		records = append(records, record)
	}
	if err := s.Put(headKey, head); err != nil {
		return nil, fmt.Errorf("writing journal head: %w", err)
	}
	return records, nil
}

// Since returns up to limit records with a sequence number above after.
func Since(s Scanner, after uint64, limit int) ([]Record, error) {
	var records []Record
	err := s.Iterate(recordPrefix, recordKey(after+1), func(_ []byte, decode func(v any) error) error {
		if limit > 0 && len(records) >= limit {
			return errStop
		}
		var record Record
		if err := decode(&record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return records, nil
}
