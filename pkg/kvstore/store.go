package kvstore

import (
	"encoding/json"
)

type Txn[K comparable, V any] interface {
	Get(k K) (v V, ok bool)
	Set(k K, v V)
	Del(k K)
}

// Store - threadsafe store, mutated only inside an Update closure
type Store[K comparable, V any] interface {
	Update(update func(txn Txn[K, V]) any) any
}

type MemStore[K comparable, V any] interface {
	Store[K, V]
	Keys() []K
}

// StringStore - string-keyed store with key prefixing, backing for typed stores
type StringStore interface {
	Store[string, string]
	Append(prefix string) StringStore
}

func zero[T any]() T {
	var v T
	return v
}

// MakeStoreFromStringStore - view a StringStore as a typed store via JSON encoding
func MakeStoreFromStringStore[K comparable, V any](ss StringStore) Store[K, V] {
	return &storeKV[K, V]{ss: ss}
}

type storeKV[K comparable, V any] struct {
	ss StringStore
}

func (s *storeKV[K, V]) Update(update func(txn Txn[K, V]) any) any {
	var out any
	s.ss.Update(func(txn Txn[string, string]) any {
		out = update(&txnKV[K, V]{txn: txn})
		return nil
	})
	return out
}

type txnKV[K comparable, V any] struct {
	txn Txn[string, string]
}

func (t *txnKV[K, V]) Get(k K) (v V, ok bool) {
	vs, ok := t.txn.Get(mustMarshal(k))
	if !ok {
		return zero[V](), false
	}
	if err := json.Unmarshal([]byte(vs), &v); err != nil {
		panic(err)
	}
	return v, true
}

func (t *txnKV[K, V]) Set(k K, v V) {
	t.txn.Set(mustMarshal(k), mustMarshal(v))
}

func (t *txnKV[K, V]) Del(k K) {
	t.txn.Del(mustMarshal(k))
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
