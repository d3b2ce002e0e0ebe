// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test holds the conformance suite shared by the
// storage.StateStorer implementations.
package test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rafflekit/rafflekit/pkg/storage"
)

const (
	key1 = "key1" // stores the serialized type
	key2 = "key2" // stores a json array
)

type Serializing struct {
	value           string
	marshalCalled   bool
	unmarshalCalled bool
}

func (st *Serializing) MarshalBinary() (data []byte, err error) {
	d := []byte(st.value)
	st.marshalCalled = true

	return d, nil
}

func (st *Serializing) UnmarshalBinary(data []byte) (err error) {
	st.value = string(data)
	st.unmarshalCalled = true
	return nil
}

// Run executes the suite against fresh stores returned by f.
func Run(t *testing.T, f func(t *testing.T) storage.StateStorer) {
	t.Helper()

	t.Run("put_get", func(t *testing.T) {
		store := f(t)
		value1 := &Serializing{value: "value1"}
		value2 := []string{"a", "b", "c"}
		insertValues(t, store, value1, value2)
		testPersistedValues(t, store, value1, value2)
	})

	t.Run("iterator", func(t *testing.T) {
		testStoreIterator(t, f(t))
	})

	t.Run("iterator_stop", func(t *testing.T) {
		store := f(t)
		for _, k := range []string{"stop_a", "stop_b", "stop_c"} {
			if err := store.Put(k, k); err != nil {
				t.Fatal(err)
			}
		}
		var visited int
		err := store.Iterate("stop_", func(_, _ []byte) (bool, error) {
			visited++
			return true, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if visited != 1 {
			t.Fatalf("visited %d entries after stop, want 1", visited)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := f(t)
		if err := store.Put("gone", "soon"); err != nil {
			t.Fatal(err)
		}
		if err := store.Delete("gone"); err != nil {
			t.Fatal(err)
		}
		var v string
		if err := store.Get("gone", &v); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
		}
	})
}

// RunPersist checks that values survive closing and reopening a store
// rooted in the same directory.
func RunPersist(t *testing.T, f func(t *testing.T, dir string) storage.StateStorer) {
	t.Helper()

	dir := t.TempDir()

	store := f(t, dir)
	value1 := &Serializing{value: "value1"}
	value2 := []string{"a", "b", "c"}
	insertValues(t, store, value1, value2)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store = f(t, dir)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})
	testPersistedValues(t, store, value1, value2)
}

func insertValues(t *testing.T, store storage.StateStorer, value1 *Serializing, value2 []string) {
	t.Helper()

	err := store.Put(key1, value1)
	if err != nil {
		t.Fatal(err)
	}

	if !value1.marshalCalled {
		t.Fatal("binaryMarshaller not called on serialized type")
	}

	err = store.Put(key2, value2)
	if err != nil {
		t.Fatal(err)
	}
}

func testPersistedValues(t *testing.T, store storage.StateStorer, value1 *Serializing, value2 []string) {
	t.Helper()

	v := &Serializing{}
	err := store.Get(key1, v)
	if err != nil {
		t.Fatal(err)
	}

	if !v.unmarshalCalled {
		t.Fatal("unmarshaler not called")
	}

	if v.value != value1.value {
		t.Fatalf("expected persisted to be %s but got %s", value1.value, v.value)
	}

	s := []string{}
	err = store.Get(key2, &s)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(value2, s); diff != "" {
		t.Fatalf("deserialized data mismatch (-want +got):\n%s", diff)
	}
}

func testStoreIterator(t *testing.T, store storage.StateStorer) {
	t.Helper()

	storePrefix := "test_"
	err := store.Put(storePrefix+"key1", "value1")
	if err != nil {
		t.Fatal(err)
	}

	// do not include prefix in one of the entries
	err = store.Put("key2", "value2")
	if err != nil {
		t.Fatal(err)
	}

	err = store.Put(storePrefix+"key3", "value3")
	if err != nil {
		t.Fatal(err)
	}

	entries := make(map[string]string)

	entriesIterFunction := func(key []byte, value []byte) (stop bool, err error) {
		var entry string
		err = json.Unmarshal(value, &entry)
		if err != nil {
			t.Fatal(err)
		}
		entries[string(key)] = entry
		return stop, err
	}

	err = store.Iterate(storePrefix, entriesIterFunction)
	if err != nil {
		t.Fatal(err)
	}

	expectedEntries := map[string]string{"test_key1": "value1", "test_key3": "value3"}

	if diff := cmp.Diff(expectedEntries, entries); diff != "" {
		t.Fatalf("store entries mismatch (-want +got):\n%s", diff)
	}
}
