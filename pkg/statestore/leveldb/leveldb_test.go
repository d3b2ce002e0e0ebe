// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leveldb_test

import (
	"io"
	"testing"

	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/statestore/leveldb"
	"github.com/rafflekit/rafflekit/pkg/statestore/test"
	"github.com/rafflekit/rafflekit/pkg/storage"
)

func TestPersistentStateStore(t *testing.T) {
	t.Parallel()

	logger := logging.New(io.Discard, 0)

	test.Run(t, func(t *testing.T) storage.StateStorer {
		t.Helper()

		store, err := leveldb.NewStateStore(t.TempDir(), logger)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Fatal(err)
			}
		})

		return store
	})

	test.RunPersist(t, func(t *testing.T, dir string) storage.StateStorer {
		t.Helper()

		store, err := leveldb.NewStateStore(dir, logger)
		if err != nil {
			t.Fatal(err)
		}

		return store
	})
}

func TestInMemoryStateStore(t *testing.T) {
	t.Parallel()

	test.Run(t, func(t *testing.T) storage.StateStorer {
		t.Helper()

		store, err := leveldb.NewInMemoryStateStore(logging.New(io.Discard, 0))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Fatal(err)
			}
		})

		return store
	})
}
