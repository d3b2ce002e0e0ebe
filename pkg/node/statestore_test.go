// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node_test

import (
	"errors"
	"io"
	"testing"

	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/node"
	"github.com/rafflekit/rafflekit/pkg/storage"
)

func TestInitStateStore(t *testing.T) {
	t.Parallel()

	logger := logging.New(io.Discard, 0)
	dataDir := t.TempDir()

	store, err := node.InitStateStore(logger, dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put("key", "value"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = node.InitStateStore(logger, dataDir)
	if err != nil {
		t.Fatal(err)
	}
	var got string
	if err := store.Get("key", &got); err != nil {
		t.Fatal(err)
	}
	if got != "value" {
		t.Fatalf("got %q, want %q", got, "value")
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	mem, err := node.InitStateStore(logger, "")
	if err != nil {
		t.Fatal(err)
	}
	defer mem.Close()
	if err := mem.Get("key", &got); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("got error %v, want %v", err, storage.ErrNotFound)
	}
}
