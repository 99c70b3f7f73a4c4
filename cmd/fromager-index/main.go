// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/fromager-project/fromager/pkg/wheelcache"
	"github.com/pkg/errors"
)

var (
	wheelsRepo = flag.String("wheels-repo", "wheels-repo", "wheel cache root directory to serve")
	addr       = flag.String("addr", ":8080", "listen address")
)

var cache *wheelcache.Cache

func init() {
	flag.Parse()
	cache = &wheelcache.Cache{Root: *wheelsRepo}
	if err := cache.Init(); err != nil {
		log.Fatal(errors.Wrap(err, "initializing wheel cache"))
	}
	if _, err := os.Stat(*wheelsRepo); err != nil {
		log.Fatal(errors.Wrapf(err, "wheels-repo %s is not accessible", *wheelsRepo))
	}
}

func main() {
	log.Printf("Simple index serving %s on %s", *wheelsRepo, *addr)
	if err := http.ListenAndServe(*addr, cache.Mux()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
