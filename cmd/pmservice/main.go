/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package main is a process that hosts prefixes behind an HTTP (and
// WebSockets) API.
//
// POST an operation (see the service package) to /api:
//
//	curl -d '{"load":{"records":[{"name":"six","version":"1.11.0","build":"0"}]}}' localhost:8080/api
//	curl -d '{"records":{}}' localhost:8080/api
//
// GET /dot?prefix=NAME or /report?prefix=NAME for renderings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"

	"github.com/Comcast/packmule/service"
	"github.com/Comcast/packmule/store"
	"github.com/Comcast/packmule/tools"
)

func main() {
	var (
		httpPort = flag.String("httpd", ":8080", "HTTP server port")
		dbFile   = flag.String("db", "", "optional BoltDB file for persistence")
		verbose  = flag.Bool("v", false, "verbosity")
	)

	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := service.NewService()
	s.Verbose = *verbose

	if *dbFile != "" {
		storage, err := store.NewStorage(*dbFile)
		if err != nil {
			log.Fatal(err)
		}
		if err = storage.Open(ctx); err != nil {
			log.Fatal(err)
		}
		defer storage.Close(ctx)
		s.Storage = storage
	}

	http.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		var op service.Op
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			http.Error(w, `{"err":"can't parse: `+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		// An op error travels back in the op itself.
		op.Do(r.Context(), s)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(&op); err != nil {
			log.Printf("encode error %v", err)
		}
	})

	http.HandleFunc("/dot", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		g, err := s.Graph(r.Context(), prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		tools.Dot(g, w, prefix)
	})

	http.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		g, err := s.Graph(r.Context(), prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		tools.RenderReportPage(g, w, prefix, nil)
	})

	if err := WebSocketService(ctx, s); err != nil {
		log.Fatal(err)
	}

	log.Printf("listening on %s", *httpPort)
	log.Fatal(http.ListenAndServe(*httpPort, nil))
}
