// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ingest-ctl is an interactive operator console for the ingest
// daemon's JSON control port.
//
// Commands:
//
//	destip <A.B.C.D[+N]>   configure the capture destination(s)
//	start <pktstart> <dwell>
//	stop
//	status
package main // import "github.com/go-lpc/voltage-ingest/cmd/ingest-ctl"

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
)

func main() {
	addr := flag.String("addr", "localhost:8866", "[ip]:port of the ingest control server")

	flag.Parse()

	log.SetPrefix("ingest-ctl: ")
	log.SetFlags(0)

	err := run(*addr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not dial control server %q: %w", addr, err)
	}
	defer conn.Close()

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	history := filepath.Join(os.TempDir(), ".ingest-ctl-history")
	if f, err := os.Open(history); err == nil {
		_, _ = term.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(history)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	var (
		enc = json.NewEncoder(conn)
		dec = json.NewDecoder(conn)
	)

	for {
		line, err := term.Prompt("ingest> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return nil
		}

		req := struct {
			Name string   `json:"name"`
			Args []string `json:"args,omitempty"`
		}{Name: fields[0], Args: fields[1:]}

		err = enc.Encode(req)
		if err != nil {
			return fmt.Errorf("could not send command %q: %w", req.Name, err)
		}

		var rep struct {
			Msg  string            `json:"msg"`
			Err  string            `json:"err,omitempty"`
			Data map[string]string `json:"data,omitempty"`
		}
		err = dec.Decode(&rep)
		if err != nil {
			return fmt.Errorf("could not decode reply: %w", err)
		}

		switch {
		case rep.Err != "":
			fmt.Printf("error: %s\n", rep.Err)
		case len(rep.Data) > 0:
			keys := make([]string, 0, len(rep.Data))
			for k := range rep.Data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%-8s = %s\n", k, rep.Data[k])
			}
		default:
			fmt.Printf("%s\n", rep.Msg)
		}
	}
}
