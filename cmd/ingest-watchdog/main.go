// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ingest-watchdog polls the ingest daemon's control port and
// raises an alert when PKTIDX stops advancing while recording.
package main // import "github.com/go-lpc/voltage-ingest/cmd/ingest-watchdog"

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		addr = flag.String("addr", "localhost:8866", "[ip]:port of the ingest control server")
		freq = flag.Duration("freq", 30*time.Second, "probing interval")
	)

	flag.Parse()

	log.SetPrefix("ingest-watchdog: ")
	log.SetFlags(0)

	run(*addr, *freq)
}

func run(addr string, freq time.Duration) {
	var (
		tick = time.NewTicker(freq)
		w    = watchdog{addr: addr, freq: freq, alerts: make(map[string]int)}
	)
	defer tick.Stop()

	log.Printf("watching ingest on %q every %v...", addr, freq)
	for range tick.C {
		err := w.probe()
		if err != nil {
			log.Printf("could not probe ingest: %+v", err)
		}
	}
}

type watchdog struct {
	addr string
	freq time.Duration

	last   status
	seeded bool
	alerts map[string]int // alerts already raised, per DAQSTATE
}

type status struct {
	state  string
	pktidx uint64
}

func (w *watchdog) probe() error {
	cur, err := w.status()
	if err != nil {
		return err
	}

	if w.seeded && cur.state == "RECORD" && cur.pktidx == w.last.pktidx {
		w.alert(cur)
	}
	w.last = cur
	w.seeded = true
	return nil
}

// status dials the control server and retrieves DAQSTATE and PKTIDX.
func (w *watchdog) status() (status, error) {
	var st status

	conn, err := net.DialTimeout("tcp", w.addr, 5*time.Second)
	if err != nil {
		return st, fmt.Errorf("could not dial %q: %w", w.addr, err)
	}
	defer conn.Close()

	err = json.NewEncoder(conn).Encode(struct {
		Name string `json:"name"`
	}{Name: "status"})
	if err != nil {
		return st, fmt.Errorf("could not send status request: %w", err)
	}

	var rep struct {
		Msg  string            `json:"msg"`
		Err  string            `json:"err,omitempty"`
		Data map[string]string `json:"data,omitempty"`
	}
	err = json.NewDecoder(conn).Decode(&rep)
	if err != nil {
		return st, fmt.Errorf("could not decode status reply: %w", err)
	}
	if rep.Err != "" {
		return st, fmt.Errorf("status request failed: %s", rep.Err)
	}

	st.state = rep.Data["DAQSTATE"]
	st.pktidx, _ = strconv.ParseUint(rep.Data["PKTIDX"], 10, 64)
	return st, nil
}

func (w *watchdog) alert(st status) {
	log.Printf("PKTIDX didn't advance in the last %v (state=%s, pktidx=%d)",
		w.freq, st.state, st.pktidx,
	)
	w.alerts[st.state]++

	const maxAlerts = 5
	if w.alerts[st.state] < maxAlerts {
		w.alertMail(st)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func (w *watchdog) alertMail(st status) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[ingest-watchdog] PKTIDX stall on %q", w.addr))
	msg.SetBody("text/plain", fmt.Sprintf("ingest: %q\nstate: %s\npktidx: %d\nfreq: %v",
		w.addr, st.state, st.pktidx, w.freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
