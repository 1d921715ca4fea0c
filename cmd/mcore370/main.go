/*
 * mcore370 - Command-line entry point.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Command mcore370 loads a memory image and runs the interpreter core to
// completion or halt. It accepts the CLI surface spec.md §6 requires --
// a configuration file, a log destination, and the history-buffer
// length -- and explicitly does not implement an interactive command
// reader or front-end console; those are out-of-scope external
// collaborators.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/mcore370/channel"
	"github.com/rcornwell/mcore370/config"
	"github.com/rcornwell/mcore370/cpu"
	"github.com/rcornwell/mcore370/decode"
	"github.com/rcornwell/mcore370/event"
	"github.com/rcornwell/mcore370/logger"
	"github.com/rcornwell/mcore370/memory"
	"github.com/rcornwell/mcore370/translate"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optImage := getopt.StringLong("image", 'i', "", "Memory image to load")
	optLoadAddr := getopt.Uint32Long("load-addr", 'a', 0, "Load address for --image")
	optHistory := getopt.IntLong("history", 0, -1, "Override the history-buffer length")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var out *os.File = os.Stderr
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcore370: %v\n", err)
			os.Exit(1)
		}
		out = f
	}
	log := slog.New(logger.New(out, slog.LevelInfo, false))
	slog.SetDefault(log)

	cfg := config.Default()
	if *optConfig != "" {
		loaded, err := config.Load(*optConfig)
		if err != nil {
			log.Error("loading configuration", "file", *optConfig, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *optHistory >= 0 {
		cfg.HistoryLength = *optHistory
	}

	mem := memory.New(int(memory.MaxWords))
	xlate := translate.New()
	xlate.Reconfigure(translate.Config{
		PageSize:  translate.PageSize(cfg.PageSize),
		SegSize:   translate.SegSize(cfg.SegSize),
		CacheSize: cfg.TLBCacheSize,
	})
	ch := channel.New(mem)
	events := &event.Queue{}
	hist := decode.NewHistory(cfg.HistoryLength)

	if *optImage != "" {
		data, err := os.ReadFile(*optImage)
		if err != nil {
			log.Error("reading memory image", "file", *optImage, "error", err)
			os.Exit(1)
		}
		if !mem.LoadImage(*optLoadAddr, data) {
			log.Error("memory image does not fit", "file", *optImage, "addr", *optLoadAddr)
			os.Exit(1)
		}
	}

	machine := cpu.New(mem, xlate, ch, events, hist)
	machine.PSW.Wait = false

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("mcore370 started")
	done := make(chan struct{})
	go run(machine, events, done)

	select {
	case <-sigChan:
		log.Info("interrupted")
	case <-done:
		log.Info("halted")
	}
}

// run drives the interpreter's cooperative loop: each Step may consume
// an instruction-count budget unit, after which the event scheduler is
// serviced, per spec.md §5.
func run(c *cpu.CPU, events *event.Queue, done chan<- struct{}) {
	const budget = 1000
	count := 0
	for !c.Halted() {
		if !c.Step() {
			break
		}
		count++
		if count >= budget {
			events.Advance(count)
			count = 0
		}
	}
	close(done)
}
