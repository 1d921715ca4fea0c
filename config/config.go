/*
 * mcore370 - Configuration file parser.
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

// Package config parses the core's configuration file: one directive per
// line, '#' starts a comment, directives are "key value" or "key=value".
// It is a trimmed form of the teacher's device-model configuration
// grammar: peripheral device models are out of scope (see spec Non-goals),
// so only the directives the interpreter core itself consumes --
// translator geometry, history buffer length, log destination, and
// feature switches -- are recognised.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config holds every knob the CLI-acceptance contract exposes.
type Config struct {
	PageSize      uint32 // bytes, power of two (2048 or 4096)
	SegSize       uint32 // bytes, power of two (64K or 1M)
	TLBCacheSize  int    // translator cache entries, default 32
	HistoryLength int    // decode.History ring buffer length
	LogFile       string
	Features      map[string]bool // named feature switches, e.g. "ecmode"
}

// Default returns the configuration the core boots with absent a file.
func Default() Config {
	return Config{
		PageSize:      4096,
		SegSize:       1 << 20,
		TLBCacheSize:  32,
		HistoryLength: 256,
		Features:      map[string]bool{},
	}
}

// Load reads directives from name, applying each on top of Default().
func Load(name string) (Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		if value == "" {
			parts := strings.Fields(key)
			key = parts[0]
			if len(parts) > 1 {
				value = strings.Join(parts[1:], " ")
			}
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if err := apply(&cfg, key, value); err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func apply(cfg *Config, key, value string) error {
	switch key {
	case "pagesize":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("pagesize: %w", err)
		}
		cfg.PageSize = uint32(n)
	case "segsize":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("segsize: %w", err)
		}
		cfg.SegSize = uint32(n)
	case "tlbcache":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("tlbcache: %w", err)
		}
		cfg.TLBCacheSize = n
	case "history":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		cfg.HistoryLength = n
	case "log":
		cfg.LogFile = value
	case "feature":
		name, enabled := strings.TrimSpace(value), true
		if strings.HasPrefix(name, "no") {
			name, enabled = strings.TrimPrefix(name, "no"), false
		}
		cfg.Features[name] = enabled
	default:
		return fmt.Errorf("unknown directive %q", key)
	}
	return nil
}
