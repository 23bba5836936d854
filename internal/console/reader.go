//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package console reads terminal input lines that can be abandoned on context cancellation.
package console

import (
	"bufio"
	"context"
	"io"
	"sync"
)

type lineResult struct {
	line string
	err  error
}

// Reader reads lines from a blocking source such as stdin.
// At most one underlying read is in flight; a line that arrives after its
// caller gave up is handed to the next ReadLine call instead of being lost.
type Reader struct {
	in *bufio.Reader

	mu      sync.Mutex
	pending chan lineResult
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{in: bufio.NewReader(r)}
}

// ReadLine returns the next line including its newline, or ctx.Err() if ctx
// ends first. At end of input it returns the remaining text and io.EOF.
func (r *Reader) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	ch := r.pending
	if ch == nil {
		ch = make(chan lineResult, 1)
		r.pending = ch
		go func() {
			line, err := r.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
	}
	r.mu.Unlock()

	select {
	case res := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
