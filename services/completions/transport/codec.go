// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// maxContentLength bounds a single frame body.
const maxContentLength = 64 << 20

// Codec reads and writes Content-Length framed messages.
//
// Thread Safety:
//
//	Write is safe for concurrent use. Read must be called from one goroutine.
type Codec struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
}

// NewCodec creates a codec over a server's output (r) and input (w).
func NewCodec(r io.Reader, w io.Writer) *Codec {
	c := &Codec{writer: w}
	if r != nil {
		c.reader = bufio.NewReader(r)
	}
	return c
}

// Read returns the next frame body.
//
// Description:
//
//	Parses headers up to the blank line, then reads exactly Content-Length
//	bytes. Unknown headers are ignored. A bad or missing Content-Length
//	yields an error wrapping ErrFraming; the caller logs it and keeps
//	reading.
//
// Outputs:
//
//	[]byte - The JSON body
//	error - io.EOF at a clean end of stream, ErrFraming-wrapped on a bad
//	        frame, any other read error otherwise
func (c *Codec) Read() ([]byte, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("%w: no reader configured", ErrFraming)
	}

	length := -1
	headers := 0
	var headerErr error
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if headers == 0 && err == io.EOF && strings.TrimSpace(line) == "" {
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if headers == 0 {
				// blank lines between frames are tolerated
				continue
			}
			break
		}
		headers++

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			headerErr = fmt.Errorf("%w: malformed header %q", ErrFraming, line)
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			headerErr = fmt.Errorf("%w: invalid Content-Length %q", ErrFraming, value)
			continue
		}
		length = n
	}

	if headerErr != nil && length < 0 {
		return nil, headerErr
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: missing or zero Content-Length", ErrFraming)
	}
	if length > maxContentLength {
		if _, err := io.CopyN(io.Discard, c.reader, int64(length)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrFraming, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// ReadMessage reads a frame and decodes it. A body that is not a JSON
// object yields an ErrFraming-wrapped error.
func (c *Codec) ReadMessage() (Message, error) {
	body, err := c.Read()
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	return msg, nil
}

// Write marshals v and writes it as one frame.
func (c *Codec) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.WriteRaw(data)
}

// WriteMessage stamps the JSON-RPC version and writes msg.
func (c *Codec) WriteMessage(msg Message) error {
	msg.JSONRPC = JSONRPCVersion
	return c.Write(msg)
}

// WriteRaw writes body as one frame.
func (c *Codec) WriteRaw(body []byte) error {
	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
