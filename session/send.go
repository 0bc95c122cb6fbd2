package session

import (
	"time"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/envelope"
	"github.com/obsidionlabs/bridge-go/internal/defaults"
)

// SendSecure runs the outbound pipeline from spec §4.2: params == nil
// produces a single unchunked envelope; otherwise the payload is
// deflate-compressed, base64-encoded, and split into CHUNK_SIZE pieces with
// a pacing delay between writes. It returns false on any send-time failure,
// matching "send_message returns false on any send-time failure" (spec §7).
func (c *Context) SendSecure(method string, params any) bool {
	c.mu.Lock()
	codec := c.codec()
	c.mu.Unlock()

	if params == nil {
		id, err := bridgecrypto.RandomHexID(16)
		if err != nil {
			return false
		}
		frame, err := codec.SealSinglePart(id, method)
		if err != nil {
			return false
		}
		return c.writeAndRememberLocked(frame)
	}

	n, err := envelope.ChunkCount(params)
	if err != nil {
		return false
	}
	ids := make([]string, n)
	for i := range ids {
		id, err := bridgecrypto.RandomHexID(16)
		if err != nil {
			return false
		}
		ids[i] = id
	}
	groupID, err := bridgecrypto.RandomHexID(16)
	if err != nil {
		return false
	}
	frames, err := codec.SealChunked(ids, groupID, method, params)
	if err != nil {
		return false
	}

	for i, frame := range frames {
		if !c.writeAndRememberLocked(frame) {
			return false
		}
		if i < len(frames)-1 {
			time.Sleep(defaults.ChunkPace)
		}
	}
	return true
}

func (c *Context) writeAndRememberLocked(frame envelope.OutboundFrame) bool {
	c.mu.Lock()
	c.seenMessageIDs[frame.ID] = struct{}{}
	cb := c.cb.WriteFrame
	c.mu.Unlock()

	if cb == nil {
		return false
	}
	return cb(frame.Outer) == nil
}
