package feed

import (
	"context"
	"strings"

	"github.com/banshee-data/lostnav/internal/serialmux"
)

// ServeLines subscribes to src and hands every JSON line to h until the
// subscription closes or ctx is cancelled. Lines that do not start with '{'
// are device chatter and are skipped.
func ServeLines(ctx context.Context, src serialmux.LineSource, h PayloadHandler) error {
	id, lines := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				opsf("serial feed subscription closed")
				return nil
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "{") {
				if line != "" {
					tracef("serial: skipping non-JSON line %.60q", line)
				}
				continue
			}
			if err := h.HandlePayload(ctx, []byte(line)); err != nil {
				diagf("serial line rejected: %v", err)
			}
		}
	}
}
