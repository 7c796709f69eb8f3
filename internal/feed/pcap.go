package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayConfig controls a capture replay.
type ReplayConfig struct {
	// UDPPort selects datagrams by destination port. Zero accepts any port.
	UDPPort int
	// Speed scales the capture's inter-packet gaps. Zero replays as fast as
	// possible; 1 replays in real time.
	Speed float64
}

// ReplayStats summarises a finished replay.
type ReplayStats struct {
	Packets  int
	Payloads int
	Rejected int
	Elapsed  time.Duration
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// ReplayPCAP feeds the UDP payloads of a pcap or pcapng capture to h in
// capture order.
func ReplayPCAP(ctx context.Context, path string, cfg ReplayConfig, h PayloadHandler) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()

	var r packetReader
	if strings.EqualFold(filepath.Ext(path), ".pcapng") {
		r, err = pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(f)
	}
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to read PCAP header of %s: %w", path, err)
	}
	return replay(ctx, r, cfg, h)
}

func replay(ctx context.Context, r packetReader, cfg ReplayConfig, h PayloadHandler) (ReplayStats, error) {
	var st ReplayStats
	start := time.Now()
	var firstCapture time.Time

	for {
		if err := ctx.Err(); err != nil {
			opsf("PCAP replay stopping due to context cancellation (processed %d packets)", st.Packets)
			return st, err
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			st.Elapsed = time.Since(start)
			opsf("PCAP replay complete: %d packets, %d payloads (%d rejected) in %v", st.Packets, st.Payloads, st.Rejected, st.Elapsed)
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("PCAP read failed after %d packets: %w", st.Packets, err)
		}
		st.Packets++

		packet := gopacket.NewPacket(data, r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if cfg.UDPPort != 0 && int(udp.DstPort) != cfg.UDPPort {
			continue
		}

		if cfg.Speed > 0 {
			if firstCapture.IsZero() {
				firstCapture = ci.Timestamp
			}
			due := time.Duration(float64(ci.Timestamp.Sub(firstCapture)) / cfg.Speed)
			if wait := due - time.Since(start); wait > 0 {
				if err := sleepCtx(ctx, wait); err != nil {
					return st, err
				}
			}
		}

		st.Payloads++
		if err := h.HandlePayload(ctx, udp.Payload); err != nil {
			st.Rejected++
			diagf("PCAP packet %d rejected: %v", st.Packets, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
