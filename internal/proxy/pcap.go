package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// tapPacket is one forwarded datagram queued for the capture file.
type tapPacket struct {
	src     netip.AddrPort
	dst     netip.AddrPort
	payload []byte
	ts      time.Time
}

// PcapTap writes forwarded datagrams to a pcap file, synthesizing an
// IPv4/UDP envelope around each payload. The hand-off from the forwarding
// path is non-blocking: when disk I/O cannot keep up, packets are dropped
// from the capture (never from the proxy) and counted.
type PcapTap struct {
	cancel  context.CancelFunc
	dropped atomic.Uint64
	errch   chan error
	snaps   chan tapPacket
	once    sync.Once
	wc      io.WriteCloser
}

const tapQueueSize = 4096

const tapSnapLen = 65535

// NewPcapTap starts a tap writing to wc. Close flushes and closes wc.
func NewPcapTap(wc io.WriteCloser) *PcapTap {
	ctx, cancel := context.WithCancel(context.Background())
	t := &PcapTap{
		cancel: cancel,
		errch:  make(chan error, 1),
		snaps:  make(chan tapPacket, tapQueueSize),
		wc:     wc,
	}
	go t.saveLoop(ctx)
	return t
}

// Capture queues one datagram for the capture file. Non-IPv4 flows are
// skipped (the synthesized envelope is IPv4 only) and counted as dropped.
func (t *PcapTap) Capture(src, dst netip.AddrPort, payload []byte) {
	src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
	dst = netip.AddrPortFrom(dst.Addr().Unmap(), dst.Port())
	if !src.Addr().Is4() || !dst.Addr().Is4() {
		t.dropped.Add(1)
		return
	}

	snap := make([]byte, len(payload))
	copy(snap, payload)
	select {
	case t.snaps <- tapPacket{src: src, dst: dst, payload: snap, ts: time.Now()}:
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns the number of packets missing from the capture because
// the internal buffer was full or the flow was not IPv4.
func (t *PcapTap) Dropped() uint64 {
	return t.dropped.Load()
}

func (t *PcapTap) saveLoop(ctx context.Context) {
	w := pcapgo.NewWriter(t.wc)
	if err := w.WriteFileHeader(tapSnapLen, layers.LinkTypeIPv4); err != nil {
		t.errch <- err
		return
	}

	// Drain the buffer on exit so Close does not lose queued packets.
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case snap := <-t.snaps:
					if err := t.savePacket(w, snap); err != nil {
						t.errch <- err
						return
					}
				default:
					t.errch <- nil
					return
				}
			}

		case snap := <-t.snaps:
			if err := t.savePacket(w, snap); err != nil {
				t.errch <- err
				return
			}
		}
	}
}

func (t *PcapTap) savePacket(w *pcapgo.Writer, snap tapPacket) error {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(snap.src.Addr().AsSlice()),
		DstIP:    net.IP(snap.dst.Addr().AsSlice()),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(snap.src.Port()),
		DstPort: layers.UDPPort(snap.dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(snap.payload)); err != nil {
		return err
	}

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     snap.ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return w.WritePacket(ci, data)
}

// Close interrupts the background goroutine, waits for it to drain, and
// closes the capture file.
func (t *PcapTap) Close() (err error) {
	t.once.Do(func() {
		t.cancel()
		err1 := <-t.errch
		err2 := t.wc.Close()
		err = errors.Join(err1, err2)
	})
	return
}
