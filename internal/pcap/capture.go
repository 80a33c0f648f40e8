// Package pcap reads pcap and pcapng captures with the pure-Go gopacket
// readers and feeds TCP and UDP payloads into decode engines.
package pcap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/ip4defrag"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/wiredecode/internal/errors"
	"github.com/tturner/wiredecode/internal/reassembly"
)

// pcapng section header block type, also its magic.
const ngMagic = 0x0A0D0D0A

// Packet is the transport view of one captured frame.
type Packet struct {
	Timestamp time.Time
	Transport string // "tcp" or "udp"
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte
	FIN       bool
	RST       bool
}

// Key is the directional session key for the packet's flow.
func (p Packet) Key() reassembly.SessionKey {
	return streamKey(p.SrcIP, p.SrcPort, p.DstIP, p.DstPort)
}

// ReverseKey is the key of the opposite direction.
func (p Packet) ReverseKey() reassembly.SessionKey {
	return streamKey(p.DstIP, p.DstPort, p.SrcIP, p.SrcPort)
}

func streamKey(srcIP string, srcPort uint16, dstIP string, dstPort uint16) reassembly.SessionKey {
	if srcIP == "" {
		srcIP = "unknown"
	}
	if dstIP == "" {
		dstIP = "unknown"
	}
	return reassembly.SessionKey(fmt.Sprintf("%s:%d->%s:%d", srcIP, srcPort, dstIP, dstPort))
}

// Capture is an open capture file.
type Capture struct {
	path      string
	file      *os.File
	source    gopacket.PacketDataSource
	linkType  layers.LinkType
	format    string
	defrag    *ip4defrag.IPv4Defragmenter
	frames    int
	truncated bool
}

// Open opens a classic pcap or pcapng file, chosen by its magic number.
// Errors are wrapped for display.
func Open(path string) (*Capture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapCaptureError(fmt.Errorf("open capture: %w", err), path)
	}
	c, err := newCapture(file)
	if err != nil {
		file.Close()
		return nil, errors.WrapCaptureError(err, path)
	}
	c.path = path
	c.file = file
	return c, nil
}

func newCapture(r io.Reader) (*Capture, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture magic: %w", err)
	}

	c := &Capture{defrag: ip4defrag.NewIPv4Defragmenter()}
	if binary.LittleEndian.Uint32(magic) == ngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("read pcapng header: %w", err)
		}
		c.source, c.linkType, c.format = ng, ng.LinkType(), "pcapng"
	} else {
		rd, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("read pcap header: %w", err)
		}
		c.source, c.linkType, c.format = rd, rd.LinkType(), "pcap"
	}
	if !supportedLinkType(c.linkType) {
		return nil, fmt.Errorf("unsupported link type %s (%d)", c.linkType, int(c.linkType))
	}
	return c, nil
}

func supportedLinkType(lt layers.LinkType) bool {
	switch lt {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6,
		layers.LinkTypeLinuxSLL, layers.LinkTypeNull, layers.LinkTypeLoop:
		return true
	}
	return false
}

// LinkType returns the capture's link layer.
func (c *Capture) LinkType() layers.LinkType { return c.linkType }

// Format returns "pcap" or "pcapng".
func (c *Capture) Format() string { return c.format }

// Frames returns how many frames have been read.
func (c *Capture) Frames() int { return c.frames }

// Truncated reports whether the capture ended mid-record.
func (c *Capture) Truncated() bool { return c.truncated }

// Close releases the underlying file.
func (c *Capture) Close() error {
	if c.file == nil {
		return nil
	}
	return c.file.Close()
}

// Each calls fn for every TCP or UDP packet in capture order. Frames with
// no transport layer are skipped. A capture cut off mid-record ends the
// walk without error; Truncated reports it.
func (c *Capture) Each(fn func(Packet) error) error {
	src := gopacket.NewPacketSource(c.source, c.linkType)
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		packet, err := src.NextPacket()
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			c.truncated = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", c.frames+1, err)
		}
		c.frames++

		p, ok := c.extract(packet)
		if !ok {
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

// extract pulls the transport payload out of a frame, reassembling IPv4
// fragments first.
func (c *Capture) extract(packet gopacket.Packet) (Packet, bool) {
	var p Packet
	if md := packet.Metadata(); md != nil {
		p.Timestamp = md.Timestamp
	}
	netLayer := packet.NetworkLayer()
	if netLayer != nil {
		src, dst := netLayer.NetworkFlow().Endpoints()
		p.SrcIP = src.String()
		p.DstIP = dst.String()
	}

	if ip4, ok := netLayer.(*layers.IPv4); ok && isFragment(ip4) {
		whole, err := c.defrag.DefragIPv4WithTimestamp(ip4, p.Timestamp)
		if err != nil || whole == nil {
			return Packet{}, false
		}
		packet = gopacket.NewPacket(whole.Payload, whole.Protocol.LayerType(), gopacket.Default)
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		p.Transport = "tcp"
		p.SrcPort = uint16(tcp.SrcPort)
		p.DstPort = uint16(tcp.DstPort)
		p.Payload = tcp.Payload
		p.FIN = tcp.FIN
		p.RST = tcp.RST
		return p, true
	}
	if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		p.Transport = "udp"
		p.SrcPort = uint16(udp.SrcPort)
		p.DstPort = uint16(udp.DstPort)
		p.Payload = udp.Payload
		return p, true
	}
	return Packet{}, false
}

func isFragment(ip *layers.IPv4) bool {
	if ip.Flags&layers.IPv4DontFragment != 0 {
		return false
	}
	return ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0
}

// Discard drops IPv4 fragment groups older than t.
func (c *Capture) Discard(t time.Time) int {
	return c.defrag.DiscardOlderThan(t)
}

// CollectFiles expands path into capture files. A file is returned as is;
// a directory is walked for .pcap, .pcapng and .cap files in sorted order.
func CollectFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapCaptureError(err, path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".pcap", ".pcapng", ".cap":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk captures: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
