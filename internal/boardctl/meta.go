package boardctl

import (
	"fmt"
	"time"

	"github.com/centaurfirmware/centaurd/internal/bus"
	"github.com/centaurfirmware/centaurd/internal/serial"
)

// metaCache holds the fields parsed from a single trademark-response
// packet: four NUL-padded ASCII fields followed by a fixed trademark
// string.
type metaCache struct {
	serialNo        string
	softwareVersion string
	hardwareVersion string
	build           string
	tm              string
}

const trademarkCmdByte = 0x97
const trademarkResponseType = 0xb4

var cmdTrademark = serial.Command{
	Name: "get_trademark", CmdByte: trademarkCmdByte,
	HasResponse: true, ExpectedResponseType: trademarkResponseType,
}

// GetMeta returns a cached metadata field, fetching and parsing the
// trademark response on first use.
func (c *Controller) GetMeta(key MetaKey) (string, error) {
	if c.meta == nil {
		res := c.bus.RequestResponse(bus.High, cmdTrademark, nil, defaultTimeout, defaultRetries)
		if res.Err != nil {
			return "", res.Err
		}
		c.meta = parseMeta(res.Packet.Payload)
	}

	switch key {
	case MetaSerialNo:
		return c.meta.serialNo, nil
	case MetaSoftwareVersion:
		return c.meta.softwareVersion, nil
	case MetaHardwareVersion:
		return c.meta.hardwareVersion, nil
	case MetaBuild:
		return c.meta.build, nil
	case MetaTM:
		return c.meta.tm, nil
	default:
		return "", fmt.Errorf("boardctl: unknown meta key %d", key)
	}
}

// parseMeta splits the trademark payload into four 8-byte NUL-padded
// fields followed by whatever trademark text remains.
func parseMeta(payload []byte) *metaCache {
	field := func(offset, n int) string {
		if offset+n > len(payload) {
			return ""
		}
		end := offset
		for end < offset+n && payload[end] != 0 {
			end++
		}
		return string(payload[offset:end])
	}
	m := &metaCache{
		serialNo:        field(0, 8),
		softwareVersion: field(8, 8),
		hardwareVersion: field(16, 8),
		build:           field(24, 8),
	}
	if len(payload) > 32 {
		m.tm = field(32, len(payload)-32)
	}
	return m
}

// discoveryTimeout bounds each individual discovery probe/response
// round trip.
const discoveryTimeout = 500 * time.Millisecond

// Discover runs the MCU address handshake: send the address-query command
// with addr1=addr2=0, and require two consecutive 0x90 responses with
// matching addresses before accepting them. A mismatch zeroes the
// addresses and restarts the handshake from scratch.
//
// The outer retry loop backs off exponentially, capped at maxAttempts,
// before surfacing a fatal startup error.
func Discover(arb *bus.Arbiter, maxAttempts int) (addr1, addr2 byte, err error) {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		addr1, addr2, err = discoverOnce(arb)
		if err == nil {
			arb.SetAddress(addr1, addr2)
			return addr1, addr2, nil
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return 0, 0, fmt.Errorf("boardctl: discovery failed after %d attempt(s): %w", maxAttempts, err)
}

var cmdDiscover = serial.Command{
	Name: "request_addr", CmdByte: 0x46,
	HasResponse: true, ExpectedResponseType: serial.DiscoveryProbeType,
}

func discoverOnce(arb *bus.Arbiter) (byte, byte, error) {
	arb.SetAddress(0, 0)

	first := arb.RequestResponse(bus.High, cmdDiscover, nil, discoveryTimeout, 1)
	if first.Err != nil {
		return 0, 0, first.Err
	}
	a1, a2 := first.Packet.Addr1, first.Packet.Addr2

	second := arb.RequestResponse(bus.High, cmdDiscover, nil, discoveryTimeout, 1)
	if second.Err != nil {
		return 0, 0, second.Err
	}
	b1, b2 := second.Packet.Addr1, second.Packet.Addr2

	if a1 != b1 || a2 != b2 {
		return 0, 0, fmt.Errorf("boardctl: discovery address mismatch: %02x%02x != %02x%02x", a1, a2, b1, b2)
	}
	return a1, a2, nil
}
