package serial

// Command is a named entry from the command table: a command byte, the
// response type it expects (if any), a default payload, and whether it
// frames short. 0x83 polls field/lift-place
// events expecting an 0x85 reply, 0x94 polls buttons expecting an 0xb1
// reply, 0xf0 requests the full occupancy snapshot, 0xb0 drives LEDs,
// 0xb1 also doubles as the beep command, 0xb2 requests sleep, and 0x87
// is the pre-handshake address-discovery probe.
type Command struct {
	Name                string
	CmdByte             byte
	HasResponse         bool
	ExpectedResponseType byte
	DefaultPayload      []byte
	IsShort             bool
}

var (
	CmdGetFieldEvents = Command{
		Name: "get_field_events", CmdByte: 0x83,
		HasResponse: true, ExpectedResponseType: 0x85,
		IsShort: true,
	}
	CmdGetButtons = Command{
		Name: "get_buttons", CmdByte: 0x94,
		HasResponse: true, ExpectedResponseType: 0xb1,
		IsShort: true,
	}
	CmdGetState = Command{
		Name: "get_state", CmdByte: 0xf0,
		HasResponse: true, ExpectedResponseType: 0xf0,
		DefaultPayload: []byte{0x7f},
	}
	CmdLEDsOff = Command{
		Name: "leds_off", CmdByte: 0xb0,
		DefaultPayload: []byte{0x00},
	}
	CmdLED = Command{
		Name: "led", CmdByte: 0xb0,
	}
	CmdLEDFromTo = Command{
		Name: "led_from_to", CmdByte: 0xb0,
	}
	CmdLEDArray = Command{
		Name: "led_array", CmdByte: 0xb0,
	}
	CmdBeep = Command{
		Name: "beep", CmdByte: 0xb1,
	}
	CmdSleep = Command{
		Name: "sleep", CmdByte: 0xb2,
		HasResponse: true, ExpectedResponseType: 0xb2,
		DefaultPayload: []byte{0x0a},
	}
	CmdGetBatteryState = Command{
		Name: "get_battery_state", CmdByte: 0x98,
		HasResponse: true, ExpectedResponseType: 0xb5,
	}
	CmdNotifyEnable = Command{
		Name: "notify_enable", CmdByte: 0x58,
		HasResponse: true, ExpectedResponseType: 0xa3,
		DefaultPayload: []byte{0x01},
	}
)

// Beep tone payloads, one fixed note sequence per kind.
var (
	BeepGeneralPayload   = []byte{0x4c, 0x08}
	BeepFactoryPayload   = []byte{0x4c, 0x40}
	BeepPowerOffPayload  = []byte{0x4c, 0x08, 0x48, 0x08}
	BeepPowerOnPayload   = []byte{0x48, 0x08, 0x4c, 0x08}
	BeepWrongPayload     = []byte{0x4e, 0x0c, 0x48, 0x10}
	BeepWrongMovePayload = []byte{0x48, 0x08}
)

// DiscoveryProbeType is the type byte carried by the MCU's address-
// discovery response: "the response of type 0x90 carries the
// real addr1, addr2 in its header."
const DiscoveryProbeType = 0x90

// discoveryQueryPrefix is the fixed, pre-address-learning probe frame
// minus its trailing checksum byte; it is sent with addr1=addr2=0x00
// until the MCU's real address is learned.
var discoveryQueryPrefix = []byte{0x87, 0x00, 0x00, 0x07, 0x00, 0x00}

// BuildDiscoveryQuery returns the complete, checksummed discovery probe.
func BuildDiscoveryQuery() []byte {
	frame := append([]byte(nil), discoveryQueryPrefix...)
	return append(frame, Checksum(frame))
}
