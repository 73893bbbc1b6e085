package serial

import (
	"fmt"

	goserial "github.com/daedaluz/goserial"
)

// Port opens the half-duplex UART at devicePath, configured raw at
// 1 Mbaud 8N1. Baud/parity/stop-bit setup follows the termios2 path
// goserial exposes for Linux.
func Port(devicePath string) (*goserial.Port, error) {
	opts := goserial.NewOptions().SetReadTimeout(-1)
	p, err := goserial.Open(devicePath, opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", devicePath, err)
	}

	attrs, err := p.GetAttr2()
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("serial: get attrs: %w", err)
	}
	attrs.MakeRaw()
	attrs.SetSpeed(goserial.B1000000)
	attrs.Cflag &^= goserial.CSTOPB // one stop bit
	attrs.Cflag &^= goserial.PARENB // no parity
	attrs.Cflag &^= goserial.CSIZE
	attrs.Cflag |= goserial.CS8 // 8 data bits

	if err := p.SetAttr2(goserial.TCSANOW, attrs); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial: set attrs: %w", err)
	}
	return p, nil
}
