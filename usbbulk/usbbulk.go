// Package usbbulk implements the lowest layer of the bbrdb stack: a single
// IN and a single OUT bulk endpoint, with byte-level send/receive and a
// timeout. It knows nothing about RDB framing or commands.
//
// Grounded on usbtmc.USBDevice's gousb wiring (open context, open by
// VID/PID, claim default interface, look up endpoint 2 in each direction),
// extended with the config-descriptor re-check and multi-VID scan the
// original Rust client's usb.rs performs.
package usbbulk

import (
	"time"

	"github.com/google/gousb"

	"github.com/Jhynjhiruu/bbrdb/bberr"
)

// Device identification, per spec §6.
const (
	VendorIDRetail = gousb.ID(0x1527)
	VendorIDDev    = gousb.ID(0xBB3D)
	ProductID      = gousb.ID(0xBBDB)

	confDescriptor = 1
	interfaceNum   = 0
	epOut          = 0x02
	epIn           = 0x82

	// DefaultTimeout is applied to both Send and Receive when the caller
	// does not override it. Spec §4.1 calls for 10-20s; usbtmc's default
	// single-transfer budget is the same order of magnitude.
	DefaultTimeout = 10 * time.Second
)

// VendorIDs lists every vendor ID this console's debug USB interface can
// enumerate under (retail and development units), mirroring the original
// client's usb.rs::bbp_type, which accepts either.
var VendorIDs = []gousb.ID{VendorIDRetail, VendorIDDev}

// Device is a claimed bulk USB connection to the console's debug port.
type Device struct {
	usbdev    *gousb.Device
	iface     *gousb.Interface
	ifaceDone func()
	in        *gousb.InEndpoint
	out       *gousb.OutEndpoint

	// Timeout is applied to every Send/Receive call.
	Timeout time.Duration
}

// Scan enumerates every attached device matching one of VendorIDs and
// ProductID (spec §6). The caller owns the returned *gousb.Context and must
// Close it once done with any device obtained from it.
func Scan() (*gousb.Context, []*gousb.Device, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, vid := range VendorIDs {
			if desc.Vendor == vid && desc.Product == ProductID {
				return true
			}
		}
		return false
	})
	if err != nil {
		ctx.Close()
		return nil, nil, err
	}
	return ctx, devs, nil
}

// Open claims the console's debug interface on an already-discovered
// *gousb.Device, following usbtmc.NewUSBDevice / original usb.rs's
// open_device: select configuration 1, claim interface 0, look up both bulk
// endpoints, then re-verify the active configuration is still 1
// (IncorrectDescriptor otherwise). It does not clear a halt condition on
// either endpoint.
func Open(usbdev *gousb.Device) (*Device, error) {
	d := &Device{usbdev: usbdev, Timeout: DefaultTimeout}

	if err := usbdev.SetAutoDetach(true); err != nil {
		return nil, err
	}

	cfg, err := usbdev.Config(confDescriptor)
	if err != nil {
		return nil, err
	}

	if err := checkConfig(usbdev); err != nil {
		cfg.Close()
		return nil, err
	}

	iface, err := cfg.Interface(interfaceNum, 0)
	if err != nil {
		cfg.Close()
		return nil, err
	}
	d.iface = iface
	d.ifaceDone = func() { iface.Close(); cfg.Close() }

	d.out, err = iface.OutEndpoint(epOut)
	if err != nil {
		d.ifaceDone()
		return nil, err
	}
	d.in, err = iface.InEndpoint(epIn)
	if err != nil {
		d.ifaceDone()
		return nil, err
	}

	if err := checkConfig(usbdev); err != nil {
		d.ifaceDone()
		return nil, err
	}

	return d, nil
}

func checkConfig(usbdev *gousb.Device) error {
	num, err := usbdev.ActiveConfigNum()
	if err != nil {
		return err
	}
	if num != confDescriptor {
		return bberr.ErrIncorrectDescriptor
	}
	return nil
}

// transferResult carries the outcome of a Read or Write performed on a
// background goroutine so Send/Receive can impose a deadline gousb's plain
// Read/Write signature (mirrored from usbtmc.USBDevice) doesn't accept
// directly.
type transferResult struct {
	n   int
	err error
}

// Send transmits data over the OUT endpoint and returns the number of bytes
// actually written. Fails with bberr.ErrTimeout if d.Timeout elapses first.
func (d *Device) Send(data []byte) (int, error) {
	ch := make(chan transferResult, 1)
	go func() {
		n, err := d.out.Write(data)
		ch <- transferResult{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-time.After(d.Timeout):
		return 0, bberr.ErrTimeout
	}
}

// Receive reads up to n bytes from the IN endpoint and returns a slice of
// exactly the bytes read. Fails with bberr.ErrTimeout if d.Timeout elapses
// first.
func (d *Device) Receive(n int) ([]byte, error) {
	buf := make([]byte, n)
	ch := make(chan transferResult, 1)
	go func() {
		read, err := d.in.Read(buf)
		ch <- transferResult{read, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return buf[:r.n], nil
	case <-time.After(d.Timeout):
		return nil, bberr.ErrTimeout
	}
}

// Close releases the claimed interface and configuration and closes the
// underlying device handle. SetAutoDetach(true) in Open means the kernel
// driver reattach pairing (spec §5's "kernel-driver detach is paired with
// reattach on close") is handled by gousb/libusb itself on this call.
func (d *Device) Close() error {
	if d.ifaceDone != nil {
		d.ifaceDone()
	}
	return d.usbdev.Close()
}
