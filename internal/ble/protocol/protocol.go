// Package protocol implements the iStrip+ command model and vendor frame
// layout. A logical Command is laid out into a fixed 16-byte plaintext frame
// (header, opcode, group, RGB, brightness, speed, zero padding) and encrypted
// with the vendor's AES-128-ECB key before it is written to the control
// characteristic.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	blecrypto "github.com/chaz8081/istrip-bridge/internal/ble/crypto"
)

// FrameSize is the fixed plaintext and ciphertext frame length. The strip
// only accepts single AES blocks.
const FrameSize = 16

// Vendor frame constants.
var frameHeader = [4]byte{0x54, 0x52, 0x00, 0x57} // "TR\x00W"

const (
	opcodeRGB = 0x02
	groupID   = 0x01

	// DefaultSpeed is the effect speed byte carried in every frame. The
	// strip ignores it for static colors but rejects frames without it.
	DefaultSpeed = 100
)

// ErrUnsupportedCommand is returned when a command's kind/parameter
// combination cannot be expressed as a device frame. Parameters are never
// silently clamped.
var ErrUnsupportedCommand = errors.New("protocol: unsupported command")

// Kind identifies the logical intent of a Command.
type Kind uint8

const (
	KindPowerOn Kind = iota
	KindPowerOff
	KindSetColor
	KindSetBrightness
)

func (k Kind) String() string {
	switch k {
	case KindPowerOn:
		return "power_on"
	case KindPowerOff:
		return "power_off"
	case KindSetColor:
		return "set_color"
	case KindSetBrightness:
		return "set_brightness"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// RGB is a color triple. Components are ints so out-of-range values survive
// until validation instead of wrapping.
type RGB struct {
	R, G, B int
}

// Command is an immutable logical intent submitted by the API layer.
// Create commands through the constructors; the zero value is not valid.
type Command struct {
	Kind        Kind
	Color       RGB
	Brightness  int
	SubmittedAt time.Time

	result chan error
}

// PowerOn returns a command that switches the strip to full white. Callers
// that track the current color should prefer SetColor with the stored color.
func PowerOn() *Command {
	return &Command{
		Kind:        KindPowerOn,
		Color:       RGB{255, 255, 255},
		Brightness:  100,
		SubmittedAt: time.Now(),
	}
}

// PowerOff returns a command that switches the strip off. The vendor
// protocol has no power opcode; off is a black frame at zero brightness.
func PowerOff() *Command {
	return &Command{
		Kind:        KindPowerOff,
		SubmittedAt: time.Now(),
	}
}

// SetColor returns a command that sets the strip color at full brightness.
func SetColor(r, g, b int) *Command {
	return SetColorBrightness(r, g, b, 100)
}

// SetColorBrightness returns a command that sets color and brightness in a
// single frame.
func SetColorBrightness(r, g, b, brightness int) *Command {
	return &Command{
		Kind:        KindSetColor,
		Color:       RGB{r, g, b},
		Brightness:  brightness,
		SubmittedAt: time.Now(),
	}
}

// SetBrightness returns a command that sets brightness. The protocol carries
// brightness only inside a color frame, so this encodes white at the given
// level; state-tracking callers re-send their color via SetColorBrightness.
func SetBrightness(level int) *Command {
	return &Command{
		Kind:        KindSetBrightness,
		Color:       RGB{255, 255, 255},
		Brightness:  level,
		SubmittedAt: time.Now(),
	}
}

// WithResult attaches a one-shot result channel and returns the command.
// The channel receives exactly one terminal outcome: nil after the frame is
// written, or the error that prevented delivery.
func (c *Command) WithResult() *Command {
	c.result = make(chan error, 1)
	return c
}

// Complete delivers the terminal outcome. Safe to call more than once;
// only the first outcome is kept.
func (c *Command) Complete(err error) {
	if c.result == nil {
		return
	}
	select {
	case c.result <- err:
	default:
	}
}

// Wait blocks until the command reaches a terminal outcome or ctx is done.
// Commands created without WithResult return immediately.
func (c *Command) Wait(ctx context.Context) error {
	if c.result == nil {
		return nil
	}
	select {
	case err := <-c.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Validate checks the command's parameters against the frame's value ranges.
func Validate(c *Command) error {
	switch c.Kind {
	case KindPowerOn, KindPowerOff, KindSetColor, KindSetBrightness:
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrUnsupportedCommand, c.Kind)
	}
	for _, comp := range []struct {
		name string
		val  int
	}{{"red", c.Color.R}, {"green", c.Color.G}, {"blue", c.Color.B}} {
		if comp.val < 0 || comp.val > 255 {
			return fmt.Errorf("%w: %s %d out of range 0-255", ErrUnsupportedCommand, comp.name, comp.val)
		}
	}
	if c.Brightness < 0 || c.Brightness > 100 {
		return fmt.Errorf("%w: brightness %d out of range 0-100", ErrUnsupportedCommand, c.Brightness)
	}
	return nil
}

// buildFrame lays the command out as the 16-byte plaintext vendor frame.
func buildFrame(c *Command) []byte {
	frame := make([]byte, FrameSize)
	copy(frame, frameHeader[:])
	frame[4] = opcodeRGB
	frame[5] = groupID
	frame[7] = byte(c.Color.R)
	frame[8] = byte(c.Color.G)
	frame[9] = byte(c.Color.B)
	frame[10] = byte(c.Brightness)
	frame[11] = DefaultSpeed
	return frame
}

// Frame is an encrypted command frame ready to write, never mutated after
// creation.
type Frame struct {
	Bytes              []byte
	CharacteristicUUID string
}

// Codec turns logical commands into encrypted frames for one device. It is
// stateless after construction and safe for concurrent use.
type Codec struct {
	key      []byte
	charUUID string
}

// NewCodec creates a codec for the given 16-byte AES key and target control
// characteristic UUID.
func NewCodec(key []byte, characteristicUUID string) (*Codec, error) {
	if len(key) != blecrypto.KeySize {
		return nil, fmt.Errorf("protocol: key must be %d bytes, got %d", blecrypto.KeySize, len(key))
	}
	if characteristicUUID == "" {
		return nil, errors.New("protocol: characteristic UUID must not be empty")
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k, charUUID: characteristicUUID}, nil
}

// Encode validates the command, builds its plaintext frame, and encrypts it.
// Deterministic: the same command parameters always produce byte-identical
// output.
func (cd *Codec) Encode(c *Command) (Frame, error) {
	if err := Validate(c); err != nil {
		return Frame{}, err
	}
	ciphertext, err := blecrypto.Encrypt(cd.key, buildFrame(c))
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: encrypt frame: %w", err)
	}
	return Frame{Bytes: ciphertext, CharacteristicUUID: cd.charUUID}, nil
}
