// Package bberr defines the error vocabulary shared by every layer of the
// bbrdb stack (usbbulk, rdb, block, bbfs, and the root package).
//
// The original client (a Rust library) used a single thiserror-derived enum
// for this. Go has no tagged-union idiom as convenient as that, so the same
// vocabulary is expressed as a set of sentinel errors and small typed error
// structs, the way the standard library itself models layered errors (see
// os.PathError, net.OpError). Callers use errors.Is/errors.As as usual.
package bberr

import (
	"errors"
	"fmt"
)

// Transport-layer sentinels (spec §7 "Transport").
var (
	ErrTimeout             = errors.New("bbrdb: operation timed out")
	ErrWrongDataLength     = errors.New("bbrdb: incorrect amount of data transferred")
	ErrIncorrectDescriptor = errors.New("bbrdb: device has an incorrect descriptor active")
)

// Temporary is implemented by errors that block's retry loop should retry. Only the
// Transport subclass of errors is retried; Card/Filesystem/State errors are
// semantic and always surface immediately (spec §7, §9).
type Temporary interface {
	Temporary() bool
}

// IsTransport reports whether err is (or wraps) one of the Transport
// sentinels above, or any error that opts into retry via the Temporary
// interface.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrWrongDataLength) || errors.Is(err, ErrIncorrectDescriptor) {
		return true
	}
	var t Temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Protocol-layer errors (spec §7 "Protocol").

// RDBUnknownError is returned when a packet header carries a tag this
// client does not recognise.
type RDBUnknownError struct {
	Tag byte
}

func (e *RDBUnknownError) Error() string {
	return fmt.Sprintf("bbrdb: unknown RDB command: %02X", e.Tag)
}

// RDBUnexpectedError is returned when a received RDB command tag isn't one
// of the tags the caller was prepared to handle.
type RDBUnexpectedError struct {
	Got      string
	Expected []string
}

func (e *RDBUnexpectedError) Error() string {
	return fmt.Sprintf("bbrdb: unexpected RDB command (got %s, expected one of %v)", e.Got, e.Expected)
}

// IncorrectCmdResponseError is returned when the complemented command echo
// in a command reply doesn't match the command that was sent.
type IncorrectCmdResponseError struct {
	Got, Expected uint32
}

func (e *IncorrectCmdResponseError) Error() string {
	return fmt.Sprintf("bbrdb: incorrect command response (got %08X, expected %08X)", e.Got, e.Expected)
}

var ErrInvalidReplyLength = errors.New("bbrdb: invalid reply length")

// Card-layer errors (spec §7 "Card"). CardCode is the signed status word a
// device-side command can return.
type CardCode int32

// Card status codes, exactly as spec §4.4 defines them.
const (
	CardNotPresent    CardCode = -1
	CardFailure       CardCode = -2
	CardInvalid       CardCode = -3
	CardChanged       CardCode = -4
	CardFSNotInit     CardCode = -5
	CardFileExists    CardCode = -6
	CardFull          CardCode = -7
	CardNotFound      CardCode = -8
	CardStateInvalid  CardCode = -9
	CardStateLimit    CardCode = -10
)

func (c CardCode) String() string {
	switch c {
	case CardNotPresent:
		return "card not present"
	case CardFailure:
		return "operation failed"
	case CardInvalid:
		return "operation invalid"
	case CardChanged:
		return "card changed"
	case CardFSNotInit:
		return "filesystem not initialised"
	case CardFileExists:
		return "file exists"
	case CardFull:
		return "card full"
	case CardNotFound:
		return "not found"
	case CardStateInvalid:
		return "save data invalid"
	case CardStateLimit:
		return "save data limit reached"
	default:
		return fmt.Sprintf("unknown card error: %d", int32(c))
	}
}

// CardError wraps a non-zero device status word as returned by most
// commands (spec §4.4).
type CardError struct {
	Code CardCode
}

func (e *CardError) Error() string {
	return "bbrdb: card error: " + e.Code.String()
}

// CardErrorFromStatus maps a signed device status word to a *CardError.
// Callers should only invoke this when the status word is non-zero/negative.
func CardErrorFromStatus(status int32) error {
	return &CardError{Code: CardCode(status)}
}

// BadBlockError is a CardError variant that additionally carries the raw
// block and spare bytes that were read when the spare's "good block" marker
// indicated a bad block (spec §4.4: more than one zero bit in spare byte 5).
type BadBlockError struct {
	Block, Spare []byte
}

func (e *BadBlockError) Error() string {
	return "bbrdb: bad block"
}

// Filesystem-layer errors (spec §7 "Filesystem").
var (
	ErrNoFAT            = errors.New("bbrdb: no valid FATs were found")
	ErrNoEmptyFileSlots = errors.New("bbrdb: you can only write up to 409 files to the console at once; try deleting some first")
	ErrNoFreeBlocks     = errors.New("bbrdb: there are not enough blocks free on the console; try deleting some files to free up space")
)

type InvalidFATChecksumError struct {
	Got uint16
}

func (e *InvalidFATChecksumError) Error() string {
	return fmt.Sprintf("bbrdb: invalid FAT checksum: %04X", e.Got)
}

type FileNotFoundError struct {
	Name string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("bbrdb: file not found: %s", e.Name)
}

type FileNameTooLongError struct {
	Name string
}

func (e *FileNameTooLongError) Error() string {
	return fmt.Sprintf("bbrdb: filename %q too long (max 8.3)", e.Name)
}

type InvalidFilenameError struct {
	Name string
}

func (e *InvalidFilenameError) Error() string {
	return fmt.Sprintf("bbrdb: invalid filename: %q", e.Name)
}

type IncorrectNumBlocksError struct {
	Counted, Expected int
}

func (e *IncorrectNumBlocksError) Error() string {
	return fmt.Sprintf("bbrdb: trying to write an invalid number of blocks; counted %d, trying to write %d", e.Counted, e.Expected)
}

type FileTooBigError struct {
	Name              string
	NeededBlocks, Free uint32
}

func (e *FileTooBigError) Error() string {
	return fmt.Sprintf("bbrdb: file %q is too big to fit on the console (needed blocks: %d, free blocks: %d); try deleting some files to free up space", e.Name, e.NeededBlocks, e.Free)
}

type ChecksumFailedError struct {
	Name     string
	Expected uint32
}

func (e *ChecksumFailedError) Error() string {
	return fmt.Sprintf("bbrdb: failed to verify file %s (expected checksum %08X)", e.Name, e.Expected)
}

// State-layer errors (spec §7 "State").
var (
	ErrNotInitialised    = errors.New("bbrdb: device not initialised; did you call Init?")
	ErrUnhandledCardSize = errors.New("bbrdb: card size must be a multiple of 4096 blocks")
	ErrBadSKSA           = errors.New("bbrdb: bad SKSA")
	ErrCardNotPresent    = errors.New("bbrdb: SetSeqNo handshake returned 0; no card in the reader")
)

type InvalidNANDSizeError struct {
	Got, Want int
}

func (e *InvalidNANDSizeError) Error() string {
	return fmt.Sprintf("bbrdb: the provided NAND has an incorrect size (got 0x%X bytes, expected 0x%X bytes)", e.Got, e.Want)
}

type InvalidSpareSizeError struct {
	Got, Want int
}

func (e *InvalidSpareSizeError) Error() string {
	return fmt.Sprintf("bbrdb: the provided spare has an incorrect size (got 0x%X bytes, expected 0x%X bytes)", e.Got, e.Want)
}

type SetTimeError struct {
	Status int32
}

func (e *SetTimeError) Error() string {
	return fmt.Sprintf("bbrdb: set time: returned %d (error)", e.Status)
}
