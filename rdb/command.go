package rdb

import "fmt"

// Tag is an RDB packet command tag (the top 6 bits of a short-packet
// header). The numbering below is deliberately non-contiguous and must be
// reproduced exactly (spec §4.2): Device* and Host* tags interleave rather
// than occupying two separate contiguous ranges.
type Tag byte

// Device→Host tags.
const (
	DevicePrint         Tag = 1
	DeviceFault         Tag = 2
	DeviceLogCT         Tag = 3
	DeviceLog           Tag = 4
	DeviceReadyForData  Tag = 5
	DeviceDataCT        Tag = 6
	DeviceData          Tag = 7
	DeviceDebug         Tag = 8
	DeviceRamRom        Tag = 9
	DeviceDebugDone     Tag = 10
	DeviceDebugReady    Tag = 11
	DeviceKDebug        Tag = 12
	DeviceProfData      Tag = 22
	DeviceDataB         Tag = 23
	DeviceSync          Tag = 25
)

// Host→Device tags.
const (
	HostLogDone    Tag = 13
	HostDebug      Tag = 14
	HostDebugCT    Tag = 15
	HostData       Tag = 16
	HostDataDone   Tag = 17
	HostReqRamRom  Tag = 18
	HostFreeRamRom Tag = 19
	HostKDebug     Tag = 20
	HostProfSignal Tag = 21
	HostDataB      Tag = 24
	HostSyncDone   Tag = 26
	HostDebugDone  Tag = 27
)

var tagNames = map[Tag]string{
	DevicePrint:        "DevicePrint",
	DeviceFault:        "DeviceFault",
	DeviceLogCT:        "DeviceLogCT",
	DeviceLog:          "DeviceLog",
	DeviceReadyForData: "DeviceReadyForData",
	DeviceDataCT:       "DeviceDataCT",
	DeviceData:         "DeviceData",
	DeviceDebug:        "DeviceDebug",
	DeviceRamRom:       "DeviceRamRom",
	DeviceDebugDone:    "DeviceDebugDone",
	DeviceDebugReady:   "DeviceDebugReady",
	DeviceKDebug:       "DeviceKDebug",
	DeviceProfData:     "DeviceProfData",
	DeviceDataB:        "DeviceDataB",
	DeviceSync:         "DeviceSync",
	HostLogDone:        "HostLogDone",
	HostDebug:          "HostDebug",
	HostDebugCT:        "HostDebugCT",
	HostData:           "HostData",
	HostDataDone:       "HostDataDone",
	HostReqRamRom:      "HostReqRamRom",
	HostFreeRamRom:     "HostFreeRamRom",
	HostKDebug:         "HostKDebug",
	HostProfSignal:     "HostProfSignal",
	HostDataB:          "HostDataB",
	HostSyncDone:       "HostSyncDone",
	HostDebugDone:      "HostDebugDone",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", byte(t))
}

// tagFromByte decodes a raw tag value, reporting whether it's one this
// client recognises (spec §4.2: "Fails with RDBUnknown on an unrecognised
// tag").
func tagFromByte(b byte) (Tag, bool) {
	_, ok := tagNames[Tag(b)]
	return Tag(b), ok
}

// CommandID is a big-endian command number sent in the 8-byte command
// payload (spec §4.3).
type CommandID uint32

// Command numeric ids, exactly as spec §4.3 lists them.
const (
	CmdPing               CommandID = 0x01
	CmdPowerOff           CommandID = 0x02
	CmdWriteBlock         CommandID = 0x06
	CmdReadBlock          CommandID = 0x07
	CmdReadDir            CommandID = 0x08
	CmdWriteFile          CommandID = 0x09
	CmdReadFile           CommandID = 0x0A
	CmdDeleteFile         CommandID = 0x0B
	CmdScanBlocks         CommandID = 0x0D
	CmdRenameFile         CommandID = 0x0F
	CmdWriteBlockAndSpare CommandID = 0x10
	CmdReadBlockAndSpare  CommandID = 0x11
	CmdInitFS             CommandID = 0x12
	CmdSumFile            CommandID = 0x13
	CmdFreeBlocks         CommandID = 0x14
	CmdGetNumBlocks       CommandID = 0x15
	CmdSetSeqNo           CommandID = 0x16
	CmdGetSeqNo           CommandID = 0x17
	CmdStatFile           CommandID = 0x18
	CmdReadFileBlock      CommandID = 0x19
	CmdWriteFileBlock     CommandID = 0x1A
	CmdCreateFile         CommandID = 0x1B
	CmdChksumFile         CommandID = 0x1C
	CmdSetLED             CommandID = 0x1D
	CmdSetTime            CommandID = 0x1E
	CmdGetBBID            CommandID = 0x1F
	CmdSignHash           CommandID = 0x20
)
