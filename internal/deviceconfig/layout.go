package deviceconfig

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Stored record layout. All integers are little-endian; strings are
// NUL-padded fixed-width fields whose last byte is always NUL.
//
//	offset size field
//	     0   32 wifi_ssid
//	    32   64 wifi_password
//	    96   64 backend_host
//	   160    2 backend_port
//	   162    1 use_tls
//	   163   65 device_secret
//	   228   32 device_name
//	   260   32 ota_password
//	   292    4 version
//	   296    4 checksum
const (
	ssidOffset     = 0
	passwordOffset = ssidOffset + MaxSSIDLen + 1
	hostOffset     = passwordOffset + MaxPasswordLen + 1
	portOffset     = hostOffset + MaxHostLen + 1
	tlsOffset      = portOffset + 2
	secretOffset   = tlsOffset + 1
	nameOffset     = secretOffset + MaxSecretLen + 1
	otaOffset      = nameOffset + MaxNameLen + 1
	versionOffset  = otaOffset + MaxOTALen + 1
	checksumOffset = versionOffset + 4

	// RecordSize is the size of an encoded record in bytes.
	RecordSize = checksumOffset + 4
)

// Checksum is the record hash: h = h*33 + b over data, seeded with 0, in
// uint32 arithmetic.
func Checksum(data []byte) uint32 {
	var h uint32
	for _, b := range data {
		h = h*33 + uint32(b)
	}
	return h
}

// Encode serializes r into the stored layout. Strings longer than their
// field are truncated, and strings are cut at an embedded NUL. The Checksum field is written as given; callers that
// need a valid record set it from ComputeChecksum first.
func Encode(r ConfigRecord) [RecordSize]byte {
	var buf [RecordSize]byte

	putString(buf[ssidOffset:passwordOffset], r.WiFiSSID)
	putString(buf[passwordOffset:hostOffset], r.WiFiPassword)
	putString(buf[hostOffset:portOffset], r.BackendHost)
	binary.LittleEndian.PutUint16(buf[portOffset:], r.BackendPort)
	if r.UseTLS {
		buf[tlsOffset] = 1
	}
	putString(buf[secretOffset:nameOffset], r.DeviceSecret)
	putString(buf[nameOffset:otaOffset], r.DeviceName)
	putString(buf[otaOffset:versionOffset], r.OTAPassword)
	binary.LittleEndian.PutUint32(buf[versionOffset:], r.Version)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], r.Checksum)

	return buf
}

// Seal returns r with over-long strings truncated and Checksum recomputed,
// i.e. the record exactly as it will read back after a store round trip.
func Seal(r ConfigRecord) ConfigRecord {
	buf := Encode(r)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], Checksum(buf[:checksumOffset]))
	sealed, _ := Decode(buf[:])
	return sealed
}

// Decode parses a stored record. It fails only on a wrong size; checksum
// verification is left to the caller (see ConfigRecord.Valid and
// VerifyChecksum).
func Decode(data []byte) (ConfigRecord, error) {
	if len(data) != RecordSize {
		return ConfigRecord{}, fmt.Errorf("record is %d bytes, want %d", len(data), RecordSize)
	}

	return ConfigRecord{
		WiFiSSID:     getString(data[ssidOffset:passwordOffset]),
		WiFiPassword: getString(data[passwordOffset:hostOffset]),
		BackendHost:  getString(data[hostOffset:portOffset]),
		BackendPort:  binary.LittleEndian.Uint16(data[portOffset:]),
		UseTLS:       data[tlsOffset] != 0,
		DeviceSecret: getString(data[secretOffset:nameOffset]),
		DeviceName:   getString(data[nameOffset:otaOffset]),
		OTAPassword:  getString(data[otaOffset:versionOffset]),
		Version:      binary.LittleEndian.Uint32(data[versionOffset:]),
		Checksum:     binary.LittleEndian.Uint32(data[checksumOffset:]),
	}, nil
}

// VerifyChecksum reports whether the stored checksum of an encoded record
// matches its bytes. It checks the raw bytes rather than a decoded record so
// that corruption in padding after a string terminator is also detected.
func VerifyChecksum(data []byte) bool {
	if len(data) != RecordSize {
		return false
	}
	return Checksum(data[:checksumOffset]) == binary.LittleEndian.Uint32(data[checksumOffset:])
}

func putString(field []byte, s string) {
	// Nothing after an embedded NUL is stored; the last byte stays NUL.
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	copy(field[:len(field)-1], s)
}

func getString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
