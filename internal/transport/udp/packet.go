// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pitchtrack/internal/analysis"
	"pitchtrack/internal/spectrum"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Frame publications      |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Flags             | uint8          | 1            | bit0 note on,           |
|                   |                |              | bit1 pitch valid        |
| Window            | uint8          | 1            | Window kind             |
| Dominant          | float32        | 4            | Hz, NaN without pitch   |
| Centroid          | float32        | 4            | Hz                      |
| Average Amplitude | float32        | 4            | Fine-buffer band power  |
| Onset Amplitude   | float32        | 4            | Fast-buffer power       |
| Crest             | float32        | 4            | Peak over mean power    |
| Flatness          | float32        | 4            | Geometric over mean     |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Fine power spectrum     |
+-----------------------------------------------------------------------------+

Visual Layout:

|<- 4 ->|<--- 8 --->|<1>|<1>|<------ 6 x 4 ------>|<- 2 ->|<--- N * 4 --->|
+-------+-----------+---+---+---------------------+-------+---------------+
|  Seq  | Timestamp | F | W |  Scalar features    | Count |  Magnitudes   |
+-------+-----------+---+---+---------------------+-------+---------------+
*/

// Packet flags.
const (
	FlagNoteOn     = 1 << 0
	FlagPitchValid = 1 << 1
)

// HeaderSize is the packet length without magnitudes.
const HeaderSize = 4 + 8 + 1 + 1 + 6*4 + 2

// MaxMagnitudes is the largest magnitude count that fits one UDP datagram.
const MaxMagnitudes = (65507 - HeaderSize) / 4

// ErrShortPacket is returned when a packet is truncated.
var ErrShortPacket = errors.New("short packet")

// Packet is the decoded form of one datagram.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	NoteOn     bool
	PitchValid bool
	Window     spectrum.WindowKind

	Dominant              float32
	Centroid              float32
	AverageAmplitude      float32
	OnsetAverageAmplitude float32
	Crest                 float32
	Flatness              float32

	Magnitudes []float32
}

// AppendPacket encodes f and mags onto dst. Magnitudes beyond MaxMagnitudes
// are dropped.
func AppendPacket(dst []byte, f analysis.Frame, timestamp int64, mags []float32) []byte {
	if len(mags) > MaxMagnitudes {
		mags = mags[:MaxMagnitudes]
	}

	var flags uint8
	if f.NoteOn {
		flags |= FlagNoteOn
	}
	if f.DominantFrequency.Valid {
		flags |= FlagPitchValid
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(f.Seq))
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = append(dst, flags, uint8(f.Window))
	for _, v := range []float64{
		f.DominantFrequency.Or(math.NaN()),
		f.SpectralCentroid,
		f.AverageAmplitude,
		f.OnsetAverageAmplitude,
		f.SpectralCrest,
		f.SpectralFlatness,
	} {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(mags)))
	for _, m := range mags {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(m))
	}
	return dst
}

// ParsePacket decodes a datagram produced by AppendPacket.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortPacket, len(b), HeaderSize)
	}

	var p Packet
	p.Seq = binary.BigEndian.Uint32(b[0:])
	p.Timestamp = int64(binary.BigEndian.Uint64(b[4:]))
	flags := b[12]
	p.NoteOn = flags&FlagNoteOn != 0
	p.PitchValid = flags&FlagPitchValid != 0
	p.Window = spectrum.WindowKind(b[13])

	scalars := []*float32{&p.Dominant, &p.Centroid, &p.AverageAmplitude, &p.OnsetAverageAmplitude, &p.Crest, &p.Flatness}
	off := 14
	for _, s := range scalars {
		*s = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		off += 4
	}

	count := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if len(b) < off+4*count {
		return Packet{}, fmt.Errorf("%w: %d magnitudes need %d bytes, have %d", ErrShortPacket, count, off+4*count, len(b))
	}
	p.Magnitudes = make([]float32, count)
	for i := range p.Magnitudes {
		p.Magnitudes[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		off += 4
	}
	return p, nil
}
