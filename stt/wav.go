package stt

import (
	"bytes"
	"encoding/binary"
)

// encodeWAV wraps mono float32 samples in a 16-bit PCM WAV container, the
// format every whisper variant accepts.
func encodeWAV(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))            // chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))             // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))             // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))    // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))  // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))             // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))            // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.Write(buf, binary.LittleEndian, int16(s*32767))
	}
	return buf.Bytes()
}
