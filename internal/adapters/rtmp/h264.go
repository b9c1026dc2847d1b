package rtmp

// H.264 bitstream plumbing between the WebRTC side (Annex-B access units)
// and the FLV side (AVCC with a decoder configuration record).

const (
	naluTypeIDR = 5
	naluTypeSEI = 6
	naluTypeSPS = 7
	naluTypePPS = 8
	naluTypeAUD = 9
)

func naluType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// splitAnnexB cuts an Annex-B buffer into raw NAL units, accepting both
// 3- and 4-byte start codes.
func splitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1
	i := 0
	for i+2 < len(data) {
		if data[i] == 0 && data[i+1] == 0 && (data[i+2] == 1 || (i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1)) {
			if start >= 0 && i > start {
				nalus = append(nalus, trimTrailingZero(data[start:i]))
			}
			if data[i+2] == 1 {
				i += 3
			} else {
				i += 4
			}
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

// trimTrailingZero drops the zero bytes that belong to the next start code.
func trimTrailingZero(nalu []byte) []byte {
	for len(nalu) > 0 && nalu[len(nalu)-1] == 0 {
		nalu = nalu[:len(nalu)-1]
	}
	return nalu
}

// toAVCC re-frames NAL units with 4-byte big-endian length prefixes.
func toAVCC(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		l := len(n)
		out = append(out, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		out = append(out, n...)
	}
	return out
}

// buildAVCConfig builds an AVCDecoderConfigurationRecord from one SPS and
// one PPS, the sequence header FLV demands before any NALU tag.
func buildAVCConfig(sps, pps []byte) []byte {
	out := make([]byte, 0, 11+len(sps)+len(pps))
	out = append(out,
		0x01,    // configurationVersion
		sps[1],  // AVCProfileIndication
		sps[2],  // profile_compatibility
		sps[3],  // AVCLevelIndication
		0xFF,    // 4-byte NALU lengths
		0xE1,    // one SPS
	)
	out = append(out, byte(len(sps)>>8), byte(len(sps)))
	out = append(out, sps...)
	out = append(out, 0x01) // one PPS
	out = append(out, byte(len(pps)>>8), byte(len(pps)))
	out = append(out, pps...)
	return out
}

const (
	flvCodecAVC = 7

	avcPacketSeqHeader = 0
	avcPacketNALU      = 1
)

// flvVideoTagBody wraps AVC data in an FLV VideoTagHeader.
func flvVideoTagBody(keyframe bool, avcPacketType byte, data []byte) []byte {
	frameType := byte(2) // inter frame
	if keyframe {
		frameType = 1
	}
	out := make([]byte, 0, 5+len(data))
	out = append(out,
		frameType<<4|flvCodecAVC,
		avcPacketType,
		0, 0, 0, // composition time offset
	)
	return append(out, data...)
}
