// Package sdp rewrites negotiated session descriptions to enforce the audio
// bitrate policy. The rewrite is pure text manipulation; it never parses the
// full SDP grammar.
package sdp

import (
	"fmt"
	"regexp"
	"strings"
)

const lineSep = "\r\n"

var rtpmapOpusRegex = regexp.MustCompile(`^a=rtpmap:(\d+) [Oo][Pp][Uu][Ss]/48000`)

func insertLine(lines []string, index int, line string) []string {
	if len(lines) == index {
		return append(lines, line)
	}
	lines = append(lines[:index+1], lines[index:]...)
	lines[index] = line
	return lines
}

// ApplyBitratePolicy caps the audio section of desc at bitrateBps and tunes
// the opus codec parameters: max-average-bitrate, max-playback-rate
// (= maxPlaybackRate), in-band FEC on, DTX on, CBR off.
//
// Applying the policy twice yields the same text as applying it once. If the
// description has no audio media line or no opus rtpmap, it is returned
// unchanged: the session proceeds unconstrained rather than being rejected.
func ApplyBitratePolicy(desc string, bitrateBps, maxPlaybackRate int) string {
	lines := strings.Split(desc, lineSep)

	audioLine := -1
	opusPT := ""
	for i, line := range lines {
		if strings.HasPrefix(line, "m=audio") {
			audioLine = i
			break
		}
	}
	if audioLine == -1 {
		return desc
	}
	for _, line := range lines {
		if m := rtpmapOpusRegex.FindStringSubmatch(line); m != nil {
			opusPT = m[1]
			break
		}
	}
	if opusPT == "" {
		return desc
	}

	bandwidth := fmt.Sprintf("b=TIAS:%d", bitrateBps)
	if !containsLine(lines, bandwidth) {
		lines = insertLine(lines, audioLine+1, bandwidth)
	}

	fmtpPrefix := "a=fmtp:" + opusPT + " "
	params := fmt.Sprintf(
		"maxaveragebitrate=%d;maxplaybackrate=%d;useinbandfec=1;usedtx=1;cbr=0",
		bitrateBps, maxPlaybackRate,
	)
	fmtpLine := -1
	for i, line := range lines {
		if strings.HasPrefix(line, fmtpPrefix) || line == "a=fmtp:"+opusPT {
			fmtpLine = i
			break
		}
	}
	if fmtpLine == -1 {
		// No format-parameters line at all: add one right after the rtpmap.
		for i, line := range lines {
			if rtpmapOpusRegex.MatchString(line) {
				lines = insertLine(lines, i+1, fmtpPrefix+params)
				break
			}
		}
	} else if !strings.Contains(lines[fmtpLine], "maxaveragebitrate") {
		lines[fmtpLine] = lines[fmtpLine] + ";" + params
	}

	return strings.Join(lines, lineSep)
}

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}
