package sdp

import (
	"strings"
	"testing"
)

func sampleDesc(lines ...string) string {
	return strings.Join(lines, "\r\n")
}

func baseAudio() string {
	return sampleDesc(
		"v=0",
		"o=- 46117317 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111 103",
		"c=IN IP4 0.0.0.0",
		"a=rtpmap:111 opus/48000/2",
		"a=rtpmap:103 ISAC/16000",
		"a=fmtp:111 minptime=10;useinbandfec=1",
	)
}

func TestApplyBitratePolicy(t *testing.T) {
	out := ApplyBitratePolicy(baseAudio(), 32000, 48000)

	lines := strings.Split(out, "\r\n")
	bandwidthAt := -1
	audioAt := -1
	for i, line := range lines {
		if strings.HasPrefix(line, "m=audio") {
			audioAt = i
		}
		if line == "b=TIAS:32000" {
			bandwidthAt = i
		}
	}
	if audioAt == -1 || bandwidthAt != audioAt+1 {
		t.Fatalf("bandwidth line not directly after audio m-line:\n%s", out)
	}

	wantParams := "maxaveragebitrate=32000;maxplaybackrate=48000;useinbandfec=1;usedtx=1;cbr=0"
	found := false
	for _, line := range lines {
		if strings.HasPrefix(line, "a=fmtp:111 ") && strings.Contains(line, wantParams) {
			found = true
		}
	}
	if !found {
		t.Fatalf("opus fmtp params missing:\n%s", out)
	}
}

func TestApplyBitratePolicyIdempotent(t *testing.T) {
	once := ApplyBitratePolicy(baseAudio(), 32000, 48000)
	twice := ApplyBitratePolicy(once, 32000, 48000)
	if once != twice {
		t.Fatalf("second application changed the text:\nonce:\n%s\ntwice:\n%s", once, twice)
	}
}

func TestApplyBitratePolicyFailsOpen(t *testing.T) {
	tests := []struct {
		name string
		desc string
	}{
		{
			name: "no audio media line",
			desc: sampleDesc(
				"v=0",
				"m=video 9 UDP/TLS/RTP/SAVPF 96",
				"a=rtpmap:96 VP8/90000",
			),
		},
		{
			name: "no opus rtpmap",
			desc: sampleDesc(
				"v=0",
				"m=audio 9 UDP/TLS/RTP/SAVPF 103",
				"a=rtpmap:103 ISAC/16000",
			),
		},
		{
			name: "empty description",
			desc: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyBitratePolicy(tt.desc, 32000, 48000); got != tt.desc {
				t.Fatalf("description was modified:\n%s", got)
			}
		})
	}
}

func TestApplyBitratePolicyRespectsExistingBitrate(t *testing.T) {
	desc := sampleDesc(
		"v=0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"a=rtpmap:111 opus/48000/2",
		"a=fmtp:111 minptime=10;maxaveragebitrate=64000",
	)
	out := ApplyBitratePolicy(desc, 32000, 48000)
	if strings.Count(out, "maxaveragebitrate") != 1 {
		t.Fatalf("bitrate parameter duplicated:\n%s", out)
	}
	if !strings.Contains(out, "maxaveragebitrate=64000") {
		t.Fatalf("pre-existing bitrate was rewritten:\n%s", out)
	}
}

func TestApplyBitratePolicyAddsMissingFmtp(t *testing.T) {
	desc := sampleDesc(
		"v=0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"a=rtpmap:111 opus/48000/2",
	)
	out := ApplyBitratePolicy(desc, 24000, 24000)
	if !strings.Contains(out, "a=fmtp:111 maxaveragebitrate=24000;maxplaybackrate=24000;useinbandfec=1;usedtx=1;cbr=0") {
		t.Fatalf("fmtp line not created:\n%s", out)
	}
	if ApplyBitratePolicy(out, 24000, 24000) != out {
		t.Fatal("not idempotent after creating fmtp line")
	}
}
