package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"smart_parkai/internal/logger"
)

const (
	MaxAudioBytes     = 5 * 1024 * 1024
	MaxAudioSeconds   = 60
	riffHeaderSize    = 12
	chunkHeaderSize   = 8
	fmtChunkMinSize   = 16
	wavFormatPCM      = 1
	defaultSpeechLang = "en-IN"
)

var ErrInvalidAudio = errors.New("invalid audio")
var ErrSpeechDisabled = errors.New("speech recognition is not configured")

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Recognizer is satisfied by *speech.Client.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

// wavFormat mirrors the first 16 bytes of a "fmt " chunk.
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type wavAudio struct {
	wavFormat
	Samples []byte
}

// parseWav walks the RIFF chunks of a PCM WAV file. Chunks other than
// "fmt " and "data" (LIST, fact, ...) are skipped.
func parseWav(data []byte) (*wavAudio, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a WAV file", ErrInvalidAudio)
	}

	var audio wavAudio
	haveFmt := false
	for off := riffHeaderSize; off+chunkHeaderSize <= len(data); {
		id := string(data[off : off+4])
		size := int64(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + chunkHeaderSize
		if int64(body)+size > int64(len(data)) {
			return nil, fmt.Errorf("%w: %q chunk runs past the end of the file", ErrInvalidAudio, id)
		}
		end := body + int(size)

		switch id {
		case "fmt ":
			if size < fmtChunkMinSize {
				return nil, fmt.Errorf("%w: fmt chunk too short", ErrInvalidAudio)
			}
			if err := binary.Read(bytes.NewReader(data[body:body+fmtChunkMinSize]), binary.LittleEndian, &audio.wavFormat); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidAudio)
			}
			if audio.AudioFormat != wavFormatPCM {
				return nil, fmt.Errorf("%w: only PCM WAV is supported", ErrInvalidAudio)
			}
			if audio.SampleRate == 0 || audio.ByteRate == 0 {
				return nil, fmt.Errorf("%w: missing sample rate", ErrInvalidAudio)
			}
			audio.Samples = data[body:end]
			return &audio, nil
		}
		// chunks are word aligned
		off = end + int(size%2)
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrInvalidAudio)
}

func (a *wavAudio) durationSeconds() float64 {
	return float64(len(a.Samples)) / float64(a.ByteRate)
}

type GoogleTranscriber struct {
	client   Recognizer
	language string
	log      *zap.Logger
}

// NewGoogleSpeechClient opens a Cloud Speech client from a service-account file,
// or application default credentials when the path is empty.
func NewGoogleSpeechClient(ctx context.Context, credentialsFile string) (*speech.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speech client: %w", err)
	}
	return client, nil
}

func NewGoogleTranscriber(client Recognizer, language string, log *zap.Logger) *GoogleTranscriber {
	if language == "" {
		language = defaultSpeechLang
	}
	return &GoogleTranscriber{client: client, language: language, log: logger.OrNop(log)}
}

func (t *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if t.client == nil {
		return "", ErrSpeechDisabled
	}
	if len(audio) > MaxAudioBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidAudio, MaxAudioBytes)
	}
	wav, err := parseWav(audio)
	if err != nil {
		return "", err
	}
	if wav.durationSeconds() > MaxAudioSeconds {
		return "", fmt.Errorf("%w: audio longer than %d seconds", ErrInvalidAudio, MaxAudioSeconds)
	}

	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(wav.SampleRate),
			LanguageCode:      t.language,
			AudioChannelCount: int32(wav.NumChannels),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: wav.Samples},
		},
	})
	if err != nil {
		return "", fmt.Errorf("speech recognition failed: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
	}
	transcript := strings.TrimSpace(strings.Join(parts, " "))
	t.log.Debug("audio transcribed", zap.Int("bytes", len(audio)), zap.String("transcript", transcript))
	return transcript, nil
}
