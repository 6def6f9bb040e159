// Package validate turns untyped request payloads into strongly typed
// generation requests, or a validation error naming the offending field.
package validate

import (
	"path/filepath"
	"strings"

	"vocalize/internal/apperr"
	"vocalize/internal/model"
)

// Text length ceilings per request kind.
const (
	MaxTTSChars  = 5000
	MaxDemoChars = 200
)

// Upload ceilings in bytes.
const (
	MaxTranscribeBytes = 25 << 20
	MaxCloneBytes      = 10 << 20
)

// Closed intervals for the numeric audio parameters.
const (
	MinPitch, MaxPitch   = -12.0, 12.0
	MinSpeed, MaxSpeed   = 0.5, 2.0
	MinVolume, MaxVolume = 0.0, 2.0
)

// Documented defaults for absent optional fields.
const (
	DefaultVoice    = "aria"
	DefaultEmotion  = "neutral"
	DefaultLanguage = "en"
	DefaultPitch    = 0.0
	DefaultSpeed    = 1.0
	DefaultVolume   = 1.0
)

var voices = map[string]bool{
	"aria": true, "orion": true, "luna": true,
	"kai": true, "nova": true, "ember": true,
}

var emotions = map[string]bool{
	"neutral": true, "happy": true, "sad": true,
	"angry": true, "excited": true, "calm": true,
}

var languages = map[string]bool{
	"en": true, "vi": true, "es": true, "fr": true,
	"de": true, "ja": true, "zh": true,
}

var ttsModels = map[string]model.Model{
	"":          model.ModelTTSHD,
	"tts-hd":    model.ModelTTSHD,
	"tts-turbo": model.ModelTTSTurbo,
}

var transcribeModels = map[string]model.Model{
	"":                    model.ModelTranscribe,
	"transcribe-standard": model.ModelTranscribe,
	"transcribe-turbo":    model.ModelTranscribeTurbo,
}

var cloneModels = map[string]model.Model{
	"":               model.ModelClone,
	"clone-standard": model.ModelClone,
	"clone-turbo":    model.ModelCloneTurbo,
}

// Audio formats accepted for uploads. Matches what mobile recorders produce.
var allowedExts = map[string]bool{
	".m4a": true, ".mp3": true, ".wav": true, ".aac": true,
	".ogg": true, ".caf": true, ".flac": true, ".webm": true,
}

var allowedMIMETypes = map[string]bool{
	"audio/mpeg": true, "audio/mp3": true, "audio/wav": true,
	"audio/x-wav": true, "audio/mp4": true, "audio/m4a": true,
	"audio/x-m4a": true, "audio/aac": true, "audio/ogg": true,
	"audio/flac": true, "audio/webm": true, "application/octet-stream": true,
}

// TTS validates a text-to-speech payload. When demo is set the shorter demo
// text ceiling applies.
func TTS(p model.TTSPayload, demo bool) (*model.GenerationRequest, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, apperr.Validation("text", "text is required")
	}
	limit := MaxTTSChars
	if demo {
		limit = MaxDemoChars
	}
	if len([]rune(text)) > limit {
		return nil, apperr.Validation("text", "text exceeds maximum length")
	}

	req := &model.GenerationRequest{
		Kind:     model.KindTTS,
		Text:     text,
		VoiceID:  DefaultVoice,
		Emotion:  DefaultEmotion,
		Language: DefaultLanguage,
		Pitch:    DefaultPitch,
		Speed:    DefaultSpeed,
		Volume:   DefaultVolume,
		Demo:     demo,
	}

	if p.VoiceID != "" {
		if !voices[p.VoiceID] {
			return nil, apperr.Validation("voice_id", "unknown voice")
		}
		req.VoiceID = p.VoiceID
	}
	if p.Emotion != "" {
		if !emotions[p.Emotion] {
			return nil, apperr.Validation("emotion", "unknown emotion")
		}
		req.Emotion = p.Emotion
	}
	if p.Language != "" {
		if !languages[p.Language] {
			return nil, apperr.Validation("language", "unsupported language")
		}
		req.Language = p.Language
	}

	m, ok := ttsModels[p.Model]
	if !ok {
		return nil, apperr.Validation("model", "unknown model")
	}
	req.Model = m

	if p.Pitch != nil {
		if *p.Pitch < MinPitch || *p.Pitch > MaxPitch {
			return nil, apperr.Validation("pitch", "pitch out of range")
		}
		req.Pitch = *p.Pitch
	}
	if p.Speed != nil {
		if *p.Speed < MinSpeed || *p.Speed > MaxSpeed {
			return nil, apperr.Validation("speed", "speed out of range")
		}
		req.Speed = *p.Speed
	}
	if p.Volume != nil {
		if *p.Volume < MinVolume || *p.Volume > MaxVolume {
			return nil, apperr.Validation("volume", "volume out of range")
		}
		req.Volume = *p.Volume
	}

	return req, nil
}

// Transcription validates an uploaded audio file for transcription.
func Transcription(audio []byte, filename, contentType, language, modelName string) (*model.GenerationRequest, error) {
	if err := checkAudio(audio, filename, contentType, MaxTranscribeBytes); err != nil {
		return nil, err
	}

	req := &model.GenerationRequest{
		Kind:     model.KindTranscribe,
		Audio:    audio,
		Filename: filename,
		Language: DefaultLanguage,
	}

	if language != "" {
		if !languages[language] {
			return nil, apperr.Validation("language", "unsupported language")
		}
		req.Language = language
	}

	m, ok := transcribeModels[modelName]
	if !ok {
		return nil, apperr.Validation("model", "unknown model")
	}
	req.Model = m

	return req, nil
}

// Clone validates a voice-cloning upload: a voice name plus a sample clip.
func Clone(name string, audio []byte, filename, contentType, modelName string) (*model.GenerationRequest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "voice name is required")
	}
	if len([]rune(name)) > 64 {
		return nil, apperr.Validation("name", "voice name exceeds maximum length")
	}
	if err := checkAudio(audio, filename, contentType, MaxCloneBytes); err != nil {
		return nil, err
	}

	m, ok := cloneModels[modelName]
	if !ok {
		return nil, apperr.Validation("model", "unknown model")
	}

	return &model.GenerationRequest{
		Kind:     model.KindVoiceClone,
		Text:     name,
		Audio:    audio,
		Filename: filename,
		Model:    m,
	}, nil
}

func checkAudio(audio []byte, filename, contentType string, maxBytes int) error {
	if len(audio) == 0 {
		return apperr.Validation("audio", "audio file is required")
	}
	if len(audio) > maxBytes {
		return apperr.Validation("audio", "audio file exceeds size limit")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExts[ext] {
		return apperr.Validation("audio", "unsupported audio format")
	}
	if contentType != "" {
		// Strip any parameters, e.g. "audio/wav; codecs=1".
		if i := strings.Index(contentType, ";"); i >= 0 {
			contentType = strings.TrimSpace(contentType[:i])
		}
		if !allowedMIMETypes[strings.ToLower(contentType)] {
			return apperr.Validation("audio", "unsupported content type")
		}
	}
	return nil
}
