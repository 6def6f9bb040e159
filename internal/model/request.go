package model

// Kind identifies which generation pipeline a request goes through.
type Kind string

const (
	KindTTS        Kind = "tts"
	KindVoiceClone Kind = "voice_clone"
	KindTranscribe Kind = "transcribe"
)

// Model identifies the prediction model variant used for a generation.
// Turbo variants are cheaper and apply a price multiplier below 1.0.
type Model string

const (
	ModelTTSHD           Model = "tts-hd"
	ModelTTSTurbo        Model = "tts-turbo"
	ModelTranscribe      Model = "transcribe-standard"
	ModelTranscribeTurbo Model = "transcribe-turbo"
	ModelClone           Model = "clone-standard"
	ModelCloneTurbo      Model = "clone-turbo"
)

// GenerationRequest is a fully validated generation request. Every field is
// guaranteed to be inside its declared domain once the request leaves
// validate; absent optional fields carry the documented defaults.
type GenerationRequest struct {
	Kind     Kind
	Text     string
	Audio    []byte
	Filename string
	VoiceID  string
	Emotion  string
	Language string
	Model    Model
	Pitch    float64
	Speed    float64
	Volume   float64
	Demo     bool
}

// TTSPayload is the wire shape of a text-to-speech request body.
type TTSPayload struct {
	Text     string   `json:"text"`
	VoiceID  string   `json:"voice_id"`
	Emotion  string   `json:"emotion"`
	Language string   `json:"language"`
	Model    string   `json:"model"`
	Pitch    *float64 `json:"pitch"`
	Speed    *float64 `json:"speed"`
	Volume   *float64 `json:"volume"`
}
