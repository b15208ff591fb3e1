package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Service     ServiceConfig    `yaml:"service"`
	Chunking    ChunkingConfig   `yaml:"chunking"`
	Speech      SpeechConfig     `yaml:"speech"`
	Render      RenderConfig     `yaml:"render"`
	Encode      EncodeConfig     `yaml:"encode"`
	Cache       CacheConfig      `yaml:"cache"`
	Storage     StorageConfig    `yaml:"storage"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxJobs       int    `yaml:"max_jobs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ServiceConfig controls the narration job service in the daemon.
type ServiceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Concurrency int    `yaml:"max_concurrency"`
	OutputDir   string `yaml:"output_dir"`
	JobTimeout  int    `yaml:"job_timeout_s"`
}

type ChunkingConfig struct {
	Mode           string `yaml:"mode"` // sentence, word
	MaxChunkLength int    `yaml:"max_chunk_length"`
	OverlapWords   int    `yaml:"overlap_words"`
}

type SpeechConfig struct {
	Mode           string           `yaml:"mode"` // mock, exec, elevenlabs, openai
	Command        string           `yaml:"command"`
	Voice          string           `yaml:"voice"`
	WorkDir        string           `yaml:"work_dir"`
	Workers        int              `yaml:"workers"`
	TimeoutMS      int              `yaml:"timeout_ms"`
	WordsPerSecond float64          `yaml:"words_per_second"`
	SampleRate     int              `yaml:"sample_rate"`
	ElevenLabs     ElevenLabsConfig `yaml:"elevenlabs"`
	OpenAI         OpenAIConfig     `yaml:"openai"`
}

type ElevenLabsConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	VoiceID         string  `yaml:"voice_id"`
	Model           string  `yaml:"model"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
}

type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
}

type RenderConfig struct {
	Width             int    `yaml:"width"`
	Height            int    `yaml:"height"`
	FontSize          int    `yaml:"font_size"`
	BackgroundColor   string `yaml:"background_color"`
	TextColor         string `yaml:"text_color"`
	Position          string `yaml:"position"` // center, top
	Fade              bool   `yaml:"fade"`
	BackgroundVideo   string `yaml:"background_video"`
	BlendEmptyOverlay bool   `yaml:"blend_empty_overlay"`
}

type EncodeConfig struct {
	FrameRate    int    `yaml:"frame_rate"`
	FFmpegPath   string `yaml:"ffmpeg_path"`
	VideoCodec   string `yaml:"video_codec"`
	AudioCodec   string `yaml:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate"`
	Preset       string `yaml:"preset"`
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
	Prefix   string `yaml:"prefix"`
}

type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrate",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: true,
			Bind:    "0.0.0.0",
			Port:    8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrate-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxJobs:       10000,
		},
		Service: ServiceConfig{
			Enabled:     true,
			Concurrency: 2,
			OutputDir:   "./output",
			JobTimeout:  900,
		},
		Chunking: ChunkingConfig{
			Mode:           "sentence",
			MaxChunkLength: 300,
			OverlapWords:   0,
		},
		Speech: SpeechConfig{
			Mode:           "mock",
			Voice:          "en",
			Workers:        1,
			TimeoutMS:      45000,
			WordsPerSecond: 2.5,
			SampleRate:     22050,
			ElevenLabs: ElevenLabsConfig{
				Endpoint:        "https://api.elevenlabs.io",
				VoiceID:         "21m00Tcm4TlvDq8ikWAM",
				Model:           "eleven_monolingual_v1",
				Stability:       0.5,
				SimilarityBoost: 0.75,
			},
			OpenAI: OpenAIConfig{
				Endpoint: "https://api.openai.com",
				Model:    "tts-1",
				Voice:    "alloy",
			},
		},
		Render: RenderConfig{
			Width:             640,
			Height:            480,
			FontSize:          30,
			BackgroundColor:   "black",
			TextColor:         "white",
			Position:          "center",
			BlendEmptyOverlay: true,
		},
		Encode: EncodeConfig{
			FrameRate:    24,
			FFmpegPath:   "ffmpeg",
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			AudioBitrate: "192k",
			Preset:       "fast",
		},
		Cache: CacheConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			TTLHours: 24 * 7,
			Prefix:   "narrate:speech:",
		},
		Storage: StorageConfig{
			Enabled: false,
			Prefix:  "narrations/",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applySecretFallbacks(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "LOQA_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxJobs, "LOQA_EVENT_STORE_MAX_JOBS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Service.Enabled, "LOQA_SERVICE_ENABLED")
	overrideInt(&cfg.Service.Concurrency, "LOQA_SERVICE_MAX_CONCURRENCY")
	overrideString(&cfg.Service.OutputDir, "LOQA_SERVICE_OUTPUT_DIR")
	overrideInt(&cfg.Service.JobTimeout, "LOQA_SERVICE_JOB_TIMEOUT_S")
	overrideString(&cfg.Chunking.Mode, "LOQA_CHUNKING_MODE")
	overrideInt(&cfg.Chunking.MaxChunkLength, "LOQA_CHUNKING_MAX_CHUNK_LENGTH")
	overrideInt(&cfg.Chunking.OverlapWords, "LOQA_CHUNKING_OVERLAP_WORDS")
	overrideString(&cfg.Speech.Mode, "LOQA_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "LOQA_SPEECH_COMMAND")
	overrideString(&cfg.Speech.Voice, "LOQA_SPEECH_VOICE")
	overrideString(&cfg.Speech.WorkDir, "LOQA_SPEECH_WORK_DIR")
	overrideInt(&cfg.Speech.Workers, "LOQA_SPEECH_WORKERS")
	overrideInt(&cfg.Speech.TimeoutMS, "LOQA_SPEECH_TIMEOUT_MS")
	overrideFloat(&cfg.Speech.WordsPerSecond, "LOQA_SPEECH_WORDS_PER_SECOND")
	overrideString(&cfg.Speech.ElevenLabs.Endpoint, "LOQA_SPEECH_ELEVENLABS_ENDPOINT")
	overrideString(&cfg.Speech.ElevenLabs.APIKey, "LOQA_SPEECH_ELEVENLABS_API_KEY")
	overrideString(&cfg.Speech.ElevenLabs.VoiceID, "LOQA_SPEECH_ELEVENLABS_VOICE_ID")
	overrideString(&cfg.Speech.ElevenLabs.Model, "LOQA_SPEECH_ELEVENLABS_MODEL")
	overrideString(&cfg.Speech.OpenAI.Endpoint, "LOQA_SPEECH_OPENAI_ENDPOINT")
	overrideString(&cfg.Speech.OpenAI.APIKey, "LOQA_SPEECH_OPENAI_API_KEY")
	overrideString(&cfg.Speech.OpenAI.Model, "LOQA_SPEECH_OPENAI_MODEL")
	overrideString(&cfg.Speech.OpenAI.Voice, "LOQA_SPEECH_OPENAI_VOICE")
	overrideInt(&cfg.Render.Width, "LOQA_RENDER_WIDTH")
	overrideInt(&cfg.Render.Height, "LOQA_RENDER_HEIGHT")
	overrideInt(&cfg.Render.FontSize, "LOQA_RENDER_FONT_SIZE")
	overrideString(&cfg.Render.BackgroundColor, "LOQA_RENDER_BACKGROUND_COLOR")
	overrideString(&cfg.Render.TextColor, "LOQA_RENDER_TEXT_COLOR")
	overrideString(&cfg.Render.Position, "LOQA_RENDER_POSITION")
	overrideBool(&cfg.Render.Fade, "LOQA_RENDER_FADE")
	overrideString(&cfg.Render.BackgroundVideo, "LOQA_RENDER_BACKGROUND_VIDEO")
	overrideBool(&cfg.Render.BlendEmptyOverlay, "LOQA_RENDER_BLEND_EMPTY_OVERLAY")
	overrideInt(&cfg.Encode.FrameRate, "LOQA_ENCODE_FRAME_RATE")
	overrideString(&cfg.Encode.FFmpegPath, "LOQA_ENCODE_FFMPEG_PATH")
	overrideString(&cfg.Encode.VideoCodec, "LOQA_ENCODE_VIDEO_CODEC")
	overrideString(&cfg.Encode.AudioCodec, "LOQA_ENCODE_AUDIO_CODEC")
	overrideString(&cfg.Encode.AudioBitrate, "LOQA_ENCODE_AUDIO_BITRATE")
	overrideString(&cfg.Encode.Preset, "LOQA_ENCODE_PRESET")
	overrideBool(&cfg.Cache.Enabled, "LOQA_CACHE_ENABLED")
	overrideString(&cfg.Cache.Addr, "LOQA_CACHE_ADDR")
	overrideString(&cfg.Cache.Password, "LOQA_CACHE_PASSWORD")
	overrideInt(&cfg.Cache.DB, "LOQA_CACHE_DB")
	overrideInt(&cfg.Cache.TTLHours, "LOQA_CACHE_TTL_HOURS")
	overrideBool(&cfg.Storage.Enabled, "LOQA_STORAGE_ENABLED")
	overrideString(&cfg.Storage.Bucket, "LOQA_STORAGE_BUCKET")
	overrideString(&cfg.Storage.Prefix, "LOQA_STORAGE_PREFIX")
	overrideString(&cfg.Storage.Region, "LOQA_STORAGE_REGION")
	overrideString(&cfg.Storage.Profile, "LOQA_STORAGE_PROFILE")
	overrideBool(&cfg.Storage.UsePathStyle, "LOQA_STORAGE_USE_PATH_STYLE")
}

// applySecretFallbacks reads the vendor-standard API key variables when the
// config file and LOQA_* overrides leave them empty.
func applySecretFallbacks(cfg *Config) {
	if cfg.Speech.ElevenLabs.APIKey == "" {
		cfg.Speech.ElevenLabs.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.Speech.OpenAI.APIKey == "" {
		cfg.Speech.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Service.Enabled && cfg.Service.Concurrency <= 0 {
		return errors.New("service.max_concurrency must be >= 1")
	}
	switch cfg.Chunking.Mode {
	case "sentence", "word":
	default:
		return errors.New("chunking.mode must be one of sentence|word")
	}
	if cfg.Chunking.MaxChunkLength <= 0 {
		return errors.New("chunking.max_chunk_length must be positive")
	}
	if cfg.Chunking.OverlapWords < 0 {
		return errors.New("chunking.overlap_words must be >= 0")
	}
	switch cfg.Speech.Mode {
	case "mock", "exec", "elevenlabs", "openai":
	default:
		return errors.New("speech.mode must be one of mock|exec|elevenlabs|openai")
	}
	if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
		return errors.New("speech.command must be set when mode=exec")
	}
	if cfg.Speech.Mode == "elevenlabs" && cfg.Speech.ElevenLabs.APIKey == "" {
		return errors.New("speech.elevenlabs.api_key (or ELEVENLABS_API_KEY) must be set when mode=elevenlabs")
	}
	if cfg.Speech.Mode == "openai" && cfg.Speech.OpenAI.APIKey == "" {
		return errors.New("speech.openai.api_key (or OPENAI_API_KEY) must be set when mode=openai")
	}
	if cfg.Speech.Workers <= 0 {
		return errors.New("speech.workers must be >= 1")
	}
	if cfg.Render.Width <= 0 || cfg.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	if cfg.Render.FontSize <= 0 {
		return errors.New("render.font_size must be positive")
	}
	switch cfg.Render.Position {
	case "center", "top":
	default:
		return errors.New("render.position must be one of center|top")
	}
	if cfg.Encode.FrameRate <= 0 {
		return errors.New("encode.frame_rate must be positive")
	}
	if cfg.Cache.Enabled && cfg.Cache.Addr == "" {
		return errors.New("cache.addr must be set when cache is enabled")
	}
	if cfg.Storage.Enabled && cfg.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage is enabled")
	}
	return nil
}
