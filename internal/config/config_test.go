package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Chunking.Mode != "sentence" || cfg.Chunking.MaxChunkLength != 300 {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Encode.FrameRate != 24 {
		t.Fatalf("expected 24 fps default, got %d", cfg.Encode.FrameRate)
	}
}

func TestLoadYAML(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "narrate.yaml")
	data := `chunking:
  mode: word
  max_chunk_length: 120
  overlap_words: 3
render:
  width: 1080
  height: 1920
  fade: true
  background_video: ./bg.mp4
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chunking.Mode != "word" || cfg.Chunking.OverlapWords != 3 {
		t.Fatalf("unexpected chunking: %+v", cfg.Chunking)
	}
	if !cfg.Render.Fade || cfg.Render.BackgroundVideo != "./bg.mp4" {
		t.Fatalf("unexpected render: %+v", cfg.Render)
	}
	if cfg.Render.TextColor != "white" {
		t.Fatalf("expected defaults to survive partial yaml, got %q", cfg.Render.TextColor)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_EVENT_STORE_MAX_JOBS", "123")
	t.Setenv("LOQA_CHUNKING_MODE", "word")
	t.Setenv("LOQA_CHUNKING_OVERLAP_WORDS", "2")
	t.Setenv("LOQA_SPEECH_WORDS_PER_SECOND", "3.5")
	t.Setenv("LOQA_RENDER_FADE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides")
	}
	if cfg.EventStore.MaxJobs != 123 {
		t.Fatalf("expected event store max jobs override")
	}
	if cfg.Chunking.Mode != "word" || cfg.Chunking.OverlapWords != 2 {
		t.Fatalf("expected chunking overrides, got %+v", cfg.Chunking)
	}
	if cfg.Speech.WordsPerSecond != 3.5 {
		t.Fatalf("expected words per second override")
	}
	if !cfg.Render.Fade {
		t.Fatalf("expected fade override")
	}
}

func TestSecretFallback(t *testing.T) {
	t.Setenv("LOQA_SPEECH_MODE", "elevenlabs")
	t.Setenv("ELEVENLABS_API_KEY", "xi-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Speech.ElevenLabs.APIKey != "xi-test" {
		t.Fatalf("expected api key from ELEVENLABS_API_KEY")
	}
}

func TestValidateRejectsBadChunking(t *testing.T) {
	t.Setenv("LOQA_CHUNKING_MAX_CHUNK_LENGTH", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for zero chunk length")
	}
}

func TestValidateExecNeedsCommand(t *testing.T) {
	t.Setenv("LOQA_SPEECH_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec without command")
	}
}

func TestValidateRemoteNeedsKey(t *testing.T) {
	t.Setenv("LOQA_SPEECH_MODE", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for openai without key")
	}
}
