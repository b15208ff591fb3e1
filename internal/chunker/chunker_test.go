package chunker

import (
	"errors"
	"strings"
	"testing"
)

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSplitSentenceScenario(t *testing.T) {
	chunks, err := Split("Hello world. This is sentence two. And a third one.", Config{Mode: ModeSentence, MaxChunkLength: 20})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"Hello world.", "This is sentence two.", "And a third one."}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
	}
}

func TestSplitSentencePacksUnderBudget(t *testing.T) {
	chunks, err := Split("One. Two. Three. Four.", Config{Mode: ModeSentence, MaxChunkLength: 10})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"One. Two.", "Three.", "Four."}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSplitSentenceKeepsLongSentenceWhole(t *testing.T) {
	long := "This sentence is far longer than the tiny budget allows."
	chunks, err := Split("Hi. "+long+" Bye.", Config{Mode: ModeSentence, MaxChunkLength: 8})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"Hi.", long, "Bye."}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSplitSentenceNeverSplitsInsideSentence(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon! Zeta eta theta iota? Kappa lambda mu nu xi omicron."
	sentences := Sentences(Normalize(text))
	for _, maxLen := range []int{1, 5, 17, 30, 60, 500} {
		chunks, err := Split(text, Config{Mode: ModeSentence, MaxChunkLength: maxLen})
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		for _, c := range chunks {
			rest := c.Text
			for rest != "" {
				matched := false
				for _, s := range sentences {
					if strings.HasPrefix(rest, s) {
						rest = strings.TrimPrefix(strings.TrimPrefix(rest, s), " ")
						matched = true
						break
					}
				}
				if !matched {
					t.Fatalf("max=%d chunk %q is not made of whole sentences", maxLen, c.Text)
				}
			}
		}
	}
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	text := "  First   line.\n\n\tSecond\r\nline!   "
	chunks, err := Split(text, Config{Mode: ModeSentence, MaxChunkLength: 100})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "First line. Second line!" {
		t.Fatalf("unexpected chunks %q", texts(chunks))
	}
}

func TestSplitReconstructsNormalizedInput(t *testing.T) {
	text := `Artificial Intelligence is transforming the world.
	From healthcare to transportation, AI technologies are revolutionizing how we live!
	Is this the end? No. It is only the start of a very long journey.`
	for _, cfg := range []Config{
		{Mode: ModeSentence, MaxChunkLength: 40},
		{Mode: ModeSentence, MaxChunkLength: 3},
		{Mode: ModeWord, MaxChunkLength: 25},
		{Mode: ModeWord, MaxChunkLength: 25, OverlapWords: 3},
		{Mode: ModeWord, MaxChunkLength: 1, OverlapWords: 1},
	} {
		chunks, err := Split(text, cfg)
		if err != nil {
			t.Fatalf("split %+v: %v", cfg, err)
		}
		if len(chunks) == 0 {
			t.Fatalf("expected chunks for %+v", cfg)
		}
		if got, want := Join(chunks), Normalize(text); got != want {
			t.Fatalf("config %+v: rejoined text differs\n got: %q\nwant: %q", cfg, got, want)
		}
		for _, c := range chunks {
			if strings.TrimSpace(c.Text) == "" {
				t.Fatalf("config %+v produced blank chunk", cfg)
			}
		}
	}
}

func TestSplitWordScenario(t *testing.T) {
	chunks, err := Split("a b c d e f g h", Config{Mode: ModeWord, MaxChunkLength: 5, OverlapWords: 2})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"a b", "c d", "e f", "g h"}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if chunks[0].Carried != 0 {
		t.Fatalf("first chunk should not carry words")
	}
	for _, c := range chunks[1:] {
		if c.Carried != 2 {
			t.Fatalf("chunk %d: expected 2 carried words, got %d", c.Index, c.Carried)
		}
	}
}

func TestSplitWordWithoutOverlap(t *testing.T) {
	chunks, err := Split("a b c d e f g h", Config{Mode: ModeWord, MaxChunkLength: 5})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"a b c d", "e f g h"}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for _, c := range chunks {
		if c.Carried != 0 {
			t.Fatalf("expected no carried words, got %d", c.Carried)
		}
	}
}

func TestSplitWordOverlapLargerThanChunk(t *testing.T) {
	chunks, err := Split("supercalifragilistic expialidocious", Config{Mode: ModeWord, MaxChunkLength: 4, OverlapWords: 5})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []string{"supercalifragilistic", "expialidocious"}
	if got := texts(chunks); !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSplitRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{Mode: ModeSentence, MaxChunkLength: 0},
		{Mode: ModeWord, MaxChunkLength: -1},
		{Mode: ModeWord, MaxChunkLength: 10, OverlapWords: -1},
		{Mode: "paragraph", MaxChunkLength: 10},
	}
	for _, cfg := range cases {
		chunks, err := Split("Some text.", cfg)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("config %+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
		if chunks != nil {
			t.Fatalf("config %+v: expected no chunks", cfg)
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split(" \n\t ", Config{Mode: ModeSentence, MaxChunkLength: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %q", texts(chunks))
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := "Repeat after me. Determinism matters! Does it? Yes."
	cfg := Config{Mode: ModeSentence, MaxChunkLength: 18}
	first, _ := Split(text, cfg)
	for i := 0; i < 5; i++ {
		again, _ := Split(text, cfg)
		if !equalStrings(texts(first), texts(again)) {
			t.Fatalf("split is not deterministic")
		}
	}
}

func TestSentencesKeepsAbbreviationLikeDots(t *testing.T) {
	got := Sentences("Version 2.5 shipped. Great")
	want := []string{"Version 2.5 shipped.", "Great"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
