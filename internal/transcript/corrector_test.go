package transcript_test

import (
	"testing"

	"github.com/MrWong99/pushtalk/internal/transcript"
)

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector([]string{"Kubernetes", "Tower of Whispers"})

	tests := []struct {
		name  string
		in    string
		want  string
		fixes int
	}{
		{
			name:  "single word keeps punctuation",
			in:    "deploy it to kubernetis.",
			want:  "deploy it to Kubernetes.",
			fixes: 1,
		},
		{
			name:  "multi word entry",
			in:    "Meet me at the tower of wispers, tonight",
			want:  "Meet me at the Tower of Whispers, tonight",
			fixes: 1,
		},
		{
			name:  "already correct",
			in:    "Kubernetes rocks",
			want:  "Kubernetes rocks",
			fixes: 0,
		},
		{
			name:  "case is restored",
			in:    "KUBERNETES",
			want:  "Kubernetes",
			fixes: 1,
		},
		{
			name:  "nothing to fix",
			in:    "hello world",
			want:  "hello world",
			fixes: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, fixes := c.Correct(tt.in)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if len(fixes) != tt.fixes {
				t.Errorf("Correct(%q) made %d corrections %+v, want %d", tt.in, len(fixes), fixes, tt.fixes)
			}
		})
	}
}

func TestCorrector_RecordsOriginal(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector([]string{"Tower of Whispers"})
	_, fixes := c.Correct("the tower of wispers!")
	if len(fixes) != 1 {
		t.Fatalf("corrections = %+v, want one", fixes)
	}
	if fixes[0].Original != "tower of wispers" || fixes[0].Corrected != "Tower of Whispers" {
		t.Errorf("correction = %+v", fixes[0])
	}
	if fixes[0].Score <= 0.7 || fixes[0].Score > 1 {
		t.Errorf("score = %f, want in (0.7, 1]", fixes[0].Score)
	}
}

func TestCorrector_EmptyVocabularyIsIdentity(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(nil)
	in := "  spacing   stays  "
	got, fixes := c.Correct(in)
	if got != in || fixes != nil {
		t.Errorf("Correct(%q) = %q, %v; want input unchanged", in, got, fixes)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
