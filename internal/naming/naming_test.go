package naming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/ai"
	"github.com/kozaktomas/face-registry/internal/imagestore"
	"github.com/kozaktomas/face-registry/internal/logging"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MARIA.", "MARIA"},
		{"Silva!!?", "Silva"},
		{"  João-  ", "João"},
		{"O'Brien", "O'Brien"},
		{"...", ""},
		{"Ana_", "Ana"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MARIA SILVA", "Maria Silva"},
		{"joão  da   costa", "João Da Costa"},
		{"ana", "Ana"},
	}
	for _, tt := range tests {
		if got := Title(tt.in); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("\n  Maria \n"), &out)

	answer, err := p.Ask("Change?", "MARIA")
	if err != nil || answer != "" {
		t.Errorf("expected empty answer, got %q %v", answer, err)
	}
	answer, err = p.Ask("Change?", "MARIA")
	if err != nil || answer != "Maria" {
		t.Errorf("expected trimmed answer, got %q %v", answer, err)
	}
	if _, err := p.Ask("Change?", "MARIA"); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
	if !strings.Contains(out.String(), "\tMARIA") {
		t.Errorf("question should show the current value, got %q", out.String())
	}
}

type fakeReader struct {
	texts map[string][]ai.TextRegion // keyed by file content
	err   error
}

func (r *fakeReader) ReadText(_ context.Context, data []byte) ([]ai.TextRegion, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.texts[string(data)], nil
}

type scriptedPrompter struct {
	answers []string
	asked   []string
}

func (p *scriptedPrompter) Ask(_, current string) (string, error) {
	p.asked = append(p.asked, current)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func newStore(t *testing.T, files map[string]string) *imagestore.Store {
	t.Helper()
	s := imagestore.New(filepath.Join(t.TempDir(), "images"))
	if err := s.Ensure(); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestRun(t *testing.T) {
	store := newStore(t, map[string]string{
		"alice.jpg":  "a",
		"face_0.jpg": "tag",
		"face_1.png": "blank",
	})
	reader := &fakeReader{texts: map[string][]ai.TextRegion{
		"tag": {{Text: "MARIA."}, {Text: "SILVA"}},
		"a":   {{Text: "should not be read"}},
	}}
	prompt := &scriptedPrompter{answers: []string{"", "SOUZA", ""}}

	n := &Namer{Images: store, Reader: reader, Prompt: prompt, Log: logging.Discard()}
	summary, err := n.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary != (Summary{Renamed: 1, Skipped: 1}) {
		t.Errorf("summary = %+v", summary)
	}
	if !reflect.DeepEqual(prompt.asked, []string{"MARIA", "SILVA", "MARIA SOUZA"}) {
		t.Errorf("prompts = %v", prompt.asked)
	}

	files, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Maria Souza.jpg", "alice.jpg", "face_1.png"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
}

func TestRun_OperatorOverridesName(t *testing.T) {
	store := newStore(t, map[string]string{"face_0.jpg": "tag"})
	reader := &fakeReader{texts: map[string][]ai.TextRegion{"tag": {{Text: "M4RIA"}}}}
	prompt := &scriptedPrompter{answers: []string{"", "maria silva"}}

	n := &Namer{Images: store, Reader: reader, Prompt: prompt, Log: logging.Discard()}
	if _, err := n.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !store.Exists("Maria Silva.jpg") {
		t.Error("expected file renamed to the operator's name")
	}
}

func TestRun_ClosedInputAborts(t *testing.T) {
	store := newStore(t, map[string]string{"face_0.jpg": "tag"})
	reader := &fakeReader{texts: map[string][]ai.TextRegion{"tag": {{Text: "ANA"}}}}

	n := &Namer{Images: store, Reader: reader, Prompt: &scriptedPrompter{}, Log: logging.Discard()}
	if _, err := n.Run(context.Background()); err == nil {
		t.Error("expected error when input is closed")
	}
	if !store.Exists("face_0.jpg") {
		t.Error("image must not be renamed")
	}
}

func TestRun_OCRFailureSkips(t *testing.T) {
	store := newStore(t, map[string]string{"face_0.jpg": "tag"})
	n := &Namer{
		Images: store,
		Reader: &fakeReader{err: errors.New("quota exceeded")},
		Prompt: &scriptedPrompter{},
		Log:    logging.Discard(),
	}
	summary, err := n.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_ExistingNameIsNotOverwritten(t *testing.T) {
	store := newStore(t, map[string]string{"face_0.jpg": "tag", "Ana.jpg": "x"})
	reader := &fakeReader{texts: map[string][]ai.TextRegion{"tag": {{Text: "ANA"}}}}
	prompt := &scriptedPrompter{answers: []string{"", ""}}

	n := &Namer{Images: store, Reader: reader, Prompt: prompt, Log: logging.Discard()}
	summary, err := n.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || !store.Exists("face_0.jpg") {
		t.Errorf("expected failed rename, summary %+v", summary)
	}
}
