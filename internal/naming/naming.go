// Package naming renames face_<n> captures after the text read from them,
// typically a name tag, with the operator confirming every step.
package naming

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/kozaktomas/face-registry/internal/ai"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var trailingSymbols = regexp.MustCompile("[!@#$%^&*()_+{}\\[\\]:;<>,.?/\\\\|`~-]+$")

// CleanText removes trailing punctuation and symbols that OCR tends to pick up.
func CleanText(s string) string {
	return strings.TrimSpace(trailingSymbols.ReplaceAllString(strings.TrimSpace(s), ""))
}

var titleCaser = cases.Title(language.Und)

// Title capitalizes every word and lowercases the rest: "MARIA SILVA" -> "Maria Silva".
func Title(s string) string {
	return titleCaser.String(strings.Join(strings.Fields(s), " "))
}

// Images is the directory being named.
type Images interface {
	List() ([]string, error)
	ReadFile(name string) ([]byte, error)
	Rename(name, newBase string) (string, error)
}

// TextReader reads the text visible in an image.
type TextReader interface {
	ReadText(ctx context.Context, imageData []byte) ([]ai.TextRegion, error)
}

// Prompter asks the operator to confirm a value. An empty answer keeps it.
type Prompter interface {
	Ask(question, current string) (string, error)
}

// LinePrompter prompts on a terminal, one answer per line.
type LinePrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewLinePrompter reads answers from in and writes questions to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewScanner(in), out: out}
}

// Ask prints the question and the current value and returns the trimmed answer.
func (p *LinePrompter) Ask(question, current string) (string, error) {
	fmt.Fprintln(p.out, `Press "enter" to keep the detected text.`)
	fmt.Fprintf(p.out, "%s\n\t%s\n> ", question, current)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// Summary counts the outcome of a run.
type Summary struct {
	Renamed int
	Skipped int
	Failed  int
}

// Namer renames unidentified captures.
type Namer struct {
	Images Images
	Reader TextReader
	Prompt Prompter
	Log    *logrus.Entry
}

// Run processes every face_ image. A prompt failure (closed input) aborts the
// run; OCR and rename failures skip the image.
func (n *Namer) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	names, err := n.Images.List()
	if err != nil {
		return summary, err
	}

	for _, name := range names {
		if !strings.HasPrefix(strings.ToLower(name), database.SynthesizedPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		log := n.Log.WithField("image", name)

		texts, err := n.readTexts(ctx, name)
		if err != nil {
			log.WithError(err).Warn("text recognition failed")
			summary.Failed++
			continue
		}
		if len(texts) == 0 {
			log.Info("no text found, skipping")
			summary.Skipped++
			continue
		}

		newBase, err := n.confirm(texts)
		if err != nil {
			return summary, fmt.Errorf("reading answer: %w", err)
		}
		if newBase == "" {
			log.Info("empty name, skipping")
			summary.Skipped++
			continue
		}

		renamed, err := n.Images.Rename(name, newBase)
		if err != nil {
			log.WithError(err).Error("rename failed")
			summary.Failed++
			continue
		}
		log.WithField("new_name", renamed).Info("image renamed")
		summary.Renamed++
	}
	return summary, nil
}

func (n *Namer) readTexts(ctx context.Context, name string) ([]string, error) {
	data, err := n.Images.ReadFile(name)
	if err != nil {
		return nil, err
	}
	regions, err := n.Reader.ReadText(ctx, data)
	if err != nil {
		return nil, err
	}
	var texts []string
	for _, r := range regions {
		if t := CleanText(r.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

// confirm lets the operator correct each text and then the joined name.
func (n *Namer) confirm(texts []string) (string, error) {
	confirmed := make([]string, len(texts))
	for i, text := range texts {
		answer, err := n.Prompt.Ask("Change the detected text?", text)
		if err != nil {
			return "", err
		}
		confirmed[i] = text
		if answer != "" {
			confirmed[i] = answer
		}
	}

	joined := strings.Join(confirmed, " ")
	answer, err := n.Prompt.Ask("Change the name?", joined)
	if err != nil {
		return "", err
	}
	if answer != "" {
		joined = answer
	}
	return Title(joined), nil
}
