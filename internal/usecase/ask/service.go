// Package ask answers questions against a session's ingested document:
// embed the question, retrieve the nearest chunks, prompt the model
// with them, and cite the excerpts the reply leans on.
package ask

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/index"
	logpkg "github.com/kestrel-labs/docqa/internal/logger"
	"github.com/kestrel-labs/docqa/internal/session"
)

// RefusalText is the canonical reply when the retrieved context cannot
// support an answer. The prompt instructs the model to emit it verbatim
// so the service can detect an ungrounded reply.
const RefusalText = "I don't have enough information in the provided document to answer that."

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// Result is one answered question with its retrieval context.
type Result struct {
	Answer    domain.Answer
	Source    string
	Retrieved int
	Tokens    int
}

// Service runs the question-answering pipeline. Log lines go through
// the request-scoped logger in the context.
type Service struct {
	embedder  Embedder
	generator Generator
	topK      int
}

// New creates an ask service retrieving topK chunks per question.
func New(e Embedder, g Generator, topK int) *Service {
	if topK <= 0 {
		topK = 4
	}
	return &Service{
		embedder:  e,
		generator: g,
		topK:      topK,
	}
}

// Ask answers the question from the session's ingested document.
// A session with nothing ingested gets the refusal answer rather than
// an error; the user simply has not uploaded anything yet.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: empty question", domain.ErrEmptyQuestion)
	}

	ix, source, err := sess.Index()
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotReady) {
			return Result{Answer: refusal()}, nil
		}
		return Result{}, err
	}

	qvec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}

	hits, err := ix.Search(qvec.Embedding, s.topK)
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return Result{Answer: refusal(), Source: source}, nil
	}

	gen, err := s.generator.Generate(ctx, buildPrompt(question, source, hits))
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	answer := parseAnswer(gen.Text, hits)

	logpkg.FromContext(ctx).Debug("Question answered",
		zap.String("session", sess.ID),
		zap.String("source", source),
		zap.Int("retrieved", len(hits)),
		zap.Int("citations", len(answer.Citations)),
		zap.Bool("grounded", answer.Grounded),
		zap.Int("tokens", gen.TotalTokens),
	)

	return Result{
		Answer:    answer,
		Source:    source,
		Retrieved: len(hits),
		Tokens:    gen.TotalTokens,
	}, nil
}

func refusal() domain.Answer {
	return domain.Answer{Text: RefusalText, Grounded: false}
}

// buildPrompt numbers the retrieved excerpts so the model can cite
// them as [n] and pins the refusal wording for the insufficient case.
func buildPrompt(question, source string, hits []index.Hit) string {
	var b strings.Builder
	b.WriteString("You answer questions using only the excerpts below, taken from \"")
	b.WriteString(source)
	b.WriteString("\".\n")
	b.WriteString("Cite every excerpt you rely on by its number, like [1] or [2].\n")
	b.WriteString("If the excerpts do not contain the answer, reply with exactly: ")
	b.WriteString(RefusalText)
	b.WriteString("\n\nExcerpts:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(h.Chunk.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// parseAnswer extracts [n] citation markers from the reply and maps
// them back to the retrieved chunks. A reply with no usable markers
// still counts as grounded and cites everything that was retrieved;
// the refusal reply carries no citations.
func parseAnswer(text string, hits []index.Hit) domain.Answer {
	text = strings.TrimSpace(text)
	if strings.Contains(text, RefusalText) {
		return domain.Answer{Text: text, Grounded: false}
	}

	var citations []domain.Citation
	seen := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(hits) {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, toCitation(hits[n-1].Chunk))
	}

	if len(citations) == 0 {
		for _, h := range hits {
			citations = append(citations, toCitation(h.Chunk))
		}
	}

	return domain.Answer{Text: text, Citations: citations, Grounded: true}
}

func toCitation(c domain.Chunk) domain.Citation {
	return domain.Citation{Source: c.Source, Index: c.Index, Offset: c.Offset}
}
