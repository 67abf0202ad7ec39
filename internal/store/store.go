// Package store uploads assembled documents to a semantic-search store.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/hyperifyio/webcorpus/internal/assemble"
)

// File is one upload unit rendered from a Document.
type File struct {
	Name        string
	DisplayName string
	MIMEType    string
	Body        []byte
	Metadata    map[string]string
}

// Receipt identifies an indexed file inside a store.
type Receipt struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Bytes      int    `json:"bytes"`
}

// Store is a hosted or local semantic-search store.
type Store interface {
	// Name is the store type reported in the run summary.
	Name() string
	// Persistence describes how long uploaded files are kept.
	Persistence() string
	// Create makes a new store for the corpus and returns its identifier.
	Create(ctx context.Context, corpusName string) (string, error)
	// Upload indexes f and returns once the store reports it searchable.
	Upload(ctx context.Context, storeID string, f File) (Receipt, error)
}

var (
	// ErrIndexTimeout is returned when a store does not finish indexing a
	// file within the configured wait.
	ErrIndexTimeout = errors.New("timed out waiting for indexing")
	// ErrIndexFailed is returned when the store accepted a file but reported
	// that indexing it failed.
	ErrIndexFailed = errors.New("indexing failed")
)

// Render turns a document into an upload file. Every span gets a header
// with its source URL and title so retrieved chunks cite the page they came
// from.
func Render(doc assemble.Document, corpus string) File {
	var b strings.Builder
	for i, s := range doc.Provenance {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("---\n")
		b.WriteString("Source: " + s.URL + "\n")
		if s.Title != "" {
			b.WriteString("Title: " + oneLine(s.Title) + "\n")
		}
		if s.Truncated > 0 {
			b.WriteString("Truncated: " + strconv.Itoa(s.Truncated) + " bytes omitted\n")
		}
		b.WriteString("---\n\n")
		b.Write(doc.Content[s.Start:s.End])
		if s.End > s.Start && doc.Content[s.End-1] != '\n' {
			b.WriteString("\n")
		}
	}
	meta := map[string]string{
		"corpus":   corpus,
		"document": doc.ID,
		"pages":    strconv.Itoa(len(doc.Provenance)),
	}
	display := doc.ID
	if len(doc.Provenance) > 0 {
		meta["source"] = doc.Provenance[0].URL
		if t := oneLine(doc.Provenance[0].Title); t != "" {
			display = doc.ID + " " + t
		}
	}
	return File{
		Name:        doc.ID + ".md",
		DisplayName: truncateRunes(display, 120),
		MIMEType:    "text/plain",
		Body:        []byte(b.String()),
		Metadata:    meta,
	}
}

// Retryable reports whether an upload error may succeed on another
// attempt. Cancellation, deadline, authentication and request errors are
// final, and so is a store that rejected or never finished indexing a file.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrIndexFailed) || errors.Is(err, ErrIndexTimeout) {
		return false
	}
	var oe *openai.APIError
	if errors.As(err, &oe) {
		return retryableStatus(oe.HTTPStatusCode)
	}
	var re *openai.RequestError
	if errors.As(err, &re) {
		return retryableStatus(re.HTTPStatusCode)
	}
	var ge genai.APIError
	if errors.As(err, &ge) {
		return retryableStatus(ge.Code)
	}
	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == 0:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return true
	}
	return false
}

var slugRE = regexp.MustCompile(`[^a-z0-9]+`)

// Slug is a filesystem and URL safe form of a corpus name. A name with no
// usable characters gets a random suffix.
func Slug(name string) string {
	s := strings.Trim(slugRE.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		s = "corpus-" + uuid.NewString()[:8]
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func describe(m map[string]any) string {
	if m == nil {
		return ""
	}
	if msg, ok := m["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprint(m)
}
