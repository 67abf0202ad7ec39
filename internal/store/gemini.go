package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// fileSearchAPI is the subset of the genai client the Gemini store needs.
type fileSearchAPI interface {
	CreateStore(ctx context.Context, displayName string) (string, error)
	Upload(ctx context.Context, r io.Reader, storeName string, cfg *genai.UploadToFileSearchStoreConfig) (*genai.UploadToFileSearchStoreOperation, error)
	Poll(ctx context.Context, op *genai.UploadToFileSearchStoreOperation) (*genai.UploadToFileSearchStoreOperation, error)
}

type genaiFileSearch struct {
	client *genai.Client
}

func (g genaiFileSearch) CreateStore(ctx context.Context, displayName string) (string, error) {
	st, err := g.client.FileSearchStores.Create(ctx, &genai.CreateFileSearchStoreConfig{DisplayName: displayName})
	if err != nil {
		return "", err
	}
	return st.Name, nil
}

func (g genaiFileSearch) Upload(ctx context.Context, r io.Reader, storeName string, cfg *genai.UploadToFileSearchStoreConfig) (*genai.UploadToFileSearchStoreOperation, error) {
	return g.client.FileSearchStores.UploadToFileSearchStore(ctx, r, storeName, cfg)
}

func (g genaiFileSearch) Poll(ctx context.Context, op *genai.UploadToFileSearchStoreOperation) (*genai.UploadToFileSearchStoreOperation, error) {
	return g.client.Operations.GetUploadToFileSearchStoreOperation(ctx, op, nil)
}

// Gemini is a Gemini File Search store.
type Gemini struct {
	api fileSearchAPI
	// PollInterval between operation checks. Zero means 2s.
	PollInterval time.Duration
	// PollTimeout bounds the wait for one file to index. Zero means 300s.
	PollTimeout time.Duration
}

// NewGemini builds a store on the Gemini Developer API.
func NewGemini(ctx context.Context, apiKey string, httpClient *http.Client) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{api: genaiFileSearch{client: client}}, nil
}

func (g *Gemini) Name() string        { return "gemini-file-search" }
func (g *Gemini) Persistence() string { return "permanent (until deleted)" }

func (g *Gemini) Create(ctx context.Context, corpusName string) (string, error) {
	name, err := g.api.CreateStore(ctx, corpusName)
	if err != nil {
		return "", fmt.Errorf("create file search store: %w", err)
	}
	log.Info().Str("store", name).Str("corpus", corpusName).Msg("file search store created")
	return name, nil
}

func (g *Gemini) Upload(ctx context.Context, storeID string, f File) (Receipt, error) {
	cfg := &genai.UploadToFileSearchStoreConfig{
		MIMEType:    f.MIMEType,
		DisplayName: f.DisplayName,
	}
	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg.CustomMetadata = append(cfg.CustomMetadata, &genai.CustomMetadata{Key: k, StringValue: f.Metadata[k]})
	}

	op, err := g.api.Upload(ctx, bytes.NewReader(f.Body), storeID, cfg)
	if err != nil {
		return Receipt{}, fmt.Errorf("upload %s: %w", f.Name, err)
	}

	interval := g.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := g.PollTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for !op.Done {
		if time.Now().After(deadline) {
			return Receipt{}, fmt.Errorf("%s: %w", f.Name, ErrIndexTimeout)
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Receipt{}, ctx.Err()
		case <-t.C:
		}
		next, err := g.api.Poll(ctx, op)
		if err != nil {
			return Receipt{}, fmt.Errorf("poll %s: %w", f.Name, err)
		}
		op = next
	}
	if op.Error != nil {
		return Receipt{}, fmt.Errorf("index %s: %w: %s", f.Name, ErrIndexFailed, describe(op.Error))
	}
	id := op.Name
	if op.Response != nil && op.Response.DocumentName != "" {
		id = op.Response.DocumentName
	}
	return Receipt{DocumentID: id, Name: f.Name, Bytes: len(f.Body)}, nil
}
