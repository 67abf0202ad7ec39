package store

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// vectorStoreAPI mirrors the go-openai methods the store calls, so any
// OpenAI-compatible server can back it.
type vectorStoreAPI interface {
	CreateVectorStore(ctx context.Context, request openai.VectorStoreRequest) (openai.VectorStore, error)
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
	CreateVectorStoreFile(ctx context.Context, vectorStoreID string, request openai.VectorStoreFileRequest) (openai.VectorStoreFile, error)
	RetrieveVectorStoreFile(ctx context.Context, vectorStoreID string, fileID string) (openai.VectorStoreFile, error)
}

// OpenAI is an OpenAI-compatible vector store. A file whose attach or poll
// step failed is remembered, so a retried Upload attaches the same file
// object instead of uploading the bytes again.
type OpenAI struct {
	api          vectorStoreAPI
	PollInterval time.Duration
	PollTimeout  time.Duration

	mu       sync.Mutex
	uploaded map[string]string // storeID + "/" + file name -> file ID
}

// NewOpenAI builds a store against baseURL, or the public API when empty.
func NewOpenAI(apiKey, baseURL string, httpClient *http.Client) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAI{api: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Name() string        { return "openai-vector-store" }
func (o *OpenAI) Persistence() string { return "until deleted or expired by the provider" }

func (o *OpenAI) Create(ctx context.Context, corpusName string) (string, error) {
	vs, err := o.api.CreateVectorStore(ctx, openai.VectorStoreRequest{
		Name:     corpusName,
		Metadata: map[string]any{"created_by": "webcorpus"},
	})
	if err != nil {
		return "", fmt.Errorf("create vector store: %w", err)
	}
	log.Info().Str("store", vs.ID).Str("corpus", corpusName).Msg("vector store created")
	return vs.ID, nil
}

func (o *OpenAI) fileID(ctx context.Context, storeID string, f File) (string, error) {
	key := storeID + "/" + f.Name
	o.mu.Lock()
	id, ok := o.uploaded[key]
	o.mu.Unlock()
	if ok {
		log.Debug().Str("file", id).Str("name", f.Name).Msg("reusing uploaded file")
		return id, nil
	}
	file, err := o.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    f.Name,
		Bytes:   f.Body,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	o.mu.Lock()
	if o.uploaded == nil {
		o.uploaded = make(map[string]string)
	}
	o.uploaded[key] = file.ID
	o.mu.Unlock()
	return file.ID, nil
}

func (o *OpenAI) forget(storeID string, f File) {
	o.mu.Lock()
	delete(o.uploaded, storeID+"/"+f.Name)
	o.mu.Unlock()
}

func (o *OpenAI) Upload(ctx context.Context, storeID string, f File) (Receipt, error) {
	fileID, err := o.fileID(ctx, storeID, f)
	if err != nil {
		return Receipt{}, err
	}
	vf, err := o.api.CreateVectorStoreFile(ctx, storeID, openai.VectorStoreFileRequest{FileID: fileID})
	if err != nil {
		return Receipt{}, fmt.Errorf("attach %s: %w", f.Name, err)
	}

	interval := o.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := o.PollTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		switch vf.Status {
		case "completed":
			o.forget(storeID, f)
			return Receipt{DocumentID: fileID, Name: f.Name, Bytes: len(f.Body)}, nil
		case "failed", "cancelled":
			o.forget(storeID, f)
			return Receipt{}, fmt.Errorf("index %s: %w: status %s", f.Name, ErrIndexFailed, vf.Status)
		}
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
		vf, err = o.api.RetrieveVectorStoreFile(ctx, storeID, fileID)
		if err != nil {
			return Receipt{}, fmt.Errorf("poll %s: %w", f.Name, err)
		}
	}
}
