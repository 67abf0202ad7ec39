// Package template renders the query guide that tells a user how to ask
// questions against a finished corpus. Each store type has its own profile
// because the query surface differs per provider.
package template

import (
	"fmt"
	"strings"
	texttemplate "text/template"
)

// Type represents the supported store families.
type Type string

const (
	// Gemini is a Gemini File Search store.
	Gemini Type = "gemini"
	// OpenAI is an OpenAI compatible vector store.
	OpenAI Type = "openai"
	// Local is a directory of Markdown files on disk.
	Local Type = "local"
)

// Profile defines the guide sections for one store family.
type Profile struct {
	Type        Type
	Name        string
	Description string
	// Docs are official documentation links.
	Docs []string
	// Outline lists the section headings in render order.
	Outline []string
	body    string
}

// Data is what a guide is rendered from.
type Data struct {
	CorpusName         string
	StoreID            string
	StoreType          string
	StoragePersistence string
	FilesIndexed       int
	DocumentsUploaded  int
	TotalSizeMB        float64
	EstimatedTokens    int
	IndexingCost       string
	QueryCost          string
	Backend            string
	Target             string
}

// GetProfile returns the profile for a store type or store name. Unknown
// values get the local profile, which makes no provider claims.
func GetProfile(storeType string) Profile {
	switch Type(normalizeType(storeType)) {
	case Gemini:
		return geminiProfile()
	case OpenAI:
		return openAIProfile()
	default:
		return localProfile()
	}
}

// normalizeType converts a flag value or store name to a canonical Type.
func normalizeType(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "gemini", "gemini-file-search", "google", "file-search":
		return string(Gemini)
	case "openai", "openai-vector-store", "vector-store":
		return string(OpenAI)
	case "local", "local-directory", "dir", "directory":
		return string(Local)
	}
	// Try to map substrings conservatively
	if strings.Contains(v, "gemini") {
		return string(Gemini)
	}
	if strings.Contains(v, "openai") {
		return string(OpenAI)
	}
	return string(Local)
}

var funcs = texttemplate.FuncMap{
	"mb": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

// Render produces the Markdown guide for d.
func Render(p Profile, d Data) (string, error) {
	if strings.TrimSpace(d.CorpusName) == "" {
		return "", fmt.Errorf("render guide: empty corpus name")
	}
	t, err := texttemplate.New(string(p.Type)).Funcs(funcs).Parse(header + p.body + footer)
	if err != nil {
		return "", fmt.Errorf("parse %s guide: %w", p.Type, err)
	}
	var b strings.Builder
	if err := t.Execute(&b, struct {
		Data
		Profile Profile
	}{d, p}); err != nil {
		return "", fmt.Errorf("render %s guide: %w", p.Type, err)
	}
	return b.String(), nil
}

const header = `# Query Guide: {{.CorpusName}}

Your knowledge base is ready.

## Knowledge Base Details

- **Store:** ` + "`{{.StoreID}}`" + ` ({{.StoreType}})
- **Source:** {{.Target}} via {{.Backend}}
- **Files Indexed:** {{.FilesIndexed}} pages in {{.DocumentsUploaded}} documents
- **Size:** {{mb .TotalSizeMB}} MB, about {{.EstimatedTokens}} tokens
- **Storage:** {{.StoragePersistence}}
- **Indexing cost:** {{.IndexingCost}}
- **Queries:** {{.QueryCost}}

---

## Official Documentation
{{range .Profile.Docs}}
- {{.}}{{end}}

`

const footer = `
---

## Example Queries

- What are the main topics covered?
- Summarize the key concepts.
- Find examples of best practices.
- What are the common mistakes to avoid?
- Explain [specific concept] in simple terms.
`

func geminiProfile() Profile {
	return Profile{
		Type:        Gemini,
		Name:        "Gemini File Search",
		Description: "Query through Google AI Studio or the Gemini API file_search tool",
		Docs: []string{
			"https://ai.google.dev/gemini-api/docs/file-search",
			"https://ai.google.dev/api/file-search",
		},
		Outline: []string{"Knowledge Base Details", "Official Documentation", "Google AI Studio", "Go SDK", "Python SDK", "Example Queries"},
		body: `**Important:** use the **same Gemini API key** that created the store. File Search stores belong to the key that created them.

---

## How to Query Your Knowledge Base

### Method 1: Google AI Studio

1. Visit **https://aistudio.google.com**
2. Sign in with the account that owns the API key
3. Create a new chat
4. Click **Add resources** and pick **File Search Stores**
5. Select **` + "`{{.CorpusName}}`" + `** from your stores list
6. Ask questions; answers cite the indexed pages

### Method 2: Go SDK

` + "```go" + `
client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: os.Getenv("GEMINI_API_KEY")})
if err != nil {
	log.Fatal(err)
}
tool := &genai.Tool{FileSearch: &genai.FileSearch{
	FileSearchStoreNames: []string{"{{.StoreID}}"},
}}
resp, err := client.Models.GenerateContent(ctx, "gemini-2.5-flash",
	genai.Text("Your question here"),
	&genai.GenerateContentConfig{Tools: []*genai.Tool{tool}})
if err != nil {
	log.Fatal(err)
}
fmt.Println(resp.Text())
` + "```" + `

### Method 3: Python SDK

` + "```python" + `
from google import genai
from google.genai import types

client = genai.Client(api_key="YOUR_GEMINI_API_KEY")
response = client.models.generate_content(
    model="gemini-2.5-flash",
    contents="Your question here",
    config=types.GenerateContentConfig(
        tools=[types.Tool(file_search=types.FileSearch(
            file_search_store_names=["{{.StoreID}}"]
        ))]
    ),
)
print(response.text)
` + "```" + `

Install with ` + "`pip install google-genai`" + `.
`,
	}
}

func openAIProfile() Profile {
	return Profile{
		Type:        OpenAI,
		Name:        "OpenAI Vector Store",
		Description: "Query through the Responses API file_search tool",
		Docs: []string{
			"https://platform.openai.com/docs/guides/tools-file-search",
			"https://platform.openai.com/docs/api-reference/vector-stores",
		},
		Outline: []string{"Knowledge Base Details", "Official Documentation", "Responses API", "Vector store search", "Example Queries"},
		body: `**Important:** use an API key from the **same project** that owns the vector store.

---

## How to Query Your Knowledge Base

### Method 1: Responses API with file search

` + "```bash" + `
curl https://api.openai.com/v1/responses \
  -H "Authorization: Bearer $OPENAI_API_KEY" \
  -H "Content-Type: application/json" \
  -d '{
    "model": "gpt-4.1-mini",
    "input": "Your question here",
    "tools": [{"type": "file_search", "vector_store_ids": ["{{.StoreID}}"]}]
  }'
` + "```" + `

### Method 2: Direct vector store search

` + "```bash" + `
curl https://api.openai.com/v1/vector_stores/{{.StoreID}}/search \
  -H "Authorization: Bearer $OPENAI_API_KEY" \
  -H "Content-Type: application/json" \
  -d '{"query": "Your question here"}'
` + "```" + `

Each indexed file starts with a header naming its source URL, so search
results can be traced back to the page they came from.
`,
	}
}

func localProfile() Profile {
	return Profile{
		Type:        Local,
		Name:        "Local Directory",
		Description: "Markdown files on disk for any retrieval tool",
		Docs:        []string{"https://commonmark.org/help/"},
		Outline:     []string{"Knowledge Base Details", "Official Documentation", "How to Use Your Knowledge Base", "Example Queries"},
		body: `## How to Use Your Knowledge Base

The corpus was written to ` + "`{{.StoreID}}`" + `. Every ` + "`.md`" + ` file holds
one or more pages, each preceded by a header block with its source URL and
title, and has a ` + "`.json`" + ` sidecar with its metadata.

Point any retrieval tool at that directory, or search it directly:

` + "```bash" + `
grep -rn "your term" "{{.StoreID}}"
` + "```" + `
`,
	}
}
