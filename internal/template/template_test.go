package template

import (
	"strings"
	"testing"
)

func TestGetProfile(t *testing.T) {
	tests := []struct {
		name         string
		storeType    string
		expectedType Type
		expectedName string
	}{
		{"Gemini flag", "gemini", Gemini, "Gemini File Search"},
		{"Gemini store name", "gemini-file-search", Gemini, "Gemini File Search"},
		{"Gemini mixed case", "  Google ", Gemini, "Gemini File Search"},
		{"Gemini partial", "my-gemini-thing", Gemini, "Gemini File Search"},

		{"OpenAI flag", "openai", OpenAI, "OpenAI Vector Store"},
		{"OpenAI store name", "openai-vector-store", OpenAI, "OpenAI Vector Store"},
		{"OpenAI partial", "azure-openai", OpenAI, "OpenAI Vector Store"},

		{"Local flag", "local", Local, "Local Directory"},
		{"Local store name", "local-directory", Local, "Local Directory"},
		{"Empty string", "", Local, "Local Directory"},
		{"Unknown type", "pinecone", Local, "Local Directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := GetProfile(tt.storeType)
			if profile.Type != tt.expectedType {
				t.Errorf("GetProfile(%q) type = %v, want %v", tt.storeType, profile.Type, tt.expectedType)
			}
			if profile.Name != tt.expectedName {
				t.Errorf("GetProfile(%q) name = %q, want %q", tt.storeType, profile.Name, tt.expectedName)
			}
		})
	}
}

func TestProfilesHaveDocsAndOutline(t *testing.T) {
	for _, p := range []Profile{geminiProfile(), openAIProfile(), localProfile()} {
		if len(p.Docs) == 0 {
			t.Errorf("%s: expected documentation links", p.Type)
		}
		if len(p.Outline) < 3 {
			t.Errorf("%s: outline too short: %v", p.Type, p.Outline)
		}
		if p.Outline[len(p.Outline)-1] != "Example Queries" {
			t.Errorf("%s: expected Example Queries last, got %q", p.Type, p.Outline[len(p.Outline)-1])
		}
	}
}

func sampleData() Data {
	return Data{
		CorpusName:         "Example Docs",
		StoreID:            "fileSearchStores/example-docs-123",
		StoreType:          "gemini-file-search",
		StoragePersistence: "permanent (until deleted)",
		FilesIndexed:       95,
		DocumentsUploaded:  4,
		TotalSizeMB:        1.5,
		EstimatedTokens:    393216,
		IndexingCost:       "$0.06",
		QueryCost:          "~$0.0004-0.0008 per query",
		Backend:            "apify/website-content-crawler",
		Target:             "https://docs.example.com/",
	}
}

func TestRender_GeminiGuide(t *testing.T) {
	out, err := Render(GetProfile("gemini"), sampleData())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"# Query Guide: Example Docs",
		"**Files Indexed:** 95 pages in 4 documents",
		"**Size:** 1.50 MB",
		"https://ai.google.dev/gemini-api/docs/file-search",
		`FileSearchStoreNames: []string{"fileSearchStores/example-docs-123"}`,
		`file_search_store_names=["fileSearchStores/example-docs-123"]`,
		"## Example Queries",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("guide missing %q\n%s", want, out)
		}
	}
}

func TestRender_OpenAIAndLocalGuides(t *testing.T) {
	d := sampleData()
	d.StoreID = "vs_abc123"
	out, err := Render(GetProfile("openai"), d)
	if err != nil {
		t.Fatalf("Render openai: %v", err)
	}
	if !strings.Contains(out, `"vector_store_ids": ["vs_abc123"]`) {
		t.Fatalf("openai guide should reference the vector store id:\n%s", out)
	}
	if strings.Contains(out, "aistudio") {
		t.Fatalf("openai guide should not mention AI Studio")
	}

	d.StoreID = "corpus/example-docs"
	out, err = Render(GetProfile("local"), d)
	if err != nil {
		t.Fatalf("Render local: %v", err)
	}
	if !strings.Contains(out, `grep -rn "your term" "corpus/example-docs"`) {
		t.Fatalf("local guide should show the directory:\n%s", out)
	}
}

func TestRender_RequiresCorpusName(t *testing.T) {
	d := sampleData()
	d.CorpusName = " "
	if _, err := Render(GetProfile("gemini"), d); err == nil {
		t.Fatalf("expected error for empty corpus name")
	}
}
