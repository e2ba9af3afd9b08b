// File path: internal/chunker/chunker.go
package chunker

import (
	"fmt"
	"strings"

	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/repo"
)

// Chunk is a bounded slice of one source file, annotated with the metadata
// the embedding store persists alongside it. Chunks are immutable once
// produced.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Metadata locates a chunk within its originating file and repository.
// StartLine and EndLine are 1-based inclusive.
type Metadata struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Language  string `json:"language"`
	RepoID    string `json:"repo_id"`
}

// Stats summarizes a chunking run.
type Stats struct {
	TotalChunks int `json:"total_chunks"`
	AverageSize int `json:"average_size"`
}

type Chunker struct{}

func New() *Chunker {
	return &Chunker{}
}

// ChunkFiles splits every file into chunks for the given repository. A file
// that cannot be chunked is logged and skipped; the remaining files still
// produce chunks.
func (c *Chunker) ChunkFiles(files []repo.File, repoID string) []Chunk {
	logger := common.Logger()
	var chunks []Chunk
	for _, file := range files {
		fileChunks, err := c.chunkFile(file, repoID)
		if err != nil {
			logger.Warn("chunker: skipping file", "path", file.Path, "repo", repoID, "error", err)
			continue
		}
		chunks = append(chunks, fileChunks...)
	}
	logger.Debug("chunker: chunking complete", "repo", repoID, "files", len(files), "chunks", len(chunks))
	return chunks
}

// ComputeStats reports aggregate counts for a produced chunk set.
func ComputeStats(chunks []Chunk) Stats {
	stats := Stats{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return stats
	}
	total := 0
	for _, chunk := range chunks {
		total += len(chunk.Content)
	}
	stats.AverageSize = total / len(chunks)
	return stats
}

func (c *Chunker) chunkFile(file repo.File, repoID string) (chunks []Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("chunk %s: %v", file.Path, r)
		}
	}()
	profile := profileFor(file.Language)
	header := contextHeader(file)
	lines := strings.Split(file.Content, "\n")
	if len(file.Content) <= profile.MaxChunkSize {
		return []Chunk{newChunk(file, repoID, header, file.Content, 1, len(lines), 0)}, nil
	}
	if profile.PreserveStructure {
		return chunkByStructure(file, repoID, profile, header, lines), nil
	}
	return chunkBySlidingWindow(file, repoID, profile, header), nil
}

// chunkByStructure walks marker-delimited sections and packs consecutive
// sections into chunks of at most MaxChunkSize characters. Line 1 is always
// a boundary so the chunks cover the whole file; a closed chunk's tail lines
// are re-seeded into the next chunk as overlap.
func chunkByStructure(file repo.File, repoID string, profile Profile, header string, lines []string) []Chunk {
	boundaries := findBoundaries(lines, profile.Markers)
	overlap := profile.OverlapLines()

	var chunks []Chunk
	bufStart, bufEnd := -1, -1
	bufLen := 0
	flush := func() {
		if bufStart < 0 || bufEnd < bufStart {
			return
		}
		content := strings.Join(lines[bufStart:bufEnd+1], "\n")
		chunks = append(chunks, newChunk(file, repoID, header, content, bufStart+1, bufEnd+1, len(chunks)))
	}
	for i, start := range boundaries {
		end := len(lines) - 1
		if i+1 < len(boundaries) {
			end = boundaries[i+1] - 1
		}
		sectionLen := lineSpanLen(lines, start, end)
		if bufStart >= 0 && bufLen+sectionLen > profile.MaxChunkSize {
			flush()
			seed := start - overlap
			if seed < 0 {
				seed = 0
			}
			bufStart = seed
			bufLen = lineSpanLen(lines, seed, start-1)
		}
		if bufStart < 0 {
			bufStart = start
		}
		bufEnd = end
		bufLen += sectionLen
	}
	flush()
	return chunks
}

// chunkBySlidingWindow slides a fixed window across the raw content with a
// stride of MaxChunkSize-OverlapSize characters.
func chunkBySlidingWindow(file repo.File, repoID string, profile Profile, header string) []Chunk {
	content := file.Content
	stride := profile.MaxChunkSize - profile.OverlapSize
	if stride <= 0 {
		stride = profile.MaxChunkSize
	}
	var chunks []Chunk
	for offset := 0; offset < len(content); offset += stride {
		end := offset + profile.MaxChunkSize
		if end > len(content) {
			end = len(content)
		}
		window := content[offset:end]
		startLine := 1 + strings.Count(content[:offset], "\n")
		endLine := startLine + strings.Count(strings.TrimSuffix(window, "\n"), "\n")
		chunks = append(chunks, newChunk(file, repoID, header, window, startLine, endLine, len(chunks)))
		if end == len(content) {
			break
		}
	}
	return chunks
}

// findBoundaries returns the 0-based indexes of structural boundary lines.
// Index 0 is always included so the first section starts at line 1.
func findBoundaries(lines []string, markers []string) []int {
	boundaries := []int{0}
	for i := 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		for _, marker := range markers {
			if strings.HasPrefix(trimmed, marker) {
				boundaries = append(boundaries, i)
				break
			}
		}
	}
	return boundaries
}

func lineSpanLen(lines []string, start, end int) int {
	total := 0
	for i := start; i <= end && i < len(lines); i++ {
		total += len(lines[i]) + 1
	}
	return total
}

func newChunk(file repo.File, repoID, header, body string, startLine, endLine, index int) Chunk {
	return Chunk{
		ID:      fmt.Sprintf("%s:%s:%d", repoID, file.Path, index),
		Content: header + body,
		Metadata: Metadata{
			FilePath:  file.Path,
			StartLine: startLine,
			EndLine:   endLine,
			Language:  file.Language,
			RepoID:    repoID,
		},
	}
}

// contextHeader prefixes every chunk with file-level context so the
// embedding model sees where the text came from.
func contextHeader(file repo.File) string {
	var builder strings.Builder
	builder.WriteString("File: ")
	builder.WriteString(file.Path)
	builder.WriteString("\nLanguage: ")
	builder.WriteString(file.Language)
	builder.WriteString("\n")
	if kind := classifyFile(file.Path); kind != "" {
		builder.WriteString("Type: ")
		builder.WriteString(kind)
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
	return builder.String()
}

// classifyFile derives a coarse file-type tag from path heuristics. The
// first matching rule wins.
func classifyFile(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "test") || strings.Contains(lower, "spec"):
		return "test"
	case strings.Contains(lower, "config"):
		return "config"
	case strings.Contains(lower, "docker"):
		return "docker"
	case strings.Contains(lower, "k8s") || strings.Contains(lower, "kubernetes"):
		return "kubernetes"
	case strings.Contains(lower, ".github/workflows"):
		return "ci-workflow"
	}
	return ""
}
