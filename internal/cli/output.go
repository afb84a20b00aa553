package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/vecstore/internal/models"
	"github.com/hyperjump/vecstore/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewLen = 200

// WriteQueryResults writes query results to w in the given format.
func WriteQueryResults(w io.Writer, query string, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%d results for %q\n\n", len(resp.Results), query)
	for i, doc := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if i < len(resp.Distances) {
			fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", i+1, resp.Distances[i])
		} else {
			fmt.Fprintf(w, "Rank: %d\n", i+1)
		}
		fmt.Fprintf(w, "ID: %s\n", doc.ID)
		if src, ok := doc.Metadata["source_path"].(string); ok {
			fmt.Fprintf(w, "Source: %s\n", src)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(doc.Content, previewLen))
	}
	return nil
}

// WriteStatus writes server status to w in the given format.
func WriteStatus(w io.Writer, st *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Model:      %s\n", st.ModelName)
	fmt.Fprintf(w, "Ready:      %t\n", st.IndexReady)
	fmt.Fprintf(w, "Documents:  %d\n", st.IndexedDocuments)
	fmt.Fprintf(w, "Vectors:    %d\n", st.VectorCount)
	fmt.Fprintf(w, "Dimension:  %d\n", st.Dimension)
	if st.Storage != "" {
		fmt.Fprintf(w, "Storage:    %s\n", st.Storage)
	}
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(*st.DiskUsageBytes))
	}
	return nil
}

// WriteIndexResult writes the outcome of one submitted batch.
func WriteIndexResult(w io.Writer, resp *models.IndexResponse) {
	if resp.Message != "" {
		fmt.Fprintf(w, "%s (total: %d)\n", resp.Message, resp.TotalVectors)
		return
	}
	fmt.Fprintf(w, "Indexed %d documents (total: %d)\n", resp.IndexedCount, resp.TotalVectors)
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
