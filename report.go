package dolly

import (
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

//go:embed html_templates/scene_report.html
var sceneReportTemplate string

// reportTimestampLayout starts the name of every per-run report directory.
const reportTimestampLayout = "20060102_150405"

// reportDirName names the report directory of one run: its start time
// followed by the first block of its run ID, so runs started within the
// same second keep separate reports.
func reportDirName(started time.Time, runID string) string {
	name := started.Format(reportTimestampLayout)
	if id, _, _ := strings.Cut(runID, "-"); id != "" {
		name += "_" + id
	}
	return name
}

// reportDirTimestamp returns the timestamp a report directory name starts
// with, and false for names reportDirName cannot produce. Names without a
// run ID suffix are accepted too.
func reportDirTimestamp(name string) (string, bool) {
	n := len(reportTimestampLayout)
	if len(name) < n {
		return "", false
	}
	timestamp, rest := name[:n], name[n:]
	if _, err := time.Parse(reportTimestampLayout, timestamp); err != nil {
		return "", false
	}
	if rest != "" && (len(rest) == 1 || rest[0] != '_') {
		return "", false
	}
	return timestamp, true
}

// SceneReport is everything rendered into a scene's HTML report.
type SceneReport struct {
	SceneName    string            `json:"scene_name"`
	RunID        string            `json:"run_id"`
	Timestamp    string            `json:"timestamp"`
	Duration     time.Duration     `json:"duration"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	TripReport   string            `json:"trip_report,omitempty"`
	Screenshots  []ScreenshotEntry `json:"screenshots"`
	Steps        []StepRecord      `json:"steps"`
	Snapshots    []SceneSnapshot   `json:"snapshots"`
	Metadata     map[string]string `json:"metadata"`
}

// ScreenshotEntry is a frame embedded in the report.
type ScreenshotEntry struct {
	Label       string       `json:"label"`
	Filename    string       `json:"filename"`
	Timestamp   time.Time    `json:"timestamp"`
	Step        int          `json:"step"`
	Description string       `json:"description"`
	DataURL     template.URL `json:"data_url"` // base64 data URL so the report is self-contained
}

// StepRecord is one scene step in the report timeline.
type StepRecord struct {
	Type      string        `json:"type"`
	Target    string        `json:"target"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Result    string        `json:"result,omitempty"`
}

// SceneMetadata is embedded in every report as JSON so the dashboard can
// read it back without parsing HTML.
type SceneMetadata struct {
	SceneName  string `json:"sceneName"`
	RunID      string `json:"runId"`
	Duration   string `json:"duration"`
	FrameCount int    `json:"frameCount"`
	StepCount  int    `json:"stepCount"`
	Timestamp  string `json:"timestamp"`
	Success    bool   `json:"success"`
	ReportType string `json:"reportType"`
}

// HTMLReportGenerator writes scene reports.
type HTMLReportGenerator struct {
	outputDir     string
	templateCache map[string]*template.Template
}

// NewHTMLReportGenerator creates a generator writing to outputDir.
func NewHTMLReportGenerator(outputDir string) *HTMLReportGenerator {
	return &HTMLReportGenerator{
		outputDir:     outputDir,
		templateCache: make(map[string]*template.Template),
	}
}

// BuildReport converts a scene result into a report.
func BuildReport(result *SceneResult) SceneReport {
	started := result.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	report := SceneReport{
		SceneName:    result.Name,
		RunID:        result.RunID,
		Timestamp:    started.Format(reportTimestampLayout),
		Duration:     result.Duration,
		Success:      result.Success,
		ErrorMessage: result.ErrorMessage,
		Snapshots:    result.Snapshots,
		Metadata: map[string]string{
			"steps":    fmt.Sprint(len(result.Actions)),
			"frames":   fmt.Sprint(len(result.Frames)),
			"stumbles": fmt.Sprint(len(result.Stumbles)),
		},
	}
	if !result.Success || len(result.Stumbles) > 0 {
		report.TripReport = result.TripReport
	}

	for _, a := range result.Actions {
		step := StepRecord{
			Type:      a.Type,
			Target:    a.Target,
			Timestamp: a.Timestamp,
			Duration:  a.Duration,
		}
		if a.Result != nil {
			step.Result = fmt.Sprint(a.Result)
		}
		report.Steps = append(report.Steps, step)
	}

	for i, f := range result.Frames {
		entry := ScreenshotEntry{
			Label:     f.Label,
			Filename:  filepath.Base(f.Path),
			Timestamp: f.Timestamp,
			Step:      i + 1,
			DataURL:   dataURL(f.PNG),
		}
		if f.Path == "" {
			entry.Filename = fmt.Sprintf("%03d_%s.png", i+1, sanitizeName(f.Label))
		}
		if f.Rendered {
			entry.Description = "rendered from page text"
		}
		report.Screenshots = append(report.Screenshots, entry)
	}
	return report
}

// GenerateReport writes outputDir/index.html.
func (g *HTMLReportGenerator) GenerateReport(report SceneReport) error {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := g.generateMainReport(report); err != nil {
		return fmt.Errorf("failed to generate main report: %w", err)
	}
	return nil
}

func (g *HTMLReportGenerator) generateMainReport(report SceneReport) error {
	meta, err := json.Marshal(SceneMetadata{
		SceneName:  report.SceneName,
		RunID:      report.RunID,
		Duration:   report.Duration.String(),
		FrameCount: len(report.Screenshots),
		StepCount:  len(report.Steps),
		Timestamp:  report.Timestamp,
		Success:    report.Success,
		ReportType: "scene",
	})
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	view := struct {
		SceneReport
		MetadataJSON template.JS
		MetadataKeys []string
	}{
		SceneReport:  report,
		MetadataJSON: template.JS(meta),
		MetadataKeys: sortedKeys(report.Metadata),
	}

	file, err := os.Create(filepath.Join(g.outputDir, "index.html"))
	if err != nil {
		return err
	}
	defer file.Close()

	return g.getMainTemplate().Execute(file, view)
}

func (g *HTMLReportGenerator) getMainTemplate() *template.Template {
	if tmpl, exists := g.templateCache["main"]; exists {
		return tmpl
	}

	tmpl := template.Must(template.New("main").Parse(sceneReportTemplate))
	g.templateCache["main"] = tmpl
	return tmpl
}

// dataURL encodes an image for embedding.
func dataURL(data []byte) template.URL {
	if len(data) == 0 {
		return ""
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/png"
	}
	return template.URL(fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
