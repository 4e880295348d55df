package dolly

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

//go:embed html_templates/dashboard.html
var dashboardTemplate string

const metadataScriptTag = `<script type="application/json" id="scene-metadata">`

// DashboardEntry is one scene report listed on the dashboard.
type DashboardEntry struct {
	SceneName       string    `json:"scene_name"`
	RunID           string    `json:"run_id"`
	Timestamp       string    `json:"timestamp"`
	Success         bool      `json:"success"`
	ScreenshotCount int       `json:"screenshot_count"`
	StepCount       int       `json:"step_count"`
	Duration        string    `json:"duration"`
	ReportPath      string    `json:"report_path"`
	RelativePath    string    `json:"relative_path"`
	CreatedAt       time.Time `json:"created_at"`
}

// GenerateDashboard scans baseDir for <scene>/<timestamp>/index.html reports
// and writes baseDir/index.html listing them, newest first.
func GenerateDashboard(baseDir string) ([]DashboardEntry, error) {
	entries, err := scanSceneReports(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan scene reports: %w", err)
	}

	file, err := os.Create(filepath.Join(baseDir, "index.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer file.Close()

	passed := 0
	for _, e := range entries {
		if e.Success {
			passed++
		}
	}

	data := struct {
		Reports     []DashboardEntry
		Passed      int
		Failed      int
		GeneratedAt time.Time
	}{
		Reports:     entries,
		Passed:      passed,
		Failed:      len(entries) - passed,
		GeneratedAt: time.Now(),
	}

	if err := getDashboardTemplate().Execute(file, data); err != nil {
		return nil, fmt.Errorf("failed to execute dashboard template: %w", err)
	}
	return entries, nil
}

func scanSceneReports(baseDir string) ([]DashboardEntry, error) {
	var entries []DashboardEntry
	root := filepath.Join(baseDir, "index.html")

	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "index.html" || path == root {
			return nil
		}

		dir := filepath.Dir(path)
		timestamp, ok := reportDirTimestamp(filepath.Base(dir))
		if !ok {
			return nil
		}

		entry := DashboardEntry{
			SceneName:    filepath.Base(filepath.Dir(dir)),
			Timestamp:    timestamp,
			ReportPath:   path,
			RelativePath: relativePath(baseDir, path),
		}
		if info, err := d.Info(); err == nil {
			entry.CreatedAt = info.ModTime()
		}

		// Reports without metadata still get listed by directory name.
		if meta, err := extractReportInfo(path); err == nil {
			entry.SceneName = meta.SceneName
			entry.RunID = meta.RunID
			entry.Success = meta.Success
			entry.ScreenshotCount = meta.FrameCount
			entry.StepCount = meta.StepCount
			entry.Duration = meta.Duration
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// extractReportInfo reads the JSON metadata block of a report.
func extractReportInfo(htmlPath string) (*SceneMetadata, error) {
	content, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}
	return extractFromJSON(string(content))
}

func extractFromJSON(htmlContent string) (*SceneMetadata, error) {
	start := strings.Index(htmlContent, metadataScriptTag)
	if start == -1 {
		return nil, errors.New("no JSON metadata found")
	}
	start += len(metadataScriptTag)

	end := strings.Index(htmlContent[start:], "</script>")
	if end == -1 {
		return nil, errors.New("no script closing tag found")
	}

	var meta SceneMetadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(htmlContent[start:start+end])), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse JSON metadata: %w", err)
	}
	return &meta, nil
}

func relativePath(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}

func getDashboardTemplate() *template.Template {
	return template.Must(template.New("dashboard").Parse(dashboardTemplate))
}
