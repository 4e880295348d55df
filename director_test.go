package dolly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dolly/condition"
	"github.com/teranos/dolly/driver"
	"github.com/teranos/dolly/driver/memdriver"
	"github.com/teranos/dolly/trip"
)

// recorder captures what the director reports to the test.
type recorder struct {
	testing.TB
	mu     sync.Mutex
	errors []string
	logs   []string
	fatals []string
}

func (r *recorder) Helper()      {}
func (r *recorder) Name() string { return "TestScene" }

func (r *recorder) Error(args ...any) { r.add(&r.errors, fmt.Sprint(args...)) }
func (r *recorder) Errorf(format string, args ...any) {
	r.add(&r.errors, fmt.Sprintf(format, args...))
}
func (r *recorder) Log(args ...any)                 { r.add(&r.logs, fmt.Sprint(args...)) }
func (r *recorder) Logf(format string, args ...any) { r.add(&r.logs, fmt.Sprintf(format, args...)) }
func (r *recorder) Fatalf(format string, args ...any) {
	r.add(&r.fatals, fmt.Sprintf(format, args...))
}

func (r *recorder) add(dst *[]string, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*dst = append(*dst, s)
}

// signupPage renders a form on navigation and a greeting shortly after
// submit, like a page waiting on an API call.
func signupPage() *memdriver.Page {
	page := memdriver.New()
	page.OnNavigate(func(p *memdriver.Page, url string) {
		p.SetTitle("Sign up")
		p.Append(
			memdriver.NewNode(`<input id="email">`),
			memdriver.NewNode(`<input id="terms" type="checkbox">`),
			memdriver.NewNode(`<button id="submit"></button>`).WithText("Sign up"),
			memdriver.NewNode(`<p class="error"></p>`).WithText("Please accept the terms").Hide(),
		)
	})
	page.OnClick("#submit", func(p *memdriver.Page) {
		ctx := context.Background()
		email := ""
		if els, _ := p.FindAll(ctx, "#email"); len(els) > 0 {
			email, _, _ = els[0].Attribute(ctx, "value")
		}
		p.After(40*time.Millisecond, func(p *memdriver.Page) {
			p.Remove("#submit")
			p.Append(memdriver.NewNode(`<h1 id="welcome"></h1>`).WithText("Welcome " + email))
			p.SetTitle("Welcome")
		})
	})
	return page
}

func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestDirector_SignupScene(t *testing.T) {
	page := signupPage()

	result := NewDirectorWithConfig(t, page, quickConfig()).
		Start().
		Navigate("http://app.test/signup").
		Type("#email", "ada@example.com").
		Click("#terms").
		ExpectChecked("#terms").
		ExpectHidden(".error").
		Click("#submit").
		ExpectText("#welcome", "Welcome ada@example.com").
		ExpectCount("#submit", 0).
		ExpectURLContains("/signup").
		ExpectAttribute("#email", "value", "ada@example.com").
		Stop()

	result.Require(t)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Empty(t, result.ErrorMessage)
	assert.Len(t, result.Actions, 10)
	assert.Equal(t, "navigate", result.Actions[0].Type)
	assert.Equal(t, "type", result.Actions[1].Type)
	assert.Equal(t, `"#welcome" to have text "Welcome ada@example.com"`, result.Actions[6].Target)
	assert.GreaterOrEqual(t, result.Actions[6].Duration, 30*time.Millisecond, "the expectation waited for the greeting")

	require.NotEmpty(t, result.Snapshots)
	assert.Equal(t, "start", result.Snapshots[0].Reason)
	last := result.Snapshots[len(result.Snapshots)-1]
	assert.Equal(t, "stop", last.Reason)
	assert.Equal(t, "Welcome", last.Title)
	assert.Equal(t, "http://app.test/signup", last.URL)
}

func TestDirector_ExpectationFailureSkipsRemainingSteps(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 80 * time.Millisecond
	cfg.ReportTrips = false
	page := signupPage()

	d := NewDirectorWithConfig(t, page, cfg).
		Start().
		Navigate("http://app.test/signup").
		ExpectVisible(".error").
		Click("#terms")
	result := d.Stop()

	assert.False(t, result.Success)
	assert.True(t, d.HasFailed())
	assert.Len(t, result.Actions, 1, "click after the failure is skipped")

	tr, ok := trip.As(result.Error)
	require.True(t, ok)
	assert.Equal(t, trip.KindExpectation, tr.Kind)
	assert.Equal(t, `".error" to be visible`, tr.Context["condition"])
	assert.Equal(t, "1 element, 0 visible", tr.Context["observed"])
	assert.Equal(t, "http://app.test/signup", tr.Context["url"])

	assert.Contains(t, result.ErrorMessage, "[expectation] timed out after 80ms")
	assert.Contains(t, result.ErrorDetails, "observed: 1 element, 0 visible")
	assert.Contains(t, result.TripReport, "1 trips, 0 stumbles")

	checked, err := page.FindAll(context.Background(), "#terms")
	require.NoError(t, err)
	isChecked, _ := checked[0].Checked(context.Background())
	assert.False(t, isChecked)
}

func TestDirector_ClickWaitsForVisibility(t *testing.T) {
	page := memdriver.New().Append(memdriver.NewNode(`<button id="save"></button>`).Hide())
	saved := int32(0)
	page.OnClick("#save", func(p *memdriver.Page) { atomic.AddInt32(&saved, 1) })
	page.After(50*time.Millisecond, func(p *memdriver.Page) { p.SetHidden("#save", false) })

	result := NewDirectorWithConfig(t, page, quickConfig()).
		Start().
		Click("#save").
		Stop()

	result.Require(t)
	assert.Equal(t, int32(1), atomic.LoadInt32(&saved))
	assert.Equal(t, "button#save", page.Focused())
}

func TestDirector_ClickNeverVisible(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.ReportTrips = false
	page := memdriver.New().Append(memdriver.NewNode(`<button id="save"></button>`).Hide())

	result := NewDirectorWithConfig(t, page, cfg).Start().Click("#save").Stop()

	require.False(t, result.Success)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindAction, tr.Kind)
	assert.Equal(t, "click", tr.Context["action"])
	assert.Equal(t, "#save", tr.Context["selector"])
}

// flakyPage hands out elements whose clicks go stale a set number of times,
// as when a framework re-renders between lookup and click.
type flakyPage struct {
	*memdriver.Page
	staleClicks int32
	clickErr    error // returned by every click once the stale ones are used up
}

type flakyElement struct {
	driver.Element
	page *flakyPage
}

func (p *flakyPage) FindAll(ctx context.Context, css string) ([]driver.Element, error) {
	els, err := p.Page.FindAll(ctx, css)
	for i, el := range els {
		els[i] = &flakyElement{Element: el, page: p}
	}
	return els, err
}

func (e *flakyElement) Click(ctx context.Context) error {
	if atomic.AddInt32(&e.page.staleClicks, -1) >= 0 {
		return fmt.Errorf("button#buy: %w", driver.ErrStale)
	}
	if e.page.clickErr != nil {
		return e.page.clickErr
	}
	return e.Element.Click(ctx)
}

func TestDirector_ClickRetriesStaleElements(t *testing.T) {
	page := &flakyPage{Page: memdriver.New().Append(memdriver.NewNode(`<button id="buy"></button>`)), staleClicks: 2}

	result := NewDirectorWithConfig(t, page, quickConfig()).Start().Click("#buy").Stop()

	result.Require(t)
	assert.Equal(t, "button#buy", page.Focused())
}

func TestDirector_ClickGivesUpAfterRetries(t *testing.T) {
	cfg := quickConfig()
	cfg.ReportTrips = false
	page := &flakyPage{Page: memdriver.New().Append(memdriver.NewNode(`<button id="buy"></button>`)), staleClicks: 10}

	result := NewDirectorWithConfig(t, page, cfg).Start().Click("#buy").Stop()

	require.False(t, result.Success)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, 3, tr.Attempt, "first try plus two retries")
	assert.ErrorIs(t, tr, driver.ErrStale)
}

func TestDirector_ClickFailureWithoutRetryCountsOneAttempt(t *testing.T) {
	cfg := quickConfig()
	cfg.ReportTrips = false
	page := &flakyPage{
		Page:     memdriver.New().Append(memdriver.NewNode(`<button id="buy"></button>`)),
		clickErr: errors.New("click intercepted by overlay"),
	}

	result := NewDirectorWithConfig(t, page, cfg).Start().Click("#buy").Stop()

	require.False(t, result.Success)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, 1, tr.Attempt)
	assert.Contains(t, tr.DetailedString(), "Attempt: 1")
}

func TestDirector_FocusAndPause(t *testing.T) {
	page := memdriver.New().Append(memdriver.NewNode(`<input id="search">`))

	started := time.Now()
	result := NewDirectorWithConfig(t, page, quickConfig()).
		Start().
		Focus("#search").
		Pause(20 * time.Millisecond).
		Stop()

	result.Require(t)
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	assert.Equal(t, "input#search", page.Focused())
	assert.Equal(t, "pause", result.Actions[1].Type)
}

func TestDirector_Execute(t *testing.T) {
	page := memdriver.New()
	page.HandleScript("return window.cart", func(p *memdriver.Page, args []any) (any, error) {
		return map[string]any{"items": float64(3), "total": "42.00"}, nil
	})
	page.HandleScript("return arguments[0] * 2", func(p *memdriver.Page, args []any) (any, error) {
		return float64(args[0].(int) * 2), nil
	})

	var cart struct {
		Items int    `json:"items"`
		Total string `json:"total"`
	}
	var doubled int

	result := NewDirectorWithConfig(t, page, quickConfig()).
		Start().
		ExecuteInto(&cart, "return window.cart").
		ExecuteInto(&doubled, "return arguments[0] * 2", 21).
		Execute("return window.cart").
		Stop()

	result.Require(t)
	assert.Equal(t, 3, cart.Items)
	assert.Equal(t, "42.00", cart.Total)
	assert.Equal(t, 42, doubled)
	assert.Equal(t, float64(42), result.Actions[1].Result)
}

func TestDirector_ExecuteErrors(t *testing.T) {
	cfg := quickConfig()
	cfg.ReportTrips = false
	page := memdriver.New()
	page.HandleScript("return 'text'", func(p *memdriver.Page, args []any) (any, error) {
		return "text", nil
	})

	var n int
	result := NewDirectorWithConfig(t, page, cfg).Start().ExecuteInto(&n, "return 'text'").Stop()
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindScript, tr.Kind)
	assert.Contains(t, tr.Message, "failed to decode script result into *int")

	result = NewDirectorWithConfig(t, memdriver.New(), cfg).Start().Execute("missing()").Stop()
	tr, _ = trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindScript, tr.Kind)
	assert.Equal(t, "missing()", tr.Context["script"])
}

func TestDirector_WaitFor(t *testing.T) {
	page := memdriver.New().Append(
		memdriver.NewNode(`<div id="spinner"></div>`),
		memdriver.NewNode(`<ul id="results"></ul>`),
	)
	page.After(30*time.Millisecond, func(p *memdriver.Page) {
		p.SetHidden("#spinner", true)
		p.Append(
			memdriver.NewNode(`<li class="hit"></li>`).WithText("dolly"),
			memdriver.NewNode(`<li class="hit"></li>`).WithText("dolly zoom"),
		)
	})

	result := NewDirectorWithConfig(t, page, quickConfig()).
		Start().
		WaitForHidden("#spinner").
		WaitForVisible(".hit").
		WaitForCount(".hit", 2).
		WaitForText(".hit", "doll").
		WaitFor(condition.All(condition.Present("#results"), condition.Absent(".error"))).
		Stop()

	result.Require(t)
	for _, a := range result.Actions {
		assert.Equal(t, "wait", a.Type)
	}
}

func TestDirector_WaitTimeoutIsWaitKind(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.ReportTrips = false

	result := NewDirectorWithConfig(t, memdriver.New(), cfg).Start().WaitForVisible("#never").Stop()
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindWait, tr.Kind)
}

func TestDirector_AssertDoesNotWait(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 5 * time.Second
	cfg.ReportTrips = false
	page := memdriver.New().Append(memdriver.NewNode(`<div id="late"></div>`).Hide())
	page.After(20*time.Millisecond, func(p *memdriver.Page) { p.SetHidden("#late", false) })

	started := time.Now()
	result := NewDirectorWithConfig(t, page, cfg).
		Start().
		Assert(condition.Visible("#late")).
		Stop()

	assert.Less(t, time.Since(started), time.Second)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindAssertion, tr.Kind)
	assert.Equal(t, 1, tr.Context["attempts"])
}

func TestDirector_StepsBeforeStart(t *testing.T) {
	rec := &recorder{}
	d := NewDirector(rec, memdriver.New())
	d.Click("#x")

	result := d.Stop()
	assert.False(t, result.Success)
	assert.Equal(t, "director was never started", result.ErrorMessage)
	assert.Contains(t, result.TripReport, "Click called before Start")
	require.Len(t, rec.errors, 1)
	assert.Contains(t, rec.errors[0], "[system:error] Click called before Start")
}

func TestDirector_ClosedPageFalls(t *testing.T) {
	rec := &recorder{}
	cfg := quickConfig()
	cfg.ReportTrips = false
	page := memdriver.New()

	d := NewDirectorWithConfig(rec, page, cfg).Start()
	require.NoError(t, page.Close())
	result := d.ExpectVisible("#anything").Navigate("http://app.test").Stop()

	assert.False(t, result.Success)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.True(t, tr.IsFall())
	assert.ErrorIs(t, tr, driver.ErrClosed)
	require.Len(t, rec.errors, 1, "falls are reported even when ReportTrips is off")
	assert.Len(t, result.Trips, 1, "navigate was skipped")
}

func TestDirector_InvalidConfig(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.PollInterval = 0

	result := NewDirectorWithConfig(rec, memdriver.New(), cfg).Start().Stop()
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "poll interval must be positive")
}

func TestDirector_InvalidConfigSurvivesRename(t *testing.T) {
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.PollInterval = 0

	result := NewDirectorWithConfig(rec, memdriver.New(), cfg).
		WithName("checkout").
		Start().
		Stop()

	assert.False(t, result.Success)
	assert.Equal(t, "checkout", result.Name)
	assert.Contains(t, result.ErrorMessage, "poll interval must be positive")
	assert.Contains(t, result.TripReport, "=== checkout ===")
}

func TestDirector_TraceLogging(t *testing.T) {
	rec := &recorder{}
	cfg := quickConfig()
	cfg.Trace = true
	page := memdriver.New().Append(memdriver.NewNode(`<button id="go"></button>`))

	NewDirectorWithConfig(rec, page, cfg).Start().Click("#go").Stop()

	joined := strings.Join(rec.logs, "\n")
	assert.Contains(t, joined, `[TRACE] Start: scene "TestScene"`)
	assert.Contains(t, joined, "[TRACE] Click: #go")
	assert.Contains(t, joined, "[TRACE] Stop: success=true")
}

func TestSceneResult_Require(t *testing.T) {
	rec := &recorder{}
	(&SceneResult{Name: "checkout", Success: false, ErrorMessage: "boom"}).Require(rec)
	require.Len(t, rec.fatals, 1)
	assert.Contains(t, rec.fatals[0], "scene checkout failed: boom")

	rec = &recorder{}
	(&SceneResult{Success: true}).Require(rec)
	assert.Empty(t, rec.fatals)
}

func TestDirector_ScreenshotFallsBackToRenderedText(t *testing.T) {
	dir := t.TempDir()
	page := memdriver.New().Append(
		memdriver.NewNode(`<h1></h1>`).WithText("Order #1042"),
		memdriver.NewNode(`<p class="secret"></p>`).WithText("hidden").Hide(),
	)

	result := NewDirectorWithConfig(t, page, quickConfig()).
		WithScreenshots(dir).
		WithName("checkout/confirmation").
		Start().
		Screenshot("order placed").
		Stop()

	result.Require(t)
	require.Len(t, result.Frames, 1)
	frame := result.Frames[0]
	assert.True(t, frame.Rendered)
	assert.Equal(t, filepath.Join(dir, "checkout_confirmation", "001_order_placed.png"), frame.Path)
	assert.FileExists(t, frame.Path)

	expected := NewRenderingStage(DefaultFrameConfig())
	expected.RenderText("Order #1042")
	want, err := expected.PNG()
	require.NoError(t, err)
	assert.Equal(t, want, frame.PNG, "only visible text is rendered")
}

func TestDirector_MatchBaseline(t *testing.T) {
	cfg := quickConfig()
	cfg.BaselineDir = t.TempDir()
	cfg.Tolerance = 0
	page := memdriver.New().Append(memdriver.NewNode(`<h1 id="total"></h1>`).WithText("Total: $42"))

	first := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()
	first.Require(t)
	assert.Equal(t, "created", first.Actions[0].Result)
	assert.FileExists(t, filepath.Join(cfg.BaselineDir, "cart_total.png"))

	second := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()
	second.Require(t)

	page.SetText("#total", "Total: $43")
	cfg.ReportTrips = false
	third := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()
	require.False(t, third.Success)
	tr, _ := trip.As(third.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindExpectation, tr.Kind)
	assert.Equal(t, "cart total differs from its baseline", tr.Message)
	diff, ok := tr.GetContext("diff")
	require.True(t, ok)
	assert.FileExists(t, diff.(string))
}

func TestDirector_RenderedBaselineIgnoresScreenshotTolerance(t *testing.T) {
	cfg := quickConfig()
	cfg.BaselineDir = t.TempDir()
	cfg.Tolerance = 0.5
	cfg.ReportTrips = false
	page := memdriver.New().Append(memdriver.NewNode(`<h1 id="total"></h1>`).WithText("Total: $42"))

	NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop().Require(t)

	page.SetText("#total", "Total: $43")
	result := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()

	require.False(t, result.Success, "one changed glyph is far below the screenshot tolerance")
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindExpectation, tr.Kind)
	assert.Equal(t, "0.00%", tr.Context["tolerance"])
}

func TestDirector_MatchBaselineFailsWhenDiffCannotBeWritten(t *testing.T) {
	cfg := quickConfig()
	cfg.BaselineDir = t.TempDir()
	cfg.ReportTrips = false
	page := memdriver.New().Append(memdriver.NewNode(`<h1 id="total"></h1>`).WithText("Total: $42"))

	NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop().Require(t)

	// A file where the diff directory should go makes the diff write fail.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaselineDir, "diff"), []byte("x"), 0644))
	page.SetText("#total", "Total: $43")
	result := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()

	require.False(t, result.Success)
	assert.Empty(t, result.Stumbles)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindExpectation, tr.Kind)
	assert.Equal(t, "cart total differs from its baseline", tr.Message)
	_, hasDiff := tr.GetContext("diff")
	assert.False(t, hasDiff)
	assert.Contains(t, tr.Context["error"], "failed to write diff image")
}

func TestDirector_MatchBaselineUnreadableBaselineFails(t *testing.T) {
	cfg := quickConfig()
	cfg.BaselineDir = t.TempDir()
	cfg.ReportTrips = false
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaselineDir, "cart_total.png"), []byte("not a png"), 0644))
	page := memdriver.New().Append(memdriver.NewNode(`<h1></h1>`).WithText("Total: $42"))

	result := NewDirectorWithConfig(t, page, cfg).Start().MatchBaseline("cart total").Stop()

	require.False(t, result.Success)
	tr, _ := trip.As(result.Error)
	require.NotNil(t, tr)
	assert.Equal(t, trip.KindSystem, tr.Kind)
	assert.Equal(t, trip.Error, tr.Severity)
	assert.Contains(t, tr.Message, "failed to load baseline")
}

func TestDirector_WritesReport(t *testing.T) {
	cfg := quickConfig()
	cfg.ReportDir = t.TempDir()
	page := memdriver.New().Append(memdriver.NewNode(`<h1></h1>`).WithText("Hello"))

	result := NewDirectorWithConfig(t, page, cfg).
		Start().
		ExpectText("h1", "Hello").
		Screenshot("greeting").
		Stop()

	result.Require(t)
	require.NotEmpty(t, result.ReportPath)
	assert.Equal(t, sanitizeName(t.Name()), filepath.Base(filepath.Dir(filepath.Dir(result.ReportPath))))

	content, err := os.ReadFile(result.ReportPath)
	require.NoError(t, err)
	meta, err := extractFromJSON(string(content))
	require.NoError(t, err)
	assert.Equal(t, result.RunID, meta.RunID)
	assert.Equal(t, 2, meta.StepCount)
	assert.Equal(t, 1, meta.FrameCount)
	assert.True(t, meta.Success)

	entries, err := GenerateDashboard(cfg.ReportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, t.Name(), entries[0].SceneName)
}

func TestDirector_ReportsOfOneSecondDoNotCollide(t *testing.T) {
	cfg := quickConfig()
	cfg.ReportDir = t.TempDir()
	page := memdriver.New().Append(memdriver.NewNode(`<h1></h1>`).WithText("Hello"))

	first := NewDirectorWithConfig(t, page, cfg).Start().ExpectText("h1", "Hello").Stop()
	second := NewDirectorWithConfig(t, page, cfg).Start().ExpectText("h1", "Hello").Stop()

	first.Require(t)
	second.Require(t)
	assert.NotEqual(t, filepath.Dir(first.ReportPath), filepath.Dir(second.ReportPath))
	assert.FileExists(t, first.ReportPath)
	assert.FileExists(t, second.ReportPath)

	entries, err := GenerateDashboard(cfg.ReportDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDirector_WithContext(t *testing.T) {
	cfg := quickConfig()
	cfg.Timeout = 5 * time.Second
	cfg.ReportTrips = false
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	started := time.Now()
	result := NewDirectorWithConfig(t, memdriver.New(), cfg).
		WithContext(ctx).
		Start().
		WaitForVisible("#never").
		Stop()

	assert.Less(t, time.Since(started), time.Second)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "wait cancelled")
}
