package playwright_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dolly"
	"github.com/teranos/dolly/driver"
	"github.com/teranos/dolly/driver/playwright"
)

const signupPage = `<!DOCTYPE html>
<html><head><title>Signup</title></head>
<body>
  <input id="email" type="email">
  <label><input id="terms" type="checkbox"> I agree</label>
  <button id="submit" onclick="setTimeout(function () {
    var h = document.createElement('h1');
    h.id = 'welcome';
    h.textContent = 'Welcome ' + document.getElementById('email').value;
    document.body.appendChild(h);
  }, 300)">Sign up</button>
  <p class="hint" hidden>hidden hint</p>
</body></html>`

func launch(t *testing.T) (*playwright.Page, string) {
	t.Helper()
	if os.Getenv("DOLLY_BROWSER_TESTS") != "1" {
		t.Skip("set DOLLY_BROWSER_TESTS=1 to run real-browser tests")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(signupPage))
	}))
	t.Cleanup(server.Close)

	page, err := playwright.Launch(context.Background(), playwright.DefaultOptions())
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	t.Cleanup(func() { _ = page.Close() })
	return page, server.URL
}

func TestPlaywright_Primitives(t *testing.T) {
	page, url := launch(t)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, url))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Signup", title)

	els, err := page.FindAll(ctx, "#terms")
	require.NoError(t, err)
	require.Len(t, els, 1)

	checked, err := els[0].Checked(ctx)
	require.NoError(t, err)
	assert.False(t, checked)

	require.NoError(t, els[0].Click(ctx))
	checked, err = els[0].Checked(ctx)
	require.NoError(t, err)
	assert.True(t, checked)

	typ, present, err := els[0].Attribute(ctx, "type")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "checkbox", typ)

	_, present, err = els[0].Attribute(ctx, "data-missing")
	require.NoError(t, err)
	assert.False(t, present)

	hints, err := page.FindAll(ctx, ".hint")
	require.NoError(t, err)
	require.Len(t, hints, 1)
	shown, err := hints[0].Displayed(ctx)
	require.NoError(t, err)
	assert.False(t, shown)

	none, err := page.FindAll(ctx, ".nothing")
	require.NoError(t, err)
	assert.Empty(t, none)

	sum, err := page.Execute(ctx, "return arguments[0] + arguments[1]", 2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, sum)

	png, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestPlaywright_Scene(t *testing.T) {
	page, url := launch(t)

	dolly.NewDirector(t, page).
		WithTimeout(5 * time.Second).
		Start().
		Navigate(url).
		Type("#email", "ada@example.com").
		Click("#terms").
		ExpectChecked("#terms").
		ExpectHidden(".hint").
		Click("#submit").
		ExpectText("#welcome", "Welcome ada@example.com").
		Screenshot("welcome").
		Stop().
		Require(t)
}

func TestPlaywright_ClosedPage(t *testing.T) {
	page, url := launch(t)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, url))
	require.NoError(t, page.Raw().Close())

	_, err := page.FindAll(ctx, "#terms")
	assert.ErrorIs(t, err, driver.ErrClosed)
}
