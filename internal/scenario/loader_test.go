// internal/scenario/loader_test.go
package scenario

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/internal/harness"
	"github.com/xkilldash9x/flowcheck/suites"
)

const appFile = `
app:
  name: shop
  routes:
    home: { path: /index.htm, ready: "#main" }
    login: { path: /login.htm, ready: "form#login" }
  fields:
    username: "#username"
    password: "#password"
  controls:
    Sign In: "button#signin"
`

func loaderFor(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return NewLoader(fsys, zaptest.NewLogger(t))
}

func TestLoadBundledSuites(t *testing.T) {
	l := NewLoader(suites.FS, zaptest.NewLogger(t))
	counts := map[string]int{}
	for _, name := range suites.Names() {
		features, err := l.Load(name)
		require.NoError(t, err, "suite %s", name)
		for _, f := range features {
			instances, err := f.Instances()
			require.NoError(t, err)
			counts[name] += len(instances)
		}
	}
	assert.Equal(t, 26, counts["demobank"])
	assert.Equal(t, 4, counts["parabank"])
}

func TestLoadFeature(t *testing.T) {
	l := loaderFor(t, map[string]string{
		"features/shop.app.yaml": appFile,
		"features/login.yaml": `
feature: Login
tags: ["@smoke"]
app_ref: shop.app.yaml
background:
  - navigate: login
scenarios:
  - title: Login as ${name}
    tags: [auth, smoke]
    steps:
      - fill: username
        value: ${name}
      - fill: password
        value: ${pass}
      - click: Sign In
      - assert: text
        target: "#greeting"
        expected: Hello ${name}
    examples:
      - { name: ana, pass: secret }
      - { name: bob, pass: null }
`,
	})

	features, err := l.Load("features")
	require.NoError(t, err)
	require.Len(t, features, 1, "app files are not features")

	f := features[0]
	assert.Equal(t, "Login", f.Name)
	assert.Equal(t, "features/login.yaml", f.File)
	require.Len(t, f.Outlines, 1)
	assert.Equal(t, []string{"smoke", "auth"}, f.Outlines[0].Tags)

	instances, err := f.Instances()
	require.NoError(t, err)
	require.Len(t, instances, 2)

	bob := instances[1]
	assert.Equal(t, "Login as bob", bob.Title)
	assert.Equal(t, "login/login-as-name#2", bob.ID)
	require.Len(t, bob.Steps, 5)
	assert.Equal(t, harness.StepNavigate, bob.Steps[0].Kind, "background runs first")
	assert.Equal(t, harness.Set("bob"), bob.Steps[1].Value)
	assert.False(t, bob.Steps[2].Value.IsSet(), "null example values are absent")
	assert.Equal(t, harness.OpText, bob.Steps[4].Op)
	assert.Equal(t, "Hello bob", bob.Steps[4].Expected)
}

func TestInlineAppAndExplicitNull(t *testing.T) {
	l := loaderFor(t, map[string]string{
		"clear.yml": `
feature: Clearing
app:
  name: shop
  routes:
    home: { path: /, ready: body }
  fields:
    search: "#q"
scenarios:
  - title: Clear the search box
    steps:
      - navigate: home
      - fill: search
        value: null
      - fill: search
        value: "42"
`,
	})
	features, err := l.Load("clear.yml")
	require.NoError(t, err)
	steps := features[0].Outlines[0].Steps
	assert.False(t, steps[1].Value.IsSet())
	assert.Equal(t, harness.Set("42"), steps[2].Value)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		wants []string
	}{
		{
			name: "unknown key",
			body: `
feature: F
app_ref: shop.app.yaml
scenarios:
  - title: T
    stepz: []
`,
			wants: []string{"f.yaml", "field stepz not found"},
		},
		{
			name:  "missing feature and scenarios",
			body:  "app_ref: shop.app.yaml\n",
			wants: []string{"feature is required", "scenarios is required"},
		},
		{
			name: "step with two kinds",
			body: `
feature: F
app_ref: shop.app.yaml
scenarios:
  - title: Broken
    steps:
      - navigate: home
        click: Sign In
`,
			wants: []string{`scenario "Broken"`, "step 1", "exactly one of"},
		},
		{
			name: "unknown field",
			body: `
feature: F
app_ref: shop.app.yaml
scenarios:
  - title: Typo
    steps:
      - navigate: home
      - fill: usrname
        value: x
`,
			wants: []string{"f.yaml", `scenario "Typo"`, `unknown field "usrname"`},
		},
		{
			name: "unbound placeholder",
			body: `
feature: F
app_ref: shop.app.yaml
scenarios:
  - title: Unbound
    steps:
      - navigate: home
      - fill: username
        value: ${who}
`,
			wants: []string{`scenario "Unbound"`, "unbound placeholder ${who}"},
		},
		{
			name: "missing app file",
			body: `
feature: F
app_ref: nowhere.app.yaml
scenarios:
  - title: T
    steps:
      - navigate: home
`,
			wants: []string{"app_ref nowhere.app.yaml"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := loaderFor(t, map[string]string{"shop.app.yaml": appFile, "f.yaml": tc.body})
			_, err := l.Load("f.yaml")
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, "f.yaml", le.File)
			for _, want := range tc.wants {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestUnknownFieldErrorIsReachable(t *testing.T) {
	l := loaderFor(t, map[string]string{"shop.app.yaml": appFile, "f.yaml": `
feature: F
app_ref: shop.app.yaml
scenarios:
  - title: Typo
    steps:
      - navigate: home
      - fill: usrname
        value: x
`})
	_, err := l.Load("f.yaml")
	var fieldErr *harness.UnknownFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, []string{"password", "username"}, fieldErr.Known)
}

func TestInvalidAppFile(t *testing.T) {
	l := loaderFor(t, map[string]string{
		"bad.app.yaml": "app:\n  name: x\n  routes:\n    home: { path: index.htm, ready: body }\n",
		"f.yaml":       "feature: F\napp_ref: bad.app.yaml\nscenarios:\n  - title: T\n    steps:\n      - navigate: home\n",
	})
	_, err := l.Load("f.yaml")
	assert.ErrorContains(t, err, `app.routes[home].path must start with "/"`)
}

func TestNoFiles(t *testing.T) {
	l := loaderFor(t, map[string]string{"dir/only.app.yaml": appFile})
	_, err := l.Load("dir")
	assert.ErrorContains(t, err, "no scenario files found")

	_, err = l.Load("missing")
	assert.ErrorContains(t, err, `scenario path "missing"`)
}
