package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/eduanim/internal/config"
	"github.com/apresai/eduanim/internal/extract"
	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/plan"
)

// testCmd returns a command wired to buffers, with stdin set to in.
func testCmd(in string) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	return cmd, &out, &errOut
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd, _, _ := testCmd("")
	f := cmd.Flags()
	f.StringVar(&flagModel, "model", "", "")
	f.StringVar(&flagStyle, "style", "", "")
	f.IntVar(&flagRefine, "refine", 0, "")
	f.BoolVar(&flagExtractFB, "fallback-on-extraction-failure", false, "")

	require.NoError(t, f.Set("model", "gemini-pro"))
	require.NoError(t, f.Set("refine", "2"))

	cfg := config.Config{Model: "haiku", Style: "whiteboard", RefineAttempts: 1, FallbackOnExtractionFailure: true}
	applyFlags(cmd, &cfg)

	assert.Equal(t, "gemini-pro", cfg.Model)
	assert.Equal(t, 2, cfg.RefineAttempts)
	assert.Equal(t, "whiteboard", cfg.Style, "unset flag must not clear the config value")
	assert.True(t, cfg.FallbackOnExtractionFailure)
}

func TestExtractCommand(t *testing.T) {
	reply := "Here is the scene:\n```python\nfrom manim import *\n\nclass Orbit(Scene):\n    def construct(self):\n        self.wait(1)\n```\nEnjoy!"
	cmd, out, errOut := testCmd(reply)

	require.NoError(t, runExtract(cmd, []string{"-"}))
	assert.Contains(t, out.String(), "class Orbit(Scene):")
	assert.NotContains(t, out.String(), "Enjoy")
	assert.Equal(t, "strategy: python-fence\n", errOut.String())

	cmd, _, _ = testCmd("No code today, sorry.")
	assert.ErrorIs(t, runExtract(cmd, []string{"-"}), extract.ErrNoProgram)
}

func TestRepairCommand(t *testing.T) {
	flagRepairStyle, flagRepairOut = "", ""
	src := "from manim import *\n\nclass Demo(Scene):\n    def construct(self):\n        self.wait(1)\n"

	cmd, out, errOut := testCmd(src)
	require.NoError(t, runRepair(cmd, []string{"-"}))
	assert.Contains(t, out.String(), "class Demo(Scene):")
	assert.Contains(t, errOut.String(), "scene: Demo")

	path := filepath.Join(t.TempDir(), "repaired.py")
	flagRepairOut = path
	defer func() { flagRepairOut = "" }()
	cmd, out, _ = testCmd(src)
	require.NoError(t, runRepair(cmd, []string{"-"}))
	assert.Empty(t, out.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "class Demo(Scene):")
}

func TestRepairCommandRejects(t *testing.T) {
	flagRepairStyle, flagRepairOut = "", ""
	cmd, _, _ := testCmd("print('no scene here')\n")
	assert.Error(t, runRepair(cmd, []string{"-"}))

	flagRepairStyle = "neon"
	defer func() { flagRepairStyle = "" }()
	cmd, _, _ = testCmd("")
	assert.ErrorContains(t, runRepair(cmd, []string{"-"}), "unknown render style")
}

func TestReadInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))
	cmd, _, _ := testCmd("")

	got, err := readInput(cmd, path)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = readInput(cmd, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestVersionAndStyles(t *testing.T) {
	cmd, out, _ := testCmd("")
	versionCmd.Run(cmd, nil)
	assert.Equal(t, "eduanim dev\n", out.String())

	cmd, out, _ = testCmd("")
	stylesCmd.Run(cmd, nil)
	assert.Contains(t, out.String(), "default")
}

func press(m tuiModel, keys ...tea.KeyMsg) tuiModel {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(tuiModel)
	}
	return m
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
)

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func resetGenerateFlags() {
	flagTopic, flagSource, flagComplexity, flagStyle = "", "", "", ""
	flagQuality, flagModel, flagTTS = "", "", ""
}

func TestWizardRequiresTopic(t *testing.T) {
	resetGenerateFlags()
	m := initialTUIModel()
	for m.cursor < m.generateIdx() {
		m = press(m, keyDown)
	}
	m = press(m, keyEnter)
	assert.False(t, m.confirmed)
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "topic is required")
}

func TestWizardAppliesChoices(t *testing.T) {
	resetGenerateFlags()
	m := initialTUIModel()

	// Topic, then skip Source.
	m = press(m, keyEnter, typed("Photosynthesis"), keyEnter)
	assert.Equal(t, idxSource, m.cursor)
	m = press(m, keyDown)

	// Second complexity level.
	m = press(m, keyEnter, keyDown, keyEnter)
	assert.Equal(t, string(plan.Complexities()[1]), m.items[idxComplexity].value)

	for m.cursor < m.generateIdx() {
		m = press(m, keyDown)
	}
	m = press(m, keyEnter)
	require.True(t, m.confirmed)

	cmd, _, _ := testCmd("")
	var topic, source, complexity, styleName, quality, model, tts string
	f := cmd.Flags()
	f.StringVar(&topic, "topic", "", "")
	f.StringVar(&source, "source", "", "")
	f.StringVar(&complexity, "complexity", "", "")
	f.StringVar(&styleName, "style", "", "")
	f.StringVar(&quality, "quality", "", "")
	f.StringVar(&model, "model", "", "")
	f.StringVar(&tts, "tts", "", "")
	require.NoError(t, m.apply(cmd))

	assert.Equal(t, "Photosynthesis", topic)
	assert.Equal(t, string(plan.Complexities()[1]), complexity)
	assert.True(t, f.Changed("topic"))
	assert.False(t, f.Changed("model"), "values left at default must not override config")
	assert.False(t, f.Changed("source"))
}

func TestWizardBackspaceAndCancel(t *testing.T) {
	resetGenerateFlags()
	m := initialTUIModel()
	m = press(m, keyEnter, typed("Gravityy"), tea.KeyMsg{Type: tea.KeyBackspace}, keyEnter)
	assert.Equal(t, "Gravity", m.items[idxTopic].value)

	m = press(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, m.cancelled)
}

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, localPath, key string) (string, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn.example/" + key, nil
}

type fakeProbe struct{ secs float64 }

func (p fakeProbe) Duration(context.Context, string) (float64, error) { return p.secs, nil }

func writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really an mp4"), 0644))
	return path
}

func TestPublishRecordsVideo(t *testing.T) {
	up := &fakeUploader{}
	store := jobstore.NewMemory()
	var out bytes.Buffer

	url, err := publish(context.Background(), &out, publishInput{
		Path:  writeVideo(t, "newtons-first-law.mp4"),
		Owner: "sam",
	}, up, store, fakeProbe{secs: 61.4})
	require.NoError(t, err)
	require.Len(t, up.keys, 1)
	assert.Equal(t, "https://cdn.example/"+up.keys[0], url)
	assert.Contains(t, out.String(), "Duration: 1m1s")

	videos, _, err := store.List(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	v := videos[0]
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
	assert.Equal(t, "newtons-first-law", v.Title)
	assert.Equal(t, "newtons-first-law", v.Topic)
	assert.Equal(t, "sam", v.Owner)
	assert.Equal(t, url, v.VideoURL)
	assert.Equal(t, "videos/"+v.ID+".mp4", up.keys[0])
}

func TestPublishUploadFailure(t *testing.T) {
	saved := publishBackoffs
	publishBackoffs = []time.Duration{0, 0}
	defer func() { publishBackoffs = saved }()

	up := &fakeUploader{err: errors.New("access denied")}
	store := jobstore.NewMemory()
	var out bytes.Buffer

	_, err := publish(context.Background(), &out, publishInput{Path: writeVideo(t, "clip.mp4"), Title: "Clip"}, up, store, nil)
	require.ErrorContains(t, err, "access denied")
	assert.Len(t, up.keys, 3)

	videos, _, err := store.List(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, jobstore.StatusError, videos[0].Status)
}

func TestPublishValidatesFile(t *testing.T) {
	up := &fakeUploader{}
	var out bytes.Buffer

	_, err := publish(context.Background(), &out, publishInput{Path: writeVideo(t, "clip.mp3")}, up, nil, nil)
	assert.ErrorContains(t, err, ".mp4")

	empty := filepath.Join(t.TempDir(), "empty.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = publish(context.Background(), &out, publishInput{Path: empty}, up, nil, nil)
	assert.ErrorContains(t, err, "empty")

	assert.Empty(t, up.keys)
}

func TestPublishWithoutStore(t *testing.T) {
	up := &fakeUploader{}
	var out bytes.Buffer
	url, err := publish(context.Background(), &out, publishInput{Path: writeVideo(t, "clip.mp4"), Title: "Clip"}, up, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), url)
}
