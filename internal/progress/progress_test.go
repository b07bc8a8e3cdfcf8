package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ok := []Event{
		Started("go"),
		StageEvent(StageContent, "planning"),
		StageEvent(StageCode, "coding"),
		StageEvent(StageRendering, "rendering"),
		StageEvent(StageSaving, "saving"),
		Completed("s3://b/k.mp4", "done"),
	}
	assert.NoError(t, Validate(ok))
	assert.NoError(t, Validate([]Event{Started("go"), StageEvent(StageContent, ""), Failed("plan failed")}))
	assert.NoError(t, Validate([]Event{Started("go"), Failed("bad config")}))

	bad := map[string][]Event{
		"empty":          nil,
		"no start":       {StageEvent(StageContent, ""), Failed("x")},
		"two starts":     {Started(""), Started(""), Failed("x")},
		"repeated stage": {Started(""), StageEvent(StageCode, ""), StageEvent(StageCode, ""), Failed("x")},
		"backwards":      {Started(""), StageEvent(StageCode, ""), StageEvent(StageContent, ""), Failed("x")},
		"after terminal": {Started(""), Failed("x"), StageEvent(StageCode, "")},
		"two terminals":  {Started(""), Completed("u", ""), Failed("x")},
		"no terminal":    {Started(""), StageEvent(StageContent, "")},
		"unknown stage":  {Started(""), StageEvent("mux", ""), Failed("x")},
	}
	for name, events := range bad {
		assert.ErrorIs(t, Validate(events), errOrder, name)
	}
}

func TestWireStatus(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Started(""), StatusStarted},
		{StageEvent(StageContent, ""), StatusGeneratingContent},
		{StageEvent(StageCode, ""), StatusGeneratingCode},
		{StageEvent(StageRendering, ""), StatusRendering},
		{StageEvent(StageSaving, ""), StatusSaving},
		{Completed("u", ""), StatusCompleted},
		{Failed("r"), StatusError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.Status())
	}

	w := Completed("https://cdn/v.mp4", "ready").Wire()
	assert.Equal(t, Wire{Status: "completed", Message: "ready", VideoURL: "https://cdn/v.mp4"}, w)
}

func TestPlainRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := newBarRenderer(&buf, false, 80)
	r.LogFile = "/tmp/run.log"
	r.Handle(Started("Starting"))
	r.Handle(StageEvent(StageContent, "Planning lesson"))
	r.Handle(Completed("/out/v.mp4", "done"))
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "] Starting\n")
	assert.Contains(t, out, "] Planning lesson\n")
	assert.Contains(t, out, "Video saved to /out/v.mp4")
	assert.Contains(t, out, "Log: /tmp/run.log")
}

func TestRendererFailure(t *testing.T) {
	var buf bytes.Buffer
	r := newBarRenderer(&buf, true, 100)
	r.Handle(StageEvent(StageCode, "Writing program"))
	assert.Contains(t, buf.String(), "[")
	r.Handle(Failed("render failed"))
	r.Finish()
	assert.Contains(t, buf.String(), "Error: render failed")
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##..]", renderBar(0.5, 4))
	assert.Equal(t, "[....]", renderBar(-1, 4))
	assert.Equal(t, "[####]", renderBar(2, 4))
}
