package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/q2vk/qvk/config"
)

func TestConsoleOnly(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	var out bytes.Buffer
	l, err := New(config.VkConfig{LogLevel: "info"}, dir, &out)
	c.Assert(err, qt.IsNil)
	defer l.Close()

	l.Info().Msg("...created Vulkan instance")
	l.Debug().Msg("hidden")

	c.Assert(out.String(), qt.Matches, `(?s).*\.\.\.created Vulkan instance.*session=.*`)
	c.Assert(strings.Contains(out.String(), "hidden"), qt.IsFalse)

	_, err = os.Stat(filepath.Join(dir, FileName))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}

func TestFileSink(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	var out bytes.Buffer
	l, err := New(config.VkConfig{Log: true}, dir, &out)
	c.Assert(err, qt.IsNil)

	l.Warn().Str("op", "vkCreateFence").Msg("slow")
	c.Assert(l.Close(), qt.IsNil)
	c.Assert(l.Close(), qt.IsNil)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	c.Assert(err, qt.IsNil)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	c.Assert(lines, qt.HasLen, 2)

	_, err = time.Parse(time.ANSIC, lines[0])
	c.Assert(err, qt.IsNil)
	c.Assert(lines[1], qt.Matches, `\{"level":"warn","session":"[0-9a-f-]{36}".*"op":"vkCreateFence".*"message":"slow"\}`)
}

func TestNewFrame(t *testing.T) {
	c := qt.New(t)

	var quiet bytes.Buffer
	l, err := New(config.VkConfig{}, t.TempDir(), &quiet)
	c.Assert(err, qt.IsNil)
	l.NewFrame(1)
	c.Assert(quiet.Len(), qt.Equals, 0)

	// without vk.log there is nowhere for the trace to go
	var noFile bytes.Buffer
	l, err = New(config.VkConfig{LogFrames: true}, t.TempDir(), &noFile)
	c.Assert(err, qt.IsNil)
	l.NewFrame(3)
	c.Assert(noFile.Len(), qt.Equals, 0)
}

func TestNewFrameGoesToFileOnly(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	var out bytes.Buffer
	l, err := New(config.VkConfig{Log: true, LogFrames: true}, dir, &out)
	c.Assert(err, qt.IsNil)

	l.NewFrame(7)
	l.Debug().Msg("still filtered")
	c.Assert(l.Close(), qt.IsNil)
	l.NewFrame(8)

	c.Assert(out.Len(), qt.Equals, 0)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	c.Assert(err, qt.IsNil)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	c.Assert(lines, qt.HasLen, 2)
	c.Assert(lines[1], qt.Matches, `\{.*"frame":7.*"message":"\*\*\* begin frame \*\*\*"\}`)
}

func TestBadLevel(t *testing.T) {
	c := qt.New(t)

	_, err := New(config.VkConfig{LogLevel: "loud"}, t.TempDir(), &bytes.Buffer{})
	c.Assert(err, qt.ErrorMatches, `log level "loud": .*`)
}

func TestNop(t *testing.T) {
	c := qt.New(t)

	l := Nop()
	l.Error().Msg("dropped")
	l.NewFrame(1)
	c.Assert(l.Close(), qt.IsNil)
}
