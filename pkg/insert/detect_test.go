package insert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fence = "```"

func TestDetectWholeFileForms(t *testing.T) {
	text := "Here:\n" +
		fence + "python:app.py\nprint(1)\n" + fence + "\n" +
		fence + "go cmd/main.go\npackage main\n" + fence + "\n" +
		fence + "js\n// File: web/index.js\nconsole.log(1)\n" + fence + "\n" +
		fence + "bash\necho no target\n" + fence + "\n"

	blocks := Detect(text)
	require.Len(t, blocks, 3)

	assert.Equal(t, "app.py", blocks[0].Path)
	assert.Equal(t, "python", blocks[0].Lang)
	assert.Equal(t, "print(1)\n", blocks[0].Content)
	assert.Nil(t, blocks[0].Range)

	assert.Equal(t, "cmd/main.go", blocks[1].Path)
	assert.Equal(t, "web/index.js", blocks[2].Path)
	assert.Equal(t, "console.log(1)\n", blocks[2].Content)
}

func TestDetectLineRangeForms(t *testing.T) {
	text := fence + "3:4:src/a.txt\nthree\nfour\n" + fence + "\n" +
		fence + "go\n10:12:pkg/b.go\nx := 1\n" + fence

	blocks := Detect(text)
	require.Len(t, blocks, 2)
	assert.Equal(t, &LineRange{Start: 3, End: 4}, blocks[0].Range)
	assert.Equal(t, "src/a.txt", blocks[0].Path)
	assert.Equal(t, "three\nfour\n", blocks[0].Content)

	assert.Equal(t, &LineRange{Start: 10, End: 12}, blocks[1].Range)
	assert.Equal(t, "pkg/b.go", blocks[1].Path)
	assert.Equal(t, "go", blocks[1].Lang)
	assert.Equal(t, "x := 1\n", blocks[1].Content)
}

func TestDetectSkipsOpenBlocksAndThinking(t *testing.T) {
	assert.Empty(t, Detect(fence+"go:main.go\npackage main\n"))
	assert.Empty(t, Detect("<think>"+fence+"go:main.go\npackage main\n"+fence+"</think>"))
}

func TestDetectIsStableWhileStreaming(t *testing.T) {
	full := fence + "txt:a.txt\nhello\n" + fence + "\nand then " + fence + "txt:b.txt\nwor"
	blocks := Detect(full)
	require.Len(t, blocks, 1)
	assert.Equal(t, "a.txt", blocks[0].Path)
}
