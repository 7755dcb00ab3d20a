package gotest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/stream"
)

const passFailInput = `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"start","Package":"github.com/example/test"}
{"Time":"2025-11-01T15:43:02.993565-05:00","Action":"run","Package":"github.com/example/test","Test":"TestPass"}
{"Time":"2025-11-01T15:43:02.993579-05:00","Action":"pass","Package":"github.com/example/test","Test":"TestPass","Elapsed":0.001}
{"Time":"2025-11-01T15:43:02.993600-05:00","Action":"run","Package":"github.com/example/test","Test":"TestFail"}
{"Time":"2025-11-01T15:43:02.993610-05:00","Action":"output","Package":"github.com/example/test","Test":"TestFail","Output":"    foo_test.go:12: want 2, got 3\n"}
{"Time":"2025-11-01T15:43:02.993620-05:00","Action":"fail","Package":"github.com/example/test","Test":"TestFail","Elapsed":0.002}
{"Time":"2025-11-01T15:43:02.993690-05:00","Action":"fail","Package":"github.com/example/test","Elapsed":0.003}`

func convert(t *testing.T, input string) ([]record.Record, *Converter, int) {
	t.Helper()
	var sink bytes.Buffer
	w := stream.NewWriter(&sink)
	c := NewConverter(w)

	recorded, err := c.Run(strings.NewReader(input), nil)
	require.NoError(t, err)

	recs, err := stream.NewReader(&sink).ReadAll()
	require.NoError(t, err)
	return recs, c, recorded
}

func TestConverterPassAndFail(t *testing.T) {
	recs, _, recorded := convert(t, passFailInput)
	assert.Equal(t, 2, recorded)
	require.Len(t, recs, 4) // two previews, two completions

	byName := make(map[string]record.Record)
	for _, rec := range recs {
		if !rec.IsPreview() {
			byName[rec.Name] = rec
		}
	}

	pass := byName["github.com/example/test::TestPass"]
	assert.Equal(t, record.ResultPassed, pass.Result)
	require.NotNil(t, pass.Detail)
	assert.Empty(t, pass.Detail.Failures)

	fail := byName["github.com/example/test::TestFail"]
	assert.Equal(t, record.ResultFailed, fail.Result)
	require.NotNil(t, fail.Detail)
	assert.Equal(t, []string{"    foo_test.go:12: want 2, got 3"}, fail.Detail.Failures)
}

func TestConverterSkipOutputBecomesWarnings(t *testing.T) {
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"run","Package":"pkg","Test":"TestSkip"}
{"Time":"2025-11-01T15:43:02.993565-05:00","Action":"output","Package":"pkg","Test":"TestSkip","Output":"    foo_test.go:9: requires docker\n"}
{"Time":"2025-11-01T15:43:02.993579-05:00","Action":"skip","Package":"pkg","Test":"TestSkip","Elapsed":0}`

	recs, _, _ := convert(t, input)
	require.Len(t, recs, 2)
	completion := recs[1]
	assert.Equal(t, record.ResultSkipped, completion.Result)
	assert.Equal(t, []string{"    foo_test.go:9: requires docker"}, completion.Detail.Warnings)
}

func TestConverterSubtestNames(t *testing.T) {
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"run","Package":"pkg","Test":"TestTable/case_one"}
{"Time":"2025-11-01T15:43:02.993579-05:00","Action":"pass","Package":"pkg","Test":"TestTable/case_one","Elapsed":0}`

	recs, _, _ := convert(t, input)
	require.Len(t, recs, 2)
	assert.Equal(t, "pkg::TestTable#case_one", recs[0].Name)
}

func TestConverterSubtestParentLinkage(t *testing.T) {
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"run","Package":"pkg","Test":"TestTable"}
{"Time":"2025-11-01T15:43:02.993520-05:00","Action":"run","Package":"pkg","Test":"TestTable/case_one"}
{"Time":"2025-11-01T15:43:02.993530-05:00","Action":"run","Package":"pkg","Test":"TestTable/case_one/deep"}
{"Time":"2025-11-01T15:43:02.993540-05:00","Action":"pass","Package":"pkg","Test":"TestTable/case_one/deep","Elapsed":0}
{"Time":"2025-11-01T15:43:02.993550-05:00","Action":"pass","Package":"pkg","Test":"TestTable/case_one","Elapsed":0}
{"Time":"2025-11-01T15:43:02.993560-05:00","Action":"pass","Package":"pkg","Test":"TestTable","Elapsed":0}`

	recs, _, _ := convert(t, input)
	previews := make(map[string]record.Record)
	for _, rec := range recs {
		if rec.IsPreview() {
			previews[rec.Name] = rec
		}
	}
	require.Len(t, previews, 3)

	top := previews["pkg::TestTable"]
	sub := previews["pkg::TestTable#case_one"]
	deep := previews["pkg::TestTable#case_one#deep"]

	assert.Empty(t, top.Parent)
	assert.Equal(t, top.Instance, sub.Parent)
	assert.Equal(t, sub.Instance, deep.Parent)

	// Completions carry the same parent as their previews.
	for _, rec := range recs {
		if !rec.IsPreview() {
			assert.Equal(t, previews[rec.Name].Parent, rec.Parent, rec.Name)
		}
	}
}

func TestConverterPassesThroughRawLines(t *testing.T) {
	input := "# github.com/example/test\nbuild error: something\n" +
		`{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"run","Package":"pkg","Test":"TestA"}` + "\n" +
		`{"Time":"2025-11-01T15:43:02.993579-05:00","Action":"pass","Package":"pkg","Test":"TestA","Elapsed":0}`

	var sink, raw bytes.Buffer
	w := stream.NewWriter(&sink)
	c := NewConverter(w)
	_, err := c.Run(strings.NewReader(input), &raw)
	require.NoError(t, err)

	assert.Contains(t, raw.String(), "# github.com/example/test")
	assert.Contains(t, raw.String(), "build error: something")

	recs, err := stream.NewReader(&sink).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestConverterPackageOutputGoesToRaw(t *testing.T) {
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"output","Package":"pkg","Output":"ok  \tpkg\t0.1s\n"}`

	var sink, raw bytes.Buffer
	c := NewConverter(stream.NewWriter(&sink))
	_, err := c.Run(strings.NewReader(input), &raw)
	require.NoError(t, err)
	assert.Equal(t, "ok  \tpkg\t0.1s\n", raw.String())
	assert.Zero(t, sink.Len(), "package-level events write no records")
}

func TestConverterAbandonedTests(t *testing.T) {
	// Input ends while TestHang is still running.
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"run","Package":"pkg","Test":"TestHang"}`

	recs, c, recorded := convert(t, input)
	assert.Equal(t, 1, recorded)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].IsPreview())

	assert.Equal(t, 1, c.Abandon())
	assert.Equal(t, 0, c.Abandon(), "abandon drains the open set")
}

func TestConverterOutcomeForUnknownTest(t *testing.T) {
	// A pass for a test that was never announced is dropped, not an error.
	input := `{"Time":"2025-11-01T15:43:02.993511-05:00","Action":"pass","Package":"pkg","Test":"TestGhost","Elapsed":0}`

	recs, _, recorded := convert(t, input)
	assert.Zero(t, recorded)
	assert.Empty(t, recs)
}

func TestName(t *testing.T) {
	assert.Equal(t, "pkg::TestFoo", Name("pkg", "TestFoo"))
	assert.Equal(t, "pkg::TestFoo#a#b", Name("pkg", "TestFoo/a/b"))
}
