package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/pipeerr"
)

func TestParseDecision_Plain(t *testing.T) {
	d, err := ParseDecision(`{"action":"click","target":"#apply","reasoning":"apply filter"}`)
	require.NoError(t, err)
	assert.Equal(t, "click", d.Action)
	assert.Equal(t, "#apply", d.Target)
}

func TestParseDecision_CodeFence(t *testing.T) {
	resp := "```json\n{\"action\":\"navigate\",\"target\":\"https://app.apollo.io/#/people\"}\n```"
	d, err := ParseDecision(resp)
	require.NoError(t, err)
	assert.Equal(t, "navigate", d.Action)
}

func TestParseDecision_SurroundingProse(t *testing.T) {
	resp := `I will wait for the page to settle.
{"action":"wait","reasoning":"results still loading"}`
	d, err := ParseDecision(resp)
	require.NoError(t, err)
	assert.Equal(t, "wait", d.Action)
}

func TestParseDecision_Errors(t *testing.T) {
	_, err := ParseDecision("no json here")
	require.Error(t, err)

	_, err = ParseDecision(`{"target":"#x"}`)
	require.Error(t, err, "missing action")

	_, err = ParseDecision(`{"action": bad}`)
	require.Error(t, err)

	pe, ok := pipeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, pipeerr.CodeAgent, pe.Code)
}

func TestElementDigest(t *testing.T) {
	page := `<html><body>
		<button id="apply-btn">Apply Filters</button>
		<input type="text" placeholder="Enter company domains" name="domains">
		<input type="hidden" name="csrf" value="x">
		<a href="/#/people">People</a>
		<select name="page-size"><option>25</option></select>
	</body></html>`

	digest := ElementDigest(page, 40)

	assert.Contains(t, digest, "selector=#apply-btn")
	assert.Contains(t, digest, `text="Apply Filters"`)
	assert.Contains(t, digest, `placeholder="Enter company domains"`)
	assert.Contains(t, digest, `href="/#/people"`)
	assert.NotContains(t, digest, "csrf", "hidden inputs are excluded")
}

func TestElementDigest_Cap(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 100; i++ {
		sb.WriteString("<button>Click</button>")
	}
	sb.WriteString("</body></html>")

	digest := ElementDigest(sb.String(), 10)
	assert.Equal(t, 10, len(strings.Split(digest, "\n")))
}

func TestElementDigest_Empty(t *testing.T) {
	assert.Equal(t, "(no interactive elements found)", ElementDigest("<html><body><p>hi</p></body></html>", 40))
}

func TestBuildApolloSearchTask(t *testing.T) {
	task := BuildApolloSearchTask("example.com\nacme.io", []string{"CEO", "Founder"})

	assert.Contains(t, task, "https://app.apollo.io/#/people")
	assert.Contains(t, task, "example.com\nacme.io")
	assert.Contains(t, task, "CEO")
	assert.Contains(t, task, "qOrganizationSearchListId")
	assert.Contains(t, task, "do NOT log in")
}

func TestBuildApolloSearchTask_NoTitles(t *testing.T) {
	task := BuildApolloSearchTask("example.com", nil)
	assert.NotContains(t, task, "Job Titles")
}

func TestBuildStepPrompt_HistoryTail(t *testing.T) {
	var history []Step
	for i := 0; i < 20; i++ {
		history = append(history, Step{Index: i, Action: "wait"})
	}
	prompt := buildStepPrompt("task", "https://app.apollo.io", "Apollo", "(none)", history)

	assert.NotContains(t, prompt, "\n0. wait", "old steps are dropped")
	assert.Contains(t, prompt, "19. wait")
}
