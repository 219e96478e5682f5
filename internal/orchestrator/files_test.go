package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFilePlanCreateUpdateDelete(t *testing.T) {
	st := newFakeStorage(map[string]string{
		"app/page.tsx": "old page",
		"old.txt":      "bye",
	})
	gen := &fakeGenerator{resp: &GenerationResponse{}}
	o := newTestOrchestrator(gen, nil, st, nil, nil, nil)

	plan := []FilePlanItem{
		{Path: "app/layout.tsx", Action: ActionCreate, Description: "root layout"},
		{Path: "app/page.tsx", Action: ActionUpdate, Description: "hero section"},
		{Path: "old.txt", Action: ActionDelete, Description: "drop scratch file"},
	}
	records := o.applyFilePlan(context.Background(), "proj-1", plan)

	require.Len(t, records, 3)
	for i, r := range records {
		assert.True(t, r.Success, "item %d", i)
	}
	assert.Equal(t, plan[0].Path, records[0].Path)

	// Update passed the current content through to regeneration.
	require.Len(t, gen.contentCalls, 2)
	assert.Equal(t, "", gen.contentCalls[0].current)
	assert.Equal(t, "old page", gen.contentCalls[1].current)

	_, gone, _ := st.GetFileContent(context.Background(), "proj-1", "old.txt")
	assert.False(t, gone)
}

func TestApplyFilePlanAliasResolution(t *testing.T) {
	st := newFakeStorage(map[string]string{"app/page.tsx": "existing"})
	gen := &fakeGenerator{resp: &GenerationResponse{}}
	o := newTestOrchestrator(gen, nil, st, nil, nil, nil)

	records := o.applyFilePlan(context.Background(), "proj-1", []FilePlanItem{
		{Path: "src/app/page.tsx", Action: ActionUpdate, Description: "tweak copy"},
	})

	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, "app/page.tsx", records[0].Path, "report reflects the resolved path")

	require.Len(t, gen.contentCalls, 1)
	assert.Equal(t, "app/page.tsx", gen.contentCalls[0].path)
	assert.Equal(t, "existing", gen.contentCalls[0].current)

	// The write landed on the alias, not the planned path.
	_, found, _ := st.GetFileContent(context.Background(), "proj-1", "app/page.tsx")
	assert.True(t, found)
	_, found, _ = st.GetFileContent(context.Background(), "proj-1", "src/app/page.tsx")
	assert.False(t, found)
}

func TestApplyFilePlanUpdateMissingEverywhere(t *testing.T) {
	st := newFakeStorage(nil)
	gen := &fakeGenerator{resp: &GenerationResponse{}}
	o := newTestOrchestrator(gen, nil, st, nil, nil, nil)

	records := o.applyFilePlan(context.Background(), "proj-1", []FilePlanItem{
		{Path: "src/app/missing.tsx", Action: ActionUpdate, Description: "update"},
	})

	require.Len(t, records, 1)
	assert.True(t, records[0].Success, "a clean miss proceeds with empty current content")
	assert.Equal(t, "src/app/missing.tsx", records[0].Path)
}

func TestApplyFilePlanEmptyContentSkipsApply(t *testing.T) {
	st := newFakeStorage(nil)
	gen := &fakeGenerator{
		resp:    &GenerationResponse{},
		content: func(string, Action, string, string) (string, error) { return "  \n\t", nil },
	}
	o := newTestOrchestrator(gen, nil, st, nil, nil, nil)

	records := o.applyFilePlan(context.Background(), "proj-1", []FilePlanItem{
		{Path: "app/page.tsx", Action: ActionCreate, Description: "page"},
	})

	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Empty(t, st.applied, "whitespace-only content never reaches storage")
}

func TestApplyFilePlanFailureIsolation(t *testing.T) {
	st := newFakeStorage(nil)
	st.applyErr["app/bad.tsx"] = errors.New("disk full")
	gen := &fakeGenerator{resp: &GenerationResponse{}}
	o := newTestOrchestrator(gen, nil, st, nil, nil, nil)

	records := o.applyFilePlan(context.Background(), "proj-1", []FilePlanItem{
		{Path: "app/bad.tsx", Action: ActionCreate, Description: "will fail"},
		{Path: "app/good.tsx", Action: ActionCreate, Description: "sibling"},
	})

	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.True(t, records[1].Success, "sibling item unaffected by failure")
}

func TestApplyFilePlanBroadcastsApplies(t *testing.T) {
	b := &fakeBroadcaster{}
	gen := &fakeGenerator{resp: &GenerationResponse{}}
	o := newTestOrchestrator(gen, nil, newFakeStorage(nil), nil, nil, b)

	o.applyFilePlan(context.Background(), "proj-1", []FilePlanItem{
		{Path: "app/a.tsx", Action: ActionCreate, Description: "a"},
		{Path: "app/b.tsx", Action: ActionCreate, Description: "b"},
	})

	assert.Equal(t, []string{"file_applied", "file_applied"}, b.Events())
}

func TestStripCodeFences(t *testing.T) {
	msg := "Here is the page:\n\n```tsx\nexport default function Page() {}\n```\n\nEnjoy!"
	assert.Equal(t, "Here is the page:\n\nEnjoy!", stripCodeFences(msg))

	// Unclosed fences are left alone rather than eating the rest of the message.
	unclosed := "text\n```js\nlet x = 1\n"
	assert.Equal(t, "text\n```js\nlet x = 1", stripCodeFences(unclosed))
}
