package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemsFromResult(t *testing.T) {
	tests := []struct {
		name   string
		result NodeResult
		want   []map[string]any
	}{
		{
			name:   "nil data is one empty item",
			result: NodeResult{},
			want:   []map[string]any{{}},
		},
		{
			name:   "data without items is a single item",
			result: NodeResult{Data: map[string]any{"id": 1}},
			want:   []map[string]any{{"id": 1}},
		},
		{
			name:   "typed map list",
			result: NodeResult{Data: map[string]any{ItemsKey: []map[string]any{{"a": 1}, {"a": 2}}}},
			want:   []map[string]any{{"a": 1}, {"a": 2}},
		},
		{
			name: "output items of a previous node",
			result: NodeResult{Data: ItemsData([]Item{
				{JSON: map[string]any{"x": "y"}, PairedItem: 0},
			})},
			want: []map[string]any{{"x": "y"}},
		},
		{
			name: "decoded JSON list unwraps json envelopes and scalars",
			result: NodeResult{Data: map[string]any{ItemsKey: []any{
				map[string]any{"json": map[string]any{"n": 1}},
				map[string]any{"n": 2},
				"plain",
			}}},
			want: []map[string]any{{"n": 1}, {"n": 2}, {"value": "plain"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ItemsFromResult(tt.result))
		})
	}
}

func TestPortID(t *testing.T) {
	id := MakePortID("dust-1", "success")
	assert.Equal(t, "dust-1:success", id)

	nodeID, port, ok := ParsePortID(id)
	assert.True(t, ok)
	assert.Equal(t, "dust-1", nodeID)
	assert.Equal(t, "success", port)

	_, _, ok = ParsePortID("no-separator")
	assert.False(t, ok)
}

func TestExecutionContext_CredentialValues(t *testing.T) {
	execCtx := ExecutionContext{
		Credentials: map[string]map[string]any{"dustApi": {"apiKey": "sk"}},
	}

	values, ok := execCtx.CredentialValues("dustApi")
	assert.True(t, ok)
	assert.Equal(t, "sk", values["apiKey"])

	_, ok = execCtx.CredentialValues("other")
	assert.False(t, ok)
}
