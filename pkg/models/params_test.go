package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeFields(t *testing.T) {
	p := Resize{Width: "800", Height: "600"}

	assert.Equal(t, OpResize, p.Operation())
	assert.Equal(t, []Field{
		{Name: "width", Value: "800"},
		{Name: "height", Value: "600"},
	}, p.Fields())
}

func TestCropFields(t *testing.T) {
	p := Crop{Left: "10", Top: "20", Right: "300", Bottom: "400"}

	assert.Equal(t, OpCrop, p.Operation())
	assert.Equal(t, map[string]string{
		"left": "10", "top": "20", "right": "300", "bottom": "400",
	}, FieldMap(p))
}

func TestCropFields_NoRangeValidation(t *testing.T) {
	// Bounds that the backend will reject still go out verbatim.
	p := Crop{Left: "500", Top: "-1", Right: "10", Bottom: "0"}
	assert.Equal(t, "-1", FieldMap(p)["top"])
	assert.Equal(t, "500", FieldMap(p)["left"])
}

func TestParameterlessOperations(t *testing.T) {
	assert.Empty(t, Grayscale{}.Fields())
	assert.Empty(t, Sepia{}.Fields())
	assert.Equal(t, OpGrayscale, Grayscale{}.Operation())
	assert.Equal(t, OpSepia, Sepia{}.Operation())
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name     string
		op       Operation
		values   map[string]string
		expected Params
		wantErr  string
	}{
		{
			name:     "resize",
			op:       OpResize,
			values:   map[string]string{"width": "1024", "height": "768"},
			expected: Resize{Width: "1024", Height: "768"},
		},
		{
			name:     "crop",
			op:       OpCrop,
			values:   map[string]string{"left": "0", "top": "0", "right": "50", "bottom": "60"},
			expected: Crop{Left: "0", Top: "0", Right: "50", Bottom: "60"},
		},
		{
			name:     "resize ignores extra fields",
			op:       OpResize,
			values:   map[string]string{"width": "1", "height": "2", "left": "9"},
			expected: Resize{Width: "1", Height: "2"},
		},
		{
			name:     "grayscale takes nothing",
			op:       OpGrayscale,
			values:   nil,
			expected: Grayscale{},
		},
		{
			name:     "sepia takes nothing",
			op:       OpSepia,
			expected: Sepia{},
		},
		{
			name:    "missing field",
			op:      OpResize,
			values:  map[string]string{"width": "10"},
			wantErr: `missing field "height"`,
		},
		{
			name:     "values kept verbatim",
			op:       OpResize,
			values:   map[string]string{"width": "0800", "height": "+600"},
			expected: Resize{Width: "0800", Height: "+600"},
		},
		{
			name:     "non-integer left to the backend",
			op:       OpCrop,
			values:   map[string]string{"left": "1.5", "top": "a", "right": "", "bottom": "1"},
			expected: Crop{Left: "1.5", Top: "a", Right: "", Bottom: "1"},
		},
		{
			name:    "unknown operation",
			op:      Operation("rotate"),
			wantErr: `unknown operation "rotate"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.op, tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
		failure  bool
	}{
		{JobStatusPending, false, false},
		{JobStatusStarted, false, false},
		{JobStatus("RETRY"), false, false},
		{JobStatus(""), false, false},
		{JobStatusSuccess, true, false},
		{JobStatusFailure, true, true},
		{JobStatusRevoked, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.failure, tt.status.IsFailure())
		})
	}
}
