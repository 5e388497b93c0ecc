package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailgraph/pkg/llm"
)

type fakeProvider struct {
	completeResp *llm.CompletionResponse
	completeErr  error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return f.completeResp, f.completeErr
}
func (f *fakeProvider) CompleteStructured(ctx context.Context, req llm.CompletionRequest, target interface{}) error {
	return f.completeErr
}
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func TestPrintableRatio(t *testing.T) {
	assert.Equal(t, 1.0, printableRatio("hello world"))
	assert.Equal(t, 0.0, printableRatio(""))
	assert.Less(t, printableRatio("\x00\x01\x02abc"), 1.0)
}

func TestIsPDF_DetectsByMimeOrMagicBytes(t *testing.T) {
	assert.True(t, isPDF("application/pdf", nil))
	assert.True(t, isPDF("", []byte("%PDF-1.4\n...")))
	assert.False(t, isPDF("image/png", []byte("not a pdf")))
}

func TestIsImage_RecognizedMimeTypes(t *testing.T) {
	assert.True(t, isImage("image/jpeg"))
	assert.True(t, isImage("image/PNG"))
	assert.False(t, isImage("application/pdf"))
}

func TestExtractText_UnsupportedMimeIsClassifiedAsCorrupted(t *testing.T) {
	r := New(CostConservative, nil, nil, nil, nil)
	_, err := r.ExtractText(context.Background(), "user-1", "application/zip", []byte("PK"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupted")
}

func TestExtractImage_CostConservativeSkips(t *testing.T) {
	r := New(CostConservative, nil, nil, nil, nil)
	out, err := r.ExtractText(context.Background(), "user-1", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, SkipImageCostPolicy, out.SkippedReason)
}

func TestExtractImage_AccuracyFirstCallsVisionProvider(t *testing.T) {
	fp := &fakeProvider{completeResp: &llm.CompletionResponse{Content: "transcribed text"}}
	r := New(AccuracyFirst, fp, nil, nil, nil)
	out, err := r.ExtractText(context.Background(), "user-1", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "transcribed text", out.Text)
	assert.Equal(t, "vision_ocr", out.Method)
}
