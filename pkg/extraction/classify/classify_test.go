package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailgraph/pkg/graph"
)

func TestClassify_Stage1InvoiceClear(t *testing.T) {
	c := New(nil, nil, nil, nil)
	dt, conf, err := c.Classify(context.Background(), "user-1", "INVOICE NUMBER: 123\nAmount Due: $45.00\nBill To: Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, graph.DocInvoice, dt)
	assert.Greater(t, conf, 0.0)
}

func TestClassify_Stage1NoKeywordsFallsThroughWithoutProviderReturnsError(t *testing.T) {
	c := New(nil, nil, nil, nil)
	_, _, err := c.Classify(context.Background(), "user-1", "the quick brown fox jumps over the lazy dog")
	require.Error(t, err)
}

func TestClassify_Stage1ReceiptClear(t *testing.T) {
	c := New(nil, nil, nil, nil)
	dt, _, err := c.Classify(context.Background(), "user-1", "Thank you for your purchase! Receipt #998, paid in full.")
	require.NoError(t, err)
	assert.Equal(t, graph.DocReceipt, dt)
}

func TestValidDocType(t *testing.T) {
	assert.True(t, validDocType(graph.DocInvoice))
	assert.True(t, validDocType(graph.DocOther))
	assert.False(t, validDocType(graph.DocumentType("not_a_type")))
}
