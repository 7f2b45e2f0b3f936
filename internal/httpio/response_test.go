package httpio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventWriter_Send_WritesEventIDRetryDataInOrder(t *testing.T) {
	var buf bytes.Buffer
	ew := NewEventWriter(&buf)

	err := ew.Send(Event{Event: "tick", ID: "42", Retry: 1500, Data: "hello"})
	assert.NoError(t, err)
	assert.Equal(t, "event: tick\nid: 42\nretry: 1500\ndata: hello\n\n", buf.String())
}

func TestEventWriter_Send_OmitsAbsentFields(t *testing.T) {
	var buf bytes.Buffer
	ew := NewEventWriter(&buf)

	err := ew.Send(Event{Data: "just data"})
	assert.NoError(t, err)
	assert.Equal(t, "data: just data\n\n", buf.String())
}

func TestEventWriter_Send_MultilineDataBecomesMultipleDataLines(t *testing.T) {
	var buf bytes.Buffer
	ew := NewEventWriter(&buf)

	err := ew.Send(Event{Data: "line one\nline two"})
	assert.NoError(t, err)
	assert.Equal(t, "data: line one\ndata: line two\n\n", buf.String())
}

func TestEventWriter_Send_MultipleEventsConcatenate(t *testing.T) {
	var buf bytes.Buffer
	ew := NewEventWriter(&buf)

	assert.NoError(t, ew.Send(Event{ID: "1", Data: "a"}))
	assert.NoError(t, ew.Send(Event{ID: "2", Data: "b"}))
	assert.Equal(t, "id: 1\ndata: a\n\nid: 2\ndata: b\n\n", buf.String())
}
