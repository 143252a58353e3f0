package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/sunny-chung/hello-http-sub000/pkg/protocol"
	"github.com/sunny-chung/hello-http-sub000/pkg/request"
)

// Operation is a checked subscription request.
type Operation struct {
	Document      string
	OperationName string
	Variables     json.RawMessage
	InitPayload   json.RawMessage
}

// ParseOperation checks the GraphQL part of a request. The document must
// parse. When it holds more than one operation, OperationName must select
// one; with a single named operation the name is filled in. Variables and
// the connection_init payload must be JSON objects when set.
func ParseOperation(g *request.GraphQL) (*Operation, error) {
	if g == nil || strings.TrimSpace(g.Document) == "" {
		return nil, fmt.Errorf("%w: GraphQL document is required", protocol.ErrMissingExtra)
	}

	doc, err := parser.ParseQuery(&ast.Source{Name: "document", Input: g.Document})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidMessage, err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("%w: document has no operation", protocol.ErrInvalidMessage)
	}

	op := &Operation{Document: g.Document, OperationName: g.OperationName}
	if op.OperationName != "" {
		if doc.Operations.ForName(op.OperationName) == nil {
			return nil, fmt.Errorf("%w: operation %q not found in document", protocol.ErrInvalidMessage, op.OperationName)
		}
	} else if len(doc.Operations) == 1 {
		op.OperationName = doc.Operations[0].Name
	} else {
		return nil, fmt.Errorf("%w: document has %d operations, an operation name is required",
			protocol.ErrInvalidMessage, len(doc.Operations))
	}

	if op.Variables, err = jsonObject("variables", g.Variables); err != nil {
		return nil, err
	}
	if op.InitPayload, err = jsonObject("connection_init payload", g.ConnectionInitPayload); err != nil {
		return nil, err
	}
	return op, nil
}

func jsonObject(what, text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("%w: %s must be a JSON object: %v", protocol.ErrInvalidMessage, what, err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
