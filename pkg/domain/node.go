package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeType identifies the behavior of a node in the flow.
type NodeType string

const (
	// NodeTypeMessage emits text and continues immediately.
	NodeTypeMessage NodeType = "message"
	// NodeTypeQuestion asks for free text and stores the answer in a variable.
	NodeTypeQuestion NodeType = "question"
	// NodeTypeConfirmation asks a yes/no style question and routes on the answer.
	NodeTypeConfirmation NodeType = "confirmation"
	// NodeTypeBranch presents options and always waits for an explicit selection.
	NodeTypeBranch NodeType = "branch"
	// NodeTypeBranchOption is the pass-through target of one branch option.
	NodeTypeBranchOption NodeType = "branchOption"
	// NodeTypeCode runs a user-authored script in the sandbox.
	NodeTypeCode NodeType = "code"
	// NodeTypeRedirect ends the flow pointing the user to a URL.
	NodeTypeRedirect NodeType = "redirect"
	// NodeTypeUnknown covers any type this engine does not understand.
	NodeTypeUnknown NodeType = "unknown"
)

// NodeData is the type-specific payload of a Node.
// The set of implementations is closed; see DecodeNodeData.
type NodeData interface {
	Kind() NodeType
	isNodeData()
}

type MessageData struct {
	Message string `json:"message" mapstructure:"message"`
}

type QuestionData struct {
	Message  string `json:"message" mapstructure:"message"`
	Variable string `json:"variable" mapstructure:"variable"`
}

type ConfirmationData struct {
	Message string `json:"message" mapstructure:"message"`
}

type BranchData struct {
	Message string   `json:"message" mapstructure:"message"`
	Options []string `json:"options" mapstructure:"options"`
}

type BranchOptionData struct {
	Label string `json:"label" mapstructure:"label"`
}

// CodeData holds the script source and its wall-clock budget in milliseconds.
type CodeData struct {
	Code    string `json:"code" mapstructure:"code"`
	Timeout int    `json:"timeout,omitempty" mapstructure:"timeout"`
}

type RedirectData struct {
	RedirectURL string `json:"redirectUrl" mapstructure:"redirectUrl"`
}

// UnknownData keeps the raw payload of a node whose type is not recognized.
type UnknownData map[string]any

func (MessageData) Kind() NodeType      { return NodeTypeMessage }
func (QuestionData) Kind() NodeType     { return NodeTypeQuestion }
func (ConfirmationData) Kind() NodeType { return NodeTypeConfirmation }
func (BranchData) Kind() NodeType       { return NodeTypeBranch }
func (BranchOptionData) Kind() NodeType { return NodeTypeBranchOption }
func (CodeData) Kind() NodeType         { return NodeTypeCode }
func (RedirectData) Kind() NodeType     { return NodeTypeRedirect }
func (UnknownData) Kind() NodeType      { return NodeTypeUnknown }

func (MessageData) isNodeData()      {}
func (QuestionData) isNodeData()     {}
func (ConfirmationData) isNodeData() {}
func (BranchData) isNodeData()       {}
func (BranchOptionData) isNodeData() {}
func (CodeData) isNodeData()         {}
func (RedirectData) isNodeData()     {}
func (UnknownData) isNodeData()      {}

// TimeoutDuration returns the configured budget, falling back to DefaultCodeTimeout.
func (d CodeData) TimeoutDuration() time.Duration {
	if d.Timeout <= 0 {
		return DefaultCodeTimeout
	}
	return time.Duration(d.Timeout) * time.Millisecond
}

// Node represents a step in the conversation graph.
type Node struct {
	ID string `json:"id"`

	// Type is the type as authored. For unrecognized types it keeps the original
	// string while Data is UnknownData.
	Type NodeType `json:"type"`

	Data NodeData `json:"data"`
}

// Kind returns the effective behavior of the node.
func (n Node) Kind() NodeType {
	if n.Data == nil {
		return NodeTypeUnknown
	}
	return n.Data.Kind()
}

// NewNode builds a node from its declared type and raw payload.
func NewNode(id string, nodeType NodeType, raw map[string]any) (Node, error) {
	data, err := DecodeNodeData(nodeType, raw)
	if err != nil {
		return Node{}, fmt.Errorf("node %s: %w", id, err)
	}
	return Node{ID: id, Type: nodeType, Data: data}, nil
}

// DecodeNodeData converts a loosely typed payload (as found in JSON or YAML
// documents) into the concrete NodeData for the given type.
func DecodeNodeData(nodeType NodeType, raw map[string]any) (NodeData, error) {
	var target NodeData
	switch nodeType {
	case NodeTypeMessage:
		target = &MessageData{}
	case NodeTypeQuestion:
		target = &QuestionData{}
	case NodeTypeConfirmation:
		target = &ConfirmationData{}
	case NodeTypeBranch:
		target = &BranchData{}
	case NodeTypeBranchOption:
		target = &BranchOptionData{}
	case NodeTypeCode:
		target = &CodeData{}
	case NodeTypeRedirect:
		target = &RedirectData{}
	default:
		data := UnknownData{}
		for k, v := range raw {
			data[k] = v
		}
		return data, nil
	}

	if raw != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           target,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", nodeType, err)
		}
	}

	switch d := target.(type) {
	case *MessageData:
		return *d, nil
	case *QuestionData:
		return *d, nil
	case *ConfirmationData:
		return *d, nil
	case *BranchData:
		return *d, nil
	case *BranchOptionData:
		return *d, nil
	case *CodeData:
		return *d, nil
	case *RedirectData:
		return *d, nil
	}
	return nil, fmt.Errorf("unsupported node type %q", nodeType)
}

type rawNode struct {
	ID   any            `json:"id"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// UnmarshalJSON accepts string or numeric ids and decodes data by type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw rawNode
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	node, err := NewNode(NormalizeID(raw.ID), NodeType(raw.Type), raw.Data)
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// NormalizeID renders an authored identifier (string or number) as a string.
func NormalizeID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}
